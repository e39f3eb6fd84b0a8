package models

// Table names in the target store, in dependency order. The locations
// table must be written before any attribute table that references it.
const (
	TableLocations      = "locations"
	TablePopulation     = "population_stats"
	TableCityClasses    = "city_classifications"
	TableIncomeClasses  = "income_classifications"
	TableSettlementTags = "settlement_tags"
)

// SourceRow is one loosely-typed record from the upstream workbook reader.
// Code and Population are `any` because the source sheet delivers them as
// strings, integers, or floats depending on cell formatting.
type SourceRow struct {
	Index              int // 1-based position in the source sheet, for error context
	Code               any
	Name               string
	LevelCode          string
	CorrespondenceCode string
	OldNames           string
	Status             string
	CityClass          string
	IncomeClass        string
	UrbanRural         string
	Population         any
}

// LocationRow is one row of the primary hierarchy table.
type LocationRow struct {
	Code               string
	Name               string
	LevelCode          string
	ParentCode         *string
	CorrespondenceCode string
	Status             string
	OldNames           string
}

// PopulationRow is one row of the sparse population attribute table.
type PopulationRow struct {
	Code          string
	ReferenceYear int
	Population    int64
	Source        string
}

// CityClassRow tags a city with its class (e.g. HUC, CC, ICC).
type CityClassRow struct {
	Code      string
	ClassCode string
	Source    string
}

// IncomeClassRow tags an entity with its income bracket.
type IncomeClassRow struct {
	Code          string
	BracketCode   string
	Source        string
	EffectiveYear int
}

// SettlementTagRow tags a settlement as urban or rural.
type SettlementTagRow struct {
	Code          string
	TagCode       string
	Source        string
	ReferenceYear int
}

// Warning is a non-fatal data-quality finding surfaced to the caller.
type Warning struct {
	Code    string
	Column  string
	Message string
}

// Report collects the data-quality findings of one partitioning pass.
type Report struct {
	Duplicates []string
	Orphans    []string
	Warnings   []Warning
}

// Dataset is the fully partitioned output of one batch: the primary
// hierarchy table plus the sparse attribute tables, each deterministically
// ordered, plus the partitioner's report.
type Dataset struct {
	Locations      []LocationRow
	Population     []PopulationRow
	CityClasses    []CityClassRow
	IncomeClasses  []IncomeClassRow
	SettlementTags []SettlementTagRow
	Report         Report
}

// Table is one table-shaped record stream handed to the loader.
type Table struct {
	Name      string
	Columns   []string
	Rows      [][]any
	DependsOn string // empty for the primary table
}

// Tables returns the dataset as loader input in dependency order:
// locations first, then the attribute tables that reference it.
func (d *Dataset) Tables() []Table {
	locations := Table{
		Name:    TableLocations,
		Columns: []string{"psgc_code", "name", "level_code", "parent_psgc", "correspondence_code", "status", "old_names"},
		Rows:    make([][]any, 0, len(d.Locations)),
	}
	for _, r := range d.Locations {
		locations.Rows = append(locations.Rows, []any{
			r.Code, r.Name, r.LevelCode, r.ParentCode, r.CorrespondenceCode, r.Status, r.OldNames,
		})
	}

	population := Table{
		Name:      TablePopulation,
		Columns:   []string{"psgc_code", "reference_year", "population", "source"},
		Rows:      make([][]any, 0, len(d.Population)),
		DependsOn: TableLocations,
	}
	for _, r := range d.Population {
		population.Rows = append(population.Rows, []any{r.Code, r.ReferenceYear, r.Population, r.Source})
	}

	cityClasses := Table{
		Name:      TableCityClasses,
		Columns:   []string{"psgc_code", "class_code", "source"},
		Rows:      make([][]any, 0, len(d.CityClasses)),
		DependsOn: TableLocations,
	}
	for _, r := range d.CityClasses {
		cityClasses.Rows = append(cityClasses.Rows, []any{r.Code, r.ClassCode, r.Source})
	}

	incomeClasses := Table{
		Name:      TableIncomeClasses,
		Columns:   []string{"psgc_code", "bracket_code", "source", "effective_year"},
		Rows:      make([][]any, 0, len(d.IncomeClasses)),
		DependsOn: TableLocations,
	}
	for _, r := range d.IncomeClasses {
		incomeClasses.Rows = append(incomeClasses.Rows, []any{r.Code, r.BracketCode, r.Source, r.EffectiveYear})
	}

	settlementTags := Table{
		Name:      TableSettlementTags,
		Columns:   []string{"psgc_code", "tag_code", "source", "reference_year"},
		Rows:      make([][]any, 0, len(d.SettlementTags)),
		DependsOn: TableLocations,
	}
	for _, r := range d.SettlementTags {
		settlementTags.Rows = append(settlementTags.Rows, []any{r.Code, r.TagCode, r.Source, r.ReferenceYear})
	}

	return []Table{locations, population, cityClasses, incomeClasses, settlementTags}
}
