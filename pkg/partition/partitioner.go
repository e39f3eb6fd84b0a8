// Package partition transforms the unified source rows into the primary
// hierarchy table plus the sparse attribute tables, enforcing the batch
// integrity rules along the way.
package partition

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/psgc-data/psgc-engine/pkg/apperrors"
	"github.com/psgc-data/psgc-engine/pkg/models"
	"github.com/psgc-data/psgc-engine/pkg/psgc"
)

// Attribute provenance labels recorded alongside the sparse tables.
const (
	IncomeSource        = "DOF DO 074-2024"
	SettlementSource    = "2020 CPH"
	SettlementReference = 2020
)

// Options controls batch strictness and numeric validation.
type Options struct {
	// Strict fails the batch on duplicate codes instead of keeping the
	// first occurrence and reporting the rest.
	Strict bool
	// OrphanTolerance is the number of unresolvable non-region entities
	// the batch may carry before failing. Zero fails on the first orphan.
	OrphanTolerance int
	// PopulationCeiling flags (but does not fail) population values above
	// this bound. Zero disables the check.
	PopulationCeiling int64
	// ReferenceYear and PopulationSource annotate the population table.
	ReferenceYear    int
	PopulationSource string
}

// DefaultOptions matches the publication defaults: fail-fast on integrity
// defects, 2024 census population figures.
func DefaultOptions() Options {
	return Options{
		Strict:            true,
		OrphanTolerance:   0,
		PopulationCeiling: 300_000_000,
		ReferenceYear:     2024,
		PopulationSource:  "2024 POPCEN (PSA)",
	}
}

// Partitioner builds a Dataset from source rows. It is pure: all findings
// come back in the dataset's report or as structured errors, never logged.
type Partitioner struct {
	opts Options
}

// New creates a Partitioner with the given options.
func New(opts Options) *Partitioner {
	return &Partitioner{opts: opts}
}

// resolvedRow is a source row with its canonical code attached.
type resolvedRow struct {
	src       models.SourceRow
	code      string
	level     string
	truncated bool
}

// Build partitions the batch. Rows without an identifier (footnotes, blank
// cells) are skipped. Duplicate codes keep the first occurrence and are
// reported; in strict mode they fail the batch. Non-region rows whose
// parent cannot be resolved are orphans and fail the batch beyond the
// configured tolerance.
func (p *Partitioner) Build(rows []models.SourceRow) (*models.Dataset, error) {
	resolved := make([]resolvedRow, 0, len(rows))
	for _, src := range rows {
		code, ok, truncated := psgc.Normalize(src.Code)
		if !ok {
			continue
		}
		resolved = append(resolved, resolvedRow{
			src:       src,
			code:      code,
			level:     psgc.NormalizeLevel(src.LevelCode),
			truncated: truncated,
		})
	}

	ds := &models.Dataset{}
	for _, r := range resolved {
		if r.truncated {
			ds.Report.Warnings = append(ds.Report.Warnings, models.Warning{
				Code:    r.code,
				Column:  "psgc_code",
				Message: fmt.Sprintf("identifier %v exceeded %d digits; trailing digits kept", r.src.Code, psgc.CodeWidth),
			})
		}
	}

	// First occurrence wins; later rows with the same code are reported.
	unique := make([]resolvedRow, 0, len(resolved))
	seen := make(map[string]struct{}, len(resolved))
	for _, r := range resolved {
		if _, dup := seen[r.code]; dup {
			ds.Report.Duplicates = append(ds.Report.Duplicates, r.code)
			continue
		}
		seen[r.code] = struct{}{}
		unique = append(unique, r)
	}
	if p.opts.Strict && len(ds.Report.Duplicates) > 0 {
		return nil, &apperrors.BatchError{Kind: apperrors.ErrDuplicateCode, Details: ds.Report.Duplicates}
	}

	members := make(psgc.CodeSet, len(unique))
	for _, r := range unique {
		members[r.code] = struct{}{}
	}

	for _, r := range unique {
		row := models.LocationRow{
			Code:               r.code,
			Name:               strings.TrimSpace(r.src.Name),
			LevelCode:          r.level,
			CorrespondenceCode: r.src.CorrespondenceCode,
			Status:             r.src.Status,
			OldNames:           strings.TrimSpace(r.src.OldNames),
		}
		if parent, ok := psgc.ResolveParent(r.code, r.level, members); ok {
			row.ParentCode = &parent
		} else if !psgc.IsTopLevel(r.level) {
			ds.Report.Orphans = append(ds.Report.Orphans, r.code)
		}
		ds.Locations = append(ds.Locations, row)
	}
	if len(ds.Report.Orphans) > p.opts.OrphanTolerance {
		return nil, &apperrors.BatchError{Kind: apperrors.ErrOrphanLimit, Details: ds.Report.Orphans}
	}

	sort.SliceStable(ds.Locations, func(i, j int) bool {
		ri, rj := psgc.Rank(ds.Locations[i].LevelCode), psgc.Rank(ds.Locations[j].LevelCode)
		if ri != rj {
			return ri < rj
		}
		return ds.Locations[i].Code < ds.Locations[j].Code
	})

	if err := p.buildAttributes(ds, unique); err != nil {
		return nil, err
	}
	return ds, nil
}

func (p *Partitioner) buildAttributes(ds *models.Dataset, rows []resolvedRow) error {
	type pair struct{ code, value string }
	seenClass := make(map[pair]struct{})
	seenIncome := make(map[pair]struct{})
	seenTag := make(map[pair]struct{})

	for _, r := range rows {
		population, present, err := p.parsePopulation(r)
		if err != nil {
			return err
		}
		if present {
			if p.opts.PopulationCeiling > 0 && population > p.opts.PopulationCeiling {
				ds.Report.Warnings = append(ds.Report.Warnings, models.Warning{
					Code:    r.code,
					Column:  "population",
					Message: fmt.Sprintf("population %d exceeds sanity ceiling %d", population, p.opts.PopulationCeiling),
				})
			}
			ds.Population = append(ds.Population, models.PopulationRow{
				Code:          r.code,
				ReferenceYear: p.opts.ReferenceYear,
				Population:    population,
				Source:        p.opts.PopulationSource,
			})
		}

		if v := strings.TrimSpace(r.src.CityClass); v != "" {
			if _, dup := seenClass[pair{r.code, v}]; !dup {
				seenClass[pair{r.code, v}] = struct{}{}
				ds.CityClasses = append(ds.CityClasses, models.CityClassRow{
					Code: r.code, ClassCode: v, Source: p.opts.PopulationSource,
				})
			}
		}
		if v := strings.TrimSpace(r.src.IncomeClass); v != "" {
			if _, dup := seenIncome[pair{r.code, v}]; !dup {
				seenIncome[pair{r.code, v}] = struct{}{}
				ds.IncomeClasses = append(ds.IncomeClasses, models.IncomeClassRow{
					Code: r.code, BracketCode: v, Source: IncomeSource, EffectiveYear: p.opts.ReferenceYear,
				})
			}
		}
		if v := strings.TrimSpace(r.src.UrbanRural); v != "" {
			if _, dup := seenTag[pair{r.code, v}]; !dup {
				seenTag[pair{r.code, v}] = struct{}{}
				ds.SettlementTags = append(ds.SettlementTags, models.SettlementTagRow{
					Code: r.code, TagCode: v, Source: SettlementSource, ReferenceYear: SettlementReference,
				})
			}
		}
	}

	sort.SliceStable(ds.Population, func(i, j int) bool { return ds.Population[i].Code < ds.Population[j].Code })
	sort.SliceStable(ds.CityClasses, func(i, j int) bool { return ds.CityClasses[i].Code < ds.CityClasses[j].Code })
	sort.SliceStable(ds.IncomeClasses, func(i, j int) bool { return ds.IncomeClasses[i].Code < ds.IncomeClasses[j].Code })
	sort.SliceStable(ds.SettlementTags, func(i, j int) bool { return ds.SettlementTags[i].Code < ds.SettlementTags[j].Code })
	return nil
}

// parsePopulation coerces the population cell. Absent cells are fine;
// anything present must be a non-negative number. Garbage fails the batch
// with the exact row identified.
func (p *Partitioner) parsePopulation(r resolvedRow) (int64, bool, error) {
	rowErr := func(value, reason string) error {
		return &apperrors.RowError{
			Code:     r.code,
			Column:   "population",
			RowIndex: r.src.Index,
			Value:    value,
			Reason:   reason,
		}
	}

	switch v := r.src.Population.(type) {
	case nil:
		return 0, false, nil
	case int:
		if v < 0 {
			return 0, false, rowErr(strconv.Itoa(v), "population is negative")
		}
		return int64(v), true, nil
	case int64:
		if v < 0 {
			return 0, false, rowErr(strconv.FormatInt(v, 10), "population is negative")
		}
		return v, true, nil
	case float64:
		if math.IsNaN(v) {
			return 0, false, nil
		}
		if math.IsInf(v, 0) {
			return 0, false, rowErr(strconv.FormatFloat(v, 'f', -1, 64), "population is not finite")
		}
		if v < 0 {
			return 0, false, rowErr(strconv.FormatFloat(v, 'f', -1, 64), "population is negative")
		}
		if v >= math.MaxInt64 {
			return 0, false, rowErr(strconv.FormatFloat(v, 'f', -1, 64), "population exceeds supported range")
		}
		return int64(math.Round(v)), true, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false, nil
		}
		cleaned := strings.ReplaceAll(strings.ReplaceAll(s, ",", ""), " ", "")
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false, rowErr(s, "population is not numeric")
		}
		// ParseFloat accepts "NaN" and "Inf" spellings; a NaN cell is the
		// source's marker for absent, anything infinite is garbage.
		if math.IsNaN(f) {
			return 0, false, nil
		}
		if math.IsInf(f, 0) {
			return 0, false, rowErr(s, "population is not finite")
		}
		if f < 0 {
			return 0, false, rowErr(s, "population is negative")
		}
		if f >= math.MaxInt64 {
			return 0, false, rowErr(s, "population exceeds supported range")
		}
		return int64(math.Round(f)), true, nil
	default:
		return 0, false, rowErr(fmt.Sprintf("%v", v), "population has unsupported type")
	}
}
