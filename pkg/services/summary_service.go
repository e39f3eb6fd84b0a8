package services

import (
	"sort"

	"github.com/psgc-data/psgc-engine/pkg/models"
	"github.com/psgc-data/psgc-engine/pkg/psgc"
)

// Summary aggregates a partitioned dataset for reporting.
type Summary struct {
	TotalLocations    int
	LevelCounts       map[string]int
	PopulationByLevel map[string]int64
	CityClassCounts   map[string]int
	IncomeClassCounts map[string]int
	UrbanRuralCounts  map[string]int
	TopProvinces      []ProvincePopulation
}

// ProvincePopulation pairs a province with its population figure.
type ProvincePopulation struct {
	Code       string
	Name       string
	Population int64
}

// Summarize computes per-level counts, population sums, attribute
// distributions, and the top provinces by population.
func Summarize(ds *models.Dataset, topN int) *Summary {
	s := &Summary{
		TotalLocations:    len(ds.Locations),
		LevelCounts:       make(map[string]int),
		PopulationByLevel: make(map[string]int64),
		CityClassCounts:   make(map[string]int),
		IncomeClassCounts: make(map[string]int),
		UrbanRuralCounts:  make(map[string]int),
	}

	populationByCode := make(map[string]int64, len(ds.Population))
	for _, row := range ds.Population {
		populationByCode[row.Code] = row.Population
	}

	for _, row := range ds.Locations {
		s.LevelCounts[row.LevelCode]++
		s.PopulationByLevel[row.LevelCode] += populationByCode[row.Code]
		if row.LevelCode == psgc.LevelProvince {
			s.TopProvinces = append(s.TopProvinces, ProvincePopulation{
				Code:       row.Code,
				Name:       row.Name,
				Population: populationByCode[row.Code],
			})
		}
	}

	sort.SliceStable(s.TopProvinces, func(i, j int) bool {
		return s.TopProvinces[i].Population > s.TopProvinces[j].Population
	})
	if topN > 0 && len(s.TopProvinces) > topN {
		s.TopProvinces = s.TopProvinces[:topN]
	}

	for _, row := range ds.CityClasses {
		s.CityClassCounts[row.ClassCode]++
	}
	for _, row := range ds.IncomeClasses {
		s.IncomeClassCounts[row.BracketCode]++
	}
	for _, row := range ds.SettlementTags {
		s.UrbanRuralCounts[row.TagCode]++
	}

	return s
}
