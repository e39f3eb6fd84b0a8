package psgc

// Geographic level codes as they appear in the source sheet.
const (
	LevelRegion       = "Reg"
	LevelProvince     = "Prov"
	LevelCity         = "City"
	LevelMunicipality = "Mun"
	LevelSubMun       = "SubMun"
	LevelBarangay     = "Bgy"
	LevelOther        = "Other"
)

var levelRanks = map[string]int{
	LevelRegion:       0,
	LevelProvince:     1,
	LevelCity:         2,
	LevelMunicipality: 2,
	LevelSubMun:       3,
	LevelBarangay:     4,
	LevelOther:        5,
}

// NormalizeLevel maps a blank level indicator to LevelOther. Rows with no
// geographic level in the publication are special entries (e.g. the SGU
// rows) that still belong in the hierarchy.
func NormalizeLevel(level string) string {
	if level == "" {
		return LevelOther
	}
	return level
}

// Rank orders levels from least to most specific for deterministic output.
// Unrecognized level strings rank alongside provinces, matching how the
// publication treats them.
func Rank(level string) int {
	if r, ok := levelRanks[level]; ok {
		return r
	}
	return levelRanks[LevelProvince]
}

// IsTopLevel reports whether entities at this level have no ancestor.
func IsTopLevel(level string) bool {
	return level == LevelRegion
}
