package psgc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLevel(t *testing.T) {
	assert.Equal(t, LevelOther, NormalizeLevel(""))
	assert.Equal(t, LevelBarangay, NormalizeLevel(LevelBarangay))
	assert.Equal(t, "SGU", NormalizeLevel("SGU"))
}

func TestRank(t *testing.T) {
	assert.Equal(t, 0, Rank(LevelRegion))
	assert.Equal(t, 1, Rank(LevelProvince))
	assert.Equal(t, 2, Rank(LevelCity))
	assert.Equal(t, 2, Rank(LevelMunicipality))
	assert.Equal(t, 3, Rank(LevelSubMun))
	assert.Equal(t, 4, Rank(LevelBarangay))
	assert.Equal(t, 5, Rank(LevelOther))
	// Unknown levels sort with provinces.
	assert.Equal(t, 1, Rank("SGU"))
}

func TestIsTopLevel(t *testing.T) {
	assert.True(t, IsTopLevel(LevelRegion))
	assert.False(t, IsTopLevel(LevelProvince))
	assert.False(t, IsTopLevel(LevelOther))
}
