package psgc

// CodeSet is the membership set of all codes present in a batch. Parent
// resolution is a hash lookup against it, keeping the whole batch O(n).
type CodeSet map[string]struct{}

// NewCodeSet builds a membership set from the given codes.
func NewCodeSet(codes []string) CodeSet {
	set := make(CodeSet, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}

// Contains reports whether code is present in the set.
func (s CodeSet) Contains(code string) bool {
	_, ok := s[code]
	return ok
}

// CandidateAncestors derives the ordered list of possible parent codes for
// a code at the given level by zeroing positional segments, most specific
// ancestor first. A region has no ancestor and yields nil. Levels outside
// the known set behave like the publication's special rows: they attach to
// a province or region.
func CandidateAncestors(code, level string) []string {
	if len(code) != CodeWidth {
		return nil
	}

	region := code[:2] + "00000000"
	province := code[:4] + "000000"
	cityOrMun := code[:6] + "0000"
	subMun := code[:8] + "00"

	switch level {
	case LevelRegion:
		return nil
	case LevelProvince:
		return []string{region}
	case LevelCity, LevelMunicipality:
		return []string{province, region}
	case LevelSubMun:
		return []string{cityOrMun, province, region}
	case LevelBarangay:
		return []string{subMun, cityOrMun, province, region}
	default:
		return []string{province, region}
	}
}

// ResolveParent returns the most specific ancestor of code that exists in
// the membership set, skipping the code itself so an entity never becomes
// its own parent. ok is false when no candidate is present; an orphan
// signal the caller must account for, not silently accept.
func ResolveParent(code, level string, members CodeSet) (parent string, ok bool) {
	for _, candidate := range CandidateAncestors(code, level) {
		if candidate == code {
			continue
		}
		if members.Contains(candidate) {
			return candidate, true
		}
	}
	return "", false
}
