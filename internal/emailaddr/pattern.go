package emailaddr

// Pattern is the shape of a local part relative to the owner's name.
type Pattern string

// Pattern constants
const (
	PatternFirst          Pattern = "first"
	PatternLast           Pattern = "last"
	PatternFirstDotLast   Pattern = "first.last"
	PatternInitialDotLast Pattern = "f.last"
	PatternInitialLast    Pattern = "flast"
	PatternFirstLast      Pattern = "firstlast"
	PatternOther          Pattern = "other"
)

// IsSingleToken reports whether the pattern is a single name token with nothing joined to it.
func (p Pattern) IsSingleToken() bool {
	return p == PatternFirst || p == PatternLast
}

// ClassifyLocalPart matches local against the common corporate conventions built from
// first and last (both lowercase ASCII). last may be empty for single-name people.
func ClassifyLocalPart(local, first, last string) Pattern {
	if local == "" || first == "" {
		return PatternOther
	}
	if local == first {
		return PatternFirst
	}
	if last == "" {
		return PatternOther
	}
	initial := first[:1]
	switch local {
	case last:
		return PatternLast
	case first + "." + last:
		return PatternFirstDotLast
	case initial + "." + last:
		return PatternInitialDotLast
	case initial + last:
		return PatternInitialLast
	case first + last:
		return PatternFirstLast
	}
	return PatternOther
}
