package evaluation

import "strings"

// Verdict is the truth status of a statement.
type Verdict string

const (
	VerdictTrue         Verdict = "TRUE"
	VerdictMisleading   Verdict = "MISLEADING" // selectively true
	VerdictFalse        Verdict = "FALSE"      // a lie
	VerdictUnverifiable Verdict = "UNVERIFIABLE"
)

var verdictAliases = map[string]Verdict{
	"TRUE":            VerdictTrue,
	"TRUTH":           VerdictTrue,
	"MOSTLY_TRUE":     VerdictTrue,
	"ACCURATE":        VerdictTrue,
	"MISLEADING":      VerdictMisleading,
	"SELECTIVE_TRUTH": VerdictMisleading,
	"PARTIALLY_TRUE":  VerdictMisleading,
	"HALF_TRUE":       VerdictMisleading,
	"MIXTURE":         VerdictMisleading,
	"FALSE":           VerdictFalse,
	"LIE":             VerdictFalse,
	"MOSTLY_FALSE":    VerdictFalse,
	"PANTS_ON_FIRE":   VerdictFalse,
	"UNVERIFIABLE":    VerdictUnverifiable,
}

// ParseVerdict normalizes a model-supplied verdict. ok is false when the
// input was not a recognized kind; the result is then VerdictUnverifiable.
func ParseVerdict(s string) (v Verdict, ok bool) {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if v, ok := verdictAliases[key]; ok {
		return v, true
	}
	return VerdictUnverifiable, false
}

// Valid reports whether v is one of the four kinds.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictTrue, VerdictMisleading, VerdictFalse, VerdictUnverifiable:
		return true
	}
	return false
}

// Label is the display form.
func (v Verdict) Label() string {
	switch v {
	case VerdictTrue:
		return "Truth"
	case VerdictMisleading:
		return "Selective Truth"
	case VerdictFalse:
		return "Lie"
	default:
		return "Unverifiable"
	}
}
