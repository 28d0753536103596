package catalog

import "strings"

// Match reports whether eventType matches a subscription pattern. Patterns
// are dot-separated, and "*" stands in for exactly one segment:
//
//	"invoice.created"  matches only invoice.created
//	"invoice.*"        matches invoice.created, invoice.paid, ...
//	"*"                matches every single-segment type; a bare "*" pattern
//	                   is special-cased to match everything
func Match(pattern, eventType string) bool {
	if pattern == "*" || pattern == eventType {
		return true
	}

	for {
		pSeg, pRest, pMore := strings.Cut(pattern, ".")
		eSeg, eRest, eMore := strings.Cut(eventType, ".")

		if pSeg != "*" && pSeg != eSeg {
			return false
		}
		if pMore != eMore {
			// One name ran out of segments before the other.
			return false
		}
		if !pMore {
			return true
		}
		pattern, eventType = pRest, eRest
	}
}

// MatchAny reports whether eventType matches at least one of patterns.
func MatchAny(patterns []string, eventType string) bool {
	for _, p := range patterns {
		if Match(p, eventType) {
			return true
		}
	}
	return false
}
