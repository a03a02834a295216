package identity

import (
	"strings"
	"unicode"
)

// Variant names the rewrite that produced a matching candidate.
type Variant string

const (
	VariantExact   Variant = "exact"
	VariantPrefix  Variant = "prefix"
	VariantNumeric Variant = "numeric"
)

// DefaultPrefixes are tried when the resolver is built without WithPrefixes.
var DefaultPrefixes = []string{"R-"}

// Candidate is one lookup key derived from a raw identifier.
type Candidate struct {
	Value   string
	Variant Variant
}

// Clean trims the input, drops everything outside [A-Za-z0-9-] and upper-cases
// the rest.
func Clean(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(unicode.ToUpper(r))
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Candidates lists lookup keys for raw in priority order: the cleaned value,
// then prefix rewrites, then the longest digit run alone and re-prefixed.
// Duplicates are dropped, keeping the first occurrence.
func Candidates(raw string, prefixes []string) []Candidate {
	cleaned := Clean(raw)
	if cleaned == "" {
		return nil
	}

	var out []Candidate
	seen := make(map[string]struct{})
	add := func(v string, variant Variant) {
		if v == "" || v == "-" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, Candidate{Value: v, Variant: variant})
	}

	add(cleaned, VariantExact)

	normalized := normalizePrefixes(prefixes)
	for _, p := range normalized {
		letters := strings.TrimSuffix(p, "-")
		switch {
		case strings.HasPrefix(cleaned, p):
			add(strings.TrimPrefix(cleaned, p), VariantPrefix)
		case letters != p && letters != "" && strings.HasPrefix(cleaned, letters):
			rest := cleaned[len(letters):]
			add(p+rest, VariantPrefix)
			add(rest, VariantPrefix)
		default:
			add(p+cleaned, VariantPrefix)
		}
	}

	if digits := longestDigitRun(cleaned); digits != "" {
		add(digits, VariantNumeric)
		for _, p := range normalized {
			add(p+digits, VariantNumeric)
		}
	}
	return out
}

func normalizePrefixes(prefixes []string) []string {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = Clean(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// longestDigitRun returns the first longest run of ASCII digits in s.
func longestDigitRun(s string) string {
	best, start := "", -1
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] >= '0' && s[i] <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			if i-start > len(best) {
				best = s[start:i]
			}
			start = -1
		}
	}
	return best
}
