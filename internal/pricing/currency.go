package pricing

import (
	"strings"

	"contractdesk/internal/types"
)

// NormalizeCurrencySet applies the owning form's rules to an edited currency
// set: codes are trimmed and upper-cased, blanks and duplicates are dropped
// (first occurrence wins), and a default that is no longer supported is
// replaced by the first remaining currency.
func NormalizeCurrencySet(set types.CurrencySet) types.CurrencySet {
	seen := make(map[types.CurrencyCode]struct{}, len(set.Supported))
	supported := make([]types.CurrencyCode, 0, len(set.Supported))
	for _, code := range set.Supported {
		c := normalizeCode(code)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		supported = append(supported, c)
	}

	out := types.CurrencySet{
		Supported: supported,
		Default:   normalizeCode(set.Default),
	}
	out.Default = out.EffectiveDefault()
	return out
}

func normalizeCode(code types.CurrencyCode) types.CurrencyCode {
	return types.CurrencyCode(strings.ToUpper(strings.TrimSpace(string(code))))
}

// AddedCurrencies returns the codes present in next but not in prev, in the
// order of next.
func AddedCurrencies(prev, next types.CurrencySet) []types.CurrencyCode {
	var added []types.CurrencyCode
	for _, code := range next.Supported {
		if !prev.Contains(code) {
			added = append(added, code)
		}
	}
	return added
}

// RemovedCurrencies returns the codes present in prev but not in next, in the
// order of prev.
func RemovedCurrencies(prev, next types.CurrencySet) []types.CurrencyCode {
	var removed []types.CurrencyCode
	for _, code := range prev.Supported {
		if !next.Contains(code) {
			removed = append(removed, code)
		}
	}
	return removed
}
