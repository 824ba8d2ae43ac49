package models

import (
	"fmt"
	"sort"
)

// DefaultSymbols maps a category name to the continuous-futures roots
// downloaded when the configuration does not list symbols explicitly.
var DefaultSymbols = map[string][]string{
	"index":        {"@ES", "@NQ", "@YM", "@RTY", "@EMD", "@NKD"},
	"micro_index":  {"@MES", "@MNQ", "@MYM", "@M2K"},
	"energy":       {"@CL", "@NG", "@HO", "@RB", "@BZ"},
	"micro_energy": {"@MCL", "@MNG"},
	"metals":       {"@GC", "@SI", "@HG", "@PL", "@PA"},
	"micro_metals": {"@MGC", "@SIL", "@MHG"},
	"treasuries":   {"@ZB", "@ZN", "@ZF", "@ZT", "@UB", "@TN"},
	"grains":       {"@ZC", "@ZS", "@ZW", "@ZM", "@ZL", "@ZO", "@ZR"},
	"softs":        {"@KC", "@SB", "@CC", "@CT", "@OJ", "@LBR"},
	"meats":        {"@LE", "@HE", "@GF"},
	"currencies":   {"@6E", "@6J", "@6B", "@6A", "@6C", "@6S", "@6M", "@6N", "@DX"},
	"volatility":   {"@VX"},
	"crypto":       {"@BTC", "@ETH", "@MBT", "@MET"},
}

// AllSymbols returns every default symbol across all categories, sorted for
// deterministic processing order.
func AllSymbols() []string {
	var symbols []string
	for _, list := range DefaultSymbols {
		symbols = append(symbols, list...)
	}
	sort.Strings(symbols)
	return symbols
}

// SymbolsByCategory returns the default symbols for one category.
func SymbolsByCategory(category string) ([]string, error) {
	symbols, ok := DefaultSymbols[category]
	if !ok {
		categories := make([]string, 0, len(DefaultSymbols))
		for c := range DefaultSymbols {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		return nil, fmt.Errorf("unknown category %q (valid: %v)", category, categories)
	}
	out := make([]string, len(symbols))
	copy(out, symbols)
	sort.Strings(out)
	return out, nil
}

// Categories returns the known category names in sorted order.
func Categories() []string {
	categories := make([]string, 0, len(DefaultSymbols))
	for c := range DefaultSymbols {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories
}
