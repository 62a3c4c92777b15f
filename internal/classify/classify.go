package classify

import (
	"strings"

	"vnmarket/internal/provider"
)

// AliasSet answers whether an upper-cased symbol is a known fund alias.
// The fund registry implements it.
type AliasSet interface {
	Contains(alias string) bool
}

// indexAliases maps accepted index spellings to the provider's index code.
// Keys are upper-cased.
var indexAliases = map[string]string{
	"VNINDEX":     "VNINDEX",
	"VN-INDEX":    "VNINDEX",
	"VN30":        "VN30",
	"HNX":         "HNXIndex",
	"HNXINDEX":    "HNXIndex",
	"HNX-INDEX":   "HNXIndex",
	"HNX30":       "HNX30",
	"UPCOM":       "HNXUpcomIndex",
	"UPCOMINDEX":  "HNXUpcomIndex",
	"UPCOM-INDEX": "HNXUpcomIndex",
}

// Gold symbols served by the bullion source. VN.GOLD is quoted per tael
// (lượng), VN.GOLD.C per chỉ (a tenth of a tael).
const (
	GoldTael = "VN.GOLD"
	GoldChi  = "VN.GOLD.C"
)

// Normalize trims and upper-cases a symbol.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// IsGold reports whether symbol follows the bullion naming pattern.
func IsGold(symbol string) bool {
	s := Normalize(symbol)
	switch s {
	case "GOLD", "SJC":
		return true
	}
	return strings.HasPrefix(s, GoldTael) || strings.HasPrefix(s, "SJC")
}

// IndexCode maps an index alias to the provider's index code.
func IndexCode(symbol string) (string, bool) {
	code, ok := indexAliases[Normalize(symbol)]
	return code, ok
}

// IsIndex reports whether symbol names a market index: an explicit alias, a
// literal VN30/HNX30, or anything carrying the INDEX marker.
func IsIndex(symbol string) bool {
	s := Normalize(symbol)
	if _, ok := indexAliases[s]; ok {
		return true
	}
	return s == "VN30" || s == "HNX30" || strings.Contains(s, "INDEX")
}

// Classifier derives the asset type of a symbol.
// Rules, first match wins:
//   - gold naming pattern -> Gold
//   - index alias, literal index ticker or INDEX marker -> Index
//   - upper-cased symbol present in the fund alias set -> Fund
//   - otherwise -> Stock
//
// Gold and Index do not depend on the registry, so they are recognized even
// before the first fund refresh.
type Classifier struct {
	Funds AliasSet
}

func New(funds AliasSet) *Classifier { return &Classifier{Funds: funds} }

func (c *Classifier) Classify(symbol string) provider.AssetType {
	if IsGold(symbol) {
		return provider.Gold
	}
	if IsIndex(symbol) {
		return provider.Index
	}
	if c.Funds != nil && c.Funds.Contains(Normalize(symbol)) {
		return provider.Fund
	}
	return provider.Stock
}
