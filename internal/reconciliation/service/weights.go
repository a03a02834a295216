package service

import (
	"slices"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"aidtrack/internal/reconciliation/models"
)

// Package describes the standard packaging of a commodity.
type Package struct {
	Commodity string
	Name      string
	Kg        decimal.Decimal
}

// DefaultPackages is the unit-weight table. A commodity matches a keyword when
// the keyword appears as a whole word of its name, so "Vegetable Oil" is oil
// but "Soil conditioner" is not.
var DefaultPackages = map[string]Package{
	"oil":   {Commodity: "oil", Name: "carton", Kg: decimal.NewFromInt(20)},
	"flour": {Commodity: "flour", Name: "bag", Kg: decimal.NewFromInt(25)},
	"beans": {Commodity: "beans", Name: "bag", Kg: decimal.NewFromInt(50)},
	"salt":  {Commodity: "salt", Name: "bag", Kg: decimal.NewFromInt(25)},
}

// keywordOrder fixes the match order so a name containing two keywords always
// resolves the same way. Keywords outside it are tried after, alphabetically.
var keywordOrder = []string{"oil", "flour", "beans", "salt"}

// Weights converts recorded quantities to kilograms.
type Weights struct {
	packages map[string]Package
	keywords []string
}

func NewWeights(packages map[string]Package) Weights {
	if packages == nil {
		packages = DefaultPackages
	}
	var keywords, extra []string
	for _, kw := range keywordOrder {
		if _, ok := packages[kw]; ok {
			keywords = append(keywords, kw)
		}
	}
	for kw := range packages {
		if !slices.Contains(keywordOrder, kw) {
			extra = append(extra, kw)
		}
	}
	slices.Sort(extra)
	return Weights{packages: packages, keywords: append(keywords, extra...)}
}

// Lookup returns the package of commodity. Unknown commodities are counted
// per unit at 1 kg each.
func (w Weights) Lookup(commodity string) Package {
	name := strings.ToLower(strings.TrimSpace(commodity))
	padded := words(name)
	for _, kw := range w.keywords {
		if strings.Contains(padded, words(kw)) {
			return w.packages[kw]
		}
	}
	return Package{Commodity: name, Name: "unit", Kg: decimal.NewFromInt(1)}
}

// words lower-cases s, splits it on anything that is not a letter or digit and
// folds a trailing plural "s", returning the words space-padded for whole-word
// containment checks.
func words(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, f := range fields {
		if len(f) > 3 {
			fields[i] = strings.TrimSuffix(f, "s")
		}
	}
	return " " + strings.Join(fields, " ") + " "
}

// Kg converts a total to kilograms. Rows recorded in kg count as-is.
func (w Weights) Kg(t models.Total) decimal.Decimal {
	if t.Unit == models.UnitKg {
		return t.Quantity
	}
	return t.Quantity.Mul(w.Lookup(t.Commodity).Kg)
}
