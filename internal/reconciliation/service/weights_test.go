package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"aidtrack/internal/reconciliation/models"
)

func TestWeightsLookup(t *testing.T) {
	w := NewWeights(nil)

	tests := []struct {
		commodity string
		want      string
		pkg       string
		kg        int64
	}{
		{commodity: "Vegetable Oil", want: "oil", pkg: "carton", kg: 20},
		{commodity: "cooking oils", want: "oil", pkg: "carton", kg: 20},
		{commodity: "Wheat-Flour", want: "flour", pkg: "bag", kg: 25},
		{commodity: "Red bean", want: "beans", pkg: "bag", kg: 50},
		{commodity: " SALT ", want: "salt", pkg: "bag", kg: 25},
		{commodity: "boiled maize", want: "boiled maize", pkg: "unit", kg: 1},
		{commodity: "Soil conditioner", want: "soil conditioner", pkg: "unit", kg: 1},
		{commodity: "saltpeter", want: "saltpeter", pkg: "unit", kg: 1},
	}
	for _, tt := range tests {
		t.Run(tt.commodity, func(t *testing.T) {
			got := w.Lookup(tt.commodity)
			assert.Equal(t, tt.want, got.Commodity)
			assert.Equal(t, tt.pkg, got.Name)
			assert.True(t, got.Kg.Equal(decimal.NewFromInt(tt.kg)), "kg = %s", got.Kg)
		})
	}
}

func TestWeightsCustomTableIsDeterministic(t *testing.T) {
	w := NewWeights(map[string]Package{
		"rice":      {Commodity: "rice", Name: "bag", Kg: decimal.NewFromInt(50)},
		"rice bran": {Commodity: "rice bran", Name: "sack", Kg: decimal.NewFromInt(40)},
		"oil":       {Commodity: "oil", Name: "tin", Kg: decimal.NewFromInt(4)},
	})

	// Listed keywords win, then the rest alphabetically.
	assert.Equal(t, "oil", w.Lookup("rice bran oil").Commodity)
	assert.Equal(t, "rice", w.Lookup("rice bran").Commodity)
	assert.Equal(t, "unit", w.Lookup("brown bread").Name)
}

func TestWeightsKg(t *testing.T) {
	w := NewWeights(nil)

	kg := w.Kg(models.Total{Commodity: "oil", Quantity: decimal.NewFromInt(3), Unit: models.UnitPackage})
	assert.True(t, kg.Equal(decimal.NewFromInt(60)))

	kg = w.Kg(models.Total{Commodity: "oil", Quantity: decimal.RequireFromString("12.5"), Unit: models.UnitKg})
	assert.True(t, kg.Equal(decimal.RequireFromString("12.5")))
}
