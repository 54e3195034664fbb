package money

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloorRound(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{name: "drops third decimal", in: 1.2378, want: 1.23},
		{name: "never rounds half up", in: 1.005, want: 1.00},
		{name: "keeps exact cents", in: 3.75, want: 3.75},
		{name: "integer", in: 3, want: 3},
		{name: "zero", in: 0, want: 0},
		{name: "negative floors away from zero", in: -1.231, want: -1.24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FloorRound(tt.in, 2)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCost(t *testing.T) {
	tests := []struct {
		name  string
		kwh   float64
		price float64
		want  float64
	}{
		{name: "product lands on a cent", kwh: 12.5, price: 0.30, want: 3.75},
		{name: "cached total", kwh: 10.0, price: 0.30, want: 3.00},
		{name: "fraction of a cent is dropped", kwh: 7.777, price: 0.25, want: 1.94},
		{name: "no energy", kwh: 0, price: 0.42, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cost(tt.kwh, tt.price)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRejectsNonFiniteAmounts(t *testing.T) {
	_, err := FloorRound(math.NaN(), 2)
	assert.Error(t, err)

	_, err = Cost(math.Inf(1), 0.3)
	assert.Error(t, err)
}
