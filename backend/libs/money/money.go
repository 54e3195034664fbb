// Package money does decimal arithmetic for charging costs.
package money

import (
	"fmt"
	"math"

	"github.com/cockroachdb/apd/v3"
)

// CentsExponent is the exponent of the smallest currency unit used for costs.
const CentsExponent = -2

func newContext() *apd.Context {
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Rounding = apd.RoundFloor
	return ctx
}

func fromFloat(v float64) (*apd.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("money: invalid amount %v", v)
	}
	d, err := new(apd.Decimal).SetFloat64(v)
	if err != nil {
		return nil, fmt.Errorf("money: invalid amount %v: %w", v, err)
	}
	return d, nil
}

// FloorRound truncates v toward negative infinity at the given number of decimal places.
// Rounding is done on the shortest decimal representation of v, so 1.005 becomes 1.00
// and 12.5*0.3 computed elsewhere as 3.75 stays 3.75.
func FloorRound(v float64, places int32) (float64, error) {
	d, err := fromFloat(v)
	if err != nil {
		return 0, err
	}
	return quantize(d, -places)
}

// Cost returns kwh * pricePerKwh floored to whole cents. The product is computed in
// decimal so binary float error cannot push it below a cent boundary.
func Cost(kwh, pricePerKwh float64) (float64, error) {
	k, err := fromFloat(kwh)
	if err != nil {
		return 0, err
	}
	p, err := fromFloat(pricePerKwh)
	if err != nil {
		return 0, err
	}

	var product apd.Decimal
	if _, err := newContext().Mul(&product, k, p); err != nil {
		return 0, fmt.Errorf("money: multiply: %w", err)
	}
	return quantize(&product, CentsExponent)
}

func quantize(d *apd.Decimal, exp int32) (float64, error) {
	var out apd.Decimal
	if _, err := newContext().Quantize(&out, d, exp); err != nil {
		return 0, fmt.Errorf("money: round: %w", err)
	}
	f, err := out.Float64()
	if err != nil {
		return 0, fmt.Errorf("money: convert: %w", err)
	}
	return f, nil
}
