package model

import (
	"encoding/json"
	"math"
	"strconv"
)

// Float is an optional numeric cell. A missing value is never encoded as NaN.
type Float struct {
	Value float64
	Valid bool
}

// Some wraps a present value
func Some(v float64) Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Float{}
	}
	return Float{Value: v, Valid: true}
}

// None returns a missing value
func None() Float { return Float{} }

// Div divides a by b. The result is missing if either side is missing, if b
// is zero, or if the quotient is not finite.
func Div(a, b Float) Float {
	if !a.Valid || !b.Valid || b.Value == 0 {
		return Float{}
	}
	return Some(a.Value / b.Value)
}

// Sub returns a - b, missing if either side is missing.
func Sub(a, b Float) Float {
	if !a.Valid || !b.Valid {
		return Float{}
	}
	return Some(a.Value - b.Value)
}

// Add returns a + b. Adding to a missing value yields the other operand, so
// sums over collisions only go missing when every addend is missing.
func Add(a, b Float) Float {
	switch {
	case !a.Valid:
		return b
	case !b.Valid:
		return a
	}
	return Some(a.Value + b.Value)
}

// Or returns f when present, otherwise fallback.
func (f Float) Or(fallback Float) Float {
	if f.Valid {
		return f
	}
	return fallback
}

// String renders the value for tabular output; missing values render empty.
func (f Float) String() string {
	if !f.Valid {
		return ""
	}
	return strconv.FormatFloat(f.Value, 'g', -1, 64)
}

// Round returns the value rounded to the given number of decimals.
func (f Float) Round(decimals int) Float {
	if !f.Valid {
		return f
	}
	p := math.Pow(10, float64(decimals))
	return Some(math.Round(f.Value*p) / p)
}

// Ptr returns nil for a missing value, for database and JSON encoding.
func (f Float) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// FromPtr is the inverse of Ptr.
func FromPtr(p *float64) Float {
	if p == nil {
		return Float{}
	}
	return Some(*p)
}

func (f Float) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

func (f *Float) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = Float{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Some(v)
	return nil
}
