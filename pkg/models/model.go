// Package models defines the document model shared by the extractors and
// validators: contexts, units, facts and calculation relationships.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Context groups a reporting entity with a period and optional dimensional
// scenario. Facts reference contexts by id.
type Context struct {
	ID          string       `json:"id"`
	Entity      string       `json:"entity"` // "scheme:identifier", scheme optional
	PeriodStart *time.Time   `json:"period_start,omitempty"`
	PeriodEnd   *time.Time   `json:"period_end,omitempty"`
	Instant     *time.Time   `json:"instant,omitempty"`
	Scenario    ScenarioData `json:"scenario,omitempty"`
}

// ScenarioData is the ordered list of flattened scenario segments, one map
// per child of the scenario element, in document order.
type ScenarioData []Segment

// Segment is a flattened scenario child: local tag names and "tag@attr"
// keys map to text/attribute values, and explicit members contribute a
// dimension name -> member value pair.
type Segment map[string]string

// IsInstant reports whether the context carries an instant period.
func (c *Context) IsInstant() bool {
	return c.Instant != nil
}

// IsDuration reports whether the context carries a start/end period.
func (c *Context) IsDuration() bool {
	return c.PeriodStart != nil && c.PeriodEnd != nil
}

// Unit is a measurement unit referenced by numeric facts: either a list of
// plain measures or a divide relationship between two measure lists.
type Unit struct {
	ID          string   `json:"id"`
	Measures    []string `json:"measures"`
	Divide      bool     `json:"divide,omitempty"`
	Numerator   []string `json:"numerator,omitempty"`
	Denominator []string `json:"denominator,omitempty"`
}

// Accuracy is a parsed decimals/precision attribute. The literal token
// "INF" maps to Infinite; any other non-integer token means the attribute
// is treated as absent (nil *Accuracy).
type Accuracy struct {
	Digits   int  `json:"digits"`
	Infinite bool `json:"infinite,omitempty"`
}

// Fact is one reported value tied to a concept, a context and, for numeric
// values, a unit. Value holds an int64, a decimal.Decimal or a string.
type Fact struct {
	Concept    string    `json:"concept"`
	Value      any       `json:"value"`
	ContextRef string    `json:"context_ref"`
	UnitRef    string    `json:"unit_ref,omitempty"`
	Decimals   *Accuracy `json:"decimals,omitempty"`
	Precision  *Accuracy `json:"precision,omitempty"`
}

// IsNumeric reports whether the fact value parsed as a number.
func (f *Fact) IsNumeric() bool {
	_, ok := NumericValue(f.Value)
	return ok
}

// NumericValue converts a fact value to a decimal if it is numeric.
func NumericValue(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case int64:
		return decimal.NewFromInt(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case float64:
		return decimal.NewFromFloat(x), true
	default:
		return decimal.Decimal{}, false
	}
}
