// Package export serializes an extracted fact model to JSON and CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"xbrl_engine/pkg/core/instance"
	"xbrl_engine/pkg/models"
)

// Document is the JSON export envelope. Every export run carries its own
// id and timestamp so downstream consumers can distinguish runs over the
// same filing.
type Document struct {
	RunID       string                 `json:"run_id"`
	GeneratedAt time.Time              `json:"generated_at"`
	Contexts    map[string]ContextJSON `json:"contexts"`
	Units       map[string]UnitJSON    `json:"units"`
	Facts       []FactJSON             `json:"facts"`
}

type ContextJSON struct {
	Entity      string              `json:"entity"`
	PeriodStart string              `json:"period_start,omitempty"`
	PeriodEnd   string              `json:"period_end,omitempty"`
	Instant     string              `json:"instant,omitempty"`
	Scenario    models.ScenarioData `json:"scenario,omitempty"`
}

type UnitJSON struct {
	Measures    []string `json:"measures"`
	Divide      bool     `json:"divide,omitempty"`
	Numerator   []string `json:"numerator,omitempty"`
	Denominator []string `json:"denominator,omitempty"`
}

type FactJSON struct {
	Concept    string `json:"concept"`
	Value      any    `json:"value"`
	ContextRef string `json:"context_ref"`
	UnitRef    string `json:"unit_ref,omitempty"`
	Decimals   string `json:"decimals,omitempty"`
	Precision  string `json:"precision,omitempty"`
}

// WriteJSON serializes the full model as an indented JSON document.
func WriteJSON(w io.Writer, p *instance.Processor) error {
	doc := Document{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Contexts:    make(map[string]ContextJSON, len(p.Contexts)),
		Units:       make(map[string]UnitJSON, len(p.Units)),
		Facts:       make([]FactJSON, 0, len(p.Facts)),
	}

	for id, ctx := range p.Contexts {
		doc.Contexts[id] = ContextJSON{
			Entity:      ctx.Entity,
			PeriodStart: formatDate(ctx.PeriodStart),
			PeriodEnd:   formatDate(ctx.PeriodEnd),
			Instant:     formatDate(ctx.Instant),
			Scenario:    ctx.Scenario,
		}
	}
	for id, unit := range p.Units {
		doc.Units[id] = UnitJSON{
			Measures:    unit.Measures,
			Divide:      unit.Divide,
			Numerator:   unit.Numerator,
			Denominator: unit.Denominator,
		}
	}
	for _, fact := range p.Facts {
		doc.Facts = append(doc.Facts, FactJSON{
			Concept:    fact.Concept,
			Value:      exportValue(fact.Value),
			ContextRef: fact.ContextRef,
			UnitRef:    fact.UnitRef,
			Decimals:   formatAccuracy(fact.Decimals),
			Precision:  formatAccuracy(fact.Precision),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteCSV writes one row per fact with its context's entity and period
// columns flattened in.
func WriteCSV(w io.Writer, p *instance.Processor) error {
	cw := csv.NewWriter(w)
	header := []string{
		"concept", "value", "context", "entity",
		"period_start", "period_end", "instant", "unit", "decimals",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	facts := append([]*models.Fact(nil), p.Facts...)
	sort.SliceStable(facts, func(i, j int) bool {
		if facts[i].ContextRef != facts[j].ContextRef {
			return facts[i].ContextRef < facts[j].ContextRef
		}
		return facts[i].Concept < facts[j].Concept
	})

	for _, fact := range facts {
		var entity, start, end, instant string
		if ctx, ok := p.Contexts[fact.ContextRef]; ok {
			entity = ctx.Entity
			start = formatDate(ctx.PeriodStart)
			end = formatDate(ctx.PeriodEnd)
			instant = formatDate(ctx.Instant)
		}
		row := []string{
			fact.Concept,
			fmt.Sprintf("%v", exportValue(fact.Value)),
			fact.ContextRef,
			entity,
			start, end, instant,
			fact.UnitRef,
			formatAccuracy(fact.Decimals),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// exportValue renders decimals as strings so exact magnitudes survive
// serialization.
func exportValue(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return d.String()
	}
	return v
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func formatAccuracy(a *models.Accuracy) string {
	switch {
	case a == nil:
		return ""
	case a.Infinite:
		return "INF"
	default:
		return fmt.Sprintf("%d", a.Digits)
	}
}
