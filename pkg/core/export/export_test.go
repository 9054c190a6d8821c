package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"xbrl_engine/pkg/config"
	"xbrl_engine/pkg/core/instance"
	"xbrl_engine/pkg/models"
)

func sampleProcessor() *instance.Processor {
	p := instance.New(config.Default(), nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	p.Contexts["fy2024"] = &models.Context{
		ID: "fy2024", Entity: "http://test.com:TEST",
		PeriodStart: &start, PeriodEnd: &end,
	}
	p.Units["usd"] = &models.Unit{ID: "usd", Measures: []string{"iso4217:USD"}}
	p.Facts = []*models.Fact{
		{
			Concept: "test:Revenue", Value: decimal.RequireFromString("1000.50"),
			ContextRef: "fy2024", UnitRef: "usd",
			Decimals: &models.Accuracy{Digits: 2},
		},
		{
			Concept: "test:Notes", Value: "unaudited",
			ContextRef: "fy2024",
		},
	}
	return p
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleProcessor()); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var doc Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if doc.RunID == "" {
		t.Error("run_id missing")
	}
	if doc.GeneratedAt.IsZero() {
		t.Error("generated_at missing")
	}
	if doc.Contexts["fy2024"].Entity != "http://test.com:TEST" {
		t.Errorf("context entity = %q", doc.Contexts["fy2024"].Entity)
	}
	if len(doc.Facts) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(doc.Facts))
	}
	if doc.Facts[0].Value != "1000.5" {
		t.Errorf("decimal should export as string, got %v (%T)",
			doc.Facts[0].Value, doc.Facts[0].Value)
	}
	if doc.Facts[0].Decimals != "2" {
		t.Errorf("decimals = %q", doc.Facts[0].Decimals)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleProcessor()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("export is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "concept" {
		t.Errorf("header = %v", rows[0])
	}
	// Rows sort by context then concept, so Notes precedes Revenue.
	if rows[1][0] != "test:Notes" || rows[2][0] != "test:Revenue" {
		t.Errorf("row order: %v / %v", rows[1], rows[2])
	}
	if rows[2][1] != "1000.5" || rows[2][4] != "2024-01-01" || rows[2][5] != "2024-12-31" {
		t.Errorf("revenue row = %v", rows[2])
	}
}
