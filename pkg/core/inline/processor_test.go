package inline

import (
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"xbrl_engine/pkg/config"
)

func testLogger() *zap.Logger { return zap.NewNop() }

const inlineDocument = `<?xml version="1.0"?>
<html xmlns="http://www.w3.org/1999/xhtml"
      xmlns:ix="http://www.xbrl.org/2013/inlineXBRL"
      xmlns:ixt="http://www.xbrl.org/inlineXBRL/transformation/2020-02-12"
      xmlns:xbrli="http://www.xbrl.org/2003/instance">
<head><title>Annual Report</title></head>
<body>
  <div style="display:none">
    <ix:header>
      <ix:hidden>
        <ix:nonNumeric name="dei:EntityRegistrantName" contextRef="c1">Test Corp</ix:nonNumeric>
      </ix:hidden>
      <ix:resources>
        <xbrli:context id="c1">
          <xbrli:entity>
            <xbrli:identifier scheme="http://www.sec.gov/CIK">0000000001</xbrli:identifier>
          </xbrli:entity>
          <xbrli:period>
            <xbrli:startDate>2024-01-01</xbrli:startDate>
            <xbrli:endDate>2024-12-31</xbrli:endDate>
          </xbrli:period>
        </xbrli:context>
        <xbrli:unit id="usd">
          <xbrli:measure>iso4217:USD</xbrli:measure>
        </xbrli:unit>
      </ix:resources>
    </ix:header>
  </div>
  <p>Total revenue was
    <ix:nonFraction name="us-gaap:Revenues" contextRef="c1" unitRef="usd"
        format="ixt:numdotdecimal" scale="6" decimals="-6">386,017</ix:nonFraction>
    for the year.</p>
  <p>Loss of
    <ix:nonFraction name="us-gaap:NetIncomeLoss" contextRef="c1" unitRef="usd"
        format="ixt:numdotdecimal">(1,234.56)</ix:nonFraction>.</p>
</body>
</html>`

func loadInlineFixture(t *testing.T, xml string) *Processor {
	t.Helper()
	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	if err := doc.ReadFromString(xml); err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}
	p := New(config.Default(), nil)
	if err := p.LoadInline(doc); err != nil {
		t.Fatalf("LoadInline: %v", err)
	}
	return p
}

func TestLoadInlineHiddenFirst(t *testing.T) {
	p := loadInlineFixture(t, inlineDocument)

	if len(p.Facts) != 3 {
		t.Fatalf("expected 3 facts (hidden not duplicated), got %d", len(p.Facts))
	}
	if p.Facts[0].Concept != "dei:EntityRegistrantName" {
		t.Errorf("hidden facts must come first, got %q", p.Facts[0].Concept)
	}
	if v, ok := p.Facts[0].Value.(string); !ok || v != "Test Corp" {
		t.Errorf("hidden fact value = %v", p.Facts[0].Value)
	}

	if _, ok := p.Contexts["c1"]; !ok {
		t.Error("header context not extracted")
	}
	if _, ok := p.Units["usd"]; !ok {
		t.Error("header unit not extracted")
	}
}

func TestLoadInlineScaledValue(t *testing.T) {
	p := loadInlineFixture(t, inlineDocument)

	var revenue any
	for _, f := range p.Facts {
		if f.Concept == "us-gaap:Revenues" {
			revenue = f.Value
		}
	}
	v, ok := revenue.(int64)
	if !ok {
		t.Fatalf("revenue type %T, want int64", revenue)
	}
	if v != 386017000000 {
		t.Errorf("revenue = %d, want exact 386017000000", v)
	}
}

func TestLoadInlineParenthesizedNegative(t *testing.T) {
	p := loadInlineFixture(t, inlineDocument)

	for _, f := range p.Facts {
		if f.Concept != "us-gaap:NetIncomeLoss" {
			continue
		}
		d, ok := f.Value.(decimal.Decimal)
		if !ok {
			t.Fatalf("loss type %T, want decimal", f.Value)
		}
		if !d.Equal(decimal.RequireFromString("-1234.56")) {
			t.Errorf("loss = %s, want -1234.56", d)
		}
		return
	}
	t.Fatal("us-gaap:NetIncomeLoss not extracted")
}

func TestSignAttributeDoesNotStackOnParentheses(t *testing.T) {
	p := loadInlineFixture(t, `<?xml version="1.0"?>
<html xmlns="http://www.w3.org/1999/xhtml"
      xmlns:ix="http://www.xbrl.org/2013/inlineXBRL"
      xmlns:xbrli="http://www.xbrl.org/2003/instance">
<body>
  <ix:hidden>
    <xbrli:context id="c1">
      <xbrli:entity>
        <xbrli:identifier scheme="s">E</xbrli:identifier>
      </xbrli:entity>
      <xbrli:period><xbrli:instant>2024-12-31</xbrli:instant></xbrli:period>
    </xbrli:context>
  </ix:hidden>
  <ix:nonFraction name="us-gaap:Charge" contextRef="c1" sign="-"
      format="ixt:numdotdecimal">(1,234.56)</ix:nonFraction>
  <ix:nonFraction name="us-gaap:Plain" contextRef="c1" sign="-"
      format="ixt:numdotdecimal">1,234.56</ix:nonFraction>
</body>
</html>`)

	values := make(map[string]decimal.Decimal)
	for _, f := range p.Facts {
		d, ok := f.Value.(decimal.Decimal)
		if !ok {
			t.Fatalf("%s value = %v (%T), want decimal", f.Concept, f.Value, f.Value)
		}
		values[f.Concept] = d
	}
	want := decimal.RequireFromString("-1234.56")
	if !values["us-gaap:Charge"].Equal(want) {
		t.Errorf("parenthesized value with sign = %s, want -1234.56", values["us-gaap:Charge"])
	}
	if !values["us-gaap:Plain"].Equal(want) {
		t.Errorf("plain value with sign = %s, want -1234.56", values["us-gaap:Plain"])
	}
}

func TestApplyTransform(t *testing.T) {
	cases := []struct {
		value, format, want string
	}{
		{"1,234.56", "ixt:numdotdecimal", "1234.56"},
		{"1.234,56", "ixt:numcommadot", "1234.56"},
		{"$1,234.56", "numdotdecimal", "1234.56"},
		{"€1.234,56", "numcommadot", "1234.56"},
		{"(1,234.56)", "ixt:numdotdecimal", "-1234.56"},
		{"(500)", "whatever", "-500"},
		{"12.5%", "ixt:numdotdecimal", "12.5"},
		{"  42  ", "unknownformat", "42"},
	}
	for _, c := range cases {
		if got := applyTransform(c.value, c.format); got != c.want {
			t.Errorf("applyTransform(%q, %q) = %q, want %q", c.value, c.format, got, c.want)
		}
	}
}

func TestApplyScaling(t *testing.T) {
	log := testLogger()
	cases := []struct {
		value, scale, want string
	}{
		{"386017", "6", "386017000000"},
		{"1.5", "3", "1500"},
		{"25", "-2", "0.25"},
		{"—", "3", "0"},
		{"n/a", "6", "0"},
		{"", "2", "0"},
		{"five", "3", "5000"},
		{"Ten", "0", "10"},
	}
	for _, c := range cases {
		if got := applyScaling(c.value, c.scale, log); got != c.want {
			t.Errorf("applyScaling(%q, %q) = %q, want %q", c.value, c.scale, got, c.want)
		}
	}
}

func TestApplyScalingNeverFails(t *testing.T) {
	log := testLogger()
	if got := applyScaling("not a number", "3", log); got != "not a number" {
		t.Errorf("unparseable value should pass through, got %q", got)
	}
	if got := applyScaling("100", "abc", log); got != "100" {
		t.Errorf("unparseable scale should pass through, got %q", got)
	}
}

func TestFlattenTextOrder(t *testing.T) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(`<v>Leading <b>bold</b> trailing</v>`); err != nil {
		t.Fatal(err)
	}
	// The child's tail text lands before the child's own content.
	if got := flattenText(doc.Root()); got != "Leading trailing bold" {
		t.Errorf("flattenText = %q", got)
	}
}

func TestFlattenTextNested(t *testing.T) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(`<v>  a  <b> b <i>c</i> d </b> e </v>`); err != nil {
		t.Fatal(err)
	}
	got := flattenText(doc.Root())
	if strings.Contains(got, "  ") || got != "a e b d c" {
		t.Errorf("flattenText = %q", got)
	}
}
