package calcnet

import (
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xbrl_engine/pkg/config"
)

const incomeStatementRole = "http://example.com/role/IncomeStatement"

const calcLinkbase = `<?xml version="1.0"?>
<linkbase xmlns="http://www.xbrl.org/2003/linkbase"
          xmlns:xlink="http://www.w3.org/1999/xlink">
  <roleRef xlink:type="simple" roleURI="http://example.com/role/IncomeStatement"
           xlink:href="schema.xsd#IncomeStatement"/>
  <calculationLink xlink:type="extended" xlink:role="http://example.com/role/IncomeStatement">
    <loc xlink:type="locator" xlink:label="ni" xlink:href="schema.xsd#NetIncome"/>
    <loc xlink:type="locator" xlink:label="rev" xlink:href="schema.xsd#Revenue"/>
    <loc xlink:type="locator" xlink:label="exp" xlink:href="schema.xsd#Expenses"/>
    <calculationArc xlink:type="arc" xlink:from="ni" xlink:to="rev" weight="1.0" order="1"/>
    <calculationArc xlink:type="arc" xlink:from="ni" xlink:to="exp" weight="-1.0" order="2"/>
  </calculationLink>
</linkbase>`

func loadValidator(t *testing.T) *Validator {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(calcLinkbase))
	v := New(config.Default(), nil)
	require.NoError(t, v.LoadLinkbase(doc))
	return v
}

func facts(values map[string]string) map[string]map[string]decimal.Decimal {
	byConcept := make(map[string]decimal.Decimal, len(values))
	for concept, raw := range values {
		byConcept[concept] = decimal.RequireFromString(raw)
	}
	return map[string]map[string]decimal.Decimal{"ctx1": byConcept}
}

func TestValidateCalculationsPass(t *testing.T) {
	v := loadValidator(t)
	errs := v.ValidateCalculations(facts(map[string]string{
		"NetIncome": "500", "Revenue": "1000", "Expenses": "500",
	}))
	assert.Empty(t, errs)
}

func TestValidateCalculationsWithinTolerance(t *testing.T) {
	v := loadValidator(t)
	errs := v.ValidateCalculations(facts(map[string]string{
		"NetIncome": "500.01", "Revenue": "1000", "Expenses": "500",
	}))
	assert.Empty(t, errs, "0.01 difference is inside tolerance")
}

func TestValidateCalculationsMismatch(t *testing.T) {
	v := loadValidator(t)
	errs := v.ValidateCalculations(facts(map[string]string{
		"NetIncome": "400", "Revenue": "1000", "Expenses": "500",
	}))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Calculation error in NetIncome")
	assert.Contains(t, errs[0], "expected 500")
	assert.Contains(t, errs[0], "got 400")
	assert.Contains(t, errs[0], "ctx1")
	assert.Contains(t, errs[0], "role IncomeStatement", "roleRef label should name the network")
	assert.Contains(t, errs[0], "Revenue, Expenses", "summed children should be listed")
}

func TestValidateCalculationsMissingChildren(t *testing.T) {
	v := loadValidator(t)
	errs := v.ValidateCalculations(facts(map[string]string{
		"NetIncome": "400", "Revenue": "1000",
	}))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Missing children for calculation of NetIncome")
	assert.Contains(t, errs[0], "Expenses")
	assert.False(t, strings.Contains(errs[0], "Calculation error"),
		"missing children must suppress the sum comparison")
}

func TestValidateCalculationsParentWithoutValue(t *testing.T) {
	v := loadValidator(t)
	errs := v.ValidateCalculations(facts(map[string]string{
		"Revenue": "1000", "Expenses": "500",
	}))
	assert.Empty(t, errs, "a parent with no reported value is not checked")
}

func TestNetworkOrdering(t *testing.T) {
	v := loadValidator(t)
	network := v.Network(incomeStatementRole)
	require.Contains(t, network, "NetIncome")

	rels := network["NetIncome"]
	require.Len(t, rels, 2)
	assert.Equal(t, "Revenue", rels[0].Child)
	assert.Equal(t, "Expenses", rels[1].Child)
	assert.True(t, rels[0].Weight.Equal(decimal.NewFromInt(1)))
	assert.True(t, rels[1].Weight.Equal(decimal.NewFromInt(-1)))
}

func TestRoots(t *testing.T) {
	v := loadValidator(t)
	assert.Equal(t, []string{"NetIncome"}, v.Roots(incomeStatementRole))
	assert.Equal(t, []string{"NetIncome"}, v.Roots(""), "empty role spans all networks")
	assert.Empty(t, v.Roots("http://example.com/role/Nothing"))
}

func TestChildren(t *testing.T) {
	v := loadValidator(t)

	rels := v.Children("NetIncome", "")
	require.Len(t, rels, 2)
	assert.Equal(t, "Revenue", rels[0].Child)

	rels = v.Children("NetIncome", incomeStatementRole)
	require.Len(t, rels, 2)

	assert.Empty(t, v.Children("NetIncome", "http://example.com/role/Nothing"))
	assert.Empty(t, v.Children("Revenue", ""))
}

func TestRoleRefLabelPreferredOverHref(t *testing.T) {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(`<?xml version="1.0"?>
<linkbase xmlns="http://www.xbrl.org/2003/linkbase" xmlns:xlink="http://www.w3.org/1999/xlink">
  <roleRef xlink:label="Income Statement" roleURI="http://example.com/role/IS"
           xlink:href="schema.xsd#IS"/>
  <calculationLink xlink:role="http://example.com/role/IS">
    <loc xlink:label="ni" xlink:href="s.xsd#NetIncome"/>
    <loc xlink:label="rev" xlink:href="s.xsd#Revenue"/>
    <calculationArc xlink:from="ni" xlink:to="rev" weight="1" order="1"/>
  </calculationLink>
</linkbase>`))
	v := New(config.Default(), nil)
	require.NoError(t, v.LoadLinkbase(doc))

	errs := v.ValidateCalculations(facts(map[string]string{
		"NetIncome": "999", "Revenue": "1000",
	}))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "role Income Statement")
}

func TestCyclicNetworkDoesNotHang(t *testing.T) {
	v := New(config.Default(), nil)
	one := decimal.NewFromInt(1)
	v.byParent["A"] = []Relationship{{Parent: "A", Child: "B", Weight: one, Order: 1, Role: "r"}}
	v.byParent["B"] = []Relationship{{Parent: "B", Child: "A", Weight: one, Order: 1, Role: "r"}}

	errs := v.ValidateCalculations(facts(map[string]string{"A": "1", "B": "1"}))
	assert.Empty(t, errs)
}

func TestArcWithUnresolvedLabelSkipped(t *testing.T) {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(`<?xml version="1.0"?>
<linkbase xmlns="http://www.xbrl.org/2003/linkbase" xmlns:xlink="http://www.w3.org/1999/xlink">
  <calculationLink xlink:role="r">
    <loc xlink:label="a" xlink:href="s.xsd#A"/>
    <calculationArc xlink:from="a" xlink:to="ghost" weight="1" order="1"/>
  </calculationLink>
</linkbase>`))
	v := New(config.Default(), nil)
	require.NoError(t, v.LoadLinkbase(doc))
	assert.Empty(t, v.Network("r"))
}
