// Package taxonomy loads concept definitions from XML schema documents
// and validates facts, contexts and units against them.
package taxonomy

import (
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"xbrl_engine/pkg/config"
	"xbrl_engine/pkg/models"
)

// Concept is one element declaration mined from a taxonomy schema.
type Concept struct {
	Name              string
	Namespace         string
	Type              string
	SubstitutionGroup string
	PeriodType        string
	Balance           string
}

// Result carries the outcome of one validation call. Errors make the
// result invalid; warnings do not.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func (r *Result) addError(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validator holds the concept table and configured currency codes.
type Validator struct {
	concepts   map[string]Concept // keyed "namespace:Name"
	currencies map[string]bool
	log        *zap.Logger
}

// New builds an empty validator. Load schemas before validating concepts;
// context and unit checks work without any schema.
func New(cfg config.Config, log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{
		concepts:   make(map[string]Concept),
		currencies: cfg.CurrencySet(),
		log:        log,
	}
}

// ConceptCount reports how many concepts have been loaded.
func (v *Validator) ConceptCount() int { return len(v.concepts) }

// Concept looks up a concept by its qualified fact name. The prefix on a
// fact name rarely matches the schema's target namespace, so lookup
// falls back to the local name when the exact key misses.
func (v *Validator) Concept(name string) (Concept, bool) {
	if c, ok := v.concepts[name]; ok {
		return c, true
	}
	local := name
	if idx := strings.LastIndex(name, ":"); idx >= 0 {
		local = name[idx+1:]
	}
	for key, c := range v.concepts {
		if strings.HasSuffix(key, ":"+local) {
			return c, true
		}
	}
	return Concept{}, false
}

// LoadSchema mines element declarations from one schema document.
// Loading is additive across schema files.
func (v *Validator) LoadSchema(doc *etree.Document) error {
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("schema document has no root element")
	}
	targetNS := root.SelectAttrValue("targetNamespace", "")

	for _, el := range findLocal(root, "element") {
		name := attrByLocal(el, "name")
		if name == "" {
			continue
		}
		concept := Concept{
			Name:              name,
			Namespace:         targetNS,
			Type:              attrByLocal(el, "type"),
			SubstitutionGroup: attrByLocal(el, "substitutionGroup"),
			Balance:           attrByLocal(el, "balance"),
			PeriodType:        attrByLocal(el, "periodType"),
		}
		if concept.PeriodType == "" {
			concept.PeriodType = periodTypeFromDocs(el)
		}
		v.concepts[targetNS+":"+name] = concept
	}
	v.log.Debug("schema loaded",
		zap.String("targetNamespace", targetNS), zap.Int("concepts", len(v.concepts)))
	return nil
}

// periodTypeFromDocs mines the period type from annotation documentation
// text when it is not declared as an attribute. Matching is
// case-insensitive and accepts both "period type" and the attribute-style
// "periodType" token.
func periodTypeFromDocs(el *etree.Element) string {
	for _, docEl := range findLocal(el, "documentation") {
		text := strings.ToLower(docEl.Text())
		if !strings.Contains(text, "period type") && !strings.Contains(text, "periodtype") {
			continue
		}
		if strings.Contains(text, "instant") {
			return "instant"
		}
		if strings.Contains(text, "duration") {
			return "duration"
		}
	}
	return ""
}

// ValidateConcept checks a fact value against its concept declaration
// and the period shape of its context. Unknown concepts and unknown
// types produce warnings only.
func (v *Validator) ValidateConcept(name string, value any, ctx *models.Context) Result {
	result := Result{Valid: true}

	concept, ok := v.Concept(name)
	if !ok {
		result.addError("Concept %s not found in taxonomy", name)
		return result
	}

	v.checkType(concept, value, &result)
	v.checkPeriodType(concept, ctx, &result)
	v.checkBalance(concept, value, &result)
	return result
}

func (v *Validator) checkType(concept Concept, value any, result *Result) {
	if concept.Type == "" {
		return
	}
	typeName := strings.ToLower(concept.Type)

	switch {
	case strings.Contains(typeName, "monetary"), strings.Contains(typeName, "shares"):
		if _, ok := models.NumericValue(value); !ok {
			result.addError("Value should be numeric for type %s, got %v", concept.Type, value)
		}
	case strings.Contains(typeName, "decimal"):
		if _, ok := coerceNumeric(value); !ok {
			result.addError("Value should be numeric for type %s, got %v", concept.Type, value)
		}
	case strings.Contains(typeName, "integer"):
		if num, ok := coerceNumeric(value); !ok || !num.IsInteger() {
			result.addError("Value should be an integer for type %s, got %v", concept.Type, value)
		}
	case strings.Contains(typeName, "string"):
		if _, ok := value.(string); !ok {
			result.addError("Value should be text for type %s, got %v", concept.Type, value)
		}
	case strings.Contains(typeName, "datetime"), strings.Contains(typeName, "date"):
		if !isParseableDate(value) {
			result.addError("Value should be a date for type %s, got %v", concept.Type, value)
		}
	case strings.Contains(typeName, "boolean"):
		if !isBoolean(value) {
			result.addError("Value should be boolean for type %s, got %v", concept.Type, value)
		}
	default:
		result.addWarning("Unknown type %s for concept %s", concept.Type, concept.Name)
	}
}

func (v *Validator) checkPeriodType(concept Concept, ctx *models.Context, result *Result) {
	if ctx == nil || concept.PeriodType == "" {
		return
	}
	switch concept.PeriodType {
	case "instant":
		if !ctx.IsInstant() {
			result.addError("Concept %s requires an instant period but context %s has none",
				concept.Name, ctx.ID)
		}
	case "duration":
		if !ctx.IsDuration() {
			result.addError("Concept %s requires a duration period but context %s has none",
				concept.Name, ctx.ID)
		}
	}
}

// checkBalance enforces the sign convention: credit concepts must not be
// negative, debit concepts must not be positive.
func (v *Validator) checkBalance(concept Concept, value any, result *Result) {
	if concept.Balance == "" {
		return
	}
	num, ok := models.NumericValue(value)
	if !ok {
		return
	}
	switch concept.Balance {
	case "credit":
		if num.IsNegative() {
			result.addError("Credit balance concept %s has negative value %s",
				concept.Name, num.String())
		}
	case "debit":
		if num.IsPositive() {
			result.addError("Debit balance concept %s has positive value %s",
				concept.Name, num.String())
		}
	}
}

// ValidateContext checks structural requirements on a context.
func (v *Validator) ValidateContext(ctx *models.Context) Result {
	result := Result{Valid: true}
	if ctx == nil {
		result.addError("Context is missing")
		return result
	}

	if ctx.Entity == "" {
		result.addError("Context %s has no entity identifier", ctx.ID)
	} else if !strings.Contains(ctx.Entity, ":") {
		result.addWarning("Context %s entity identifier has no scheme", ctx.ID)
	}

	hasInstant := ctx.Instant != nil
	hasDuration := ctx.PeriodStart != nil || ctx.PeriodEnd != nil
	switch {
	case hasInstant && hasDuration:
		result.addError("Context %s has both instant and duration periods", ctx.ID)
	case !hasInstant && !hasDuration:
		result.addError("Context %s has no period information", ctx.ID)
	case hasDuration && (ctx.PeriodStart == nil || ctx.PeriodEnd == nil):
		result.addError("Context %s duration period is incomplete", ctx.ID)
	case hasDuration && ctx.PeriodStart.After(*ctx.PeriodEnd):
		result.addError("Context %s period start %s is after end %s", ctx.ID,
			ctx.PeriodStart.Format("2006-01-02"), ctx.PeriodEnd.Format("2006-01-02"))
	}
	return result
}

// ValidateUnit checks measure presence, divide structure and measure
// vocabulary. Non-standard measures warn rather than fail.
func (v *Validator) ValidateUnit(unit *models.Unit) Result {
	result := Result{Valid: true}
	if unit == nil {
		result.addError("Unit is missing")
		return result
	}

	if len(unit.Measures) == 0 {
		result.addError("Unit %s has no measures", unit.ID)
		return result
	}
	if unit.Divide && (len(unit.Numerator) == 0 || len(unit.Denominator) == 0) {
		result.addError("Divide unit %s needs both numerator and denominator measures", unit.ID)
	}

	for _, measure := range unit.Measures {
		prefix, local := splitMeasure(measure)
		switch {
		case prefix == "":
			result.addWarning("Unit %s measure %s has no namespace prefix", unit.ID, measure)
		case strings.Contains(prefix, "iso4217"):
			if !v.currencies[strings.ToUpper(local)] {
				result.addWarning("Unit %s uses unknown currency code %s", unit.ID, local)
			}
		case local == "pure", local == "shares":
			// Standard dimensionless measures.
		default:
			result.addWarning("Unit %s uses non-standard measure %s", unit.ID, measure)
		}
	}
	return result
}

func splitMeasure(measure string) (prefix, local string) {
	if idx := strings.LastIndex(measure, ":"); idx >= 0 {
		return measure[:idx], measure[idx+1:]
	}
	return "", measure
}

// coerceNumeric extends the numeric check to strings that parse as
// decimals, for concepts whose values arrive as raw text.
func coerceNumeric(value any) (decimal.Decimal, bool) {
	if num, ok := models.NumericValue(value); ok {
		return num, true
	}
	if s, ok := value.(string); ok {
		if num, err := decimal.NewFromString(strings.TrimSpace(s)); err == nil {
			return num, true
		}
	}
	return decimal.Decimal{}, false
}

func isParseableDate(value any) bool {
	switch t := value.(type) {
	case time.Time:
		return true
	case string:
		s := strings.TrimSpace(t)
		if _, err := time.Parse("2006-01-02", s); err == nil {
			return true
		}
		_, err := time.Parse(time.RFC3339, s)
		return err == nil
	default:
		return false
	}
}

func isBoolean(value any) bool {
	switch t := value.(type) {
	case bool:
		return true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "false", "1", "0":
			return true
		}
		return false
	case int64:
		return t == 0 || t == 1
	default:
		return false
	}
}

// findLocal gathers descendants by local name regardless of namespace
// prefix, since schemas bind xs/xsd/xbrli inconsistently.
func findLocal(scope *etree.Element, local string) []*etree.Element {
	var out []*etree.Element
	var walk func(*etree.Element)
	walk = func(el *etree.Element) {
		for _, child := range el.ChildElements() {
			if child.Tag == local {
				out = append(out, child)
			}
			walk(child)
		}
	}
	walk(scope)
	return out
}

func attrByLocal(el *etree.Element, local string) string {
	for _, attr := range el.Attr {
		if attr.Key == local {
			return attr.Value
		}
	}
	return ""
}
