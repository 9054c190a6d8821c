// Package instance extracts contexts, units and facts from standard XBRL
// instance documents. The extractor is namespace tolerant: it resolves
// elements through the registered prefix table first, then the document's
// default namespace, and finally by bare local name, so the 2001 and 2003
// schema generations parse through the same path.
package instance

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"xbrl_engine/pkg/config"
	"xbrl_engine/pkg/core/taxonomy"
	"xbrl_engine/pkg/models"
)

// Processor turns a parsed XML tree into the document model. One Processor
// handles one filing; the namespace table is owned by the instance and
// never shared across documents.
type Processor struct {
	// Namespaces is the mutable prefix->URI table, seeded from config and
	// extended with the document's own declarations during load.
	Namespaces map[string]string

	Contexts map[string]*models.Context
	Units    map[string]*models.Unit
	Facts    []*models.Fact

	// Taxonomy, when set, adds concept-level checks to Validate.
	Taxonomy *taxonomy.Validator

	defaultNS string
	log       *zap.Logger
}

// New creates a processor with its own copy of the configured namespace
// table.
func New(cfg config.Config, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		Namespaces: cfg.NamespaceTable(),
		Contexts:   make(map[string]*models.Context),
		Units:      make(map[string]*models.Unit),
		Facts:      nil,
		log:        log,
	}
}

// LoadInstance populates the model from a parsed instance document.
// Contexts load first, then units, then facts: fact resolution depends on
// the completed id lookups.
func (p *Processor) LoadInstance(doc *etree.Document) error {
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("instance document has no root element")
	}
	p.registerDeclaredNamespaces(root)

	scope := p.searchRoot(root)
	p.extractContexts(scope)
	p.extractUnits(scope)
	p.extractFacts(scope)
	return nil
}

// searchRoot unwraps a generic grouping element when the instance content
// is not directly under the document root.
func (p *Processor) searchRoot(root *etree.Element) *etree.Element {
	if root.Tag == "xbrl" || root.Tag == "group" {
		return root
	}
	if inner := firstByLocal(root, "group"); inner != nil {
		return inner
	}
	return root
}

// registerDeclaredNamespaces merges the root element's xmlns declarations
// into the prefix table. The document's default namespace is remembered
// separately for the second lookup tier.
func (p *Processor) registerDeclaredNamespaces(root *etree.Element) {
	for _, attr := range root.Attr {
		switch {
		case attr.Space == "xmlns":
			p.Namespaces[attr.Key] = attr.Value
		case attr.Space == "" && attr.Key == "xmlns":
			p.defaultNS = attr.Value
		}
	}
}

// findStructural locates elements of the structural (instance) namespace
// by local name, trying three strategies in order and keeping the first
// one that yields results.
func (p *Processor) findStructural(scope *etree.Element, local string) []*etree.Element {
	// 1. Registered prefix lookup.
	uris := map[string]bool{
		config.NSInstance2003: true,
		config.NSInstance2001: true,
	}
	if registered, ok := p.Namespaces["xbrli"]; ok {
		uris[registered] = true
	}
	matches := collect(scope, func(e *etree.Element) bool {
		return e.Tag == local && uris[e.NamespaceURI()]
	})
	if len(matches) > 0 {
		return matches
	}

	// 2. Document default namespace.
	if p.defaultNS != "" {
		matches = collect(scope, func(e *etree.Element) bool {
			return e.Tag == local && e.NamespaceURI() == p.defaultNS
		})
		if len(matches) > 0 {
			return matches
		}
	}

	// 3. Namespace-agnostic local-name match.
	return collect(scope, func(e *etree.Element) bool {
		return e.Tag == local
	})
}

// collect gathers descendants (excluding scope itself) matching pred, in
// document order.
func collect(scope *etree.Element, pred func(*etree.Element) bool) []*etree.Element {
	var out []*etree.Element
	var walk func(*etree.Element)
	walk = func(el *etree.Element) {
		for _, child := range el.ChildElements() {
			if pred(child) {
				out = append(out, child)
			}
			walk(child)
		}
	}
	walk(scope)
	return out
}

// firstByLocal returns the first descendant with the given local name.
func firstByLocal(scope *etree.Element, local string) *etree.Element {
	matches := collect(scope, func(e *etree.Element) bool { return e.Tag == local })
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

// ExtractContexts runs context extraction against an arbitrary scope. The
// inline normalizer uses this to process hidden carrier sections.
func (p *Processor) ExtractContexts(scope *etree.Element) {
	p.extractContexts(scope)
}

// ExtractUnits runs unit extraction against an arbitrary scope.
func (p *Processor) ExtractUnits(scope *etree.Element) {
	p.extractUnits(scope)
}

func (p *Processor) extractContexts(scope *etree.Element) {
	for _, el := range p.findStructural(scope, "context") {
		p.processContextElement(el, false)
	}
	// Legacy 2001-generation documents declare numericContext elements
	// with an embedded unit.
	for _, el := range p.findStructural(scope, "numericContext") {
		p.processContextElement(el, true)
	}
}

func (p *Processor) processContextElement(el *etree.Element, legacy bool) {
	id := el.SelectAttrValue("id", "")
	if id == "" {
		return
	}

	entity, ok := p.extractEntity(el)
	if !ok {
		p.log.Debug("skipping context without entity identifier", zap.String("id", id))
		return
	}

	ctx := &models.Context{ID: id, Entity: entity}
	p.extractPeriod(el, ctx)
	ctx.Scenario = p.extractScenario(el)

	// Last wins on duplicate ids.
	p.Contexts[id] = ctx

	if legacy {
		// The embedded unit takes the enclosing context's id, so facts
		// referencing this context resolve their unit through it.
		if unitEl := firstByLocal(el, "unit"); unitEl != nil {
			if unit := buildUnit(unitEl, id); unit != nil {
				p.Units[id] = unit
			}
		}
	}
}

// extractEntity assembles "scheme:identifier" from the context's entity
// identifier element. The second return is false when no identifier is
// present, which skips the context entirely.
func (p *Processor) extractEntity(ctxEl *etree.Element) (string, bool) {
	identifier := collect(ctxEl, func(e *etree.Element) bool {
		parent := e.Parent()
		return e.Tag == "identifier" && parent != nil && parent.Tag == "entity"
	})
	if len(identifier) == 0 {
		return "", false
	}
	id := identifier[0]
	text := strings.TrimSpace(id.Text())
	scheme := id.SelectAttrValue("scheme", "")
	if scheme == "" {
		return text, true
	}
	return scheme + ":" + text, true
}

func (p *Processor) extractPeriod(ctxEl *etree.Element, ctx *models.Context) {
	period := firstByLocal(ctxEl, "period")
	if period == nil {
		return
	}
	if instant := firstByLocal(period, "instant"); instant != nil {
		if t, err := parseDate(instant.Text()); err == nil {
			ctx.Instant = &t
		}
		return
	}
	if start := firstByLocal(period, "startDate"); start != nil {
		if t, err := parseDate(start.Text()); err == nil {
			ctx.PeriodStart = &t
		}
	}
	if end := firstByLocal(period, "endDate"); end != nil {
		if t, err := parseDate(end.Text()); err == nil {
			ctx.PeriodEnd = &t
		}
	}
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(s))
}

func (p *Processor) extractScenario(ctxEl *etree.Element) models.ScenarioData {
	scenario := firstByLocal(ctxEl, "scenario")
	if scenario == nil {
		return nil
	}
	var segments models.ScenarioData
	for _, child := range scenario.ChildElements() {
		segments = append(segments, flattenSegment(child))
	}
	return segments
}

// flattenSegment folds one scenario child into a flat map: text keyed by
// local tag, attributes keyed by "tag@attr", children merged recursively.
// Explicit members also contribute a dimension -> member pair.
func flattenSegment(el *etree.Element) models.Segment {
	seg := models.Segment{}
	if text := strings.TrimSpace(el.Text()); text != "" {
		seg[el.Tag] = text
		if strings.EqualFold(el.Tag, "explicitMember") {
			if dim := el.SelectAttrValue("dimension", ""); dim != "" {
				seg[dim] = text
			}
		}
	}
	for _, attr := range el.Attr {
		if attr.Space == "xmlns" || attr.Key == "xmlns" {
			continue
		}
		seg[el.Tag+"@"+attr.Key] = attr.Value
	}
	for _, child := range el.ChildElements() {
		for k, v := range flattenSegment(child) {
			seg[k] = v
		}
	}
	return seg
}

func (p *Processor) extractUnits(scope *etree.Element) {
	for _, el := range p.findStructural(scope, "unit") {
		// Embedded legacy units are handled with their numericContext.
		if parent := el.Parent(); parent != nil && parent.Tag == "numericContext" {
			continue
		}
		id := el.SelectAttrValue("id", "")
		if id == "" {
			continue
		}
		if unit := buildUnit(el, id); unit != nil {
			p.Units[id] = unit
		}
	}
}

// buildUnit materializes a unit from its element. Returns nil when the
// element carries neither a plain measure nor a numerator measure.
func buildUnit(el *etree.Element, id string) *models.Unit {
	unit := &models.Unit{ID: id}

	divide := firstByLocal(el, "divide")
	if divide != nil {
		unit.Divide = true
		if num := firstByLocal(divide, "unitNumerator"); num != nil {
			unit.Numerator = measureTexts(num)
		}
		if den := firstByLocal(divide, "unitDenominator"); den != nil {
			unit.Denominator = measureTexts(den)
		}
		unit.Measures = append(append([]string{}, unit.Numerator...), unit.Denominator...)
	} else {
		unit.Measures = measureTexts(el)
	}

	if len(unit.Measures) == 0 && len(unit.Numerator) == 0 {
		return nil
	}
	return unit
}

func measureTexts(scope *etree.Element) []string {
	var out []string
	for _, m := range collect(scope, func(e *etree.Element) bool { return e.Tag == "measure" }) {
		if text := strings.TrimSpace(m.Text()); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func (p *Processor) extractFacts(scope *etree.Element) {
	structural := map[string]bool{
		config.NSInstance2003: true,
		config.NSInstance2001: true,
		config.NSLinkbase:     true,
	}
	if registered, ok := p.Namespaces["xbrli"]; ok {
		structural[registered] = true
	}
	if registered, ok := p.Namespaces["link"]; ok {
		structural[registered] = true
	}

	elems := collect(scope, func(e *etree.Element) bool {
		return !structural[e.NamespaceURI()]
	})
	for _, el := range elems {
		ref := el.SelectAttrValue("contextRef", "")
		if ref == "" {
			ref = el.SelectAttrValue("numericContext", "")
		}
		if ref == "" {
			continue
		}
		if _, known := p.Contexts[ref]; !known {
			p.log.Debug("fact references unknown context, skipped",
				zap.String("element", el.Tag), zap.String("contextRef", ref))
			continue
		}

		text := strings.TrimSpace(el.Text())
		if text == "" {
			continue
		}
		if el.SelectAttrValue("sign", "") == "-" {
			text = "-" + text
		}

		unitRef := el.SelectAttrValue("unitRef", "")
		if unitRef == "" {
			// Legacy embedded-unit case: the context id names the unit.
			if _, ok := p.Units[ref]; ok {
				unitRef = ref
			}
		}

		p.Facts = append(p.Facts, &models.Fact{
			Concept:    p.conceptName(el),
			Value:      CoerceValue(text),
			ContextRef: ref,
			UnitRef:    unitRef,
			Decimals:   ParseAccuracy(el.SelectAttrValue("decimals", "")),
			Precision:  ParseAccuracy(el.SelectAttrValue("precision", "")),
		})
	}
}

// conceptName reconstructs "prefix:localName" by reverse lookup of the
// element's namespace URI against the registered table. Falls back to the
// bare local name when no prefix is registered for that URI; the fallback
// loses the namespace, which downstream consumers tolerate.
func (p *Processor) conceptName(el *etree.Element) string {
	uri := el.NamespaceURI()
	if uri == "" {
		return el.Tag
	}
	var prefixes []string
	for prefix, registered := range p.Namespaces {
		if registered == uri && prefix != "" {
			prefixes = append(prefixes, prefix)
		}
	}
	if len(prefixes) == 0 {
		return el.Tag
	}
	sort.Strings(prefixes)
	return prefixes[0] + ":" + el.Tag
}

// CoerceValue applies the value coercion policy to trimmed non-empty
// text: decimal when the text contains a '.', integer otherwise, and the
// raw string when neither parses.
func CoerceValue(text string) any {
	if strings.Contains(text, ".") {
		if d, err := decimal.NewFromString(text); err == nil {
			return d
		}
		return text
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n
	}
	return text
}

// ParseAccuracy parses a decimals/precision attribute. The INF token maps
// to positive infinity; unparseable tokens mean absent, not an error.
func ParseAccuracy(raw string) *models.Accuracy {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if raw == "INF" {
		return &models.Accuracy{Infinite: true}
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &models.Accuracy{Digits: n}
}

// Validate checks reference integrity and, when a taxonomy is loaded,
// concept-level rules. All findings accumulate; validation never stops at
// the first problem.
func (p *Processor) Validate() []string {
	var errs []string
	for _, fact := range p.Facts {
		ctx, haveCtx := p.Contexts[fact.ContextRef]
		if !haveCtx {
			errs = append(errs, fmt.Sprintf(
				"Fact %s references missing context %s", fact.Concept, fact.ContextRef))
		}

		if fact.IsNumeric() {
			if fact.UnitRef == "" {
				errs = append(errs, fmt.Sprintf(
					"Fact %s references missing unit (no unitRef)", fact.Concept))
			} else if _, ok := p.Units[fact.UnitRef]; !ok {
				errs = append(errs, fmt.Sprintf(
					"Fact %s references missing unit %s", fact.Concept, fact.UnitRef))
			}
		} else if fact.UnitRef != "" {
			errs = append(errs, fmt.Sprintf(
				"Fact %s is non-numeric but carries unit reference %s", fact.Concept, fact.UnitRef))
		}

		if p.Taxonomy != nil && haveCtx {
			result := p.Taxonomy.ValidateConcept(fact.Concept, fact.Value, ctx)
			for _, e := range result.Errors {
				errs = append(errs, fmt.Sprintf("Concept %s: %s", fact.Concept, e))
			}
		}
	}
	return errs
}

// FactsByContext groups numeric fact values by context id, the shape the
// calculation validator consumes.
func (p *Processor) FactsByContext() map[string]map[string]decimal.Decimal {
	out := make(map[string]map[string]decimal.Decimal)
	for _, fact := range p.Facts {
		value, ok := models.NumericValue(fact.Value)
		if !ok {
			continue
		}
		byConcept, ok := out[fact.ContextRef]
		if !ok {
			byConcept = make(map[string]decimal.Decimal)
			out[fact.ContextRef] = byConcept
		}
		byConcept[fact.Concept] = value
	}
	return out
}
