// Package inline normalizes inline XBRL (facts embedded in XHTML markup)
// into the same document model the standard extractor produces. Hidden
// facts load before visible ones, display-format transforms and scale
// factors are applied, and nested markup is flattened to a single value
// string.
package inline

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"xbrl_engine/pkg/config"
	"xbrl_engine/pkg/core/instance"
	"xbrl_engine/pkg/models"
)

// Processor wraps the standard extractor with inline-markup handling.
// Contexts, units and facts land in the embedded instance processor, so
// downstream validation is dialect blind.
type Processor struct {
	*instance.Processor

	log *zap.Logger
}

// New builds an inline processor over a fresh instance processor.
func New(cfg config.Config, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		Processor: instance.New(cfg, log),
		log:       log,
	}
}

// LoadInline populates the model from a parsed inline XBRL document.
// Header resources (contexts and units) load first, then facts from
// hidden sections, then the remaining visible facts. A fact element is
// processed exactly once regardless of how many passes could reach it.
func (p *Processor) LoadInline(doc *etree.Document) error {
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("inline document has no root element")
	}
	p.registerDeclared(root)

	// Hidden sections are the authoritative carrier for contexts and
	// units; the visible body is scanned only when they yield nothing.
	hiddenSections := p.findInline(root, "hidden")
	for _, hidden := range hiddenSections {
		p.ExtractContexts(hidden)
		p.ExtractUnits(hidden)
	}
	if len(p.Contexts) == 0 {
		p.ExtractContexts(root)
	}
	if len(p.Units) == 0 {
		p.ExtractUnits(root)
	}

	seen := make(map[*etree.Element]bool)
	for _, hidden := range hiddenSections {
		for _, el := range p.inlineFactElements(hidden) {
			if !seen[el] {
				seen[el] = true
				p.processFactElement(el)
			}
		}
	}
	for _, el := range p.inlineFactElements(root) {
		if !seen[el] {
			seen[el] = true
			p.processFactElement(el)
		}
	}
	return nil
}

func (p *Processor) registerDeclared(root *etree.Element) {
	for _, attr := range root.Attr {
		if attr.Space == "xmlns" {
			p.Namespaces[attr.Key] = attr.Value
		}
	}
}

func (p *Processor) inlineURIs() map[string]bool {
	uris := map[string]bool{config.NSInline: true}
	if registered, ok := p.Namespaces["ix"]; ok {
		uris[registered] = true
	}
	return uris
}

// findInline locates inline-namespace elements by local name, falling
// back to a namespace-agnostic match when the document declares the
// inline vocabulary under an unexpected URI.
func (p *Processor) findInline(scope *etree.Element, local string) []*etree.Element {
	uris := p.inlineURIs()
	matches := walkMatch(scope, func(e *etree.Element) bool {
		return e.Tag == local && uris[e.NamespaceURI()]
	})
	if len(matches) > 0 {
		return matches
	}
	return walkMatch(scope, func(e *etree.Element) bool { return e.Tag == local })
}

// inlineFactElements collects nonFraction, nonNumeric and fraction
// elements under scope in document order.
func (p *Processor) inlineFactElements(scope *etree.Element) []*etree.Element {
	uris := p.inlineURIs()
	factLocal := map[string]bool{"nonFraction": true, "nonNumeric": true, "fraction": true}
	matches := walkMatch(scope, func(e *etree.Element) bool {
		return factLocal[e.Tag] && uris[e.NamespaceURI()]
	})
	if len(matches) > 0 {
		return matches
	}
	return walkMatch(scope, func(e *etree.Element) bool { return factLocal[e.Tag] })
}

func walkMatch(scope *etree.Element, pred func(*etree.Element) bool) []*etree.Element {
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

// processFactElement converts one inline markup element into a fact. The
// concept comes verbatim from the name attribute; no namespace
// resolution is performed on it.
func (p *Processor) processFactElement(el *etree.Element) {
	concept := el.SelectAttrValue("name", "")
	if concept == "" {
		return
	}
	contextRef := el.SelectAttrValue("contextRef", "")
	if contextRef == "" {
		p.log.Debug("inline fact without contextRef, skipped", zap.String("name", concept))
		return
	}

	var raw string
	if el.Tag == "fraction" {
		raw = p.fractionValue(el)
	} else {
		raw = flattenText(el)
	}

	if format := el.SelectAttrValue("format", ""); format != "" {
		raw = applyTransform(raw, format)
	}
	if scale := el.SelectAttrValue("scale", ""); scale != "" {
		raw = applyScaling(raw, scale, p.log)
	}
	if raw == "" {
		return
	}
	// Parenthetical values negate during the transform; the sign
	// attribute must not stack a second minus onto them.
	if el.SelectAttrValue("sign", "") == "-" && !strings.HasPrefix(raw, "-") {
		raw = "-" + raw
	}

	p.Facts = append(p.Facts, &models.Fact{
		Concept:    concept,
		Value:      instance.CoerceValue(raw),
		ContextRef: contextRef,
		UnitRef:    el.SelectAttrValue("unitRef", ""),
		Decimals:   instance.ParseAccuracy(el.SelectAttrValue("decimals", "")),
		Precision:  instance.ParseAccuracy(el.SelectAttrValue("precision", "")),
	})
}

// fractionValue renders an ix:fraction as "numerator/denominator" from its
// child elements' flattened text.
func (p *Processor) fractionValue(el *etree.Element) string {
	var num, den string
	for _, child := range el.ChildElements() {
		switch child.Tag {
		case "numerator":
			num = flattenText(child)
		case "denominator":
			den = flattenText(child)
		}
	}
	if num == "" || den == "" {
		return ""
	}
	return num + "/" + den
}

// flattenText reduces an element's markup to one string: the element's
// leading text, then for each child its tail text followed by the child's
// own flattened text. Segments are trimmed and joined with single spaces.
// A child's tail comes before its own content; downstream value
// comparisons depend on this ordering.
func flattenText(el *etree.Element) string {
	var parts []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}

	// etree models mixed content as interleaved tokens: character data
	// after a child element is that child's tail.
	type childTail struct {
		el   *etree.Element
		tail string
	}
	var children []childTail
	leading := true
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			if leading {
				add(t.Data)
			} else if n := len(children); n > 0 {
				children[n-1].tail += t.Data
			}
		case *etree.Element:
			leading = false
			children = append(children, childTail{el: t})
		}
	}
	for _, c := range children {
		add(c.tail)
		add(flattenText(c.el))
	}
	return strings.Join(parts, " ")
}
