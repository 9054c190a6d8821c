// Package calcnet loads calculation linkbases and checks reported fact
// values against their weighted summation networks.
package calcnet

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"xbrl_engine/pkg/config"
)

// Relationship is one directed, weighted summation edge: parent is the
// total concept, child a contributing concept.
type Relationship struct {
	Parent string
	Child  string
	Weight decimal.Decimal
	Order  int
	Role   string
}

// Validator accumulates relationships across any number of linkbases and
// validates fact values per context. Zero value is not usable; construct
// with New.
type Validator struct {
	byParent   map[string][]Relationship
	roles      map[string]bool
	roleLabels map[string]string

	tolerance decimal.Decimal
	log       *zap.Logger
}

// New builds a validator using the configured rounding tolerance.
func New(cfg config.Config, log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{
		byParent:   make(map[string][]Relationship),
		roles:      make(map[string]bool),
		roleLabels: make(map[string]string),
		tolerance:  cfg.ToleranceDecimal(),
		log:        log,
	}
}

// LoadLinkbase parses one calculation linkbase document and adds its
// relationships to the validator. Loading is additive: call once per
// linkbase file.
func (v *Validator) LoadLinkbase(doc *etree.Document) error {
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("linkbase document has no root element")
	}

	// Role references supply the human label used in diagnostics. The
	// xlink:label attribute wins; the href fragment is the fallback.
	for _, ref := range findLocal(root, "roleRef") {
		roleURI := attrByLocal(ref, "roleURI")
		if roleURI == "" {
			continue
		}
		label := attrByLocal(ref, "label")
		if label == "" {
			if href := attrByLocal(ref, "href"); href != "" {
				label = conceptFromHref(href)
			}
		}
		if label != "" {
			v.roleLabels[roleURI] = label
		}
	}

	links := findLocal(root, "calculationLink")
	for _, link := range links {
		role := attrByLocal(link, "role")
		if role != "" {
			v.roles[role] = true
		}

		// Locators map arc labels to concept names via the href fragment.
		labels := make(map[string]string)
		for _, loc := range findLocal(link, "loc") {
			label := attrByLocal(loc, "label")
			href := attrByLocal(loc, "href")
			if label == "" || href == "" {
				continue
			}
			labels[label] = conceptFromHref(href)
		}

		for _, arc := range findLocal(link, "calculationArc") {
			from, okFrom := labels[attrByLocal(arc, "from")]
			to, okTo := labels[attrByLocal(arc, "to")]
			if !okFrom || !okTo {
				v.log.Debug("calculation arc with unresolved locator label, skipped",
					zap.String("role", role))
				continue
			}

			weight := decimal.NewFromInt(1)
			if raw := attrByLocal(arc, "weight"); raw != "" {
				if w, err := decimal.NewFromString(raw); err == nil {
					weight = w
				}
			}
			order := 1
			if raw := attrByLocal(arc, "order"); raw != "" {
				// Order attributes are frequently written as "1.0".
				if f, err := strconv.ParseFloat(raw, 64); err == nil {
					order = int(f)
				}
			}

			v.byParent[from] = append(v.byParent[from], Relationship{
				Parent: from,
				Child:  to,
				Weight: weight,
				Order:  order,
				Role:   role,
			})
		}
	}
	return nil
}

// conceptFromHref extracts the concept name from a locator href of the
// form "schema.xsd#ConceptName".
func conceptFromHref(href string) string {
	if idx := strings.LastIndex(href, "#"); idx >= 0 {
		return href[idx+1:]
	}
	return href
}

// ValidateCalculations checks every parent concept that has both a
// reported value and children in the network, per context. Returns one
// diagnostic per failed check; a parent with missing children gets the
// missing-children diagnostic and no sum comparison.
func (v *Validator) ValidateCalculations(factsByContext map[string]map[string]decimal.Decimal) []string {
	var errs []string

	contextIDs := make([]string, 0, len(factsByContext))
	for id := range factsByContext {
		contextIDs = append(contextIDs, id)
	}
	sort.Strings(contextIDs)

	parents := make([]string, 0, len(v.byParent))
	for parent := range v.byParent {
		parents = append(parents, parent)
	}
	sort.Strings(parents)

	for _, ctxID := range contextIDs {
		facts := factsByContext[ctxID]
		// Guards against duplicate edges and cyclic networks revisiting
		// the same parent within one context.
		processed := make(map[string]bool)

		for _, parent := range parents {
			if processed[parent] {
				continue
			}
			processed[parent] = true

			reported, ok := facts[parent]
			if !ok {
				continue
			}

			children := append([]Relationship(nil), v.byParent[parent]...)
			sort.SliceStable(children, func(i, j int) bool {
				return children[i].Order < children[j].Order
			})

			var missing, summed []string
			expected := decimal.Zero
			for _, rel := range children {
				value, ok := facts[rel.Child]
				if !ok {
					missing = append(missing, rel.Child)
					continue
				}
				summed = append(summed, rel.Child)
				expected = expected.Add(value.Mul(rel.Weight))
			}

			if len(missing) > 0 {
				errs = append(errs, fmt.Sprintf(
					"Missing children for calculation of %s in context %s: %s",
					parent, ctxID, strings.Join(missing, ", ")))
				continue
			}

			if expected.Sub(reported).Abs().GreaterThan(v.tolerance) {
				errs = append(errs, fmt.Sprintf(
					"Calculation error in %s (role %s) for context %s: expected %s, got %s (children: %s)",
					parent, v.roleLabel(children), ctxID,
					expected.String(), reported.String(), strings.Join(summed, ", ")))
			}
		}
	}
	return errs
}

// roleLabel resolves the diagnostic label for the role the relationships
// were declared under, falling back to the role URI itself.
func (v *Validator) roleLabel(rels []Relationship) string {
	if len(rels) == 0 {
		return ""
	}
	role := rels[0].Role
	if label, ok := v.roleLabels[role]; ok {
		return label
	}
	return role
}

// Children returns a parent's relationships ordered by the arc order
// attribute, optionally filtered to one role (empty role means all).
func (v *Validator) Children(parent, role string) []Relationship {
	var out []Relationship
	for _, rel := range v.byParent[parent] {
		if role == "" || rel.Role == role {
			out = append(out, rel)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Network returns the relationships of one role, grouped by parent with
// each child list ordered by the arc order attribute.
func (v *Validator) Network(role string) map[string][]Relationship {
	out := make(map[string][]Relationship)
	for parent, rels := range v.byParent {
		for _, rel := range rels {
			if rel.Role == role {
				out[parent] = append(out[parent], rel)
			}
		}
	}
	for parent := range out {
		sort.SliceStable(out[parent], func(i, j int) bool {
			return out[parent][i].Order < out[parent][j].Order
		})
	}
	return out
}

// AllNetworks returns every loaded role's network.
func (v *Validator) AllNetworks() map[string]map[string][]Relationship {
	out := make(map[string]map[string][]Relationship)
	for role := range v.roles {
		out[role] = v.Network(role)
	}
	return out
}

// Roots returns the concepts that appear as parents but never as
// children, sorted by name. An empty role spans every loaded network.
func (v *Validator) Roots(role string) []string {
	asChild := make(map[string]bool)
	asParent := make(map[string]bool)
	for _, rels := range v.byParent {
		for _, rel := range rels {
			if role != "" && rel.Role != role {
				continue
			}
			asParent[rel.Parent] = true
			asChild[rel.Child] = true
		}
	}
	var roots []string
	for parent := range asParent {
		if !asChild[parent] {
			roots = append(roots, parent)
		}
	}
	sort.Strings(roots)
	return roots
}

// findLocal gathers descendants by local name regardless of namespace.
// Linkbases in the wild bind the link vocabulary to assorted prefixes.
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

// attrByLocal reads an attribute by local name, tolerating any prefix.
// xlink attributes arrive as xlink:href, xlink:role and similar.
func attrByLocal(el *etree.Element, local string) string {
	for _, attr := range el.Attr {
		if attr.Key == local {
			return attr.Value
		}
	}
	return ""
}
