// Package filing discovers the documents of a filing folder, classifies
// them by dialect, and routes each to the right loader. It is the
// orchestration layer: one Processor per folder, holding the combined
// fact model, calculation networks and taxonomy.
package filing

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/beevik/etree"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"xbrl_engine/pkg/config"
	"xbrl_engine/pkg/core/calcnet"
	"xbrl_engine/pkg/core/inline"
	"xbrl_engine/pkg/core/taxonomy"
)

// FileType classifies a discovered filing document.
type FileType string

const (
	TypeInstance       FileType = "instance"
	TypeInlineInstance FileType = "ixbrl"
	TypeSchema         FileType = "schema"
	TypeCalculation    FileType = "calculation"
	TypePresentation   FileType = "presentation"
	TypeLabel          FileType = "label"
	TypeDefinition     FileType = "definition"
	TypeUnknown        FileType = "unknown"
)

// File is one discovered document with its classification.
type File struct {
	Path string
	Type FileType
}

// Processor loads a filing folder into a single combined model. The
// inline processor embeds the standard one, so both dialects land in the
// same context, unit and fact tables.
type Processor struct {
	Model    *inline.Processor
	Calc     *calcnet.Validator
	Taxonomy *taxonomy.Validator

	Files []File

	cfg config.Config
	log *zap.Logger
}

// New builds a folder processor with fresh component state.
func New(cfg config.Config, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	tax := taxonomy.New(cfg, log)
	model := inline.New(cfg, log)
	model.Taxonomy = tax
	return &Processor{
		Model:    model,
		Calc:     calcnet.New(cfg, log),
		Taxonomy: tax,
		cfg:      cfg,
		log:      log,
	}
}

// ProcessFolder discovers, classifies and loads a filing folder. Schemas
// load before the instance so concept checks see the full taxonomy;
// linkbases load last. One folder holds one filing: only the first
// instance-or-inline document is loaded, and a folder containing none is
// an error. A skipped supporting document (schema, linkbase) is logged,
// not fatal; a parse failure on the instance itself is fatal.
func (p *Processor) ProcessFolder(dir string) error {
	if err := p.Discover(dir); err != nil {
		return err
	}

	for _, f := range p.Files {
		if f.Type != TypeSchema {
			continue
		}
		if err := p.loadXML(f.Path, p.Taxonomy.LoadSchema); err != nil {
			p.log.Warn("schema skipped", zap.String("path", f.Path), zap.Error(err))
		}
	}

	instance := p.firstInstance()
	if instance == nil {
		return fmt.Errorf("no instance document found in %s", dir)
	}
	load := p.Model.LoadInstance
	if instance.Type == TypeInlineInstance {
		load = p.Model.LoadInline
	}
	if err := p.loadXML(instance.Path, load); err != nil {
		return err
	}

	for _, f := range p.Files {
		if f.Type != TypeCalculation {
			continue
		}
		if err := p.loadXML(f.Path, p.Calc.LoadLinkbase); err != nil {
			p.log.Warn("linkbase skipped", zap.String("path", f.Path), zap.Error(err))
		}
	}
	return nil
}

// firstInstance returns the folder's instance document. Extra instance
// files belong to other filings and are ignored.
func (p *Processor) firstInstance() *File {
	for i := range p.Files {
		if p.Files[i].Type == TypeInstance || p.Files[i].Type == TypeInlineInstance {
			return &p.Files[i]
		}
	}
	return nil
}

// Discover lists and classifies the folder's XML, schema and HTML
// documents without loading them.
func (p *Processor) Discover(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading filing folder: %w", err)
	}
	p.Files = p.Files[:0]
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".xml" && ext != ".xsd" && ext != ".htm" && ext != ".html" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p.Files = append(p.Files, File{Path: path, Type: p.classify(path, ext)})
	}
	sort.Slice(p.Files, func(i, j int) bool { return p.Files[i].Path < p.Files[j].Path })
	return nil
}

func (p *Processor) classify(path, ext string) FileType {
	if ext == ".htm" || ext == ".html" {
		if p.sniffInlineHTML(path) {
			return TypeInlineInstance
		}
		return TypeUnknown
	}

	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	if err := doc.ReadFromFile(path); err != nil {
		p.log.Warn("unreadable document", zap.String("path", path), zap.Error(err))
		return TypeUnknown
	}
	root := doc.Root()
	if root == nil {
		return TypeUnknown
	}

	switch root.Tag {
	case "schema":
		return TypeSchema
	case "linkbase":
		return classifyLinkbase(root)
	case "xbrl", "group":
		return TypeInstance
	case "html":
		if declaresInlineNamespace(root) {
			return TypeInlineInstance
		}
	}
	if declaresInlineNamespace(root) {
		return TypeInlineInstance
	}
	return TypeUnknown
}

// sniffInlineHTML detects inline XBRL markup in an HTML document using a
// lenient HTML parse: either an inlineXBRL namespace declaration or any
// ix-prefixed fact element marks the file as inline.
func (p *Processor) sniffInlineHTML(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		p.log.Warn("unreadable document", zap.String("path", path), zap.Error(err))
		return false
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return false
	}

	found := false
	doc.Find("*").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		node := sel.Get(0)
		if node == nil || node.Type != html.ElementNode {
			return true
		}
		for _, attr := range node.Attr {
			if strings.Contains(attr.Val, "inlineXBRL") {
				found = true
				return false
			}
		}
		if strings.HasPrefix(node.Data, "ix:") {
			found = true
			return false
		}
		return true
	})
	return found
}

func declaresInlineNamespace(root *etree.Element) bool {
	for _, attr := range root.Attr {
		if attr.Space == "xmlns" && strings.Contains(attr.Value, "inlineXBRL") {
			return true
		}
	}
	return false
}

// classifyLinkbase inspects a linkbase's extended link children.
func classifyLinkbase(root *etree.Element) FileType {
	locals := make(map[string]bool)
	var walk func(*etree.Element)
	walk = func(el *etree.Element) {
		for _, child := range el.ChildElements() {
			locals[child.Tag] = true
			walk(child)
		}
	}
	walk(root)

	switch {
	case locals["calculationLink"]:
		return TypeCalculation
	case locals["presentationLink"]:
		return TypePresentation
	case locals["labelLink"]:
		return TypeLabel
	case locals["definitionLink"]:
		return TypeDefinition
	}
	return TypeUnknown
}

func (p *Processor) loadXML(path string, load func(*etree.Document) error) error {
	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	if err := doc.ReadFromFile(path); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return load(doc)
}

// Validate runs every loaded check: fact reference integrity and concept
// rules, context and unit structure, then calculation networks. Errors
// fail the filing; warnings are advisory.
func (p *Processor) Validate() (errors, warnings []string) {
	errors = append(errors, p.Model.Validate()...)

	ids := make([]string, 0, len(p.Model.Contexts))
	for id := range p.Model.Contexts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		res := p.Taxonomy.ValidateContext(p.Model.Contexts[id])
		errors = append(errors, res.Errors...)
		warnings = append(warnings, res.Warnings...)
	}

	unitIDs := make([]string, 0, len(p.Model.Units))
	for id := range p.Model.Units {
		unitIDs = append(unitIDs, id)
	}
	sort.Strings(unitIDs)
	for _, id := range unitIDs {
		res := p.Taxonomy.ValidateUnit(p.Model.Units[id])
		errors = append(errors, res.Errors...)
		warnings = append(warnings, res.Warnings...)
	}

	errors = append(errors, p.Calc.ValidateCalculations(p.Model.FactsByContext())...)
	return errors, warnings
}
