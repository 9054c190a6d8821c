// Package config holds the engine configuration: the namespace prefix
// table seeded with the recognized dialect URIs, the calculation
// tolerance, and the currency reference set. The namespace table is
// per-document state - callers copy it via NamespaceTable rather than
// sharing one mutable map across filings.
package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// Recognized namespace URIs. The 2001 and 2003 instance generations are
// both seeded so old filings (numericContext era) resolve without extra
// configuration.
const (
	NSInstance2003 = "http://www.xbrl.org/2003/instance"
	NSInstance2001 = "http://www.xbrl.org/2001/instance"
	NSLinkbase     = "http://www.xbrl.org/2003/linkbase"
	NSXLink        = "http://www.w3.org/1999/xlink"
	NSInline       = "http://www.xbrl.org/2013/inlineXBRL"
	NSTransform    = "http://www.xbrl.org/inlineXBRL/transformation/2020-02-12"
	NSTransformSEC = "http://www.sec.gov/inlineXBRL/transformation/2015-08-31"
	NSXHTML        = "http://www.w3.org/1999/xhtml"
	NSISO4217      = "http://www.xbrl.org/2003/iso4217"
)

// Config is the engine configuration, loadable from YAML.
type Config struct {
	// Namespaces maps prefixes to URIs. Loaded values are merged over the
	// defaults so a config file only needs to add company extensions.
	Namespaces map[string]string `yaml:"namespaces"`

	// Tolerance is the absolute calculation tolerance as a decimal string.
	Tolerance string `yaml:"tolerance"`

	// Currencies is the closed reference set of ISO 4217 codes.
	Currencies []string `yaml:"currencies"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Namespaces: map[string]string{
			"xbrli":   NSInstance2003,
			"link":    NSLinkbase,
			"xlink":   NSXLink,
			"ix":      NSInline,
			"ixt":     NSTransform,
			"ixt-sec": NSTransformSEC,
			"html":    NSXHTML,
			"iso4217": NSISO4217,
		},
		Tolerance: "0.01",
		Currencies: []string{
			"USD", "EUR", "GBP", "JPY", "CHF", "AUD", "CAD", "CNY", "HKD", "NZD",
			"SEK", "KRW", "SGD", "NOK", "MXN", "INR", "RUB", "ZAR", "TRY", "BRL",
		},
	}
}

// Load reads a YAML config file and merges it over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	for prefix, uri := range file.Namespaces {
		cfg.Namespaces[prefix] = uri
	}
	if file.Tolerance != "" {
		if _, err := decimal.NewFromString(file.Tolerance); err != nil {
			return cfg, fmt.Errorf("invalid tolerance %q: %w", file.Tolerance, err)
		}
		cfg.Tolerance = file.Tolerance
	}
	if len(file.Currencies) > 0 {
		cfg.Currencies = file.Currencies
	}
	return cfg, nil
}

// NamespaceTable returns a fresh prefix->URI map for one document. Each
// processed filing mutates its own copy as it registers document-declared
// namespaces.
func (c Config) NamespaceTable() map[string]string {
	table := make(map[string]string, len(c.Namespaces))
	for prefix, uri := range c.Namespaces {
		table[prefix] = uri
	}
	return table
}

// ToleranceDecimal returns the calculation tolerance. Falls back to the
// default when the configured string is unparseable.
func (c Config) ToleranceDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(c.Tolerance)
	if err != nil {
		return decimal.RequireFromString(Default().Tolerance)
	}
	return d
}

// CurrencySet returns the currency codes as a lookup set.
func (c Config) CurrencySet() map[string]bool {
	set := make(map[string]bool, len(c.Currencies))
	for _, code := range c.Currencies {
		set[code] = true
	}
	return set
}
