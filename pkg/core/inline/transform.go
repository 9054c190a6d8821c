package inline

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	currencyReplacer = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "")
	parenPattern     = regexp.MustCompile(`^\((.*)\)$`)

	// Filers occasionally spell small scaled magnitudes out in words.
	numberWords = map[string]string{
		"zero": "0", "one": "1", "two": "2", "three": "3", "four": "4",
		"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
		"ten": "10",
	}

	dashTokens = map[string]bool{
		"—": true, // em dash
		"–": true, // en dash
		"-":      true,
		"":       true,
	}
)

// applyTransform normalizes a displayed value per its named format. The
// format name may arrive prefixed (ixt:numdotdecimal) or bare; unknown
// names pass the value through untouched apart from the shared cleanup.
func applyTransform(value, format string) string {
	value = strings.TrimSpace(value)
	if idx := strings.LastIndex(format, ":"); idx >= 0 {
		format = format[idx+1:]
	}

	switch format {
	case "numdotdecimal":
		value = currencyReplacer.Replace(value)
		value = strings.ReplaceAll(value, ",", "")
	case "numcommadot":
		value = currencyReplacer.Replace(value)
		value = strings.ReplaceAll(value, ".", "")
		value = strings.ReplaceAll(value, ",", ".")
	}

	// Parenthesized values are negative in financial presentation; this
	// holds for every format.
	if m := parenPattern.FindStringSubmatch(value); m != nil {
		value = "-" + m[1]
	}

	// Percent signs are display markup only. The magnitude stays as
	// printed; the concept's unit carries the percent semantics.
	value = strings.TrimSuffix(value, "%")

	return strings.TrimSpace(value)
}

// applyScaling multiplies a normalized value by 10^scale using exact
// decimal shifting. Dash glyphs, "n/a" and empty text scale as zero.
// Scaling never fails the fact: an unparseable value or scale attribute
// is logged and the pre-scale text returned.
func applyScaling(value, scaleAttr string, log *zap.Logger) string {
	scale, err := strconv.Atoi(strings.TrimSpace(scaleAttr))
	if err != nil {
		log.Warn("unparseable scale attribute, value kept unscaled",
			zap.String("scale", scaleAttr), zap.String("value", value))
		return value
	}

	token := strings.TrimSpace(value)
	lower := strings.ToLower(token)
	switch {
	case dashTokens[token], lower == "n/a":
		token = "0"
	default:
		if word, ok := numberWords[lower]; ok {
			token = word
		}
	}

	d, err := decimal.NewFromString(token)
	if err != nil {
		log.Warn("non-numeric value under scale attribute, kept unscaled",
			zap.String("value", value), zap.Int("scale", scale))
		return value
	}
	return d.Shift(int32(scale)).String()
}
