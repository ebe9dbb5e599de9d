package validator

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/estatescope/go-estate-scraper/internal/extractor"
	"github.com/estatescope/go-estate-scraper/internal/logger"
	"github.com/estatescope/go-estate-scraper/internal/models"
)

// canonicalFieldCount is the size of the canonical field list the quality
// score is computed over. Provenance fields (scraped_at, session_id,
// page_number, position) are deliberately excluded.
const canonicalFieldCount = 13

// Validator cleans raw field maps into records and applies the configured
// user filters
type Validator struct {
	filters FilterConfig
	logger  *logger.Logger
}

// FilterConfig holds the optional AND-combined user filters. Zero values
// disable the corresponding criterion.
type FilterConfig struct {
	PriceMinLakh    float64
	PriceMaxLakh    float64
	AreaMinSqft     float64
	AreaMaxSqft     float64
	PropertyTypes   []string
	BHKTypes        []string
	Localities      []string
	ExcludeKeywords []string
}

// New creates a validator with the given filter configuration
func New(filters FilterConfig) *Validator {
	return &Validator{
		filters: filters,
		logger:  logger.NewLogger("validator"),
	}
}

var (
	numberRe     = regexp.MustCompile(`[\d.]+`)
	priceMagRe   = regexp.MustCompile(`(?i)([\d.,]+)\s*(lac|lakh|cr|crore)`)
	perSqftHitRe = regexp.MustCompile(`(?i)(?:/|per)\s*sq\.?\s*ft`)
	currencyRe   = regexp.MustCompile(`[₹$,]`)
	sqMeterRe    = regexp.MustCompile(`sq\.?\s*m\b`)
	rkRe         = regexp.MustCompile(`(\d+)\s*rk`)
	bhkNumRe     = regexp.MustCompile(`(\d+(?:\.5)?)\s*bhk`)
)

// ValidateAndClean turns a raw extraction result into a PropertyRecord.
// Cleaning is idempotent: running the output back through produces the same
// record.
func (v *Validator) ValidateAndClean(raw extractor.CardResult) *models.PropertyRecord {
	fields := raw.Fields
	rec := &models.PropertyRecord{
		URL:               CleanText(fields[extractor.FieldURL]),
		Title:             CleanText(fields[extractor.FieldTitle]),
		PriceText:         CleanText(fields[extractor.FieldPriceText]),
		AreaText:          CleanText(fields[extractor.FieldAreaText]),
		Locality:          CleanText(fields[extractor.FieldLocality]),
		Society:           CleanText(fields[extractor.FieldSociety]),
		PropertyType:      CleanText(fields[extractor.FieldPropertyType]),
		PostingDateRaw:    CleanText(fields[extractor.FieldPostingDate]),
		PostingDateAltRaw: CleanText(fields[extractor.FieldPostingDateAlt]),
		IsPremium:         raw.IsPremium,
		PremiumIndicators: raw.PremiumIndicators,
		PriceUnit:         models.PriceUnitUnspecified,
		AreaUnit:          models.AreaUnitUnspecified,
		AreaKind:          models.AreaKindUnspecified,
		Status:            models.StatusUnspecified,
	}

	rec.PriceValue, rec.PriceUnit = ParsePrice(rec.PriceText)
	rec.AreaValue, rec.AreaUnit = ParseArea(rec.AreaText)
	if kind := fields[extractor.FieldAreaKind]; kind != "" {
		rec.AreaKind = ParseAreaKind(kind)
	} else if rec.PropertyType == "plot" {
		rec.AreaKind = models.AreaKindPlot
	}

	rec.BHK = NormalizeBHK(fields[extractor.FieldBHK])
	rec.Bathrooms = atoiOrZero(fields[extractor.FieldBathrooms])
	rec.Balconies = atoiOrZero(fields[extractor.FieldBalconies])

	if status := fields[extractor.FieldStatus]; status != "" {
		rec.Status = models.PossessionStatus(status)
	}

	if desc := CleanText(fields[extractor.FieldDescription]); desc != "" {
		rec.ExtendedFields = map[string]interface{}{"description": desc}
	}
	if len(raw.Amenities) > 0 {
		if rec.ExtendedFields == nil {
			rec.ExtendedFields = make(map[string]interface{})
		}
		rec.ExtendedFields["amenities"] = raw.Amenities
	}
	for k, val := range raw.Specifications {
		if rec.ExtendedFields == nil {
			rec.ExtendedFields = make(map[string]interface{})
		}
		rec.ExtendedFields[k] = val
	}

	rec.ScrapedAt = time.Now()
	v.Score(rec)
	return rec
}

// Score recomputes the data quality score and validation issues in place
func (v *Validator) Score(rec *models.PropertyRecord) {
	filled := 0
	issues := rec.ValidationIssues[:0]

	count := func(name string, ok bool) {
		if ok {
			filled++
		} else {
			issues = append(issues, "missing_"+name)
		}
	}

	count("url", rec.URL != "")
	count("title", rec.Title != "")
	count("price_text", rec.PriceText != "")
	count("price_value", rec.PriceValue > 0)
	count("area_text", rec.AreaText != "")
	count("area_value", rec.AreaValue > 0)
	count("locality", rec.Locality != "")
	count("society", rec.Society != "")
	count("city", rec.City != "")
	count("property_type", rec.PropertyType != "")
	count("bhk", rec.BHK != "")
	count("status", rec.Status != "" && rec.Status != models.StatusUnspecified)
	count("posting_date", rec.PostingDateRaw != "" || rec.PostingDateAltRaw != "")

	rec.DataQualityScore = float64(filled) / float64(canonicalFieldCount) * 100
	rec.ValidationIssues = issues
}

// IsValid applies the record-level validity rule: a title, or price together
// with area. Premium cards pass with any one of the three; premium styling
// with no content at all is dropped.
func (v *Validator) IsValid(rec *models.PropertyRecord) bool {
	if rec.IsPremium {
		return rec.HasAnyCore()
	}
	return rec.HasCore()
}

// ApplyFilters runs the configured user filters; all configured criteria
// must pass. An unknown area unit skips the area criterion rather than
// excluding the record.
func (v *Validator) ApplyFilters(rec *models.PropertyRecord) bool {
	f := v.filters

	if f.PriceMinLakh > 0 || f.PriceMaxLakh > 0 {
		lakh := rec.PriceInLakh()
		if lakh > 0 {
			if f.PriceMinLakh > 0 && lakh < f.PriceMinLakh {
				return false
			}
			if f.PriceMaxLakh > 0 && lakh > f.PriceMaxLakh {
				return false
			}
		}
	}

	if f.AreaMinSqft > 0 || f.AreaMaxSqft > 0 {
		sqft := rec.AreaInSqft()
		if sqft > 0 {
			if f.AreaMinSqft > 0 && sqft < f.AreaMinSqft {
				return false
			}
			if f.AreaMaxSqft > 0 && sqft > f.AreaMaxSqft {
				return false
			}
		}
	}

	if len(f.PropertyTypes) > 0 {
		haystack := Fold(rec.Title + " " + rec.PropertyType)
		if !containsAny(haystack, f.PropertyTypes) {
			return false
		}
	}

	if len(f.BHKTypes) > 0 {
		bhk := Fold(rec.BHK)
		if !containsAny(bhk, f.BHKTypes) {
			return false
		}
	}

	if len(f.Localities) > 0 {
		haystack := Fold(rec.Locality + " " + rec.Society)
		if !containsAny(haystack, f.Localities) {
			return false
		}
	}

	if len(f.ExcludeKeywords) > 0 {
		haystack := Fold(rec.Title)
		if desc, ok := rec.ExtendedFields["description"].(string); ok {
			haystack += " " + Fold(desc)
		}
		if containsAny(haystack, f.ExcludeKeywords) {
			return false
		}
	}

	return true
}

// ParsePrice parses a display price into value + unit. "Call for Price"
// style strings map to on_request; "₹ N / sqft" maps to per_sqft.
func ParsePrice(text string) (float64, models.PriceUnit) {
	if text == "" {
		return 0, models.PriceUnitUnspecified
	}
	lower := strings.ToLower(text)

	if strings.Contains(lower, "request") || strings.Contains(lower, "call for") {
		return 0, models.PriceUnitOnRequest
	}

	if perSqftHitRe.MatchString(lower) {
		if value, ok := firstNumber(text); ok {
			return value, models.PriceUnitPerSqft
		}
		return 0, models.PriceUnitPerSqft
	}

	if m := priceMagRe.FindStringSubmatch(text); len(m) > 2 {
		value, ok := parseNumber(m[1])
		if !ok {
			return 0, models.PriceUnitUnspecified
		}
		switch strings.ToLower(m[2]) {
		case "cr", "crore":
			return value, models.PriceUnitCrore
		default:
			return value, models.PriceUnitLac
		}
	}

	if value, ok := firstNumber(text); ok {
		return value, models.PriceUnitUnspecified
	}
	return 0, models.PriceUnitUnspecified
}

// ParseArea parses a display area into value + unit
func ParseArea(text string) (float64, models.AreaUnit) {
	if text == "" {
		return 0, models.AreaUnitUnspecified
	}
	value, ok := firstNumber(text)
	if !ok {
		return 0, models.AreaUnitUnspecified
	}

	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "yard"):
		return value, models.AreaUnitSqYards
	case strings.Contains(lower, "meter"), sqMeterRe.MatchString(lower):
		return value, models.AreaUnitSqMeters
	case strings.Contains(lower, "acre"):
		return value, models.AreaUnitAcres
	case strings.Contains(lower, "bigha"):
		return value, models.AreaUnitBigha
	case strings.Contains(lower, "katha"):
		return value, models.AreaUnitKatha
	case strings.Contains(lower, "hectare"):
		return value, models.AreaUnitHectares
	case strings.Contains(lower, "sqft"), strings.Contains(lower, "sq ft"),
		strings.Contains(lower, "sq.ft"), strings.Contains(lower, "sq. ft"):
		return value, models.AreaUnitSqft
	}
	return value, models.AreaUnitUnspecified
}

// ParseAreaKind maps a raw kind token onto the AreaKind vocabulary
func ParseAreaKind(text string) models.AreaKind {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "carpet"):
		return models.AreaKindCarpet
	case strings.Contains(lower, "built"):
		return models.AreaKindBuiltUp
	case strings.Contains(lower, "super"):
		return models.AreaKindSuper
	case strings.Contains(lower, "plot"):
		return models.AreaKindPlot
	case strings.Contains(lower, "land"):
		return models.AreaKindLand
	}
	return models.AreaKindUnspecified
}

// NormalizeBHK maps "3BHK", "3 bhk", "1RK", "Studio" variants onto the fixed
// BHK vocabulary
func NormalizeBHK(text string) string {
	if text == "" {
		return ""
	}
	lower := strings.ToLower(strings.TrimSpace(text))
	if strings.Contains(lower, "studio") {
		return "studio"
	}
	if m := rkRe.FindStringSubmatch(lower); len(m) > 1 {
		return m[1] + " RK"
	}
	if m := bhkNumRe.FindStringSubmatch(lower); len(m) > 1 {
		return m[1] + " BHK"
	}
	return ""
}

// CleanText collapses whitespace, strips control characters, and removes
// currency symbols' thousands separators from numeric display strings
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	text = strings.ReplaceAll(text, "\t", " ")
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}

// Fold lowercases and strips diacritics for robust substring matching
func Fold(text string) string {
	if text == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(text))
	if err != nil {
		return strings.ToLower(text)
	}
	return folded
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if needle == "" {
			continue
		}
		if strings.Contains(haystack, Fold(needle)) {
			return true
		}
	}
	return false
}

// firstNumber pulls the first numeric token out of a display string,
// tolerating thousands separators and the rupee symbol
func firstNumber(text string) (float64, bool) {
	cleaned := currencyRe.ReplaceAllString(text, "")
	m := numberRe.FindString(cleaned)
	if m == "" {
		return 0, false
	}
	return parseNumber(m)
}

func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, ".")
	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
