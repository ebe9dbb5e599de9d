package extractor

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/estatescope/go-estate-scraper/internal/logger"
)

// Raw field map keys. The validator consumes these; keeping them as plain
// strings keeps the extractor a pure document→map function.
const (
	FieldTitle          = "title"
	FieldPriceText      = "price_text"
	FieldAreaText       = "area_text"
	FieldAreaKind       = "area_kind"
	FieldLocality       = "locality"
	FieldSociety        = "society"
	FieldPropertyType   = "property_type"
	FieldBHK            = "bhk"
	FieldBathrooms      = "bathrooms"
	FieldBalconies      = "balconies"
	FieldStatus         = "status"
	FieldPostingDate    = "posting_date"
	FieldPostingDateAlt = "posting_date_alt"
	FieldURL            = "url"
	FieldDescription    = "description"
)

// CardResult is the raw output of extracting one listing card or PDP
type CardResult struct {
	Fields            map[string]string
	IsPremium         bool
	PremiumIndicators []string
	Amenities         []string
	Specifications    map[string]string
}

// Extractor turns parsed documents into raw field maps using prioritized
// selector lists with regex fallbacks over the card text
type Extractor struct {
	baseURL string
	logger  *logger.Logger
}

// New creates an extractor resolving relative URLs against baseURL
func New(baseURL string) *Extractor {
	return &Extractor{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger.NewLogger("extractor"),
	}
}

// FindCards walks the container selector list and returns the first
// selection with at least minCards matches, plus the selector that won.
// Below-threshold matches are remembered as a fallback so a drifted page
// still yields whatever cards it has. The fallback keeps the first selector
// that matched anything: the list is ordered most-specific first, and the
// broad substring selectors also match nested card children.
func (e *Extractor) FindCards(doc *goquery.Document, minCards int) (*goquery.Selection, string) {
	var bestSel *goquery.Selection
	var bestSelector string

	for _, selector := range CardContainerSelectors {
		sel := doc.Find(selector)
		n := sel.Length()
		if n >= minCards {
			return sel, selector
		}
		if bestSel == nil && n > 0 {
			bestSel = sel
			bestSelector = selector
		}
	}

	if bestSel != nil && bestSel.Length() > 0 {
		e.logger.WithFields(map[string]interface{}{
			"selector": bestSelector,
			"cards":    bestSel.Length(),
			"min":      minCards,
		}).Warn("No container selector reached the card threshold, using best match")
	}
	return bestSel, bestSelector
}

// ExtractCard extracts the raw field map from one listing card
func (e *Extractor) ExtractCard(card *goquery.Selection) CardResult {
	fields := make(map[string]string)
	cardText := normalizeSpace(card.Text())

	put(fields, FieldTitle, e.selectText(card, titleSelectors))
	put(fields, FieldPriceText, e.extractPrice(card, cardText))
	e.extractArea(card, cardText, fields)
	put(fields, FieldLocality, e.selectText(card, localitySelectors))
	put(fields, FieldSociety, e.selectText(card, societySelectors))
	put(fields, FieldBHK, e.extractBHK(fields[FieldTitle], cardText))
	put(fields, FieldBathrooms, firstGroup(bathRe, cardText))
	put(fields, FieldBalconies, firstGroup(balconyRe, cardText))
	put(fields, FieldStatus, e.ExtractStatus(card, cardText))
	put(fields, FieldPostingDate, e.selectText(card, postingDateSelectors))
	put(fields, FieldPostingDateAlt, e.selectText(card, postingDateAltSelectors))
	put(fields, FieldPropertyType, e.inferPropertyType(fields[FieldTitle]+" "+cardText))
	put(fields, FieldURL, e.ExtractCardURL(card))

	isPremium, indicators := e.DetectPremium(card, cardText)

	return CardResult{
		Fields:            fields,
		IsPremium:         isPremium,
		PremiumIndicators: indicators,
	}
}

// selectText tries each selector in order and returns the first match whose
// text survives placeholder validation
func (e *Extractor) selectText(s *goquery.Selection, selectors []string) string {
	for _, selector := range selectors {
		text := normalizeSpace(s.Find(selector).First().Text())
		if validText(text) {
			return text
		}
	}
	return ""
}

// extractPrice prefers the selector list, then scans the card text for a
// currency + magnitude pattern
func (e *Extractor) extractPrice(card *goquery.Selection, cardText string) string {
	if text := e.selectText(card, priceSelectors); text != "" {
		return text
	}
	if m := priceTextRe.FindString(cardText); m != "" {
		return normalizeSpace(m)
	}
	if m := perSqftRe.FindString(cardText); m != "" {
		return normalizeSpace(m)
	}
	return ""
}

// extractArea fills area_text and, when present near the match, area_kind
func (e *Extractor) extractArea(card *goquery.Selection, cardText string, fields map[string]string) {
	text := e.selectText(card, areaSelectors)
	if text == "" || areaTextRe.FindString(text) == "" {
		text = areaTextRe.FindString(cardText)
	}
	if text == "" {
		return
	}
	put(fields, FieldAreaText, normalizeSpace(text))
	if m := areaKindRe.FindString(cardText); m != "" {
		put(fields, FieldAreaKind, strings.ToLower(normalizeSpace(m)))
	}
}

// extractBHK looks in the title first since cards always lead with "N BHK"
func (e *Extractor) extractBHK(title, cardText string) string {
	for _, text := range []string{title, cardText} {
		if m := bhkRe.FindString(text); m != "" {
			return normalizeSpace(m)
		}
	}
	return ""
}

// ExtractStatus applies the four-level status strategy: selector, labeled
// regex, keyword scan (most specific first), then possession-date inference.
func (e *Extractor) ExtractStatus(card *goquery.Selection, cardText string) string {
	if text := e.selectText(card, statusSelectors); text != "" {
		if normalized := normalizeStatus(text); normalized != "" {
			return normalized
		}
	}

	if m := statusLabelRe.FindStringSubmatch(cardText); len(m) > 1 {
		if normalized := normalizeStatus(m[1]); normalized != "" {
			return normalized
		}
	}

	lower := strings.ToLower(cardText)
	for _, kw := range statusKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.status
		}
	}

	// A bare "Dec 2024" style date on the card implies dated possession
	if possessionDateRe.MatchString(cardText) {
		return "possession_dated"
	}

	return ""
}

// normalizeStatus maps free status text onto the fixed vocabulary
func normalizeStatus(text string) string {
	lower := strings.ToLower(normalizeSpace(text))
	for _, kw := range statusKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.status
		}
	}
	if possessionDateRe.MatchString(lower) {
		return "possession_dated"
	}
	return ""
}

// DetectPremium inspects CSS class tokens and card text for the premium
// indicator set
func (e *Extractor) DetectPremium(card *goquery.Selection, cardText string) (bool, []string) {
	classes, _ := card.Attr("class")
	card.Find("[class]").Each(func(_ int, s *goquery.Selection) {
		c, _ := s.Attr("class")
		classes += " " + c
	})
	haystack := strings.ToLower(classes + " " + cardText)

	var found []string
	for _, indicator := range premiumIndicators {
		if strings.Contains(haystack, indicator) {
			found = append(found, indicator)
		}
	}
	return len(found) > 0, found
}

// ExtractCardURL returns the card's PDP link. A candidate href must carry a
// known detail-path fragment or a configured city slug; relative URLs are
// resolved against the portal base.
func (e *Extractor) ExtractCardURL(card *goquery.Selection) string {
	var result string
	card.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return true
		}
		if !IsPDPLink(href) {
			return true
		}
		result = e.Absolutize(href)
		return false
	})
	return result
}

// IsPDPLink reports whether an href points at a detail page
func IsPDPLink(href string) bool {
	lower := strings.ToLower(href)
	for _, fragment := range pdpPathFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	for _, slug := range CitySlugs {
		if strings.Contains(lower, "-"+slug) || strings.Contains(lower, "/"+slug) {
			return true
		}
	}
	return false
}

// Absolutize resolves a possibly relative href against the portal base URL
func (e *Extractor) Absolutize(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(e.baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// validText rejects empty and vendor placeholder strings
func validText(text string) bool {
	if text == "" {
		return false
	}
	return !placeholderTexts[strings.ToLower(text)]
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func put(fields map[string]string, key, value string) {
	if value != "" {
		fields[key] = value
	}
}

func firstGroup(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); len(m) > 1 {
		return m[1]
	}
	return ""
}

// inferPropertyType scans for type keywords, compound types first
func (e *Extractor) inferPropertyType(text string) string {
	lower := strings.ToLower(text)
	for _, kw := range propertyTypeKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.ptype
		}
	}
	return ""
}
