package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractDetail extracts the raw field map plus extended fields from a
// detail-page document. The attempt counts as successful when at least a
// title or a price came out.
func (e *Extractor) ExtractDetail(doc *goquery.Document) CardResult {
	root := doc.Selection
	pageText := normalizeSpace(root.Find("body").Text())
	fields := make(map[string]string)

	put(fields, FieldTitle, e.selectText(root, pdpTitleSelectors))
	put(fields, FieldPriceText, e.detailPrice(root, pageText))
	e.detailArea(root, pageText, fields)
	put(fields, FieldLocality, e.selectText(root, localitySelectors))
	put(fields, FieldSociety, e.selectText(root, societySelectors))
	put(fields, FieldBHK, e.extractBHK(fields[FieldTitle], pageText))
	put(fields, FieldBathrooms, firstGroup(bathRe, pageText))
	put(fields, FieldBalconies, firstGroup(balconyRe, pageText))
	put(fields, FieldStatus, e.ExtractStatus(root, pageText))
	put(fields, FieldDescription, e.selectText(root, pdpDescriptionSelectors))
	put(fields, FieldPropertyType, e.inferPropertyType(fields[FieldTitle]+" "+pageText))

	result := CardResult{
		Fields:         fields,
		Amenities:      e.detailAmenities(root),
		Specifications: e.detailSpecifications(root),
	}

	if builder := e.selectText(root, pdpBuilderSelectors); builder != "" {
		if result.Specifications == nil {
			result.Specifications = make(map[string]string)
		}
		result.Specifications["builder_name"] = builder
	}

	return result
}

// Success reports whether a detail extraction yielded enough to count
func (r CardResult) Success() bool {
	return r.Fields[FieldTitle] != "" || r.Fields[FieldPriceText] != ""
}

func (e *Extractor) detailPrice(root *goquery.Selection, pageText string) string {
	if text := e.selectText(root, pdpPriceSelectors); text != "" {
		return text
	}
	if m := priceTextRe.FindString(pageText); m != "" {
		return normalizeSpace(m)
	}
	return ""
}

func (e *Extractor) detailArea(root *goquery.Selection, pageText string, fields map[string]string) {
	text := e.selectText(root, pdpAreaSelectors)
	if text == "" || areaTextRe.FindString(text) == "" {
		text = areaTextRe.FindString(pageText)
	}
	if text == "" {
		return
	}
	put(fields, FieldAreaText, normalizeSpace(text))
	if m := areaKindRe.FindString(pageText); m != "" {
		put(fields, FieldAreaKind, strings.ToLower(normalizeSpace(m)))
	}
}

// detailAmenities collects distinct amenity labels from the amenity blocks
func (e *Extractor) detailAmenities(root *goquery.Selection) []string {
	seen := make(map[string]bool)
	var amenities []string

	for _, selector := range pdpAmenitySelectors {
		root.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := normalizeSpace(s.Text())
			if text == "" || len(text) > 60 {
				return
			}
			key := strings.ToLower(text)
			if !seen[key] {
				seen[key] = true
				amenities = append(amenities, text)
			}
		})
		if len(amenities) > 0 {
			break
		}
	}
	return amenities
}

// detailSpecifications parses "Label: Value" and "Label Value" rows from the
// specification lists
func (e *Extractor) detailSpecifications(root *goquery.Selection) map[string]string {
	specs := make(map[string]string)

	for _, selector := range pdpSpecSelectors {
		root.Find(selector).Each(func(_ int, s *goquery.Selection) {
			// Prefer explicit label/value children when the markup has them
			label := normalizeSpace(s.Find("[class*='label']").First().Text())
			value := normalizeSpace(s.Find("[class*='value']").First().Text())
			if label == "" || value == "" {
				text := normalizeSpace(s.Text())
				if idx := strings.Index(text, ":"); idx > 0 && idx < len(text)-1 {
					label = strings.TrimSpace(text[:idx])
					value = strings.TrimSpace(text[idx+1:])
				}
			}
			if label != "" && value != "" && validText(value) {
				specs[specKey(label)] = value
			}
		})
		if len(specs) > 0 {
			break
		}
	}

	if len(specs) == 0 {
		return nil
	}
	return specs
}

// specKey normalizes a specification label into a snake_case map key
func specKey(label string) string {
	lower := strings.ToLower(strings.TrimSpace(label))
	return strings.Join(strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == '-' || r == '/' || r == '.'
	}), "_")
}
