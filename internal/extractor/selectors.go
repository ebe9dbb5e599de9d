package extractor

import "regexp"

// All selector lists and text patterns live in this file so that portal
// markup drift is a one-file change covered by the fixture tests.

// CardContainerSelectors locate listing cards on a search-results page,
// ordered most-specific first. The traversal engine accepts the first
// selector that yields a plausible card count.
var CardContainerSelectors = []string{
	"div.mb-srp__card",
	"div[class*='mb-srp__card']",
	"div.SRCard",
	"div[class*='srpTuple']",
	"li[class*='cardholder']",
	"div[class*='property-card']",
	"div[class*='listing-card']",
	"div[data-testid*='srp-card']",
}

// Per-field selector lists, tried in order on one card
var (
	titleSelectors = []string{
		"h2.mb-srp__card--title",
		"h2[class*='card--title']",
		"a[class*='card--title']",
		".property-title",
		".listing-title",
		"h2 a",
		"h2",
	}
	priceSelectors = []string{
		"div.mb-srp__card__price--amount",
		"[class*='price--amount']",
		"[class*='card__price']",
		".property-price",
		".listing-price",
		"[class*='price']",
	}
	areaSelectors = []string{
		"div.mb-srp__card__summary--value",
		"[class*='summary--value']",
		"[class*='card-area']",
		".property-area",
		"[class*='area']",
	}
	localitySelectors = []string{
		"[class*='card--locality']",
		"[class*='locality']",
		".property-location",
		"[class*='location']",
	}
	societySelectors = []string{
		"[class*='society']",
		"[class*='project-name']",
		"a[class*='card--project']",
	}
	statusSelectors = []string{
		"[class*='possession']",
		"[class*='status']",
		"[data-summary='possession-status']",
	}
	postingDateSelectors = []string{
		"[class*='card__photo--count']",
		"[class*='update__date']",
		"[class*='posted']",
		"[class*='card-date']",
	}
	postingDateAltSelectors = []string{
		"[class*='card--desc--date']",
		"[class*='listing-date']",
		"span[class*='date']",
	}
)

// PDPCriticalSelector is the element navigation waits on before capturing a
// detail page
var PDPCriticalSelector = "h1"

// PDP (detail page) selector lists
var (
	pdpTitleSelectors = []string{
		"h1.mb-ldp__dtls__title",
		"h1[class*='dtls__title']",
		"h1[itemprop='name']",
		"h1",
	}
	pdpPriceSelectors = []string{
		"div.mb-ldp__dtls__price",
		"[class*='dtls__price']",
		"[itemprop='price']",
		"[class*='price']",
	}
	pdpAreaSelectors = []string{
		"[class*='dtls__body__summary--item']",
		"[class*='carpet-area']",
		"[class*='super-area']",
		"[class*='area']",
	}
	pdpDescriptionSelectors = []string{
		"div.mb-ldp__dtls__about",
		"[class*='about-property']",
		"[class*='description']",
		"[itemprop='description']",
	}
	pdpAmenitySelectors = []string{
		"div.mb-ldp__amenities li",
		"[class*='amenities'] li",
		"[class*='amenity']",
	}
	pdpBuilderSelectors = []string{
		"[class*='builder-name']",
		"[class*='developer']",
		"[class*='seller-name']",
	}
	pdpSpecSelectors = []string{
		"ul.mb-ldp__more-detail li",
		"[class*='more-detail'] li",
		"[class*='specification'] li",
	}
)

// placeholderTexts are vendor strings that look like data but carry none
var placeholderTexts = map[string]bool{
	"contact for price": true,
	"price on request":  true,
	"call for price":    true,
	"na":                true,
	"n/a":               true,
	"-":                 true,
	"loading...":        true,
	"get phone no.":     true,
	"view phone number": true,
}

// premiumIndicators are CSS class tokens / text fragments marking paid
// placements; cards carrying one get lenient validation
var premiumIndicators = []string{
	"preferred-agent",
	"card-luxury",
	"premium",
	"sponsored",
	"featured",
	"highlighted",
}

// pdpPathFragments identify a detail-page URL on this portal
var pdpPathFragments = []string{
	"pdpid",
	"propertydetail",
	"property-details",
}

// CitySlugs maps a city keyword to its listing-URL slug. A few cities have
// irregular slugs on the portal.
var CitySlugs = map[string]string{
	"gurgaon":   "gurgaon",
	"delhi":     "new-delhi",
	"new delhi": "new-delhi",
	"mumbai":    "mumbai",
	"bangalore": "bangalore",
	"bengaluru": "bangalore",
	"noida":     "noida",
	"pune":      "pune",
	"hyderabad": "hyderabad",
	"chennai":   "chennai",
	"kolkata":   "kolkata",
	"ahmedabad": "ahmedabad",
	"thane":     "thane",
	"faridabad": "faridabad",
	"ghaziabad": "ghaziabad",
}

// Text-scan regexes used when no selector matched
var (
	priceTextRe      = regexp.MustCompile(`(?i)₹\s*([\d.,]+)\s*(lac|lakh|cr|crore)|([\d.,]+)\s*(lac|lakh|cr|crore)`)
	perSqftRe        = regexp.MustCompile(`(?i)₹?\s*([\d,]+)\s*(?:/|per)\s*sq\.?\s*ft`)
	areaTextRe       = regexp.MustCompile(`(?i)([\d.,]+)\s*(sq\.?\s*ft|sqft|sq\.?\s*yards?|sq\.?\s*meters?|sq\.?\s*m\b|acres?|bigha|katha|hectares?)`)
	bhkRe            = regexp.MustCompile(`(?i)(\d+(?:\.5)?)\s*BHK|(\d+)\s*RK|\bstudio\b`)
	bathRe           = regexp.MustCompile(`(?i)(\d+)\s*bath(?:room)?s?`)
	balconyRe        = regexp.MustCompile(`(?i)(\d+)\s*balcon(?:y|ies)`)
	statusLabelRe    = regexp.MustCompile(`(?i)(?:status|possession)\s*:?\s*([A-Za-z0-9 ,'\-]+)`)
	possessionDateRe = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*[,'\s]+(\d{2,4})\b`)
	areaKindRe       = regexp.MustCompile(`(?i)\b(carpet|built[\s-]?up|super)\b`)
)

// statusKeywords map card text onto the normalized status vocabulary,
// ordered by specificity ("ready to move" must win over "ready")
var statusKeywords = []struct {
	keyword string
	status  string
}{
	{"immediate possession", "immediate_possession"},
	{"ready to move", "ready_to_move"},
	{"under construction", "under_construction"},
	{"new launch", "new_launch"},
	{"pre launch", "pre_launch"},
	{"pre-launch", "pre_launch"},
	{"resale", "resale"},
	{"new booking", "new_launch"},
	{"ready", "ready_to_move"},
}

// propertyTypeKeywords infer the property type from title text,
// ordered so compound types match before their substrings
var propertyTypeKeywords = []struct {
	keyword string
	ptype   string
}{
	{"builder floor", "builder_floor"},
	{"independent floor", "builder_floor"},
	{"independent house", "house"},
	{"villa", "villa"},
	{"studio apartment", "studio"},
	{"studio", "studio"},
	{"penthouse", "penthouse"},
	{"plot", "plot"},
	{"land", "plot"},
	{"apartment", "apartment"},
	{"flat", "apartment"},
	{"house", "house"},
}
