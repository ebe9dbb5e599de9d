package models

import (
	"time"
)

// PriceUnit is the normalized unit of a listed price
type PriceUnit string

const (
	PriceUnitLac         PriceUnit = "lac"
	PriceUnitCrore       PriceUnit = "crore"
	PriceUnitPerSqft     PriceUnit = "per_sqft"
	PriceUnitOnRequest   PriceUnit = "on_request"
	PriceUnitUnspecified PriceUnit = "unspecified"
)

// AreaUnit is the unit the portal displayed an area in
type AreaUnit string

const (
	AreaUnitSqft        AreaUnit = "sqft"
	AreaUnitSqYards     AreaUnit = "sq_yards"
	AreaUnitSqMeters    AreaUnit = "sq_meters"
	AreaUnitAcres       AreaUnit = "acres"
	AreaUnitBigha       AreaUnit = "bigha"
	AreaUnitKatha       AreaUnit = "katha"
	AreaUnitHectares    AreaUnit = "hectares"
	AreaUnitUnspecified AreaUnit = "unspecified"
)

// SqftFactors converts a display unit into square feet. Unknown units are
// absent so area filters can skip them instead of guessing.
var SqftFactors = map[AreaUnit]float64{
	AreaUnitSqft:     1,
	AreaUnitSqYards:  9,
	AreaUnitSqMeters: 10.7639,
	AreaUnitAcres:    43560,
	AreaUnitHectares: 107639,
}

// AreaKind distinguishes which area measurement the value refers to
type AreaKind string

const (
	AreaKindCarpet      AreaKind = "carpet"
	AreaKindBuiltUp     AreaKind = "built_up"
	AreaKindSuper       AreaKind = "super"
	AreaKindPlot        AreaKind = "plot"
	AreaKindLand        AreaKind = "land"
	AreaKindUnspecified AreaKind = "unspecified"
)

// PossessionStatus is the normalized possession status vocabulary
type PossessionStatus string

const (
	StatusReadyToMove         PossessionStatus = "ready_to_move"
	StatusUnderConstruction   PossessionStatus = "under_construction"
	StatusNewLaunch           PossessionStatus = "new_launch"
	StatusResale              PossessionStatus = "resale"
	StatusPreLaunch           PossessionStatus = "pre_launch"
	StatusImmediatePossession PossessionStatus = "immediate_possession"
	StatusPossessionDated     PossessionStatus = "possession_dated"
	StatusUnspecified         PossessionStatus = "unspecified"
)

// PropertyRecord is one scraped listing. Listing-phase extraction fills the
// core fields; a PDP visit overlays ExtendedFields and refines the rest.
type PropertyRecord struct {
	URL     string `bson:"url" json:"url"`
	URLHash string `bson:"url_hash" json:"url_hash"`
	Title   string `bson:"title" json:"title"`

	PriceText  string    `bson:"price_text" json:"price_text"`
	PriceValue float64   `bson:"price_value" json:"price_value"`
	PriceUnit  PriceUnit `bson:"price_unit" json:"price_unit"`

	AreaText  string   `bson:"area_text" json:"area_text"`
	AreaValue float64  `bson:"area_value" json:"area_value"`
	AreaUnit  AreaUnit `bson:"area_unit" json:"area_unit"`
	AreaKind  AreaKind `bson:"area_kind" json:"area_kind"`

	Locality string `bson:"locality" json:"locality"`
	Society  string `bson:"society" json:"society"`
	City     string `bson:"city" json:"city"`

	PropertyType string `bson:"property_type" json:"property_type"`
	BHK          string `bson:"bhk" json:"bhk"`
	Bathrooms    int    `bson:"bathrooms" json:"bathrooms"`
	Balconies    int    `bson:"balconies" json:"balconies"`

	Status PossessionStatus `bson:"status" json:"status"`

	PostingDateRaw    string     `bson:"posting_date_raw" json:"posting_date_raw"`
	PostingDateAltRaw string     `bson:"posting_date_alt_raw,omitempty" json:"posting_date_alt_raw,omitempty"`
	PostingDateParsed *time.Time `bson:"posting_date_parsed,omitempty" json:"posting_date_parsed,omitempty"`

	// Provenance
	PageNumber     int       `bson:"page_number" json:"page_number"`
	PositionOnPage int       `bson:"position_on_page" json:"position_on_page"`
	ScrapedAt      time.Time `bson:"scraped_at" json:"scraped_at"`
	SessionID      string    `bson:"session_id,omitempty" json:"session_id,omitempty"`

	IsPremium         bool     `bson:"is_premium" json:"is_premium"`
	PremiumIndicators []string `bson:"premium_indicators,omitempty" json:"premium_indicators,omitempty"`

	DataQualityScore float64  `bson:"data_quality_score" json:"data_quality_score"`
	ValidationIssues []string `bson:"validation_issues,omitempty" json:"validation_issues,omitempty"`

	// Populated only after PDP scraping: amenities, builder_name,
	// specifications, description, floor, facing, furnishing and similar
	ExtendedFields map[string]interface{} `bson:"extended_fields,omitempty" json:"extended_fields,omitempty"`
}

// HasCore reports whether the record carries enough content to be valid: a
// title, or a price together with an area. Premium-styled cards with no
// content fail this and are dropped.
func (r *PropertyRecord) HasCore() bool {
	if r.Title != "" {
		return true
	}
	return r.PriceValue > 0 && r.AreaValue > 0
}

// HasAnyCore is the lenient check used for premium cards: any one of
// title, price or area is enough.
func (r *PropertyRecord) HasAnyCore() bool {
	return r.Title != "" || r.PriceValue > 0 || r.AreaValue > 0
}

// PriceInLakh returns the price normalized to lakh. Crore converts at 100;
// per-sqft and on-request prices have no lakh equivalent and return 0.
func (r *PropertyRecord) PriceInLakh() float64 {
	switch r.PriceUnit {
	case PriceUnitLac:
		return r.PriceValue
	case PriceUnitCrore:
		return r.PriceValue * 100
	default:
		return 0
	}
}

// AreaInSqft converts the area to square feet, or 0 when the unit is unknown
func (r *PropertyRecord) AreaInSqft() float64 {
	factor, ok := SqftFactors[r.AreaUnit]
	if !ok {
		return 0
	}
	return r.AreaValue * factor
}

// MergeDetail overlays PDP-phase fields onto a listing-phase record.
// Non-empty detail fields win; extended fields are unioned with detail
// taking precedence.
func (r *PropertyRecord) MergeDetail(detail *PropertyRecord) {
	if detail == nil {
		return
	}
	if detail.Title != "" {
		r.Title = detail.Title
	}
	if detail.PriceText != "" {
		r.PriceText = detail.PriceText
		r.PriceValue = detail.PriceValue
		r.PriceUnit = detail.PriceUnit
	}
	if detail.AreaText != "" {
		r.AreaText = detail.AreaText
		r.AreaValue = detail.AreaValue
		r.AreaUnit = detail.AreaUnit
		r.AreaKind = detail.AreaKind
	}
	if detail.Locality != "" {
		r.Locality = detail.Locality
	}
	if detail.Society != "" {
		r.Society = detail.Society
	}
	if detail.BHK != "" {
		r.BHK = detail.BHK
	}
	if detail.Bathrooms > 0 {
		r.Bathrooms = detail.Bathrooms
	}
	if detail.Balconies > 0 {
		r.Balconies = detail.Balconies
	}
	if detail.Status != "" && detail.Status != StatusUnspecified {
		r.Status = detail.Status
	}
	if len(detail.ExtendedFields) > 0 {
		if r.ExtendedFields == nil {
			r.ExtendedFields = make(map[string]interface{}, len(detail.ExtendedFields))
		}
		for k, v := range detail.ExtendedFields {
			r.ExtendedFields[k] = v
		}
	}
}
