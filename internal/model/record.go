// Package model defines the contact record types produced by the resolution
// engine and the raw listing shape consumed from search providers.
package model

// DataSource identifies which resolution strategy produced a record.
type DataSource string

const (
	SourceMapListing        DataSource = "map_listing"
	SourceSimilarMapListing DataSource = "similar_map_listing"
	SourceAlternativeSearch DataSource = "alternative_search"
	SourceWebsite           DataSource = "website"
)

// Input is one company to resolve. Address and District are optional hints
// appended to the primary search query.
type Input struct {
	Name     string `json:"name"`
	Address  string `json:"address,omitempty"`
	District string `json:"district,omitempty"`
}

// ContactRecord is the resolved, merged contact data for one company.
// Once returned, the record is owned by the caller; the engine keeps no
// reference to it.
type ContactRecord struct {
	Name         string       `json:"name"`
	Address      string       `json:"address,omitempty"`
	Phones       []PhoneNumber `json:"phones,omitempty"`
	Email        *EmailAddress `json:"email,omitempty"`
	Website      string       `json:"website,omitempty"`
	Rating       string       `json:"rating,omitempty"`
	ReviewsCount string       `json:"reviews_count,omitempty"`
	Category     string       `json:"category,omitempty"`
	Coordinates  *Coordinates `json:"coordinates,omitempty"`

	DataSource DataSource `json:"data_source,omitempty"`
	SourceURL  string     `json:"source_url,omitempty"`

	// MatchedFrom holds the original query name when a fuzzy-matched
	// candidate was merged in. SimilarityScore is only set alongside it
	// and is always >= the threshold that was in force at merge time.
	MatchedFrom     string  `json:"matched_from,omitempty"`
	SimilarityScore float64 `json:"similarity_score,omitempty"`

	// SimilarCandidate records a fuzzy match that scored below the
	// threshold and was therefore NOT merged.
	SimilarCandidate *SimilarCandidate `json:"similar_candidate,omitempty"`

	FromCache bool `json:"from_cache,omitempty"`
	Found     bool `json:"found"`
}

// Coordinates is a latitude/longitude pair from the listing surface.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SimilarCandidate is a below-threshold fuzzy match, kept as metadata only.
type SimilarCandidate struct {
	Name  string  `json:"name"`
	Phone string  `json:"phone,omitempty"`
	Score float64 `json:"score"`
}

// HasActionableData reports whether the record carries at least one field
// worth caching or returning as a hit (address or any phone).
func (r *ContactRecord) HasActionableData() bool {
	return r != nil && (r.Address != "" || len(r.Phones) > 0)
}

// FirstPhone returns the primary phone in normalized form, or "".
func (r *ContactRecord) FirstPhone() string {
	if len(r.Phones) == 0 {
		return ""
	}
	return r.Phones[0].Normalized
}

// NotFound builds the explicit terminal result for a company the engine
// could not resolve. NotFound results are never written to the cache.
func NotFound(name string) *ContactRecord {
	return &ContactRecord{Name: name, Found: false}
}

// RawListing is the strategy-agnostic shape every search path produces.
// The orchestrator's merge step only ever sees this type, regardless of
// whether the data came from the primary listing surface, an alternative
// search, or a fuzzy-name variation.
type RawListing struct {
	Name         string `json:"name"`
	Address      string `json:"address,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Website      string `json:"website,omitempty"`
	Email        string `json:"email,omitempty"`
	Rating       string `json:"rating,omitempty"`
	ReviewsCount string `json:"reviews_count,omitempty"`
	Category     string `json:"category,omitempty"`
	Latitude     float64 `json:"latitude,omitempty"`
	Longitude    float64 `json:"longitude,omitempty"`
	ListingURL   string `json:"listing_url,omitempty"`
}

// IsEmpty reports whether the listing carries no usable data at all.
func (l *RawListing) IsEmpty() bool {
	if l == nil {
		return true
	}
	return l.Address == "" && l.Phone == "" && l.Website == "" && l.Email == ""
}

// Progress is the per-company snapshot delivered to batch progress callbacks.
type Progress struct {
	Index         int            `json:"index"`
	Total         int            `json:"total"`
	CurrentName   string         `json:"current_name"`
	CurrentSource DataSource     `json:"current_source,omitempty"`
	Record        *ContactRecord `json:"record,omitempty"`
}
