package model

// PhoneKind classifies a phone number.
type PhoneKind string

const (
	PhoneMobile   PhoneKind = "mobile"
	PhoneLandline PhoneKind = "landline"
	PhoneUnknown  PhoneKind = "unknown"
)

// PageKind identifies which page a contact value was mined from.
type PageKind string

const (
	PageHomepage   PageKind = "homepage"
	PageContact    PageKind = "contact"
	PageOther      PageKind = "other"
	PageKnownData  PageKind = "known_data"
	PageMapListing PageKind = "map_listing"
)

// Provenance records where a single contact value came from.
type Provenance struct {
	Page PageKind `json:"page"`
	URL  string   `json:"url,omitempty"`
	// Kind is a free-form label for the role of the number on the page
	// (e.g. "Hotline/Customer Service", "Jakarta Office", "Fax").
	Kind string `json:"kind,omitempty"`
}

// PhoneNumber is one classified phone value.
type PhoneNumber struct {
	Raw        string     `json:"raw"`
	Normalized string     `json:"normalized"`
	Kind       PhoneKind  `json:"kind"`
	// Label carries the carrier name for mobiles or the geographic
	// description for landlines, when resolvable.
	Label      string     `json:"label,omitempty"`
	Provenance Provenance `json:"provenance"`
}

// EmailAddress is one validated (or retained-but-invalid) email value.
// Syntactically invalid addresses are kept with Valid=false rather than
// dropped, so callers can decide what to do with them.
type EmailAddress struct {
	Address      string     `json:"address"`
	Domain       string     `json:"domain,omitempty"`
	Valid        bool       `json:"valid"`
	IsDisposable bool       `json:"is_disposable,omitempty"`
	Provenance   Provenance `json:"provenance"`
}
