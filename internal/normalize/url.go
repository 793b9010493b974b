package normalize

import "strings"

// urlLabels are display labels listings sometimes glue onto the website
// field.
var urlLabels = []string{"situs web:", "website:", "web:"}

// URL strips label prefixes and whitespace from a scraped website value
// and guarantees a scheme. Empty input returns "".
func URL(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return ""
	}

	lower := strings.ToLower(cleaned)
	for _, label := range urlLabels {
		if idx := strings.Index(lower, label); idx >= 0 {
			cleaned = cleaned[:idx] + cleaned[idx+len(label):]
			lower = strings.ToLower(cleaned)
		}
	}

	// Listings wrap long URLs; whitespace inside one is never real.
	cleaned = strings.Join(strings.Fields(cleaned), "")
	if cleaned == "" {
		return ""
	}

	if !strings.HasPrefix(cleaned, "http://") && !strings.HasPrefix(cleaned, "https://") {
		cleaned = "https://" + cleaned
	}
	return cleaned
}
