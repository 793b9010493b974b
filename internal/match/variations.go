package match

import "strings"

const maxVariations = 2

// Variations returns at most two alternative search strings for a
// company name, most promising first. The heuristics favour adding the
// PT prefix, localising "X Global Services" style names, and collapsing
// to a distinct leading brand word.
func Variations(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	upper := strings.ToUpper(name)
	parts := strings.Fields(name)

	var out []string
	out = append(out, name)

	switch {
	case !strings.HasPrefix(upper, "PT "):
		out = append(out, "PT "+name)
	case strings.Contains(upper, "GLOBAL") && strings.Contains(upper, "SERVICE") && len(parts) >= 2:
		// "PT Acme Global Services" often lists as "Acme Indonesia".
		out = append(out, parts[1]+" Indonesia")
	case len(parts) >= 3 && len(parts[1]) >= 2:
		// Collapse to the brand word after the PT prefix.
		out = append(out, parts[1])
	}

	if len(out) > maxVariations {
		out = out[:maxVariations]
	}
	return out
}
