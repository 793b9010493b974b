// Package normalize cleans and classifies the contact details extracted
// from listings and websites: Indonesian phone numbers, email addresses
// and website URLs.
package normalize

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/sells-group/contact-resolver/internal/model"
)

const defaultRegion = "ID"

var (
	nonDigitRe      = regexp.MustCompile(`\D`)
	plusCodeRe      = regexp.MustCompile(`\w+\+\w+`)
	areaCodeParenRe = regexp.MustCompile(`^\(0(\d+)\)\s*`)
)

// hasRepeatedDigitRun reports whether the string contains eight or more
// identical consecutive digits, a placeholder pattern listings use for
// missing numbers.
func hasRepeatedDigitRun(digits string) bool {
	run := 0
	for i := range len(digits) {
		if i > 0 && digits[i] == digits[i-1] {
			run++
		} else {
			run = 1
		}
		if run >= 8 {
			return true
		}
	}
	return false
}

// hotlineShortCodes are short service numbers that are legitimate
// contacts despite failing the usual length floor.
var hotlineShortCodes = map[string]struct{}{
	"121": {},
	"123": {},
	"150": {},
}

// mobileCarriers maps the three digits after the mobile trunk prefix to
// the Indonesian carrier that owns the block.
var mobileCarriers = map[string]string{
	"811": "Telkomsel", "812": "Telkomsel", "813": "Telkomsel",
	"821": "Telkomsel", "822": "Telkomsel", "823": "Telkomsel",
	"851": "Telkomsel", "852": "Telkomsel", "853": "Telkomsel",
	"814": "Indosat", "815": "Indosat", "816": "Indosat",
	"855": "Indosat", "856": "Indosat", "857": "Indosat", "858": "Indosat",
	"817": "XL Axiata", "818": "XL Axiata", "819": "XL Axiata",
	"859": "XL Axiata", "877": "XL Axiata", "878": "XL Axiata",
	"895": "Tri", "896": "Tri", "897": "Tri", "898": "Tri", "899": "Tri",
	"881": "Smartfren", "882": "Smartfren", "883": "Smartfren",
	"884": "Smartfren", "885": "Smartfren", "886": "Smartfren",
	"887": "Smartfren", "888": "Smartfren", "889": "Smartfren",
}

// areaCodes maps Indonesian landline area codes, without the trunk zero,
// to the city they serve.
var areaCodes = map[string]string{
	"21":  "Jakarta",
	"22":  "Bandung",
	"24":  "Semarang",
	"31":  "Surabaya",
	"61":  "Medan",
	"251": "Bogor",
	"254": "Serang",
	"274": "Yogyakarta",
	"341": "Malang",
	"351": "Madiun",
	"361": "Denpasar/Bali",
	"370": "Mataram/Lombok",
	"411": "Makassar",
	"431": "Manado",
	"511": "Banjarmasin",
	"542": "Samarinda",
	"561": "Pontianak",
	"711": "Palembang",
	"721": "Bandar Lampung",
	"751": "Padang",
	"761": "Pekanbaru",
	"778": "Batam",
}

// PhoneOptions tunes phone normalization.
type PhoneOptions struct {
	// PreserveFormat keeps the raw display form instead of reformatting
	// to international notation. Whitespace is still collapsed.
	PreserveFormat bool
	// Region is the ISO 3166-1 region used to parse numbers without a
	// country prefix. Empty means Indonesia.
	Region string
}

func (o PhoneOptions) region() string {
	if o.Region == "" {
		return defaultRegion
	}
	return o.Region
}

// IsPlausiblePhone rejects strings that cannot be phone numbers: Google
// plus codes appearing in address blurbs, runs of a single repeated
// digit, and anything under 8 significant digits that is not a known
// hotline short code.
func IsPlausiblePhone(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	if plusCodeRe.MatchString(raw) {
		return false
	}
	digits := nonDigitRe.ReplaceAllString(raw, "")
	if hasRepeatedDigitRun(digits) {
		return false
	}
	if _, ok := hotlineShortCodes[digits]; ok {
		return true
	}
	return len(digits) >= 8
}

// Phone cleans and classifies a raw phone string. The zero value of
// PhoneNumber with empty Normalized is returned for implausible input.
func Phone(raw string, opts PhoneOptions) model.PhoneNumber {
	raw = strings.TrimSpace(raw)
	if !IsPlausiblePhone(raw) {
		return model.PhoneNumber{Raw: raw}
	}

	pn := model.PhoneNumber{Raw: raw}
	pn.Normalized = formatPhone(raw, opts)
	pn.Kind, pn.Label = classifyPhone(raw, opts.region())
	return pn
}

// formatPhone renders the display form: international notation unless
// the caller asked to preserve the source formatting.
func formatPhone(raw string, opts PhoneOptions) string {
	collapsed := strings.Join(strings.Fields(raw), " ")
	if opts.PreserveFormat {
		return collapsed
	}

	parsed, err := phonenumbers.Parse(toParseable(raw), opts.region())
	if err == nil {
		return phonenumbers.Format(parsed, phonenumbers.INTERNATIONAL)
	}

	// Manual fallback for strings the library will not parse.
	digits := nonDigitRe.ReplaceAllString(raw, "")
	switch {
	case len(digits) <= 5:
		return digits
	case strings.HasPrefix(digits, "0"):
		return "+62" + digits[1:]
	case strings.HasPrefix(digits, "62"):
		return "+" + digits
	case len(digits) > 8:
		return "+" + digits
	default:
		return digits
	}
}

// toParseable converts Indonesian domestic notation to something the
// metadata library accepts.
func toParseable(raw string) string {
	cleaned := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(cleaned, "+"):
		return cleaned
	case strings.HasPrefix(cleaned, "(0"):
		m := areaCodeParenRe.FindStringSubmatch(cleaned)
		if m != nil {
			rest := nonDigitRe.ReplaceAllString(areaCodeParenRe.ReplaceAllString(cleaned, ""), "")
			return "+62" + m[1] + rest
		}
		return cleaned
	case strings.HasPrefix(cleaned, "0"):
		return "+62" + cleaned[1:]
	case strings.HasPrefix(cleaned, "62"):
		return "+" + cleaned
	default:
		return cleaned
	}
}

// classifyPhone determines mobile vs landline and a human label, using
// the metadata library first and the manual prefix tables as fallback.
func classifyPhone(raw, region string) (model.PhoneKind, string) {
	digits := nonDigitRe.ReplaceAllString(raw, "")
	if _, ok := hotlineShortCodes[digits]; ok {
		return model.PhoneLandline, "Hotline"
	}

	parsed, err := phonenumbers.Parse(toParseable(raw), region)
	if err == nil && phonenumbers.IsValidNumber(parsed) {
		carrierName, _ := phonenumbers.GetCarrierForNumber(parsed, "en")
		geoDesc, _ := phonenumbers.GetGeocodingForNumber(parsed, "en")

		switch phonenumbers.GetNumberType(parsed) {
		case phonenumbers.MOBILE:
			if carrierName != "" {
				return model.PhoneMobile, "Mobile (" + carrierName + ")"
			}
			return model.PhoneMobile, mobileLabelManual(digits)
		case phonenumbers.FIXED_LINE:
			if geoDesc != "" {
				return model.PhoneLandline, "Office (" + geoDesc + ")"
			}
			return model.PhoneLandline, officeLabelManual(digits)
		case phonenumbers.FIXED_LINE_OR_MOBILE:
			if looksMobile(digits) {
				if carrierName != "" {
					return model.PhoneMobile, "Mobile (" + carrierName + ")"
				}
				return model.PhoneMobile, mobileLabelManual(digits)
			}
			if geoDesc != "" {
				return model.PhoneLandline, "Office (" + geoDesc + ")"
			}
			return model.PhoneLandline, officeLabelManual(digits)
		}
	}

	return classifyManual(digits, raw)
}

func looksMobile(digits string) bool {
	if strings.HasPrefix(digits, "08") {
		return true
	}
	return len(digits) > 2 && strings.HasPrefix(digits, "62") && digits[2] == '8'
}

// classifyManual is the prefix-table fallback used when the metadata
// library rejects the number.
func classifyManual(digits, raw string) (model.PhoneKind, string) {
	if strings.HasPrefix(digits, "08") && len(digits) >= 10 && len(digits) <= 13 {
		return model.PhoneMobile, mobileLabelManual(digits)
	}
	if strings.HasPrefix(digits, "628") {
		return model.PhoneMobile, mobileLabelManual(digits)
	}

	if strings.HasPrefix(raw, "+") && !strings.HasPrefix(raw, "+62") {
		// Non-Indonesian international numbers carry no regional tables.
		return model.PhoneMobile, "Mobile"
	}

	if strings.HasPrefix(digits, "0") || strings.HasPrefix(digits, "62") {
		return model.PhoneLandline, officeLabelManual(digits)
	}

	// Anything long enough that matched no prefix table defaults to
	// mobile. This is a heuristic, not a guarantee.
	if len(digits) >= 8 {
		return model.PhoneMobile, "Mobile"
	}
	return model.PhoneUnknown, ""
}

// mobileLabelManual resolves the carrier from the 8xx block prefix.
func mobileLabelManual(digits string) string {
	var block string
	switch {
	case strings.HasPrefix(digits, "08") && len(digits) >= 4:
		block = digits[1:4]
	case strings.HasPrefix(digits, "628") && len(digits) >= 5:
		block = digits[2:5]
	}
	if name, ok := mobileCarriers[block]; ok {
		return "Mobile (" + name + ")"
	}
	return "Mobile"
}

// officeLabelManual resolves the city from the area-code prefix.
func officeLabelManual(digits string) string {
	var rest string
	switch {
	case strings.HasPrefix(digits, "0"):
		rest = digits[1:]
	case strings.HasPrefix(digits, "62"):
		rest = digits[2:]
	default:
		return "Office"
	}
	// Two-digit codes first (Jakarta, Bandung), then three-digit.
	if len(rest) >= 2 {
		if city, ok := areaCodes[rest[:2]]; ok {
			return "Office (" + city + ")"
		}
	}
	if len(rest) >= 3 {
		if city, ok := areaCodes[rest[:3]]; ok {
			return "Office (" + city + ")"
		}
	}
	return "Office"
}
