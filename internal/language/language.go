package language

import (
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// terminologyToBibliographic maps ISO 639-2/T codes to the /B forms that
// Matroska language tags use. Codes absent here are the same in both.
var terminologyToBibliographic = map[string]string{
	"bod": "tib", "ces": "cze", "cym": "wel", "deu": "ger", "ell": "gre",
	"eus": "baq", "fas": "per", "fra": "fre", "hye": "arm", "isl": "ice",
	"kat": "geo", "mkd": "mac", "mri": "mao", "msa": "may", "mya": "bur",
	"nld": "dut", "ron": "rum", "slk": "slo", "sqi": "alb", "zho": "chi",
}

var bibliographicToTerminology = func() map[string]string {
	m := make(map[string]string, len(terminologyToBibliographic))
	for t, b := range terminologyToBibliographic {
		m[b] = t
	}
	return m
}()

// wordTags resolves English language names that appear in release labels
// ("Japanese", "Spanish"). Names come from CLDR so they match DisplayName.
var wordTags = func() map[string]xlanguage.Tag {
	common := []string{
		"en", "es", "fr", "de", "it", "pt", "ja", "ko", "zh", "ru", "ar",
		"hi", "id", "th", "vi", "tr", "nl", "pl", "sv", "ta", "te",
	}
	namer := display.English.Languages()
	m := make(map[string]xlanguage.Tag, len(common))
	for _, code := range common {
		tag := xlanguage.Make(code)
		m[strings.ToLower(namer.Name(tag))] = tag
	}
	return m
}()

// resolve turns a two- or three-letter code (either ISO 639-2 form) or an
// English language name into a base language.
func resolve(code string) (xlanguage.Base, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" || code == "und" {
		return xlanguage.Base{}, false
	}
	if tag, ok := wordTags[code]; ok {
		base, _ := tag.Base()
		return base, true
	}
	if t, ok := bibliographicToTerminology[code]; ok {
		code = t
	}
	tag, err := xlanguage.Parse(code)
	if err != nil {
		return xlanguage.Base{}, false
	}
	base, confidence := tag.Base()
	return base, confidence != xlanguage.No
}

// ToISO2 converts a recognized language code or name to ISO 639-1. Returns
// an empty string for "und", for unknown input, and for languages without
// a two-letter code.
func ToISO2(code string) string {
	base, ok := resolve(code)
	if !ok {
		return ""
	}
	if s := base.String(); len(s) == 2 {
		return s
	}
	return ""
}

// ToISO3 converts a recognized language code to the ISO 639-2/B form used
// in container metadata. Unknown three-letter codes pass through; anything
// else becomes "und".
func ToISO3(code string) string {
	if base, ok := resolve(code); ok {
		iso3 := base.ISO3()
		if b, ok := terminologyToBibliographic[iso3]; ok {
			return b
		}
		if iso3 != "" && iso3 != "und" {
			return iso3
		}
	}
	if code = strings.ToLower(strings.TrimSpace(code)); len(code) == 3 {
		return code
	}
	return "und"
}

// DisplayName returns the English name of a language. Returns "Unknown" for
// empty input, or the uppercased code when nothing matches.
func DisplayName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "Unknown"
	}
	if base, ok := resolve(code); ok {
		if name := display.English.Languages().Name(base); name != "" {
			return name
		}
	}
	return strings.ToUpper(code)
}
