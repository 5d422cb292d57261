package model

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// nutsToRegion maps NUTS-2 codes to the canonical region names used across
// every table. ITH is the aggregated Trentino-Alto Adige code; being three
// characters long it never survives the area-code length filter.
var nutsToRegion = map[string]string{
	"ITC1": "Piemonte",
	"ITC2": "Valle d Aosta-Vallee d Aoste",
	"ITC3": "Liguria",
	"ITC4": "Lombardia",
	"ITH1": "Provincia autonoma di Bolzano",
	"ITH2": "Provincia autonoma di Trento",
	"ITH3": "Veneto",
	"ITH4": "Friuli-Venezia Giulia",
	"ITH5": "Emilia-Romagna",
	"ITI1": "Toscana",
	"ITI2": "Umbria",
	"ITI3": "Marche",
	"ITI4": "Lazio",
	"ITF1": "Abruzzo",
	"ITF2": "Molise",
	"ITF3": "Campania",
	"ITF4": "Puglia",
	"ITF5": "Basilicata",
	"ITF6": "Calabria",
	"ITG1": "Sicilia",
	"ITG2": "Sardegna",
	"ITH":  "Trentino-Alto Adige",
}

// regionAliases are alternative spellings seen in population files and
// third-party exports, keyed by their folded form.
var regionAliases = map[string]string{
	"valle d aosta":                "Valle d Aosta-Vallee d Aoste",
	"valle daosta":                 "Valle d Aosta-Vallee d Aoste",
	"valle d aosta vallee d aoste": "Valle d Aosta-Vallee d Aoste",
	"bolzano":                      "Provincia autonoma di Bolzano",
	"bolzano bozen":                "Provincia autonoma di Bolzano",
	"provincia autonoma bolzano":   "Provincia autonoma di Bolzano",
	"trento":                       "Provincia autonoma di Trento",
	"provincia autonoma trento":    "Provincia autonoma di Trento",
	"friuli venezia giulia":        "Friuli-Venezia Giulia",
	"emilia romagna":               "Emilia-Romagna",
	"trentino alto adige":          "Trentino-Alto Adige",
	"trentino alto adige sudtirol": "Trentino-Alto Adige",
}

var canonicalByFold map[string]string

func init() {
	canonicalByFold = make(map[string]string, len(nutsToRegion)+len(regionAliases))
	for _, name := range nutsToRegion {
		canonicalByFold[foldRegion(name)] = name
	}
	for alias, name := range regionAliases {
		canonicalByFold[foldRegion(alias)] = name
	}
}

// RegionForCode returns the canonical name for a NUTS code.
func RegionForCode(code string) (string, bool) {
	name, ok := nutsToRegion[strings.TrimSpace(code)]
	return name, ok
}

// CodeForRegion is the reverse lookup of RegionForCode.
func CodeForRegion(region string) (string, bool) {
	for code, name := range nutsToRegion {
		if name == region {
			return code, true
		}
	}
	return "", false
}

// CanonicalRegion resolves a free-form region name (file names, exports) to
// its canonical spelling. Case, accents, apostrophes, dashes and underscores
// are ignored.
func CanonicalRegion(name string) (string, bool) {
	c, ok := canonicalByFold[foldRegion(name)]
	return c, ok
}

// Regions lists the canonical names of the 21 NUTS-2 areas, sorted.
func Regions() []string {
	out := make([]string, 0, len(nutsToRegion))
	for code, name := range nutsToRegion {
		if len(code) == 4 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func foldRegion(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', '\'', '’', '/', '.':
			return ' '
		}
		return r
	}, folded)
	fields := strings.Fields(folded)
	kept := fields[:0]
	for _, f := range fields {
		if f == "di" || f == "del" {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}
