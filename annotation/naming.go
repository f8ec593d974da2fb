package annotation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SampleName holds the identifiers encoded in a <genus>_<species>_<strain fields> file stem.
type SampleName struct {
	Genus    string
	Species  string
	Strain   string
	LocusTag string
}

// StrainFromName joins every field after genus and species with "-".
func StrainFromName(stem string) string {
	fields := strings.Split(stem, "_")
	if len(fields) < 3 {
		return ""
	}
	return strings.Join(fields[2:], "-")
}

// LocusTagFromName is the upper-cased genus initial followed by the strain fields
// with every "-" removed: Paenibacillus_odorifer_JJ-123 -> PJJ123.
func LocusTagFromName(stem string) string {
	return LocusTagWithPrefix(stem, "")
}

// LocusTagWithPrefix is LocusTagFromName with an explicit prefix; an empty prefix
// falls back to the genus initial.
func LocusTagWithPrefix(stem, prefix string) string {
	fields := strings.Split(stem, "_")
	if len(fields) < 3 {
		return ""
	}
	if prefix == "" {
		r, _ := utf8.DecodeRuneInString(fields[0])
		if r == utf8.RuneError {
			return ""
		}
		prefix = string(unicode.ToUpper(r))
	}
	return prefix + strings.ReplaceAll(strings.Join(fields[2:], ""), "-", "")
}

func ParseName(stem, locusPrefix string) (SampleName, error) {
	fields := strings.Split(stem, "_")
	if len(fields) < 3 || fields[0] == "" || fields[1] == "" {
		return SampleName{}, fmt.Errorf("file name %q is not <genus>_<species>_<strain>", stem)
	}
	return SampleName{
		Genus:    fields[0],
		Species:  fields[1],
		Strain:   StrainFromName(stem),
		LocusTag: LocusTagWithPrefix(stem, locusPrefix),
	}, nil
}
