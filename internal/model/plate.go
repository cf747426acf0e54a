package model

import (
	"regexp"
	"strings"
)

// Swedish civilian plates: ABC123 or ABC12D.
var (
	plateDigits = regexp.MustCompile(`^[A-Z]{3}[0-9]{3}$`)
	plateLetter = regexp.MustCompile(`^[A-Z]{3}[0-9]{2}[A-Z]$`)
)

// IsPlate reports whether s is a valid, already upper-cased plate.
func IsPlate(s string) bool {
	return plateDigits.MatchString(s) || plateLetter.MatchString(s)
}

// ValidatePlates upper-cases input, splits it on whitespace and partitions the
// tokens into valid plates and invalid tokens, preserving order in both.
func ValidatePlates(input string) (valid, invalid []string) {
	for _, tok := range strings.Fields(strings.ToUpper(input)) {
		if IsPlate(tok) {
			valid = append(valid, tok)
		} else {
			invalid = append(invalid, tok)
		}
	}
	return valid, invalid
}

// InvalidPlatesMessage formats the warning shown for rejected plate tokens.
// It returns "" when there is nothing to report.
func InvalidPlatesMessage(invalid []string) string {
	if len(invalid) == 0 {
		return ""
	}
	return "Ogiltiga registreringsnummer: " + strings.Join(invalid, ", ")
}
