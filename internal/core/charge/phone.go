package charge

import "strings"

const (
	countryCode = "55"
	phoneLength = 12
)

// NormalizePhone converts a raw payer phone into the canonical form used by the
// messaging platform: digits only, "55" country code, 12 digits total
// (country code + area code + 8-digit local number).
//
// A 13-digit number has the mobile ninth digit after the area code removed.
// Shorter numbers are zero-padded after the country code and longer ones keep
// only their last 10 national digits. The function is idempotent and returns
// an empty string when the input carries no digits at all.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := b.String()
	if digits == "" {
		return ""
	}

	if !strings.HasPrefix(digits, countryCode) {
		digits = countryCode + digits
	}

	// Drop the first digit after the area code ("55" + "DD" + "9XXXXXXXX").
	if len(digits) == phoneLength+1 {
		digits = digits[:4] + digits[5:]
	}

	national := digits[len(countryCode):]
	switch {
	case len(digits) < phoneLength:
		national = strings.Repeat("0", phoneLength-len(digits)) + national
	case len(digits) > phoneLength:
		national = national[len(national)-(phoneLength-len(countryCode)):]
	}

	return countryCode + national
}
