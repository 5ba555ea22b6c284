package main

import (
	"fmt"
	"strconv"
	"strings"
)

// ISBN related lengths and prefix.
const (
	ISBN10Length  = 10
	ISBN13Length  = 13
	ISBN13Prefix  = "978"
	isbnBodyChars = 9
)

// ChecksumPolicy defines how the ISBN-13 check value is rendered.
type ChecksumPolicy string

const (
	// ChecksumStandard applies the final modulo 10 so the check value is
	// always a single digit.
	ChecksumStandard ChecksumPolicy = "standard"
	// ChecksumLegacy appends `10 - sum%10` as is. A sum divisible by 10
	// produces the two characters "10" and a 14 characters identifier.
	ChecksumLegacy ChecksumPolicy = "legacy"
)

// IsValid reports whether the policy is a known one.
func (p ChecksumPolicy) IsValid() bool {
	return p == ChecksumStandard || p == ChecksumLegacy
}

// NormalizeISBN converts an ISBN-10 into its ISBN-13 form with the standard
// checksum. Any identifier which is not 10 characters long or which already
// starts with "978" is returned unchanged.
func NormalizeISBN(id string) string {
	return NormalizeISBNWithPolicy(id, ChecksumStandard)
}

// NormalizeISBNWithPolicy is NormalizeISBN with an explicit checksum policy.
func NormalizeISBNWithPolicy(id string, policy ChecksumPolicy) string {
	if len(id) != ISBN10Length || strings.HasPrefix(id, ISBN13Prefix) {
		return id
	}
	return convertISBN10(id, policy)
}

// convertISBN10 prefixes the first nine characters with "978" and appends
// the check value computed with weights 1 and 3 alternating.
func convertISBN10(id string, policy ChecksumPolicy) string {
	candidate := ISBN13Prefix + id[:isbnBodyChars]
	sum := 0
	for i := 0; i < len(candidate); i++ {
		weight := 1
		if i%2 != 0 {
			weight = 3
		}
		sum += (int(candidate[i]) - '0') * weight
	}
	check := 10 - (sum % 10)
	if policy != ChecksumLegacy {
		check %= 10
	}
	return candidate + strconv.Itoa(check)
}

// CleanISBN removes the separators users usually type or scan along with
// the identifier: spaces and hyphens.
func CleanISBN(raw string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
}

// IsCanonicalISBN reports whether id is made of exactly 13 ASCII digits.
func IsCanonicalISBN(id string) bool {
	if len(id) != ISBN13Length {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

// PrepareISBN cleans and normalizes a user provided identifier then ensures
// the result is a canonical one. This is what callers must do before
// submitting a fetch job.
func PrepareISBN(raw string, policy ChecksumPolicy) (string, error) {
	id := NormalizeISBNWithPolicy(CleanISBN(raw), policy)
	if !IsCanonicalISBN(id) {
		return id, fmt.Errorf("%w: %q", ErrInvalidISBN, raw)
	}
	return id, nil
}
