package ocr

import (
	"regexp"
	"strings"
	"unicode/utf16"
)

// ValidationSampleLength is how many leading characters of a payload are checked.
const ValidationSampleLength = 100

var base64Class = regexp.MustCompile(`^[A-Za-z0-9+/=]+$`)

// ImageField returns the image member of a decoded request body. It returns
// ErrNoImage when the member is absent or falsy ("", 0, false, null) and
// ErrInvalidImageType when it is present but not a string.
func ImageField(fields map[string]any) (string, error) {
	switch v := fields["image"].(type) {
	case nil:
		return "", ErrNoImage
	case string:
		if v == "" {
			return "", ErrNoImage
		}
		return v, nil
	case bool:
		if !v {
			return "", ErrNoImage
		}
	case float64:
		if v == 0 {
			return "", ErrNoImage
		}
	}
	return "", ErrInvalidImageType
}

// NormalizeImage returns everything after the first comma of image, or image
// itself when it has none. This strips data-URI prefixes such as
// "data:image/png;base64,".
func NormalizeImage(image string) string {
	if _, after, found := strings.Cut(image, ","); found {
		return after
	}
	return image
}

// ValidateBase64 checks the first ValidationSampleLength characters of a
// cleaned payload against the base64 alphabet. An empty payload is invalid.
func ValidateBase64(clean string) error {
	sample := Sample(clean)
	if !base64Class.MatchString(sample) {
		return &ValidationError{
			Field:  "image",
			Sample: sample,
			Err:    ErrInvalidBase64,
		}
	}
	return nil
}

// Sample returns the first ValidationSampleLength UTF-16 code units of s,
// the unit browsers use for string length. A character that would be split
// across the limit is left out.
func Sample(s string) string {
	n := 0
	for i, r := range s {
		n += utf16.RuneLen(r)
		if n > ValidationSampleLength {
			return s[:i]
		}
	}
	return s
}

// Diagnostics describes an inbound payload for the optional debug block.
type Diagnostics struct {
	ImageLength int    `json:"imageLength"`
	CleanLength int    `json:"cleanLength"`
	HadPrefix   bool   `json:"hadPrefix"`
	Prefix      string `json:"prefix,omitempty"`
}

// Diagnose reports payload lengths before and after normalization.
func Diagnose(image string) Diagnostics {
	prefix, clean, found := strings.Cut(image, ",")
	if !found {
		return Diagnostics{ImageLength: len(image), CleanLength: len(image)}
	}
	return Diagnostics{
		ImageLength: len(image),
		CleanLength: len(clean),
		HadPrefix:   true,
		Prefix:      Sample(prefix),
	}
}
