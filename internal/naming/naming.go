// Package naming derives canonical source filenames from a project's word
// list. A naming scheme fixes the separator and per-word casing; an acronym
// policy decides how words flagged as acronyms are cased on top of that.
package naming

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrInvalidScheme is returned for a naming scheme outside the closed set.
	ErrInvalidScheme = errors.New("invalid naming scheme")

	// ErrInvalidPolicy is returned for an acronym policy outside the closed set.
	ErrInvalidPolicy = errors.New("invalid acronym policy")
)

// Scheme is the casing/separator convention a folder uses for filenames.
type Scheme string

const (
	SchemeHyphen     Scheme = "hyphen"     // file-io
	SchemeUnderscore Scheme = "underscore" // file_io
	SchemeCamel      Scheme = "camel"      // fileIO
	SchemePascal     Scheme = "pascal"     // FileIO
	SchemeLower      Scheme = "lower"      // fileio
)

// Schemes lists every valid scheme in declaration order.
var Schemes = []Scheme{SchemeHyphen, SchemeUnderscore, SchemeCamel, SchemePascal, SchemeLower}

// AcronymPolicy governs how a word flagged as an acronym is cased.
type AcronymPolicy string

const (
	PolicyUpper          AcronymPolicy = "upper"
	PolicyLower          AcronymPolicy = "lower"
	PolicyTwoLetterLimit AcronymPolicy = "two_letter_limit"
)

// ParseScheme parses a scheme name case-insensitively.
func ParseScheme(s string) (Scheme, error) {
	scheme := Scheme(strings.ToLower(strings.TrimSpace(s)))
	if !scheme.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidScheme, s)
	}
	return scheme, nil
}

// Valid reports whether s is one of the known schemes.
func (s Scheme) Valid() bool {
	switch s {
	case SchemeHyphen, SchemeUnderscore, SchemeCamel, SchemePascal, SchemeLower:
		return true
	}
	return false
}

// UnmarshalYAML lets manifests name schemes directly.
func (s *Scheme) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := ParseScheme(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseAcronymPolicy parses a policy name case-insensitively.
func ParseAcronymPolicy(s string) (AcronymPolicy, error) {
	policy := AcronymPolicy(strings.ToLower(strings.TrimSpace(s)))
	if !policy.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
	return policy, nil
}

// Valid reports whether p is one of the known policies.
func (p AcronymPolicy) Valid() bool {
	switch p {
	case PolicyUpper, PolicyLower, PolicyTwoLetterLimit:
		return true
	}
	return false
}

// UnmarshalYAML lets configuration name policies directly.
func (p *AcronymPolicy) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := ParseAcronymPolicy(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Acronyms is a case-insensitive set of acronym words.
type Acronyms map[string]struct{}

// NewAcronyms builds a set from a list of words.
func NewAcronyms(words ...string) Acronyms {
	set := make(Acronyms, len(words))
	for _, w := range words {
		set[strings.ToUpper(w)] = struct{}{}
	}
	return set
}

// Contains reports membership, ignoring case.
func (a Acronyms) Contains(word string) bool {
	_, ok := a[strings.ToUpper(word)]
	return ok
}

// Generate returns the filename stem for words under scheme.
func Generate(words []string, acronyms Acronyms, policy AcronymPolicy, scheme Scheme) (string, error) {
	switch scheme {
	case SchemeHyphen:
		return join(words, "-", func(_ int, w string) string {
			return cased(w, acronyms, policy, scheme)
		}), nil
	case SchemeUnderscore:
		return join(words, "_", func(_ int, w string) string {
			return cased(w, acronyms, policy, scheme)
		}), nil
	case SchemeCamel:
		return join(words, "", func(i int, w string) string {
			if i == 0 {
				return strings.ToLower(w)
			}
			return cased(Title(w), acronyms, policy, scheme)
		}), nil
	case SchemePascal:
		return join(words, "", func(_ int, w string) string {
			return cased(Title(w), acronyms, policy, scheme)
		}), nil
	case SchemeLower:
		return join(words, "", func(_ int, w string) string {
			return strings.ToLower(w)
		}), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScheme, string(scheme))
	}
}

// Display returns a human readable project name, e.g. "File IO". Under
// two_letter_limit it behaves like the separator schemes, so short acronyms
// stay title-cased.
func Display(words []string, acronyms Acronyms, policy AcronymPolicy) string {
	return join(words, " ", func(_ int, w string) string {
		return cased(Title(w), acronyms, policy, SchemeUnderscore)
	})
}

func join(words []string, sep string, fn func(int, string) string) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = fn(i, w)
	}
	return strings.Join(parts, sep)
}

// cased applies the acronym policy to a word that already carries the
// scheme's default casing.
func cased(word string, acronyms Acronyms, policy AcronymPolicy, scheme Scheme) string {
	if !acronyms.Contains(word) {
		return word
	}
	switch policy {
	case PolicyUpper:
		return strings.ToUpper(word)
	case PolicyLower:
		return strings.ToLower(word)
	case PolicyTwoLetterLimit:
		if len([]rune(word)) <= 2 && (scheme == SchemeCamel || scheme == SchemePascal) {
			return strings.ToUpper(word)
		}
	}
	return word
}

// Title upper-cases the first letter of every run of letters and lower-cases
// the rest, so "hELLO" becomes "Hello" and "x2y" becomes "X2Y".
func Title(word string) string {
	var b strings.Builder
	b.Grow(len(word))
	prevLetter := false
	for _, r := range word {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}
