package memory

import (
	"fmt"
	"strings"
	"unicode"
)

// Slug derives the base slug for a title and type: lowercase, drop
// tokens that repeat the type name (a title should never carry its own
// type, but stripping is cheap to verify), collapse runs of
// non-alphanumerics to single hyphens, prepend the type. Pure and
// deterministic.
func Slug(title string, t Type) string {
	var b strings.Builder
	prevHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevHyphen = false
		} else if !prevHyphen {
			b.WriteByte('-')
			prevHyphen = true
		}
	}
	slug := strings.Trim(b.String(), "-")

	// Remove tokens equal to the type name so "OAuth2 Decision" with
	// type decision becomes decision-oauth2, not decision-oauth2-decision.
	tokens := strings.Split(slug, "-")
	kept := tokens[:0]
	for _, tok := range tokens {
		if tok == "" || tok == string(t) {
			continue
		}
		kept = append(kept, tok)
	}
	body := strings.Join(kept, "-")
	if body == "" {
		body = "untitled"
	}
	return string(t) + "-" + body
}

// UniqueSlug returns the first free slug for the title, appending -1,
// -2, ... on collision. Same title, type and existing-id set always
// yield the same result.
func UniqueSlug(title string, t Type, exists func(string) bool) string {
	base := Slug(title, t)
	if !exists(base) {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !exists(candidate) {
			return candidate
		}
	}
}
