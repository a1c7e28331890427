// Package variables parses and renders the {{name}} placeholders used in
// command content. Everything here is pure: no I/O and no shared state.
//
// A placeholder is "{{" + identifier + "}}" where the identifier is a letter
// or underscore followed by up to 15 letters, digits or underscores.
package variables

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mael-queau/roboct0-api/apperr"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"

	// MaxNameLength is the longest accepted variable name.
	MaxNameLength = 16
)

var (
	namePattern        = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,15}$`)
	placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]{0,15})\}\}`)
)

// ValidName reports whether name is an acceptable variable identifier.
func ValidName(name string) bool { return namePattern.MatchString(name) }

// Extract returns the variable names referenced by content in order of
// appearance, duplicates included. It fails with apperr.InvalidTemplate on an
// unmatched "{{" or "}}" and on any delimited span that is not a valid name.
func Extract(content string) ([]string, error) {
	names := []string{}
	rest := content
	offset := 0
	for {
		o := strings.Index(rest, openDelim)
		c := strings.Index(rest, closeDelim)
		if o < 0 && c < 0 {
			return names, nil
		}
		if o < 0 || (c >= 0 && c < o) {
			return nil, apperr.Newf(apperr.InvalidTemplate, "Unmatched closing delimiter at position %d.", offset+c)
		}

		body := rest[o+len(openDelim):]
		end := strings.Index(body, closeDelim)
		if end < 0 {
			return nil, apperr.Newf(apperr.InvalidTemplate, "Unmatched opening delimiter at position %d.", offset+o)
		}
		if nested := strings.Index(body, openDelim); nested >= 0 && nested < end {
			return nil, apperr.Newf(apperr.InvalidTemplate, "Unmatched opening delimiter at position %d.", offset+o)
		}

		name := body[:end]
		if !ValidName(name) {
			return nil, apperr.Newf(apperr.InvalidTemplate, "Invalid variable name %q.", name)
		}
		names = append(names, name)

		consumed := o + len(openDelim) + end + len(closeDelim)
		rest = rest[consumed:]
		offset += consumed
	}
}

// Format substitutes every {{name}} in content with the decimal value from
// values. Substituted text is never re-scanned. A referenced name absent from
// values fails with apperr.MissingVariable.
func Format(content string, values map[string]int) (string, error) {
	var missing string
	out := placeholderPattern.ReplaceAllStringFunc(content, func(m string) string {
		name := m[len(openDelim) : len(m)-len(closeDelim)]
		v, ok := values[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return strconv.Itoa(v)
	})
	if missing != "" {
		return "", apperr.Newf(apperr.MissingVariable, "Variable %q has no stored value.", missing)
	}
	return out, nil
}

// Dedupe returns names with later duplicates removed, keeping first-seen order.
func Dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Diff compares the names stored for a command with the names extracted from
// its new content. toDelete holds existing names no longer referenced and
// toCreate holds new names not yet stored. Names in both are left out so their
// counters survive the update.
func Diff(existing, next []string) (toDelete, toCreate []string) {
	inNext := make(map[string]struct{}, len(next))
	for _, n := range next {
		inNext[n] = struct{}{}
	}
	inExisting := make(map[string]struct{}, len(existing))
	for _, n := range existing {
		inExisting[n] = struct{}{}
	}

	toDelete = []string{}
	for _, n := range Dedupe(existing) {
		if _, ok := inNext[n]; !ok {
			toDelete = append(toDelete, n)
		}
	}
	toCreate = []string{}
	for _, n := range Dedupe(next) {
		if _, ok := inExisting[n]; !ok {
			toCreate = append(toCreate, n)
		}
	}
	return toDelete, toCreate
}
