// Package normalize folds free-form posting text into the comparable forms
// used for dedup keys, fuzzy matching and filtering.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoteMarker replaces the location of remote postings.
const RemoteMarker = "remote"

// companySuffixes are legal-entity words dropped from company names so that
// "Acme Inc" and "Acme, Inc." and "ACME" fold to the same value.
var companySuffixes = map[string]bool{
	"inc": true, "incorporated": true, "llc": true, "ltd": true, "limited": true,
	"corp": true, "corporation": true, "co": true, "company": true, "gmbh": true,
	"ag": true, "sa": true, "sas": true, "bv": true, "plc": true, "pty": true,
	"srl": true, "oy": true, "ab": true, "as": true, "lp": true, "llp": true,
}

var remoteWords = []string{"remote", "anywhere", "work from home", "wfh", "distributed"}

// Text lower-cases s, strips accents, turns punctuation into spaces and
// collapses whitespace.
func Text(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' || r == '#':
			// keep "c++" and "c#" distinguishable from "c"
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Title normalizes a job title.
func Title(s string) string {
	return Text(s)
}

// Company normalizes a company name and drops trailing legal suffixes.
func Company(s string) string {
	fields := strings.Fields(Text(s))
	for len(fields) > 1 && companySuffixes[fields[len(fields)-1]] {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

// Location normalizes a location. Remote postings, and locations that only
// say they are remote, become RemoteMarker.
func Location(s string, remote bool) string {
	if remote {
		return RemoteMarker
	}
	loc := Text(s)
	if loc == "" {
		return ""
	}
	if IsRemote(loc) && !hasPlaceBesidesRemote(loc) {
		return RemoteMarker
	}
	return loc
}

// IsRemote reports whether free-form location text mentions remote work.
func IsRemote(s string) bool {
	l := " " + Text(s) + " "
	for _, w := range remoteWords {
		if strings.Contains(l, " "+w+" ") {
			return true
		}
	}
	return false
}

// hasPlaceBesidesRemote reports whether a folded location names something
// other than the remote keywords, e.g. "remote us" vs "berlin or remote".
// Country-wide remote qualifiers are still treated as remote.
func hasPlaceBesidesRemote(loc string) bool {
	for _, f := range strings.Fields(loc) {
		switch f {
		case "remote", "anywhere", "work", "from", "home", "wfh", "distributed",
			"us", "usa", "united", "states", "worldwide", "global", "only", "first", "friendly", "or", "and":
			continue
		default:
			return true
		}
	}
	return false
}

// Tokens splits normalized text into unique words, preserving first-seen order.
func Tokens(s string) []string {
	fields := strings.Fields(s)
	seen := make(map[string]bool, len(fields))
	out := fields[:0:0]
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
