// Package policy decides which routes require an authenticated caller.
package policy

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
)

// MatchType is how an entry's path is compared with the request path.
type MatchType string

// Match types.
const (
	MatchExact  MatchType = "exact"
	MatchPrefix MatchType = "prefix"
)

// AnyMethod matches every HTTP method.
const AnyMethod = "*"

// ErrInvalidEntry is returned for a malformed policy entry.
var ErrInvalidEntry = errors.New("invalid route policy entry")

// Entry is one row of the classification table.
type Entry struct {
	Method       string
	Path         string
	Match        MatchType
	RequiresAuth bool
}

// matches reports whether the entry covers method and a cleaned path.
// Prefix matches stop at segment boundaries, so /api/media does not cover
// /api/mediaadmin.
func (e Entry) matches(method, p string) bool {
	if e.Method != AnyMethod && e.Method != method {
		return false
	}

	switch e.Match {
	case MatchExact:
		return p == e.Path
	case MatchPrefix:
		if !strings.HasPrefix(p, e.Path) {
			return false
		}
		return len(p) == len(e.Path) || strings.HasSuffix(e.Path, "/") || p[len(e.Path)] == '/'
	default:
		return false
	}
}

// DefaultEntries returns the public allowlist: account registration and
// login, plus read-only access to the product catalog and media. Writes to
// the same paths fall through to the private default.
func DefaultEntries() []Entry {
	return []Entry{
		{Method: AnyMethod, Path: "/api/auth/", Match: MatchPrefix, RequiresAuth: false},
		{Method: http.MethodGet, Path: "/api/products", Match: MatchPrefix, RequiresAuth: false},
		{Method: http.MethodGet, Path: "/api/media", Match: MatchPrefix, RequiresAuth: false},
	}
}

// Classifier evaluates an ordered, immutable policy table. The first
// matching entry wins; requests matching no entry require authentication.
type Classifier struct {
	entries []Entry
}

// NewClassifier validates and copies entries.
func NewClassifier(entries []Entry) (*Classifier, error) {
	c := &Classifier{entries: make([]Entry, 0, len(entries))}

	for i, e := range entries {
		e.Method = strings.ToUpper(strings.TrimSpace(e.Method))
		if e.Method == "" {
			e.Method = AnyMethod
		}
		if e.Match == "" {
			e.Match = MatchPrefix
		}

		switch {
		case !strings.HasPrefix(e.Path, "/"):
			return nil, fmt.Errorf("%w: entry %d: path %q must start with /", ErrInvalidEntry, i, e.Path)
		case e.Match != MatchExact && e.Match != MatchPrefix:
			return nil, fmt.Errorf("%w: entry %d: unknown match type %q", ErrInvalidEntry, i, e.Match)
		}

		c.entries = append(c.entries, e)
	}

	return c, nil
}

// MustNewClassifier is NewClassifier that panics on error, for static tables.
func MustNewClassifier(entries []Entry) *Classifier {
	c, err := NewClassifier(entries)
	if err != nil {
		panic(err)
	}
	return c
}

// IsPreflight reports whether method is a CORS preflight.
func IsPreflight(method string) bool {
	return method == http.MethodOptions
}

// RequiresAuth reports whether a request must carry a valid credential.
func (c *Classifier) RequiresAuth(method, requestPath string) bool {
	if IsPreflight(method) {
		return false
	}
	if e, ok := c.Match(method, requestPath); ok {
		return e.RequiresAuth
	}
	return true
}

// Match returns the first entry covering the request.
func (c *Classifier) Match(method, requestPath string) (Entry, bool) {
	p := CleanPath(requestPath)
	for _, e := range c.entries {
		if e.matches(method, p) {
			return e, true
		}
	}
	return Entry{}, false
}

// Entries returns a copy of the table.
func (c *Classifier) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// CleanPath resolves dot segments so /api/auth/../users cannot borrow a
// public prefix. A trailing slash is preserved.
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}
