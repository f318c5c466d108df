package auth

import (
	"net/http"
	"strings"
)

// ExtractBearer returns the token from an Authorization header value.
// An empty value yields ErrMissingCredential; any other scheme, or an empty
// token, yields ErrMalformedCredential. The scheme name is matched
// case-insensitively.
func ExtractBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingCredential
	}

	if len(header) < len(AuthSchemeBearer) ||
		!strings.EqualFold(header[:len(AuthSchemeBearer)], AuthSchemeBearer) {
		return "", ErrMalformedCredential
	}

	token := strings.TrimSpace(header[len(AuthSchemeBearer):])
	if token == "" {
		return "", ErrMalformedCredential
	}
	return token, nil
}

// BearerFromRequest extracts the bearer token from r.
func BearerFromRequest(r *http.Request) (string, error) {
	values, ok := r.Header[http.CanonicalHeaderKey(HeaderAuthorization)]
	if !ok || len(values) == 0 {
		return "", ErrMissingCredential
	}
	if values[0] == "" {
		return "", ErrMalformedCredential
	}
	return ExtractBearer(values[0])
}
