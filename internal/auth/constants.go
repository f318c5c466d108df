// Package auth defines the credential validation contract used by the
// admission pipeline and the identity it produces.
package auth

// Header names.
const (
	// HeaderAuthorization carries the bearer credential.
	HeaderAuthorization = "Authorization"

	// HeaderUserID carries the verified subject ID to upstream services.
	HeaderUserID = "X-User-Id"

	// HeaderUserRole carries the verified role to upstream services.
	HeaderUserRole = "X-User-Role"
)

// AuthSchemeBearer is the Authorization scheme prefix, including the separator.
const AuthSchemeBearer = "Bearer "

// IdentityHeaders lists the headers only the gateway may set.
var IdentityHeaders = []string{HeaderUserID, HeaderUserRole}
