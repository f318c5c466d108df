package admission

import (
	"net/http"

	"github.com/letsplay/gateway/internal/util"
)

// Client-facing messages. Credential failures share one message so the
// response never reveals whether a token was expired or otherwise invalid.
const (
	MsgRateLimited          = "Too many requests. Please try again later."
	MsgMissingAuthorization = "Missing authorization header"
	MsgInvalidAuthorization = "Invalid authorization header"
	MsgInvalidToken         = "Invalid or expired token"
)

// ErrorResponse is the body of every rejected request.
type ErrorResponse = util.ErrorResponse

// WriteError writes a JSON error body with the matching status code.
func WriteError(w http.ResponseWriter, status int, message string) {
	util.WriteJSONError(w, status, message)
}

// writeResult writes a Respond result.
func writeResult(w http.ResponseWriter, res Result) {
	if res.message == "" {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(res.status)
		return
	}
	WriteError(w, res.status, res.message)
}
