// Package admission implements the gateway's request admission pipeline:
// CORS preflight, per-client rate limiting, route classification, bearer
// credential validation and identity header injection.
package admission

import (
	"net/http"
	"strconv"
)

type verdict uint8

const (
	verdictContinue verdict = iota
	verdictForward
	verdictRespond
)

// Result is the outcome of a single stage. A stage either continues with a
// possibly modified request, forwards the request upstream, or responds
// directly to the client.
type Result struct {
	verdict verdict
	request *http.Request
	status  int
	message string
}

// Continue passes r to the next stage.
func Continue(r *http.Request) Result {
	return Result{verdict: verdictContinue, request: r}
}

// Forward ends the pipeline and hands r to the upstream handler.
func Forward(r *http.Request) Result {
	return Result{verdict: verdictForward, request: r}
}

// Respond ends the pipeline with a response. A non-empty message is written
// as a JSON error body; an empty one yields an empty body.
func Respond(status int, message string) Result {
	return Result{verdict: verdictRespond, status: status, message: message}
}

// Continues reports whether the next stage should run.
func (r Result) Continues() bool { return r.verdict == verdictContinue }

// Forwards reports whether the request is admitted upstream.
func (r Result) Forwards() bool { return r.verdict == verdictForward }

// Request returns the request carried by Continue or Forward.
func (r Result) Request() *http.Request { return r.request }

// Status returns the response status for Respond.
func (r Result) Status() int { return r.status }

// Message returns the error message for Respond.
func (r Result) Message() string { return r.message }

// outcome is the metric label for a terminal result.
func (r Result) outcome() string {
	switch r.verdict {
	case verdictForward:
		return "forward"
	case verdictRespond:
		return strconv.Itoa(r.status)
	default:
		return "continue"
	}
}

// Stage is a named step of the pipeline.
type Stage struct {
	Name string
	Run  func(r *http.Request) Result
}

// run executes stages in order until one terminates. A request that passes
// every stage is forwarded. It returns the terminal result and the name of
// the stage that produced it.
func run(stages []Stage, r *http.Request) (Result, string) {
	for _, s := range stages {
		res := s.Run(r)
		if !res.Continues() {
			return res, s.Name
		}
		if res.request != nil {
			r = res.request
		}
	}
	return Forward(r), "end"
}
