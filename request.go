package x402kit

import (
	"net/http"

	"github.com/402kit/402kit-go/types"
)

// Request is the transport-neutral request descriptor the engine operates
// on. Transport bindings (pkg/stdlib, pkg/gin, pkg/echo) build one per
// inbound request; BodySHA256 is optional and only set by callers that want
// the payment bound to the request body.
type Request struct {
	Method     string
	Host       string
	Path       string
	Header     http.Header
	BodySHA256 string
}

// Binding returns the resource binding for this request.
func (r *Request) Binding() types.ResourceBinding {
	return types.ResourceBinding{
		Host:       r.Host,
		Method:     r.Method,
		Path:       r.Path,
		BodySHA256: r.BodySHA256,
	}
}

// FromHTTPRequest builds an engine Request from a net/http request. The body
// is not read; callers that need body binding set BodySHA256 themselves.
func FromHTTPRequest(r *http.Request) *Request {
	return &Request{
		Method: r.Method,
		Host:   r.Host,
		Path:   r.URL.Path,
		Header: r.Header,
	}
}

// Response is the engine's verdict on a request. When Continue is true the
// transport must invoke the protected handler and apply Header to its
// response; otherwise it writes Status, Header, and Body as-is.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Continue bool
	State    State
}

// State identifies where the request-handling state machine terminated.
// Entitled, Verified, and Rejected are terminal per request; no state is
// carried across requests outside the shared stores.
type State int

const (
	StateNeedChallenge State = iota
	StateEntitled
	StateVerifyPending
	StateVerified
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateNeedChallenge:
		return "NEED_CHALLENGE"
	case StateEntitled:
		return "ENTITLED"
	case StateVerifyPending:
		return "VERIFY_PENDING"
	case StateVerified:
		return "VERIFIED"
	case StateRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}
