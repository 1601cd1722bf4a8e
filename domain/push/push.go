// Package push describes the multicast contract shared with push providers.
package push

// ErrorCode is the provider-neutral reason a single token delivery failed.
type ErrorCode string

const (
	ErrorInvalidToken    ErrorCode = "invalid-registration-token"
	ErrorNotRegistered   ErrorCode = "registration-token-not-registered"
	ErrorRateLimited     ErrorCode = "message-rate-exceeded"
	ErrorMismatchedCreds ErrorCode = "mismatched-credential"
	ErrorUnavailable     ErrorCode = "server-unavailable"
	ErrorInternal        ErrorCode = "internal-error"
	ErrorUnknown         ErrorCode = "unknown-error"
	DataTypeChat                   = "chat"
	ImagePlaceholderBody           = "sent an image"
	MaxBodyLength                  = 100
)

// IsPermanent reports whether the token will never succeed again
// and must be removed from storage.
func (c ErrorCode) IsPermanent() bool {
	return c == ErrorInvalidToken || c == ErrorNotRegistered
}

// Notification is one multicast request.
type Notification struct {
	Title  string
	Body   string
	Data   map[string]string
	Tokens []string
}

// TokenResult is the outcome for one token, in submission order.
type TokenResult struct {
	Token     string
	Success   bool
	ErrorCode ErrorCode
}

type MulticastResult struct {
	SuccessCount int
	FailureCount int
	Results      []TokenResult
}

// PermanentFailures returns the tokens that must be invalidated.
func (r MulticastResult) PermanentFailures() []string {
	var res []string
	for _, tr := range r.Results {
		if !tr.Success && tr.ErrorCode.IsPermanent() {
			res = append(res, tr.Token)
		}
	}
	return res
}
