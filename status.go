package signin

// Status is the terminal state reported for a sign in attempt
type Status string

const (
	// StatusError means the attempt was rejected
	StatusError Status = "error"
	// StatusAuthenticated means a session was issued
	StatusAuthenticated Status = "authenticated"
	// StatusTwoFactor means a second factor challenge was issued
	StatusTwoFactor Status = "two-factor"
	// StatusUnavailable means the user directory could not be consulted
	StatusUnavailable Status = "unavailable"
)

// StatusResult is the value returned to the caller of a sign in operation
type StatusResult struct {
	Status      Status `json:"status"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	ChallengeID string `json:"challenge_id,omitempty"`
	// Token is the issued session token, the HTTP layer turns it into a cookie
	Token string `json:"-"`
}

// IsAuthenticated reports whether a session token was issued
func (r StatusResult) IsAuthenticated() bool {
	return r.Status == StatusAuthenticated
}

// IsError reports whether the attempt was rejected
func (r StatusResult) IsError() bool {
	return r.Status == StatusError || r.Status == StatusUnavailable
}

func newResult(catalog MessageCatalog, status Status, code string) StatusResult {
	return StatusResult{
		Status:  status,
		Code:    code,
		Message: catalog.Lookup(code),
	}
}
