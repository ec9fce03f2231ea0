package session

// Action is the sealed set of transitions the session store understands.
// Each concrete action carries exactly the data its transition needs.
type Action interface {
	isAction()
}

// LoginStart marks the beginning of an explicit login attempt.
type LoginStart struct{}

// LoginSuccess establishes an authenticated session.
type LoginSuccess struct {
	User         User
	AccessToken  string
	RefreshToken string
}

// LoginFailure records a failed login attempt with a user-facing message.
type LoginFailure struct {
	Message string
}

// Logout tears the session down to its empty state.
type Logout struct{}

// RenewalSuccess swaps in a freshly minted access token. An empty
// RefreshToken keeps the existing one (the server did not rotate it).
type RenewalSuccess struct {
	AccessToken  string
	RefreshToken string
}

// SetLoading toggles the loading flag without touching anything else.
type SetLoading struct {
	Loading bool
}

// ClearError discards the last failure message.
type ClearError struct{}

// UpdateUser shallow-merges a partial profile into the current user.
type UpdateUser struct {
	Partial User
}

func (LoginStart) isAction()     {}
func (LoginSuccess) isAction()   {}
func (LoginFailure) isAction()   {}
func (Logout) isAction()         {}
func (RenewalSuccess) isAction() {}
func (SetLoading) isAction()     {}
func (ClearError) isAction()     {}
func (UpdateUser) isAction()     {}
