package session

import "strconv"

// User is the profile record returned by the identity server. The server
// controls its shape, so it is kept as an open document rather than a fixed
// struct; well-known fields are reached through accessors.
type User map[string]any

// ID returns the user's identifier as a string, regardless of whether the
// server sent it as a string or a JSON number.
func (u User) ID() string {
	return u.stringField("id")
}

// Role returns the user's role, if present.
func (u User) Role() string {
	return u.stringField("role")
}

// Email returns the user's email address, if present.
func (u User) Email() string {
	return u.stringField("email")
}

// DisplayName returns the best available human-readable name.
func (u User) DisplayName() string {
	if name := u.stringField("name"); name != "" {
		return name
	}
	first := u.stringField("first_name")
	last := u.stringField("last_name")
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	}
	return u.Email()
}

// Merge returns a copy of u with the fields of partial shallow-merged on top.
func (u User) Merge(partial User) User {
	merged := u.Clone()
	if merged == nil {
		merged = User{}
	}
	for k, v := range partial {
		merged[k] = v
	}
	return merged
}

// Clone returns a shallow copy of the profile, nil for a nil profile.
func (u User) Clone() User {
	if u == nil {
		return nil
	}
	clone := make(User, len(u))
	for k, v := range u {
		clone[k] = v
	}
	return clone
}

func (u User) stringField(key string) string {
	switch v := u[key].(type) {
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; identifiers are whole numbers.
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

// Session is the single authoritative description of the current login.
type Session struct {
	User            User
	AccessToken     string
	RefreshToken    string
	IsAuthenticated bool
	IsLoading       bool
	Error           string
}

// clone returns a snapshot safe to hand to callers.
func (s Session) clone() Session {
	s.User = s.User.Clone()
	return s
}
