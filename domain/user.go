package domain

import (
	"regexp"
	"strings"
)

// Session identifies the signed-in user. DistinctID doubles as the storage
// partition key and the notification-service subscriber id.
type Session struct {
	DistinctID string `json:"distinctId"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email"`
	Token      string `json:"token,omitempty"`
}

// DisplayName returns the profile name, falling back to a name derived from
// the email address.
func (s Session) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if n := NameFromEmail(s.Email); n != "" {
		return n
	}
	return "User"
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsEmailAddress reports whether s looks like an email address.
func IsEmailAddress(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// NameFromEmail turns "jane.doe@example.com" into "Jane Doe". Non-email input
// is returned unchanged.
func NameFromEmail(s string) string {
	if !IsEmailAddress(s) {
		return s
	}
	local := strings.SplitN(strings.TrimSpace(s), "@", 2)[0]
	parts := strings.Split(local, ".")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
