package domain

// Caller is the verified identity behind a connection or request. The zero
// value is the anonymous caller.
type Caller struct {
	UserID      uint
	DisplayName string
}

var Anonymous = Caller{}

func (c Caller) Authenticated() bool { return c.UserID != 0 }

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleHost:
		return RoleHost, true
	case RoleGuest, "":
		return RoleGuest, true
	}
	return "", false
}
