package security

import (
	"crypto/subtle"

	"github.com/google/uuid"
)

func NewHostToken() string {
	return uuid.NewString()
}

func HostTokenMatches(stored, presented string) bool {
	if stored == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
