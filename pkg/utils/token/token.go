package token

import (
	"strings"

	"github.com/google/uuid"
)

// New returns an opaque random token of 32 hex characters.
func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
