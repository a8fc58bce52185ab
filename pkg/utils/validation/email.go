package validation

import (
	"errors"
	"net/mail"
	"strings"
)

var (
	ErrEmailRequired = errors.New("email is required")
	ErrEmailInvalid  = errors.New("invalid email format")
)

const MaxEmailLength = 320

// Email accepts a bare address only; display names like "Ana <a@x.com>"
// are rejected.
func Email(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmailRequired
	}
	if len(email) > MaxEmailLength {
		return ErrEmailInvalid
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrEmailInvalid
	}
	if !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@")+1:], ".") {
		return ErrEmailInvalid
	}
	return nil
}
