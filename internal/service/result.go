package service

import (
	"context"

	"galvan_backend/pkg/email"
)

// Reason classifies a failed Result so the HTTP layer can pick a status.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonInvalid  Reason = "invalid"
	ReasonNotFound Reason = "not_found"
	ReasonConflict Reason = "conflict"
	ReasonInternal Reason = "internal"
)

const MsgInternal = "Something went wrong, please try again later"

// Result is what every public operation returns. Validation and state
// failures carry a specific message; persistence and network errors are
// logged and reported with MsgInternal.
type Result struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Reason  Reason      `json:"-"`
	Data    interface{} `json:"data,omitempty"`
}

func succeed(message string, data interface{}) Result {
	return Result{Success: true, Message: message, Data: data}
}

func fail(reason Reason, message string) Result {
	return Result{Success: false, Message: message, Reason: reason}
}

func internalError() Result {
	return fail(ReasonInternal, MsgInternal)
}

type EmailSender interface {
	Send(ctx context.Context, msg email.Message) (email.Result, error)
}

type Page struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}
