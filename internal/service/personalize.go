package service

import (
	"net/url"
	"strings"

	"galvan_backend/internal/model"
)

const unsubscribePath = "/newsletter/unsubscribe"

// UnsubscribeURL builds the self-service link for token. The token is
// query-escaped so it round-trips unchanged.
func UnsubscribeURL(appURL, token string) string {
	return strings.TrimRight(appURL, "/") + unsubscribePath + "?" + url.Values{"token": {token}}.Encode()
}

// Personalize replaces the campaign placeholders with literal values. It is
// plain substring replacement: no escaping, and substituted values are not
// scanned again.
func Personalize(body string, sub *model.Subscriber, unsubscribeURL string) string {
	if body == "" {
		return ""
	}
	return strings.NewReplacer(
		"{{firstName}}", sub.FirstName,
		"{{lastName}}", sub.LastName,
		"{{email}}", sub.Email,
		"{{unsubscribeUrl}}", unsubscribeURL,
	).Replace(body)
}
