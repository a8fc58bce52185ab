package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type WelcomeData struct {
	FirstName      string
	Resubscribed   bool
	SiteURL        string
	UnsubscribeURL string
}

type UnsubscribeData struct {
	FirstName string
	SiteURL   string
}

type DailyStatsData struct {
	Date              time.Time
	NewSubscribers    int64
	ActiveSubscribers int64
	DashboardURL      string
}

func render(name string, data interface{}) (string, error) {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return body.String(), nil
}

func WelcomeEmail(to string, data WelcomeData) (Message, error) {
	html, err := render("welcome.html", data)
	if err != nil {
		return Message{}, err
	}
	subject := "Welcome to the Galvan AI newsletter"
	if data.Resubscribed {
		subject = "Welcome back to the Galvan AI newsletter"
	}
	return Message{To: to, Subject: subject, HTML: html, Tags: map[string]string{"category": "welcome"}}, nil
}

func UnsubscribeEmail(to string, data UnsubscribeData) (Message, error) {
	html, err := render("unsubscribe.html", data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "You have been unsubscribed from Galvan AI",
		HTML:    html,
		Tags:    map[string]string{"category": "unsubscribe"},
	}, nil
}

func DailyStatsEmail(to string, data DailyStatsData) (Message, error) {
	html, err := render("daily_stats.html", data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Newsletter digest for %s", data.Date.Format("2 Jan 2006")),
		HTML:    html,
		Tags:    map[string]string{"category": "digest"},
	}, nil
}
