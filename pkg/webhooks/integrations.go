package webhooks

import (
	"encoding/json"
	"fmt"
)

// Payload formats a webhook can subscribe with. The default is the raw
// event envelope; slack and teams get chat-ready cards so a channel
// webhook URL can be registered directly.
const (
	FormatJSON  = "json"
	FormatSlack = "slack"
	FormatTeams = "teams"
)

func validFormat(format string) bool {
	switch format {
	case "", FormatJSON, FormatSlack, FormatTeams:
		return true
	}
	return false
}

// encodePayload renders the event in the webhook's chosen format.
func encodePayload(webhook *Webhook, event *Event) ([]byte, error) {
	switch webhook.Format {
	case FormatSlack:
		return json.Marshal(slackMessage(event))
	case FormatTeams:
		return json.Marshal(teamsMessage(event))
	case "", FormatJSON:
		return json.Marshal(event)
	default:
		return nil, fmt.Errorf("unknown payload format: %s", webhook.Format)
	}
}

// SlackMessage is the incoming-webhook payload Slack accepts.
type SlackMessage struct {
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

type SlackAttachment struct {
	Color  string       `json:"color,omitempty"`
	Title  string       `json:"title,omitempty"`
	Text   string       `json:"text,omitempty"`
	Fields []SlackField `json:"fields,omitempty"`
}

type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// TeamsMessage is the MessageCard payload Teams incoming webhooks accept.
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	Summary    string         `json:"summary,omitempty"`
	Title      string         `json:"title,omitempty"`
	Text       string         `json:"text,omitempty"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	Facts []TeamsFact `json:"facts,omitempty"`
	Text  string      `json:"text,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func slackMessage(event *Event) SlackMessage {
	fields := []SlackField{
		{Title: "Event", Value: string(event.Type), Short: true},
		{Title: "When", Value: event.Timestamp.Format("2006-01-02 15:04:05"), Short: true},
	}
	for _, f := range eventFacts(event) {
		fields = append(fields, SlackField{Title: f.Name, Value: f.Value, Short: true})
	}

	return SlackMessage{
		Attachments: []SlackAttachment{
			{
				Color:  slackColor(event.Type),
				Title:  eventTitle(event.Type),
				Text:   eventMessage(event),
				Fields: fields,
			},
		},
	}
}

func teamsMessage(event *Event) TeamsMessage {
	facts := []TeamsFact{
		{Name: "Event", Value: string(event.Type)},
		{Name: "When", Value: event.Timestamp.Format("2006-01-02 15:04:05")},
	}
	facts = append(facts, eventFacts(event)...)

	return TeamsMessage{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		Summary:    eventTitle(event.Type),
		Title:      eventTitle(event.Type),
		ThemeColor: teamsColor(event.Type),
		Sections: []TeamsSection{
			{Facts: facts, Text: eventMessage(event)},
		},
	}
}

// eventFacts pulls the form and permission details out of the event data
// for display. Only fields the dispatchers actually set are rendered.
func eventFacts(event *Event) []TeamsFact {
	var facts []TeamsFact
	if title, ok := event.Data["title"].(string); ok {
		facts = append(facts, TeamsFact{Name: "Form", Value: title})
	}
	if formID, ok := event.Data["form_id"].(string); ok {
		facts = append(facts, TeamsFact{Name: "Form ID", Value: formID})
	}
	if scope, ok := event.Data["scope"].(string); ok {
		facts = append(facts, TeamsFact{Name: "Sharing scope", Value: scope})
	}
	if permission, ok := event.Data["permission"].(string); ok {
		facts = append(facts, TeamsFact{Name: "Permission", Value: permission})
	}
	return facts
}

func eventMessage(event *Event) string {
	message, _ := event.Data["message"].(string)
	return message
}

func slackColor(eventType EventType) string {
	switch eventType {
	case EventFormCreated, EventFormShared, EventPermissionGranted:
		return "good"
	case EventFormDeleted, EventPermissionRevoked:
		return "danger"
	default:
		return "#439FE0"
	}
}

func teamsColor(eventType EventType) string {
	switch eventType {
	case EventFormCreated, EventFormShared, EventPermissionGranted:
		return "28a745"
	case EventFormDeleted, EventPermissionRevoked:
		return "dc3545"
	default:
		return "007bff"
	}
}

func eventTitle(eventType EventType) string {
	switch eventType {
	case EventFormCreated:
		return "Form Created"
	case EventFormUpdated:
		return "Form Updated"
	case EventFormDeleted:
		return "Form Deleted"
	case EventFormShared:
		return "Form Sharing Changed"
	case EventPermissionGranted:
		return "Permission Granted"
	case EventPermissionRevoked:
		return "Permission Revoked"
	default:
		return string(eventType)
	}
}
