package alert

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Display limits of the pager screen, in characters.
const (
	MaxTitleLen    = 120
	MaxSeverityLen = 30
	MaxServiceLen  = 60
)

// Test alert defaults.
const (
	TestIDPrefix = "test-"
	TestTitle    = "Test Alert"
	TestSeverity = "P3 - Test"
	TestService  = "pager-setup"
)

const (
	testIDHexLen   = 6
	generatedIDLen = 8
)

// Message is the payload published on dd/pager/{device}/alert.
type Message struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Severity string `json:"severity"`
	Service  string `json:"service"`
}

// Marshal returns the compact JSON wire form.
func (m Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// truncated returns m with every field cut to its display limit.
func (m Message) truncated() Message {
	m.Title = truncate(m.Title, MaxTitleLen)
	m.Severity = truncate(m.Severity, MaxSeverityLen)
	m.Service = truncate(m.Service, MaxServiceLen)
	return m
}

// Overrides replaces test alert fields when non-empty.
type Overrides struct {
	Title    string `json:"title"`
	Severity string `json:"severity"`
	Service  string `json:"service"`
}

// NewTestAlert builds a synthetic alert with a fresh "test-" id.
func NewTestAlert(o Overrides) Message {
	m := Message{
		ID:       TestIDPrefix + randomHex(testIDHexLen),
		Title:    TestTitle,
		Severity: TestSeverity,
		Service:  TestService,
	}
	if o.Title != "" {
		m.Title = o.Title
	}
	if o.Severity != "" {
		m.Severity = o.Severity
	}
	if o.Service != "" {
		m.Service = o.Service
	}
	return m.truncated()
}

// randomHex returns the first n hex digits of a random UUID (n <= 8).
func randomHex(n int) string {
	return uuid.NewString()[:n]
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// generatedID is used when the webhook carries no id.
func generatedID() string {
	return randomHex(generatedIDLen)
}
