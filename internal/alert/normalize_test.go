package alert

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"
)

var generatedIDPattern = regexp.MustCompile(`^[0-9a-f]{8}$`)

func TestNormalize_Precedence(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Message
	}{
		{
			name: "datadog on-call page",
			body: `{"id":"x1","title":"Disk full","priority":"P1","service_name":"db"}`,
			want: Message{ID: "x1", Title: "Disk full", Severity: "P1", Service: "db"},
		},
		{
			name: "id beats alert_id",
			body: `{"alert_id":"a2","id":"a1","title":"t","severity":"S","service":"s"}`,
			want: Message{ID: "a1", Title: "t", Severity: "S", Service: "s"},
		},
		{
			name: "second-choice keys",
			body: `{"alert_id":"a2","message":"CPU hot","urgency":"high","service_name":"api"}`,
			want: Message{ID: "a2", Title: "CPU hot", Severity: "high", Service: "api"},
		},
		{
			name: "third-choice keys",
			body: `{"page_id":"p3","name":"Monitor","urgency":"low","tags":{"service":"web"}}`,
			want: Message{ID: "p3", Title: "Monitor", Severity: "low", Service: "web"},
		},
		{
			name: "null skipped for next candidate",
			body: `{"id":null,"alert_id":"a9","title":null,"message":"m","severity":null,"priority":"P2","service":null,"service_name":"svc"}`,
			want: Message{ID: "a9", Title: "m", Severity: "P2", Service: "svc"},
		},
		{
			name: "tags as list",
			body: `{"id":"x","tags":["env:prod","service:billing"]}`,
			want: Message{ID: "x", Title: "Alert", Severity: "P?", Service: "billing"},
		},
		{
			name: "tags as comma string",
			body: `{"id":"x","tags":"env:prod, service:search"}`,
			want: Message{ID: "x", Title: "Alert", Severity: "P?", Service: "search"},
		},
		{
			name: "numeric values rendered as written",
			body: `{"id":12345,"title":"t","priority":1,"service":"s"}`,
			want: Message{ID: "12345", Title: "t", Severity: "1", Service: "s"},
		},
		{
			name: "defaults",
			body: `{"id":"only"}`,
			want: Message{ID: "only", Title: "Alert", Severity: "P?", Service: "unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize([]byte(tt.body))
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNormalize_GeneratedID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		got, err := Normalize([]byte(`{"title":"no id"}`))
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if !generatedIDPattern.MatchString(got.ID) {
			t.Fatalf("generated id %q is not 8 hex characters", got.ID)
		}
		if seen[got.ID] {
			t.Fatalf("generated id %q repeated", got.ID)
		}
		seen[got.ID] = true
	}
}

func TestNormalize_Truncation(t *testing.T) {
	body, err := json.Marshal(map[string]string{
		"id":       "x",
		"title":    strings.Repeat("t", 200),
		"severity": strings.Repeat("s", 50),
		"service":  strings.Repeat("v", 90),
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := Normalize(body)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(got.Title) != MaxTitleLen {
		t.Errorf("len(Title) = %d, want %d", len(got.Title), MaxTitleLen)
	}
	if len(got.Severity) != MaxSeverityLen {
		t.Errorf("len(Severity) = %d, want %d", len(got.Severity), MaxSeverityLen)
	}
	if len(got.Service) != MaxServiceLen {
		t.Errorf("len(Service) = %d, want %d", len(got.Service), MaxServiceLen)
	}
}

func TestNormalize_TruncationKeepsRunes(t *testing.T) {
	body, _ := json.Marshal(map[string]string{"id": "x", "title": strings.Repeat("é", 150)})

	got, err := Normalize(body)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !utf8.ValidString(got.Title) {
		t.Error("truncated title is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(got.Title); n != MaxTitleLen {
		t.Errorf("title has %d characters, want %d", n, MaxTitleLen)
	}
}

func TestNormalize_NestedValuesStringified(t *testing.T) {
	got, err := Normalize([]byte(`{"id":"x","title":{"text":"Disk"},"severity":{"level":1},"service":{"name":"db","team":"core"}}`))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.Service == "" || !strings.Contains(got.Service, "db") {
		t.Errorf("Service = %q, want non-empty rendering containing db", got.Service)
	}
	if !strings.Contains(got.Title, "Disk") {
		t.Errorf("Title = %q, want rendering containing Disk", got.Title)
	}
	if got.Severity != `{"level":1}` {
		t.Errorf("Severity = %q, want compact JSON", got.Severity)
	}
}

func TestNormalize_NestedServiceTruncated(t *testing.T) {
	body := `{"id":"x","service":{"name":"` + strings.Repeat("n", 100) + `"}}`

	got, err := Normalize([]byte(body))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(got.Service) != MaxServiceLen {
		t.Errorf("len(Service) = %d, want %d", len(got.Service), MaxServiceLen)
	}
}

func TestNormalize_InvalidPayload(t *testing.T) {
	for _, body := range []string{"", "not json", "[1,2]", `"str"`, "null", "{"} {
		t.Run(body, func(t *testing.T) {
			if _, err := Normalize([]byte(body)); !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("Normalize(%q) error = %v, want ErrInvalidPayload", body, err)
			}
		})
	}
}

func TestMessage_Marshal(t *testing.T) {
	m := Message{ID: "x1", Title: "Disk full", Severity: "P1", Service: "db"}
	b, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"id":"x1","title":"Disk full","severity":"P1","service":"db"}`
	if string(b) != want {
		t.Errorf("Marshal() = %s, want %s", b, want)
	}
}

func TestNewTestAlert(t *testing.T) {
	testID := regexp.MustCompile(`^test-[0-9a-f]{6}$`)

	got := NewTestAlert(Overrides{})
	if !testID.MatchString(got.ID) {
		t.Errorf("ID = %q, want test-xxxxxx", got.ID)
	}
	if got.Title != TestTitle || got.Severity != TestSeverity || got.Service != TestService {
		t.Errorf("NewTestAlert() = %+v, want defaults", got)
	}

	over := NewTestAlert(Overrides{Title: "Custom", Service: strings.Repeat("s", 80)})
	if over.Title != "Custom" {
		t.Errorf("Title = %q, want Custom", over.Title)
	}
	if over.Severity != TestSeverity {
		t.Errorf("Severity = %q, want default", over.Severity)
	}
	if len(over.Service) != MaxServiceLen {
		t.Errorf("len(Service) = %d, want %d", len(over.Service), MaxServiceLen)
	}

	if NewTestAlert(Overrides{}).ID == got.ID {
		t.Error("consecutive test alerts share an id")
	}
}
