package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dohr-michael/orbit/internal/domain"
	"github.com/dohr-michael/orbit/internal/store"
)

func TestShortKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc", "abc"},
		{"0123456789abcdef", "01234567"},
		{"local_deadbeefcafe", "~deadbeef"},
		{"local_ab", "~ab"},
	}
	for _, tt := range tests {
		if got := ShortKey(tt.in); got != tt.want {
			t.Errorf("ShortKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTasks(t *testing.T) {
	if got := Tasks(nil); !strings.Contains(got, "No tasks") {
		t.Fatalf("expected empty message, got %q", got)
	}

	out := Tasks([]domain.Task{
		{ID: "task-0001-aaaa", Title: "Write report", Category: domain.CategoryGrind, Difficulty: domain.DifficultyHard},
		{LocalID: "local_ffff0000", Title: "Buy milk", Category: domain.CategoryQuick, Analyzing: true, Pending: true},
	})
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), out)
	}
	if !strings.Contains(lines[0], "Write report") || !strings.Contains(lines[0], "task-000") {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "analyzing") || !strings.Contains(lines[1], "~ffff0000") {
		t.Errorf("unexpected second line %q", lines[1])
	}
}

func TestDropMarkdown(t *testing.T) {
	md := DropMarkdown("Photosynthesis", &domain.IntelQueryResult{
		SummaryBullets:  []string{"Light to sugar"},
		Sources:         []domain.Source{{Title: "Wiki", URL: "https://example.org", Snippet: "overview"}},
		RelatedConcepts: []string{"Chlorophyll", "ATP"},
		Essay:           "Plants are clever.",
	})
	for _, want := range []string{
		"# Photosynthesis",
		"- Light to sugar",
		"- [Wiki](https://example.org): overview",
		"Chlorophyll · ATP",
		"Plants are clever.",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}

	if got := DropMarkdown("Empty", nil); got != "# Empty\n\n" {
		t.Errorf("unexpected markdown for nil result %q", got)
	}
}

func TestMarkdown_Empty(t *testing.T) {
	if got := Markdown("   ", 40); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
	if got := Markdown("hello world", 0); !strings.Contains(got, "hello") {
		t.Fatalf("expected content, got %q", got)
	}
}

func TestMessage_SOS(t *testing.T) {
	m := domain.ChatMessage{Role: domain.RoleModel, Text: domain.SOSMessage, Urgent: true, IsSOS: true, Timestamp: time.Now()}
	if got := Message(m, 60); !strings.Contains(got, "!! "+domain.SOSMessage) {
		t.Fatalf("expected urgent marker, got %q", got)
	}
}

func TestMutations(t *testing.T) {
	now := time.Now()
	out := Mutations([]store.Mutation{{Kind: store.MutationCreateTask, Target: "local_12345678abc", StartedAt: now.Add(-time.Second)}}, now)
	if !strings.Contains(out, "create_task ~12345678 (1s)") {
		t.Fatalf("unexpected output %q", out)
	}
	if Mutations(nil, now) != "" {
		t.Fatal("expected empty output for no mutations")
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "table": FormatTable, "json": FormatJSON, "yaml": FormatYAML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestWrite_Structured(t *testing.T) {
	v := map[string]any{"title": "Write report", "completed": true}

	var buf bytes.Buffer
	if err := Write(&buf, FormatJSON, v, "ignored"); err != nil {
		t.Fatalf("Write json: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal json: %v", err)
	}
	if decoded["title"] != "Write report" {
		t.Errorf("unexpected json %v", decoded)
	}

	buf.Reset()
	if err := Write(&buf, FormatYAML, v, "ignored"); err != nil {
		t.Fatalf("Write yaml: %v", err)
	}
	decoded = nil
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}
	if decoded["completed"] != true {
		t.Errorf("unexpected yaml %v", decoded)
	}

	buf.Reset()
	if err := Write(&buf, FormatTable, v, "plain text"); err != nil {
		t.Fatalf("Write table: %v", err)
	}
	if !strings.Contains(buf.String(), "plain text") {
		t.Errorf("unexpected table output %q", buf.String())
	}
}
