package chat

import (
	"strings"
	"testing"
)

func TestSystemPromptDefault(t *testing.T) {
	c, err := New(Config{APIURL: "http://example.test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := c.systemPrompt()
	if !strings.Contains(p, "```action") {
		t.Fatal("default prompt should describe the action block grammar")
	}
}

func TestSystemPromptCustom(t *testing.T) {
	c, err := New(Config{
		APIURL:       "http://example.test",
		SystemPrompt: "You are a terse bot.",
		Instructions: "Reply in French.",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := c.systemPrompt()
	if !strings.HasPrefix(p, "You are a terse bot.") {
		t.Fatalf("custom prompt should replace the default, got %q", p)
	}
	if !strings.Contains(p, "Reply in French.") {
		t.Fatal("instructions should follow the prompt")
	}
	if strings.Contains(p, "agronomy assistant") {
		t.Fatal("default prompt should not leak alongside a custom one")
	}
}

func TestSummarizeDatasets(t *testing.T) {
	summary := summarizeDatasets(map[string]any{
		"farmers":   []any{map[string]any{"name": "A"}, map[string]any{"name": "B"}},
		"inventory": []any{1, 2, 3},
		"plots":     map[string]any{"north": 1, "south": 2},
	})
	for _, want := range []string{
		"2 farmer records",
		"3 inventory items",
		"plots: 2 entries",
	} {
		if !strings.Contains(summary, want) {
			t.Fatalf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestRequestMessagesDropsAssistantTurns(t *testing.T) {
	c, err := New(Config{APIURL: "http://example.test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	msgs := c.requestMessages([]Message{
		{Role: "user", Content: "q1"},
		{Role: "assistant", Content: "a1"},
		{Role: "user", Content: "q2"},
	})
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want system + 2 user turns", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Fatalf("first message role = %s, want system", msgs[0].Role)
	}
	for _, m := range msgs[1:] {
		if m.Role != "user" {
			t.Fatalf("assistant turn forwarded: %+v", m)
		}
	}
}
