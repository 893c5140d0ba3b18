package chat

import "testing"

func TestExtractActions(t *testing.T) {
	text := "Here is the forecast.\n" +
		"```action\n{\"type\": \"supply_forecast\", \"data\": {\"crop\": \"maize\"}, \"priority\": \"high\"}\n```\n" +
		"And the alerts:\n" +
		"```action\n{\"type\": \"weather_alerts\"}\n```\n"

	actions := ExtractActions(text)
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(actions))
	}
	// Textual order preserved.
	if actions[0].Type != "supply_forecast" || actions[1].Type != "weather_alerts" {
		t.Fatalf("order = [%s, %s], want [supply_forecast, weather_alerts]", actions[0].Type, actions[1].Type)
	}
	if actions[0].Data["crop"] != "maize" {
		t.Fatalf("Data = %v, want crop=maize", actions[0].Data)
	}
	if actions[0].Priority != "high" {
		t.Fatalf("Priority = %q, want high", actions[0].Priority)
	}
	// Defaults for the second block.
	if actions[1].Priority != "medium" {
		t.Fatalf("default Priority = %q, want medium", actions[1].Priority)
	}
	if actions[1].Data == nil || len(actions[1].Data) != 0 {
		t.Fatalf("default Data = %v, want empty object", actions[1].Data)
	}
	if actions[1].Timestamp == "" {
		t.Fatal("extracted action should carry a timestamp")
	}
}

func TestExtractActionsMalformed(t *testing.T) {
	// One valid block, one hopeless block, one repairable block (trailing
	// comma), one object without type. Malformed blocks never throw.
	text := "```action\n{\"type\": \"inventory\"}\n```\n" +
		"```action\nnot json at all {{{\n```\n" +
		"```action\n{\"type\": \"farmer_list\", \"data\": {\"page\": 1,}}\n```\n" +
		"```action\n{\"data\": {}}\n```\n"

	actions := ExtractActions(text)
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2 (valid + repaired)", len(actions))
	}
	if actions[0].Type != "inventory" || actions[1].Type != "farmer_list" {
		t.Fatalf("types = [%s, %s], want [inventory, farmer_list]", actions[0].Type, actions[1].Type)
	}
}

func TestExtractActionsNone(t *testing.T) {
	if got := ExtractActions("plain response with ```go\ncode\n``` but no actions"); len(got) != 0 {
		t.Fatalf("got %d actions, want 0", len(got))
	}
}
