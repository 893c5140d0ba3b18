package action

import "testing"

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		a    Action
		want bool
	}{
		{
			name: "well-formed",
			a:    New(TypeInventory, map[string]any{"item": "seed"}, PriorityHigh),
			want: true,
		},
		{
			name: "defaults applied",
			a:    New("custom", nil, ""),
			want: true,
		},
		{
			name: "missing type",
			a:    Action{Data: map[string]any{}, Priority: PriorityLow, Timestamp: "2026-01-01T00:00:00Z"},
			want: false,
		},
		{
			name: "nil data",
			a:    Action{Type: "x", Priority: PriorityLow, Timestamp: "2026-01-01T00:00:00Z"},
			want: false,
		},
		{
			name: "bad priority",
			a:    Action{Type: "x", Data: map[string]any{}, Priority: "urgent", Timestamp: "2026-01-01T00:00:00Z"},
			want: false,
		},
		{
			name: "missing timestamp",
			a:    Action{Type: "x", Data: map[string]any{}, Priority: PriorityLow},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Valid(); got != tt.want {
				t.Fatalf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	a := New("x", nil, "")
	if a.Data == nil {
		t.Fatal("New should default Data to an empty object")
	}
	if a.Priority != PriorityMedium {
		t.Fatalf("Priority = %q, want %q", a.Priority, PriorityMedium)
	}
	if a.Timestamp == "" {
		t.Fatal("New should stamp Timestamp")
	}
}
