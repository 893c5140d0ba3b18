package chat

import (
	"encoding/json"
	"log/slog"
	"regexp"

	"github.com/kaptinlin/jsonrepair"

	"github.com/cropwise/chatkit/pkg/action"
)

// actionBlockRe matches fenced code blocks tagged "action".
var actionBlockRe = regexp.MustCompile("(?s)```action\\s*\\n(.*?)```")

// actionPayload is the wire shape inside an action block. Only type is
// required; data and priority default.
type actionPayload struct {
	Type     string         `json:"type"`
	Data     map[string]any `json:"data"`
	Priority string         `json:"priority"`
}

// ExtractActions scans response text for fenced action blocks and returns
// the parsed actions in textual order. Malformed blocks get one repair
// attempt, then are skipped with a warning; extraction never fails.
func ExtractActions(text string) []action.Action {
	var out []action.Action
	for _, m := range actionBlockRe.FindAllStringSubmatch(text, -1) {
		raw := m[1]
		var p actionPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			fixed, rerr := jsonrepair.JSONRepair(raw)
			if rerr != nil || json.Unmarshal([]byte(fixed), &p) != nil {
				slog.Warn("chat: skipping malformed action block", "err", err)
				continue
			}
		}
		if p.Type == "" {
			slog.Warn("chat: skipping action block without type")
			continue
		}
		out = append(out, action.New(p.Type, p.Data, p.Priority))
	}
	return out
}
