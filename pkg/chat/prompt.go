package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/itchyny/gojq"
)

// defaultSystemPrompt is the default domain prompt, including the
// action-emission mini-grammar the extraction step understands.
const defaultSystemPrompt = `You are an agronomy assistant embedded in a farm management application.
Answer questions about crops, supplies, weather, diseases, and farmer records
using the data provided below. Be concise and practical.

When an answer should update the host application, emit an action as a fenced
code block tagged "action" containing a JSON object:

` + "```action\n" + `{"type": "weather_alerts", "data": {"region": "north"}, "priority": "high"}
` + "```\n" + `
Recognized types: supply_forecast, farmer_list, weather_alerts, disease_map,
inventory, farmer_profile, notification. "data" defaults to {} and "priority"
(critical|high|medium|low) defaults to "medium" when omitted. Emit at most
one JSON object per block; multiple blocks are allowed.`

// knownDatasets maps dataset keys to their summary labels. Unknown keys are
// summarized generically.
var knownDatasets = map[string]string{
	"farmers":        "farmer records",
	"supplies":       "supply entries",
	"weatherAlerts":  "active weather alerts",
	"diseaseReports": "disease reports",
	"inventory":      "inventory items",
}

// systemPrompt builds the synthesized system turn: default or caller prompt,
// then free-text instructions, then the dataset summary.
func (c *Client) systemPrompt() string {
	var sb strings.Builder
	if c.cfg.SystemPrompt != "" {
		sb.WriteString(c.cfg.SystemPrompt)
	} else {
		sb.WriteString(defaultSystemPrompt)
	}
	if c.cfg.Instructions != "" {
		sb.WriteString("\n\n")
		sb.WriteString(c.cfg.Instructions)
	}
	if summary := summarizeDatasets(c.cfg.Datasets); summary != "" {
		sb.WriteString("\n\nAvailable data:\n")
		sb.WriteString(summary)
	}
	return sb.String()
}

var lengthQuery = func() *gojq.Query {
	q, err := gojq.Parse("length")
	if err != nil {
		panic(err)
	}
	return q
}()

// summarizeDatasets renders one count line per dataset, in key order for
// stable prompts.
func summarizeDatasets(datasets map[string]any) string {
	if len(datasets) == 0 {
		return ""
	}
	keys := make([]string, 0, len(datasets))
	for k := range datasets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		n := datasetLength(datasets[k])
		if label, ok := knownDatasets[k]; ok {
			fmt.Fprintf(&sb, "- %d %s\n", n, label)
		} else {
			fmt.Fprintf(&sb, "- %s: %d entries\n", k, n)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// datasetLength counts entries in an arbitrary structured value by running a
// jq length query over its JSON form. Scalars count as one entry.
func datasetLength(v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		return 0
	}
	iter := lengthQuery.Run(decoded)
	out, ok := iter.Next()
	if !ok {
		return 0
	}
	switch n := out.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case error:
		// length is undefined for booleans and numbers; count them as one.
		slog.Debug("chat: dataset length query failed", "err", n)
		return 1
	}
	return 0
}
