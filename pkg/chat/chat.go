// Package chat implements the model client: chat requests against either a
// secure proxy endpoint or a provider's native SDK, in one-shot and
// incremental streaming modes, with action payload extraction over the
// response text.
package chat

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cropwise/chatkit/pkg/action"
)

// Providers selectable in direct mode.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Message is one conversation turn as sent to the model endpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the token accounting reported by the provider, when available.
type Usage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
}

// Chunk is one increment of a streamed response. The terminal chunk carries
// the extracted actions and usage; subsequent Next calls return ErrDone.
type Chunk struct {
	Content string
	Actions []action.Action
	Usage   *Usage
	Done    bool
}

// Completion is a full non-streamed response.
type Completion struct {
	Content string
	Actions []action.Action
	Usage   *Usage
}

// Config configures the client. Exactly one of APIURL (proxy mode) or APIKey
// (direct provider mode) must be set.
type Config struct {
	// APIURL is the proxy endpoint base URL. Streaming requests go to
	// APIURL + "/stream".
	APIURL string

	// APIKey is the provider credential for direct mode. Direct mode calls
	// the provider from the embedding context and is the less secure
	// fallback; construction logs a warning.
	APIKey string

	// Provider selects the native SDK in direct mode. Default ProviderOpenAI.
	Provider string

	Model       string
	Temperature float64
	MaxTokens   int

	// SystemPrompt replaces the default domain prompt when set.
	SystemPrompt string

	// Instructions is free text appended after the system prompt.
	Instructions string

	// Datasets is structured data summarized into the system prompt.
	Datasets map[string]any

	// HTTPClient overrides the transport for proxy and token calls.
	HTTPClient *http.Client
}

// Client issues chat requests. It is stateless with respect to conversation
// history: callers pass full history per request.
type Client struct {
	cfg  Config
	http *http.Client
}

// New validates the configuration and returns a client.
// Missing both APIURL and APIKey is a construction-time error with code
// MISSING_API_CONFIG.
func New(cfg Config) (*Client, error) {
	if cfg.APIURL == "" && cfg.APIKey == "" {
		return nil, &Error{
			Kind:    KindValidation,
			Code:    CodeMissingAPIConfig,
			Message: "either a proxy endpoint URL or an API key is required",
		}
	}
	if cfg.APIURL == "" && cfg.APIKey != "" {
		slog.Warn("chat: direct provider mode exposes the API key to the embedding context; prefer a proxy endpoint")
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel(cfg)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{cfg: cfg, http: hc}, nil
}

func defaultModel(cfg Config) string {
	if cfg.APIURL == "" && cfg.Provider == ProviderGemini {
		return "gemini-2.0-flash"
	}
	return "gpt-4o-mini"
}

// ChatCompletion performs a single non-streaming round trip. Action
// extraction always runs over the full response text.
func (c *Client) ChatCompletion(ctx context.Context, history []Message) (*Completion, error) {
	if c.cfg.APIURL != "" {
		return c.proxyCompletion(ctx, history)
	}
	switch c.cfg.Provider {
	case ProviderGemini:
		return c.geminiCompletion(ctx, history)
	default:
		return c.openaiCompletion(ctx, history)
	}
}

// StreamChatCompletion starts an incremental streaming request. The returned
// Stream terminates with ErrDone after the final chunk; it is not
// restartable; request a fresh stream per turn.
func (c *Client) StreamChatCompletion(ctx context.Context, history []Message) (Stream, error) {
	if c.cfg.APIURL != "" {
		return c.proxyStream(ctx, history)
	}
	switch c.cfg.Provider {
	case ProviderGemini:
		return c.geminiStream(ctx, history)
	default:
		return c.openaiStream(ctx, history)
	}
}

// requestMessages synthesizes the provider message list: the system prompt
// built from configuration plus only the user-role turns of history. Prior
// assistant turns are not resent: the freshly built system prompt stays
// authoritative and context growth stays bounded. Changing this contract
// changes multi-turn coherence behavior; do so deliberately.
func (c *Client) requestMessages(history []Message) []Message {
	out := make([]Message, 0, len(history)+1)
	out = append(out, Message{Role: "system", Content: c.systemPrompt()})
	for _, m := range history {
		if m.Role == "user" {
			out = append(out, m)
		}
	}
	return out
}
