package chat

import (
	"context"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

func (c *Client) geminiClient(ctx context.Context) (*genai.Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  c.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.cfg.HTTPClient != nil {
		cfg.HTTPClient = c.cfg.HTTPClient
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, wrapErr(err)
	}
	return client, nil
}

// geminiRequest converts history into genai contents plus generation config.
// The synthesized system turn becomes the system instruction.
func (c *Client) geminiRequest(history []Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{}
	var contents []*genai.Content
	for _, m := range c.requestMessages(history) {
		switch m.Role {
		case "system":
			cfg.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: m.Content}},
			}
		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}
	if c.cfg.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(c.cfg.Temperature))
	}
	if c.cfg.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(c.cfg.MaxTokens)
	}
	return contents, cfg
}

// geminiUnwrap strips the gax API error wrapper so callers see the
// underlying status error.
func geminiUnwrap(err error) error {
	if e, ok := err.(*apierror.APIError); ok {
		return e.Unwrap()
	}
	return err
}

func geminiText(cand *genai.Candidate) string {
	var sb strings.Builder
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func geminiUsage(md *genai.GenerateContentResponseUsageMetadata) *Usage {
	if md == nil {
		return nil
	}
	return &Usage{
		PromptTokens:     int64(md.PromptTokenCount),
		CompletionTokens: int64(md.CandidatesTokenCount),
	}
}

// geminiCompletion is the direct-mode single round trip against Gemini.
func (c *Client) geminiCompletion(ctx context.Context, history []Message) (*Completion, error) {
	client, err := c.geminiClient(ctx)
	if err != nil {
		return nil, err
	}
	contents, cfg := c.geminiRequest(history)
	resp, err := client.Models.GenerateContent(ctx, c.cfg.Model, contents, cfg)
	if err != nil {
		return nil, wrapErr(geminiUnwrap(err))
	}
	if len(resp.Candidates) == 0 {
		return nil, &Error{Kind: KindAPI, Code: CodeEmptyResponse, Message: "provider returned no candidates"}
	}
	content := geminiText(resp.Candidates[0])
	return &Completion{
		Content: content,
		Actions: ExtractActions(content),
		Usage:   geminiUsage(resp.UsageMetadata),
	}, nil
}

// geminiStream drives Gemini's native streaming call.
func (c *Client) geminiStream(ctx context.Context, history []Message) (Stream, error) {
	client, err := c.geminiClient(ctx)
	if err != nil {
		return nil, err
	}
	contents, cfg := c.geminiRequest(history)
	itr := client.Models.GenerateContentStream(ctx, c.cfg.Model, contents, cfg)

	s := newStream()
	go func() {
		var accumulated strings.Builder
		var usage *Usage
		for resp, err := range itr {
			if err != nil {
				s.fail(geminiUnwrap(err))
				return
			}
			if len(resp.Candidates) == 0 {
				continue
			}
			cand := resp.Candidates[0]
			if u := geminiUsage(resp.UsageMetadata); u != nil {
				usage = u
			}
			if text := geminiText(cand); text != "" {
				accumulated.WriteString(text)
				if !s.send(&Chunk{Content: text}) {
					return
				}
			}
			if cand.FinishReason == genai.FinishReasonStop {
				s.send(&Chunk{
					Actions: ExtractActions(accumulated.String()),
					Usage:   usage,
					Done:    true,
				})
				s.finish()
				return
			}
		}
		s.fail(&Error{Kind: KindTransport, Code: CodeStreamClosed, Message: "provider stream ended without stop"})
	}()
	return s, nil
}
