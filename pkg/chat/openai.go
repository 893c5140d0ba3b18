package chat

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

const oaiFinishReasonStop = "stop"

func (c *Client) openaiClient() openai.Client {
	opts := []option.RequestOption{option.WithAPIKey(c.cfg.APIKey)}
	if c.cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(c.cfg.HTTPClient))
	}
	return openai.NewClient(opts...)
}

func (c *Client) openaiParams(history []Message) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	for _, m := range c.requestMessages(history) {
		switch m.Role {
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    c.cfg.Model,
	}
	if c.cfg.Temperature > 0 {
		params.Temperature = param.NewOpt(c.cfg.Temperature)
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(c.cfg.MaxTokens))
	}
	return params
}

// openaiCompletion is the direct-mode single round trip.
func (c *Client) openaiCompletion(ctx context.Context, history []Message) (*Completion, error) {
	client := c.openaiClient()
	resp, err := client.Chat.Completions.New(ctx, c.openaiParams(history))
	if err != nil {
		return nil, wrapErr(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Kind: KindAPI, Code: CodeEmptyResponse, Message: "provider returned no choices"}
	}
	content := resp.Choices[0].Message.Content
	return &Completion{
		Content: content,
		Actions: ExtractActions(content),
		Usage: &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// openaiStream drives the provider's native streaming call, emitting one
// chunk per delta. Action extraction runs over the accumulated deltas once
// the provider stops; usage arrives in a trailing chunk after the stop
// event, and only when requested via stream options, so the terminal chunk
// is held back until the provider stream ends.
func (c *Client) openaiStream(ctx context.Context, history []Message) (Stream, error) {
	client := c.openaiClient()
	params := c.openaiParams(history)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: param.NewOpt(true),
	}
	raw := client.Chat.Completions.NewStreaming(ctx, params)

	s := newStream()
	go func() {
		var (
			accumulated []byte
			usage       *Usage
			stopped     bool
		)
		for raw.Next() {
			chunk := raw.Current()
			if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
				usage = &Usage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
				}
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			sel := chunk.Choices[0]
			if delta := sel.Delta.Content; delta != "" {
				accumulated = append(accumulated, delta...)
				if !s.send(&Chunk{Content: delta}) {
					raw.Close()
					return
				}
			}
			if sel.FinishReason == oaiFinishReasonStop {
				stopped = true
			}
		}
		if err := raw.Err(); err != nil {
			s.fail(err)
			return
		}
		if !stopped {
			s.fail(&Error{Kind: KindTransport, Code: CodeStreamClosed, Message: "provider stream ended without stop"})
			return
		}
		s.send(&Chunk{
			Actions: ExtractActions(string(accumulated)),
			Usage:   usage,
			Done:    true,
		})
		s.finish()
	}()
	return s, nil
}
