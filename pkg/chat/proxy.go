package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// proxyRequest is the JSON body for both proxy endpoints.
type proxyRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"maxTokens"`
}

// proxyResponse is the non-streaming success body.
type proxyResponse struct {
	Content string `json:"content"`
	Usage   *Usage `json:"usage"`
	Error   string `json:"error"`
}

// proxyEvent is one data: payload of the streaming endpoint.
type proxyEvent struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
	Usage   *Usage `json:"usage"`
	Error   string `json:"error"`
}

func (c *Client) proxyPost(ctx context.Context, url string, history []Message) (*http.Response, error) {
	body, err := json.Marshal(proxyRequest{
		Messages:    c.requestMessages(history),
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, wrapErr(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Code: CodeStreamClosed, Message: err.Error(), Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		var body proxyResponse
		msg := ""
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			msg = body.Error
		}
		return nil, apiError(resp.StatusCode, msg)
	}
	return resp, nil
}

// proxyCompletion performs the non-streaming proxy round trip.
func (c *Client) proxyCompletion(ctx context.Context, history []Message) (*Completion, error) {
	resp, err := c.proxyPost(ctx, c.cfg.APIURL, history)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body proxyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &Error{Kind: KindTransport, Code: CodeEmptyResponse, Message: "decoding response body", Cause: err}
	}
	if body.Error != "" {
		return nil, &Error{Kind: KindAPI, Code: CodeAPIError, Message: body.Error}
	}
	return &Completion{
		Content: body.Content,
		Actions: ExtractActions(body.Content),
		Usage:   body.Usage,
	}, nil
}

// proxyStream drives the server-sent-event streaming endpoint. The body is
// read line by line with partial lines buffered across read boundaries; each
// data: line is parsed as JSON. A literal [DONE] sentinel or a done:true
// payload terminates the stream, the latter also carrying the accumulated
// content that action extraction runs over.
func (c *Client) proxyStream(ctx context.Context, history []Message) (Stream, error) {
	resp, err := c.proxyPost(ctx, strings.TrimRight(c.cfg.APIURL, "/")+"/stream", history)
	if err != nil {
		return nil, err
	}

	s := newStream()
	go func() {
		defer resp.Body.Close()
		c.pullProxy(s, resp.Body)
	}()
	return s, nil
}

func (c *Client) pullProxy(s *stream, body io.Reader) {
	var accumulated strings.Builder
	r := bufio.NewReader(body)
	for {
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				s.fail(&Error{Kind: KindTransport, Code: CodeStreamClosed, Message: "stream ended without done signal"})
			} else {
				s.fail(&Error{Kind: KindTransport, Code: CodeStreamClosed, Message: err.Error(), Cause: err})
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.send(&Chunk{
				Actions: ExtractActions(accumulated.String()),
				Done:    true,
			})
			s.finish()
			return
		}

		var evt proxyEvent
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			s.fail(&Error{Kind: KindAPI, Code: CodeAPIError, Message: fmt.Sprintf("malformed stream payload: %v", err), Cause: err})
			return
		}
		if evt.Error != "" {
			s.fail(&Error{Kind: KindAPI, Code: CodeAPIError, Message: evt.Error})
			return
		}
		if evt.Done {
			// The terminal payload carries the accumulated content, which is
			// authoritative for extraction.
			full := evt.Content
			if full == "" {
				full = accumulated.String()
			}
			s.send(&Chunk{
				Actions: ExtractActions(full),
				Usage:   evt.Usage,
				Done:    true,
			})
			s.finish()
			return
		}
		if evt.Content != "" {
			accumulated.WriteString(evt.Content)
			if !s.send(&Chunk{Content: evt.Content}) {
				return
			}
		}
	}
}
