package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	// tokenPath is the token-issuing endpoint path on the host backend.
	tokenPath = "/api/livekit/token"

	// tokenRefreshInterval is how often long-lived sessions refresh their
	// token. Refresh failures are logged, not fatal, and never trigger a
	// reconnect; very long sessions may require a manual reconnect.
	tokenRefreshInterval = 50 * time.Minute
)

type tokenRequest struct {
	RoomName            string `json:"roomName"`
	ParticipantName     string `json:"participantName"`
	ParticipantIdentity string `json:"participantIdentity,omitempty"`
}

type tokenResponse struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

// fetchToken requests a session token from the token-issuing endpoint.
func (m *Manager) fetchToken(ctx context.Context) (string, error) {
	body, err := json.Marshal(tokenRequest{
		RoomName:            m.cfg.RoomName,
		ParticipantName:     m.cfg.ParticipantName,
		ParticipantIdentity: m.cfg.ParticipantIdentity,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenEndpoint+tokenPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return "", &Error{Code: CodeTokenFetchFailed, Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", &Error{Code: CodeTokenFetchFailed, Message: "decoding token response", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		msg := tr.Error
		if msg == "" {
			msg = fmt.Sprintf("token endpoint returned status %d", resp.StatusCode)
		}
		return "", &Error{Code: CodeTokenFetchFailed, Message: msg}
	}
	if tr.Token == "" {
		return "", &Error{Code: CodeTokenFetchFailed, Message: "token endpoint returned an empty token"}
	}
	return tr.Token, nil
}
