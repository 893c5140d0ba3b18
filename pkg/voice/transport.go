package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// signalMessage is one message on the signaling channel.
type signalMessage struct {
	Type string `json:"type"`
	SDP  string `json:"sdp,omitempty"`
}

// transport is the two-party real-time media connection: a WebRTC peer
// connection negotiated over a token-authenticated websocket signaling
// channel, publishing the local microphone track and draining the remote
// audio track.
type transport struct {
	pc *webrtc.PeerConnection
	ws *websocket.Conn

	mu          sync.Mutex
	localTrack  *webrtc.TrackLocalStaticSample
	localSender *webrtc.RTPSender
	closeOnce   sync.Once
}

// dialTransport performs the join handshake: websocket dial with the session
// token, offer/answer exchange, ICE gathering.
func dialTransport(ctx context.Context, signalURL, token string) (*transport, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)

	dialer := websocket.Dialer{}
	ws, resp, err := dialer.DialContext(ctx, signalURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("voice: signaling connect failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("voice: signaling connect failed: %w", err)
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("voice: create peer connection: %w", err)
	}

	t := &transport{pc: pc, ws: ws}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		t.close()
		return nil, fmt.Errorf("voice: add audio transceiver: %w", err)
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() == webrtc.RTPCodecTypeAudio {
			go drainRemote(track)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		t.close()
		return nil, fmt.Errorf("voice: create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		t.close()
		return nil, fmt.Errorf("voice: set local description: %w", err)
	}
	<-webrtc.GatheringCompletePromise(pc)

	if err := ws.WriteJSON(signalMessage{Type: "offer", SDP: pc.LocalDescription().SDP}); err != nil {
		t.close()
		return nil, fmt.Errorf("voice: send offer: %w", err)
	}
	var answer signalMessage
	if err := ws.ReadJSON(&answer); err != nil {
		t.close()
		return nil, fmt.Errorf("voice: read answer: %w", err)
	}
	if answer.Type != "answer" {
		t.close()
		return nil, fmt.Errorf("voice: unexpected signaling message type %q", answer.Type)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	}); err != nil {
		t.close()
		return nil, fmt.Errorf("voice: set remote description: %w", err)
	}

	return t, nil
}

// drainRemote keeps the remote audio track flowing. Playback routing is the
// embedding environment's concern; the core only depacketizes, notes
// sequence gaps, and discards.
func drainRemote(track *webrtc.TrackRemote) {
	var prev *rtp.Packet
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("voice: remote track closed", "err", err)
			}
			return
		}
		if prev != nil && pkt.SequenceNumber != prev.SequenceNumber+1 {
			slog.Debug("voice: remote audio gap",
				"from", prev.SequenceNumber, "to", pkt.SequenceNumber)
		}
		prev = pkt
	}
}

// publish adds the local microphone track to the peer connection. At most
// one local track is published; republishing after unpublish is allowed.
func (t *transport) publish() (*webrtc.TrackLocalStaticSample, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.localTrack != nil {
		return nil, errors.New("voice: local track already published")
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "chatkit-mic",
	)
	if err != nil {
		return nil, err
	}
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	t.localTrack = track
	t.localSender = sender
	return track, nil
}

// unpublish removes the local track from the peer connection.
func (t *transport) unpublish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.localSender != nil {
		if err := t.pc.RemoveTrack(t.localSender); err != nil {
			slog.Debug("voice: remove track", "err", err)
		}
	}
	t.localTrack = nil
	t.localSender = nil
}

// writeSample pushes one captured frame onto the published track.
func (t *transport) writeSample(f Frame) error {
	t.mu.Lock()
	track := t.localTrack
	t.mu.Unlock()
	if track == nil {
		return errors.New("voice: no published track")
	}
	return track.WriteSample(media.Sample{Data: f.Data, Duration: f.Duration})
}

// close tears the transport down. Safe to call more than once.
func (t *transport) close() {
	t.closeOnce.Do(func() {
		if t.ws != nil {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = t.ws.WriteMessage(websocket.CloseMessage, msg)
			t.ws.Close()
		}
		if t.pc != nil {
			if err := t.pc.Close(); err != nil {
				slog.Debug("voice: close peer connection", "err", err)
			}
		}
	})
}
