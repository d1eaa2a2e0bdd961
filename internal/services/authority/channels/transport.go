package channels

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type subscribePayload struct {
	KingdomID string `json:"kingdom_id"`
}

type subscribedPayload struct {
	KingdomID  string `json:"kingdom_id"`
	ServerTime string `json:"server_time"`
}

type degradedPayload struct {
	KingdomID string `json:"kingdom_id"`
	Mode      string `json:"mode"`
	Message   string `json:"message"`
}

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// NewHandler creates the live authority update routes backed by the hub.
func NewHandler(hub *Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, hub)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	return mux
}

func handleWSConn(conn *websocket.Conn, hub *Hub) {
	defer func() {
		_ = conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	peer := newWSPeer(json.NewEncoder(conn))

	var sub *Subscription
	defer func() {
		hub.Unsubscribe(sub)
	}()

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(peer, "", "INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(peer, frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		switch frame.Type {
		case "authority.subscribe":
			next, keepOpen := handleSubscribeFrame(peer, hub, sub, frame)
			if !keepOpen {
				return
			}
			sub = next
		default:
			_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

// handleSubscribeFrame resolves one subscribe request. A false keep-open
// result means the guard is saturated: the peer got a degraded notice and
// the socket closes normally.
func handleSubscribeFrame(peer *wsPeer, hub *Hub, previous *Subscription, frame wsFrame) (*Subscription, bool) {
	var payload subscribePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid subscribe payload")
		return previous, true
	}

	kingdomID := strings.TrimSpace(payload.KingdomID)
	if kingdomID == "" {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "kingdom_id is required")
		return previous, true
	}

	if previous != nil && previous.KingdomID() == kingdomID {
		_ = writeSubscribed(peer, frame.RequestID, kingdomID)
		return previous, true
	}

	sub, ok := hub.Subscribe(kingdomID)
	if !ok {
		_ = peer.writeFrame(wsFrame{
			Type:      "authority.degraded",
			RequestID: frame.RequestID,
			Payload: mustJSON(degradedPayload{
				KingdomID: kingdomID,
				Mode:      "poll",
				Message:   "live channel capacity reached, poll the read API instead",
			}),
		})
		return previous, false
	}

	if previous != nil {
		hub.Unsubscribe(previous)
	}

	_ = writeSubscribed(peer, frame.RequestID, kingdomID)
	go pumpEvents(peer, sub)
	return sub, true
}

func writeSubscribed(peer *wsPeer, requestID string, kingdomID string) error {
	return peer.writeFrame(wsFrame{
		Type:      "authority.subscribed",
		RequestID: requestID,
		Payload: mustJSON(subscribedPayload{
			KingdomID:  kingdomID,
			ServerTime: time.Now().UTC().Format(time.RFC3339),
		}),
	})
}

// pumpEvents forwards hub events to the peer until the subscription
// closes. Write failures are ignored; the read loop notices the dead
// connection and tears the subscription down.
func pumpEvents(peer *wsPeer, sub *Subscription) {
	for event := range sub.Events() {
		_ = peer.writeFrame(wsFrame{
			Type:    "authority.event",
			Payload: mustJSON(event),
		})
	}
}

func writeWSError(peer *wsPeer, requestID string, code string, message string) error {
	return peer.writeFrame(wsFrame{
		Type:      "authority.error",
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{
				Code:      code,
				Message:   message,
				Retryable: false,
			},
		}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
