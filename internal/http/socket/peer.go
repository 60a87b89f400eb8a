package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// peer is one websocket connection. Writes are serialized because fanout
// deliveries and request replies arrive from different goroutines.
type peer struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

func newPeer(id string, conn *websocket.Conn, writeTimeout time.Duration) *peer {
	return &peer{id: id, conn: conn, writeTimeout: writeTimeout}
}

// Deliver implements fanout.Subscriber. payload is an encoded Frame.
func (p *peer) Deliver(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.send(payload)
}

func (p *peer) writeFrame(f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return p.send(b)
}

func (p *peer) writeError(requestID, code, msg string) error {
	return p.writeFrame(Frame{
		Type:      TypeError,
		RequestID: requestID,
		Payload:   mustJSON(errorPayload{Code: code, Message: msg}),
	})
}

// send writes one text frame. A slow reader fails the write after
// writeTimeout instead of stalling the publisher.
func (p *peer) send(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeTimeout > 0 {
		_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	}
	return websocket.Message.Send(p.conn, string(b))
}
