// Package wsgateway sends outward events over a websocket connection to the
// remote service gateway.
package wsgateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/koralvoice/koral-core/core/messaging"
)

// Gateway is a messaging sender backed by a single websocket connection.
// Writes are serialized; gorilla/websocket allows only one concurrent writer.
type Gateway struct {
	wsConn *websocket.Conn
	url    string

	mu sync.Mutex
}

// Dial connects to the remote gateway at url.
func Dial(ctx context.Context, url string) (*Gateway, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial event gateway: %w", err)
	}

	return &Gateway{wsConn: conn, url: url}, nil
}

// SendEvent writes one event envelope to the gateway.
func (g *Gateway) SendEvent(ctx context.Context, event messaging.Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.wsConn == nil {
		return fmt.Errorf("event gateway is not connected")
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = g.wsConn.SetWriteDeadline(deadline)
	}

	if err := g.wsConn.WriteJSON(event); err != nil {
		return fmt.Errorf("failed to send %s.%s event: %w",
			event.Header.Namespace, event.Header.Name, err)
	}

	return nil
}

// Close tears the connection down after a best-effort close handshake.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.wsConn == nil {
		return nil
	}

	_ = g.wsConn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	err := g.wsConn.Close()
	g.wsConn = nil
	return err
}
