package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/famsync/pkg/api"
)

const nudgePongWait = 60 * time.Second

// ListenNudges подключается к /api/v1/nudge и передает каждое уведомление в fn
func (c *Client) ListenNudges(ctx context.Context, token string, fn func(api.Nudge)) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := dialer.DialContext(ctx, nudgeURL(c.baseURL), header)
	if err != nil {
		if resp != nil {
			return &StatusError{StatusCode: resp.StatusCode, Message: "nudge handshake failed"}
		}
		return fmt.Errorf("%w: nudge dial: %w", ErrTransport, err)
	}
	defer func() {
		_ = conn.Close()
	}()

	// Закрываем соединение при отмене контекста, чтобы разблокировать ReadJSON
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	_ = conn.SetReadDeadline(time.Now().Add(nudgePongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(nudgePongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		var nudge api.Nudge
		if err := conn.ReadJSON(&nudge); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("%w: nudge read: %w", ErrTransport, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(nudgePongWait))
		fn(nudge)
	}
}

// nudgeURL переводит http(s) адрес сервера в ws(s)
func nudgeURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		baseURL = "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		baseURL = "ws://" + strings.TrimPrefix(baseURL, "http://")
	}
	return strings.TrimSuffix(baseURL, "/") + "/api/v1/nudge"
}
