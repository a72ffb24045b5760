package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 30 * time.Second
	wsPingPeriod = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	// The device serves a local status page; any origin may watch.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEnvelope is the frame format of the /ws stream.
type wsEnvelope struct {
	Type string    `json:"type"`
	Ts   time.Time `json:"ts"`
	Data any       `json:"data"`
}

// ScanStreamHandler upgrades to a websocket and streams every scan snapshot
// as a {"type":"scan"} text frame until the client goes away.
func ScanStreamHandler(b *Broadcaster, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("ws upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		id, ch := b.Subscribe(16)
		defer b.Unsubscribe(id)
		logger.Info("ws client connected", "remote_addr", r.RemoteAddr)

		// Reader: control frames and disconnect detection.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(wsPongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-gone:
				logger.Info("ws client disconnected", "remote_addr", r.RemoteAddr)
				return
			case <-r.Context().Done():
				return
			case snap, ok := <-ch:
				if !ok {
					return
				}
				payload, err := json.Marshal(wsEnvelope{Type: "scan", Ts: time.Now().UTC(), Data: snap})
				if err != nil {
					logger.Warn("ws marshal failed", "error", err)
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					if !errors.Is(err, websocket.ErrCloseSent) {
						logger.Info("ws write failed", "remote_addr", r.RemoteAddr, "error", err)
					}
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	})
}
