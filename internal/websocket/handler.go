package websocket

import (
	"encoding/json"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/nkiryanov/newsdesk/internal/logger"
)

// HandleWebSocket upgrades connection and runs it as hub client
// greet, when set, gives the first message for the new client (current route)
func HandleWebSocket(hub *Hub, l logger.Logger, greet func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // shell runs on the same device, origin is not meaningful
		})
		if err != nil {
			l.Warn("websocket accept failed", "error", err)
			return
		}

		var greeting func() []byte
		if greet != nil {
			greeting = func() []byte {
				data, err := json.Marshal(greet())
				if err != nil {
					l.Error("marshal websocket greeting", "error", err)
					return nil
				}
				return data
			}
		}

		NewClient(hub, conn).Run(r.Context(), greeting)
	}
}
