package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/atc"
)

// wsRequest is an intent sent over the websocket. Slot is 0-based.
type wsRequest struct {
	ID string `json:"id"`
	atc.Intent
}

type wsResponse struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// wsConn serializes writes; intents are handled concurrently so a running
// tool change does not hold up the rest of the connection.
type wsConn struct {
	*websocket.Conn
	mx sync.Mutex
}

func (c *wsConn) reply(res wsResponse) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.WriteJSON(res)
}

func (a *api) ws(w http.ResponseWriter, req *http.Request) {
	conn, err := a.upgrader.Upgrade(w, req, nil)
	if err != nil {
		a.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	ws := &wsConn{Conn: conn}
	defer ws.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	log := a.log.With(zap.String("remote", req.RemoteAddr))
	log.Debug("websocket connected")
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("websocket read", zap.Error(err))
			}
			return
		}

		var msg wsRequest
		err = json.Unmarshal(data, &msg)
		if err != nil {
			ws.reply(wsResponse{Error: "invalid message: " + err.Error()})
			continue
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}

		wg.Add(1)
		go func(msg wsRequest) {
			defer wg.Done()
			res := wsResponse{ID: msg.ID, OK: true}
			err := a.handle(ctx, msg.Intent)
			if err != nil {
				log.Info("intent failed", zap.String("id", msg.ID), zap.String("kind", string(msg.Kind)), zap.Error(err))
				res.OK, res.Error = false, err.Error()
			}
			err = ws.reply(res)
			if err != nil {
				log.Warn("websocket write", zap.Error(err))
			}
		}(msg)
	}
}

// handle applies an intent to the current registry. A tool change outlives
// the connection so the registry still records the slot the spindle holds.
func (a *api) handle(ctx context.Context, in atc.Intent) error {
	reg := a.current()
	if reg == nil {
		return errNoRegistry
	}
	if in.Kind == atc.IntentChangeTool {
		ctx = context.WithoutCancel(ctx)
	}
	return reg.Handle(ctx, in)
}
