package server

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/it35lab/campusfeed/model"
	"github.com/it35lab/campusfeed/server/middlewares"
	Logger "github.com/it35lab/campusfeed/utils/log"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Subscribe upgrades to a websocket that streams signals: SESSION on every
// session state change of the client and NOTIFICATION on new activity on
// the user's content. The stream ends when the socket closes or the user
// signs out.
func (s *Server) Subscribe(c *gin.Context) {
	client, release := s.registry.Pin(middlewares.GetClientKey(c))
	defer release()
	userId := c.GetString(middlewares.UserIdField)
	log := Logger.Log.WithFields(logrus.Fields{"client": client.Key, "user_id": userId})

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnln("websocket upgrade failed", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals, chId := s.signals.AddNewConnection(ctx, userId)
	states := client.Session.Watch(ctx)
	log.WithField("channel", chId).Infoln("subscription opened")

	go readPump(conn, cancel)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case signal := <-signals:
			if err := writeJSON(conn, signal); err != nil {
				log.Infoln("subscription closed", err)
				return
			}
		case state, ok := <-states:
			if !ok {
				return
			}
			signal, err := model.NewSignal(model.SignalTypeSession, newSessionResponse(state))
			if err != nil {
				log.Errorln("cannot encode session signal", err)
				continue
			}
			if err := writeJSON(conn, signal); err != nil {
				log.Infoln("subscription closed", err)
				return
			}
			if state.Initialized && !state.Loading && state.User == nil {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "signed out"),
					time.Now().Add(writeWait))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// readPump discards client messages and cancels once the peer is gone.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
