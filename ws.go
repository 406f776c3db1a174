package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "mathduel_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// client is one connected player. The read pump owns the connection's
// inbound side; everything outbound goes through the send channel so the
// room's event loop never blocks on a slow socket.
type client struct {
	conn     *websocket.Conn
	send     chan any
	done     chan struct{}
	playerID string

	mu   sync.Mutex
	room *Room
}

func newClient(conn *websocket.Conn, playerID string) *client {
	return &client{
		conn:     conn,
		send:     make(chan any, sendBuffer),
		done:     make(chan struct{}),
		playerID: playerID,
	}
}

func (c *client) getRoom() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.room
}

func (c *client) setRoom(r *Room) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.room = r
}

// trySend queues a message for the write pump, dropping it if the client
// is gone or too far behind. Dropped ticks are tolerated by design of the
// protocol; the buffer is deep enough that results are not at risk.
func (c *client) trySend(msg any) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
	}
}

func serveWS(cfg *Config, reg *RoomRegistry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		playerID := getOrSetPlayerID(w, r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Str("remote", realIP(r)).Msg("websocket upgrade failed")
			return
		}

		c := newClient(conn, playerID)

		log.Debug().Str("player", playerID).Str("remote", realIP(r)).Msg("player connected")

		go c.writePump()
		c.readPump(reg)
	}
}

func (c *client) readPump(reg *RoomRegistry) {
	defer func() {
		if room := c.getRoom(); room != nil {
			room.post(leaveEvent{c: c, disconnect: true})
		}
		close(c.done)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.trySend(protocolError(errKindBadMessage, "unparseable message"))
			continue
		}

		c.handleMessage(reg, msg)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// handleMessage validates one decoded client message and dispatches it.
// Registry lookups happen here on the connection's goroutine; everything
// touching room state is posted to the room's event loop.
func (c *client) handleMessage(reg *RoomRegistry, msg ClientMessage) {
	switch msg.Type {
	case "create_room":
		if c.getRoom() != nil {
			c.trySend(protocolError(errKindAlreadyInRoom, "leave your current room first"))
			return
		}
		mode, ok := parseMode(msg.Mode)
		if !ok {
			c.trySend(protocolError(errKindBadMessage, "unknown mode"))
			return
		}
		c.join(reg.Create(mode), msg.Name, true)

	case "join_room":
		if c.getRoom() != nil {
			c.trySend(protocolError(errKindAlreadyInRoom, "leave your current room first"))
			return
		}
		room, err := reg.Find(msg.RoomID)
		if err != nil {
			c.trySend(protocolError(errorKind(err), err.Error()))
			return
		}
		c.join(room, msg.Name, false)

	case "ready":
		c.toRoom(readyEvent{c: c})

	case "submit_answer":
		value, ok := parseAnswer(msg.Value)
		if !ok {
			c.trySend(protocolError(errKindInvalidAnswer, "answers must be numeric"))
			return
		}
		c.toRoom(answerEvent{c: c, value: value})

	case "submit_phrase":
		c.toRoom(phraseEvent{c: c, text: msg.Text})

	case "set_name":
		c.toRoom(nameEvent{c: c, name: msg.Name})

	case "leave":
		c.toRoom(leaveEvent{c: c})

	default:
		c.trySend(protocolError(errKindBadMessage, "unknown message type"))
	}
}

func (c *client) toRoom(ev roomEvent) {
	room := c.getRoom()
	if room == nil {
		c.trySend(protocolError(errKindNotInRoom, "join a room first"))
		return
	}
	room.post(ev)
}

func (c *client) join(room *Room, name string, created bool) {
	reply := make(chan error, 1)
	room.post(joinEvent{c: c, name: name, created: created, reply: reply})

	var err error
	select {
	case err = <-reply:
	case <-room.stop:
		// The room may have been torn down between posting and handling;
		// prefer an actual reply if one made it out.
		select {
		case err = <-reply:
		default:
			err = ErrRoomNotFound
		}
	}

	if err != nil {
		c.trySend(protocolError(errorKind(err), err.Error()))
	}
}
