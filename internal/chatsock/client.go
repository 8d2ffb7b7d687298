// Package chatsock runs the room websocket: one Client per connection,
// reading request envelopes and fanning replies through the room hub.
package chatsock

import (
	"context"
	"sync"
	"time"

	"vrmchat/internal/chat"
	"vrmchat/internal/config"
	"vrmchat/internal/database"
	"vrmchat/internal/guard"
	"vrmchat/internal/hub"
	"vrmchat/internal/models"
	"vrmchat/internal/wire"
	"vrmchat/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
	sendBuffer = 256
)

type presenceData struct {
	SocketAccessObjs []*models.SocketAccessEntry `json:"socket_access_objs"`
}

type accessData struct {
	AccessID string `json:"access_id"`
	UserName string `json:"user_name"`
}

type Client struct {
	conn     *websocket.Conn
	room     *hub.Hub
	hubs     *hub.Manager
	db       database.Database
	pipeline *chat.Pipeline
	rate     *guard.RateGuard
	cfg      config.SocketConfig

	roomID         string
	userID         int
	connectionName string

	send chan wire.Frame
	done chan struct{}
	// guardMu serializes rate checks; frames are otherwise handled
	// concurrently.
	guardMu sync.Mutex
}

func NewClient(conn *websocket.Conn, hubs *hub.Manager, db database.Database, pipeline *chat.Pipeline, cfg config.SocketConfig, roomID string, userID int) *Client {
	return &Client{
		conn:           conn,
		hubs:           hubs,
		db:             db,
		pipeline:       pipeline,
		rate:           guard.NewRateGuard(db, cfg.RequestPerSecLimit),
		cfg:            cfg,
		roomID:         roomID,
		userID:         userID,
		connectionName: models.NewID(),
		send:           make(chan wire.Frame, sendBuffer),
		done:           make(chan struct{}),
	}
}

// Queue implements hub.Receiver. It never blocks; a full buffer reports the
// client as a slow consumer.
func (c *Client) Queue(f wire.Frame) bool {
	select {
	case <-c.done:
		return false
	case c.send <- f:
		return true
	default:
		return false
	}
}

// Run serves the connection until the peer goes away. The connect and
// disconnect bookkeeping runs detached on purpose; presence rows are
// advisory and must not block the socket.
func (c *Client) Run() {
	c.room = c.hubs.Join(c.roomID, c.connectionName, c)
	go c.writePump()
	go c.handleConnect()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hubs.Leave(c.room, c.connectionName)
		go c.handleDisconnect()
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("chatsock: read: %v", err)
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		go c.handleFrame(msgType == websocket.BinaryMessage, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			msgType := websocket.TextMessage
			if f.Binary {
				msgType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(msgType, f.Payload); err != nil {
				logger.Error("chatsock: write: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame processes one inbound frame. Replies mirror the frame's
// shape: binary requests get compressed binary replies.
func (c *Client) handleFrame(binary bool, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("chatsock: frame handler panic: %v", r)
			c.replyToCaller(wire.ErrorEnvelope(), binary)
		}
	}()

	if !guard.PayloadWithinLimit(data, c.cfg.ReceiveKBLimit) {
		c.replyToCaller(wire.CloseAdvisory(), binary)
		return
	}

	in, err := wire.Decode(data, binary)
	if err != nil {
		logger.Warn("chatsock: undecodable frame from %s: %v", c.connectionName, err)
		c.replyToCaller(wire.ErrorEnvelope(), binary)
		return
	}

	switch in.Cmd {
	case wire.CmdPing:
		return
	case wire.CmdReconnect:
		c.replyToCaller(wire.OKEnvelope(wire.CmdReconnect, nil), binary)
		return
	}

	if !c.allow(in.AccessID) {
		c.replyToCaller(wire.CloseAdvisory(), binary)
		return
	}

	switch in.Cmd {
	case wire.CmdSendUserMessage:
		err := c.pipeline.Handle(context.Background(), c.roomID, in.Data.Message, in.Data.MessageID, func(env wire.Envelope) {
			c.replyToCaller(env, binary)
		})
		if err != nil {
			logger.Error("chatsock: send user message: %v", err)
			c.replyToCaller(wire.ErrorEnvelope(), binary)
			return
		}
	default:
		// Unknown commands are acked and otherwise ignored.
	}

	c.replyToCaller(wire.ReceiveAck(), binary)
}

func (c *Client) allow(accessID string) bool {
	c.guardMu.Lock()
	defer c.guardMu.Unlock()
	return c.rate.Allow(context.Background(), accessID)
}

func (c *Client) replyToCaller(v any, binary bool) {
	f, err := wire.Encode(v, binary)
	if err != nil {
		logger.Error("chatsock: encode reply: %v", err)
		return
	}
	c.room.Send(c.connectionName, f)
}

func (c *Client) broadcastToRoom(v any) {
	f, err := wire.Encode(v, false)
	if err != nil {
		logger.Error("chatsock: encode broadcast: %v", err)
		return
	}
	c.room.GroupSend(f)
}

// handleConnect creates the presence row after a short settle delay, then
// tells the caller its access id and the whole room the new member list.
func (c *Client) handleConnect() {
	time.Sleep(c.cfg.ConnectDelay)
	ctx := context.Background()

	accessID := models.NewID()
	access := &models.SocketAccess{
		RoomID:         c.roomID,
		AccessID:       accessID,
		UserID:         &c.userID,
		UserName:       models.DisplayName(accessID),
		ConnectionName: c.connectionName,
	}
	if err := c.db.CreateAccess(ctx, access); err != nil {
		logger.Error("chatsock: create access: %v", err)
		return
	}
	entries, err := c.db.ListRoomAccess(ctx, c.roomID)
	if err != nil {
		logger.Error("chatsock: list access: %v", err)
		return
	}

	c.replyToCaller(wire.OKEnvelope(wire.CmdSetUserAccessID, accessData{
		AccessID: access.AccessID,
		UserName: access.UserName,
	}), false)
	c.broadcastToRoom(wire.OKEnvelope(wire.CmdSocketConnect, presenceData{SocketAccessObjs: entries}))
}

// handleDisconnect removes the presence row after a settle delay and
// notifies the remaining members. The row may already be gone.
func (c *Client) handleDisconnect() {
	time.Sleep(c.cfg.DisconnectDelay)
	ctx := context.Background()

	if err := c.db.DeleteAccessByConnection(ctx, c.connectionName); err != nil {
		logger.Error("chatsock: delete access: %v", err)
		return
	}
	entries, err := c.db.ListRoomAccess(ctx, c.roomID)
	if err != nil {
		logger.Error("chatsock: list access: %v", err)
		return
	}
	c.broadcastToRoom(wire.OKEnvelope(wire.CmdSocketDisconnect, presenceData{SocketAccessObjs: entries}))
}
