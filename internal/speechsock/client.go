// Package speechsock runs the speech websocket: binary frames carry audio
// for recognition, text frames carry synthesis commands. Transcript events
// go back as bare JSON text frames.
package speechsock

import (
	"context"
	"encoding/json"
	"time"

	"vrmchat/internal/config"
	"vrmchat/internal/speech"
	"vrmchat/internal/stt"
	"vrmchat/internal/tts"
	"vrmchat/internal/wire"
	"vrmchat/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
	sendBuffer = 256

	cmdError = "error"
)

type errorReply struct {
	Cmd          string `json:"cmd"`
	Status       int    `json:"status"`
	OK           bool   `json:"ok"`
	Message      string `json:"message"`
	ToastType    string `json:"toastType,omitempty"`
	ToastMessage string `json:"toastMessage,omitempty"`
}

type Client struct {
	conn   *websocket.Conn
	stt    *stt.Manager
	tts    *tts.Bridge
	cfg    config.SocketConfig
	send   chan wire.Frame
	done   chan struct{}
	userID int
}

func NewClient(conn *websocket.Conn, recognizer speech.Recognizer, synth speech.Synthesizer, cfg config.SocketConfig, finalTimeout time.Duration, userID int) *Client {
	c := &Client{
		conn:   conn,
		tts:    tts.NewBridge(synth),
		cfg:    cfg,
		send:   make(chan wire.Frame, sendBuffer),
		done:   make(chan struct{}),
		userID: userID,
	}
	c.stt = stt.NewManager(recognizer, c.emitTranscript, finalTimeout)
	return c
}

func (c *Client) Run() {
	logger.Info("speechsock: user %d connected", c.userID)
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TeardownWait)
		c.stt.CloseAll(ctx)
		cancel()
		close(c.done)
		c.conn.Close()
		logger.Info("speechsock: user %d disconnected", c.userID)
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
				logger.Error("speechsock: read: %v", err)
			}
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			c.stt.HandleAudio(context.Background(), data)
		case websocket.TextMessage:
			go c.handleText(data)
		}
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
				logger.Error("speechsock: write: %v", err)
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

func (c *Client) handleText(data []byte) {
	var in wire.Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		logger.Warn("speechsock: undecodable text frame: %v", err)
		c.sendError("", "")
		return
	}

	switch in.Cmd {
	case wire.CmdTTS:
		reply, err := c.tts.Handle(context.Background(), in.Data.Text)
		if err != nil {
			logger.Error("speechsock: tts: %v", err)
			c.sendError("error", "error")
			return
		}
		// Success replies default to the compressed shape; only error
		// envelopes stay plain text.
		c.sendBinary(reply)
	default:
		// Unknown text commands are ignored.
	}
}

func (c *Client) sendBinary(v any) {
	f, err := wire.Encode(v, true)
	if err != nil {
		logger.Error("speechsock: encode: %v", err)
		return
	}
	c.enqueue(f)
}

func (c *Client) emitTranscript(ev wire.TranscriptEvent) {
	c.sendJSON(ev)
}

func (c *Client) sendError(toastType, toastMessage string) {
	c.sendJSON(errorReply{
		Cmd:          cmdError,
		Status:       500,
		OK:           false,
		Message:      "error",
		ToastType:    toastType,
		ToastMessage: toastMessage,
	})
}

func (c *Client) sendJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		logger.Error("speechsock: marshal: %v", err)
		return
	}
	c.enqueue(wire.Frame{Payload: payload})
}

// enqueue never blocks; a full buffer drops the frame rather than stall the
// recognizer.
func (c *Client) enqueue(f wire.Frame) {
	select {
	case <-c.done:
	case c.send <- f:
	default:
		logger.Warn("speechsock: send buffer full, frame dropped")
	}
}
