// Package wire implements the client-facing envelope and its two frame
// shapes: plain JSON text and brotli-compressed binary. Outbound replies
// mirror whichever shape the triggering inbound frame used.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// CompressionQuality matches the quality the browser clients decode fastest.
const CompressionQuality = 4

// Known command values.
const (
	CmdPing             = "ping"
	CmdReconnect        = "Reconnect"
	CmdSendUserMessage  = "SendUserMessage"
	CmdSetUserAccessID  = "SetUserAccessId"
	CmdSocketConnect    = "SocketConnect"
	CmdSocketDisconnect = "SocketDisconnect"
	CmdChangeRoomName   = "ChangeRoomName"
	CmdError            = "Error"
	CmdWsClose          = "wsClose"
	CmdReceiverMessage  = "receiverMessage"
	CmdTTS              = "tts"
)

// Envelope is the shared shape for success and error replies; clients need
// one decode path for both outcomes.
type Envelope struct {
	Cmd     string `json:"cmd"`
	Status  int    `json:"status"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// OKEnvelope builds a status-200 envelope.
func OKEnvelope(cmd string, data any) Envelope {
	return Envelope{Cmd: cmd, Status: 200, OK: true, Data: data}
}

// ErrorEnvelope is the generic server-failure reply.
func ErrorEnvelope() Envelope {
	return Envelope{Cmd: CmdError, Status: 500, OK: false, Message: "server process Error"}
}

// CloseAdvisory tells the offending client to close and reconnect cleanly;
// the transport connection itself stays open.
func CloseAdvisory() Envelope {
	return Envelope{Cmd: CmdWsClose, Status: 200, OK: true}
}

// ReceiveAck acknowledges a handled data frame.
func ReceiveAck() Envelope {
	return Envelope{Cmd: CmdReceiverMessage, Status: 200, OK: true, Message: "receiveFin"}
}

// Inbound is the application-level request envelope.
type Inbound struct {
	Cmd      string      `json:"cmd"`
	AccessID string      `json:"request_user_access_id"`
	Data     InboundData `json:"data"`
}

type InboundData struct {
	Message   string `json:"message"`
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

// TranscriptEvent is the bare speech-to-text result frame. It is not an
// Envelope; transcripts keep the original flat shape.
type TranscriptEvent struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"is_final"`
	IsEnd      bool   `json:"is_end"`
}

// Frame is one prepared outbound websocket message.
type Frame struct {
	Binary  bool
	Payload []byte
}

// Encode marshals v into a text or compressed-binary frame.
func Encode(v any, binary bool) (Frame, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal envelope: %w", err)
	}
	if !binary {
		return Frame{Payload: raw}, nil
	}
	var buf bytes.Buffer
	w := brotli.NewWriterOptions(&buf, brotli.WriterOptions{Quality: CompressionQuality})
	if _, err := w.Write(raw); err != nil {
		return Frame{}, fmt.Errorf("compress envelope: %w", err)
	}
	if err := w.Close(); err != nil {
		return Frame{}, fmt.Errorf("compress envelope: %w", err)
	}
	return Frame{Binary: true, Payload: buf.Bytes()}, nil
}

// Decode parses an inbound frame; binary frames are decompressed first.
func Decode(data []byte, binary bool) (*Inbound, error) {
	raw := data
	if binary {
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("decompress frame: %w", err)
		}
		raw = decompressed
	}
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	return &in, nil
}
