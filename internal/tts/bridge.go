// Package tts turns synthesis requests into wire replies.
package tts

import (
	"context"
	"encoding/base64"
	"fmt"

	"vrmchat/internal/speech"
	"vrmchat/internal/wire"
)

// Bridge runs one synthesis per request and shapes the reply envelope.
type Bridge struct {
	synth speech.Synthesizer
}

func NewBridge(synth speech.Synthesizer) *Bridge {
	return &Bridge{synth: synth}
}

// Handle synthesizes text and returns the reply. Empty audio is not an
// error to the caller; the client gets an informational toast instead.
func (b *Bridge) Handle(ctx context.Context, text string) (wire.TTSEnvelope, error) {
	audio, err := b.synth.Synthesize(ctx, text)
	if err != nil {
		return wire.TTSEnvelope{}, fmt.Errorf("tts: %w", err)
	}

	if len(audio) == 0 {
		return wire.TTSEnvelope{
			Cmd:          wire.CmdTTS,
			Status:       500,
			OK:           false,
			AudioContent: nil,
			Message:      "No speech?",
			ToastType:    "info",
			ToastMessage: "No speech?",
		}, nil
	}

	encoded := base64.StdEncoding.EncodeToString(audio)
	return wire.TTSEnvelope{
		Cmd:          wire.CmdTTS,
		Status:       200,
		OK:           true,
		AudioContent: &encoded,
	}, nil
}
