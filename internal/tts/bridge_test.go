package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"vrmchat/internal/wire"
)

type fakeSynth struct {
	audio []byte
	err   error
	text  string
}

func (s *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	s.text = text
	return s.audio, s.err
}

func TestHandleReturnsBase64Audio(t *testing.T) {
	synth := &fakeSynth{audio: []byte{0x4f, 0x67, 0x67, 0x53}}
	b := NewBridge(synth)

	reply, err := b.Handle(context.Background(), "こんにちは")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if synth.text != "こんにちは" {
		t.Fatalf("synthesized %q", synth.text)
	}
	if reply.Cmd != wire.CmdTTS || reply.Status != 200 || !reply.OK {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if reply.AudioContent == nil {
		t.Fatal("audioContent missing")
	}
	decoded, err := base64.StdEncoding.DecodeString(*reply.AudioContent)
	if err != nil {
		t.Fatalf("decode audio: %v", err)
	}
	if string(decoded) != "OggS" {
		t.Fatalf("audio = %q", decoded)
	}
}

func TestHandleEmptyAudioIsInfoToast(t *testing.T) {
	b := NewBridge(&fakeSynth{audio: nil})

	reply, err := b.Handle(context.Background(), "...")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply.OK || reply.Status != 500 {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if reply.AudioContent != nil {
		t.Fatal("audioContent must be null")
	}
	if reply.Message != "No speech?" || reply.ToastType != "info" {
		t.Fatalf("toast: %+v", reply)
	}
}

func TestHandleSynthesisFailure(t *testing.T) {
	b := NewBridge(&fakeSynth{err: errors.New("backend down")})
	if _, err := b.Handle(context.Background(), "hi"); err == nil {
		t.Fatal("expected error")
	}
}
