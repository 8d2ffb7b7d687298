// Package speech defines the recognizer and synthesizer provider interfaces
// and their Google Cloud implementations.
package speech

import "context"

// Result is one recognition hypothesis. Interim results may be revised;
// a final result is stable.
type Result struct {
	Transcript string
	IsFinal    bool
}

// RecognizeStream is one open recognition stream. Send and Recv may be used
// from different goroutines; CloseSend flushes the audio and lets the
// backend emit its trailing finals before Recv returns io.EOF.
type RecognizeStream interface {
	Send(chunk []byte) error
	CloseSend() error
	Recv() (Result, error)
}

// Recognizer opens streaming speech-to-text sessions.
type Recognizer interface {
	OpenStream(ctx context.Context) (RecognizeStream, error)
}

// Synthesizer turns text into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
