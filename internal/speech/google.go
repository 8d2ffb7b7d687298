package speech

import (
	"context"
	"fmt"
	"io"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"

	"vrmchat/internal/config"
)

// GoogleRecognizer opens Cloud Speech-to-Text streaming sessions.
type GoogleRecognizer struct {
	client *speech.Client
	cfg    config.SpeechConfig
}

func NewGoogleRecognizer(ctx context.Context, cfg config.SpeechConfig) (*GoogleRecognizer, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &GoogleRecognizer{client: client, cfg: cfg}, nil
}

func (r *GoogleRecognizer) Close() error {
	return r.client.Close()
}

// OpenStream starts a streaming-recognize call and sends the config frame.
func (r *GoogleRecognizer) OpenStream(ctx context.Context) (RecognizeStream, error) {
	stream, err := r.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, fmt.Errorf("open recognize stream: %w", err)
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            int32(r.cfg.SampleRateHertz),
					LanguageCode:               r.cfg.LanguageCode,
					ProfanityFilter:            true,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: true,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("send recognize config: %w", err)
	}

	return &googleStream{stream: stream}, nil
}

type googleStream struct {
	stream speechpb.Speech_StreamingRecognizeClient
	// pending holds results beyond the first from a multi-result response.
	pending []Result
}

func (s *googleStream) Send(chunk []byte) error {
	return s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: chunk,
		},
	})
}

func (s *googleStream) CloseSend() error {
	return s.stream.CloseSend()
}

func (s *googleStream) Recv() (Result, error) {
	if len(s.pending) > 0 {
		res := s.pending[0]
		s.pending = s.pending[1:]
		return res, nil
	}

	for {
		resp, err := s.stream.Recv()
		if err != nil {
			return Result{}, err
		}
		if resp.Error != nil {
			return Result{}, fmt.Errorf("recognize: %s", resp.Error.Message)
		}

		var results []Result
		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 {
				continue
			}
			results = append(results, Result{
				Transcript: r.Alternatives[0].Transcript,
				IsFinal:    r.IsFinal,
			})
		}
		if len(results) == 0 {
			continue
		}
		s.pending = results[1:]
		return results[0], nil
	}
}

// GoogleSynthesizer calls Cloud Text-to-Speech.
type GoogleSynthesizer struct {
	client *texttospeech.Client
	cfg    config.SpeechConfig
}

func NewGoogleSynthesizer(ctx context.Context, cfg config.SpeechConfig) (*GoogleSynthesizer, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("texttospeech client: %w", err)
	}
	return &GoogleSynthesizer{client: client, cfg: cfg}, nil
}

func (s *GoogleSynthesizer) Close() error {
	return s.client.Close()
}

// Synthesize returns OGG Opus audio for text. Empty text yields empty audio
// without calling the backend.
func (s *GoogleSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, nil
	}

	resp, err := s.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: s.cfg.LanguageCode,
			Name:         s.cfg.VoiceName,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_OGG_OPUS,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	return resp.AudioContent, nil
}

var _ io.Closer = (*GoogleRecognizer)(nil)
var _ io.Closer = (*GoogleSynthesizer)(nil)
