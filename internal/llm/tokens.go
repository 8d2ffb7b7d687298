package llm

import (
	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

// CountTokens estimates the token count of text for a model. Models without
// a registered encoding use the cl100k_base estimate, which is close enough
// for an advisory gate.
func CountTokens(text, model string) (int, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return 0, err
		}
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// WithinTokenLimit reports whether text fits under max tokens for the model.
// A zero or negative max disables the gate. Only a count strictly above the
// ceiling fails; a count equal to it passes.
func WithinTokenLimit(text, model string, max int) (bool, error) {
	if max <= 0 {
		return true, nil
	}
	n, err := CountTokens(text, model)
	if err != nil {
		return false, err
	}
	return n <= max, nil
}
