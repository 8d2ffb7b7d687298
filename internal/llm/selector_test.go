package llm

import "testing"

func TestModelForSelector(t *testing.T) {
	tests := []struct {
		selector int
		want     string
	}{
		{1, "gpt-3.5-turbo"},
		{10, "gpt-4"},
		{11, "gpt-4-turbo"},
		{12, "gpt-4.5-preview"},
		{20, "gpt-4o"},
		{21, "gpt-4o-mini"},
		{100, "gemini-1.5-flash-001"},
		{101, "gemini-1.5-pro-001"},
		{110, "gemini-1.5-flash-002"},
		{111, "gemini-1.5-pro-002"},
		{131, "gemini-2.0-flash-exp"},
		// Unknown selectors fall back per family.
		{7, defaultOpenAIModel},
		{199, defaultGeminiModel},
	}
	for _, tt := range tests {
		if got := ModelForSelector(tt.selector); got != tt.want {
			t.Errorf("ModelForSelector(%d) = %q, want %q", tt.selector, got, tt.want)
		}
	}
}

func TestIsGeminiSelector(t *testing.T) {
	if IsGeminiSelector(99) {
		t.Error("99 should be an OpenAI selector")
	}
	if !IsGeminiSelector(100) {
		t.Error("100 should be a Gemini selector")
	}
}

func TestValidateParams(t *testing.T) {
	ok := Params{Temperature: 1, TopP: 0.5, PresencePenalty: -2, FrequencyPenalty: 2}
	if err := validateParams(ok); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}

	bad := []Params{
		{Temperature: 2.1},
		{TopP: 1.1},
		{PresencePenalty: -2.5},
		{FrequencyPenalty: 2.5},
	}
	for i, p := range bad {
		if err := validateParams(p); err == nil {
			t.Errorf("case %d: out-of-range params accepted", i)
		}
	}
}
