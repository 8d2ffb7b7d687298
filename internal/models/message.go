package models

import "time"

// TokenInfo carries the advisory token counts computed for one exchange.
type TokenInfo struct {
	SentTokens      int `json:"sent_tokens"`
	GeneratedTokens int `json:"generated_tokens"`
}

// HistoryTurn is one conversational turn as sent to the model.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message is one user/assistant exchange. Rows are append-only and never
// mutated after creation.
type Message struct {
	ID           int           `json:"-"`
	MessageID    string        `json:"message_id"`
	RoomID       string        `json:"room_id"`
	UserMessage  string        `json:"user_message"`
	LLMResponse  string        `json:"llm_response"`
	UserSettings *RoomSettings `json:"user_settings"`
	TokenInfo    TokenInfo     `json:"tokens_info"`
	History      []HistoryTurn `json:"history_list"`
	IsActive     bool          `json:"is_active"`
	CreatedAt    time.Time     `json:"created_at"`
}
