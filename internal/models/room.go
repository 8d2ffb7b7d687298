package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultRoomName = "NewChatRoom"
	MaxRoomNameLen  = 25

	MinMaxTokens  = 1
	MaxMaxTokens  = 2048
	MaxHistoryLen = 30
)

// NewID returns a 32-char lowercase hex id, the format used for room,
// message and access ids.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Room is a persistent chat thread. Deactivated rooms keep their data but
// are invisible to users.
type Room struct {
	ID            int       `json:"-"`
	RoomID        string    `json:"room_id"`
	CreatorUserID int       `json:"creator_user_id"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// RoomSettings holds the generation parameters for one room. Every numeric
// field stays within its declared bound at all times; writes are validated.
type RoomSettings struct {
	RoomID            string  `json:"room_id"`
	RoomName          string  `json:"room_name"`
	ModelSelector     int     `json:"model_name"`
	SystemSentence    string  `json:"system_sentence"`
	AssistantSentence string  `json:"assistant_sentence"`
	HistoryLength     int     `json:"history_len"`
	MaxTokens         int     `json:"max_tokens"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	PresencePenalty   float64 `json:"presence_penalty"`
	FrequencyPenalty  float64 `json:"frequency_penalty"`
	Comment           string  `json:"comment"`
}

// DefaultRoomSettings are created atomically with each room.
func DefaultRoomSettings(roomID string) *RoomSettings {
	return &RoomSettings{
		RoomID:           roomID,
		RoomName:         DefaultRoomName,
		ModelSelector:    1,
		HistoryLength:    1,
		MaxTokens:        256,
		Temperature:      1.0,
		TopP:             1.0,
		PresencePenalty:  0,
		FrequencyPenalty: 0,
	}
}

// RoomSettingsUpdate is a partial settings write; nil fields are untouched.
type RoomSettingsUpdate struct {
	RoomName          *string  `json:"room_name"`
	ModelSelector     *int     `json:"model_name"`
	SystemSentence    *string  `json:"system_sentence"`
	AssistantSentence *string  `json:"assistant_sentence"`
	HistoryLength     *int     `json:"history_len"`
	MaxTokens         *int     `json:"max_tokens"`
	Temperature       *float64 `json:"temperature"`
	TopP              *float64 `json:"top_p"`
	PresencePenalty   *float64 `json:"presence_penalty"`
	FrequencyPenalty  *float64 `json:"frequency_penalty"`
	Comment           *string  `json:"comment"`
}

type CreateRoomResponse struct {
	RoomID   string `json:"room_id"`
	RoomName string `json:"room_name"`
}
