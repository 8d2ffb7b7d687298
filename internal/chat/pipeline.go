// Package chat runs the message exchange: settings lookup, history
// assembly, validation, the model call, persistence and room auto-naming.
package chat

import (
	"context"
	"fmt"
	"strings"

	"vrmchat/internal/llm"
	"vrmchat/internal/models"
	"vrmchat/internal/wire"
	"vrmchat/pkg/logger"
)

// Store is the slice of the database the pipeline needs.
type Store interface {
	GetSettings(ctx context.Context, roomID string) (*models.RoomSettings, error)
	GetRecentMessages(ctx context.Context, roomID string, limit int) ([]*models.Message, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	ReplaceRoomName(ctx context.Context, roomID, roomName string) error
}

// ClientFactory resolves a model selector to its backend.
type ClientFactory interface {
	ClientFor(selector int) (llm.Client, error)
}

type sendUserMessageData struct {
	MessageID   string `json:"messageId"`
	LLMResponse string `json:"llmResponse"`
}

type changeRoomNameData struct {
	RoomName string `json:"roomName"`
}

// Pipeline handles SendUserMessage requests for any room.
type Pipeline struct {
	store         Store
	clients       ClientFactory
	sendMaxTokens int
	countTokens   func(text, model string) (int, error)
}

func NewPipeline(store Store, clients ClientFactory, sendMaxTokens int) *Pipeline {
	return &Pipeline{
		store:         store,
		clients:       clients,
		sendMaxTokens: sendMaxTokens,
		countTokens:   llm.CountTokens,
	}
}

// NewPipelineWithCounter is used by tests to avoid loading tokenizer data.
func NewPipelineWithCounter(store Store, clients ClientFactory, sendMaxTokens int, counter func(string, string) (int, error)) *Pipeline {
	p := NewPipeline(store, clients, sendMaxTokens)
	p.countTokens = counter
	return p
}

// Handle runs one exchange. Replies go through reply in order; a returned
// error means nothing conclusive was sent and the caller should emit the
// generic failure envelope.
func (p *Pipeline) Handle(ctx context.Context, roomID, userMessage, messageID string, reply func(wire.Envelope)) error {
	settings, err := p.store.GetSettings(ctx, roomID)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if messageID == "" {
		messageID = models.NewID()
	}
	model := llm.ModelForSelector(settings.ModelSelector)

	history, historyText, err := p.loadHistory(ctx, roomID, settings.HistoryLength)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	// A blank question gets a blank answer; nothing is persisted.
	if stripSpaces(userMessage) == "" {
		reply(wire.OKEnvelope(wire.CmdSendUserMessage, sendUserMessageData{
			MessageID:   messageID,
			LLMResponse: "",
		}))
		return nil
	}

	// The gate counts everything that would reach the model, not just the
	// new message.
	gateText := userMessage + settings.SystemSentence + settings.AssistantSentence + historyText
	sentTokens, err := p.countTokens(gateText, model)
	if err != nil {
		return fmt.Errorf("count tokens: %w", err)
	}
	if p.sendMaxTokens > 0 && sentTokens > p.sendMaxTokens {
		reply(wire.OKEnvelope(wire.CmdSendUserMessage, sendUserMessageData{
			MessageID:   messageID,
			LLMResponse: overLimitMessage(p.sendMaxTokens),
		}))
		return nil
	}

	messages := llm.BuildMessages(userMessage, settings.SystemSentence, settings.AssistantSentence, history)
	client, err := p.clients.ClientFor(settings.ModelSelector)
	if err != nil {
		return err
	}
	response, _, err := client.Generate(ctx, messages, llm.Params{
		Model:            model,
		MaxTokens:        settings.MaxTokens,
		Temperature:      settings.Temperature,
		TopP:             settings.TopP,
		PresencePenalty:  settings.PresencePenalty,
		FrequencyPenalty: settings.FrequencyPenalty,
	})
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	reply(wire.OKEnvelope(wire.CmdSendUserMessage, sendUserMessageData{
		MessageID:   messageID,
		LLMResponse: response,
	}))

	generatedTokens, err := p.countTokens(response, model)
	if err != nil {
		logger.Error("chat: count generated tokens: %v", err)
		generatedTokens = 0
	}

	// The exchange was already delivered; a failed write is logged, never
	// retracted.
	snapshot := historySnapshot(history)
	if err := p.store.CreateMessage(ctx, &models.Message{
		MessageID:    messageID,
		RoomID:       roomID,
		UserMessage:  userMessage,
		LLMResponse:  response,
		UserSettings: settings,
		TokenInfo: models.TokenInfo{
			SentTokens:      sentTokens,
			GeneratedTokens: generatedTokens,
		},
		History: snapshot,
	}); err != nil {
		logger.Error("chat: persist message: %v", err)
	}

	roomName, err := p.resolveRoomName(ctx, roomID, settings.RoomName, userMessage)
	if err != nil {
		logger.Error("chat: room name: %v", err)
		return nil
	}
	reply(wire.OKEnvelope(wire.CmdChangeRoomName, changeRoomNameData{RoomName: roomName}))
	return nil
}

// loadHistory returns the prior turns oldest first, plus the concatenated
// text used for token accounting.
func (p *Pipeline) loadHistory(ctx context.Context, roomID string, historyLen int) ([]llm.Message, string, error) {
	if historyLen <= 0 {
		return nil, "", nil
	}
	rows, err := p.store.GetRecentMessages(ctx, roomID, historyLen)
	if err != nil {
		return nil, "", err
	}

	var history []llm.Message
	var text strings.Builder
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		history = append(history,
			llm.Message{Role: llm.RoleUser, Content: row.UserMessage},
			llm.Message{Role: llm.RoleAssistant, Content: row.LLMResponse},
		)
		text.WriteString(row.UserMessage)
		text.WriteString(row.LLMResponse)
	}
	return history, text.String(), nil
}

// resolveRoomName sets the first question as the room name while the room
// still carries the default, and reports the current name either way so the
// client can refresh its navigation.
func (p *Pipeline) resolveRoomName(ctx context.Context, roomID, currentName, userMessage string) (string, error) {
	if currentName != models.DefaultRoomName {
		return currentName, nil
	}
	name := userMessage
	if len([]rune(name)) > models.MaxRoomNameLen {
		runes := []rune(name)
		name = string(runes[:models.MaxRoomNameLen-4]) + "..."
	}
	if err := p.store.ReplaceRoomName(ctx, roomID, name); err != nil {
		return "", err
	}
	return name, nil
}

func historySnapshot(history []llm.Message) []models.HistoryTurn {
	if len(history) == 0 {
		return nil
	}
	snapshot := make([]models.HistoryTurn, len(history))
	for i, m := range history {
		snapshot[i] = models.HistoryTurn{Role: m.Role, Content: m.Content}
	}
	return snapshot
}

// stripSpaces removes ASCII and full-width spaces before the emptiness
// check.
func stripSpaces(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	return strings.ReplaceAll(s, "　", "")
}

func overLimitMessage(max int) string {
	return fmt.Sprintf("入力文字数が設定値を超えたみたいです。\n過去の会話、システムメッセージなども含めて最大トークンは%dに設定されています。", max)
}
