package services

import (
	"context"
	"fmt"

	"vrmchat/internal/database"
	"vrmchat/internal/models"
)

type RoomService struct {
	db database.Database
}

func NewRoomService(db database.Database) *RoomService {
	return &RoomService{db: db}
}

func (s *RoomService) CreateRoom(ctx context.Context, ownerID int) (*models.CreateRoomResponse, error) {
	room, err := s.db.CreateRoom(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &models.CreateRoomResponse{
		RoomID:   room.RoomID,
		RoomName: models.DefaultRoomName,
	}, nil
}

func (s *RoomService) ListUserRooms(ctx context.Context, userID int) ([]*models.Room, error) {
	return s.db.ListUserRooms(ctx, userID)
}

func (s *RoomService) DeactivateRoom(ctx context.Context, roomID string, userID int) error {
	return s.db.DeactivateRoom(ctx, roomID, userID)
}

// GetActiveRoom resolves the room; deactivated and unknown rooms both read
// as not found.
func (s *RoomService) GetActiveRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return s.db.GetActiveRoom(ctx, roomID)
}

func (s *RoomService) GetSettings(ctx context.Context, roomID string, userID int) (*models.RoomSettings, error) {
	if err := s.checkOwner(ctx, roomID, userID); err != nil {
		return nil, err
	}
	return s.db.GetSettings(ctx, roomID)
}

func (s *RoomService) UpdateSettings(ctx context.Context, roomID string, userID int, upd *models.RoomSettingsUpdate) (*models.RoomSettings, error) {
	if err := s.checkOwner(ctx, roomID, userID); err != nil {
		return nil, err
	}
	if err := validateSettingsUpdate(upd); err != nil {
		return nil, err
	}
	return s.db.UpdateSettings(ctx, roomID, upd)
}

// Presence lists the live socket members of a room.
func (s *RoomService) Presence(ctx context.Context, roomID string, userID int) ([]*models.SocketAccessEntry, error) {
	if err := s.checkOwner(ctx, roomID, userID); err != nil {
		return nil, err
	}
	return s.db.ListRoomAccess(ctx, roomID)
}

func (s *RoomService) checkOwner(ctx context.Context, roomID string, userID int) error {
	room, err := s.db.GetActiveRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("room not found")
	}
	if room.CreatorUserID != userID {
		return fmt.Errorf("forbidden")
	}
	return nil
}

func validateSettingsUpdate(upd *models.RoomSettingsUpdate) error {
	if upd.RoomName != nil && len([]rune(*upd.RoomName)) > models.MaxRoomNameLen {
		return fmt.Errorf("room_name must be at most %d characters", models.MaxRoomNameLen)
	}
	if upd.HistoryLength != nil && (*upd.HistoryLength < 0 || *upd.HistoryLength > models.MaxHistoryLen) {
		return fmt.Errorf("history_len must be 0-%d", models.MaxHistoryLen)
	}
	if upd.MaxTokens != nil && (*upd.MaxTokens < models.MinMaxTokens || *upd.MaxTokens > models.MaxMaxTokens) {
		return fmt.Errorf("max_tokens must be %d-%d", models.MinMaxTokens, models.MaxMaxTokens)
	}
	if upd.Temperature != nil && (*upd.Temperature < 0 || *upd.Temperature > 2) {
		return fmt.Errorf("temperature must be 0-2")
	}
	if upd.TopP != nil && (*upd.TopP < 0 || *upd.TopP > 1) {
		return fmt.Errorf("top_p must be 0-1")
	}
	if upd.PresencePenalty != nil && (*upd.PresencePenalty < -2 || *upd.PresencePenalty > 2) {
		return fmt.Errorf("presence_penalty must be -2-2")
	}
	if upd.FrequencyPenalty != nil && (*upd.FrequencyPenalty < -2 || *upd.FrequencyPenalty > 2) {
		return fmt.Errorf("frequency_penalty must be -2-2")
	}
	return nil
}
