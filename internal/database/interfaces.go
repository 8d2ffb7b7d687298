package database

import (
	"context"
	"time"

	"vrmchat/internal/models"
)

type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
}

type RoomRepository interface {
	// GetActiveRoom returns the room only while its soft-delete flag is unset.
	GetActiveRoom(ctx context.Context, roomID string) (*models.Room, error)
	// CreateRoom inserts the room and its default settings atomically.
	CreateRoom(ctx context.Context, creatorUserID int) (*models.Room, error)
	ListUserRooms(ctx context.Context, userID int) ([]*models.Room, error)
	DeactivateRoom(ctx context.Context, roomID string, userID int) error
}

type SettingsRepository interface {
	GetSettings(ctx context.Context, roomID string) (*models.RoomSettings, error)
	UpdateSettings(ctx context.Context, roomID string, upd *models.RoomSettingsUpdate) (*models.RoomSettings, error)
	ReplaceRoomName(ctx context.Context, roomID, roomName string) error
}

type MessageRepository interface {
	// GetRecentMessages returns up to limit active messages, newest first.
	GetRecentMessages(ctx context.Context, roomID string, limit int) ([]*models.Message, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
}

type SocketAccessRepository interface {
	CreateAccess(ctx context.Context, access *models.SocketAccess) error
	// DeleteAccessByConnection is idempotent; deleting a missing row is not
	// an error.
	DeleteAccessByConnection(ctx context.Context, connectionName string) error
	ListRoomAccess(ctx context.Context, roomID string) ([]*models.SocketAccessEntry, error)
	GetAccessByID(ctx context.Context, accessID string) (*models.SocketAccess, error)
	UpdateAccessCounters(ctx context.Context, accessID string, requestCount int, lastRequestAt time.Time) error
}

type Database interface {
	UserRepository
	RoomRepository
	SettingsRepository
	MessageRepository
	SocketAccessRepository
	Close() error
}
