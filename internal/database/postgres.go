package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vrmchat/internal/models"
	"vrmchat/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// User Repository Implementation

func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, username, email, password_hash, created_at FROM users WHERE email = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO users (username, email, password_hash, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, username, email, created_at`

	user := &models.User{PasswordHash: string(hash)}
	err = db.pool.QueryRow(ctx, query, req.Username, req.Email, string(hash)).Scan(
		&user.ID, &user.Username, &user.Email, &user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT id, username, email, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Room Repository Implementation

func (db *PostgresDB) GetActiveRoom(ctx context.Context, roomID string) (*models.Room, error) {
	query := `
		SELECT id, room_id, creator_user_id, is_active, created_at
		FROM rooms WHERE room_id = $1 AND is_active = true`

	room := &models.Room{}
	err := db.pool.QueryRow(ctx, query, roomID).Scan(
		&room.ID, &room.RoomID, &room.CreatorUserID, &room.IsActive, &room.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return room, nil
}

func (db *PostgresDB) CreateRoom(ctx context.Context, creatorUserID int) (*models.Room, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	room := &models.Room{RoomID: models.NewID(), CreatorUserID: creatorUserID, IsActive: true}
	query := `
		INSERT INTO rooms (room_id, creator_user_id, is_active, created_at)
		VALUES ($1, $2, true, NOW())
		RETURNING id, created_at`
	if err := tx.QueryRow(ctx, query, room.RoomID, creatorUserID).Scan(&room.ID, &room.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	// Settings are created in the same transaction so a room never exists
	// without them.
	settings := models.DefaultRoomSettings(room.RoomID)
	settingsQuery := `
		INSERT INTO room_settings
			(room_id, room_name, model_name, system_sentence, assistant_sentence,
			 history_len, max_tokens, temperature, top_p, presence_penalty,
			 frequency_penalty, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = tx.Exec(ctx, settingsQuery,
		settings.RoomID, settings.RoomName, settings.ModelSelector,
		settings.SystemSentence, settings.AssistantSentence, settings.HistoryLength,
		settings.MaxTokens, settings.Temperature, settings.TopP,
		settings.PresencePenalty, settings.FrequencyPenalty, settings.Comment,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create room settings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit room creation: %w", err)
	}

	return room, nil
}

func (db *PostgresDB) ListUserRooms(ctx context.Context, userID int) ([]*models.Room, error) {
	query := `
		SELECT id, room_id, creator_user_id, is_active, created_at
		FROM rooms WHERE creator_user_id = $1 AND is_active = true
		ORDER BY created_at DESC`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room := &models.Room{}
		if err := rows.Scan(&room.ID, &room.RoomID, &room.CreatorUserID, &room.IsActive, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (db *PostgresDB) DeactivateRoom(ctx context.Context, roomID string, userID int) error {
	query := `UPDATE rooms SET is_active = false WHERE room_id = $1 AND creator_user_id = $2`

	tag, err := db.pool.Exec(ctx, query, roomID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("room not found or not owned by user")
	}
	return nil
}

// Settings Repository Implementation

func (db *PostgresDB) GetSettings(ctx context.Context, roomID string) (*models.RoomSettings, error) {
	query := `
		SELECT room_id, room_name, model_name, system_sentence, assistant_sentence,
		       history_len, max_tokens, temperature, top_p, presence_penalty,
		       frequency_penalty, comment
		FROM room_settings WHERE room_id = $1`

	s := &models.RoomSettings{}
	err := db.pool.QueryRow(ctx, query, roomID).Scan(
		&s.RoomID, &s.RoomName, &s.ModelSelector, &s.SystemSentence,
		&s.AssistantSentence, &s.HistoryLength, &s.MaxTokens, &s.Temperature,
		&s.TopP, &s.PresencePenalty, &s.FrequencyPenalty, &s.Comment,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (db *PostgresDB) UpdateSettings(ctx context.Context, roomID string, upd *models.RoomSettingsUpdate) (*models.RoomSettings, error) {
	query := `
		UPDATE room_settings SET
			room_name          = COALESCE($2, room_name),
			model_name         = COALESCE($3, model_name),
			system_sentence    = COALESCE($4, system_sentence),
			assistant_sentence = COALESCE($5, assistant_sentence),
			history_len        = COALESCE($6, history_len),
			max_tokens         = COALESCE($7, max_tokens),
			temperature        = COALESCE($8, temperature),
			top_p              = COALESCE($9, top_p),
			presence_penalty   = COALESCE($10, presence_penalty),
			frequency_penalty  = COALESCE($11, frequency_penalty),
			comment            = COALESCE($12, comment)
		WHERE room_id = $1
		RETURNING room_id, room_name, model_name, system_sentence, assistant_sentence,
		          history_len, max_tokens, temperature, top_p, presence_penalty,
		          frequency_penalty, comment`

	s := &models.RoomSettings{}
	err := db.pool.QueryRow(ctx, query, roomID,
		upd.RoomName, upd.ModelSelector, upd.SystemSentence, upd.AssistantSentence,
		upd.HistoryLength, upd.MaxTokens, upd.Temperature, upd.TopP,
		upd.PresencePenalty, upd.FrequencyPenalty, upd.Comment,
	).Scan(
		&s.RoomID, &s.RoomName, &s.ModelSelector, &s.SystemSentence,
		&s.AssistantSentence, &s.HistoryLength, &s.MaxTokens, &s.Temperature,
		&s.TopP, &s.PresencePenalty, &s.FrequencyPenalty, &s.Comment,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (db *PostgresDB) ReplaceRoomName(ctx context.Context, roomID, roomName string) error {
	query := `UPDATE room_settings SET room_name = $2 WHERE room_id = $1`
	_, err := db.pool.Exec(ctx, query, roomID, roomName)
	return err
}

// Message Repository Implementation

func (db *PostgresDB) GetRecentMessages(ctx context.Context, roomID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT message_id, room_id, user_message, llm_response, is_active, created_at
		FROM messages
		WHERE room_id = $1 AND is_active = true
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.MessageID, &msg.RoomID, &msg.UserMessage, &msg.LLMResponse, &msg.IsActive, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (db *PostgresDB) CreateMessage(ctx context.Context, msg *models.Message) error {
	settingsJSON, err := json.Marshal(msg.UserSettings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings snapshot: %w", err)
	}
	tokensJSON, err := json.Marshal(msg.TokenInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal token info: %w", err)
	}
	historyJSON, err := json.Marshal(msg.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history snapshot: %w", err)
	}

	query := `
		INSERT INTO messages
			(message_id, room_id, user_message, llm_response, user_settings,
			 tokens_info, history_list, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true, NOW())`
	_, err = db.pool.Exec(ctx, query,
		msg.MessageID, msg.RoomID, msg.UserMessage, msg.LLMResponse,
		string(settingsJSON), string(tokensJSON), string(historyJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// SocketAccess Repository Implementation

func (db *PostgresDB) CreateAccess(ctx context.Context, access *models.SocketAccess) error {
	query := `
		INSERT INTO socket_access
			(room_id, access_id, user_id, user_name, connection_name,
			 request_count, last_request_at, connected_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $6)
		RETURNING id`
	now := time.Now()
	err := db.pool.QueryRow(ctx, query,
		access.RoomID, access.AccessID, access.UserID, access.UserName,
		access.ConnectionName, now,
	).Scan(&access.ID)
	if err != nil {
		return fmt.Errorf("failed to create socket access: %w", err)
	}
	access.ConnectedAt = now
	access.LastRequestAt = now
	return nil
}

func (db *PostgresDB) DeleteAccessByConnection(ctx context.Context, connectionName string) error {
	// The row may already be gone; that is fine.
	_, err := db.pool.Exec(ctx, `DELETE FROM socket_access WHERE connection_name = $1`, connectionName)
	return err
}

func (db *PostgresDB) ListRoomAccess(ctx context.Context, roomID string) ([]*models.SocketAccessEntry, error) {
	query := `SELECT access_id, user_name FROM socket_access WHERE room_id = $1 ORDER BY id`

	rows, err := db.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.SocketAccessEntry
	for rows.Next() {
		e := &models.SocketAccessEntry{}
		if err := rows.Scan(&e.AccessID, &e.UserName); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (db *PostgresDB) GetAccessByID(ctx context.Context, accessID string) (*models.SocketAccess, error) {
	query := `
		SELECT id, room_id, access_id, user_id, user_name, connection_name,
		       request_count, last_request_at, connected_at
		FROM socket_access WHERE access_id = $1`

	a := &models.SocketAccess{}
	err := db.pool.QueryRow(ctx, query, accessID).Scan(
		&a.ID, &a.RoomID, &a.AccessID, &a.UserID, &a.UserName,
		&a.ConnectionName, &a.RequestCount, &a.LastRequestAt, &a.ConnectedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (db *PostgresDB) UpdateAccessCounters(ctx context.Context, accessID string, requestCount int, lastRequestAt time.Time) error {
	// Single-row update keyed by access_id keeps the read-modify-write
	// narrow; the caller serializes per connection.
	query := `UPDATE socket_access SET request_count = $2, last_request_at = $3 WHERE access_id = $1`
	_, err := db.pool.Exec(ctx, query, accessID, requestCount, lastRequestAt)
	return err
}
