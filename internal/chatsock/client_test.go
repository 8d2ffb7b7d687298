package chatsock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"vrmchat/internal/config"
	"vrmchat/internal/database"
	"vrmchat/internal/hub"
	"vrmchat/internal/models"
	"vrmchat/internal/wire"
)

// fakeDB covers the slice of the store the socket lifecycle touches; the
// embedded interface panics on anything else.
type fakeDB struct {
	database.Database

	mu        sync.Mutex
	rows      map[string]*models.SocketAccess
	deletes   []string
	createErr error
}

func newFakeDB() *fakeDB {
	return &fakeDB{rows: make(map[string]*models.SocketAccess)}
}

func (f *fakeDB) CreateAccess(ctx context.Context, access *models.SocketAccess) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	access.ConnectedAt = time.Now()
	f.rows[access.ConnectionName] = access
	return nil
}

// DeleteAccessByConnection mirrors the real store: a missing row is not an
// error.
func (f *fakeDB) DeleteAccessByConnection(ctx context.Context, connectionName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, connectionName)
	delete(f.rows, connectionName)
	return nil
}

func (f *fakeDB) ListRoomAccess(ctx context.Context, roomID string) ([]*models.SocketAccessEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var entries []*models.SocketAccessEntry
	for _, a := range f.rows {
		if a.RoomID == roomID {
			entries = append(entries, &models.SocketAccessEntry{
				AccessID: a.AccessID,
				UserName: a.UserName,
			})
		}
	}
	return entries, nil
}

func (f *fakeDB) deleteCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

func (f *fakeDB) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type peerReceiver struct {
	mu     sync.Mutex
	frames []wire.Frame
}

func (r *peerReceiver) Queue(f wire.Frame) bool {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
	return true
}

func (r *peerReceiver) envelopes(t *testing.T) []wire.Envelope {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	envs := make([]wire.Envelope, 0, len(r.frames))
	for _, f := range r.frames {
		var env wire.Envelope
		if err := json.Unmarshal(f.Payload, &env); err != nil {
			t.Fatalf("peer frame is not an envelope: %v", err)
		}
		envs = append(envs, env)
	}
	return envs
}

func newTestClient(db database.Database) *Client {
	c := NewClient(nil, hub.NewManager(), db, nil, config.SocketConfig{
		RequestPerSecLimit: 5,
		ReceiveKBLimit:     64,
	}, "room-1", 7)
	c.room = c.hubs.Join(c.roomID, c.connectionName, c)
	return c
}

// drainEnvelopes empties the client's own send queue.
func drainEnvelopes(t *testing.T, c *Client) []wire.Envelope {
	t.Helper()
	var envs []wire.Envelope
	for {
		select {
		case f := <-c.send:
			var env wire.Envelope
			if err := json.Unmarshal(f.Payload, &env); err != nil {
				t.Fatalf("frame is not an envelope: %v", err)
			}
			envs = append(envs, env)
		default:
			return envs
		}
	}
}

func TestConnectCreatesAccessAndNotifiesInOrder(t *testing.T) {
	db := newFakeDB()
	c := newTestClient(db)
	peer := &peerReceiver{}
	c.hubs.Join(c.roomID, "peer", peer)

	c.handleConnect()

	if db.rowCount() != 1 {
		t.Fatalf("access rows = %d, want 1", db.rowCount())
	}
	db.mu.Lock()
	row := db.rows[c.connectionName]
	db.mu.Unlock()
	if row == nil {
		t.Fatal("access row not keyed by connection name")
	}
	if row.UserID == nil || *row.UserID != 7 {
		t.Fatalf("row user id = %v, want 7", row.UserID)
	}
	if row.UserName != models.DisplayName(row.AccessID) {
		t.Fatalf("row user name = %q, want display name of access id", row.UserName)
	}

	own := drainEnvelopes(t, c)
	if len(own) != 2 {
		t.Fatalf("caller got %d envelopes, want 2", len(own))
	}
	if own[0].Cmd != wire.CmdSetUserAccessID {
		t.Fatalf("first caller envelope = %q, want %q", own[0].Cmd, wire.CmdSetUserAccessID)
	}
	data, ok := own[0].Data.(map[string]any)
	if !ok || data["access_id"] != row.AccessID {
		t.Fatalf("access envelope data = %v, want access_id %q", own[0].Data, row.AccessID)
	}
	if own[1].Cmd != wire.CmdSocketConnect {
		t.Fatalf("second caller envelope = %q, want %q", own[1].Cmd, wire.CmdSocketConnect)
	}

	peerEnvs := peer.envelopes(t)
	if len(peerEnvs) != 1 || peerEnvs[0].Cmd != wire.CmdSocketConnect {
		t.Fatalf("peer envelopes = %v, want a single %q", peerEnvs, wire.CmdSocketConnect)
	}
	presence, ok := peerEnvs[0].Data.(map[string]any)
	if !ok {
		t.Fatalf("presence data = %v", peerEnvs[0].Data)
	}
	objs, ok := presence["socket_access_objs"].([]any)
	if !ok || len(objs) != 1 {
		t.Fatalf("presence list = %v, want 1 entry", presence["socket_access_objs"])
	}
}

func TestConnectFailureSendsNothing(t *testing.T) {
	db := newFakeDB()
	db.createErr = fmt.Errorf("store down")
	c := newTestClient(db)

	c.handleConnect()

	if got := drainEnvelopes(t, c); len(got) != 0 {
		t.Fatalf("caller got %d envelopes after failed connect, want 0", len(got))
	}
}

func TestDisconnectDeletesRowAndBroadcasts(t *testing.T) {
	db := newFakeDB()
	c := newTestClient(db)
	peer := &peerReceiver{}
	c.hubs.Join(c.roomID, "peer", peer)

	c.handleConnect()
	drainEnvelopes(t, c)
	peer.mu.Lock()
	peer.frames = nil
	peer.mu.Unlock()

	c.hubs.Leave(c.room, c.connectionName)
	c.handleDisconnect()

	if calls := db.deleteCalls(); len(calls) != 1 || calls[0] != c.connectionName {
		t.Fatalf("delete calls = %v, want the connection name once", calls)
	}
	if db.rowCount() != 0 {
		t.Fatalf("access rows = %d, want 0", db.rowCount())
	}

	peerEnvs := peer.envelopes(t)
	if len(peerEnvs) != 1 || peerEnvs[0].Cmd != wire.CmdSocketDisconnect {
		t.Fatalf("peer envelopes = %v, want a single %q", peerEnvs, wire.CmdSocketDisconnect)
	}
	if got := drainEnvelopes(t, c); len(got) != 0 {
		t.Fatalf("departed caller got %d envelopes, want 0", len(got))
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	db := newFakeDB()
	c := newTestClient(db)
	peer := &peerReceiver{}
	c.hubs.Join(c.roomID, "peer", peer)

	c.handleConnect()
	c.hubs.Leave(c.room, c.connectionName)
	c.handleDisconnect()
	c.handleDisconnect()

	if calls := db.deleteCalls(); len(calls) != 2 {
		t.Fatalf("delete calls = %d, want 2", len(calls))
	}
	if db.rowCount() != 0 {
		t.Fatalf("access rows = %d, want 0", db.rowCount())
	}
}
