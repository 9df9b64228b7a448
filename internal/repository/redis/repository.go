// Package redis provides a Redis/Valkey implementation of the repository interface
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/navikt/myrooms/internal/config"
	"github.com/navikt/myrooms/internal/models"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a session has no state
var ErrNotFound = models.ErrSessionNotFound

// Hash fields of a session key
const (
	fieldRooms     = "rooms"
	fieldModal     = "modal"
	fieldMountedAt = "mounted_at"
	fieldUpdatedAt = "updated_at"
)

// replaceRoomsScript only writes into an existing session so a late fetch
// cannot resurrect a session that was unmounted or expired.
// KEYS[1] session key, ARGV[1] rooms JSON, ARGV[2] updated_at, ARGV[3] ttl ms
var replaceRoomsScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'rooms', ARGV[1], 'updated_at', ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// swapModalScript sets the modal field and returns the previous value, -1 if the session is missing.
// KEYS[1] session key, ARGV[1] new modal state, ARGV[2] ttl ms
var swapModalScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local previous = redis.call('HGET', KEYS[1], 'modal')
redis.call('HSET', KEYS[1], 'modal', ARGV[1])
if tonumber(ARGV[2]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if not previous then
	return 0
end
return tonumber(previous)
`)

// Repository implements the repository interface with Redis storage
type Repository struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRepository creates a new Redis repository
func NewRepository(cfg config.RedisConfig) (*Repository, error) {
	var client *redis.Client

	// Use URI if provided, otherwise build connection from individual parameters
	if cfg.URI != "" {
		opt, err := redis.ParseURL(cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URI: %w", err)
		}

		// Use DB from config if not specified in the URI
		if opt.DB == 0 {
			opt.DB = cfg.DB
		}

		// Use password from config if not in URI
		if opt.Password == "" && cfg.Password != "" {
			opt.Password = cfg.Password
		}

		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Repository{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.SessionTTL,
	}, nil
}

// Close closes the Redis connection
func (r *Repository) Close() error {
	return r.client.Close()
}

// Ping checks that Redis is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// sessionKey returns the Redis key for a session
func (r *Repository) sessionKey(id string) string {
	return fmt.Sprintf("%ssessions:%s", r.keyPrefix, id)
}

// CreateSession stores fresh state for a session, replacing any previous state
func (r *Repository) CreateSession(ctx context.Context, state *models.ViewState) error {
	rooms := state.Rooms
	if rooms == nil {
		rooms = []models.RoomSummary{}
	}
	data, err := json.Marshal(rooms)
	if err != nil {
		return fmt.Errorf("failed to marshal rooms: %w", err)
	}

	key := r.sessionKey(state.SessionID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldRooms, data,
			fieldModal, int(state.Modal),
			fieldMountedAt, formatTime(state.MountedAt),
			fieldUpdatedAt, formatTime(state.UpdatedAt),
		)
		if r.ttl > 0 {
			pipe.PExpire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetViewState retrieves the state of a session
func (r *Repository) GetViewState(ctx context.Context, sessionID string) (*models.ViewState, error) {
	fields, err := r.client.HGetAll(ctx, r.sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	state := &models.ViewState{
		SessionID: sessionID,
		Rooms:     []models.RoomSummary{},
	}

	if raw := fields[fieldRooms]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &state.Rooms); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rooms: %w", err)
		}
	}

	modal, err := strconv.Atoi(fields[fieldModal])
	if err != nil {
		return nil, fmt.Errorf("invalid modal state %q: %w", fields[fieldModal], err)
	}
	state.Modal = models.ModalState(modal)
	state.MountedAt = parseTime(fields[fieldMountedAt])
	state.UpdatedAt = parseTime(fields[fieldUpdatedAt])

	return state, nil
}

// ReplaceRooms replaces the whole room list of a session
func (r *Repository) ReplaceRooms(ctx context.Context, sessionID string, rooms []models.RoomSummary) error {
	if rooms == nil {
		rooms = []models.RoomSummary{}
	}
	data, err := json.Marshal(rooms)
	if err != nil {
		return fmt.Errorf("failed to marshal rooms: %w", err)
	}

	written, err := replaceRoomsScript.Run(ctx, r.client,
		[]string{r.sessionKey(sessionID)},
		string(data), formatTime(time.Now()), r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to replace rooms: %w", err)
	}
	if written == 0 {
		return ErrNotFound
	}

	return nil
}

// SwapModalState sets the modal state and returns the previous one
func (r *Repository) SwapModalState(ctx context.Context, sessionID string, modal models.ModalState) (models.ModalState, error) {
	previous, err := swapModalScript.Run(ctx, r.client,
		[]string{r.sessionKey(sessionID)},
		int(modal), r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return models.ModalClosed, fmt.Errorf("failed to swap modal state: %w", err)
	}
	if previous < 0 {
		return models.ModalClosed, ErrNotFound
	}

	return models.ModalState(previous), nil
}

// Touch extends the idle lifetime of a session
func (r *Repository) Touch(ctx context.Context, sessionID string) error {
	key := r.sessionKey(sessionID)

	if r.ttl <= 0 {
		exists, err := r.client.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to check if session exists: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return nil
	}

	ok, err := r.client.PExpire(ctx, key, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to extend session: %w", err)
	}
	if !ok {
		return ErrNotFound
	}

	return nil
}

// DeleteSession removes a session
func (r *Repository) DeleteSession(ctx context.Context, sessionID string) error {
	deleted, err := r.client.Del(ctx, r.sessionKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if deleted == 0 {
		return ErrNotFound
	}

	return nil
}

// ListSessions returns the IDs of all live sessions
func (r *Repository) ListSessions(ctx context.Context) ([]string, error) {
	prefix := r.sessionKey("")

	var ids []string
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	if ids == nil {
		return []string{}, nil
	}
	return ids, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
