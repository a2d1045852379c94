package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"portico/internal/identity/models"
	id "portico/pkg/domain"
)

const (
	sessionKeyPrefix     = "session:"
	originKeyPrefix      = "session_origin:"
	userSessionKeyPrefix = "user_sessions:"

	// maxSessionsPerUser caps the number of sessions loaded per user to
	// prevent unbounded memory growth.
	maxSessionsPerUser = 100

	// defaultSessionTTL is the fallback when no max age is configured.
	defaultSessionTTL = 30 * 24 * time.Hour
)

// sessionJSON is the JSON-serializable representation of a Session.
type sessionJSON struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	OriginIP     string `json:"origin_ip"`
	DeviceName   string `json:"device_name"`
	CreatedOn    int64  `json:"created_on"` // Unix nano
}

func sessionToJSON(s *models.Session) *sessionJSON {
	return &sessionJSON{
		ID:           uuid.UUID(s.ID).String(),
		UserID:       uuid.UUID(s.UserID).String(),
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		OriginIP:     s.OriginIP,
		DeviceName:   s.DeviceName,
		CreatedOn:    s.CreatedOn.UnixNano(),
	}
}

func sessionFromJSON(j *sessionJSON) (*models.Session, error) {
	sessionID, err := uuid.Parse(j.ID)
	if err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	return &models.Session{
		ID:           id.SessionID(sessionID),
		UserID:       id.UserID(userID),
		AccessToken:  j.AccessToken,
		RefreshToken: j.RefreshToken,
		OriginIP:     j.OriginIP,
		DeviceName:   j.DeviceName,
		CreatedOn:    time.Unix(0, j.CreatedOn),
	}, nil
}

// RedisStore persists sessions in Redis. This is the recommended backend for
// distributed deployments where multiple instances share session state;
// stale-session cleanup rides on key TTLs instead of a sweep.
type RedisStore struct {
	client *redis.Client
	maxAge time.Duration
}

// NewRedis constructs a Redis-backed session store. maxAge bounds each
// session key's TTL; zero falls back to a 30 day default.
func NewRedis(client *redis.Client, maxAge time.Duration) *RedisStore {
	if maxAge <= 0 {
		maxAge = defaultSessionTTL
	}
	return &RedisStore{client: client, maxAge: maxAge}
}

func (s *RedisStore) sessionKey(sessionID id.SessionID) string {
	return sessionKeyPrefix + uuid.UUID(sessionID).String()
}

func (s *RedisStore) originIndexKey(userID id.UserID, originIP string) string {
	return originKeyPrefix + uuid.UUID(userID).String() + ":" + originIP
}

func (s *RedisStore) userSessionsKey(userID id.UserID) string {
	return userSessionKeyPrefix + uuid.UUID(userID).String()
}

// Upsert stores the session and repoints the (user, origin IP) index at it.
// Any session previously indexed for that origin is deleted so its cookie
// value stops resolving.
func (s *RedisStore) Upsert(ctx context.Context, session *models.Session) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}

	data, err := json.Marshal(sessionToJSON(session))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	indexKey := s.originIndexKey(session.UserID, session.OriginIP)
	newIDStr := uuid.UUID(session.ID).String()

	// Retire the previous session for this origin, if different.
	oldIDStr, err := s.client.Get(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read origin index: %w", err)
	}

	pipe := s.client.Pipeline()
	if oldIDStr != "" && oldIDStr != newIDStr {
		pipe.Del(ctx, sessionKeyPrefix+oldIDStr)
		pipe.SRem(ctx, s.userSessionsKey(session.UserID), oldIDStr)
	}
	pipe.Set(ctx, s.sessionKey(session.ID), data, s.maxAge)
	pipe.Set(ctx, indexKey, newIDStr, s.maxAge)
	pipe.SAdd(ctx, s.userSessionsKey(session.UserID), newIDStr)
	pipe.Expire(ctx, s.userSessionsKey(session.UserID), s.maxAge+time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session by id: %w", err)
	}

	var j sessionJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return sessionFromJSON(&j)
}

func (s *RedisStore) FindByUserAndIP(ctx context.Context, userID id.UserID, originIP string) (*models.Session, error) {
	idStr, err := s.client.Get(ctx, s.originIndexKey(userID, originIP)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read origin index: %w", err)
	}

	sessionID, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse indexed session id: %w", err)
	}
	return s.FindByID(ctx, id.SessionID(sessionID))
}

func (s *RedisStore) Update(ctx context.Context, session *models.Session) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}

	key := s.sessionKey(session.ID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check session exists: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	data, err := json.Marshal(sessionToJSON(session))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		ttl = s.maxAge
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID id.SessionID) error {
	session, err := s.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.sessionKey(sessionID))
	pipe.Del(ctx, s.originIndexKey(session.UserID, session.OriginIP))
	pipe.SRem(ctx, s.userSessionsKey(session.UserID), uuid.UUID(sessionID).String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteAllForUser(ctx context.Context, userID id.UserID) (int, error) {
	userKey := s.userSessionsKey(userID)
	idStrs, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list session ids for delete: %w", err)
	}
	if len(idStrs) == 0 {
		return 0, nil
	}

	// Resolve sessions first so origin indexes can be unlinked too.
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(idStrs))
	for i, idStr := range idStrs {
		cmds[i] = pipe.Get(ctx, sessionKeyPrefix+idStr)
	}
	_, _ = pipe.Exec(ctx) // expired members surface as redis.Nil below

	del := s.client.Pipeline()
	deleted := 0
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		var j sessionJSON
		if err == nil && json.Unmarshal([]byte(data), &j) == nil {
			del.Del(ctx, s.originIndexKey(userID, j.OriginIP))
		}
		del.Del(ctx, sessionKeyPrefix+idStrs[i])
		deleted++
	}
	del.Del(ctx, userKey)
	if _, err := del.Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete sessions for user: %w", err)
	}
	return deleted, nil
}

// DeleteOlderThan is a no-op for Redis: keys expire on their own TTL. It
// exists for interface compatibility with the SQL-backed stores.
func (s *RedisStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

// Count scans session keys; feeds the sessions gauge.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, sessionKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("scan sessions: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return count, nil
}
