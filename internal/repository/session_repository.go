package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/storefront/internal/model"
)

const sessionKeyPrefix = "sess"

// SessionRepo stores sessions in Redis as JSON with a sliding TTL.
type SessionRepo struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewSessionRepo(rdb *redis.Client, ttl time.Duration) *SessionRepo {
	return &SessionRepo{rdb: rdb, prefix: sessionKeyPrefix, ttl: ttl}
}

// TTL is the lifetime applied on every save.
func (r *SessionRepo) TTL() time.Duration { return r.ttl }

func (r *SessionRepo) key(id string) string { return r.prefix + ":" + id }

// Load returns the session stored under id.
func (r *SessionRepo) Load(ctx context.Context, id string) (*model.Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	data, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "load session")
	}
	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		// A blob we cannot read is as good as no session.
		return nil, ErrSessionNotFound
	}
	s.ID = id
	return &s, nil
}

// Save writes the session and refreshes its TTL.
func (r *SessionRepo) Save(ctx context.Context, s *model.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "marshal session")
	}
	if err := r.rdb.Set(ctx, r.key(s.ID), data, r.ttl).Err(); err != nil {
		return errors.Wrap(err, "save session")
	}
	s.MarkClean()
	return nil
}

// Touch extends the TTL of an unchanged session.
func (r *SessionRepo) Touch(ctx context.Context, id string) error {
	return errors.Wrap(r.rdb.Expire(ctx, r.key(id), r.ttl).Err(), "touch session")
}

// Destroy deletes the session. Deleting a missing session is not an error.
func (r *SessionRepo) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return errors.Wrap(r.rdb.Del(ctx, r.key(id)).Err(), "destroy session")
}
