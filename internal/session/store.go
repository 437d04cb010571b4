package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get/GetActiveByContact when no record exists.
var ErrNotFound = errors.New("session: not found")

// ErrCASMismatch is returned by Put when the caller's baseline LastActivityAt
// no longer matches the stored record (spec §4.B CAS discipline).
var ErrCASMismatch = errors.New("session: CAS mismatch, retry the step")

// Store is the Session Store port (spec §4.B, §6). All operations are
// asynchronous (ctx-bound) and idempotent on identity keys.
type Store interface {
	// Put writes through with TTL = expires_at - now, and the reverse
	// contact index with the same TTL. If baseline is non-nil, Put fails
	// with ErrCASMismatch when the stored LastActivityAt has moved since
	// baseline was read (optimistic concurrency, spec §4.B).
	Put(ctx context.Context, s *Session, baseline *time.Time) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	GetActiveByContact(ctx context.Context, tenantID, contactID string) (*Session, error)
	Delete(ctx context.Context, sessionID string) error
	ListActive(ctx context.Context) ([]*Session, error)
	SweepExpired(ctx context.Context) (int, error)

	// AcquireLock/ReleaseLock implement the alternative per-session lock
	// discipline (spec §4.B): a lock expiring in <=30s so a crashed worker
	// cannot strand a session.
	AcquireLock(ctx context.Context, sessionID string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, sessionID, token string) error
}

func sessionKey(id string) string { return "session:" + id }

func contactKey(tenantID, contactID string) string {
	return fmt.Sprintf("session_by_contact:%s:%s", tenantID, contactID)
}

func lockKey(sessionID string) string { return "session_lock:" + sessionID }

// RedisStore is the production Store backed by go-redis, matching the
// persisted state layout in spec §6 (session:{id}, session_by_contact:
// {tenant_id}:{contact_id}).
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing *redis.Client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func ttlFor(s *Session) time.Duration {
	if s.ExpiresAt == nil {
		return 24 * time.Hour
	}
	d := time.Until(*s.ExpiresAt)
	if d <= 0 {
		d = time.Second // already due; let it land and get swept immediately
	}
	return d
}

// Put is the single choke point for session status mutation (spec §8
// invariant 2): every write, CAS or not, is checked against the prior
// stored status with Guard before anything reaches redis, so no call site
// can smuggle an out-of-table transition (e.g. out of a terminal status)
// past the store.
func (r *RedisStore) Put(ctx context.Context, s *Session, baseline *time.Time) error {
	existing, err := r.Get(ctx, s.ID)
	switch {
	case err == nil:
		if baseline != nil && !existing.LastActivityAt.Equal(*baseline) {
			return ErrCASMismatch
		}
		if err := Guard(existing.Status, s.Status); err != nil {
			return err
		}
	case errors.Is(err, ErrNotFound):
		// First write for this session id: nothing to guard against.
	default:
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	ttl := ttlFor(s)

	if err := r.rdb.Set(ctx, sessionKey(s.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("session: put: %w", err)
	}
	if s.Status.IsActive() {
		ref, _ := json.Marshal(map[string]string{"id": s.ID})
		if err := r.rdb.Set(ctx, contactKey(s.TenantID, s.ContactID), ref, ttl).Err(); err != nil {
			return fmt.Errorf("session: put reverse index: %w", err)
		}
	} else {
		// Terminal: the reverse index must not keep resolving to this session.
		r.rdb.Del(ctx, contactKey(s.TenantID, s.ContactID))
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := r.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: get: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}
	return &s, nil
}

// GetActiveByContact resolves the reverse index and validates it against
// the pointed-to session's status, repairing stale pointers on detection
// (spec §4.B "Reverse-index consistency").
func (r *RedisStore) GetActiveByContact(ctx context.Context, tenantID, contactID string) (*Session, error) {
	data, err := r.rdb.Get(ctx, contactKey(tenantID, contactID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: get contact index: %w", err)
	}
	var ref struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("session: unmarshal contact index: %w", err)
	}

	s, err := r.Get(ctx, ref.ID)
	if errors.Is(err, ErrNotFound) {
		r.rdb.Del(ctx, contactKey(tenantID, contactID)) // repair stale pointer
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !s.Status.IsActive() {
		r.rdb.Del(ctx, contactKey(tenantID, contactID)) // repair stale pointer
		return nil, ErrNotFound
	}
	return s, nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	s, err := r.Get(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, sessionKey(sessionID))
	pipe.Del(ctx, contactKey(s.TenantID, s.ContactID))
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

// ListActive iterates every session:* key via SCAN (never the hot path,
// spec §4.B) and filters by active status.
func (r *RedisStore) ListActive(ctx context.Context) ([]*Session, error) {
	var out []*Session
	iter := r.rdb.Scan(ctx, 0, "session:*", 200).Iterator()
	for iter.Next(ctx) {
		data, err := r.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue // evicted between SCAN and GET; skip
		}
		var s Session
		if json.Unmarshal(data, &s) != nil {
			continue
		}
		if s.Status.IsActive() {
			out = append(out, &s)
		}
	}
	return out, iter.Err()
}

// SweepExpired evicts sessions whose ExpiresAt is past, or (absent one)
// whose LastActivityAt predates 24h, transitioning each to StatusTimeout
// before removal so observers see the terminal state (spec §4.B, §8 S6).
func (r *RedisStore) SweepExpired(ctx context.Context) (int, error) {
	count := 0
	now := time.Now()
	iter := r.rdb.Scan(ctx, 0, "session:*", 200).Iterator()
	for iter.Next(ctx) {
		data, err := r.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var s Session
		if json.Unmarshal(data, &s) != nil {
			continue
		}
		if s.Status.IsTerminal() {
			continue
		}
		if !s.IsExpired(now) {
			continue
		}
		s.Status = StatusTimeout
		if err := r.Put(ctx, &s, nil); err == nil {
			count++
		}
	}
	return count, iter.Err()
}

// AcquireLock implements the per-session lock discipline via SET NX PX,
// the standard redis mutual-exclusion idiom, paired with a Lua
// compare-and-delete on release so a worker can never release a lock it
// doesn't hold (the same TTL-bounded "a crashed worker must not strand the
// resource" guarantee as the teacher's internal/scheduler.FileLock, just
// over redis instead of flock).
func (r *RedisStore) AcquireLock(ctx context.Context, sessionID string, ttl time.Duration) (string, bool, error) {
	token := newToken()
	ok, err := r.rdb.SetNX(ctx, lockKey(sessionID), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("session: acquire lock: %w", err)
	}
	return token, ok, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

func (r *RedisStore) ReleaseLock(ctx context.Context, sessionID, token string) error {
	_, err := releaseScript.Run(ctx, r.rdb, []string{lockKey(sessionID)}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: release lock: %w", err)
	}
	return nil
}
