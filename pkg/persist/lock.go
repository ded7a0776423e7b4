package persist

import (
	"context"
	"time"

	"github.com/google/uuid"

	"agentsync/pkg/logger"
)

// lockRecord is the stored claim. A claim past its expiry is treated as
// abandoned and may be taken over.
type lockRecord struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Lock is an advisory, expiry-based lock held in the database. It
// guards against two sessions of the same profile mutating shared state
// at once; it is not a correctness primitive against hostile writers.
type Lock struct {
	store *Store
	key   string
	token string
}

const lockPollEvery = 200 * time.Millisecond

// AcquireLock claims the named lock, waiting until the current holder
// releases it or its claim expires. The write is confirmed by reading
// the claim back, so two racing claimants cannot both believe they won.
func (s *Store) AcquireLock(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	key := "$lock_" + name
	token := uuid.NewString()

	for {
		var cur lockRecord
		held, err := s.getJSON(key, &cur)
		if err != nil {
			return nil, err
		}
		now := time.Now()
		if !held || now.After(cur.ExpiresAt) {
			if err := s.putJSON(key, lockRecord{Token: token, ExpiresAt: now.Add(ttl)}); err != nil {
				return nil, err
			}
			var confirm lockRecord
			if _, err := s.getJSON(key, &confirm); err != nil {
				return nil, err
			}
			if confirm.Token == token {
				logger.Debug("persist: lock acquired", "name", name)
				return &Lock{store: s, key: key, token: token}, nil
			}
			// someone else won the write race, fall through and wait
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollEvery):
		}
	}
}

// Refresh extends the claim. Call it before the ttl runs out on
// long-lived sessions.
func (l *Lock) Refresh(ttl time.Duration) error {
	var cur lockRecord
	held, err := l.store.getJSON(l.key, &cur)
	if err != nil {
		return err
	}
	if !held || cur.Token != l.token {
		return nil
	}
	return l.store.putJSON(l.key, lockRecord{Token: l.token, ExpiresAt: time.Now().Add(ttl)})
}

// Release drops the claim, but only if it is still ours. Releasing a
// lock that expired and was taken over is a no-op.
func (l *Lock) Release() error {
	var cur lockRecord
	held, err := l.store.getJSON(l.key, &cur)
	if err != nil {
		return err
	}
	if !held || cur.Token != l.token {
		return nil
	}
	return l.store.delete(l.key)
}
