package memory

import (
	"time"

	"agro-intake-be/internal/entity"

	"github.com/patrickmn/go-cache"
)

type SessionRepository struct {
	cache *cache.Cache
}

// NewSessionRepository keeps sessions for ttl after their last touch. onEvicted runs
// for expired and deleted sessions alike.
func NewSessionRepository(ttl time.Duration, onEvicted func(*entity.IntakeSession)) *SessionRepository {
	c := cache.New(ttl, 10*time.Minute)
	if onEvicted != nil {
		c.OnEvicted(func(_ string, v interface{}) {
			if s, ok := v.(*entity.IntakeSession); ok {
				onEvicted(s)
			}
		})
	}
	return &SessionRepository{
		cache: c,
	}
}

func (r *SessionRepository) Save(session *entity.IntakeSession) {
	r.cache.Set(session.ID, session, cache.DefaultExpiration)
}

// Get returns the session and extends its lifetime.
func (r *SessionRepository) Get(sessionID string) (*entity.IntakeSession, bool) {
	if x, found := r.cache.Get(sessionID); found {
		s := x.(*entity.IntakeSession)
		r.cache.Set(sessionID, s, cache.DefaultExpiration)
		return s, true
	}
	return nil, false
}

func (r *SessionRepository) Delete(sessionID string) {
	r.cache.Delete(sessionID)
}

func (r *SessionRepository) Count() int {
	return r.cache.ItemCount()
}
