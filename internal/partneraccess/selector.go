package partneraccess

import (
	"time"

	"github.com/p-blackswan/therapy-booking/lru"
)

type cachedResolution struct {
	version int64
	res     Resolution
}

// Selector memoizes Resolve per user. A cached entry is reused only while
// the caller passes the same snapshot version it was computed from, so a
// new snapshot always recomputes.
type Selector struct {
	cache *lru.Cache[string, cachedResolution]
}

// NewSelector creates a Selector holding up to size users. ttl <= 0 keeps
// entries until evicted or invalidated.
func NewSelector(size int, ttl time.Duration) *Selector {
	if size < 1 {
		size = 1
	}
	return &Selector{
		cache: lru.New[string, cachedResolution](size, lru.WithTTL[string, cachedResolution](ttl)),
	}
}

// Resolve returns the resolution for key at version, computing it from
// accesses on a miss. The Selected pointer refers to an element of the
// accesses slice that produced the cached value; callers pass the same
// snapshot for a given version.
func (s *Selector) Resolve(key string, version int64, accesses []*PartnerAccess) (Resolution, bool) {
	if cached, ok := s.cache.Get(key); ok && cached.version == version {
		return cached.res, true
	}
	res := Resolve(accesses)
	s.cache.Put(key, cachedResolution{version: version, res: res})
	return res, false
}

// Invalidate drops the cached resolution for key.
func (s *Selector) Invalidate(key string) {
	s.cache.Delete(key)
}

// Stats exposes the underlying cache counters.
func (s *Selector) Stats() lru.Metrics {
	return s.cache.Metrics()
}
