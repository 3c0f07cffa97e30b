package identity

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

// ContextStore holds the base identity claims for every authenticated
// (tenant, user) pair. Reads happen on every authorize and refresh; writes on
// every authenticate. The map is sharded by subject hash so one user's write
// never blocks unrelated reads.
type ContextStore struct {
	shards [shardCount]contextShard
}

type contextShard struct {
	mu       sync.RWMutex
	contexts map[string]*UserClaims
}

// NewContextStore creates an empty context store.
func NewContextStore() *ContextStore {
	s := &ContextStore{}
	for i := range s.shards {
		s.shards[i].contexts = make(map[string]*UserClaims)
	}
	return s
}

func (s *ContextStore) shard(key string) *contextShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.shards[h.Sum32()%shardCount]
}

// Put stores the claims, replacing any existing context for the subject.
func (s *ContextStore) Put(claims *UserClaims) {
	key := claims.Subject()
	sh := s.shard(key)
	sh.mu.Lock()
	sh.contexts[key] = claims
	sh.mu.Unlock()
}

// Get returns the stored claims for (tenant, userID).
func (s *ContextStore) Get(tenant, userID string) (*UserClaims, error) {
	key := tenant + ":" + userID
	sh := s.shard(key)
	sh.mu.RLock()
	claims, ok := sh.contexts[key]
	sh.mu.RUnlock()
	if !ok {
		return nil, ErrNoUserContext
	}
	return claims, nil
}

// Clear removes the stored context for (tenant, userID), if any.
func (s *ContextStore) Clear(tenant, userID string) {
	key := tenant + ":" + userID
	sh := s.shard(key)
	sh.mu.Lock()
	delete(sh.contexts, key)
	sh.mu.Unlock()
}
