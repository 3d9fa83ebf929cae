package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/hookflow/internal/model"
)

var _ model.PipelineStore = (*MemoryStore)(nil)

// MemoryStore is an in-process store with the same contract as RedisStore.
// It backs unit tests and single-node development setups.
type MemoryStore struct {
	mu        sync.RWMutex
	pipelines map[string][]byte
	deadlines map[string]time.Time
	events    map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pipelines: make(map[string][]byte),
		deadlines: make(map[string]time.Time),
		events:    make(map[string]string),
	}
}

func (s *MemoryStore) Get(ctx context.Context, pipelineID string) (*model.Pipeline, error) {
	s.mu.RLock()
	data, ok := s.pipelines[pipelineID]
	deadline, hasDeadline := s.deadlines[pipelineID]
	s.mu.RUnlock()
	if !ok || (hasDeadline && time.Now().After(deadline)) {
		return nil, errm.Wrap(model.ErrPipelineNotFound, pipelineID)
	}
	var p model.Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errm.Wrap(err, "decode pipeline record")
	}
	return &p, nil
}

func (s *MemoryStore) Save(ctx context.Context, p *model.Pipeline) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errm.Wrap(err, "encode pipeline record")
	}
	s.mu.Lock()
	s.pipelines[p.PipelineID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SetExpiry(ctx context.Context, pipelineID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pipelines[pipelineID]; !ok {
		return errm.Wrap(model.ErrPipelineNotFound, pipelineID)
	}
	s.deadlines[pipelineID] = time.Now().Add(ttl + expiryGrace)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, pipelineID string) error {
	s.mu.Lock()
	delete(s.pipelines, pipelineID)
	delete(s.deadlines, pipelineID)
	s.mu.Unlock()
	return nil
}

// Scan walks ids in sorted order so the cursor stays meaningful while records
// come and go between batches, mirroring redis SCAN guarantees loosely.
func (s *MemoryStore) Scan(ctx context.Context, cursor uint64, count int64) ([]string, uint64, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.pipelines))
	for id := range s.pipelines {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	if count <= 0 {
		count = 10
	}
	start := int(cursor)
	if start >= len(ids) {
		return nil, 0, nil
	}
	end := start + int(count)
	if end >= len(ids) {
		return ids[start:], 0, nil
	}
	return ids[start:end], uint64(end), nil
}

func (s *MemoryStore) BindEvent(ctx context.Context, dedupKey, pipelineID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.events[dedupKey]; ok {
		return existing, false, nil
	}
	s.events[dedupKey] = pipelineID
	return pipelineID, true, nil
}
