package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mymunastore/aretenvi/internal/types"
)

type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	byKey   map[string][]string
	active  map[string]string
	closed  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		byKey:   make(map[string][]string),
		active:  make(map[string]string),
	}
}

func (s *MemoryStore) GetActive(_ context.Context, key string) (Record, error) {
	if err := validateKey(key); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Record{}, fmt.Errorf("memory store is closed")
	}
	rec, ok := s.activeLocked(key)
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Latest(_ context.Context, key string) (Record, error) {
	if err := validateKey(key); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Record{}, fmt.Errorf("memory store is closed")
	}
	ids := s.byKey[key]
	if len(ids) == 0 {
		return Record{}, ErrNotFound
	}
	return cloneRecord(s.records[ids[len(ids)-1]]), nil
}

func (s *MemoryStore) Create(_ context.Context, key string, initial types.Step, in Interaction) (Record, error) {
	if err := validateKey(key); err != nil {
		return Record{}, err
	}
	if !initial.Valid() || initial.Terminal() {
		return Record{}, fmt.Errorf("invalid initial step %q", initial)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Record{}, fmt.Errorf("memory store is closed")
	}
	if _, ok := s.activeLocked(key); ok {
		return Record{}, ErrActiveExists
	}
	rec := newRecord(key, initial, in)
	s.records[rec.ID] = rec
	s.byKey[key] = append(s.byKey[key], rec.ID)
	s.active[key] = rec.ID
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Update(_ context.Context, key string, from, to types.Step, patch types.Fields, in Interaction) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateTransition(from, to); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory store is closed")
	}
	rec, ok := s.activeLocked(key)
	if !ok {
		return ErrNotFound
	}
	if rec.Step != from {
		return ErrStepMismatch
	}
	s.records[rec.ID] = applyUpdate(rec, to, patch, in)
	return nil
}

func (s *MemoryStore) Touch(_ context.Context, key string, in Interaction) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory store is closed")
	}
	rec, ok := s.activeLocked(key)
	if !ok {
		return ErrNotFound
	}
	s.records[rec.ID] = applyTouch(rec, in)
	return nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, ref string, in Interaction) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if ref == "" {
		return fmt.Errorf("registration reference is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory store is closed")
	}
	rec, ok := s.activeLocked(key)
	if !ok {
		return ErrNotFound
	}
	if rec.Step != types.StepConfirmation {
		return ErrStepMismatch
	}
	s.records[rec.ID] = applyEnd(rec, types.StepCompleted, ref, EndReasonCompleted, in)
	delete(s.active, key)
	return nil
}

func (s *MemoryStore) Reset(_ context.Context, key string, reason EndReason, in Interaction) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if reason == "" || reason == EndReasonCompleted {
		reason = EndReasonAbandoned
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory store is closed")
	}
	rec, ok := s.activeLocked(key)
	if !ok {
		return ErrNotFound
	}
	s.records[rec.ID] = applyEnd(rec, rec.Step, "", reason, in)
	delete(s.active, key)
	return nil
}

func (s *MemoryStore) ExpireIdle(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("memory store is closed")
	}
	now := time.Now().UTC()
	expired := 0
	for key, id := range s.active {
		rec := s.records[id]
		if !rec.LastInteractionAt.Before(before) {
			continue
		}
		rec.Active = false
		rec.EndReason = EndReasonExpired
		rec.Revision++
		rec.UpdatedAt = now
		s.records[id] = rec
		delete(s.active, key)
		expired++
	}
	return expired, nil
}

func (s *MemoryStore) History(_ context.Context, key string, limit int) ([]Record, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("memory store is closed")
	}
	ids := s.byKey[key]
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneRecord(s.records[id]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && limit < len(out) {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) activeLocked(key string) (Record, bool) {
	id, ok := s.active[key]
	if !ok {
		return Record{}, false
	}
	rec, ok := s.records[id]
	return rec, ok
}

func cloneRecord(rec Record) Record {
	rec.Fields = rec.Fields.Clone()
	return rec
}
