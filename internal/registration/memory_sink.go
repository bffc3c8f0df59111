package registration

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mymunastore/aretenvi/internal/types"
)

type MemorySink struct {
	opts options

	mu             sync.Mutex
	byRef          map[string]types.Registration
	byConversation map[string]string
	closed         bool
}

func NewMemorySink(opts ...Option) *MemorySink {
	return &MemorySink{
		opts:           newOptions(opts),
		byRef:          make(map[string]types.Registration),
		byConversation: make(map[string]string),
	}
}

func (s *MemorySink) Finalize(_ context.Context, sub Submission) (types.Registration, error) {
	if err := validateSubmission(sub); err != nil {
		return types.Registration{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.Registration{}, fmt.Errorf("memory sink is closed")
	}
	if ref, ok := s.byConversation[sub.ConversationID]; ok {
		return cloneRegistration(s.byRef[ref]), nil
	}

	now := s.opts.now()
	ref, err := s.opts.allocate(now, func(candidate string) (bool, error) {
		_, ok := s.byRef[candidate]
		return ok, nil
	})
	if err != nil {
		return types.Registration{}, err
	}
	reg := s.opts.build(sub, ref, now)
	s.byRef[ref] = reg
	s.byConversation[sub.ConversationID] = ref
	return cloneRegistration(reg), nil
}

func (s *MemorySink) Lookup(_ context.Context, ref string) (types.Registration, error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.Registration{}, fmt.Errorf("memory sink is closed")
	}
	reg, ok := s.byRef[ref]
	if !ok {
		return types.Registration{}, ErrNotFound
	}
	return cloneRegistration(reg), nil
}

func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byRef)
}

func cloneRegistration(reg types.Registration) types.Registration {
	reg.Fields = reg.Fields.Clone()
	return reg
}
