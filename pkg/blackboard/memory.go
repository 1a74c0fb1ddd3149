package blackboard

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Store for single-process trees and tests.
// Values are deep-copied on the way in and out so callers never share state
// with the store.
type Memory struct {
	mu      sync.Mutex
	records map[string]*Record
	signals map[string]Status
	values  map[string]string

	subMu  sync.Mutex
	subs   map[int]chan string
	nextID int
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-process blackboard.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*Record),
		signals: make(map[string]Status),
		values:  make(map[string]string),
		subs:    make(map[int]chan string),
	}
}

func (m *Memory) GetRecord(_ context.Context, key string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *Memory) PutRecord(_ context.Context, key string, r *Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	m.mu.Lock()
	m.records[key] = r.Clone()
	m.mu.Unlock()
	return nil
}

func (m *Memory) UpdateRecord(_ context.Context, key string, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := fn(m.records[key].Clone())
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	m.records[key] = next.Clone()
	return nil
}

func (m *Memory) GetSignal(_ context.Context, key string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signals[key]
	if !ok {
		return "", ErrNotFound
	}
	return s, nil
}

func (m *Memory) PutSignal(_ context.Context, key string, s Status) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid signal: %w", err)
	}
	m.mu.Lock()
	m.signals[key] = s
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetValue(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) PutValue(_ context.Context, key string, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

// Wake fans key out to every live subscription without blocking.
func (m *Memory) Wake(_ context.Context, key string) error {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- key:
		default:
		}
	}
	return nil
}

func (m *Memory) SubscribeWakes(ctx context.Context) (*WakeSubscription, error) {
	ch := make(chan string, 10)

	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.subMu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		<-subCtx.Done()
		m.subMu.Lock()
		delete(m.subs, id)
		close(ch)
		m.subMu.Unlock()
	}()

	return &WakeSubscription{events: ch, cancel: cancel}, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
