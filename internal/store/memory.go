package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Written is one value accepted by Memory.Write.
type Written struct {
	ChannelID string
	Value     any
}

// Memory is an in-process Client. Like the real store it refuses writes to
// channels that were never registered. Tests use its failure hooks to
// simulate an unreliable store.
type Memory struct {
	mu            sync.Mutex
	registered    map[string]Descriptor
	registrations []Descriptor
	writes        []Written
	subs          map[string][]*memorySub

	registerErr  map[string]error
	writeErr     map[string]error
	subscribeErr map[string]error
}

type memorySub struct {
	out chan Event
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		registered:   make(map[string]Descriptor),
		subs:         make(map[string][]*memorySub),
		registerErr:  make(map[string]error),
		writeErr:     make(map[string]error),
		subscribeErr: make(map[string]error),
	}
}

// RegisterChannel records the descriptor.
func (m *Memory) RegisterChannel(_ context.Context, d Descriptor) error {
	if d.ID == "" {
		return ErrInvalidChannel
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.registerErr[d.ID]; err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	m.registered[d.ID] = d
	m.registrations = append(m.registrations, d)
	return nil
}

// Write records a value for a registered channel.
func (m *Memory) Write(_ context.Context, channelID string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.registered[channelID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, channelID)
	}
	if err := m.writeErr[channelID]; err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	m.writes = append(m.writes, Written{ChannelID: channelID, Value: value})
	return nil
}

// Subscribe delivers events passed to Publish for channelID.
func (m *Memory) Subscribe(ctx context.Context, channelID string) (<-chan Event, error) {
	if channelID == "" {
		return nil, ErrInvalidChannel
	}

	m.mu.Lock()
	if err := m.subscribeErr[channelID]; err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	sub := &memorySub{out: make(chan Event, subscriptionBuffer)}
	m.subs[channelID] = append(m.subs[channelID], sub)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subs[channelID]
		for i, s := range subs {
			if s == sub {
				m.subs[channelID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(sub.out)
	}()

	return sub.out, nil
}

// Publish delivers a payload to every subscriber of channelID and returns
// how many received it.
func (m *Memory) Publish(channelID string, payload []byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.subs[channelID]
	for _, s := range subs {
		s.out <- Event{
			ID:         uuid.NewString(),
			ChannelID:  channelID,
			Payload:    append([]byte(nil), payload...),
			ReceivedAt: time.Now(),
		}
	}
	return len(subs)
}

// Subscribers returns the number of live subscriptions on channelID.
func (m *Memory) Subscribers(channelID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[channelID])
}

// Registrations returns every successful registration in call order.
func (m *Memory) Registrations() []Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Descriptor(nil), m.registrations...)
}

// Writes returns every accepted write in call order.
func (m *Memory) Writes() []Written {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Written(nil), m.writes...)
}

// WritesTo returns the values accepted for one channel.
func (m *Memory) WritesTo(channelID string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []any
	for _, w := range m.writes {
		if w.ChannelID == channelID {
			out = append(out, w.Value)
		}
	}
	return out
}

// FailRegister makes registration of channelID fail with err; nil clears it.
func (m *Memory) FailRegister(channelID string, err error) {
	m.setErr(m.registerErr, channelID, err)
}

// FailWrite makes writes to channelID fail with err; nil clears it.
func (m *Memory) FailWrite(channelID string, err error) {
	m.setErr(m.writeErr, channelID, err)
}

// FailSubscribe makes subscriptions to channelID fail with err; nil clears it.
func (m *Memory) FailSubscribe(channelID string, err error) {
	m.setErr(m.subscribeErr, channelID, err)
}

func (m *Memory) setErr(target map[string]error, channelID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(target, channelID)
		return
	}
	target[channelID] = err
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
