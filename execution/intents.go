package execution

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrUnknownIntent  = errors.New("unknown order intent")
	ErrIntentConsumed = errors.New("order intent already consumed")
	ErrIntentExpired  = errors.New("order intent expired")
)

// DefaultIntentTTL bounds how long a priced intent may wait before it is built.
const DefaultIntentTTL = 2 * time.Minute

type intentEntry struct {
	intent   OrderIntent
	consumed bool
}

// IntentBook tracks issued intents so that each one is turned into a payload at most
// once. Expired entries are pruned on insert.
type IntentBook struct {
	intents map[string]*intentEntry
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
}

func NewIntentBook(ttl time.Duration) *IntentBook {
	if ttl <= 0 {
		ttl = DefaultIntentTTL
	}
	return &IntentBook{
		intents: make(map[string]*intentEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (b *IntentBook) Add(intent OrderIntent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked()
	b.intents[intent.ID] = &intentEntry{intent: intent}
}

func (b *IntentBook) Get(id string) (OrderIntent, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.intents[id]
	if !ok {
		return OrderIntent{}, false
	}
	return e.intent, true
}

// Check reports whether id could be consumed right now without consuming it.
func (b *IntentBook) Check(id string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.checkLocked(id)
}

// Consume marks the intent as used. Only the first call for an id succeeds.
func (b *IntentBook) Consume(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLocked(id); err != nil {
		return err
	}
	b.intents[id].consumed = true
	return nil
}

func (b *IntentBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.intents)
}

func (b *IntentBook) checkLocked(id string) error {
	e, ok := b.intents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIntent, id)
	}
	if e.consumed {
		return fmt.Errorf("%w: %s", ErrIntentConsumed, id)
	}
	if b.now().Sub(e.intent.CreatedAt) > b.ttl {
		return fmt.Errorf("%w: %s", ErrIntentExpired, id)
	}
	return nil
}

// pruneLocked drops entries well past their TTL. Consumed entries are kept for one
// extra TTL so a late retry still reports ErrIntentConsumed.
func (b *IntentBook) pruneLocked() {
	cutoff := b.now().Add(-2 * b.ttl)
	for id, e := range b.intents {
		if e.intent.CreatedAt.Before(cutoff) {
			delete(b.intents, id)
		}
	}
}
