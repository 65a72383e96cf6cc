package service

import (
	"context"
	"sync"
	"time"

	"github.com/reservo/chat-service/internal/config"
	"github.com/reservo/chat-service/internal/domain"
	"github.com/reservo/chat-service/internal/hub"
	"github.com/reservo/chat-service/pkg/log"
)

type typingKey struct {
	conversationID int64
	userID         int64
}

type typingEntry struct {
	receiverID int64
	deadline   time.Time
}

// typingTracker remembers who is typing to whom and emits typing:stop on
// the typist's behalf when the indicator goes stale. A crashed or
// disconnected client otherwise leaves the receiver's UI showing "typing"
// forever.
type typingTracker struct {
	hub     *hub.Hub
	ttl     time.Duration
	sweep   time.Duration
	entries map[typingKey]typingEntry
	mu      sync.Mutex
	cancel  context.CancelFunc
}

func newTypingTracker(h *hub.Hub, cfg config.TypingConfig) *typingTracker {
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = time.Second
	}
	return &typingTracker{
		hub:     h,
		ttl:     cfg.TTL,
		sweep:   sweep,
		entries: make(map[typingKey]typingEntry),
	}
}

// start records or refreshes a live typing indicator.
func (t *typingTracker) start(conversationID, userID, receiverID int64) {
	if t.ttl <= 0 {
		return
	}
	t.mu.Lock()
	t.entries[typingKey{conversationID, userID}] = typingEntry{
		receiverID: receiverID,
		deadline:   time.Now().Add(t.ttl),
	}
	t.mu.Unlock()
}

// clear drops the indicator without emitting anything; used for explicit
// stops and for a sent message, which ends the composing state anyway.
func (t *typingTracker) clear(conversationID, userID int64) {
	t.mu.Lock()
	delete(t.entries, typingKey{conversationID, userID})
	t.mu.Unlock()
}

// flushUser emits typing:stop for everything the user was still typing.
// Called when their last connection goes away.
func (t *typingTracker) flushUser(userID int64) {
	t.mu.Lock()
	var stops []struct {
		key   typingKey
		entry typingEntry
	}
	for key, entry := range t.entries {
		if key.userID == userID {
			stops = append(stops, struct {
				key   typingKey
				entry typingEntry
			}{key, entry})
			delete(t.entries, key)
		}
	}
	t.mu.Unlock()

	for _, s := range stops {
		t.emitStop(s.key, s.entry)
	}
}

func (t *typingTracker) startSweeper(ctx context.Context) {
	if t.ttl <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go t.sweepLoop(ctx)

	l := log.L()
	l.Info().Dur("ttl", t.ttl).Dur("interval", t.sweep).Msg("typing sweeper started")
}

func (t *typingTracker) stopSweeper() {
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *typingTracker) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(t.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.sweepExpired(now)
		}
	}
}

func (t *typingTracker) sweepExpired(now time.Time) {
	t.mu.Lock()
	var expired []struct {
		key   typingKey
		entry typingEntry
	}
	for key, entry := range t.entries {
		if now.After(entry.deadline) {
			expired = append(expired, struct {
				key   typingKey
				entry typingEntry
			}{key, entry})
			delete(t.entries, key)
		}
	}
	t.mu.Unlock()

	for _, e := range expired {
		t.emitStop(e.key, e.entry)
	}
}

func (t *typingTracker) emitStop(key typingKey, entry typingEntry) {
	err := t.hub.EmitToUser(entry.receiverID, domain.EventTypingStop, &domain.TypingEventPayload{
		ConversationID: key.conversationID,
		UserID:         key.userID,
	})
	if err != nil {
		l := log.L()
		l.Warn().Err(err).
			Int64(log.FieldConversationID, key.conversationID).
			Int64(log.FieldUserID, key.userID).
			Msg("failed to emit expired typing stop")
	}
}
