// Package journal keeps a rolling buffer of resolved action events per
// session so clients that reconnect can replay what they missed without a
// full snapshot diff.
package journal

import (
	"sync"
	"time"

	"github.com/Halldon-Inc/moltblox-sub002/internal/engine"
)

// Telemetry receives drop notifications when retention evicts entries.
type Telemetry interface {
	RecordJournalDrop(metric string)
}

const metricJournalEvicted = "journal_evicted"

// Entry is one accepted action's worth of events.
type Entry struct {
	Sequence   uint64         `json:"sequence"`
	Turn       int            `json:"turn"`
	PlayerID   string         `json:"playerId"`
	ActionType string         `json:"actionType"`
	Events     []engine.Event `json:"events,omitempty"`
	RecordedAt time.Time      `json:"recordedAt"`
}

// Journal accumulates entries with retention limits by count and age.
type Journal struct {
	mu        sync.RWMutex
	entries   []Entry
	nextSeq   uint64
	maxCount  int
	maxAge    time.Duration
	telemetry Telemetry
}

// New constructs a journal retaining at most maxCount entries no older
// than maxAge. Zero maxAge disables age-based eviction.
func New(maxCount int, maxAge time.Duration) *Journal {
	if maxCount < 0 {
		maxCount = 0
	}
	if maxAge < 0 {
		maxAge = 0
	}
	return &Journal{
		entries:  make([]Entry, 0, maxCount),
		nextSeq:  1,
		maxCount: maxCount,
		maxAge:   maxAge,
	}
}

// AttachTelemetry installs the drop reporter.
func (j *Journal) AttachTelemetry(t Telemetry) {
	j.mu.Lock()
	j.telemetry = t
	j.mu.Unlock()
}

// Append records the events of one accepted action and returns the stored
// entry with its assigned sequence.
func (j *Journal) Append(turn int, playerID, actionType string, events []engine.Event) Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := Entry{
		Sequence:   j.nextSeq,
		Turn:       turn,
		PlayerID:   playerID,
		ActionType: actionType,
		RecordedAt: time.Now(),
	}
	j.nextSeq++
	if len(events) > 0 {
		entry.Events = append([]engine.Event(nil), events...)
	}

	if j.maxCount == 0 {
		return entry
	}
	j.entries = append(j.entries, entry)
	j.evictLocked(entry.RecordedAt)
	return entry
}

func (j *Journal) evictLocked(now time.Time) {
	evicted := 0
	if j.maxAge > 0 {
		cutoff := now.Add(-j.maxAge)
		idx := 0
		for idx < len(j.entries) && j.entries[idx].RecordedAt.Before(cutoff) {
			idx++
		}
		if idx > 0 {
			copy(j.entries, j.entries[idx:])
			j.entries = j.entries[:len(j.entries)-idx]
			evicted += idx
		}
	}
	if len(j.entries) > j.maxCount {
		overflow := len(j.entries) - j.maxCount
		copy(j.entries, j.entries[overflow:])
		j.entries = j.entries[:len(j.entries)-overflow]
		evicted += overflow
	}
	if evicted > 0 && j.telemetry != nil {
		j.telemetry.RecordJournalDrop(metricJournalEvicted)
	}
}

// Since returns every retained entry with a sequence greater than after,
// in chronological order. Callers receive a copy.
func (j *Journal) Since(after uint64) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	idx := 0
	for idx < len(j.entries) && j.entries[idx].Sequence <= after {
		idx++
	}
	if idx == len(j.entries) {
		return nil
	}
	out := make([]Entry, len(j.entries)-idx)
	copy(out, j.entries[idx:])
	return out
}

// Window reports the retained range.
func (j *Journal) Window() (size int, oldest, newest uint64) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	size = len(j.entries)
	if size == 0 {
		return 0, 0, 0
	}
	return size, j.entries[0].Sequence, j.entries[size-1].Sequence
}
