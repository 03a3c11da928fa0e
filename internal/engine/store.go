package engine

import (
	"sync"
	"time"
)

// ConversationLog is the ordered correlation store of conversation entries.
// Entries are appended strictly in event-arrival order; a tool result merges
// into the most recently appended entry only (the protocol carries no call
// identifiers, so adjacency is the correlation rule). One goroutine writes;
// any number of readers take deep-copied snapshots.
type ConversationLog struct {
	mu      sync.RWMutex
	entries []ConversationEntry
	nextID  int64
}

// NewConversationLog creates an empty log.
func NewConversationLog() *ConversationLog {
	return &ConversationLog{nextID: 1}
}

// Append adds an entry, assigning it the next monotonic ID, and returns the
// stored copy.
func (l *ConversationLog) Append(e ConversationEntry) ConversationEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.ID = l.nextID
	l.nextID++
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.entries = append(l.entries, e)
	return e.clone()
}

// MergeIntoLast applies mut to the most recent entry iff pred accepts it.
// Only the last entry is considered: earlier entries are never merge targets,
// which bounds the scan to O(1) and encodes the adjacency assumption.
// Returns the merged entry and true, or a zero entry and false.
func (l *ConversationLog) MergeIntoLast(pred func(*ConversationEntry) bool, mut func(*ConversationEntry)) (ConversationEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return ConversationEntry{}, false
	}
	last := &l.entries[len(l.entries)-1]
	if !pred(last) {
		return ConversationEntry{}, false
	}
	// Mutate a copy and swap it in whole, so a concurrent Snapshot never
	// observes a half-applied merge.
	updated := last.clone()
	mut(&updated)
	l.entries[len(l.entries)-1] = updated
	return updated.clone(), true
}

// Latest returns a copy of the most recent entry.
func (l *ConversationLog) Latest() (ConversationEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return ConversationEntry{}, false
	}
	return l.entries[len(l.entries)-1].clone(), true
}

// Get returns a copy of the entry with the given ID.
func (l *ConversationLog) Get(id int64) (ConversationEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].ID == id {
			return l.entries[i].clone(), true
		}
	}
	return ConversationEntry{}, false
}

// Snapshot returns a deep-copied view of the whole log.
func (l *ConversationLog) Snapshot() []ConversationEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ConversationEntry, len(l.entries))
	for i := range l.entries {
		out[i] = l.entries[i].clone()
	}
	return out
}

// Len returns the number of entries.
func (l *ConversationLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Reset clears the log and restarts the ID sequence.
func (l *ConversationLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.nextID = 1
}
