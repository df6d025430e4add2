// internal/desktop/history.go
package desktop

import (
	"time"

	"github.com/xkilldash9x/voicepilot/api/schemas"
)

// history is a bounded FIFO of dispatched actions. Callers hold the engine lock.
type history struct {
	capacity int
	entries  []schemas.HistoryEntry
}

func newHistory(capacity int) *history {
	return &history{capacity: capacity, entries: make([]schemas.HistoryEntry, 0, capacity)}
}

func (h *history) add(e schemas.HistoryEntry) {
	if len(h.entries) >= h.capacity {
		// Drop the oldest entries, keeping the backing array bounded.
		n := copy(h.entries, h.entries[len(h.entries)-h.capacity+1:])
		h.entries = h.entries[:n]
	}
	h.entries = append(h.entries, e)
}

// last returns up to n of the most recent entries, oldest first.
func (h *history) last(n int) []schemas.HistoryEntry {
	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]schemas.HistoryEntry, n)
	copy(out, h.entries[len(h.entries)-n:])
	return out
}

func (h *history) clear() {
	h.entries = h.entries[:0]
}

// since counts entries recorded at or after cutoff and returns the oldest such timestamp.
func (h *history) since(cutoff time.Time) (int, time.Time) {
	count := 0
	var oldest time.Time
	for i := len(h.entries) - 1; i >= 0; i-- {
		ts := h.entries[i].Timestamp
		if ts.Before(cutoff) {
			break
		}
		count++
		oldest = ts
	}
	return count, oldest
}
