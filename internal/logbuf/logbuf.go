package logbuf

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of entries retained when New is given a
// non-positive capacity.
const DefaultCapacity = 100

// Stream identifies where a log entry came from.
type Stream string

const (
	StreamStdout     Stream = "stdout"
	StreamStderr     Stream = "stderr"
	StreamSupervisor Stream = "supervisor"
)

func (s Stream) String() string { return string(s) }

// Entry is a single timestamped line. Seq is assigned by Append, starts
// at 1 and is never reused.
type Entry struct {
	Seq    uint64    `json:"seq"`
	Time   time.Time `json:"time"`
	Stream Stream    `json:"stream"`
	Line   string    `json:"line"`
}

// Buffer is a bounded, ordered collection of entries shared between the
// output readers of a task and any number of observers. Once the bound is
// exceeded the oldest entries are dropped first.
type Buffer struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	evicted  uint64
	onEvict  func(n int)
}

// New returns a buffer that retains at most capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
	}
}

// OnEvict registers a callback invoked (outside the lock) with the number of
// entries dropped by an append.
func (b *Buffer) OnEvict(fn func(n int)) {
	b.mu.Lock()
	b.onEvict = fn
	b.mu.Unlock()
}

// Append numbers e, adds it and trims the buffer back to its bound.
func (b *Buffer) Append(e Entry) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.Lock()
	e.Seq = b.evicted + uint64(len(b.entries)) + 1
	b.entries = append(b.entries, e)
	dropped := 0
	if over := len(b.entries) - b.capacity; over > 0 {
		// shift survivors down instead of reslicing so the backing array
		// does not grow without bound
		n := copy(b.entries, b.entries[over:])
		clear(b.entries[n:])
		b.entries = b.entries[:n]
		b.evicted += uint64(over)
		dropped = over
	}
	fn := b.onEvict
	b.mu.Unlock()

	if dropped > 0 && fn != nil {
		fn(dropped)
	}
}

// AppendLine stamps line with the current time and appends it.
func (b *Buffer) AppendLine(s Stream, line string) {
	b.Append(Entry{Time: time.Now(), Stream: s, Line: line})
}

// Snapshot returns a copy of all retained entries, oldest first.
func (b *Buffer) Snapshot() []Entry {
	b.mu.Lock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	b.mu.Unlock()
	return out
}

// Tail returns a copy of the last n entries (or fewer). n <= 0 returns all.
func (b *Buffer) Tail(n int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > len(b.entries) {
		n = len(b.entries)
	}
	out := make([]Entry, n)
	copy(out, b.entries[len(b.entries)-n:])
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *Buffer) Cap() int { return b.capacity }

// Evicted reports how many entries have been dropped since creation.
func (b *Buffer) Evicted() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted
}

// Seq is the number of entries ever appended.
func (b *Buffer) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted + uint64(len(b.entries))
}

// Since returns the retained entries appended after sequence number seq,
// oldest first, and the current sequence number. Entries evicted in the
// meantime are silently missing from the result.
func (b *Buffer) Since(seq uint64) ([]Entry, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := b.evicted + uint64(len(b.entries))
	if seq >= total {
		return nil, total
	}
	n := total - seq
	if n > uint64(len(b.entries)) {
		n = uint64(len(b.entries))
	}
	out := make([]Entry, n)
	copy(out, b.entries[uint64(len(b.entries))-n:])
	return out, total
}
