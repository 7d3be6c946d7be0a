package notify

import (
	"sync"
	"time"
)

// Buffer keeps the most recent notices until the UI drains them.
type Buffer struct {
	mu      sync.Mutex
	notices []Notice
	max     int
	now     func() time.Time
}

func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = 50
	}
	return &Buffer{max: max, now: time.Now}
}

func (b *Buffer) Success(msg string) { b.push(LevelSuccess, msg) }
func (b *Buffer) Info(msg string)    { b.push(LevelInfo, msg) }
func (b *Buffer) Warning(msg string) { b.push(LevelWarning, msg) }
func (b *Buffer) Error(msg string)   { b.push(LevelError, msg) }

func (b *Buffer) push(level Level, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.notices = append(b.notices, Notice{Level: level, Message: msg, At: b.now()})
	if over := len(b.notices) - b.max; over > 0 {
		b.notices = append([]Notice(nil), b.notices[over:]...)
	}
}

// Drain returns the pending notices, oldest first, and empties the buffer.
func (b *Buffer) Drain() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.notices
	b.notices = nil
	if out == nil {
		return []Notice{}
	}
	return out
}
