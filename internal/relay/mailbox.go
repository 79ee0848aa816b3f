package relay

import (
	"sync"
	"sync/atomic"
)

// Sink receives outbound frames for one participant. Send must not block.
type Sink interface {
	Send(frame []byte) error
}

// Mailbox is a frame- and byte-bounded FIFO drained by a single writer
// goroutine. Producers never block: a full or closed mailbox drops the frame
// and reports why.
type Mailbox struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	closed   bool

	maxFrames int
	maxBytes  int
	curBytes  int
	frames    [][]byte

	drops atomic.Uint64
}

func NewMailbox(maxFrames, maxBytes int) *Mailbox {
	mb := &Mailbox{maxFrames: maxFrames, maxBytes: maxBytes}
	mb.notEmpty = sync.NewCond(&mb.mu)
	return mb
}

// Send enqueues frame. It never blocks.
func (mb *Mailbox) Send(frame []byte) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		mb.drops.Add(1)
		return ErrMailboxClosed
	}
	if len(mb.frames) >= mb.maxFrames || mb.curBytes+len(frame) > mb.maxBytes {
		mb.drops.Add(1)
		return ErrMailboxFull
	}

	mb.frames = append(mb.frames, frame)
	mb.curBytes += len(frame)
	mb.notEmpty.Signal()
	return nil
}

// Next blocks until a frame is available. After Close it keeps returning the
// frames queued before Close, then false.
func (mb *Mailbox) Next() ([]byte, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for len(mb.frames) == 0 && !mb.closed {
		mb.notEmpty.Wait()
	}
	if len(mb.frames) == 0 {
		return nil, false
	}
	frame := mb.frames[0]
	mb.frames[0] = nil
	mb.frames = mb.frames[1:]
	mb.curBytes -= len(frame)
	return frame, true
}

// Close stops accepting frames and wakes the reader. It is idempotent.
func (mb *Mailbox) Close() {
	mb.mu.Lock()
	mb.closed = true
	mb.mu.Unlock()
	mb.notEmpty.Broadcast()
}

func (mb *Mailbox) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.frames)
}

func (mb *Mailbox) Dropped() uint64 {
	return mb.drops.Load()
}
