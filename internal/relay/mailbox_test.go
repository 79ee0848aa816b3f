package relay

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMailbox_FIFO(t *testing.T) {
	req := require.New(t)
	mb := NewMailbox(16, 1024)

	for _, f := range []string{"a", "b", "c"} {
		req.NoError(mb.Send([]byte(f)))
	}
	for _, want := range []string{"a", "b", "c"} {
		got, ok := mb.Next()
		req.True(ok)
		req.Equal(want, string(got))
	}
}

func TestMailbox_DropsWhenFull(t *testing.T) {
	req := require.New(t)

	mb := NewMailbox(2, 1024)
	req.NoError(mb.Send([]byte("a")))
	req.NoError(mb.Send([]byte("b")))
	req.ErrorIs(mb.Send([]byte("c")), ErrMailboxFull)

	bytesBound := NewMailbox(16, 4)
	req.NoError(bytesBound.Send([]byte("abc")))
	req.ErrorIs(bytesBound.Send([]byte("de")), ErrMailboxFull)
	req.ErrorIs(bytesBound.Send([]byte("toolarge")), ErrMailboxFull)

	req.Equal(uint64(1), mb.Dropped())
	req.Equal(uint64(2), bytesBound.Dropped())
}

func TestMailbox_CloseDrainsThenStops(t *testing.T) {
	req := require.New(t)
	mb := NewMailbox(4, 1024)
	req.NoError(mb.Send([]byte("last words")))

	mb.Close()
	mb.Close()
	req.ErrorIs(mb.Send([]byte("late")), ErrMailboxClosed)

	got, ok := mb.Next()
	req.True(ok)
	req.Equal("last words", string(got))

	_, ok = mb.Next()
	req.False(ok)
}

func TestMailbox_CloseWakesBlockedReader(t *testing.T) {
	mb := NewMailbox(4, 1024)
	done := make(chan bool)
	go func() {
		_, ok := mb.Next()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	mb.Close()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("reader still blocked after Close")
	}
}

func TestMailbox_PerProducerOrderUnderConcurrency(t *testing.T) {
	const producers, perProducer = 8, 200
	mb := NewMailbox(producers*perProducer, 1<<20)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				require.NoError(t, mb.Send([]byte{byte(p), byte(i >> 8), byte(i)}))
			}
		}(p)
	}
	wg.Wait()
	mb.Close()

	next := make([]int, producers)
	for {
		f, ok := mb.Next()
		if !ok {
			break
		}
		p, i := int(f[0]), int(f[1])<<8|int(f[2])
		require.Equal(t, next[p], i, "producer %d out of order", p)
		next[p]++
	}
	for p := range next {
		require.Equal(t, perProducer, next[p])
	}
}
