package engine

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestClient() *Client {
	return &Client{
		events:   make(chan Event, 8),
		sessions: make(map[string]*session),
		logger:   logrus.New(),
	}
}

func TestEmitDropsOldestWhenFull(t *testing.T) {
	c := newTestClient()
	for i := 0; i < 20; i++ {
		c.emit(Event{Link: "a", ResumeData: []byte{byte(i)}})
	}

	// The channel holds the newest events; the oldest were dropped.
	drained := 0
	last := byte(0)
	for {
		select {
		case ev := <-c.events:
			drained++
			last = ev.ResumeData[0]
		default:
			if drained != cap(c.events) {
				t.Errorf("Expected %d buffered events, got %d", cap(c.events), drained)
			}
			if last != 19 {
				t.Errorf("Expected the newest event to survive, got %d", last)
			}
			return
		}
	}
}

func TestCloseWithConcurrentEmitters(t *testing.T) {
	c := newTestClient()

	// Saturate the channel so emitters exercise the drop-oldest path while
	// the stream is being closed.
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 100; j++ {
				c.emit(Event{Link: "a"})
			}
		}()
	}

	close(start)
	if !c.closeEvents() {
		t.Fatal("first close should report having closed the stream")
	}
	wg.Wait()

	// Emits after close are dropped, not panics.
	c.emit(Event{Link: "a"})

	if c.closeEvents() {
		t.Error("second close should be a no-op")
	}

	// The stream must end for its consumer.
	for range c.events {
	}
}
