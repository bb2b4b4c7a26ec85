package controllers

import (
	"sync"
	"testing"
)

func TestLinkQueueOrdersPerLink(t *testing.T) {
	q := newLinkQueue()

	var mu sync.Mutex
	order := make(map[string][]int)

	for i := 0; i < 50; i++ {
		i := i
		for _, link := range []string{"a", "b"} {
			link := link
			q.Submit(link, func() {
				mu.Lock()
				order[link] = append(order[link], i)
				mu.Unlock()
			})
		}
	}
	q.Wait()

	for _, link := range []string{"a", "b"} {
		got := order[link]
		if len(got) != 50 {
			t.Fatalf("link %s ran %d tasks, want 50", link, len(got))
		}
		for i, v := range got {
			if v != i {
				t.Fatalf("link %s task order %v, want submission order", link, got)
			}
		}
	}
}

func TestLinkQueueLinksRunIndependently(t *testing.T) {
	q := newLinkQueue()

	blockA := make(chan struct{})
	ranB := make(chan struct{})

	q.Submit("a", func() { <-blockA })
	q.Submit("b", func() { close(ranB) })

	// b must complete even while a is blocked.
	<-ranB
	close(blockA)
	q.Wait()
}
