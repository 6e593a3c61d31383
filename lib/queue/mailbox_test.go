package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"
)

// TestBasicOperations tests basic put and get functionality
func TestBasicOperations(t *testing.T) {
	q := NewMailbox[int]()
	defer q.Close()

	// Put 10 items
	for i := 0; i < 10; i++ {
		v := i
		if !q.Put(&v) {
			t.Fatalf("Failed to put item %d", i)
		}
	}

	if q.Len() != 10 {
		t.Errorf("Expected length 10, got %d", q.Len())
	}

	// Get 10 items
	for i := 0; i < 10; i++ {
		val, ok := q.Get()
		if !ok {
			t.Fatalf("Mailbox empty at item %d", i)
		}
		if *val != i {
			t.Errorf("Expected %d, got %v", i, *val)
		}
	}

	// Make sure mailbox is empty
	if val, ok := q.Get(); ok {
		t.Errorf("Mailbox should be empty, but got %v", *val)
	}
}

// TestPutNil verifies that nil values are rejected
func TestPutNil(t *testing.T) {
	q := NewMailbox[int]()
	if q.Put(nil) {
		t.Error("Put(nil) should be rejected")
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty mailbox, got length %d", q.Len())
	}
}

// TestWaitBlocksUntilPut verifies that Wait wakes up when a producer puts a value
func TestWaitBlocksUntilPut(t *testing.T) {
	q := NewMailbox[string]()
	defer q.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		v := "reply"
		q.Put(&v)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	val, err := q.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if *val != "reply" {
		t.Errorf("Expected 'reply', got %q", *val)
	}
}

// TestWaitTimeout verifies that Wait honors the context deadline
func TestWaitTimeout(t *testing.T) {
	q := NewMailbox[int]()
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := q.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Wait returned too late: %s", time.Since(start))
	}
}

// TestConcurrentProducers verifies the mailbox works correctly with multiple producers
func TestConcurrentProducers(t *testing.T) {
	q := NewMailbox[int]()
	defer q.Close()

	const numProducers = 10
	const itemsPerProducer = 1000
	totalItems := numProducers * itemsPerProducer

	received := make(map[int]bool)
	done := make(chan struct{})
	receivedCount := 0

	// Start a consumer goroutine
	go func() {
		defer close(done)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		for receivedCount < totalItems {
			val, err := q.Wait(ctx)
			if err != nil {
				t.Errorf("Wait failed after %d of %d items: %v", receivedCount, totalItems, err)
				return
			}
			if received[*val] {
				t.Errorf("Duplicate item received: %v", *val)
			}
			received[*val] = true
			receivedCount++
		}
	}()

	// Start producers
	var wg sync.WaitGroup
	wg.Add(numProducers)

	for p := 0; p < numProducers; p++ {
		go func(producerID int) {
			defer wg.Done()

			base := producerID * itemsPerProducer
			for i := 0; i < itemsPerProducer; i++ {
				val := base + i
				if !q.Put(&val) {
					t.Errorf("Producer %d failed to put item %d", producerID, i)
				}

				// Add some randomness to producer timing
				if i%100 == 0 {
					runtime.Gosched()
				}
			}
		}(p)
	}

	wg.Wait()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("Timeout waiting for consumer to finish")
	}

	if receivedCount != totalItems {
		t.Errorf("Expected %d items, got %d", totalItems, receivedCount)
	}
}

// TestFIFOWithRecordedOrder serializes producers through an external lock and checks
// that the consumer observes exactly the recorded put order
func TestFIFOWithRecordedOrder(t *testing.T) {
	q := NewMailbox[string]()
	defer q.Close()

	const numProducers = 8
	const itemsPerProducer = 200

	var mu sync.Mutex
	order := make([]string, 0, numProducers*itemsPerProducer)

	var wg sync.WaitGroup
	wg.Add(numProducers)
	for p := 0; p < numProducers; p++ {
		go func(producerID int) {
			defer wg.Done()
			for i := 0; i < itemsPerProducer; i++ {
				tag := fmt.Sprintf("%d-%d", producerID, i)
				mu.Lock()
				order = append(order, tag)
				q.Put(&tag)
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()

	for i, want := range order {
		got, ok := q.Get()
		if !ok {
			t.Fatalf("Mailbox empty at position %d", i)
		}
		if *got != want {
			t.Fatalf("Position %d: expected %s, got %s", i, want, *got)
		}
	}
}

// TestCloseMailbox verifies closing behavior
func TestCloseMailbox(t *testing.T) {
	q := NewMailbox[int]()

	// Put some items
	for i := 0; i < 5; i++ {
		v := i
		q.Put(&v)
	}

	q.Close()

	if !q.IsClosed() {
		t.Error("Mailbox should report closed")
	}

	// Verify we can't put after closing
	val := 100
	if q.Put(&val) {
		t.Error("Should not be able to put after mailbox is closed")
	}

	// Verify we can still read existing items
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		v, err := q.Wait(ctx)
		if err != nil {
			t.Fatalf("Wait failed for item %d after close: %v", i, err)
		}
		if *v != i {
			t.Errorf("Expected %d, got %v", i, *v)
		}
	}

	// Drained and closed
	if _, err := q.Wait(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

// TestCloseWakesWaiter verifies a blocked consumer returns when the mailbox is closed
func TestCloseWakesWaiter(t *testing.T) {
	q := NewMailbox[int]()

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Wait(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Waiter was not woken by Close")
	}
}

// TestOrderingSingleProducer tests that a single producer's items arrive in order
func TestOrderingSingleProducer(t *testing.T) {
	q := NewMailbox[int]()
	defer q.Close()

	const itemCount = 10000
	go func() {
		for i := 0; i < itemCount; i++ {
			v := i
			q.Put(&v)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < itemCount; i++ {
		val, err := q.Wait(ctx)
		if err != nil {
			t.Fatalf("Timeout waiting for item %d", i)
		}
		if *val != i {
			t.Fatalf("Expected %d, got %d", i, *val)
		}
	}
}

// BenchmarkSingleProducer benchmarks the mailbox with a single producer
func BenchmarkSingleProducer(b *testing.B) {
	q := NewMailbox[int]()
	defer q.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Put(&i)
		q.Get()
	}
}

// BenchmarkMultiProducer benchmarks the mailbox with multiple producers
func BenchmarkMultiProducer(b *testing.B) {
	q := NewMailbox[int]()

	// Start consumer
	go func() {
		for {
			if _, err := q.Wait(context.Background()); err != nil {
				return
			}
		}
	}()
	defer q.Close()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			q.Put(&i)
			i++
		}
	})
}

// TestDrainRacingProducers verifies that every accepted Put is either consumed or drained,
// also when producers race with the close
func TestDrainRacingProducers(t *testing.T) {
	for round := 0; round < 20; round++ {
		q := NewMailbox[int]()

		const producers = 8
		var accepted sync.WaitGroup
		counts := make([]int, producers)
		start := make(chan struct{})

		for p := 0; p < producers; p++ {
			accepted.Add(1)
			go func(p int) {
				defer accepted.Done()
				<-start
				for i := 0; ; i++ {
					v := i
					if !q.Put(&v) {
						return
					}
					counts[p]++
				}
			}(p)
		}

		close(start)
		consumed := 0
		for consumed < 100 {
			if _, ok := q.Get(); ok {
				consumed++
			} else {
				runtime.Gosched()
			}
		}
		drained := q.Drain(func(*int) {})
		accepted.Wait()

		total := 0
		for _, c := range counts {
			total += c
		}
		if consumed+drained != total {
			t.Fatalf("round %d: %d accepted, %d consumed + %d drained", round, total, consumed, drained)
		}
		if q.Len() != 0 {
			t.Fatalf("round %d: %d values left after drain", round, q.Len())
		}
	}
}

// TestDrainEmpty verifies Drain closes an empty mailbox
func TestDrainEmpty(t *testing.T) {
	q := NewMailbox[int]()
	if n := q.Drain(func(*int) { t.Error("unexpected value") }); n != 0 {
		t.Errorf("Expected 0 drained values, got %d", n)
	}
	v := 1
	if q.Put(&v) {
		t.Error("Should not be able to put after drain")
	}
}
