package queue

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/event-ticketing/internal/logger"
)

// silentBroker accepts TCP connections and never answers the AMQP handshake.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestPublishDoesNotWaitForUnresponsiveBroker(t *testing.T) {
	p := NewPublisher(silentBroker(t), logger.NewNop(), WithDialTimeout(300*time.Millisecond))

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			ev := TicketsIssuedEvent{ReservationID: "res", TicketIDs: []string{"t"}}
			if err := p.PublishTicketsIssued(ctx, ev); err != nil {
				t.Errorf("publish %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Fatalf("publishing took %s with a silent broker", elapsed)
	}

	closed := make(chan struct{})
	go func() {
		_ = p.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not return; the dial is not bounded")
	}
}

func TestPublishBacklogFull(t *testing.T) {
	// no delivery goroutine, so nothing drains the backlog
	p := &Publisher{
		log:  logger.NewNop(),
		out:  make(chan outgoing, 1),
		done: make(chan struct{}),
	}
	ctx := context.Background()
	if err := p.PublishReservationRefunded(ctx, ReservationRefundedEvent{ReservationID: "a"}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := p.PublishReservationRefunded(ctx, ReservationRefundedEvent{ReservationID: "b"}); !errors.Is(err, ErrBacklogFull) {
		t.Fatalf("err = %v, want ErrBacklogFull", err)
	}
}

func TestPublishAfterClose(t *testing.T) {
	p := NewPublisher(silentBroker(t), logger.NewNop(), WithDialTimeout(100*time.Millisecond))
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	// a second Close is harmless
	_ = p.Close()
	err := p.PublishTicketsIssued(context.Background(), TicketsIssuedEvent{ReservationID: "res"})
	if !errors.Is(err, ErrPublisherClosed) {
		t.Fatalf("err = %v, want ErrPublisherClosed", err)
	}
}
