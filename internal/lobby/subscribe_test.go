package lobby

import (
	"context"
	"testing"
	"time"
)

// helper: receive one snapshot with a timeout so tests never hang
func recvSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return snap
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot")
		return Snapshot{} // unreachable
	}
}

func recvNoSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			// channel closed → that's fine; no further snapshots possible
			return
		}
		t.Fatalf("expected no snapshot within %v, but got: %+v", within, s)
	case <-time.After(within):
		// good: no snapshot
	}
}

func TestSubscribe_ReceivesSnapshotPerChange(t *testing.T) {
	c, _ := newTestCoordinator(t, "A")

	out := make(chan Snapshot, 4)
	c.Inbox() <- Subscribe{ClientID: "ui1", Outbox: out}

	first := recvSnapshot(t, out, 100*time.Millisecond)
	if first.Version != 0 || len(first.Messages) != 0 {
		t.Fatalf("after subscribe: want empty version 0, got %+v", first)
	}

	c.Inbox() <- ChallengeSent{OfferID: "X1", CallerID: "B", CalleeID: "A"}
	next := recvSnapshot(t, out, 100*time.Millisecond)
	if next.Version != 1 || len(next.Pending) != 1 {
		t.Fatalf("after challenge: want version=1 with one pending offer, got %+v", next)
	}

	// Unknown offer: absorbed, nothing broadcast.
	c.Inbox() <- ChallengeAccepted{OfferID: "nope"}
	recvNoSnapshot(t, out, 100*time.Millisecond)

	c.Inbox() <- Unsubscribe{ClientID: "ui1"}
	c.Inbox() <- ChatReceived{SenderID: "B", Text: "hi"}
	recvNoSnapshot(t, out, 100*time.Millisecond)
}

func TestSubscribe_DropSlowClient(t *testing.T) {
	c, _ := newTestCoordinator(t, "A")

	out := make(chan Snapshot, 1)
	c.Inbox() <- Subscribe{ClientID: "ui1", Outbox: out}
	c.Inbox() <- ChatReceived{SenderID: "B", Text: "hi"}

	v := viewOf(t, c)
	if v.NumClients != 0 {
		t.Fatalf("expected slow client to be dropped; NumClients=%d", v.NumClients)
	}
}

func TestSubscribe_SameClientReplacesOutbox(t *testing.T) {
	c, _ := newTestCoordinator(t, "A")

	old := make(chan Snapshot, 2)
	c.Inbox() <- Subscribe{ClientID: "ui1", Outbox: old}
	_ = recvSnapshot(t, old, 100*time.Millisecond)

	fresh := make(chan Snapshot, 2)
	c.Inbox() <- Subscribe{ClientID: "ui1", Outbox: fresh}
	_ = recvSnapshot(t, fresh, 100*time.Millisecond)

	if _, ok := <-old; ok {
		t.Fatalf("expected the replaced outbox to be closed")
	}
	if v := viewOf(t, c); v.NumClients != 1 {
		t.Fatalf("want one subscriber, got %d", v.NumClients)
	}
}

func TestShutdown_ClosesSubscribersAndRejectsCommands(t *testing.T) {
	c, err := New(context.Background(), Config{SelfID: "A"})
	if err != nil {
		t.Fatal(err)
	}
	out := make(chan Snapshot, 2)
	c.Inbox() <- Subscribe{ClientID: "ui1", Outbox: out}
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	c.Inbox() <- Shutdown{}
	<-c.Done()
	recvNoSnapshot(t, out, 100*time.Millisecond)

	if _, err := c.RequestChallenge(context.Background(), "B"); err != ErrClosed {
		t.Fatalf("want ErrClosed after shutdown, got %v", err)
	}
}
