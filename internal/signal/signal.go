// Package signal carries outbound signals from a lobby session to the
// transport. The coordinator only sees the Signaler interface; the websocket
// layer drains an Outbox.
package signal

import (
	"sync"

	"go.uber.org/zap"
)

type Type string

const (
	TypeChallenge Type = "challenge"
	TypeAnswer    Type = "answer"
	TypeDecline   Type = "decline"
	TypeChat      Type = "chat"
)

type Signal struct {
	Type    Type   `json:"type"`
	To      string `json:"to,omitempty"`
	From    string `json:"from"`
	OfferID string `json:"offer_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Signaler must not block: the coordinator calls it from its event loop.
type Signaler interface {
	Send(s Signal)
}

// Nop discards every signal.
type Nop struct{}

func (Nop) Send(Signal) {}

// Outbox is a bounded, non-blocking Signaler. When full, new signals are
// dropped and logged.
type Outbox struct {
	ch     chan Signal
	log    *zap.Logger
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

func NewOutbox(size int, log *zap.Logger) *Outbox {
	if log == nil {
		log = zap.NewNop()
	}
	return &Outbox{ch: make(chan Signal, size), log: log}
}

func (o *Outbox) Send(s Signal) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return
	}
	select {
	case o.ch <- s:
	default:
		o.log.Warn("signal outbox full, dropping",
			zap.String("type", string(s.Type)),
			zap.String("to", s.To),
			zap.String("offer_id", s.OfferID))
	}
}

// C is drained by whichever transport connection currently owns the session.
func (o *Outbox) C() <-chan Signal { return o.ch }

func (o *Outbox) Close() {
	o.once.Do(func() {
		o.mu.Lock()
		o.closed = true
		close(o.ch)
		o.mu.Unlock()
	})
}
