// Package lobby hosts the coordinator that reconciles challenge offers, the
// message ledger and presence for one local user. All mutations go through a
// single goroutine reading the inbox, so every event is applied completely
// before the next one is looked at.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/reflector-lobby/internal/challenge"
	"github.com/DoyleJ11/reflector-lobby/internal/errs"
	"github.com/DoyleJ11/reflector-lobby/internal/ledger"
	"github.com/DoyleJ11/reflector-lobby/internal/presence"
	"github.com/DoyleJ11/reflector-lobby/internal/signal"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("lobby closed")

type Config struct {
	SelfID         string
	InboxSize      int
	LedgerCapacity int
	Signaler       signal.Signaler
	Sink           OutcomeSink
	Logger         *zap.Logger
	Now            func() time.Time
	NewOfferID     func() string
}

type Coordinator struct {
	inbox   chan Msg
	core    *reconciler
	version int
	clients map[string]chan Snapshot
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(parent context.Context, cfg Config) (*Coordinator, error) {
	if cfg.SelfID == "" {
		return nil, fmt.Errorf("lobby needs a local user id: %w", errs.ErrValidation)
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 64
	}
	if cfg.Signaler == nil {
		cfg.Signaler = signal.Nop{}
	}
	if cfg.Sink == nil {
		cfg.Sink = nopSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	tracker := presence.NewTracker(cfg.SelfID, cfg.Now)
	opts := []challenge.Option{challenge.WithClock(cfg.Now)}
	if cfg.NewOfferID != nil {
		opts = append(opts, challenge.WithIDs(cfg.NewOfferID))
	}

	ctx, cancel := context.WithCancel(parent)
	c := &Coordinator{
		inbox: make(chan Msg, cfg.InboxSize),
		core: &reconciler{
			self:     cfg.SelfID,
			presence: tracker,
			registry: challenge.NewRegistry(tracker, opts...),
			ledger:   ledger.New(cfg.LedgerCapacity, cfg.Now),
			sig:      cfg.Signaler,
			sink:     cfg.Sink,
			log:      cfg.Logger.With(zap.String("user", cfg.SelfID)),
		},
		clients: make(map[string]chan Snapshot),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go c.loop()
	return c, nil
}

func (c *Coordinator) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return

		case m := <-c.inbox:
			switch msg := m.(type) {
			case Subscribe:
				// Register client + send current snapshot immediately
				if old, ok := c.clients[msg.ClientID]; ok && old != msg.Outbox {
					close(old)
				}
				c.clients[msg.ClientID] = msg.Outbox
				select {
				case msg.Outbox <- c.core.snapshot(c.version):
				default:
					close(msg.Outbox)
					delete(c.clients, msg.ClientID)
				}

			case Unsubscribe:
				delete(c.clients, msg.ClientID)

			case GetState:
				msg.Reply <- View{NumClients: len(c.clients), Snapshot: c.core.snapshot(c.version)}

			case RequestChallenge:
				id, err := c.core.requestChallenge(msg.CalleeID)
				c.reply(msg.Reply, Result{OfferID: id, Err: err})

			case AcceptChallenge:
				err := c.core.acceptChallenge(msg.OfferID)
				c.reply(msg.Reply, Result{OfferID: msg.OfferID, Err: err})

			case DeclineChallenge:
				err := c.core.declineChallenge(msg.OfferID)
				c.reply(msg.Reply, Result{OfferID: msg.OfferID, Err: err})

			case SetAway:
				_, err := c.core.awayChanged(c.core.self, msg.Away)
				c.reply(msg.Reply, Result{Err: err})

			case SendChat:
				err := c.core.sendChat(msg.Text)
				c.reply(msg.Reply, Result{Err: err})

			case Reset:
				c.core.reset()
				c.commit()

			case Shutdown:
				c.shutdown()
				return

			default:
				changed, err := c.core.handle(m)
				if err != nil {
					// Remote state may legitimately be ahead or behind ours.
					c.core.log.Debug("absorbed event", zap.String("event", fmt.Sprintf("%T", m)), zap.Error(err))
				}
				if changed {
					c.commit()
				}
			}
		}
	}
}

func (c *Coordinator) reply(ch chan Result, res Result) {
	if res.Err == nil {
		c.commit()
	}
	if ch == nil {
		return
	}
	select {
	case ch <- res:
	default:
		c.core.log.Warn("command reply dropped; reply channel must be buffered")
	}
}

func (c *Coordinator) commit() {
	c.version++
	c.broadcast(c.core.snapshot(c.version))
}

func (c *Coordinator) shutdown() {
	for id, ch := range c.clients {
		close(ch) // Tell client no more snapshots
		delete(c.clients, id)
	}
	c.cancel()
}

func (c *Coordinator) broadcast(snap Snapshot) {
	for id, ch := range c.clients {
		select {
		case ch <- snap:
			//ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(c.clients, id)
		}
	}
}

// Inbox exposes the single entry point for transport events and commands.
func (c *Coordinator) Inbox() chan<- Msg { return c.inbox }

// Done is closed once the loop has exited.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

func (c *Coordinator) SelfID() string { return c.core.self }

// Deliver enqueues m, giving up when ctx ends or the coordinator stops.
func (c *Coordinator) Deliver(ctx context.Context, m Msg) error {
	select {
	case c.inbox <- m:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) command(ctx context.Context, m Msg, reply chan Result) (Result, error) {
	if err := c.Deliver(ctx, m); err != nil {
		return Result{}, err
	}
	select {
	case res := <-reply:
		return res, res.Err
	case <-c.done:
		return Result{}, ErrClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// RequestChallenge challenges calleeID on behalf of the local user and
// returns the new offer id.
func (c *Coordinator) RequestChallenge(ctx context.Context, calleeID string) (string, error) {
	reply := make(chan Result, 1)
	res, err := c.command(ctx, RequestChallenge{CalleeID: calleeID, Reply: reply}, reply)
	return res.OfferID, err
}

func (c *Coordinator) AcceptChallenge(ctx context.Context, offerID string) error {
	reply := make(chan Result, 1)
	_, err := c.command(ctx, AcceptChallenge{OfferID: offerID, Reply: reply}, reply)
	return err
}

func (c *Coordinator) DeclineChallenge(ctx context.Context, offerID string) error {
	reply := make(chan Result, 1)
	_, err := c.command(ctx, DeclineChallenge{OfferID: offerID, Reply: reply}, reply)
	return err
}

func (c *Coordinator) SetAway(ctx context.Context, away bool) error {
	reply := make(chan Result, 1)
	_, err := c.command(ctx, SetAway{Away: away, Reply: reply}, reply)
	return err
}

func (c *Coordinator) SendChat(ctx context.Context, text string) error {
	reply := make(chan Result, 1)
	_, err := c.command(ctx, SendChat{Text: text, Reply: reply}, reply)
	return err
}

func (c *Coordinator) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := c.Deliver(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-c.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (c *Coordinator) Messages(ctx context.Context) ([]ledger.Message, error) {
	v, err := c.View(ctx)
	return v.Messages, err
}

// PendingWith returns the pending offer between the local user and peerID, if any.
func (c *Coordinator) PendingWith(ctx context.Context, peerID string) (challenge.Offer, bool, error) {
	v, err := c.View(ctx)
	if err != nil {
		return challenge.Offer{}, false, err
	}
	for _, o := range v.Pending {
		if o.Involves(c.core.self) && o.Involves(peerID) && peerID != c.core.self {
			return o, true, nil
		}
	}
	return challenge.Offer{}, false, nil
}

func (c *Coordinator) Presence(ctx context.Context, peerID string) (presence.Presence, error) {
	v, err := c.View(ctx)
	if err != nil {
		return presence.Presence{}, err
	}
	p, ok := v.Presence[peerID]
	if !ok {
		return presence.Presence{}, fmt.Errorf("presence for %s: %w", peerID, errs.ErrNotFound)
	}
	return p, nil
}
