// Package hub owns one lobby session per signed-in local user.
package hub

import (
	"context"
	"time"

	"github.com/DoyleJ11/reflector-lobby/internal/lobby"
	"github.com/DoyleJ11/reflector-lobby/internal/signal"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const closeTimeout = time.Second

type HubMsg interface{ isHubMsg() }

// Session is a coordinator plus the outbox its transport connection drains.
type Session struct {
	UserID string
	Lobby  *lobby.Coordinator
	Outbox *signal.Outbox
}

type EnsureSession struct {
	UserID      string
	DisplayName string
	Reply       chan *Session
}

type GetSession struct {
	UserID string
	Reply  chan *Session // nil when absent
}

// RemoveSession is logout: the session's state is reset and its loop stopped.
type RemoveSession struct {
	UserID string
	Reply  chan bool
}

type ShutdownHub struct{}

func (EnsureSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

// Options configure every session the hub creates.
type Options struct {
	InboxSize      int
	LedgerCapacity int
	SignalBuffer   int
	Sink           lobby.OutcomeSink
	Logger         *zap.Logger
}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*Session
	opts     Options
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SignalBuffer <= 0 {
		opts.SignalBuffer = 32
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*Session),
		opts:     opts,
		log:      opts.Logger.Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureSession:
				if s := h.sessions[msg.UserID]; s != nil {
					msg.Reply <- s
					break
				}
				s, err := h.open(msg.UserID, msg.DisplayName)
				if err != nil {
					h.log.Warn("open session", zap.String("user", msg.UserID), zap.Error(err))
				}
				msg.Reply <- s // nil on error

			case GetSession:
				msg.Reply <- h.sessions[msg.UserID] // May be nil

			case RemoveSession:
				s, ok := h.sessions[msg.UserID]
				if ok {
					h.close(s)
					delete(h.sessions, msg.UserID)
				}
				if msg.Reply != nil {
					msg.Reply <- ok
				}

			case ShutdownHub:
				h.closeAll()
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) open(userID, displayName string) (*Session, error) {
	log := h.opts.Logger.With(zap.String("user", userID))
	out := signal.NewOutbox(h.opts.SignalBuffer, log)
	lb, err := lobby.New(h.ctx, lobby.Config{
		SelfID:         userID,
		InboxSize:      h.opts.InboxSize,
		LedgerCapacity: h.opts.LedgerCapacity,
		Signaler:       out,
		Sink:           h.opts.Sink,
		Logger:         h.opts.Logger,
	})
	if err != nil {
		out.Close()
		return nil, err
	}
	if displayName != "" {
		lb.Inbox() <- lobby.PeerJoined{PeerID: userID, DisplayName: displayName}
	}
	s := &Session{UserID: userID, Lobby: lb, Outbox: out}
	h.sessions[userID] = s
	h.log.Info("session opened", zap.String("user", userID))
	return s, nil
}

func (h *Hub) close(s *Session) {
	select {
	case <-s.Lobby.Done():
		// Already stopped, e.g. the hub context was cancelled.
	default:
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		err := multierr.Combine(
			s.Lobby.Deliver(ctx, lobby.Reset{}),
			s.Lobby.Deliver(ctx, lobby.Shutdown{}),
		)
		cancel()
		if err != nil {
			h.log.Warn("stop session", zap.String("user", s.UserID), zap.Error(err))
		}
	}
	s.Outbox.Close()
	h.log.Info("session closed", zap.String("user", s.UserID))
}

func (h *Hub) closeAll() {
	for id, s := range h.sessions {
		h.close(s)
		delete(h.sessions, id)
	}
}

// Ensure returns the session for userID, creating it if needed.
func (h *Hub) Ensure(ctx context.Context, userID, displayName string) (*Session, error) {
	reply := make(chan *Session, 1)
	return h.ask(ctx, EnsureSession{UserID: userID, DisplayName: displayName, Reply: reply}, reply)
}

func (h *Hub) Get(ctx context.Context, userID string) (*Session, error) {
	reply := make(chan *Session, 1)
	return h.ask(ctx, GetSession{UserID: userID, Reply: reply}, reply)
}

func (h *Hub) Remove(ctx context.Context, userID string) (bool, error) {
	reply := make(chan bool, 1)
	select {
	case h.inbox <- RemoveSession{UserID: userID, Reply: reply}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case ok := <-reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (h *Hub) ask(ctx context.Context, m HubMsg, reply chan *Session) (*Session, error) {
	select {
	case h.inbox <- m:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
