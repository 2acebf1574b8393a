// Package ws adapts websocket connections to lobby sessions: the UI socket
// streams snapshots and accepts commands, the signal socket carries transport
// events in and outbound signals out.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/DoyleJ11/reflector-lobby/internal/errs"
	"github.com/DoyleJ11/reflector-lobby/internal/hub"
	"github.com/DoyleJ11/reflector-lobby/internal/lobby"
	"github.com/DoyleJ11/reflector-lobby/internal/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	writeTimeout   = 3 * time.Second
	commandTimeout = 5 * time.Second
)

// UIHandler serves /ws/ui?user=<id>.
func UIHandler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(w, r, h)
		if !ok {
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Debug("ui accept", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		clog := log.With(zap.String("user", s.UserID), zap.String("client", clientID))
		out := make(chan lobby.Snapshot, 8)
		if err := s.Lobby.Deliver(r.Context(), lobby.Subscribe{ClientID: clientID, Outbox: out}); err != nil {
			conn.Close(websocket.StatusGoingAway, "lobby closed")
			return
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = s.Lobby.Deliver(ctx, lobby.Unsubscribe{ClientID: clientID})
		}()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case <-writeCtx.Done():
					return
				case snap, ok := <-out:
					if !ok {
						// Lobby shut down or dropped us for being slow.
						conn.Close(websocket.StatusGoingAway, "lobby closed")
						return
					}
					if err := writeJSON(writeCtx, conn, types.SnapshotMessage(snap)); err != nil {
						clog.Debug("snapshot write", zap.Error(err))
					}
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					clog.Debug("ui read", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = writeJSON(r.Context(), conn, types.ErrorMessage("", fmt.Errorf("bad json: %w", errs.ErrValidation)))
				continue
			}

			ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
			res := Dispatch(ctx, s.Lobby, cm)
			cancel()
			_ = writeJSON(r.Context(), conn, types.ResultMessage(cm.Type, res))
		}
	}
}

// SignalHandler serves /ws/signal?user=<id>. Only one signal connection
// should be open per session; concurrent ones share the outbox.
func SignalHandler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(w, r, h)
		if !ok {
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Debug("signal accept", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		sessLog := log.With(zap.String("user", s.UserID))

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case <-writeCtx.Done():
					return
				case sig, ok := <-s.Outbox.C():
					if !ok {
						conn.Close(websocket.StatusGoingAway, "session closed")
						return
					}
					if err := writeJSON(writeCtx, conn, sig); err != nil {
						sessLog.Warn("signal write", zap.String("type", string(sig.Type)), zap.Error(err))
					}
				}
			}
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}

			var ev types.TransportEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				_ = writeJSON(r.Context(), conn, types.ErrorMessage("", fmt.Errorf("bad json: %w", errs.ErrValidation)))
				continue
			}
			m, err := ev.ToMsg()
			if err != nil {
				_ = writeJSON(r.Context(), conn, types.ErrorMessage(ev.Type, err))
				continue
			}
			if err := s.Lobby.Deliver(r.Context(), m); err != nil {
				sessLog.Info("deliver transport event", zap.String("event", ev.Type), zap.Error(err))
				return
			}
		}
	}
}

// Dispatch runs one UI command against the session's coordinator.
func Dispatch(ctx context.Context, lb *lobby.Coordinator, cm types.ClientMessage) lobby.Result {
	switch cm.Type {
	case "RequestChallenge":
		id, err := lb.RequestChallenge(ctx, cm.CalleeID)
		return lobby.Result{OfferID: id, Err: err}
	case "AcceptChallenge":
		return lobby.Result{OfferID: cm.OfferID, Err: lb.AcceptChallenge(ctx, cm.OfferID)}
	case "DeclineChallenge":
		return lobby.Result{OfferID: cm.OfferID, Err: lb.DeclineChallenge(ctx, cm.OfferID)}
	case "SetAway":
		return lobby.Result{Err: lb.SetAway(ctx, cm.Away)}
	case "SendChat":
		return lobby.Result{Err: lb.SendChat(ctx, cm.Text)}
	default:
		return lobby.Result{Err: fmt.Errorf("unknown type %q: %w", cm.Type, errs.ErrValidation)}
	}
}

func lookup(w http.ResponseWriter, r *http.Request, h *hub.Hub) (*hub.Session, bool) {
	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, "missing user", http.StatusBadRequest)
		return nil, false
	}
	s, err := h.Get(r.Context(), user)
	if err != nil {
		http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
		return nil, false
	}
	if s == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	return s, true
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
