package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/DoyleJ11/reflector-lobby/internal/errs"
	"github.com/DoyleJ11/reflector-lobby/internal/hub"
	"github.com/DoyleJ11/reflector-lobby/internal/lobby"
	"github.com/DoyleJ11/reflector-lobby/internal/types"
	"github.com/go-chi/chi/v5"
)

type problem struct {
	Code  errs.Code `json:"code"`
	Error string    `json:"error"`
}

func statusOf(err error) int {
	switch errs.CodeOf(err) {
	case errs.CodeConflict:
		return http.StatusConflict
	case errs.CodeUnreachable:
		return http.StatusUnprocessableEntity
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeValidation:
		return http.StatusBadRequest
	}
	if errors.Is(err, lobby.ErrClosed) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), problem{Code: errs.CodeOf(err), Error: err.Error()})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("bad json: %w", errs.ErrValidation)
	}
	return nil
}

// session resolves the {user} URL param to a live session.
func session(w http.ResponseWriter, r *http.Request, h *hub.Hub) (*hub.Session, bool) {
	user := chi.URLParam(r, "user")
	s, err := h.Get(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if s == nil {
		writeError(w, fmt.Errorf("session %s: %w", user, errs.ErrNotFound))
		return nil, false
	}
	return s, true
}

func CreateSession(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID      string `json:"user_id"`
			DisplayName string `json:"display_name"`
		}
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
		req.UserID = strings.TrimSpace(req.UserID)
		if req.UserID == "" {
			writeError(w, fmt.Errorf("user_id is required: %w", errs.ErrValidation))
			return
		}

		s, err := h.Ensure(r.Context(), req.UserID, req.DisplayName)
		if err != nil {
			writeError(w, err)
			return
		}
		if s == nil {
			http.Error(w, "failed to create session", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, struct {
			UserID string `json:"user_id"`
		}{UserID: s.UserID})
	}
}

func DeleteSession(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := chi.URLParam(r, "user")
		ok, err := h.Remove(r.Context(), user)
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			writeError(w, fmt.Errorf("session %s: %w", user, errs.ErrNotFound))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ListMessages(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(w, r, h)
		if !ok {
			return
		}
		msgs, err := s.Lobby.Messages(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

// ListChallenges returns every pending offer, or with ?peer= only the one
// between the local user and that peer.
func ListChallenges(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(w, r, h)
		if !ok {
			return
		}
		if peer := r.URL.Query().Get("peer"); peer != "" {
			o, found, err := s.Lobby.PendingWith(r.Context(), peer)
			if err != nil {
				writeError(w, err)
				return
			}
			if !found {
				writeError(w, fmt.Errorf("pending challenge with %s: %w", peer, errs.ErrNotFound))
				return
			}
			writeJSON(w, http.StatusOK, o)
			return
		}
		v, err := s.Lobby.View(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v.Pending)
	}
}

func GetPresence(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(w, r, h)
		if !ok {
			return
		}
		p, err := s.Lobby.Presence(r.Context(), chi.URLParam(r, "peer"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// PostEvent injects one transport event. It is accepted once queued; the
// coordinator absorbs events that no longer apply.
func PostEvent(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(w, r, h)
		if !ok {
			return
		}
		var ev types.TransportEvent
		if err := decode(r, &ev); err != nil {
			writeError(w, err)
			return
		}
		m, err := ev.ToMsg()
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.Lobby.Deliver(r.Context(), m); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func RequestChallenge(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(w, r, h)
		if !ok {
			return
		}
		var req struct {
			CalleeID string `json:"callee_id"`
		}
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
		id, err := s.Lobby.RequestChallenge(r.Context(), req.CalleeID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, struct {
			OfferID string `json:"offer_id"`
		}{OfferID: id})
	}
}

func AcceptChallenge(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(w, r, h)
		if !ok {
			return
		}
		if err := s.Lobby.AcceptChallenge(r.Context(), chi.URLParam(r, "offer")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func DeclineChallenge(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(w, r, h)
		if !ok {
			return
		}
		if err := s.Lobby.DeclineChallenge(r.Context(), chi.URLParam(r, "offer")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SetAway(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(w, r, h)
		if !ok {
			return
		}
		var req struct {
			Away bool `json:"away"`
		}
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := s.Lobby.SetAway(r.Context(), req.Away); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SendChat(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(w, r, h)
		if !ok {
			return
		}
		var req struct {
			Text string `json:"text"`
		}
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := s.Lobby.SendChat(r.Context(), req.Text); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
