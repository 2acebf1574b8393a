// Package challenge is the authoritative registry of in-flight challenge
// offers. At most one offer per unordered peer pair is pending at a time;
// offers leave the registry as soon as they reach a terminal state.
package challenge

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/DoyleJ11/reflector-lobby/internal/errs"
	"github.com/google/uuid"
)

type State string

const (
	StateNone          State = "none"
	StatePending       State = "pending"
	StateAccepted      State = "accepted"
	StateDeclined      State = "declined"
	StateAutoCancelled State = "auto_cancelled"
	StateAutoResolved  State = "auto_resolved"
)

func (s State) Terminal() bool {
	switch s {
	case StateAccepted, StateDeclined, StateAutoCancelled, StateAutoResolved:
		return true
	}
	return false
}

type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Responder labels for offers resolved by the system rather than a person.
const (
	ResponderAutoCancelled = "System (auto-cancelled)"
	ResponderAutoResolved  = "System (other challenge resolved)"
)

type Offer struct {
	ID         string    `json:"id"`
	CallerID   string    `json:"caller_id"`
	CalleeID   string    `json:"callee_id"`
	CreatedAt  time.Time `json:"created_at"`
	State      State     `json:"state"`
	Responder  string    `json:"responder,omitempty"`
	Origin     Origin    `json:"origin,omitempty"`
	ResolvedAt time.Time `json:"resolved_at,omitzero"`

	seq uint64
}

func (o Offer) Involves(peerID string) bool {
	return o.CallerID == peerID || o.CalleeID == peerID
}

// Counterpart returns the other endpoint of the offer, or "" if peerID is not one.
func (o Offer) Counterpart(peerID string) string {
	switch peerID {
	case o.CallerID:
		return o.CalleeID
	case o.CalleeID:
		return o.CallerID
	}
	return ""
}

// Transition records one state change. Before.State is StateNone for a newly
// created offer.
type Transition struct {
	Before Offer
	After  Offer
}

// Reachability answers whether a peer can currently take part in a challenge.
type Reachability interface {
	IsReachable(peerID string) bool
}

type pair struct{ lo, hi string }

func pairOf(a, b string) pair {
	if a > b {
		a, b = b, a
	}
	return pair{lo: a, hi: b}
}

type Registry struct {
	reach   Reachability
	now     func() time.Time
	newID   func() string
	seq     uint64
	pending map[string]Offer
	pairs   map[pair]string

	// ids of offers that reached a terminal state; they are never reopened
	finished map[string]struct{}
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithIDs(newID func() string) Option {
	return func(r *Registry) { r.newID = newID }
}

func NewRegistry(reach Reachability, opts ...Option) *Registry {
	r := &Registry{
		reach:   reach,
		now:     time.Now,
		newID:   uuid.NewString,
		pending: make(map[string]Offer),
		pairs:   make(map[pair]string),

		finished: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Request creates a pending offer from caller to callee. id may be empty, in
// which case one is generated.
func (r *Registry) Request(id, callerID, calleeID string) (Transition, error) {
	callerID, calleeID = strings.TrimSpace(callerID), strings.TrimSpace(calleeID)
	if callerID == "" || calleeID == "" {
		return Transition{}, fmt.Errorf("challenge needs caller and callee: %w", errs.ErrValidation)
	}
	if callerID == calleeID {
		return Transition{}, fmt.Errorf("%q cannot challenge themselves: %w", callerID, errs.ErrValidation)
	}
	if id == "" {
		id = r.newID()
	}
	if _, ok := r.pending[id]; ok {
		return Transition{}, fmt.Errorf("offer %s already pending: %w", id, errs.ErrConflict)
	}
	if r.Finished(id) {
		return Transition{}, fmt.Errorf("offer %s already resolved: %w", id, errs.ErrConflict)
	}
	if existing, ok := r.pairs[pairOf(callerID, calleeID)]; ok {
		return Transition{}, fmt.Errorf("%s and %s already have offer %s: %w", callerID, calleeID, existing, errs.ErrConflict)
	}
	for _, p := range []string{callerID, calleeID} {
		if r.reach != nil && !r.reach.IsReachable(p) {
			return Transition{}, fmt.Errorf("%s is away: %w", p, errs.ErrUnreachable)
		}
	}

	r.seq++
	o := Offer{
		ID:        id,
		CallerID:  callerID,
		CalleeID:  calleeID,
		CreatedAt: r.now(),
		State:     StatePending,
		seq:       r.seq,
	}
	r.put(o)

	before := o
	before.State = StateNone
	return Transition{Before: before, After: o}, nil
}

// Accept resolves offerID as accepted by responder. Every other pending offer
// touching either endpoint is auto-resolved; those transitions follow the
// accepted one in the returned slice.
func (r *Registry) Accept(offerID, responder string) ([]Transition, error) {
	o, ok := r.pending[offerID]
	if !ok {
		return nil, fmt.Errorf("accept %s: %w", offerID, errs.ErrNotFound)
	}

	out := []Transition{r.resolve(o, StateAccepted, responder, "")}
	for _, other := range r.Pending() {
		if other.Involves(o.CallerID) || other.Involves(o.CalleeID) {
			out = append(out, r.resolve(other, StateAutoResolved, ResponderAutoResolved, ""))
		}
	}
	return out, nil
}

func (r *Registry) Decline(offerID, responder string, origin Origin) (Transition, error) {
	o, ok := r.pending[offerID]
	if !ok {
		return Transition{}, fmt.Errorf("decline %s: %w", offerID, errs.ErrNotFound)
	}
	return r.resolve(o, StateDeclined, responder, origin), nil
}

// CancelInvolving auto-cancels every pending offer touching peerID.
func (r *Registry) CancelInvolving(peerID string) []Transition {
	var out []Transition
	for _, o := range r.Pending() {
		if o.Involves(peerID) {
			out = append(out, r.resolve(o, StateAutoCancelled, ResponderAutoCancelled, ""))
		}
	}
	return out
}

// Revert undoes transitions in reverse order, restoring each offer's prior state.
func (r *Registry) Revert(trs []Transition) {
	for i := len(trs) - 1; i >= 0; i-- {
		tr := trs[i]
		if tr.After.State == StatePending {
			r.drop(tr.After)
		}
		if tr.After.State.Terminal() {
			delete(r.finished, tr.After.ID)
		}
		if tr.Before.State == StatePending {
			r.put(tr.Before)
		}
	}
}

// Finished reports whether offerID has already reached a terminal state.
func (r *Registry) Finished(offerID string) bool {
	_, ok := r.finished[offerID]
	return ok
}

func (r *Registry) Get(offerID string) (Offer, bool) {
	o, ok := r.pending[offerID]
	return o, ok
}

func (r *Registry) PendingBetween(a, b string) (Offer, bool) {
	id, ok := r.pairs[pairOf(a, b)]
	if !ok {
		return Offer{}, false
	}
	return r.pending[id], true
}

func (r *Registry) PendingInvolving(peerID string) []Offer {
	var out []Offer
	for _, o := range r.Pending() {
		if o.Involves(peerID) {
			out = append(out, o)
		}
	}
	return out
}

// Pending lists every pending offer, oldest first.
func (r *Registry) Pending() []Offer {
	out := make([]Offer, 0, len(r.pending))
	for _, o := range r.pending {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b Offer) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}

func (r *Registry) Len() int { return len(r.pending) }

func (r *Registry) Reset() {
	clear(r.pending)
	clear(r.pairs)
	clear(r.finished)
}

func (r *Registry) resolve(o Offer, to State, responder string, origin Origin) Transition {
	before := o
	r.drop(o)
	r.finished[o.ID] = struct{}{}
	o.State = to
	o.Responder = responder
	o.Origin = origin
	o.ResolvedAt = r.now()
	return Transition{Before: before, After: o}
}

func (r *Registry) put(o Offer) {
	r.pending[o.ID] = o
	r.pairs[pairOf(o.CallerID, o.CalleeID)] = o.ID
}

func (r *Registry) drop(o Offer) {
	delete(r.pending, o.ID)
	delete(r.pairs, pairOf(o.CallerID, o.CalleeID))
}
