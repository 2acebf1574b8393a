// Package presence tracks away/online flags and latency samples for the peers
// in the current lobby, including the local user.
//
// A Tracker is owned by a single writer (the lobby coordinator) and is not
// safe for concurrent use.
package presence

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/DoyleJ11/reflector-lobby/internal/errs"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// UnstableJitterMS is the jitter at or above which a ping sample is flagged unstable.
const UnstableJitterMS = 6

// MaxPingMS is the largest latency sample accepted.
const MaxPingMS = math.MaxInt32

type Presence struct {
	PeerID      string    `json:"peer_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Away        bool      `json:"away"`
	InMatch     bool      `json:"in_match"`
	HasPing     bool      `json:"has_ping"`
	Ping        int       `json:"ping,omitempty"`
	Unstable    bool      `json:"unstable,omitempty"`
	CountryCode string    `json:"country_code,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Sample is one latency measurement reported by the transport.
type Sample struct {
	MS          float64
	Jitter      float64
	CountryCode string
}

type Tracker struct {
	selfID string
	peers  map[string]Presence
	now    func() time.Time
	upper  cases.Caser
}

func NewTracker(selfID string, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	t := &Tracker{
		selfID: selfID,
		peers:  make(map[string]Presence),
		now:    now,
		upper:  cases.Upper(language.Und),
	}
	t.seedSelf()
	return t
}

func (t *Tracker) SelfID() string { return t.selfID }

func (t *Tracker) seedSelf() {
	t.peers[t.selfID] = Presence{PeerID: t.selfID, UpdatedAt: t.now()}
}

// Join adds a roster entry, or refreshes the name and country of an existing one.
func (t *Tracker) Join(peerID, displayName, countryCode string) error {
	if err := validID(peerID); err != nil {
		return err
	}
	p := t.row(peerID)
	if name := norm.NFC.String(strings.TrimSpace(displayName)); name != "" {
		p.DisplayName = name
	}
	if cc := t.country(countryCode); cc != "" {
		p.CountryCode = cc
	}
	t.store(p)
	return nil
}

// Leave drops a peer's row. The local user's row is never dropped.
func (t *Tracker) Leave(peerID string) {
	if peerID == t.selfID {
		return
	}
	delete(t.peers, peerID)
}

// SetSelfAway sets the local user's away flag.
func (t *Tracker) SetSelfAway(away bool) {
	_ = t.SetAway(t.selfID, away)
}

func (t *Tracker) SelfAway() bool { return t.peers[t.selfID].Away }

func (t *Tracker) SetAway(peerID string, away bool) error {
	if err := validID(peerID); err != nil {
		return err
	}
	p := t.row(peerID)
	p.Away = away
	t.store(p)
	return nil
}

func (t *Tracker) SetInMatch(peerID string, inMatch bool) error {
	if err := validID(peerID); err != nil {
		return err
	}
	p := t.row(peerID)
	p.InMatch = inMatch
	t.store(p)
	return nil
}

// RecordPing upserts the latest latency sample for peerID. Malformed samples
// are rejected and the previous sample is kept.
func (t *Tracker) RecordPing(peerID string, s Sample) error {
	if err := validID(peerID); err != nil {
		return err
	}
	if math.IsNaN(s.MS) || math.IsInf(s.MS, 0) || s.MS < 0 || s.MS > MaxPingMS {
		return fmt.Errorf("ping %v for %q: %w", s.MS, peerID, errs.ErrValidation)
	}
	if math.IsNaN(s.Jitter) || math.IsInf(s.Jitter, 0) || s.Jitter < 0 {
		return fmt.Errorf("jitter %v for %q: %w", s.Jitter, peerID, errs.ErrValidation)
	}

	p := t.row(peerID)
	p.HasPing = true
	p.Ping = int(math.Round(s.MS))
	p.Unstable = s.Jitter >= UnstableJitterMS
	if cc := t.country(s.CountryCode); cc != "" {
		p.CountryCode = cc
	}
	t.store(p)
	return nil
}

// IsReachable reports whether peerID may take part in a challenge. The rule
// is the same for the local user and for remote peers: reachable iff not away.
// Peers without a row default to online.
func (t *Tracker) IsReachable(peerID string) bool {
	p, ok := t.peers[peerID]
	return !ok || !p.Away
}

func (t *Tracker) Get(peerID string) (Presence, bool) {
	p, ok := t.peers[peerID]
	return p, ok
}

func (t *Tracker) Snapshot() map[string]Presence {
	cp := make(map[string]Presence, len(t.peers))
	for k, v := range t.peers {
		cp[k] = v
	}
	return cp
}

// Reset forgets every peer and restores the local user's defaults.
func (t *Tracker) Reset() {
	clear(t.peers)
	t.seedSelf()
}

func (t *Tracker) row(peerID string) Presence {
	if p, ok := t.peers[peerID]; ok {
		return p
	}
	return Presence{PeerID: peerID}
}

func (t *Tracker) store(p Presence) {
	p.UpdatedAt = t.now()
	t.peers[p.PeerID] = p
}

func (t *Tracker) country(cc string) string {
	return t.upper.String(strings.TrimSpace(cc))
}

func validID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("empty peer id: %w", errs.ErrValidation)
	}
	return nil
}
