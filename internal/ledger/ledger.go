// Package ledger keeps the ordered list of user-visible lobby messages.
// Entries are only ever appended or patched in place; their relative order
// never changes.
package ledger

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/DoyleJ11/reflector-lobby/internal/challenge"
	"github.com/DoyleJ11/reflector-lobby/internal/errs"
)

type Kind string

const (
	KindChat              Kind = "chat"
	KindChallengeRequest  Kind = "challenge-request"
	KindChallengeAccepted Kind = "challenge-accepted"
	KindChallengeDeclined Kind = "challenge-declined"
)

func (k Kind) valid() bool {
	switch k {
	case KindChat, KindChallengeRequest, KindChallengeAccepted, KindChallengeDeclined:
		return true
	}
	return false
}

type Message struct {
	ID             uint64          `json:"id"`
	SenderID       string          `json:"sender_id"`
	Kind           Kind            `json:"kind"`
	Text           string          `json:"text"`
	RelatedOfferID string          `json:"related_offer_id,omitempty"`
	Accepted       bool            `json:"accepted"`
	Declined       bool            `json:"declined"`
	Outcome        challenge.State `json:"outcome,omitempty"`
	Responder      string          `json:"responder,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Resolved reports whether a challenge message already shows an outcome.
func (m Message) Resolved() bool { return m.Accepted || m.Declined }

// Patch describes an in-place update. Zero fields leave the message unchanged;
// Accept and Decline can only raise a flag, never clear it.
type Patch struct {
	Accept    bool
	Decline   bool
	Outcome   challenge.State
	Responder string
}

type Ledger struct {
	msgs     []Message
	lastID   uint64
	capacity int
	rev      uint64
	now      func() time.Time
}

// New returns a ledger holding at most capacity messages; capacity <= 0 means
// unbounded.
func New(capacity int, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{capacity: capacity, now: now}
}

// Append adds m at the end and returns it with its id assigned. A caller
// supplied id must be above every id handed out so far.
func (l *Ledger) Append(m Message) (Message, error) {
	if err := Validate(m); err != nil {
		return Message{}, err
	}
	switch {
	case m.ID == 0:
		m.ID = l.lastID + 1
	case m.ID <= l.lastID:
		return Message{}, fmt.Errorf("message id %d not above %d: %w", m.ID, l.lastID, errs.ErrValidation)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = l.now()
	}
	l.lastID = m.ID
	l.msgs = append(l.msgs, m)
	if l.capacity > 0 && len(l.msgs) > l.capacity {
		l.msgs = slices.Delete(l.msgs, 0, len(l.msgs)-l.capacity)
	}
	l.rev++
	return m, nil
}

// UpdateByOfferID patches the most recent message linked to offerID. It
// reports whether anything changed; a missing message is not an error.
func (l *Ledger) UpdateByOfferID(offerID string, p Patch) bool {
	if offerID == "" {
		return false
	}
	for i := len(l.msgs) - 1; i >= 0; i-- {
		if l.msgs[i].RelatedOfferID != offerID {
			continue
		}
		next, changed := apply(l.msgs[i], p)
		if changed {
			l.msgs[i] = next
			l.rev++
		}
		return changed
	}
	return false
}

func apply(m Message, p Patch) (Message, bool) {
	if (p.Accept || p.Decline) && m.Resolved() {
		return m, false
	}
	before := m
	if p.Accept {
		m.Accepted = true
	}
	if p.Decline {
		m.Declined = true
	}
	if p.Outcome != "" {
		m.Outcome = p.Outcome
	}
	if p.Responder != "" {
		m.Responder = p.Responder
	}
	return m, m != before
}

func (l *Ledger) FindByOfferID(offerID string) (Message, bool) {
	for i := len(l.msgs) - 1; i >= 0; i-- {
		if l.msgs[i].RelatedOfferID == offerID {
			return l.msgs[i], true
		}
	}
	return Message{}, false
}

// IndexOf returns the display position of message id, or -1.
func (l *Ledger) IndexOf(id uint64) int {
	return slices.IndexFunc(l.msgs, func(m Message) bool { return m.ID == id })
}

// Messages returns a copy of the ledger in display order.
func (l *Ledger) Messages() []Message {
	return slices.Clone(l.msgs)
}

func (l *Ledger) Len() int { return len(l.msgs) }

// Revision counts mutations; it changes whenever an entry is added or patched.
func (l *Ledger) Revision() uint64 { return l.rev }

// Clear drops every entry. Ids keep increasing afterwards.
func (l *Ledger) Clear() {
	l.msgs = nil
	l.rev++
}

// Validate reports whether m could be appended, ignoring its id.
func Validate(m Message) error {
	if strings.TrimSpace(m.SenderID) == "" {
		return fmt.Errorf("message without sender: %w", errs.ErrValidation)
	}
	if !m.Kind.valid() {
		return fmt.Errorf("message kind %q: %w", m.Kind, errs.ErrValidation)
	}
	if m.Kind == KindChat && strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("empty chat message: %w", errs.ErrValidation)
	}
	if m.Kind != KindChat && m.RelatedOfferID == "" {
		return fmt.Errorf("%s message without offer: %w", m.Kind, errs.ErrValidation)
	}
	return nil
}
