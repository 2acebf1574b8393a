package lobby

import (
	"errors"
	"fmt"
	"strings"

	"github.com/DoyleJ11/reflector-lobby/internal/challenge"
	"github.com/DoyleJ11/reflector-lobby/internal/errs"
	"github.com/DoyleJ11/reflector-lobby/internal/ledger"
	"github.com/DoyleJ11/reflector-lobby/internal/presence"
	"github.com/DoyleJ11/reflector-lobby/internal/signal"
	"go.uber.org/zap"
)

// SystemSender is the sender id of ledger entries written by the lobby itself.
const SystemSender = "system"

// OutcomeSink receives every offer that reaches a terminal state. It must not block.
type OutcomeSink interface {
	Record(sessionUser string, o challenge.Offer)
}

type nopSink struct{}

func (nopSink) Record(string, challenge.Offer) {}

// reconciler applies one event at a time to the three tables. It is not safe
// for concurrent use; the Coordinator loop is its only caller.
type reconciler struct {
	self     string
	presence *presence.Tracker
	registry *challenge.Registry
	ledger   *ledger.Ledger
	sig      signal.Signaler
	sink     OutcomeSink
	log      *zap.Logger
}

// ledgerOp is the ledger side of one registry transition: patch the linked
// message, or append fallback if that message is gone.
type ledgerOp struct {
	offerID  string
	patch    ledger.Patch
	fallback ledger.Message
}

func (r *reconciler) handle(m Msg) (changed bool, err error) {
	switch msg := m.(type) {
	case ChallengeSent:
		return r.challengeSent(msg)
	case ChallengeAccepted:
		return r.remoteAccept(msg.OfferID)
	case ChallengeDeclined:
		return r.remoteDecline(msg)
	case PresenceChanged:
		return r.awayChanged(msg.PeerID, msg.Away)
	case PeerEnteredMatch:
		if err := r.presence.SetInMatch(msg.PeerID, true); err != nil {
			return false, err
		}
		return true, r.cancelInvolving(msg.PeerID)
	case MatchEnded:
		if err := r.presence.SetInMatch(msg.PeerID, false); err != nil {
			return false, err
		}
		return true, r.cancelInvolving(msg.PeerID)
	case PeerJoined:
		if err := r.presence.Join(msg.PeerID, msg.DisplayName, msg.CountryCode); err != nil {
			return false, err
		}
		return true, nil
	case PeerLeft:
		if err := r.cancelInvolving(msg.PeerID); err != nil {
			return true, err
		}
		r.presence.Leave(msg.PeerID)
		return true, nil
	case PingSample:
		err := r.presence.RecordPing(msg.PeerID, presence.Sample{MS: msg.MS, Jitter: msg.Jitter, CountryCode: msg.CountryCode})
		return err == nil, err
	case ChatReceived:
		_, err := r.ledger.Append(ledger.Message{SenderID: msg.SenderID, Kind: ledger.KindChat, Text: msg.Text})
		return err == nil, err
	default:
		return false, fmt.Errorf("unsupported event %T: %w", m, errs.ErrValidation)
	}
}

func (r *reconciler) challengeSent(msg ChallengeSent) (bool, error) {
	if msg.OfferID != "" {
		if o, ok := r.registry.Get(msg.OfferID); ok && o.CallerID == msg.CallerID && o.CalleeID == msg.CalleeID {
			return false, nil
		}
		if r.registry.Finished(msg.OfferID) {
			return false, nil
		}
	}
	_, err := r.openChallenge(msg.OfferID, msg.CallerID, msg.CalleeID)
	if errors.Is(err, errs.ErrUnreachable) && msg.CalleeID == r.self && r.presence.SelfAway() {
		r.sig.Send(signal.Signal{Type: signal.TypeDecline, To: msg.CallerID, From: r.self, OfferID: msg.OfferID, Reason: "away"})
	}
	return err == nil, err
}

func (r *reconciler) requestChallenge(calleeID string) (string, error) {
	o, err := r.openChallenge("", r.self, calleeID)
	if err != nil {
		return "", err
	}
	r.sig.Send(signal.Signal{Type: signal.TypeChallenge, To: calleeID, From: r.self, OfferID: o.ID})
	return o.ID, nil
}

// openChallenge creates the offer and its request message as one unit.
func (r *reconciler) openChallenge(offerID, callerID, calleeID string) (challenge.Offer, error) {
	tr, err := r.registry.Request(offerID, callerID, calleeID)
	if err != nil {
		return challenge.Offer{}, err
	}
	o := tr.After
	_, err = r.ledger.Append(ledger.Message{
		SenderID:       o.CallerID,
		Kind:           ledger.KindChallengeRequest,
		Text:           fmt.Sprintf("%s challenged %s", r.name(o.CallerID), r.name(o.CalleeID)),
		RelatedOfferID: o.ID,
	})
	if err != nil {
		r.registry.Revert([]challenge.Transition{tr})
		return challenge.Offer{}, err
	}
	return o, nil
}

func (r *reconciler) acceptChallenge(offerID string) error {
	o, ok := r.registry.Get(offerID)
	if !ok {
		return fmt.Errorf("accept %s: %w", offerID, errs.ErrNotFound)
	}
	if o.CalleeID != r.self {
		return fmt.Errorf("only %s can accept %s: %w", o.CalleeID, offerID, errs.ErrValidation)
	}
	if err := r.accept(offerID, r.self); err != nil {
		return err
	}
	r.sig.Send(signal.Signal{Type: signal.TypeAnswer, To: o.CallerID, From: r.self, OfferID: offerID})
	return nil
}

func (r *reconciler) remoteAccept(offerID string) (bool, error) {
	o, ok := r.registry.Get(offerID)
	if !ok {
		return false, fmt.Errorf("accept %s: %w", offerID, errs.ErrNotFound)
	}
	return true, r.accept(offerID, o.CalleeID)
}

func (r *reconciler) accept(offerID, responder string) error {
	trs, err := r.registry.Accept(offerID, responder)
	if err != nil {
		return err
	}
	return r.settle(trs)
}

func (r *reconciler) declineChallenge(offerID string) error {
	o, ok := r.registry.Get(offerID)
	if !ok {
		return fmt.Errorf("decline %s: %w", offerID, errs.ErrNotFound)
	}
	if !o.Involves(r.self) {
		return fmt.Errorf("%s is not part of %s: %w", r.self, offerID, errs.ErrValidation)
	}
	if err := r.decline(offerID, r.self, challenge.OriginLocal); err != nil {
		return err
	}
	r.sig.Send(signal.Signal{Type: signal.TypeDecline, To: o.Counterpart(r.self), From: r.self, OfferID: offerID})
	return nil
}

func (r *reconciler) remoteDecline(msg ChallengeDeclined) (bool, error) {
	offerID, responder := msg.OfferID, msg.PeerID
	if offerID == "" && msg.PeerID != "" {
		if o, ok := r.registry.PendingBetween(r.self, msg.PeerID); ok {
			offerID = o.ID
		}
	}
	o, ok := r.registry.Get(offerID)
	if !ok {
		return false, fmt.Errorf("decline %q from %q: %w", msg.OfferID, msg.PeerID, errs.ErrNotFound)
	}
	if responder == "" {
		responder = o.CalleeID
	}
	origin := msg.Origin
	if origin == "" {
		origin = challenge.OriginRemote
	}
	return true, r.decline(offerID, responder, origin)
}

func (r *reconciler) decline(offerID, responder string, origin challenge.Origin) error {
	tr, err := r.registry.Decline(offerID, responder, origin)
	if err != nil {
		return err
	}
	return r.settle([]challenge.Transition{tr})
}

func (r *reconciler) awayChanged(peerID string, away bool) (bool, error) {
	if err := r.presence.SetAway(peerID, away); err != nil {
		return false, err
	}
	if !away {
		return true, nil
	}
	return true, r.cancelInvolving(peerID)
}

func (r *reconciler) cancelInvolving(peerID string) error {
	trs := r.registry.CancelInvolving(peerID)
	if len(trs) == 0 {
		return nil
	}
	return r.settle(trs)
}

func (r *reconciler) sendChat(text string) error {
	m, err := r.ledger.Append(ledger.Message{SenderID: r.self, Kind: ledger.KindChat, Text: strings.TrimSpace(text)})
	if err != nil {
		return err
	}
	r.sig.Send(signal.Signal{Type: signal.TypeChat, From: r.self, Text: m.Text})
	return nil
}

// settle mirrors terminal transitions into the ledger. If the ledger side
// cannot be applied, the registry transitions are rolled back and nothing
// changes.
func (r *reconciler) settle(trs []challenge.Transition) error {
	ops := make([]ledgerOp, 0, len(trs))
	for _, tr := range trs {
		op := r.ledgerOpFor(tr.After)
		if _, found := r.ledger.FindByOfferID(op.offerID); !found {
			if err := ledger.Validate(op.fallback); err != nil {
				r.registry.Revert(trs)
				return fmt.Errorf("settle %s: %w", op.offerID, err)
			}
		}
		ops = append(ops, op)
	}

	for _, op := range ops {
		if _, found := r.ledger.FindByOfferID(op.offerID); found {
			r.ledger.UpdateByOfferID(op.offerID, op.patch)
			continue
		}
		if _, err := r.ledger.Append(op.fallback); err != nil {
			r.log.Error("ledger append after validation", zap.String("offer_id", op.offerID), zap.Error(err))
		}
	}

	for _, tr := range trs {
		o := tr.After
		r.sink.Record(r.self, o)
		r.log.Info("challenge resolved",
			zap.String("offer_id", o.ID),
			zap.String("caller", o.CallerID),
			zap.String("callee", o.CalleeID),
			zap.String("state", string(o.State)),
			zap.String("responder", o.Responder))

		if o.State == challenge.StateAutoResolved || o.State == challenge.StateAutoCancelled {
			if other := o.Counterpart(r.self); other != "" {
				r.sig.Send(signal.Signal{Type: signal.TypeDecline, To: other, From: r.self, OfferID: o.ID, Reason: o.Responder})
			}
		}
	}
	return nil
}

func (r *reconciler) ledgerOpFor(o challenge.Offer) ledgerOp {
	op := ledgerOp{
		offerID: o.ID,
		patch:   ledger.Patch{Outcome: o.State, Responder: o.Responder},
		fallback: ledger.Message{
			SenderID:       SystemSender,
			RelatedOfferID: o.ID,
			Outcome:        o.State,
			Responder:      o.Responder,
		},
	}
	if o.State == challenge.StateAccepted {
		op.patch.Accept = true
		op.fallback.Kind = ledger.KindChallengeAccepted
		op.fallback.Accepted = true
		op.fallback.Text = fmt.Sprintf("%s accepted %s's challenge", r.name(o.CalleeID), r.name(o.CallerID))
		return op
	}
	op.patch.Decline = true
	op.fallback.Kind = ledger.KindChallengeDeclined
	op.fallback.Declined = true
	op.fallback.Text = fmt.Sprintf("challenge between %s and %s declined by %s", r.name(o.CallerID), r.name(o.CalleeID), r.name(o.Responder))
	return op
}

func (r *reconciler) reset() {
	r.registry.Reset()
	r.ledger.Clear()
	r.presence.Reset()
}

func (r *reconciler) snapshot(version int) Snapshot {
	return Snapshot{
		Version:  version,
		Messages: r.ledger.Messages(),
		Pending:  r.registry.Pending(),
		Presence: r.presence.Snapshot(),
	}
}

func (r *reconciler) name(peerID string) string {
	if p, ok := r.presence.Get(peerID); ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return peerID
}
