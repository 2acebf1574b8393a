package lobby

import (
	"math/rand"
	"testing"
	"time"

	"github.com/DoyleJ11/reflector-lobby/internal/challenge"
	"github.com/DoyleJ11/reflector-lobby/internal/ledger"
	"github.com/DoyleJ11/reflector-lobby/internal/presence"
	"github.com/DoyleJ11/reflector-lobby/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestReconciler(self string, capacity int) *reconciler {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return ts }
	tracker := presence.NewTracker(self, now)
	return &reconciler{
		self:     self,
		presence: tracker,
		registry: challenge.NewRegistry(tracker, challenge.WithClock(now), challenge.WithIDs(seqIDs())),
		ledger:   ledger.New(capacity, now),
		sig:      signal.Nop{},
		sink:     nopSink{},
		log:      zap.NewNop(),
	}
}

func TestReconciler_DoubleDeclineMutatesLedgerOnce(t *testing.T) {
	r := newTestReconciler("B", 0)
	_, err := r.handle(ChallengeSent{OfferID: "X1", CallerID: "A", CalleeID: "B"})
	require.NoError(t, err)

	require.NoError(t, r.declineChallenge("X1"))
	rev := r.ledger.Revision()

	changed, err := r.handle(ChallengeDeclined{OfferID: "X1", Origin: challenge.OriginRemote})
	assert.False(t, changed)
	assert.Error(t, err)
	assert.Equal(t, rev, r.ledger.Revision())
}

func TestReconciler_ReplayedChallengeAfterDeclineIsIgnored(t *testing.T) {
	r := newTestReconciler("B", 0)
	sent := ChallengeSent{OfferID: "X1", CallerID: "A", CalleeID: "B"}
	_, err := r.handle(sent)
	require.NoError(t, err)
	require.NoError(t, r.declineChallenge("X1"))
	rev := r.ledger.Revision()

	changed, err := r.handle(sent)
	assert.False(t, changed)
	assert.NoError(t, err)

	_, pending := r.registry.Get("X1")
	assert.False(t, pending)
	assert.Equal(t, rev, r.ledger.Revision())

	requests := 0
	for _, m := range r.ledger.Messages() {
		if m.RelatedOfferID == "X1" && m.Kind == ledger.KindChallengeRequest {
			requests++
			assert.True(t, m.Declined)
		}
	}
	assert.Equal(t, 1, requests)
}

func TestReconciler_TrimmedMessageGetsFallbackEntry(t *testing.T) {
	r := newTestReconciler("A", 2)
	id, err := r.requestChallenge("B")
	require.NoError(t, err)
	_, _ = r.handle(ChatReceived{SenderID: "C", Text: "one"})
	_, _ = r.handle(ChatReceived{SenderID: "C", Text: "two"})
	_, found := r.ledger.FindByOfferID(id)
	require.False(t, found)

	_, err = r.handle(ChallengeAccepted{OfferID: id})
	require.NoError(t, err)

	m, found := r.ledger.FindByOfferID(id)
	require.True(t, found)
	assert.Equal(t, ledger.KindChallengeAccepted, m.Kind)
	assert.Equal(t, SystemSender, m.SenderID)
	assert.True(t, m.Accepted)
	assert.Equal(t, 2, r.ledger.Len())
}

// Random event sequences must never leave two pending offers for one pair, and
// every ledger entry must agree with the registry about its offer.
func TestReconciler_RandomSequencesKeepTablesConsistent(t *testing.T) {
	peers := []string{"A", "B", "C", "D", "E"}
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 50; round++ {
		r := newTestReconciler("A", 0)
		var known []string

		for step := 0; step < 200; step++ {
			p, q := peers[rng.Intn(len(peers))], peers[rng.Intn(len(peers))]
			pick := func() string {
				if len(known) == 0 || rng.Intn(6) == 0 {
					return "missing"
				}
				return known[rng.Intn(len(known))]
			}

			switch rng.Intn(9) {
			case 0, 1:
				if o, err := r.openChallenge("", p, q); err == nil {
					known = append(known, o.ID)
				}
			case 2:
				if id, err := r.requestChallenge(q); err == nil {
					known = append(known, id)
				}
			case 3:
				_, _ = r.handle(ChallengeAccepted{OfferID: pick()})
			case 4:
				_, _ = r.handle(ChallengeDeclined{OfferID: pick(), Origin: challenge.OriginRemote})
			case 5:
				_ = r.declineChallenge(pick())
			case 6:
				_, _ = r.handle(PresenceChanged{PeerID: p, Away: rng.Intn(2) == 0})
			case 7:
				_, _ = r.handle(PeerEnteredMatch{PeerID: p})
			case 8:
				_, _ = r.handle(MatchEnded{PeerID: p})
			}

			assertConsistent(t, r)
		}
	}
}

func assertConsistent(t *testing.T, r *reconciler) {
	t.Helper()
	pairs := map[[2]string]int{}
	pending := map[string]bool{}
	for _, o := range r.registry.Pending() {
		key := [2]string{o.CallerID, o.CalleeID}
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		pairs[key]++
		require.LessOrEqual(t, pairs[key], 1, "two pending offers for %v", key)
		pending[o.ID] = true
	}

	for _, m := range r.ledger.Messages() {
		if m.Kind != ledger.KindChallengeRequest {
			continue
		}
		if pending[m.RelatedOfferID] {
			require.False(t, m.Resolved(), "pending offer %s shows an outcome", m.RelatedOfferID)
		} else {
			require.True(t, m.Resolved(), "resolved offer %s still looks pending", m.RelatedOfferID)
			require.NotEqual(t, m.Accepted, m.Declined)
		}
	}
}
