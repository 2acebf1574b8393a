package lobby

import (
	"github.com/DoyleJ11/reflector-lobby/internal/challenge"
	"github.com/DoyleJ11/reflector-lobby/internal/ledger"
	"github.com/DoyleJ11/reflector-lobby/internal/presence"
)

// Msg is anything the coordinator accepts on its inbox.
type Msg interface{ isLobbyMsg() }

// Inbound transport events. Failures are logged and absorbed.

type ChallengeSent struct {
	OfferID  string // optional; generated when empty
	CallerID string
	CalleeID string
}

type ChallengeAccepted struct {
	OfferID string
}

// ChallengeDeclined names the offer directly, or only the declining peer, in
// which case it resolves to the pending offer between that peer and the local
// user.
type ChallengeDeclined struct {
	OfferID string
	PeerID  string
	Origin  challenge.Origin
}

type PresenceChanged struct {
	PeerID string
	Away   bool
}

type PeerEnteredMatch struct{ PeerID string }

type MatchEnded struct{ PeerID string }

type PeerJoined struct {
	PeerID      string
	DisplayName string
	CountryCode string
}

type PeerLeft struct{ PeerID string }

type PingSample struct {
	PeerID      string
	MS          float64
	Jitter      float64
	CountryCode string
}

type ChatReceived struct {
	SenderID string
	Text     string
}

func (ChallengeSent) isLobbyMsg()     {}
func (ChallengeAccepted) isLobbyMsg() {}
func (ChallengeDeclined) isLobbyMsg() {}
func (PresenceChanged) isLobbyMsg()   {}
func (PeerEnteredMatch) isLobbyMsg()  {}
func (MatchEnded) isLobbyMsg()        {}
func (PeerJoined) isLobbyMsg()        {}
func (PeerLeft) isLobbyMsg()          {}
func (PingSample) isLobbyMsg()        {}
func (ChatReceived) isLobbyMsg()      {}

// Local user commands. Each is answered exactly once on Reply, which must be
// buffered.

type Result struct {
	OfferID string
	Err     error
}

type RequestChallenge struct {
	CalleeID string
	Reply    chan Result
}

type AcceptChallenge struct {
	OfferID string
	Reply   chan Result
}

type DeclineChallenge struct {
	OfferID string
	Reply   chan Result
}

type SetAway struct {
	Away  bool
	Reply chan Result
}

type SendChat struct {
	Text  string
	Reply chan Result
}

func (RequestChallenge) isLobbyMsg() {}
func (AcceptChallenge) isLobbyMsg()  {}
func (DeclineChallenge) isLobbyMsg() {}
func (SetAway) isLobbyMsg()          {}
func (SendChat) isLobbyMsg()         {}

// Lifecycle and reads.

type Subscribe struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
}

type Unsubscribe struct{ ClientID string }

// Reset drops all lobby state, e.g. on logout or lobby change.
type Reset struct{}

type Shutdown struct{}

type GetState struct {
	Reply chan View
}

func (Subscribe) isLobbyMsg()   {}
func (Unsubscribe) isLobbyMsg() {}
func (Reset) isLobbyMsg()       {}
func (Shutdown) isLobbyMsg()    {}
func (GetState) isLobbyMsg()    {}

// Snapshot is an immutable copy of everything the UI renders.
type Snapshot struct {
	Version  int                          `json:"version"`
	Messages []ledger.Message             `json:"messages"`
	Pending  []challenge.Offer            `json:"pending"`
	Presence map[string]presence.Presence `json:"presence"`
}

type View struct {
	NumClients int
	Snapshot
}
