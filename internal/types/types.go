package types

import (
	"fmt"

	"github.com/DoyleJ11/reflector-lobby/internal/challenge"
	"github.com/DoyleJ11/reflector-lobby/internal/errs"
	"github.com/DoyleJ11/reflector-lobby/internal/lobby"
)

// ClientMessage is a command frame sent by the local user's UI.
type ClientMessage struct {
	Type     string `json:"type"` // "RequestChallenge" | "AcceptChallenge" | "DeclineChallenge" | "SetAway" | "SendChat"
	CalleeID string `json:"callee_id,omitempty"`
	OfferID  string `json:"offer_id,omitempty"`
	Away     bool   `json:"away,omitempty"`
	Text     string `json:"text,omitempty"`
}

type ServerMessage struct {
	Type    string          `json:"type"` // "StateSnapshot" | "Result" | "Error"
	Version int             `json:"version,omitempty"`
	State   *lobby.Snapshot `json:"state,omitempty"`
	Command string          `json:"command,omitempty"`
	OfferID string          `json:"offer_id,omitempty"`
	Code    errs.Code       `json:"code,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func SnapshotMessage(snap lobby.Snapshot) ServerMessage {
	return ServerMessage{Type: "StateSnapshot", Version: snap.Version, State: &snap}
}

// ResultMessage answers a ClientMessage; a failed command becomes an Error frame.
func ResultMessage(command string, res lobby.Result) ServerMessage {
	if res.Err != nil {
		return ErrorMessage(command, res.Err)
	}
	return ServerMessage{Type: "Result", Command: command, OfferID: res.OfferID}
}

func ErrorMessage(command string, err error) ServerMessage {
	return ServerMessage{Type: "Error", Command: command, Code: errs.CodeOf(err), Error: err.Error()}
}

// TransportEvent is one event reported by the signalling transport about the
// shared lobby.
type TransportEvent struct {
	Type        string  `json:"type"`
	OfferID     string  `json:"offer_id,omitempty"`
	CallerID    string  `json:"caller_id,omitempty"`
	CalleeID    string  `json:"callee_id,omitempty"`
	PeerID      string  `json:"peer_id,omitempty"`
	Origin      string  `json:"origin,omitempty"`
	Away        bool    `json:"away,omitempty"`
	DisplayName string  `json:"display_name,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	PingMS      float64 `json:"ping_ms,omitempty"`
	JitterMS    float64 `json:"jitter_ms,omitempty"`
	SenderID    string  `json:"sender_id,omitempty"`
	Text        string  `json:"text,omitempty"`
}

// ToMsg converts the frame into the coordinator event it describes.
func (e TransportEvent) ToMsg() (lobby.Msg, error) {
	switch e.Type {
	case "ChallengeSent":
		return lobby.ChallengeSent{OfferID: e.OfferID, CallerID: e.CallerID, CalleeID: e.CalleeID}, nil
	case "ChallengeAccepted":
		return lobby.ChallengeAccepted{OfferID: e.OfferID}, nil
	case "ChallengeDeclined":
		origin, err := parseOrigin(e.Origin)
		if err != nil {
			return nil, err
		}
		return lobby.ChallengeDeclined{OfferID: e.OfferID, PeerID: e.PeerID, Origin: origin}, nil
	case "PresenceChanged":
		return lobby.PresenceChanged{PeerID: e.PeerID, Away: e.Away}, nil
	case "PeerEnteredMatch":
		return lobby.PeerEnteredMatch{PeerID: e.PeerID}, nil
	case "MatchEnded":
		return lobby.MatchEnded{PeerID: e.PeerID}, nil
	case "PeerJoined":
		return lobby.PeerJoined{PeerID: e.PeerID, DisplayName: e.DisplayName, CountryCode: e.CountryCode}, nil
	case "PeerLeft":
		return lobby.PeerLeft{PeerID: e.PeerID}, nil
	case "PingSample":
		return lobby.PingSample{PeerID: e.PeerID, MS: e.PingMS, Jitter: e.JitterMS, CountryCode: e.CountryCode}, nil
	case "ChatReceived":
		return lobby.ChatReceived{SenderID: e.SenderID, Text: e.Text}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q: %w", e.Type, errs.ErrValidation)
	}
}

func parseOrigin(s string) (challenge.Origin, error) {
	switch challenge.Origin(s) {
	case "":
		return challenge.OriginRemote, nil
	case challenge.OriginLocal, challenge.OriginRemote:
		return challenge.Origin(s), nil
	default:
		return "", fmt.Errorf("unknown origin %q: %w", s, errs.ErrValidation)
	}
}
