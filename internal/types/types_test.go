package types

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/DoyleJ11/reflector-lobby/internal/challenge"
	"github.com/DoyleJ11/reflector-lobby/internal/errs"
	"github.com/DoyleJ11/reflector-lobby/internal/lobby"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportEvent_ToMsg(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want lobby.Msg
	}{
		{"challenge sent", `{"type":"ChallengeSent","offer_id":"o1","caller_id":"a","callee_id":"b"}`,
			lobby.ChallengeSent{OfferID: "o1", CallerID: "a", CalleeID: "b"}},
		{"accepted", `{"type":"ChallengeAccepted","offer_id":"o1"}`,
			lobby.ChallengeAccepted{OfferID: "o1"}},
		{"declined by peer defaults to remote", `{"type":"ChallengeDeclined","peer_id":"b"}`,
			lobby.ChallengeDeclined{PeerID: "b", Origin: challenge.OriginRemote}},
		{"declined local", `{"type":"ChallengeDeclined","offer_id":"o1","origin":"local"}`,
			lobby.ChallengeDeclined{OfferID: "o1", Origin: challenge.OriginLocal}},
		{"away", `{"type":"PresenceChanged","peer_id":"b","away":true}`,
			lobby.PresenceChanged{PeerID: "b", Away: true}},
		{"in match", `{"type":"PeerEnteredMatch","peer_id":"b"}`, lobby.PeerEnteredMatch{PeerID: "b"}},
		{"match ended", `{"type":"MatchEnded","peer_id":"b"}`, lobby.MatchEnded{PeerID: "b"}},
		{"joined", `{"type":"PeerJoined","peer_id":"b","display_name":"Bee","country_code":"se"}`,
			lobby.PeerJoined{PeerID: "b", DisplayName: "Bee", CountryCode: "se"}},
		{"left", `{"type":"PeerLeft","peer_id":"b"}`, lobby.PeerLeft{PeerID: "b"}},
		{"ping", `{"type":"PingSample","peer_id":"b","ping_ms":41.6,"jitter_ms":2}`,
			lobby.PingSample{PeerID: "b", MS: 41.6, Jitter: 2}},
		{"chat", `{"type":"ChatReceived","sender_id":"b","text":"gg"}`,
			lobby.ChatReceived{SenderID: "b", Text: "gg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev TransportEvent
			require.NoError(t, json.Unmarshal([]byte(tt.in), &ev))
			got, err := ev.ToMsg()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransportEvent_ToMsgRejects(t *testing.T) {
	_, err := TransportEvent{Type: "Teleport"}.ToMsg()
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = TransportEvent{Type: "ChallengeDeclined", OfferID: "o1", Origin: "sideways"}.ToMsg()
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestResultMessage(t *testing.T) {
	ok := ResultMessage("RequestChallenge", lobby.Result{OfferID: "o1"})
	assert.Equal(t, ServerMessage{Type: "Result", Command: "RequestChallenge", OfferID: "o1"}, ok)

	failed := ResultMessage("AcceptChallenge", lobby.Result{Err: fmt.Errorf("offer o9: %w", errs.ErrNotFound)})
	assert.Equal(t, "Error", failed.Type)
	assert.Equal(t, errs.CodeNotFound, failed.Code)
	assert.Equal(t, "AcceptChallenge", failed.Command)
}

func TestSnapshotMessage_CarriesVersion(t *testing.T) {
	msg := SnapshotMessage(lobby.Snapshot{Version: 3})
	assert.Equal(t, "StateSnapshot", msg.Type)
	assert.Equal(t, 3, msg.Version)
	require.NotNil(t, msg.State)
	assert.Equal(t, 3, msg.State.Version)
}
