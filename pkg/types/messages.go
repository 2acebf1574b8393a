package types

// UI socket (/ws/ui?user=<id>)
//
// Client -> Server
// RequestChallenge:
//   callee_id: string
//
// AcceptChallenge:
//   offer_id: string
//
// DeclineChallenge:
//   offer_id: string
//
// SetAway:
//   away: boolean
//
// SendChat:
//   text: string

// Server -> Client
// StateSnapshot:
//   version: number
//   state: see snapshot.go
//
// Result:
//   command: string
//   offer_id: string // RequestChallenge only
//
// Error:
//   command: string
//   code: "CONFLICT" | "UNREACHABLE" | "NOT_FOUND" | "VALIDATION" | "UNKNOWN"
//   error: string

// Signal socket (/ws/signal?user=<id>)
//
// Transport -> Server (type + fields)
// ChallengeSent:     offer_id?, caller_id, callee_id
// ChallengeAccepted: offer_id
// ChallengeDeclined: offer_id | peer_id, origin?: "local" | "remote"
// PresenceChanged:   peer_id, away
// PeerEnteredMatch:  peer_id
// MatchEnded:        peer_id
// PeerJoined:        peer_id, display_name, country_code?
// PeerLeft:          peer_id
// PingSample:        peer_id, ping_ms, jitter_ms?, country_code?
// ChatReceived:      sender_id, text
//
// Server -> Transport
// Signal:
//   type: "challenge" | "answer" | "decline" | "chat"
//   from: string
//   to: string // absent for chat
//   offer_id: string
//   reason: string // decline only: "away" or a system responder label
//   text: string // chat only
