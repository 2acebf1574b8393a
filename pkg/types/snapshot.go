package types

// StateSnapshot.state:
//   version: number
//   messages: Message[] // oldest first, at most LOBBY_LEDGER_CAPACITY
//     id: number
//     sender_id: string // "system" for fallback outcome messages
//     kind: "chat" | "challenge-request" | "challenge-accepted" | "challenge-declined"
//     text: string
//     related_offer_id: string
//     accepted: boolean
//     declined: boolean
//     outcome: "accepted" | "declined" | "auto_cancelled" | "auto_resolved"
//     responder: string
//     created_at: RFC 3339
//   pending: Offer[] // creation order
//     id, caller_id, callee_id: string
//     created_at: RFC 3339
//     state: "pending"
//   presence: { [peer_id]: Presence }
//     display_name: string
//     away: boolean
//     in_match: boolean
//     has_ping: boolean
//     ping: number // whole milliseconds
//     unstable: boolean // jitter >= 6 ms
//     country_code: string
//     updated_at: RFC 3339
