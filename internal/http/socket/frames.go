package socket

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// Inbound frame types. "initialization" is accepted as an alias of
// "subscribe" for older widget builds.
const (
	typeSubscribe      = "subscribe"
	typeInitialization = "initialization"
	typeUnsubscribe    = "unsubscribe"
	typeGetToken       = "getToken"
	typeGetReactions   = "getReactions"
	typeVote           = "vote"
	typeUnvote         = "unvote"
)

// Outbound frame types.
const (
	TypeReactions       = "reactions"
	TypeToken           = "token"
	TypeVoteResult      = "vote.result"
	TypeReactionsUpdate = "reactions.update"
	TypeError           = "error"
)

// Error codes carried by error frames.
const (
	codeInvalidArgument = "invalid_argument"
	codeInvalidOption   = "invalid_option"
	codeRateLimited     = "rate_limited"
	codeUnavailable     = "unavailable"
	codeInternal        = "internal_error"
)

// inFrame is a client request. Fields unused by a type are ignored.
type inFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Domain    string `json:"domain"`
	ModuleID  string `json:"moduleId"`
	UserID    string `json:"userId"`
	Option    string `json:"option"`
	Token     string `json:"token"`
}

// Frame is a server message.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type tokenPayload struct {
	Token string `json:"token"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("marshal websocket frame payload")
		return nil
	}
	return b
}
