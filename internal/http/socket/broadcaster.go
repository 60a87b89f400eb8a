package socket

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-reactions-backend/internal/domain"
	"github.com/tbourn/go-reactions-backend/internal/fanout"
)

// Broadcaster publishes ledger updates to websocket subscribers as
// reactions.update frames.
type Broadcaster struct {
	Router *fanout.Router
}

// NewBroadcaster returns a Broadcaster publishing through r.
func NewBroadcaster(r *fanout.Router) *Broadcaster {
	return &Broadcaster{Router: r}
}

// Broadcast sends snap to every subscriber of its module. Per-user fields are
// stripped; subscribers only ever see aggregates.
func (b *Broadcaster) Broadcast(ctx context.Context, snap domain.Snapshot) {
	snap.UserID, snap.Reaction = "", ""
	payload, err := json.Marshal(Frame{Type: TypeReactionsUpdate, Payload: mustJSON(snap)})
	if err != nil {
		log.Error().Err(err).Str("domain", snap.Domain).Str("module_id", snap.ID).Msg("encode reactions update")
		return
	}
	b.Router.Publish(ctx, fanout.GroupOf(snap.Domain, snap.ID), payload)
}
