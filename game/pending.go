package game

import (
	"log/slog"

	"github.com/xaya/gamechannel/channel"
	"github.com/xaya/gamechannel/chanstore"
)

// PendingMoves aggregates the state proofs claimed by unconfirmed
// dispute and resolution transactions in the mempool. Per channel, only
// the single freshest valid proof among all pending candidates is kept,
// so frontends can show the best state that is about to confirm.
type PendingMoves struct {
	game *Game
	log  *slog.Logger

	channels map[channel.ID]*PendingChannel
}

// PendingChannel is the best pending proof known for one channel.
type PendingChannel struct {
	ID        channel.ID
	Proof     *channel.StateProof
	TurnCount uint64
}

// NewPendingMoves creates an empty pending-moves aggregate.
func NewPendingMoves(g *Game, log *slog.Logger) *PendingMoves {
	if log == nil {
		log = slog.Default()
	}
	return &PendingMoves{
		game:     g,
		log:      log,
		channels: make(map[channel.ID]*PendingChannel),
	}
}

// Clear drops all pending data, typically when a new block has been
// attached and the mempool is re-evaluated from scratch.
func (pm *PendingMoves) Clear() {
	pm.channels = make(map[channel.ID]*PendingChannel)
}

// AddPendingStateProof considers the proof claimed by one pending
// transaction for the given channel. Invalid proofs are ignored, and a
// proof staler than an already-tracked candidate does not replace it.
func (pm *PendingMoves) AddPendingStateProof(ch *chanstore.Channel, p *channel.StateProof) (bool, error) {
	proven, _, ok, err := pm.game.checkedProof(ch, p)
	if !ok || err != nil {
		return false, err
	}
	cnt := proven.TurnCount()

	if existing, found := pm.channels[ch.ID()]; found && existing.TurnCount >= cnt {
		pm.log.Debug("pending proof is not fresher than tracked one",
			"channel", ch.ID().Hex(),
			"count", cnt, "tracked-count", existing.TurnCount)
		return false, nil
	}

	pm.log.Info("tracking pending state proof",
		"channel", ch.ID().Hex(), "count", cnt)
	pm.channels[ch.ID()] = &PendingChannel{ID: ch.ID(), Proof: p, TurnCount: cnt}
	return true, nil
}

// JSON returns the pending-moves aggregate in its external JSON shape:
// {"channels": {idHex: {id, proof, turncount}}}.
func (pm *PendingMoves) JSON() (map[string]any, error) {
	channels := make(map[string]any, len(pm.channels))
	for id, pc := range pm.channels {
		encoded, err := channel.ProofToBase64(pc.Proof)
		if err != nil {
			return nil, err
		}
		channels[id.Hex()] = map[string]any{
			"id":        id.Hex(),
			"proof":     encoded,
			"turncount": pc.TurnCount,
		}
	}
	return map[string]any{"channels": channels}, nil
}
