// Package game processes the on-chain side of game channels: dispute
// and resolution moves confirmed in blocks, and the aggregation of
// still-pending dispute/resolution transactions from the mempool.
package game

import (
	"fmt"
	"log/slog"

	"github.com/xaya/gamechannel/board"
	"github.com/xaya/gamechannel/channel"
	"github.com/xaya/gamechannel/chanstore"
	"github.com/xaya/gamechannel/proof"
)

// Game validates and applies dispute and resolution moves against
// persisted channel records. Rejections of untrusted input are reported
// through the boolean result; a non-nil error means an internal
// invariant is broken and processing must stop.
type Game struct {
	rules    board.Rules
	verifier channel.SignatureVerifier
	log      *slog.Logger
}

// New creates a Game for the given rules and signature verifier.
func New(rules board.Rules, verifier channel.SignatureVerifier, log *slog.Logger) *Game {
	if log == nil {
		log = slog.Default()
	}
	return &Game{rules: rules, verifier: verifier, log: log}
}

// checkedProof validates version and cryptography of an incoming proof
// and returns the parsed proven state together with the parsed on-chain
// state for comparison.
func (g *Game) checkedProof(ch *chanstore.Channel, p *channel.StateProof) (proven, onChain board.ParsedState, ok bool, err error) {
	version, err := g.rules.GetProtoVersion(ch.Metadata())
	if err != nil {
		return nil, nil, false, err
	}
	if !channel.CheckProofVersion(version, p) {
		g.log.Warn("state proof does not match channel protocol version",
			"channel", ch.ID().Hex())
		return nil, nil, false, nil
	}

	endState, err := proof.VerifyStateProof(g.verifier, g.rules, ch.ID(),
		ch.Metadata(), ch.ReinitState(), p)
	if err != nil {
		g.log.Warn("invalid state proof", "channel", ch.ID().Hex(), "error", err)
		return nil, nil, false, nil
	}

	proven, err = g.rules.ParseState(ch.ID(), ch.Metadata(), endState)
	if err != nil {
		return nil, nil, false, fmt.Errorf("game: verified proof has unparsable end state: %w", err)
	}
	onChain, err = g.rules.ParseState(ch.ID(), ch.Metadata(), ch.LatestState())
	if err != nil {
		return nil, nil, false, fmt.Errorf("game: stored channel state is unparsable: %w", err)
	}
	return proven, onChain, true, nil
}

// ProcessDispute handles a dispute move confirmed at the given block
// height. It returns whether the dispute was accepted (and the channel
// record updated). The channel handle is not committed here.
func (g *Game) ProcessDispute(ch *chanstore.Channel, height uint64, p *channel.StateProof) (bool, error) {
	proven, onChain, ok, err := g.checkedProof(ch, p)
	if !ok || err != nil {
		return false, err
	}

	// A dispute on an ended (or not yet started) game makes no sense:
	// there is no player whose missing move could be disputed.
	if proven.WhoseTurn() == board.NoTurn {
		g.log.Warn("dispute for state in which it is no player's turn",
			"channel", ch.ID().Hex())
		return false, nil
	}

	provenCnt := proven.TurnCount()
	onChainCnt := onChain.TurnCount()
	switch {
	case provenCnt < onChainCnt:
		g.log.Warn("dispute with stale state",
			"channel", ch.ID().Hex(),
			"proven-count", provenCnt, "onchain-count", onChainCnt)
		return false, nil

	case provenCnt == onChainCnt:
		// Disputing the currently-known state must remain possible, so
		// that a player whose opponent stalls on the very state shown
		// on-chain can still open a dispute. It is only allowed when no
		// dispute exists yet and the state matches exactly; anything
		// else is a stale or conflicting claim.
		if ch.HasDispute() {
			g.log.Warn("dispute at current turn count but dispute already open",
				"channel", ch.ID().Hex(), "count", provenCnt)
			return false, nil
		}
		if !proven.Equals(ch.LatestState()) {
			g.log.Warn("dispute at current turn count with conflicting state",
				"channel", ch.ID().Hex(), "count", provenCnt)
			return false, nil
		}
	}

	g.log.Info("accepting dispute", "channel", ch.ID().Hex(),
		"height", height, "count", provenCnt)
	ch.SetStateProof(p)
	if err := ch.SetDisputeHeight(height); err != nil {
		return false, err
	}
	return true, nil
}

// ProcessResolution handles a resolution move. A resolution is accepted
// only if it proves a strictly later state than the on-chain one; on
// success the proof is replaced and any open dispute cleared.
func (g *Game) ProcessResolution(ch *chanstore.Channel, p *channel.StateProof) (bool, error) {
	proven, onChain, ok, err := g.checkedProof(ch, p)
	if !ok || err != nil {
		return false, err
	}

	provenCnt := proven.TurnCount()
	onChainCnt := onChain.TurnCount()
	if provenCnt <= onChainCnt {
		g.log.Warn("resolution does not advance the state",
			"channel", ch.ID().Hex(),
			"proven-count", provenCnt, "onchain-count", onChainCnt)
		return false, nil
	}

	g.log.Info("accepting resolution", "channel", ch.ID().Hex(), "count", provenCnt)
	ch.SetStateProof(p)
	ch.ClearDispute()
	return true, nil
}
