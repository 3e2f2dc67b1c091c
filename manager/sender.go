package manager

import (
	"encoding/json"
	"log/slog"

	"github.com/xaya/gamechannel/board"
	"github.com/xaya/gamechannel/channel"
)

// MoveSender submits channel-related moves to the chain and tracks
// whether previously submitted transactions are still in the mempool.
// Implementations return the transaction ID of the submitted move, or
// an empty string if submission failed (for instance because the wallet
// is locked); failures are not fatal since the move can be retried.
type MoveSender interface {
	SendDispute(p *channel.StateProof) (string, error)
	SendResolution(p *channel.StateProof) (string, error)
	SendMove(mv json.RawMessage) (string, error)
	IsPending(txid string) bool
}

// OffChainSender broadcasts the latest channel state to the other
// participants off-chain.
type OffChainSender interface {
	// SendNewState publishes the given proof for the reinitialisation
	// it belongs to.
	SendNewState(reinitID []byte, p *channel.StateProof) error
	// SetParticipants updates the set of participants that should
	// receive broadcasts.
	SetParticipants(meta *channel.Metadata)
}

// OpenChannel is implemented per game and encodes game-specific moves
// for one channel the local player takes part in. It also provides the
// hooks through which games take moves automatically.
type OpenChannel interface {
	// ResolutionMove returns the on-chain move embedding the given
	// proof as a resolution for the channel.
	ResolutionMove(id channel.ID, p *channel.StateProof) (json.RawMessage, error)
	// DisputeMove returns the on-chain move embedding the given proof
	// as a dispute for the channel.
	DisputeMove(id channel.ID, p *channel.StateProof) (json.RawMessage, error)

	// MaybeAutoMove returns a move the local player should take
	// automatically in the given state, if any. Automatic moves are
	// applied without user interaction, for instance revealing a
	// committed random value once all commitments are in.
	MaybeAutoMove(state board.ParsedState) (board.Move, bool)
	// MaybeOnChainMove gives the game a chance to submit an on-chain
	// move for the given state, for instance declaring the result once
	// the channel game has finished. It must be idempotent; it is
	// invoked on every state change.
	MaybeOnChainMove(meta *channel.Metadata, state board.ParsedState, sender MoveSender) error
}

// Wallet submits raw move values to the chain (for instance through a
// name update) and reports on mempool contents.
type Wallet interface {
	SendMove(value json.RawMessage) (string, error)
	IsMovePending(txid string) (bool, error)
}

// Sender is the standard MoveSender: it asks the game's OpenChannel to
// encode dispute and resolution moves and submits them via a Wallet.
type Sender struct {
	wallet Wallet
	game   OpenChannel
	id     channel.ID
	log    *slog.Logger
}

// NewSender creates a Sender for the given channel.
func NewSender(wallet Wallet, game OpenChannel, id channel.ID, log *slog.Logger) *Sender {
	if log == nil {
		log = slog.Default()
	}
	return &Sender{
		wallet: wallet,
		game:   game,
		id:     id,
		log:    log.With("channel", id.Hex()),
	}
}

// SendMove submits a raw move value.
func (s *Sender) SendMove(mv json.RawMessage) (string, error) {
	txid, err := s.wallet.SendMove(mv)
	if err != nil {
		s.log.Error("failed to send move", "error", err)
		return "", err
	}
	s.log.Info("sent move", "txid", txid)
	return txid, nil
}

// SendDispute submits a dispute based on the given state proof.
func (s *Sender) SendDispute(p *channel.StateProof) (string, error) {
	mv, err := s.game.DisputeMove(s.id, p)
	if err != nil {
		return "", err
	}
	return s.SendMove(mv)
}

// SendResolution submits a resolution based on the given state proof.
func (s *Sender) SendResolution(p *channel.StateProof) (string, error) {
	mv, err := s.game.ResolutionMove(s.id, p)
	if err != nil {
		return "", err
	}
	return s.SendMove(mv)
}

// IsPending reports whether the given transaction is still unconfirmed.
// If the wallet cannot be queried, the transaction is conservatively
// reported as pending so no duplicate gets submitted.
func (s *Sender) IsPending(txid string) bool {
	pending, err := s.wallet.IsMovePending(txid)
	if err != nil {
		s.log.Warn("failed to query mempool, assuming tx is pending",
			"txid", txid, "error", err)
		return true
	}
	return pending
}
