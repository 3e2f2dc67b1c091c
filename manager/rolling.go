// Package manager implements the participant side of a game channel:
// tracking the best known state per reinitialisation, applying local and
// off-chain moves, and filing or resolving disputes on-chain.
package manager

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xaya/gamechannel/board"
	"github.com/xaya/gamechannel/channel"
	"github.com/xaya/gamechannel/proof"
)

var (
	// ErrInvalidChainProof is returned when a state proof delivered by
	// the trusted chain connection fails validation. Chain data is
	// filtered by the on-chain rules, so this indicates a broken setup.
	ErrInvalidChainProof = errors.New("manager: on-chain state proof is invalid")
	// ErrEpochMismatch is returned when on-chain data for a known
	// reinitialisation does not match the recorded metadata or base
	// state. Within one epoch these are immutable.
	ErrEpochMismatch = errors.New("manager: inconsistent data within one reinitialisation")
)

// epochData is the best known state for one reinitialisation of the
// channel.
type epochData struct {
	meta        *channel.Metadata
	reinitState board.State
	prf         *channel.StateProof
	latest      board.ParsedState
	// Turn count of the latest state confirmed on-chain, which may lag
	// behind latest while moves are exchanged off-chain.
	onChainCount uint64
}

// RollingState keeps the latest known state (with full proof) for every
// reinitialisation of one channel. All reinitialisations seen are kept
// around, not just the active one, so that a reorged reinitialisation
// move does not lose the freshest state of the epoch it rolls back to.
type RollingState struct {
	rules    board.Rules
	verifier channel.SignatureVerifier
	id       channel.ID
	log      *slog.Logger

	epochs      map[string]*epochData
	reinitID    string
	initialised bool
}

// NewRollingState creates an empty RollingState for the given channel.
// Accessors must not be used until the first on-chain update arrives.
func NewRollingState(rules board.Rules, verifier channel.SignatureVerifier,
	id channel.ID, log *slog.Logger) *RollingState {
	if log == nil {
		log = slog.Default()
	}
	return &RollingState{
		rules:    rules,
		verifier: verifier,
		id:       id,
		log:      log.With("channel", id.Hex()),
		epochs:   make(map[string]*epochData),
	}
}

func (r *RollingState) active() *epochData {
	if !r.initialised {
		return nil
	}
	return r.epochs[r.reinitID]
}

// Latest returns the parsed latest state of the active epoch.
func (r *RollingState) Latest() board.ParsedState {
	if e := r.active(); e != nil {
		return e.latest
	}
	return nil
}

// Proof returns the proof for the latest state of the active epoch.
func (r *RollingState) Proof() *channel.StateProof {
	if e := r.active(); e != nil {
		return e.prf
	}
	return nil
}

// ReinitID returns the reinitialisation ID of the active epoch.
func (r *RollingState) ReinitID() []byte {
	return []byte(r.reinitID)
}

// Metadata returns the metadata of the active epoch.
func (r *RollingState) Metadata() *channel.Metadata {
	if e := r.active(); e != nil {
		return e.meta
	}
	return nil
}

// OnChainTurnCount returns the turn count of the latest state confirmed
// on-chain for the active epoch.
func (r *RollingState) OnChainTurnCount() uint64 {
	if e := r.active(); e != nil {
		return e.onChainCount
	}
	return 0
}

// UpdateOnChain ingests a confirmed on-chain update and switches the
// active epoch to the one named by the metadata. The proof must be
// fully valid; chain data is trusted input and an invalid proof is an
// error, not a rejection. It returns whether anything visible changed,
// including a bare epoch switch.
func (r *RollingState) UpdateOnChain(meta *channel.Metadata, reinitState board.State,
	p *channel.StateProof) (bool, error) {

	endState, err := proof.VerifyStateProof(r.verifier, r.rules, r.id, meta, reinitState, p)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidChainProof, err)
	}
	parsed, err := r.rules.ParseState(r.id, meta, endState)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidChainProof, err)
	}
	cnt := parsed.TurnCount()

	key := string(meta.Reinit)
	epochChange := !r.initialised || r.reinitID != key
	r.reinitID = key
	r.initialised = true
	r.log.Info("on-chain update", "reinit", reinitBase64(meta.Reinit), "count", cnt)

	entry, found := r.epochs[key]
	if !found {
		r.epochs[key] = &epochData{
			meta:         meta.Clone(),
			reinitState:  bytes.Clone(reinitState),
			prf:          p,
			latest:       parsed,
			onChainCount: cnt,
		}
		r.log.Info("added previously unknown reinitialisation")
		return true, nil
	}

	if !entry.meta.Equal(meta) || !bytes.Equal(entry.reinitState, reinitState) {
		return false, fmt.Errorf("%w: reinit %s", ErrEpochMismatch, reinitBase64(meta.Reinit))
	}

	changed := epochChange
	if cnt > entry.onChainCount {
		entry.onChainCount = cnt
		changed = true
	}

	if entry.latest.TurnCount() >= cnt {
		r.log.Debug("on-chain state is not fresher than known one",
			"known-count", entry.latest.TurnCount())
		return changed, nil
	}

	entry.prf = p
	entry.latest = parsed
	return true, nil
}

// UpdateWithMove ingests an off-chain or locally produced proof for the
// named reinitialisation, which need not be the active one: keeping a
// detached epoch fresh matters in case its reinitialisation move is
// re-attached later. The proof is untrusted and validated in full; the
// update is applied only if it proves a strictly later state. It
// returns true only if the active epoch's state changed.
func (r *RollingState) UpdateWithMove(reinitID []byte, p *channel.StateProof) (bool, error) {
	key := string(reinitID)
	entry, found := r.epochs[key]
	if !found {
		r.log.Warn("update for unknown reinitialisation",
			"reinit", reinitBase64(reinitID))
		return false, nil
	}

	endState, err := proof.VerifyStateProof(r.verifier, r.rules, r.id,
		entry.meta, entry.reinitState, p)
	if err != nil {
		r.log.Warn("off-chain update has invalid state proof", "error", err)
		return false, nil
	}
	parsed, err := r.rules.ParseState(r.id, entry.meta, endState)
	if err != nil {
		return false, fmt.Errorf("manager: verified proof has unparsable end state: %w", err)
	}

	cnt := parsed.TurnCount()
	if entry.latest.TurnCount() >= cnt {
		r.log.Debug("state is not fresher than known one",
			"count", cnt, "known-count", entry.latest.TurnCount())
		return false, nil
	}

	r.log.Info("updating to fresher state", "reinit", reinitBase64(reinitID), "count", cnt)
	entry.prf = p
	entry.latest = parsed

	return r.initialised && key == r.reinitID, nil
}
