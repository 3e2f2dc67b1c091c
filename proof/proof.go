// Package proof implements verification and extension of state proofs:
// chains of signed state transitions that establish a later board state
// as validly following from an earlier one.
package proof

import (
	"errors"
	"fmt"

	"github.com/xaya/gamechannel/board"
	"github.com/xaya/gamechannel/channel"
)

var (
	// ErrNoTurn is returned when a transition is applied to a state in
	// which it is no player's turn.
	ErrNoTurn = errors.New("proof: no player's turn in old state")
	// ErrWrongNewState is returned when the state a transition declares
	// differs from the result of applying its move.
	ErrWrongNewState = errors.New("proof: claimed new state does not match move result")
	// ErrMissingMoverSignature is returned when the player who made a
	// move has no valid signature on the resulting state.
	ErrMissingMoverSignature = errors.New("proof: new state not signed by mover")
	// ErrIncompleteProof is returned when a proof is neither rooted at
	// the reinitialisation state nor signed by all participants.
	ErrIncompleteProof = errors.New("proof: not rooted at reinit state and not signed by all participants")
	// ErrStaleMove is returned by Extend when applying the move does not
	// strictly increase the turn count.
	ErrStaleMove = errors.New("proof: move does not advance the turn count")
)

// verifyTransition checks a single transition from oldState and returns
// the set of participants with valid signatures on the new state. The
// transition is valid if its move, applied by the player whose turn it
// is, yields exactly the declared new state, and that player signed it.
func verifyTransition(verifier channel.SignatureVerifier, rules board.Rules,
	id channel.ID, meta *channel.Metadata,
	oldState board.State, t *channel.StateTransition) (map[int]bool, error) {

	parsed, err := rules.ParseState(id, meta, oldState)
	if err != nil {
		return nil, fmt.Errorf("parsing old state: %w", err)
	}
	turn := parsed.WhoseTurn()
	if turn == board.NoTurn {
		return nil, ErrNoTurn
	}

	newState, err := parsed.ApplyMove(t.Move)
	if err != nil {
		return nil, fmt.Errorf("applying transition move: %w", err)
	}
	parsedNew, err := rules.ParseState(id, meta, newState)
	if err != nil {
		return nil, fmt.Errorf("parsing move result: %w", err)
	}
	if !parsedNew.Equals(t.NewState.Data) {
		return nil, ErrWrongNewState
	}

	signers, err := verifier.VerifyParticipantSignatures(id, meta, channel.TopicState, t.NewState)
	if err != nil {
		return nil, fmt.Errorf("verifying signatures: %w", err)
	}
	if !signers[turn] {
		return nil, fmt.Errorf("%w: player %d", ErrMissingMoverSignature, turn)
	}

	return signers, nil
}

// VerifyStateTransition checks that a single transition is valid from
// the given old state.
func VerifyStateTransition(verifier channel.SignatureVerifier, rules board.Rules,
	id channel.ID, meta *channel.Metadata,
	oldState board.State, t *channel.StateTransition) error {

	_, err := verifyTransition(verifier, rules, id, meta, oldState, t)
	return err
}

// VerifyStateProof validates a full state proof against the channel's
// reinitialisation state. On success it returns the proven end state.
//
// A proof is accepted if its transition chain is internally valid and
// either the chain touches the reinitialisation state, or the union of
// signers over all states in the proof covers every participant.
func VerifyStateProof(verifier channel.SignatureVerifier, rules board.Rules,
	id channel.ID, meta *channel.Metadata,
	reinitState board.State, p *channel.StateProof) (board.State, error) {

	parsedReinit, err := rules.ParseState(id, meta, reinitState)
	if err != nil {
		return nil, fmt.Errorf("parsing reinit state: %w", err)
	}

	signers, err := verifier.VerifyParticipantSignatures(id, meta, channel.TopicState, p.InitialState)
	if err != nil {
		return nil, fmt.Errorf("verifying signatures: %w", err)
	}
	// Verifiers may return a nil map as the empty signer set.
	if signers == nil {
		signers = make(map[int]bool)
	}

	endState := p.InitialState.Data
	if _, err := rules.ParseState(id, meta, endState); err != nil {
		return nil, fmt.Errorf("parsing initial state: %w", err)
	}
	rooted := parsedReinit.Equals(endState)

	for i, t := range p.Transitions {
		newSigners, err := verifyTransition(verifier, rules, id, meta, endState, t)
		if err != nil {
			return nil, fmt.Errorf("transition %d: %w", i, err)
		}
		for idx := range newSigners {
			signers[idx] = true
		}
		endState = t.NewState.Data
		if !rooted {
			rooted = parsedReinit.Equals(endState)
		}
	}

	if rooted {
		return endState, nil
	}
	for i := range meta.Participants {
		if !signers[i] {
			return nil, fmt.Errorf("%w: missing player %d", ErrIncompleteProof, i)
		}
	}
	return endState, nil
}

// Extend applies a move onto the end state of a proof that is already
// known to be valid, obtains the mover's signature on the result through
// the given signer, and returns a new proof for the new state. The new
// proof is trimmed to the minimal sufficient suffix of the old one.
//
// Extend fails unless the move strictly increases the turn count, so a
// successful extension is always a fresher state than the old proof's.
func Extend(verifier channel.SignatureVerifier, signer channel.SignatureSigner,
	rules board.Rules, id channel.ID, meta *channel.Metadata,
	oldProof *channel.StateProof, mv board.Move) (*channel.StateProof, error) {

	endState := oldProof.EndState()
	parsed, err := rules.ParseState(id, meta, endState)
	if err != nil {
		return nil, fmt.Errorf("parsing proof end state: %w", err)
	}
	turn := parsed.WhoseTurn()
	if turn == board.NoTurn {
		return nil, ErrNoTurn
	}

	newState, err := parsed.ApplyMove(mv)
	if err != nil {
		return nil, fmt.Errorf("applying move: %w", err)
	}
	parsedNew, err := rules.ParseState(id, meta, newState)
	if err != nil {
		return nil, fmt.Errorf("parsing move result: %w", err)
	}
	if parsedNew.TurnCount() <= parsed.TurnCount() {
		return nil, ErrStaleMove
	}

	msg, err := channel.SignatureMessage(id, meta, channel.TopicState, newState)
	if err != nil {
		return nil, err
	}
	sgn, err := signer.SignMessage(msg)
	if err != nil {
		return nil, fmt.Errorf("signing new state: %w", err)
	}
	signed := &channel.SignedData{Data: newState, Signatures: [][]byte{sgn}}

	signers, err := verifier.VerifyParticipantSignatures(id, meta, channel.TopicState, signed)
	if err != nil {
		return nil, fmt.Errorf("verifying own signature: %w", err)
	}
	if !signers[turn] {
		return nil, fmt.Errorf("%w: player %d", ErrMissingMoverSignature, turn)
	}

	// Each link of the extended chain: the signed state plus, except for
	// the old initial state, the transition leading to it.
	type link struct {
		signed     *channel.SignedData
		transition *channel.StateTransition
	}
	links := make([]link, 0, len(oldProof.Transitions)+2)
	links = append(links, link{signed: oldProof.InitialState})
	for _, t := range oldProof.Transitions {
		links = append(links, link{signed: t.NewState, transition: t})
	}
	links = append(links, link{
		signed:     signed,
		transition: &channel.StateTransition{Move: mv, NewState: signed},
	})

	// Scan backwards accumulating signers until every participant is
	// covered; the covered suffix is sufficient on its own. If coverage
	// is never reached, the full chain is kept and the proof stays
	// rooted at the old proof's initial state. Participant counts are
	// small, so the per-link signature checks are cheap.
	covered := make(map[int]bool)
	start := 0
	for i := len(links) - 1; i >= 0; i-- {
		linkSigners, err := verifier.VerifyParticipantSignatures(id, meta, channel.TopicState, links[i].signed)
		if err != nil {
			return nil, fmt.Errorf("verifying signatures: %w", err)
		}
		for idx := range linkSigners {
			covered[idx] = true
		}
		if len(covered) == len(meta.Participants) {
			start = i
			break
		}
	}

	newProof := &channel.StateProof{InitialState: links[start].signed}
	for _, l := range links[start+1:] {
		newProof.Transitions = append(newProof.Transitions, l.transition)
	}
	return newProof, nil
}
