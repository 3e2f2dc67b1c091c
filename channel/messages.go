package channel

// SignedData is a piece of raw data (typically an encoded board state)
// together with any number of signatures made on it by channel
// participants.
type SignedData struct {
	Data       []byte
	Signatures [][]byte

	// ForTestingVersion is never set by the original protocol version.
	// It exists so that tests (and future protocol versions) can produce
	// messages that version checks must reject.
	ForTestingVersion *uint32
}

// StateTransition is one move together with the resulting new state,
// signed at least by the player who made the move.
type StateTransition struct {
	Move     []byte
	NewState *SignedData
}

// StateProof proves that a board state follows validly from some initial
// state: the signed initial state plus an ordered chain of transitions.
// A proof is convincing if it is rooted at the channel's reinitialisation
// state, or if every participant has signed some state within it.
type StateProof struct {
	InitialState *SignedData
	Transitions  []*StateTransition
}

// TrivialProof returns a proof consisting of just the given state with
// no signatures and no transitions. It is valid precisely when the state
// is the channel's reinitialisation state.
func TrivialProof(state []byte) *StateProof {
	return &StateProof{InitialState: &SignedData{Data: state}}
}

// EndState returns the state the proof claims to prove: the new state of
// the last transition, or the initial state if there are none. No part
// of the proof is validated.
func (p *StateProof) EndState() []byte {
	if n := len(p.Transitions); n > 0 {
		return p.Transitions[n-1].NewState.Data
	}
	return p.InitialState.Data
}
