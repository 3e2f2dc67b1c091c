// Package addition implements the toy game used by tests across the
// module: a board state is "<number> <count>", a move adds a positive
// number and bumps the count. Player number%2 is to move, and the game
// ends once the number reaches 100.
package addition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xaya/gamechannel/board"
	"github.com/xaya/gamechannel/channel"
)

// Rules implements board.Rules for the addition game.
type Rules struct{}

type parsedState struct {
	id     channel.ID
	meta   *channel.Metadata
	number int
	count  uint64
}

func parsePair(state board.State) (int, uint64, error) {
	var number int
	var count uint64
	if _, err := fmt.Sscanf(string(state), "%d %d", &number, &count); err != nil {
		return 0, 0, fmt.Errorf("invalid game state %q: %w", state, err)
	}
	return number, count, nil
}

// State formats an addition game state.
func State(number int, count uint64) board.State {
	return []byte(fmt.Sprintf("%d %d", number, count))
}

func (Rules) ParseState(id channel.ID, meta *channel.Metadata, state board.State) (board.ParsedState, error) {
	number, count, err := parsePair(state)
	if err != nil {
		return nil, err
	}
	return &parsedState{id: id, meta: meta.Clone(), number: number, count: count}, nil
}

func (Rules) GetProtoVersion(meta *channel.Metadata) (channel.ProtoVersion, error) {
	return channel.VersionOriginal, nil
}

func (p *parsedState) Equals(other board.State) bool {
	number, count, err := parsePair(other)
	if err != nil {
		return false
	}
	return number == p.number && count == p.count
}

func (p *parsedState) WhoseTurn() int {
	if p.number >= 100 {
		return board.NoTurn
	}
	return p.number % 2
}

func (p *parsedState) TurnCount() uint64 {
	return p.count
}

func (p *parsedState) ApplyMove(mv board.Move) (board.State, error) {
	add, err := strconv.Atoi(string(mv))
	if err != nil {
		return nil, fmt.Errorf("invalid move %q: %w", mv, err)
	}
	if add <= 0 {
		return nil, fmt.Errorf("move %d is not positive", add)
	}
	return State(p.number+add, p.count+1), nil
}

func (p *parsedState) JSON() any {
	return map[string]any{
		"number": p.number,
		"count":  p.count,
	}
}

// AutoMove returns the automove the addition game makes for this state,
// if any: whenever number%10 >= 6, the game adds two on its own.
func AutoMove(state board.ParsedState) (board.Move, bool) {
	p, ok := state.(*parsedState)
	if !ok || p.number%10 < 6 {
		return nil, false
	}
	return []byte("2"), true
}

// Number returns the raw number of a parsed addition state.
func Number(state board.ParsedState) int {
	return state.(*parsedState).number
}

// The fake signature scheme used by tests: the signature "sgn:<i>" is
// valid for participant i on any message. Real cryptography is covered
// by the sigs package.

// Signature returns the fake signature of participant idx.
func Signature(idx int) []byte {
	return []byte(fmt.Sprintf("sgn:%d", idx))
}

// Verifier implements channel.SignatureVerifier for the fake scheme.
type Verifier struct{}

func (Verifier) VerifyParticipantSignatures(id channel.ID, meta *channel.Metadata, topic string, data *channel.SignedData) (map[int]bool, error) {
	res := make(map[int]bool)
	for _, sgn := range data.Signatures {
		s := string(sgn)
		if !strings.HasPrefix(s, "sgn:") {
			continue
		}
		idx, err := strconv.Atoi(s[len("sgn:"):])
		if err != nil || idx < 0 || idx >= len(meta.Participants) {
			continue
		}
		res[idx] = true
	}
	return res, nil
}

// Signer implements channel.SignatureSigner for the fake scheme, bound
// to one participant index.
type Signer struct {
	Index int
}

func (s Signer) SignMessage(msg string) ([]byte, error) {
	return Signature(s.Index), nil
}
