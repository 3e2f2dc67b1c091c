// Package board defines the interface between the game-channel framework
// and the game-specific rules. A game provides an implementation of Rules
// that can decode its board states, decide whose turn it is and apply
// moves; everything else (proof verification, disputes, persistence) is
// game-agnostic.
package board

import (
	"github.com/xaya/gamechannel/channel"
)

// State is a board state in the game-specific encoding. The framework
// treats it as an opaque blob.
type State = []byte

// Move is a move in the game-specific encoding.
type Move = []byte

// NoTurn indicates that it is no player's turn, for instance while the
// channel is waiting for players to join or after the game has ended.
const NoTurn = -1

// ParsedState is a board state decoded by the game rules. Instances are
// ephemeral, derived from an encoded State, and hold their own copies of
// the channel ID and metadata they were parsed against.
//
// Implementations must be pure: none of the methods may have side
// effects beyond injected validation helpers.
type ParsedState interface {
	// Equals reports whether the given encoded state is equivalent to
	// this one (possibly a different encoding of the same state). A
	// malformed other state compares unequal rather than failing.
	Equals(other State) bool

	// WhoseTurn returns the participant index of the player to move,
	// or NoTurn.
	WhoseTurn() int

	// TurnCount returns the turn counter of this state. It never
	// decreases along valid play and orders states of one epoch.
	TurnCount() uint64

	// ApplyMove applies a move made by the player whose turn it is and
	// returns the resulting encoded state. It fails if the move is
	// malformed or invalid in this position. It is never called when
	// WhoseTurn is NoTurn.
	ApplyMove(mv Move) (State, error)

	// JSON returns a game-specific JSON representation of the state for
	// frontends, or nil if the game does not provide one.
	JSON() any
}

// Rules is the game-specific processor of board states and moves. All
// methods must be pure and safe for concurrent use.
type Rules interface {
	// ParseState decodes an encoded board state in the context of the
	// given channel. It fails on malformed data.
	ParseState(id channel.ID, meta *channel.Metadata, state State) (ParsedState, error)

	// GetProtoVersion returns the wire-format version the channel with
	// the given metadata enforces.
	GetProtoVersion(meta *channel.Metadata) (channel.ProtoVersion, error)
}
