package game

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xaya/gamechannel/channel"
	"github.com/xaya/gamechannel/chanstore"
	"github.com/xaya/gamechannel/internal/addition"
)

var testID = channel.ID{0x42}

func testMetadata() *channel.Metadata {
	return &channel.Metadata{
		Participants: []*channel.Participant{
			{Name: "alice", Address: "addr-alice"},
			{Name: "bob", Address: "addr-bob"},
		},
		Reinit: []byte("reinit-1"),
	}
}

func signed(state []byte, signers ...int) *channel.SignedData {
	d := &channel.SignedData{Data: state}
	for _, idx := range signers {
		d.Signatures = append(d.Signatures, addition.Signature(idx))
	}
	return d
}

func newTestGame(t *testing.T) *Game {
	t.Helper()
	return New(addition.Rules{}, addition.Verifier{}, nil)
}

// newTestChannel creates a channel with reinit state "0 1" whose latest
// on-chain state is "10 5", signed by both players.
func newTestChannel(t *testing.T) *chanstore.Channel {
	t.Helper()
	s, err := chanstore.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	ch := s.CreateNew(testID)
	require.NoError(t, ch.Reinitialise(testMetadata(), addition.State(0, 1)))
	ch.SetStateProof(&channel.StateProof{
		InitialState: signed(addition.State(10, 5), 0, 1),
	})
	return ch
}

// fresherProof proves "20 6": it is player 0's turn on "10 5", and the
// move adding 10 is signed by that player.
func fresherProof() *channel.StateProof {
	return &channel.StateProof{
		InitialState: signed(addition.State(10, 5), 0, 1),
		Transitions: []*channel.StateTransition{{
			Move:     []byte("10"),
			NewState: signed(addition.State(20, 6), 0),
		}},
	}
}

func TestProcessDisputeFresherState(t *testing.T) {
	g := newTestGame(t)
	ch := newTestChannel(t)

	accepted, err := g.ProcessDispute(ch, 100, fresherProof())
	require.NoError(t, err)
	require.True(t, accepted)
	require.Equal(t, addition.State(20, 6), ch.LatestState())
	require.Equal(t, uint64(100), ch.DisputeHeight())
}

func TestProcessDisputeStaleState(t *testing.T) {
	g := newTestGame(t)
	ch := newTestChannel(t)

	accepted, err := g.ProcessDispute(ch, 100, &channel.StateProof{
		InitialState: signed(addition.State(5, 4), 0, 1),
	})
	require.NoError(t, err)
	require.False(t, accepted)
	require.False(t, ch.HasDispute())
}

func TestProcessDisputeNoTurn(t *testing.T) {
	g := newTestGame(t)
	ch := newTestChannel(t)

	// The game has ended at 100; there is nobody to dispute against.
	accepted, err := g.ProcessDispute(ch, 100, &channel.StateProof{
		InitialState: signed(addition.State(100, 7), 0, 1),
	})
	require.NoError(t, err)
	require.False(t, accepted)
}

func TestProcessDisputeEqualCount(t *testing.T) {
	g := newTestGame(t)
	ch := newTestChannel(t)

	sameState := &channel.StateProof{
		InitialState: signed(addition.State(10, 5), 0, 1),
	}

	// Disputing the exact on-chain state is allowed while no dispute is
	// open, so a stalling opponent can be put on the clock.
	accepted, err := g.ProcessDispute(ch, 100, sameState)
	require.NoError(t, err)
	require.True(t, accepted)
	require.Equal(t, uint64(100), ch.DisputeHeight())

	// But not a second time.
	accepted, err = g.ProcessDispute(ch, 110, sameState)
	require.NoError(t, err)
	require.False(t, accepted)
	require.Equal(t, uint64(100), ch.DisputeHeight())
}

func TestProcessDisputeEqualCountConflictingState(t *testing.T) {
	g := newTestGame(t)
	ch := newTestChannel(t)

	accepted, err := g.ProcessDispute(ch, 100, &channel.StateProof{
		InitialState: signed(addition.State(11, 5), 0, 1),
	})
	require.NoError(t, err)
	require.False(t, accepted)
}

func TestProcessDisputeInvalidProof(t *testing.T) {
	g := newTestGame(t)
	ch := newTestChannel(t)

	// Not rooted at the reinit state and signed by player 0 only.
	accepted, err := g.ProcessDispute(ch, 100, &channel.StateProof{
		InitialState: signed(addition.State(20, 6), 0),
	})
	require.NoError(t, err)
	require.False(t, accepted)
}

func TestProcessDisputeVersionMismatch(t *testing.T) {
	g := newTestGame(t)
	ch := newTestChannel(t)

	p := fresherProof()
	v := uint32(7)
	p.InitialState.ForTestingVersion = &v
	accepted, err := g.ProcessDispute(ch, 100, p)
	require.NoError(t, err)
	require.False(t, accepted)
}

func TestProcessResolution(t *testing.T) {
	g := newTestGame(t)
	ch := newTestChannel(t)
	require.NoError(t, ch.SetDisputeHeight(100))

	accepted, err := g.ProcessResolution(ch, fresherProof())
	require.NoError(t, err)
	require.True(t, accepted)
	require.Equal(t, addition.State(20, 6), ch.LatestState())
	require.False(t, ch.HasDispute())
}

func TestProcessResolutionNotFresher(t *testing.T) {
	g := newTestGame(t)
	ch := newTestChannel(t)
	require.NoError(t, ch.SetDisputeHeight(100))

	// A resolution must strictly advance the state; the on-chain state
	// itself does not resolve anything.
	accepted, err := g.ProcessResolution(ch, &channel.StateProof{
		InitialState: signed(addition.State(10, 5), 0, 1),
	})
	require.NoError(t, err)
	require.False(t, accepted)
	require.True(t, ch.HasDispute())

	accepted, err = g.ProcessResolution(ch, &channel.StateProof{
		InitialState: signed(addition.State(5, 4), 0, 1),
	})
	require.NoError(t, err)
	require.False(t, accepted)
	require.True(t, ch.HasDispute())
}
