package manager

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xaya/gamechannel/channel"
	"github.com/xaya/gamechannel/internal/addition"
)

var testID = channel.ID{0x42}

func testMetadata(reinit string) *channel.Metadata {
	return &channel.Metadata{
		Participants: []*channel.Participant{
			{Name: "alice", Address: "addr-alice"},
			{Name: "bob", Address: "addr-bob"},
		},
		Reinit: []byte(reinit),
	}
}

func signed(state []byte, signers ...int) *channel.SignedData {
	d := &channel.SignedData{Data: state}
	for _, idx := range signers {
		d.Signatures = append(d.Signatures, addition.Signature(idx))
	}
	return d
}

// stateProof returns a proof for the given state, signed by both
// players and thus valid for any reinitialisation.
func stateProof(number int, count uint64) *channel.StateProof {
	return &channel.StateProof{
		InitialState: signed(addition.State(number, count), 0, 1),
	}
}

func newTestRolling(t *testing.T) *RollingState {
	t.Helper()
	return NewRollingState(addition.Rules{}, addition.Verifier{}, testID, nil)
}

func TestRollingStateOnChainUpdates(t *testing.T) {
	r := newTestRolling(t)
	meta := testMetadata("reinit-1")

	changed, err := r.UpdateOnChain(meta, addition.State(0, 1), stateProof(10, 5))
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, []byte("reinit-1"), r.ReinitID())
	require.True(t, meta.Equal(r.Metadata()))
	require.Equal(t, uint64(5), r.Latest().TurnCount())
	require.Equal(t, uint64(5), r.OnChainTurnCount())

	// The same update again changes nothing.
	changed, err = r.UpdateOnChain(meta, addition.State(0, 1), stateProof(10, 5))
	require.NoError(t, err)
	require.False(t, changed)

	// A fresher on-chain state replaces the known one.
	changed, err = r.UpdateOnChain(meta, addition.State(0, 1), stateProof(20, 6))
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, uint64(6), r.Latest().TurnCount())
	require.Equal(t, uint64(6), r.OnChainTurnCount())

	// A staler on-chain state (reorg) does not roll the latest back,
	// but does not advance the on-chain count either.
	changed, err = r.UpdateOnChain(meta, addition.State(0, 1), stateProof(10, 5))
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, uint64(6), r.Latest().TurnCount())
	require.Equal(t, uint64(6), r.OnChainTurnCount())
}

func TestRollingStateOnChainCountRatchet(t *testing.T) {
	r := newTestRolling(t)
	meta := testMetadata("reinit-1")

	_, err := r.UpdateOnChain(meta, addition.State(0, 1), stateProof(10, 5))
	require.NoError(t, err)
	changed, err := r.UpdateWithMove([]byte("reinit-1"), stateProof(20, 6))
	require.NoError(t, err)
	require.True(t, changed)

	// The local state is already at count 6, but confirming it on-chain
	// still moves the on-chain count and is reported as a change.
	changed, err = r.UpdateOnChain(meta, addition.State(0, 1), stateProof(20, 6))
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, uint64(6), r.OnChainTurnCount())
	require.Equal(t, uint64(6), r.Latest().TurnCount())

	changed, err = r.UpdateOnChain(meta, addition.State(0, 1), stateProof(20, 6))
	require.NoError(t, err)
	require.False(t, changed)
}

func TestRollingStateInvalidOnChainProof(t *testing.T) {
	r := newTestRolling(t)

	// Signed by one player only and not rooted at the reinit state.
	p := &channel.StateProof{InitialState: signed(addition.State(10, 5), 0)}
	_, err := r.UpdateOnChain(testMetadata("reinit-1"), addition.State(0, 1), p)
	require.ErrorIs(t, err, ErrInvalidChainProof)
}

func TestRollingStateEpochMismatch(t *testing.T) {
	r := newTestRolling(t)
	meta := testMetadata("reinit-1")

	_, err := r.UpdateOnChain(meta, addition.State(0, 1), stateProof(10, 5))
	require.NoError(t, err)

	// Same reinit ID but a different participant set.
	other := testMetadata("reinit-1")
	other.Participants[1].Address = "changed"
	_, err = r.UpdateOnChain(other, addition.State(0, 1), stateProof(10, 5))
	require.ErrorIs(t, err, ErrEpochMismatch)

	// Same reinit ID but a different base state.
	_, err = r.UpdateOnChain(meta, addition.State(1, 1), stateProof(10, 5))
	require.ErrorIs(t, err, ErrEpochMismatch)
}

func TestRollingStateEpochSwitch(t *testing.T) {
	r := newTestRolling(t)
	meta1 := testMetadata("reinit-1")
	meta2 := testMetadata("reinit-2")

	_, err := r.UpdateOnChain(meta1, addition.State(0, 1), stateProof(20, 6))
	require.NoError(t, err)

	changed, err := r.UpdateOnChain(meta2, addition.State(5, 1), stateProof(5, 1))
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, []byte("reinit-2"), r.ReinitID())
	require.Equal(t, uint64(1), r.Latest().TurnCount())

	// Switching back to the first epoch retains its freshest state,
	// even though the on-chain proof is stale.
	changed, err = r.UpdateOnChain(meta1, addition.State(0, 1), stateProof(10, 5))
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, []byte("reinit-1"), r.ReinitID())
	require.Equal(t, uint64(6), r.Latest().TurnCount())
}

func TestRollingStateUpdateWithMove(t *testing.T) {
	r := newTestRolling(t)
	meta := testMetadata("reinit-1")

	_, err := r.UpdateOnChain(meta, addition.State(0, 1), stateProof(10, 5))
	require.NoError(t, err)

	// Unknown reinitialisation.
	changed, err := r.UpdateWithMove([]byte("reinit-9"), stateProof(20, 6))
	require.NoError(t, err)
	require.False(t, changed)

	// Invalid proof.
	changed, err = r.UpdateWithMove([]byte("reinit-1"),
		&channel.StateProof{InitialState: signed(addition.State(20, 6), 0)})
	require.NoError(t, err)
	require.False(t, changed)

	// Not fresher.
	changed, err = r.UpdateWithMove([]byte("reinit-1"), stateProof(10, 5))
	require.NoError(t, err)
	require.False(t, changed)

	// Fresher state on the active epoch.
	changed, err = r.UpdateWithMove([]byte("reinit-1"), stateProof(20, 6))
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, uint64(6), r.Latest().TurnCount())
	require.Equal(t, uint64(5), r.OnChainTurnCount())
}

func TestRollingStateUpdateWithMoveDetachedEpoch(t *testing.T) {
	r := newTestRolling(t)
	meta1 := testMetadata("reinit-1")
	meta2 := testMetadata("reinit-2")

	_, err := r.UpdateOnChain(meta1, addition.State(0, 1), stateProof(10, 5))
	require.NoError(t, err)
	_, err = r.UpdateOnChain(meta2, addition.State(5, 1), stateProof(5, 1))
	require.NoError(t, err)

	// An update to the detached first epoch reports no change on the
	// active state, but is retained for a later switch back.
	changed, err := r.UpdateWithMove([]byte("reinit-1"), stateProof(20, 6))
	require.NoError(t, err)
	require.False(t, changed)

	_, err = r.UpdateOnChain(meta1, addition.State(0, 1), stateProof(10, 5))
	require.NoError(t, err)
	require.Equal(t, uint64(6), r.Latest().TurnCount())
}
