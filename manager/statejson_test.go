package manager

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xaya/gamechannel/channel"
	"github.com/xaya/gamechannel/internal/addition"
)

func TestMetadataToJSON(t *testing.T) {
	meta := testMetadata("reinit-1")
	res, err := MetadataToJSON(meta)
	require.NoError(t, err)

	require.Equal(t, []ParticipantJSON{
		{Name: "alice", Address: "addr-alice"},
		{Name: "bob", Address: "addr-bob"},
	}, res.Participants)
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("reinit-1")), res.Reinit)

	// The proto field round-trips to the full metadata.
	raw, err := base64.StdEncoding.DecodeString(res.Proto)
	require.NoError(t, err)
	decoded, err := channel.DecodeMetadata(raw)
	require.NoError(t, err)
	require.True(t, meta.Equal(decoded))
}

func TestBoardStateToJSON(t *testing.T) {
	meta := testMetadata("reinit-1")

	res, err := BoardStateToJSON(addition.Rules{}, testID, meta, addition.State(13, 6))
	require.NoError(t, err)
	require.Equal(t, base64.StdEncoding.EncodeToString(addition.State(13, 6)), res.Base64)
	require.Equal(t, uint64(6), res.TurnCount)
	require.NotNil(t, res.WhoseTurn)
	require.Equal(t, 1, *res.WhoseTurn)
	require.Equal(t, map[string]any{"number": 13, "count": uint64(6)}, res.Parsed)

	// Once the game has ended, whoseturn is null.
	res, err = BoardStateToJSON(addition.Rules{}, testID, meta, addition.State(100, 7))
	require.NoError(t, err)
	require.Nil(t, res.WhoseTurn)
}

func TestManagerToJSON(t *testing.T) {
	m, onChain, _ := newTestManager(t)

	res, err := m.ToJSON()
	require.NoError(t, err)
	require.Equal(t, testID.Hex(), res.ID)
	require.Equal(t, "alice", res.PlayerName)
	require.False(t, res.ExistsOnChain)
	require.Nil(t, res.Height)
	require.Nil(t, res.Current)
	require.Nil(t, res.Dispute)

	require.NoError(t, m.ProcessOffChain([]byte("reinit-1"), fresherProof()))
	onChain.On("SendResolution", mock.Anything).Return("txid-res", nil).Once()
	processOnChain(t, m, 10, 5, 10)
	require.NoError(t, m.ProcessOffChain([]byte("reinit-1"), fresherProof()))

	res, err = m.ToJSON()
	require.NoError(t, err)
	require.True(t, res.ExistsOnChain)
	require.Equal(t, "blk", res.BlockHash)
	require.NotNil(t, res.Height)
	require.Equal(t, uint64(42), *res.Height)

	require.NotNil(t, res.Current)
	require.Equal(t, uint64(6), res.Current.State.TurnCount)
	require.Len(t, res.Current.Meta.Participants, 2)

	require.NotNil(t, res.Dispute)
	require.Equal(t, uint64(10), res.Dispute.Height)
	require.Equal(t, 0, res.Dispute.WhoseTurn)
	require.True(t, res.Dispute.CanResolve)

	require.Equal(t, "txid-res", res.Pending.Resolution)

	// The whole thing marshals cleanly.
	raw, err := json.Marshal(res)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"existsonchain":true`)
}
