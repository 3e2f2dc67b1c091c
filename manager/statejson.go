package manager

import (
	"encoding/base64"

	"github.com/xaya/gamechannel/board"
	"github.com/xaya/gamechannel/channel"
)

// ParticipantJSON is the external representation of one participant.
type ParticipantJSON struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// MetadataJSON is the external representation of channel metadata. The
// proto field carries the full encoded metadata, so frontends can hand
// it back without understanding it.
type MetadataJSON struct {
	Participants []ParticipantJSON `json:"participants"`
	Reinit       string            `json:"reinit"`
	Proto        string            `json:"proto"`
}

// StateJSON is the external representation of one board state. The raw
// encoded state is always present; parsed is the game-specific JSON
// form and whoseturn is null when it is no player's turn.
type StateJSON struct {
	Base64    string `json:"base64"`
	Parsed    any    `json:"parsed,omitempty"`
	WhoseTurn *int   `json:"whoseturn"`
	TurnCount uint64 `json:"turncount"`
}

// CurrentJSON describes the latest known channel state.
type CurrentJSON struct {
	Meta  MetadataJSON `json:"meta"`
	State StateJSON    `json:"state"`
}

// DisputeJSON describes an open dispute.
type DisputeJSON struct {
	Height     uint64 `json:"height"`
	WhoseTurn  int    `json:"whoseturn"`
	CanResolve bool   `json:"canresolve"`
}

// PendingJSON lists the transaction IDs of our unconfirmed moves.
type PendingJSON struct {
	PutStateOnChain string `json:"putstateonchain,omitempty"`
	Dispute         string `json:"dispute,omitempty"`
	Resolution      string `json:"resolution,omitempty"`
}

// ChannelJSON is the full external state of a managed channel, as
// returned to frontends.
type ChannelJSON struct {
	ID            string `json:"id"`
	PlayerName    string `json:"playername"`
	ExistsOnChain bool   `json:"existsonchain"`
	Version       uint64 `json:"version"`

	BlockHash string  `json:"blockhash,omitempty"`
	Height    *uint64 `json:"height,omitempty"`

	Current *CurrentJSON `json:"current,omitempty"`
	Dispute *DisputeJSON `json:"dispute,omitempty"`
	Pending PendingJSON  `json:"pending"`
}

// MetadataToJSON converts channel metadata to its external form.
func MetadataToJSON(meta *channel.Metadata) (MetadataJSON, error) {
	encoded, err := channel.EncodeMetadata(meta)
	if err != nil {
		return MetadataJSON{}, err
	}
	participants := make([]ParticipantJSON, len(meta.Participants))
	for i, p := range meta.Participants {
		participants[i] = ParticipantJSON{Name: p.Name, Address: p.Address}
	}
	return MetadataJSON{
		Participants: participants,
		Reinit:       base64.StdEncoding.EncodeToString(meta.Reinit),
		Proto:        base64.StdEncoding.EncodeToString(encoded),
	}, nil
}

// BoardStateToJSON converts a board state to its external form.
func BoardStateToJSON(rules board.Rules, id channel.ID,
	meta *channel.Metadata, state board.State) (StateJSON, error) {

	parsed, err := rules.ParseState(id, meta, state)
	if err != nil {
		return StateJSON{}, err
	}

	res := StateJSON{
		Base64:    base64.StdEncoding.EncodeToString(state),
		Parsed:    parsed.JSON(),
		TurnCount: parsed.TurnCount(),
	}
	if turn := parsed.WhoseTurn(); turn != board.NoTurn {
		res.WhoseTurn = &turn
	}
	return res, nil
}

// ToJSON returns the full external state of the channel.
func (m *ChannelManager) ToJSON() (*ChannelJSON, error) {
	res := &ChannelJSON{
		ID:            m.id.Hex(),
		PlayerName:    m.player,
		ExistsOnChain: m.exists,
		Version:       m.version,
		Pending: PendingJSON{
			PutStateOnChain: m.pendingPut,
			Dispute:         m.pendingDispute,
			Resolution:      m.pendingResolution,
		},
	}
	if m.haveBlock {
		res.BlockHash = m.blockHash
		height := m.height
		res.Height = &height
	}
	if !m.exists {
		return res, nil
	}

	meta := m.states.Metadata()
	metaJSON, err := MetadataToJSON(meta)
	if err != nil {
		return nil, err
	}
	stateJSON, err := BoardStateToJSON(m.rules, m.id, meta, m.states.Proof().EndState())
	if err != nil {
		return nil, err
	}
	res.Current = &CurrentJSON{Meta: metaJSON, State: stateJSON}

	if m.dispute != nil {
		res.Dispute = &DisputeJSON{
			Height:     m.dispute.Height,
			WhoseTurn:  m.dispute.Turn,
			CanResolve: m.states.Latest().TurnCount() > m.dispute.Count,
		}
	}
	return res, nil
}
