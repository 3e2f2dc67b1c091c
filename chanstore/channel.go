package chanstore

import (
	"bytes"

	badger "github.com/dgraph-io/badger/v4"
	"go.dedis.ch/protobuf"

	"github.com/xaya/gamechannel/channel"
)

// record is the persisted form of a channel. The state proof is elided
// when it is the trivial proof of the reinitialisation state, and a
// dispute height of zero means no dispute.
type record struct {
	Metadata      []byte
	ReinitState   []byte
	StateProof    []byte
	DisputeHeight uint64
}

// Channel is a handle on one persisted channel record. Mutations mark
// the handle dirty; Commit writes a dirty handle back to the store.
type Channel struct {
	store *Store
	id    channel.ID

	meta        *channel.Metadata
	reinitState []byte
	proof       *channel.StateProof

	disputeHeight uint64
	// Dispute height currently in the on-disk index, so Commit can
	// replace the index entry when the height changes.
	storedDisputeHeight uint64

	dirty bool
}

func decodeChannel(s *Store, id channel.ID, value []byte) (*Channel, error) {
	var rec record
	if err := protobuf.Decode(value, &rec); err != nil {
		return nil, err
	}

	meta, err := channel.DecodeMetadata(rec.Metadata)
	if err != nil {
		return nil, err
	}

	prf := channel.TrivialProof(rec.ReinitState)
	if len(rec.StateProof) > 0 {
		if prf, err = channel.DecodeProof(rec.StateProof); err != nil {
			return nil, err
		}
	}

	return &Channel{
		store:               s,
		id:                  id,
		meta:                meta,
		reinitState:         rec.ReinitState,
		proof:               prf,
		disputeHeight:       rec.DisputeHeight,
		storedDisputeHeight: rec.DisputeHeight,
	}, nil
}

// ID returns the channel's ID.
func (c *Channel) ID() channel.ID {
	return c.id
}

// Metadata returns the channel's metadata, or nil if the channel has
// not been initialised yet.
func (c *Channel) Metadata() *channel.Metadata {
	return c.meta
}

// ReinitState returns the base state of the current epoch.
func (c *Channel) ReinitState() []byte {
	return c.reinitState
}

// StateProof returns the proof for the channel's latest known state.
func (c *Channel) StateProof() *channel.StateProof {
	return c.proof
}

// LatestState returns the channel's latest known state without
// validating the stored proof (it was validated before being stored).
func (c *Channel) LatestState() []byte {
	return c.proof.EndState()
}

// Reinitialise starts a fresh epoch with the given metadata and base
// state, resetting the proof to the trivial one. A reinitialisation
// must carry a reinit ID different from the current one.
func (c *Channel) Reinitialise(meta *channel.Metadata, state []byte) error {
	if c.meta != nil && bytes.Equal(c.meta.Reinit, meta.Reinit) {
		return ErrSameReinit
	}
	c.meta = meta.Clone()
	c.reinitState = bytes.Clone(state)
	c.proof = channel.TrivialProof(c.reinitState)
	c.dirty = true
	return nil
}

// SetStateProof replaces the channel's latest proof.
func (c *Channel) SetStateProof(p *channel.StateProof) {
	c.proof = p
	c.dirty = true
}

// HasDispute reports whether the channel has an open dispute.
func (c *Channel) HasDispute() bool {
	return c.disputeHeight > 0
}

// DisputeHeight returns the block height of the open dispute, or zero
// if there is none.
func (c *Channel) DisputeHeight() uint64 {
	return c.disputeHeight
}

// SetDisputeHeight records an open dispute filed at the given height.
func (c *Channel) SetDisputeHeight(height uint64) error {
	if height == 0 {
		return ErrZeroDisputeHeight
	}
	c.disputeHeight = height
	c.dirty = true
	return nil
}

// ClearDispute removes any open dispute.
func (c *Channel) ClearDispute() {
	c.disputeHeight = 0
	c.dirty = true
}

// Commit writes the handle back to the store if it has been modified
// since it was loaded or last committed.
func (c *Channel) Commit() error {
	if !c.dirty {
		return nil
	}
	if c.meta == nil {
		return ErrUninitialised
	}

	metaBytes, err := channel.EncodeMetadata(c.meta)
	if err != nil {
		return err
	}
	rec := record{
		Metadata:      metaBytes,
		ReinitState:   c.reinitState,
		DisputeHeight: c.disputeHeight,
	}
	// Space optimisation: the trivial proof is implied by the reinit
	// state and not stored.
	if !c.isTrivialProof() {
		if rec.StateProof, err = channel.EncodeProof(c.proof); err != nil {
			return err
		}
	}
	value, err := protobuf.Encode(&rec)
	if err != nil {
		return err
	}

	err = c.store.db.Update(func(txn *badger.Txn) error {
		if c.storedDisputeHeight != c.disputeHeight && c.storedDisputeHeight > 0 {
			if err := txn.Delete(disputeKey(c.storedDisputeHeight, c.id)); err != nil {
				return err
			}
		}
		if c.disputeHeight > 0 {
			if err := txn.Set(disputeKey(c.disputeHeight, c.id), nil); err != nil {
				return err
			}
		}
		return txn.Set(channelKey(c.id), value)
	})
	if err != nil {
		return err
	}

	c.storedDisputeHeight = c.disputeHeight
	c.dirty = false
	c.store.log.Debug("committed channel record", "channel", c.id.Hex(),
		"dispute-height", c.disputeHeight)
	return nil
}

func (c *Channel) isTrivialProof() bool {
	return len(c.proof.Transitions) == 0 &&
		len(c.proof.InitialState.Signatures) == 0 &&
		bytes.Equal(c.proof.InitialState.Data, c.reinitState)
}
