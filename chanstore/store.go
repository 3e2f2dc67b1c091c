// Package chanstore persists per-channel records: metadata, the
// reinitialisation state, the latest state proof and any open dispute.
// Records are owned exclusively by whichever handle currently holds
// them; callers enforce single-writer access.
package chanstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/xaya/gamechannel/channel"
)

var (
	// ErrChannelNotFound is returned when no record exists for an ID.
	ErrChannelNotFound = errors.New("chanstore: channel not found")
	// ErrZeroDisputeHeight is returned when a dispute is recorded at
	// height zero, which encodes "no dispute".
	ErrZeroDisputeHeight = errors.New("chanstore: dispute height must be positive")
	// ErrSameReinit is returned when a channel is reinitialised with the
	// reinit ID it already has. Each epoch must have a fresh ID.
	ErrSameReinit = errors.New("chanstore: reinitialisation with unchanged reinit ID")
	// ErrUninitialised is returned when a fresh handle is committed
	// before its first Reinitialise set metadata and base state.
	ErrUninitialised = errors.New("chanstore: channel has not been initialised")
)

const (
	channelPrefix = 'c'
	disputePrefix = 'd'
)

// Store is the badger-backed table of channel records.
type Store struct {
	db  *badger.DB
	log *slog.Logger
}

// Open opens the store located at the provided directory, creating it
// if it does not exist.
func Open(dir string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := badger.Open(badger.DefaultOptions(dir))
	if err != nil {
		return nil, err
	}
	return &Store{db: db, log: log}, nil
}

// Close closes the store. It must be called once the store is done
// being used so all updates reach disk.
func (s *Store) Close() error {
	return s.db.Close()
}

func channelKey(id channel.ID) []byte {
	key := make([]byte, 0, 1+channel.IDLen)
	key = append(key, channelPrefix)
	return append(key, id[:]...)
}

func disputeKey(height uint64, id channel.ID) []byte {
	key := make([]byte, 0, 1+8+channel.IDLen)
	key = append(key, disputePrefix)
	key = binary.BigEndian.AppendUint64(key, height)
	return append(key, id[:]...)
}

// CreateNew returns a fresh handle for the given ID. The record reaches
// the store on Commit; an existing record with the same ID is replaced.
func (s *Store) CreateNew(id channel.ID) *Channel {
	s.log.Info("creating new channel record", "channel", id.Hex())
	return &Channel{store: s, id: id, dirty: true}
}

// GetByID returns the handle for the given ID, or ErrChannelNotFound.
func (s *Store) GetByID(id channel.ID) (*Channel, error) {
	var ch *Channel
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		ch, err = getChannel(txn, s, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// DeleteByID removes the record (and any dispute index entry) for the
// given ID. Deleting an absent record is a no-op.
func (s *Store) DeleteByID(id channel.ID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		ch, err := getChannel(txn, s, id)
		if errors.Is(err, ErrChannelNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if ch.disputeHeight > 0 {
			if err := txn.Delete(disputeKey(ch.disputeHeight, id)); err != nil {
				return err
			}
		}
		return txn.Delete(channelKey(id))
	})
}

// ForEach walks all channel records ordered by ID. Returning an error
// from the callback stops the walk.
func (s *Store) ForEach(fn func(*Channel) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{channelPrefix}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			ch, err := channelFromItem(s, it.Item())
			if err != nil {
				return err
			}
			if err := fn(ch); err != nil {
				return err
			}
		}
		return nil
	})
}

// DisputedBefore walks all channels whose dispute height is less than or
// equal to the given height, typically to time out disputes whose
// challenge window has passed.
func (s *Store) DisputedBefore(height uint64, fn func(*Channel) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{disputePrefix}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			if len(key) != 1+8+channel.IDLen {
				return fmt.Errorf("chanstore: malformed dispute index key of length %d", len(key))
			}
			if binary.BigEndian.Uint64(key[1:9]) > height {
				break
			}
			id, err := channel.IDFromBytes(key[9:])
			if err != nil {
				return err
			}
			ch, err := getChannel(txn, s, id)
			if err != nil {
				return err
			}
			if err := fn(ch); err != nil {
				return err
			}
		}
		return nil
	})
}

func getChannel(txn *badger.Txn, s *Store, id channel.ID) (*Channel, error) {
	item, err := txn.Get(channelKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, id.Hex())
	}
	if err != nil {
		return nil, err
	}
	return channelFromItem(s, item)
}

func idFromChannelKey(key []byte) (channel.ID, error) {
	if len(key) != 1+channel.IDLen {
		return channel.ID{}, fmt.Errorf("chanstore: malformed channel key of length %d", len(key))
	}
	return channel.IDFromBytes(key[1:])
}

func channelFromItem(s *Store, item *badger.Item) (*Channel, error) {
	id, err := idFromChannelKey(item.Key())
	if err != nil {
		return nil, err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return decodeChannel(s, id, value)
}
