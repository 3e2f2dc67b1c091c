package chanstore

import (
	"context"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/ristretto/v2/z"
)

const streamLogPrefix = "Chanstore.Streaming"

// StreamChannels concurrently iterates over a snapshot of all channel
// records and invokes the callback for each. Unlike ForEach, the order
// of delivery is unspecified; this is meant for bulk export and
// inspection of large tables.
func (s *Store) StreamChannels(ctx context.Context, fn func(*Channel) error) error {
	send := func(buf *z.Buffer) error {
		kvList, err := badger.BufferToKVList(buf)
		if err != nil {
			return err
		}
		for _, kv := range kvList.GetKv() {
			id, err := idFromChannelKey(kv.GetKey())
			if err != nil {
				return err
			}
			ch, err := decodeChannel(s, id, kv.GetValue())
			if err != nil {
				return err
			}
			if err := fn(ch); err != nil {
				return err
			}
		}
		return nil
	}

	stream := s.db.NewStream()
	stream.Prefix = []byte{channelPrefix}
	stream.Send = send
	stream.LogPrefix = streamLogPrefix

	return stream.Orchestrate(ctx)
}
