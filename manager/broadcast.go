package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.dedis.ch/protobuf"
	"golang.org/x/sync/errgroup"

	"github.com/xaya/gamechannel/channel"
)

// BroadcastMessage is the wire form of one off-chain state broadcast:
// the proof together with the reinitialisation it belongs to, so that
// receivers can match it against the right epoch.
type BroadcastMessage struct {
	Reinit []byte
	Proof  *channel.StateProof
}

// EncodeBroadcast serialises a broadcast message.
func EncodeBroadcast(msg *BroadcastMessage) ([]byte, error) {
	return protobuf.Encode(msg)
}

// DecodeBroadcast parses a broadcast message received from the wire.
func DecodeBroadcast(b []byte) (*BroadcastMessage, error) {
	msg := &BroadcastMessage{}
	if err := protobuf.Decode(b, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrMalformedMessage, err)
	}
	if msg.Proof == nil || msg.Proof.InitialState == nil {
		return nil, fmt.Errorf("%w: broadcast without state proof", channel.ErrMalformedMessage)
	}
	return msg, nil
}

// MessageSender delivers raw broadcast payloads to the other channel
// participants, for instance through an XMPP room or a pub/sub topic.
type MessageSender interface {
	SendMessage(msg []byte) error
}

// MessageSource yields raw broadcast payloads received from the other
// participants. GetMessages blocks until at least one message is
// available or the context is done.
type MessageSource interface {
	GetMessages(ctx context.Context) ([][]byte, error)
}

// Broadcast connects a ChannelManager to an off-chain messaging
// transport. It implements OffChainSender for the outgoing direction
// and feeds received messages back into the manager.
//
// The manager itself is not thread-safe: Run delivers messages on its
// own goroutine, so applications must drive all other manager updates
// through the same event loop that owns Run.
type Broadcast struct {
	manager *ChannelManager
	sender  MessageSender
	log     *slog.Logger

	participants map[string]bool
}

// NewBroadcast creates a Broadcast for the given manager and transport.
func NewBroadcast(m *ChannelManager, sender MessageSender, log *slog.Logger) *Broadcast {
	if log == nil {
		log = slog.Default()
	}
	return &Broadcast{
		manager:      m,
		sender:       sender,
		log:          log.With("channel", m.ID().Hex()),
		participants: make(map[string]bool),
	}
}

// SetParticipants records the current channel participants. Transports
// that maintain per-participant subscriptions use Participants to keep
// them in sync.
func (b *Broadcast) SetParticipants(meta *channel.Metadata) {
	updated := make(map[string]bool, len(meta.Participants))
	for _, p := range meta.Participants {
		updated[p.Name] = true
	}
	for name := range updated {
		if !b.participants[name] {
			b.log.Info("participant joined broadcast", "name", name)
		}
	}
	for name := range b.participants {
		if !updated[name] {
			b.log.Info("participant left broadcast", "name", name)
		}
	}
	b.participants = updated
}

// Participants returns the current participant names in sorted order.
func (b *Broadcast) Participants() []string {
	names := make([]string, 0, len(b.participants))
	for name := range b.participants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SendNewState broadcasts the given proof for its reinitialisation.
func (b *Broadcast) SendNewState(reinitID []byte, p *channel.StateProof) error {
	raw, err := EncodeBroadcast(&BroadcastMessage{Reinit: reinitID, Proof: p})
	if err != nil {
		return err
	}
	b.log.Debug("broadcasting state", "size", len(raw))
	return b.sender.SendMessage(raw)
}

// FeedMessage processes one raw payload received from the transport.
// Malformed payloads are logged and dropped; peers can send garbage.
func (b *Broadcast) FeedMessage(msg []byte) error {
	decoded, err := DecodeBroadcast(msg)
	if err != nil {
		b.log.Warn("ignoring malformed broadcast", "error", err)
		return nil
	}
	return b.manager.ProcessOffChain(decoded.Reinit, decoded.Proof)
}

// Run receives messages from the source and feeds them to the manager
// until the context is cancelled.
func (b *Broadcast) Run(ctx context.Context, source MessageSource) error {
	messages := make(chan []byte)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(messages)
		for {
			batch, err := source.GetMessages(ctx)
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return err
			}
			for _, msg := range batch {
				select {
				case messages <- msg:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	g.Go(func() error {
		for msg := range messages {
			if err := b.FeedMessage(msg); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}
