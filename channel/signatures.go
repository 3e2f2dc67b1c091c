package channel

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

var ErrInvalidTopic = errors.New("channel: topic contains NUL byte")

// Topics namespace the messages being signed, so that a signature on a
// board state can never be repurposed as a signature on something else.
const (
	// TopicState is the topic for signatures on board states.
	TopicState = "state"
	// TopicMove is the topic for signatures on standalone move data.
	TopicMove = "move"
)

// SignatureMessage computes the message that participants actually sign
// for the given raw data. It commits to the channel ID, the current
// reinitialisation and the topic, so that signatures are only ever valid
// for one channel, one epoch and one purpose.
//
// The topic must not contain a NUL byte, since NUL separates the hashed
// fields.
func SignatureMessage(id ID, meta *Metadata, topic string, data []byte) (string, error) {
	if strings.ContainsRune(topic, 0) {
		return "", ErrInvalidTopic
	}

	h := sha256.New()
	h.Write(id[:])
	h.Write([]byte(base64.StdEncoding.EncodeToString(meta.Reinit)))
	h.Write([]byte{0})
	h.Write([]byte(topic))
	h.Write([]byte{0})
	h.Write(data)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// SignatureVerifier checks which channel participants have validly
// signed a piece of data. Implementations may go through a wallet RPC or
// verify locally held keys; either way they are injected where needed.
type SignatureVerifier interface {
	// VerifyParticipantSignatures returns the set of participant
	// indices (into meta.Participants) that have a valid signature on
	// the given signed data. Invalid signatures are simply ignored.
	VerifyParticipantSignatures(id ID, meta *Metadata, topic string, data *SignedData) (map[int]bool, error)
}

// SignatureSigner signs messages with a single address, typically the
// local player's channel address.
type SignatureSigner interface {
	// SignMessage signs the given message and returns the raw signature.
	SignMessage(msg string) ([]byte, error)
}
