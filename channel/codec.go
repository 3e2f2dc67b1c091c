package channel

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"

	"go.dedis.ch/protobuf"
)

var (
	ErrMalformedMessage = errors.New("channel: malformed message")
	ErrUnknownFields    = errors.New("channel: message carries unknown fields")
)

// The wire format for channel messages is protobuf, produced via
// reflection from the message structs. Decoding is strict: a blob that
// does not re-encode to exactly the bytes it was decoded from carries
// fields this protocol version does not know about (or a non-canonical
// encoding) and is rejected before any processing.

// EncodeMetadata serialises channel metadata into its wire form.
func EncodeMetadata(m *Metadata) ([]byte, error) {
	return protobuf.Encode(m)
}

// DecodeMetadata parses channel metadata from its wire form.
func DecodeMetadata(b []byte) (*Metadata, error) {
	m := &Metadata{}
	if err := decodeStrict(b, m); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeProof serialises a state proof into its wire form.
func EncodeProof(p *StateProof) ([]byte, error) {
	return protobuf.Encode(p)
}

// DecodeProof parses a state proof from its wire form.
func DecodeProof(b []byte) (*StateProof, error) {
	p := &StateProof{}
	if err := decodeStrict(b, p); err != nil {
		return nil, err
	}
	if p.InitialState == nil {
		return nil, fmt.Errorf("%w: proof without initial state", ErrMalformedMessage)
	}
	for _, t := range p.Transitions {
		if t == nil || t.NewState == nil {
			return nil, fmt.Errorf("%w: transition without new state", ErrMalformedMessage)
		}
	}
	return p, nil
}

// ProofToBase64 returns the base64 wire form of a proof, as embedded in
// on-chain dispute and resolution moves.
func ProofToBase64(p *StateProof) (string, error) {
	b, err := EncodeProof(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// ProofFromBase64 parses a proof from its base64 wire form.
func ProofFromBase64(s string) (*StateProof, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return DecodeProof(b)
}

func decodeStrict(b []byte, msg any) error {
	if err := protobuf.Decode(b, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	again, err := protobuf.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if !bytes.Equal(b, again) {
		return ErrUnknownFields
	}
	return nil
}
