package channel

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
)

// IDLen is the length of a channel ID in bytes.
const IDLen = 32

var ErrInvalidID = errors.New("channel: invalid channel ID")

// ID is the 256-bit identifier of a game channel. It is typically the
// transaction ID of the move that created the channel on-chain.
type ID [IDLen]byte

// IDFromHex parses a channel ID from its hex representation.
func IDFromHex(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	if len(b) != IDLen {
		return id, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidID, len(b), IDLen)
	}
	copy(id[:], b)
	return id, nil
}

// IDFromBytes parses a channel ID from its raw byte representation.
func IDFromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != IDLen {
		return id, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidID, len(b), IDLen)
	}
	copy(id[:], b)
	return id, nil
}

// Hex returns the lower-case hex representation of the ID.
func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id ID) String() string {
	return id.Hex()
}

// IsZero reports whether the ID is all zero bytes.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Bytes returns the raw bytes of the ID.
func (id ID) Bytes() []byte {
	return bytes.Clone(id[:])
}
