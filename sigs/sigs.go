// Package sigs implements channel signatures with Schnorr over
// edwards25519. Participants are identified by the hex-encoded SHA-256
// hash of their marshalled public key, which is the address stored in
// the channel metadata.
package sigs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"

	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/group/edwards25519"
	"go.dedis.ch/kyber/v4/sign/schnorr"

	"github.com/xaya/gamechannel/channel"
)

var suite = edwards25519.NewBlakeSHA256Ed25519()

// ErrDuplicateAddress is returned when a public key is registered whose
// address is already known with a different key.
var ErrDuplicateAddress = errors.New("sigs: address already registered")

// Address derives the channel address of a public key.
func Address(pub kyber.Point) (string, error) {
	b, err := pub.MarshalBinary()
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(b)
	return hex.EncodeToString(hash[:]), nil
}

// Signer holds a private key and signs channel messages with it. It
// implements channel.SignatureSigner.
type Signer struct {
	priv kyber.Scalar
	pub  kyber.Point
}

// NewSigner creates a Signer with a fresh random key.
func NewSigner() *Signer {
	priv := suite.Scalar().Pick(suite.RandomStream())
	return &Signer{
		priv: priv,
		pub:  suite.Point().Mul(priv, nil),
	}
}

// NewSignerFromSecret derives a Signer deterministically from a secret
// seed, so wallets can recreate the channel key from stored material.
func NewSignerFromSecret(seed []byte) *Signer {
	priv := suite.Scalar().Pick(suite.XOF(seed))
	return &Signer{
		priv: priv,
		pub:  suite.Point().Mul(priv, nil),
	}
}

// PublicKey returns the signer's public key.
func (s *Signer) PublicKey() kyber.Point {
	return s.pub
}

// Address returns the channel address of the signer's key.
func (s *Signer) Address() (string, error) {
	return Address(s.pub)
}

// SignMessage signs the given message.
func (s *Signer) SignMessage(msg string) ([]byte, error) {
	return schnorr.Sign(suite, s.priv, []byte(msg))
}

// Verifier checks channel signatures against a registry of known public
// keys, indexed by address. It implements channel.SignatureVerifier.
type Verifier struct {
	keys map[string]kyber.Point
	log  *slog.Logger
}

// NewVerifier creates an empty Verifier.
func NewVerifier(log *slog.Logger) *Verifier {
	if log == nil {
		log = slog.Default()
	}
	return &Verifier{
		keys: make(map[string]kyber.Point),
		log:  log,
	}
}

// Register adds a public key to the registry and returns its address.
func (v *Verifier) Register(pub kyber.Point) (string, error) {
	addr, err := Address(pub)
	if err != nil {
		return "", err
	}
	if existing, found := v.keys[addr]; found && !existing.Equal(pub) {
		return "", ErrDuplicateAddress
	}
	v.keys[addr] = pub
	return addr, nil
}

// VerifyParticipantSignatures returns the set of participant indices
// with a valid signature on the data. Signatures by unknown keys or for
// participants whose key is not registered simply do not contribute.
func (v *Verifier) VerifyParticipantSignatures(id channel.ID, meta *channel.Metadata,
	topic string, data *channel.SignedData) (map[int]bool, error) {

	msg, err := channel.SignatureMessage(id, meta, topic, data.Data)
	if err != nil {
		return nil, err
	}

	res := make(map[int]bool)
	for _, sig := range data.Signatures {
		for i, p := range meta.Participants {
			if res[i] {
				continue
			}
			key, found := v.keys[p.Address]
			if !found {
				continue
			}
			if schnorr.Verify(suite, key, []byte(msg), sig) == nil {
				res[i] = true
				break
			}
		}
	}
	return res, nil
}
