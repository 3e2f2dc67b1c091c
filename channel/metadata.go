package channel

import (
	"bytes"
	"errors"
)

var ErrNoParticipants = errors.New("channel: metadata has no participants")

// Participant describes one channel participant: the player's on-chain
// name and the address whose signatures bind the player off-chain.
type Participant struct {
	Name    string
	Address string
}

// Metadata is the on-chain metadata of a channel: the ordered list of
// participants and the reinitialisation ID of the current epoch. Whenever
// the channel is reinitialised (for instance when a participant joins),
// the reinit ID changes and a fresh state lineage begins.
type Metadata struct {
	Participants []*Participant
	Reinit       []byte
}

// ParticipantIndex returns the index of the participant with the given
// name, or -1 if no such participant exists.
func (m *Metadata) ParticipantIndex(name string) int {
	for i, p := range m.Participants {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// Equal reports whether two metadata instances are exactly the same.
func (m *Metadata) Equal(other *Metadata) bool {
	if m == nil || other == nil {
		return m == other
	}
	if !bytes.Equal(m.Reinit, other.Reinit) || len(m.Participants) != len(other.Participants) {
		return false
	}
	for i, p := range m.Participants {
		if *p != *other.Participants[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the metadata. Parsed board states hold on
// to metadata beyond the caller's scope, so they clone it up front rather
// than relying on the caller keeping the original alive.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	c := &Metadata{Reinit: bytes.Clone(m.Reinit)}
	c.Participants = make([]*Participant, len(m.Participants))
	for i, p := range m.Participants {
		cp := *p
		c.Participants[i] = &cp
	}
	return c
}
