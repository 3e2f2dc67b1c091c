package channel

// ProtoVersion identifies which version of the wire-format rules a
// channel enforces. The version to use for a channel is decided by the
// game rules based on the channel's metadata, so that games can roll out
// format changes at a chosen block height without breaking old channels.
type ProtoVersion int

const (
	// VersionOriginal is the initial version of the channel protocol.
	VersionOriginal ProtoVersion = iota
)

// CheckSignedDataVersion reports whether the signed data matches the
// given protocol version.
func CheckSignedDataVersion(v ProtoVersion, d *SignedData) bool {
	switch v {
	case VersionOriginal:
		return d.ForTestingVersion == nil
	default:
		return false
	}
}

// CheckProofVersion reports whether the proof and all signed states
// within it match the given protocol version.
func CheckProofVersion(v ProtoVersion, p *StateProof) bool {
	if !CheckSignedDataVersion(v, p.InitialState) {
		return false
	}
	for _, t := range p.Transitions {
		if !CheckSignedDataVersion(v, t.NewState) {
			return false
		}
	}
	return true
}
