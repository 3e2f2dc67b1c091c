package channel

import (
	"github.com/stretchr/testify/mock"
)

// MockVerifier is a testify mock for SignatureVerifier, shared by tests
// across the module.
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) VerifyParticipantSignatures(id ID, meta *Metadata, topic string, data *SignedData) (map[int]bool, error) {
	args := m.MethodCalled("VerifyParticipantSignatures", id, meta, topic, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]bool), args.Error(1)
}

// MockSigner is a testify mock for SignatureSigner.
type MockSigner struct {
	mock.Mock
}

func (m *MockSigner) SignMessage(msg string) ([]byte, error) {
	args := m.MethodCalled("SignMessage", msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
