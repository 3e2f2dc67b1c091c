package manager

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stretchr/testify/mock"

	"github.com/xaya/gamechannel/board"
	"github.com/xaya/gamechannel/channel"
	"github.com/xaya/gamechannel/internal/addition"
)

type mockMoveSender struct {
	mock.Mock
}

func (m *mockMoveSender) SendDispute(p *channel.StateProof) (string, error) {
	args := m.MethodCalled("SendDispute", p)
	return args.String(0), args.Error(1)
}

func (m *mockMoveSender) SendResolution(p *channel.StateProof) (string, error) {
	args := m.MethodCalled("SendResolution", p)
	return args.String(0), args.Error(1)
}

func (m *mockMoveSender) SendMove(mv json.RawMessage) (string, error) {
	args := m.MethodCalled("SendMove", mv)
	return args.String(0), args.Error(1)
}

func (m *mockMoveSender) IsPending(txid string) bool {
	args := m.MethodCalled("IsPending", txid)
	return args.Bool(0)
}

type mockOffChainSender struct {
	mock.Mock
}

func (m *mockOffChainSender) SendNewState(reinitID []byte, p *channel.StateProof) error {
	args := m.MethodCalled("SendNewState", reinitID, p)
	return args.Error(0)
}

func (m *mockOffChainSender) SetParticipants(meta *channel.Metadata) {
	m.MethodCalled("SetParticipants", meta)
}

type mockWallet struct {
	mock.Mock
}

func (m *mockWallet) SendMove(value json.RawMessage) (string, error) {
	args := m.MethodCalled("SendMove", value)
	return args.String(0), args.Error(1)
}

func (m *mockWallet) IsMovePending(txid string) (bool, error) {
	args := m.MethodCalled("IsMovePending", txid)
	return args.Bool(0), args.Error(1)
}

type mockMessageSender struct {
	mock.Mock
}

func (m *mockMessageSender) SendMessage(msg []byte) error {
	args := m.MethodCalled("SendMessage", msg)
	return args.Error(0)
}

// staticMessageSource yields its batches one by one and then blocks
// until the context is cancelled.
type staticMessageSource struct {
	batches [][][]byte
}

func (s *staticMessageSource) GetMessages(ctx context.Context) ([][]byte, error) {
	if len(s.batches) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

// additionChannel is the OpenChannel of the addition game: automoves
// per the game's rule, and once the number reaches 100 the result is
// declared on-chain (exactly once).
type additionChannel struct {
	resultSent bool
}

func (c *additionChannel) ResolutionMove(id channel.ID, p *channel.StateProof) (json.RawMessage, error) {
	encoded, err := channel.ProofToBase64(p)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(fmt.Sprintf(`{"resolution":%q}`, encoded)), nil
}

func (c *additionChannel) DisputeMove(id channel.ID, p *channel.StateProof) (json.RawMessage, error) {
	encoded, err := channel.ProofToBase64(p)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(fmt.Sprintf(`{"dispute":%q}`, encoded)), nil
}

func (c *additionChannel) MaybeAutoMove(state board.ParsedState) (board.Move, bool) {
	return addition.AutoMove(state)
}

func (c *additionChannel) MaybeOnChainMove(meta *channel.Metadata,
	state board.ParsedState, sender MoveSender) error {

	if addition.Number(state) < 100 || c.resultSent {
		return nil
	}
	if _, err := sender.SendMove(json.RawMessage(`{"result":"done"}`)); err != nil {
		return err
	}
	c.resultSent = true
	return nil
}
