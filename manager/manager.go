package manager

import (
	"encoding/base64"
	"errors"
	"log/slog"

	"github.com/xaya/gamechannel/board"
	"github.com/xaya/gamechannel/channel"
	"github.com/xaya/gamechannel/proof"
)

// ErrStaleLocalMove is returned when a locally built proof fails to
// apply to the rolling state, which cannot happen for a proof that was
// just extended from it.
var ErrStaleLocalMove = errors.New("manager: locally extended proof did not apply")

// DisputeInfo describes the dispute currently open on-chain for the
// channel.
type DisputeInfo struct {
	// Height is the block height at which the dispute was filed.
	Height uint64
	// Turn is the participant index whose move is being waited for.
	Turn int
	// Count is the turn count of the disputed state.
	Count uint64
}

// Config collects the dependencies of a ChannelManager.
type Config struct {
	Rules    board.Rules
	Verifier channel.SignatureVerifier
	Signer   channel.SignatureSigner
	Game     OpenChannel

	ID channel.ID
	// PlayerName is the on-chain name of the local player.
	PlayerName string

	Log *slog.Logger
}

// ChannelManager runs one channel on behalf of the local player. It
// merges updates from the chain, from the off-chain broadcast and from
// the local user into the rolling state, broadcasts fresh states, takes
// automatic moves and files or resolves disputes as needed.
//
// A ChannelManager is not safe for concurrent use. All updates must be
// delivered from a single goroutine; implementations typically funnel
// chain and broadcast events through one dispatcher.
type ChannelManager struct {
	rules  board.Rules
	signer channel.SignatureSigner
	game   OpenChannel
	id     channel.ID
	player string
	log    *slog.Logger

	states   *RollingState
	offChain OffChainSender
	onChain  MoveSender

	// exists is whether the channel currently exists on-chain. The
	// rolling state and dispute fields are meaningful only if it does.
	exists    bool
	blockHash string
	height    uint64
	haveBlock bool

	dispute *DisputeInfo

	// Transaction IDs of moves we sent that may still be unconfirmed.
	// They gate re-sending until the chain tells us they are gone.
	pendingDispute    string
	pendingResolution string
	pendingPut        string

	version   uint64
	callbacks []func()
	stopped   bool
}

// New creates a ChannelManager from the given configuration.
func New(cfg Config) *ChannelManager {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("channel", cfg.ID.Hex(), "player", cfg.PlayerName)
	return &ChannelManager{
		rules:  cfg.Rules,
		signer: cfg.Signer,
		game:   cfg.Game,
		id:     cfg.ID,
		player: cfg.PlayerName,
		log:    log,
		states: NewRollingState(cfg.Rules, cfg.Verifier, cfg.ID, log),
	}
}

// SetOffChainSender attaches the broadcast channel used for publishing
// fresh states.
func (m *ChannelManager) SetOffChainSender(s OffChainSender) {
	m.offChain = s
}

// SetMoveSender attaches the on-chain sender used for disputes,
// resolutions and game moves.
func (m *ChannelManager) SetMoveSender(s MoveSender) {
	m.onChain = s
}

// ID returns the channel ID being managed.
func (m *ChannelManager) ID() channel.ID {
	return m.id
}

// PlayerName returns the on-chain name of the local player.
func (m *ChannelManager) PlayerName() string {
	return m.player
}

// Version returns the current state version. It is bumped on every
// potential change, so frontends can long-poll for updates.
func (m *ChannelManager) Version() uint64 {
	return m.version
}

// OnStateChange registers a callback invoked (synchronously) whenever
// the channel state may have changed.
func (m *ChannelManager) OnStateChange(cb func()) {
	m.callbacks = append(m.callbacks, cb)
}

func (m *ChannelManager) notifyStateChange() {
	m.version++
	for _, cb := range m.callbacks {
		cb()
	}
}

// StopUpdates marks the manager as stopped. Further updates are ignored,
// which keeps the final state stable during shutdown.
func (m *ChannelManager) StopUpdates() {
	m.log.Info("stopping channel updates")
	m.stopped = true
	m.notifyStateChange()
}

func (m *ChannelManager) setBlock(blockHash string, height uint64) {
	m.blockHash = blockHash
	m.height = height
	m.haveBlock = true
}

// clearConfirmedPending drops tracked transaction IDs that are no
// longer in the mempool, either because they confirmed in the block
// just processed or because they were evicted.
func (m *ChannelManager) clearConfirmedPending() {
	if m.onChain == nil {
		return
	}
	for _, txid := range []*string{&m.pendingDispute, &m.pendingResolution, &m.pendingPut} {
		if *txid != "" && !m.onChain.IsPending(*txid) {
			m.log.Info("pending transaction is gone from mempool", "txid", *txid)
			*txid = ""
		}
	}
}

// ProcessOnChainNonExistant tells the manager that, as of the given
// block, the channel does not exist on-chain (not yet created, or
// already closed).
func (m *ChannelManager) ProcessOnChainNonExistant(blockHash string, height uint64) {
	if m.stopped {
		return
	}
	m.setBlock(blockHash, height)
	if m.exists {
		m.log.Info("channel no longer exists on-chain", "height", height)
	}
	m.exists = false
	if m.offChain != nil {
		m.offChain.SetParticipants(&channel.Metadata{})
	}
	m.notifyStateChange()
}

// ProcessOnChain delivers the confirmed on-chain channel data for the
// given block: metadata, reinitialisation state, latest proof and the
// height of an open dispute (zero for none).
func (m *ChannelManager) ProcessOnChain(blockHash string, height uint64,
	meta *channel.Metadata, reinitState board.State,
	p *channel.StateProof, disputeHeight uint64) error {

	if m.stopped {
		return nil
	}
	m.setBlock(blockHash, height)
	m.exists = true
	m.clearConfirmedPending()

	if _, err := m.states.UpdateOnChain(meta, reinitState, p); err != nil {
		return err
	}

	if disputeHeight == 0 {
		m.dispute = nil
	} else {
		parsed, err := m.rules.ParseState(m.id, meta, p.EndState())
		if err != nil {
			return err
		}
		m.dispute = &DisputeInfo{
			Height: disputeHeight,
			Turn:   parsed.WhoseTurn(),
			Count:  parsed.TurnCount(),
		}
		m.log.Info("channel has an open dispute",
			"dispute-height", disputeHeight, "turn", m.dispute.Turn,
			"count", m.dispute.Count)
	}

	if m.offChain != nil {
		m.offChain.SetParticipants(meta)
	}

	return m.processStateUpdate(false)
}

// ProcessOffChain delivers a state proof received from the off-chain
// broadcast for the given reinitialisation.
func (m *ChannelManager) ProcessOffChain(reinitID []byte, p *channel.StateProof) error {
	if m.stopped {
		return nil
	}
	changed, err := m.states.UpdateWithMove(reinitID, p)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return m.processStateUpdate(false)
}

// applyLocalMove extends the current proof by a local move and folds it
// back into the rolling state. A move that does not fit the current
// state (for instance because a fresher state arrived concurrently) is
// logged and dropped; the caller can retry from the new state.
func (m *ChannelManager) applyLocalMove(mv board.Move) (bool, error) {
	newProof, err := proof.Extend(m.states.verifier, m.signer, m.rules, m.id,
		m.states.Metadata(), m.states.Proof(), mv)
	if err != nil {
		m.log.Warn("failed to apply local move", "error", err)
		return false, nil
	}

	changed, err := m.states.UpdateWithMove(m.states.ReinitID(), newProof)
	if err != nil {
		return false, err
	}
	if !changed {
		// Extend starts from the freshest known state, so the result
		// must always apply.
		return false, ErrStaleLocalMove
	}
	return true, nil
}

// ProcessLocalMove takes a move on behalf of the local player: the
// current proof is extended, signed and the result broadcast.
func (m *ChannelManager) ProcessLocalMove(mv board.Move) error {
	if m.stopped {
		return nil
	}
	if !m.exists {
		m.log.Warn("local move for channel that does not exist on-chain")
		return nil
	}
	applied, err := m.applyLocalMove(mv)
	if err != nil || !applied {
		return err
	}
	return m.processStateUpdate(true)
}

// processAutoMoves applies automatic moves for as long as it is the
// local player's turn and the game has one to take. It returns whether
// any move was applied.
func (m *ChannelManager) processAutoMoves() (bool, error) {
	found := false
	for {
		state := m.states.Latest()
		if state == nil {
			return found, nil
		}
		turn := state.WhoseTurn()
		if turn == board.NoTurn {
			return found, nil
		}
		meta := m.states.Metadata()
		if turn < 0 || turn >= len(meta.Participants) ||
			meta.Participants[turn].Name != m.player {
			return found, nil
		}

		mv, ok := m.game.MaybeAutoMove(state)
		if !ok {
			return found, nil
		}
		m.log.Info("taking automatic move", "count", state.TurnCount())

		applied, err := m.applyLocalMove(mv)
		if err != nil || !applied {
			return found, err
		}
		found = true
	}
}

// TriggerAutoMoves prompts the manager to re-check for automatic moves,
// for instance after user input changed what the game would do (like a
// move being selected that can now be committed automatically).
func (m *ChannelManager) TriggerAutoMoves() error {
	if m.stopped || !m.exists {
		return nil
	}
	found, err := m.processAutoMoves()
	if err != nil || !found {
		return err
	}
	return m.processStateUpdate(true)
}

// processStateUpdate is the shared tail of all update paths: apply
// automatic moves, broadcast if anything new was produced locally,
// react to disputes and give the game a chance for on-chain moves.
func (m *ChannelManager) processStateUpdate(broadcast bool) error {
	if m.exists {
		found, err := m.processAutoMoves()
		if err != nil {
			return err
		}
		if found {
			broadcast = true
		}

		if broadcast && m.offChain != nil {
			if err := m.offChain.SendNewState(m.states.ReinitID(), m.states.Proof()); err != nil {
				// Broadcast failures are transient; the state is resent
				// with the next update anyway.
				m.log.Warn("failed to broadcast state", "error", err)
			}
		}

		m.tryResolveDispute()

		if m.onChain != nil {
			if err := m.game.MaybeOnChainMove(m.states.Metadata(), m.states.Latest(), m.onChain); err != nil {
				return err
			}
		}
	}

	m.notifyStateChange()
	return nil
}

// tryResolveDispute sends a resolution if an open dispute targets the
// local player and we hold a state that refutes it. At most one
// resolution is in flight at any time.
func (m *ChannelManager) tryResolveDispute() {
	if !m.exists || m.dispute == nil || m.onChain == nil {
		return
	}
	if m.pendingResolution != "" {
		return
	}

	meta := m.states.Metadata()
	if m.dispute.Turn < 0 || m.dispute.Turn >= len(meta.Participants) {
		return
	}
	if meta.Participants[m.dispute.Turn].Name != m.player {
		return
	}
	if m.states.Latest().TurnCount() <= m.dispute.Count {
		m.log.Info("open dispute cannot be resolved yet",
			"disputed-count", m.dispute.Count)
		return
	}

	txid, err := m.onChain.SendResolution(m.states.Proof())
	if err != nil {
		m.log.Error("failed to send resolution", "error", err)
		return
	}
	if txid != "" {
		m.pendingResolution = txid
	}
}

// FileDispute opens a dispute on the channel based on the latest known
// state. It returns the transaction ID, or an empty string if nothing
// was sent (channel absent, dispute already open or still pending).
func (m *ChannelManager) FileDispute() string {
	if m.stopped || !m.exists || m.onChain == nil {
		return ""
	}
	if m.dispute != nil {
		m.log.Warn("not filing dispute, channel already has one")
		return ""
	}
	if m.pendingDispute != "" {
		m.log.Warn("not filing dispute, one is already pending",
			"txid", m.pendingDispute)
		return ""
	}

	txid, err := m.onChain.SendDispute(m.states.Proof())
	if err != nil {
		m.log.Error("failed to send dispute", "error", err)
		return ""
	}
	m.pendingDispute = txid
	return txid
}

// PutStateOnChain submits the latest known state as a resolution even
// without an open dispute, making it visible on-chain (for instance
// before closing the channel). It returns the transaction ID, or an
// empty string if the on-chain state is already as fresh.
func (m *ChannelManager) PutStateOnChain() string {
	if m.stopped || !m.exists || m.onChain == nil {
		return ""
	}
	if m.states.Latest().TurnCount() <= m.states.OnChainTurnCount() {
		m.log.Info("on-chain state is up to date, not sending resolution")
		return ""
	}
	if m.pendingPut != "" {
		m.log.Warn("state update is already pending", "txid", m.pendingPut)
		return ""
	}

	txid, err := m.onChain.SendResolution(m.states.Proof())
	if err != nil {
		m.log.Error("failed to put state on-chain", "error", err)
		return ""
	}
	m.pendingPut = txid
	return txid
}

func reinitBase64(reinit []byte) string {
	return base64.StdEncoding.EncodeToString(reinit)
}
