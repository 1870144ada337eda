package core

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"pledgechain/config"
	"pledgechain/core/events"
	"pledgechain/core/types"
	"pledgechain/native/lend"
	"pledgechain/native/multisig"
	"pledgechain/native/oracle"
	"pledgechain/native/swapx"
	"pledgechain/native/token"
	"pledgechain/state"
	"pledgechain/storage"
)

// journalCap bounds the in-memory event journal served to indexers.
const journalCap = 4096

// JournalEntry is one emitted event with its position in the node's event
// stream.
type JournalEntry struct {
	Sequence uint64      `json:"sequence"`
	Event    types.Event `json:"event"`
}

// Node wires the persistence layer to the native engines and serializes all
// mutating operations behind one lock. The key-value store has no transaction
// support, so the node is the single writer.
type Node struct {
	mu    sync.Mutex
	db    storage.Database
	state *state.Manager
	log   *slog.Logger

	lendEngine *lend.Engine
	tokens     *token.Ledger
	gate       *multisig.Gate
	oracle     *oracle.Adapter

	journalMu sync.RWMutex
	journal   []JournalEntry
	seq       uint64
}

// NewNode builds a node from configuration on top of an opened database.
func NewNode(db storage.Database, cfg *config.Config, log *slog.Logger) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: nil database")
	}
	if cfg == nil {
		return nil, fmt.Errorf("core: nil config")
	}
	if log == nil {
		log = slog.Default()
	}

	moduleAddr, err := config.ParseAddress(cfg.ModuleAddress)
	if err != nil {
		return nil, fmt.Errorf("core: module address: %w", err)
	}
	signers, err := config.ParseAddresses(cfg.Signers)
	if err != nil {
		return nil, fmt.Errorf("core: signers: %w", err)
	}
	feeders, err := config.ParseAddresses(cfg.OracleFeeders)
	if err != nil {
		return nil, fmt.Errorf("core: oracle feeders: %w", err)
	}
	minContribution, err := cfg.MinContributionAmount()
	if err != nil {
		return nil, err
	}

	manager := state.NewManager(db)
	node := &Node{db: db, state: manager, log: log}

	gate := multisig.NewGate(cfg.SignerThreshold, signers)
	gate.SetState(manager)

	tokens := token.NewLedger(moduleAddr)
	tokens.SetState(manager)

	priceOracle := oracle.NewAdapter(time.Duration(cfg.OracleMaxAgeSeconds)*time.Second, feeders)
	priceOracle.SetState(manager)
	priceOracle.SetAuthorizer(gate, oracleTargets{})

	engine := lend.NewEngine(moduleAddr)
	engine.SetState(manager)
	engine.SetEmitter(node)
	engine.SetShareLedger(tokens)
	engine.SetOracle(priceOracle)
	engine.SetGate(gate)
	engine.SetSwapDeadline(time.Duration(cfg.SwapDeadlineSeconds) * time.Second)

	var feeRecipient [20]byte
	if cfg.FeeRecipient != "" {
		feeRecipient, err = config.ParseAddress(cfg.FeeRecipient)
		if err != nil {
			return nil, fmt.Errorf("core: fee recipient: %w", err)
		}
	}
	if err := engine.SetInitialParams(big.NewInt(cfg.LendFeeRate), big.NewInt(cfg.BorrowFeeRate), minContribution, feeRecipient); err != nil {
		return nil, err
	}

	node.lendEngine = engine
	node.tokens = tokens
	node.gate = gate
	node.oracle = priceOracle
	return node, nil
}

// AttachSwapVenue installs the on-ledger venue used to convert collateral at
// resolution. The venue trades against the node's shared account store.
func (n *Node) AttachSwapVenue(feeBps uint64, venueAddr [20]byte) *swapx.Venue {
	venue := swapx.NewVenue(n.state, venueAddr, feeBps)
	n.lendEngine.SetExecutor(venue)
	return venue
}

// Lend exposes the pool engine.
func (n *Node) Lend() *lend.Engine { return n.lendEngine }

// Tokens exposes the claim-token ledger.
func (n *Node) Tokens() *token.Ledger { return n.tokens }

// Gate exposes the threshold approval gate.
func (n *Node) Gate() *multisig.Gate { return n.gate }

// Oracle exposes the price adapter.
func (n *Node) Oracle() *oracle.Adapter { return n.oracle }

// State exposes the persistence manager, primarily for genesis funding.
func (n *Node) State() *state.Manager { return n.state }

// WithWriteLock runs fn while holding the node's single-writer lock.
func (n *Node) WithWriteLock(fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn()
}

// Emit journals an engine event and mirrors it to the structured log.
func (n *Node) Emit(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	payload := carrier.Event()
	if payload == nil {
		return
	}

	n.journalMu.Lock()
	n.seq++
	entry := JournalEntry{Sequence: n.seq, Event: *payload}
	n.journal = append(n.journal, entry)
	if len(n.journal) > journalCap {
		n.journal = n.journal[len(n.journal)-journalCap:]
	}
	n.journalMu.Unlock()

	attrs := make([]any, 0, 2*len(payload.Attributes)+2)
	attrs = append(attrs, "event", payload.Type)
	for k, v := range payload.Attributes {
		attrs = append(attrs, k, v)
	}
	n.log.Info("ledger event", attrs...)
}

// EventsSince returns the journal entries with a sequence strictly greater
// than after, oldest first. Entries evicted from the bounded journal are gone.
func (n *Node) EventsSince(after uint64) []JournalEntry {
	n.journalMu.RLock()
	defer n.journalMu.RUnlock()
	out := make([]JournalEntry, 0, len(n.journal))
	for _, entry := range n.journal {
		if entry.Sequence > after {
			out = append(out, entry)
		}
	}
	return out
}

// oracleTargets binds feeder rotation to the shared gate target encoding.
type oracleTargets struct{}

func (oracleTargets) AddFeeder(feeder [20]byte) []byte {
	return multisig.SetFeederTarget(feeder, true)
}

func (oracleTargets) RemoveFeeder(feeder [20]byte) []byte {
	return multisig.SetFeederTarget(feeder, false)
}
