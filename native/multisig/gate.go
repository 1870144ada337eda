package multisig

import (
	"errors"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	errNilState           = errors.New("multisig gate: state not configured")
	ErrEmptyTarget        = errors.New("multisig gate: target operation required")
	ErrZeroInitiator      = errors.New("multisig gate: initiator required")
	ErrUnknownApplication = errors.New("multisig gate: no application for target")
	ErrNotSigner          = errors.New("multisig gate: endorser is not a registered signer")
	ErrThresholdNotMet    = errors.New("multisig gate: signature threshold not met")
	ErrSignerExists       = errors.New("multisig gate: signer already registered")
	ErrSignerUnknown      = errors.New("multisig gate: signer not registered")
	ErrSignerFloor        = errors.New("multisig gate: signer set would fall below threshold")
)

// Application tracks one pending administrative approval. Signatures is a set:
// re-endorsing inserts nothing and never advances the threshold twice.
type Application struct {
	Key        [32]byte
	Initiator  [20]byte
	Target     []byte
	Signatures [][20]byte
	CreatedAt  int64
}

// Clone returns a deep copy of the application.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	clone := &Application{Key: a.Key, Initiator: a.Initiator, CreatedAt: a.CreatedAt}
	clone.Target = append([]byte(nil), a.Target...)
	clone.Signatures = append([][20]byte(nil), a.Signatures...)
	return clone
}

// Signed reports whether the signer has already endorsed the application.
func (a *Application) Signed(signer [20]byte) bool {
	if a == nil {
		return false
	}
	for _, s := range a.Signatures {
		if s == signer {
			return true
		}
	}
	return false
}

type gateState interface {
	MultisigGetApplication(key [32]byte) (*Application, error)
	MultisigPutApplication(app *Application) error
	MultisigSigners() ([][20]byte, error)
	MultisigPutSigners(signers [][20]byte) error
}

// Gate answers yes/no authorization queries for administrative mutations. It
// never executes the gated operation itself; callers check Authorized and then
// proceed or abort.
type Gate struct {
	state          gateState
	threshold      uint32
	initialSigners [][20]byte
	nowFn          func() time.Time
}

// NewGate constructs a gate with the bootstrap signer set and threshold. The
// initial signers are written to state on first use; afterwards rotation must
// itself pass through the gate.
func NewGate(threshold uint32, signers [][20]byte) *Gate {
	if threshold == 0 {
		threshold = 1
	}
	return &Gate{
		threshold:      threshold,
		initialSigners: append([][20]byte(nil), signers...),
		nowFn:          func() time.Time { return time.Now().UTC() },
	}
}

// SetState wires the gate to the external persistence layer.
func (g *Gate) SetState(state gateState) { g.state = state }

// SetNowFunc overrides the clock used to stamp applications. Nil restores the
// default UTC clock.
func (g *Gate) SetNowFunc(now func() time.Time) {
	if now == nil {
		g.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	g.nowFn = now
}

// Threshold reports the number of distinct signer endorsements required.
func (g *Gate) Threshold() uint32 { return g.threshold }

// ApplicationKey derives the deterministic key for an (initiator, target)
// pair.
func ApplicationKey(initiator [20]byte, target []byte) [32]byte {
	var key [32]byte
	digest := ethcrypto.Keccak256(initiator[:], target)
	copy(key[:], digest)
	return key
}

// Propose opens (or returns) the application for the initiator and target.
// Proposing an already-open application is a no-op so gathering endorsements
// can resume across attempts.
func (g *Gate) Propose(initiator [20]byte, target []byte) ([32]byte, error) {
	if g == nil || g.state == nil {
		return [32]byte{}, errNilState
	}
	if initiator == ([20]byte{}) {
		return [32]byte{}, ErrZeroInitiator
	}
	if len(target) == 0 {
		return [32]byte{}, ErrEmptyTarget
	}
	key := ApplicationKey(initiator, target)
	existing, err := g.state.MultisigGetApplication(key)
	if err != nil {
		return [32]byte{}, err
	}
	if existing != nil {
		return key, nil
	}
	app := &Application{
		Key:       key,
		Initiator: initiator,
		Target:    append([]byte(nil), target...),
		CreatedAt: g.nowFn().Unix(),
	}
	if err := g.state.MultisigPutApplication(app); err != nil {
		return [32]byte{}, err
	}
	return key, nil
}

// Endorse records the signer's approval of the application. The operation is
// idempotent: a repeated endorsement neither errors nor counts twice.
func (g *Gate) Endorse(signer, initiator [20]byte, target []byte) error {
	if g == nil || g.state == nil {
		return errNilState
	}
	registered, err := g.isSigner(signer)
	if err != nil {
		return err
	}
	if !registered {
		return ErrNotSigner
	}
	key := ApplicationKey(initiator, target)
	app, err := g.state.MultisigGetApplication(key)
	if err != nil {
		return err
	}
	if app == nil {
		return ErrUnknownApplication
	}
	if app.Signed(signer) {
		return nil
	}
	app.Signatures = append(app.Signatures, signer)
	return g.state.MultisigPutApplication(app)
}

// Authorized reports whether the application for the (initiator, target) pair
// has gathered signatures from at least threshold distinct registered signers.
func (g *Gate) Authorized(initiator [20]byte, target []byte) (bool, error) {
	if g == nil || g.state == nil {
		return false, errNilState
	}
	app, err := g.state.MultisigGetApplication(ApplicationKey(initiator, target))
	if err != nil {
		return false, err
	}
	if app == nil {
		return false, nil
	}
	signers, err := g.signers()
	if err != nil {
		return false, err
	}
	registered := make(map[[20]byte]struct{}, len(signers))
	for _, s := range signers {
		registered[s] = struct{}{}
	}
	count := uint32(0)
	for _, sig := range app.Signatures {
		if _, ok := registered[sig]; ok {
			count++
		}
	}
	return count >= g.threshold, nil
}

// AddSigner registers a new signer. The rotation must have been authorized
// through the gate for the calling initiator.
func (g *Gate) AddSigner(initiator, signer [20]byte) error {
	if g == nil || g.state == nil {
		return errNilState
	}
	if signer == ([20]byte{}) {
		return ErrZeroInitiator
	}
	ok, err := g.Authorized(initiator, AddSignerTarget(signer))
	if err != nil {
		return err
	}
	if !ok {
		return ErrThresholdNotMet
	}
	signers, err := g.signers()
	if err != nil {
		return err
	}
	for _, s := range signers {
		if s == signer {
			return ErrSignerExists
		}
	}
	return g.state.MultisigPutSigners(append(signers, signer))
}

// RemoveSigner drops a signer from the registry, refusing when the remaining
// set could no longer satisfy the threshold.
func (g *Gate) RemoveSigner(initiator, signer [20]byte) error {
	if g == nil || g.state == nil {
		return errNilState
	}
	ok, err := g.Authorized(initiator, RemoveSignerTarget(signer))
	if err != nil {
		return err
	}
	if !ok {
		return ErrThresholdNotMet
	}
	signers, err := g.signers()
	if err != nil {
		return err
	}
	remaining := make([][20]byte, 0, len(signers))
	found := false
	for _, s := range signers {
		if s == signer {
			found = true
			continue
		}
		remaining = append(remaining, s)
	}
	if !found {
		return ErrSignerUnknown
	}
	if uint32(len(remaining)) < g.threshold {
		return ErrSignerFloor
	}
	return g.state.MultisigPutSigners(remaining)
}

// Signers returns the active registered signer set.
func (g *Gate) Signers() ([][20]byte, error) {
	if g == nil || g.state == nil {
		return nil, errNilState
	}
	return g.signers()
}

func (g *Gate) isSigner(addr [20]byte) (bool, error) {
	signers, err := g.signers()
	if err != nil {
		return false, err
	}
	for _, s := range signers {
		if s == addr {
			return true, nil
		}
	}
	return false, nil
}

// signers loads the registry, seeding it with the construction-time set on
// first access. This resolves the rotation bootstrap dependency.
func (g *Gate) signers() ([][20]byte, error) {
	stored, err := g.state.MultisigSigners()
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return stored, nil
	}
	seeded := append([][20]byte(nil), g.initialSigners...)
	if err := g.state.MultisigPutSigners(seeded); err != nil {
		return nil, err
	}
	return seeded, nil
}
