package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"pledgechain/core/types"
	"pledgechain/native/lend"
	"pledgechain/native/multisig"
	"pledgechain/native/oracle"
	"pledgechain/native/token"
	"pledgechain/storage"
)

const (
	accountPrefix          = "bank/acct/"
	poolCountKey           = "lend/pools/count"
	poolPrefix             = "lend/pool/"
	resolutionPrefix       = "lend/resolution/"
	lenderPositionPrefix   = "lend/lender/"
	borrowerPositionPrefix = "lend/borrower/"
	tokenMetaPrefix        = "token/meta/"
	tokenBalancePrefix     = "token/bal/"
	multisigAppPrefix      = "multisig/app/"
	multisigSignersKey     = "multisig/signers"
	oracleQuotesPrefix     = "oracle/quotes/"
	oracleFeedersKey       = "oracle/feeders"
)

// Manager layers domain encoding over a raw key-value database. It satisfies
// the persistence interfaces of every native engine: the lend engine, the
// token ledger, the multisig gate and the oracle adapter all share one
// manager, which gives operations their single-transaction view of state.
type Manager struct {
	db storage.Database
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) getJSON(key string, out interface{}) (bool, error) {
	raw, err := m.db.Get([]byte(key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

func (m *Manager) putJSON(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return m.db.Put([]byte(key), raw)
}

// GetAccount loads per-asset balances for an address. Missing accounts are
// reported as nil without error.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	acc := types.NewAccount()
	ok, err := m.getJSON(accountPrefix+hex.EncodeToString(addr[:]), acc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return acc, nil
}

// PutAccount persists per-asset balances for an address.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		account = types.NewAccount()
	}
	return m.putJSON(accountPrefix+hex.EncodeToString(addr[:]), account)
}

// PoolCount reports the number of pools ever created.
func (m *Manager) PoolCount() (uint64, error) {
	var count uint64
	if _, err := m.getJSON(poolCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// SetPoolCount persists the pool counter.
func (m *Manager) SetPoolCount(count uint64) error {
	return m.putJSON(poolCountKey, count)
}

// GetPool loads a pool record; missing pools are reported as nil.
func (m *Manager) GetPool(id uint64) (*lend.Pool, error) {
	pool := &lend.Pool{}
	ok, err := m.getJSON(poolPrefix+strconv.FormatUint(id, 10), pool)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return pool, nil
}

// PutPool persists a pool record.
func (m *Manager) PutPool(pool *lend.Pool) error {
	if pool == nil {
		return fmt.Errorf("state: nil pool")
	}
	return m.putJSON(poolPrefix+strconv.FormatUint(pool.ID, 10), pool)
}

// GetResolution loads a pool's resolution record; missing records are nil.
func (m *Manager) GetResolution(id uint64) (*lend.PoolResolution, error) {
	res := &lend.PoolResolution{}
	ok, err := m.getJSON(resolutionPrefix+strconv.FormatUint(id, 10), res)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return res, nil
}

// PutResolution persists a pool's resolution record.
func (m *Manager) PutResolution(id uint64, res *lend.PoolResolution) error {
	if res == nil {
		return fmt.Errorf("state: nil resolution")
	}
	return m.putJSON(resolutionPrefix+strconv.FormatUint(id, 10), res)
}

// GetLenderPosition loads a lend-side position; missing positions are nil.
func (m *Manager) GetLenderPosition(id uint64, addr [20]byte) (*lend.Position, error) {
	return m.getPosition(lenderPositionPrefix, id, addr)
}

// PutLenderPosition persists a lend-side position.
func (m *Manager) PutLenderPosition(id uint64, pos *lend.Position) error {
	return m.putPosition(lenderPositionPrefix, id, pos)
}

// GetBorrowerPosition loads a borrow-side position; missing positions are nil.
func (m *Manager) GetBorrowerPosition(id uint64, addr [20]byte) (*lend.Position, error) {
	return m.getPosition(borrowerPositionPrefix, id, addr)
}

// PutBorrowerPosition persists a borrow-side position.
func (m *Manager) PutBorrowerPosition(id uint64, pos *lend.Position) error {
	return m.putPosition(borrowerPositionPrefix, id, pos)
}

func (m *Manager) getPosition(prefix string, id uint64, addr [20]byte) (*lend.Position, error) {
	pos := &lend.Position{}
	ok, err := m.getJSON(positionKey(prefix, id, addr), pos)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return pos, nil
}

func (m *Manager) putPosition(prefix string, id uint64, pos *lend.Position) error {
	if pos == nil {
		return fmt.Errorf("state: nil position")
	}
	return m.putJSON(positionKey(prefix, id, pos.Address), pos)
}

func positionKey(prefix string, id uint64, addr [20]byte) string {
	return prefix + strconv.FormatUint(id, 10) + "/" + hex.EncodeToString(addr[:])
}

// TokenGet loads a token registry entry; missing tokens are nil.
func (m *Manager) TokenGet(id string) (*token.Token, error) {
	tok := &token.Token{}
	ok, err := m.getJSON(tokenMetaPrefix+strings.TrimSpace(id), tok)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return tok, nil
}

// TokenPut persists a token registry entry.
func (m *Manager) TokenPut(t *token.Token) error {
	if t == nil {
		return fmt.Errorf("state: nil token")
	}
	return m.putJSON(tokenMetaPrefix+t.ID, t)
}

// TokenBalance loads a holder balance; missing balances are zero.
func (m *Manager) TokenBalance(id string, addr [20]byte) (*big.Int, error) {
	bal := new(big.Int)
	ok, err := m.getJSON(tokenBalanceKey(id, addr), bal)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return bal, nil
}

// TokenSetBalance persists a holder balance.
func (m *Manager) TokenSetBalance(id string, addr [20]byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return m.putJSON(tokenBalanceKey(id, addr), amount)
}

func tokenBalanceKey(id string, addr [20]byte) string {
	return tokenBalancePrefix + strings.TrimSpace(id) + "/" + hex.EncodeToString(addr[:])
}

// MultisigGetApplication loads an approval application; missing entries are
// nil.
func (m *Manager) MultisigGetApplication(key [32]byte) (*multisig.Application, error) {
	app := &multisig.Application{}
	ok, err := m.getJSON(multisigAppPrefix+hex.EncodeToString(key[:]), app)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return app, nil
}

// MultisigPutApplication persists an approval application.
func (m *Manager) MultisigPutApplication(app *multisig.Application) error {
	if app == nil {
		return fmt.Errorf("state: nil application")
	}
	return m.putJSON(multisigAppPrefix+hex.EncodeToString(app.Key[:]), app)
}

// MultisigSigners loads the signer registry. Nil means the registry has never
// been written, which lets the gate seed its bootstrap set.
func (m *Manager) MultisigSigners() ([][20]byte, error) {
	var signers [][20]byte
	ok, err := m.getJSON(multisigSignersKey, &signers)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if signers == nil {
		signers = [][20]byte{}
	}
	return signers, nil
}

// MultisigPutSigners persists the signer registry.
func (m *Manager) MultisigPutSigners(signers [][20]byte) error {
	if signers == nil {
		signers = [][20]byte{}
	}
	return m.putJSON(multisigSignersKey, signers)
}

// OracleQuotes loads the posted quotes for an asset.
func (m *Manager) OracleQuotes(asset string) ([]oracle.Quote, error) {
	var quotes []oracle.Quote
	if _, err := m.getJSON(oracleQuotesPrefix+strings.ToUpper(strings.TrimSpace(asset)), &quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

// OraclePutQuotes persists the posted quotes for an asset.
func (m *Manager) OraclePutQuotes(asset string, quotes []oracle.Quote) error {
	if quotes == nil {
		quotes = []oracle.Quote{}
	}
	return m.putJSON(oracleQuotesPrefix+strings.ToUpper(strings.TrimSpace(asset)), quotes)
}

// OracleFeeders loads the feeder registry. Nil means never written, which
// lets the adapter seed its bootstrap set.
func (m *Manager) OracleFeeders() ([][20]byte, error) {
	var feeders [][20]byte
	ok, err := m.getJSON(oracleFeedersKey, &feeders)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if feeders == nil {
		feeders = [][20]byte{}
	}
	return feeders, nil
}

// OraclePutFeeders persists the feeder registry.
func (m *Manager) OraclePutFeeders(feeders [][20]byte) error {
	if feeders == nil {
		feeders = [][20]byte{}
	}
	return m.putJSON(oracleFeedersKey, feeders)
}
