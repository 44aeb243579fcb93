// Package simulated is an in-process ledger that mints instantly. It lets the
// whole issuance and verification flow run without a chain, and supports fault
// injection so callers can exercise every failure branch.
package simulated

import (
	"cmp"
	"context"
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"certify/internal/anchor"
)

const (
	genesisBlock   = 4_800_000
	defaultAddress = "0x5151515151515151515151515151515151515151"
)

type token struct {
	record anchor.OnChainRecord
	owner  string
}

// sentTx is a broadcast mint that has not been mined.
type sentTx struct {
	req    anchor.MintRequest
	minted *anchor.MintReceipt
}

// Ledger is a simulated certificate contract plus signing wallet.
type Ledger struct {
	mu         sync.Mutex
	network    anchor.NetworkInfo
	wallet     string
	balance    *big.Int
	connected  bool
	authorized bool
	mintErr    error
	verifyErr  error
	block      uint64
	nextID     uint64
	stall      bool
	broadcasts int
	txs        map[string]*sentTx
	tokens     map[string]*token
	now        func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithNetwork overrides the reported network description. Simulated is forced on.
func WithNetwork(n anchor.NetworkInfo) Option {
	return func(l *Ledger) {
		l.network = n
	}
}

// WithClock overrides the mint timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// New returns a connected, authorized simulated ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		network: anchor.NetworkInfo{
			Name:            "simulated",
			ChainID:         "31337",
			ContractAddress: "0x000000000000000000000000000000000000c3e7",
		},
		wallet:     defaultAddress,
		balance:    new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18)),
		connected:  true,
		authorized: true,
		block:      genesisBlock,
		txs:        make(map[string]*sentTx),
		tokens:     make(map[string]*token),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.network.Simulated = true
	return l
}

// SetConnected toggles wallet connectivity.
func (l *Ledger) SetConnected(connected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = connected
}

// SetAuthorized toggles the wallet's minter role.
func (l *Ledger) SetAuthorized(authorized bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.authorized = authorized
}

// FailMints makes every Mint return err until called again with nil.
func (l *Ledger) FailMints(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mintErr = err
}

// FailVerifies makes every Verify return err until called again with nil.
func (l *Ledger) FailVerifies(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verifyErr = err
}

// StallMints makes Mint broadcast without mining, returning an unconfirmed
// error carrying the transaction ID, until called again with false.
func (l *Ledger) StallMints(stall bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stall = stall
}

// MinePending mines every stalled transaction and returns how many it mined.
func (l *Ledger) MinePending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for txID, tx := range l.txs {
		if tx.minted == nil {
			tx.minted = l.mintLocked(txID, tx.req)
			n++
		}
	}
	return n
}

// DropPending forgets every stalled transaction, as a node evicting them would.
func (l *Ledger) DropPending() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for txID, tx := range l.txs {
		if tx.minted == nil {
			delete(l.txs, txID)
		}
	}
}

// Broadcasts counts mint transactions sent, mined or not.
func (l *Ledger) Broadcasts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.broadcasts
}

// Revoke marks an anchored certificate invalid on the simulated contract.
func (l *Ledger) Revoke(onChainID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tokens[onChainID]
	if ok {
		t.record.IsValid = false
	}
	return ok
}

// Tamper rewrites the metadata address recorded on chain.
func (l *Ledger) Tamper(onChainID, metadataContentHash string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tokens[onChainID]
	if ok {
		t.record.MetadataContentHash = metadataContentHash
	}
	return ok
}

func (l *Ledger) Mint(ctx context.Context, req anchor.MintRequest) (*anchor.MintReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, anchor.NewError(anchor.KindNetwork, "mint", "context done", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.mintErr != nil:
		return nil, l.mintErr
	case !l.connected:
		return nil, anchor.NewError(anchor.KindNetwork, "mint", "wallet not connected", nil)
	case !l.authorized:
		return nil, anchor.NewError(anchor.KindNotAuthorized, "mint", "wallet lacks minter role", nil)
	case l.balance.Sign() <= 0:
		return nil, anchor.NewError(anchor.KindInsufficientFunds, "mint", "wallet balance is zero", nil)
	}

	txID := randomTxHash()
	l.broadcasts++
	if l.stall {
		l.txs[txID] = &sentTx{req: req}
		return nil, anchor.NewUnconfirmed("mint", txID, "transaction not mined", nil)
	}
	receipt := l.mintLocked(txID, req)
	l.txs[txID] = &sentTx{req: req, minted: receipt}
	return receipt, nil
}

func (l *Ledger) mintLocked(txID string, req anchor.MintRequest) *anchor.MintReceipt {
	l.nextID++
	l.block += 1 + uint64(randomByte()%12)
	id := strconv.FormatUint(l.nextID, 10)
	minted := l.now().UTC()
	owner := req.RecipientAddress
	if owner == "" {
		owner = l.wallet
	}
	l.tokens[id] = &token{
		owner: strings.ToLower(owner),
		record: anchor.OnChainRecord{
			OnChainID:           id,
			MetadataContentHash: req.MetadataContentHash,
			IsValid:             true,
			MintedAtEpoch:       minted.Unix(),
			CourseID:            req.CourseID,
			CourseName:          req.CourseName,
			CompletionEpoch:     req.CompletionEpoch,
		},
	}
	return &anchor.MintReceipt{
		OnChainID:     id,
		TransactionID: txID,
		BlockNumber:   l.block,
		MintedAt:      minted,
	}
}

func (l *Ledger) Confirm(ctx context.Context, txID string) (*anchor.MintReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, anchor.NewError(anchor.KindNetwork, "confirm", "context done", err)
	}
	if !validTxHash(txID) {
		return nil, anchor.NewError(anchor.KindInvalidInput, "confirm", "transaction id is malformed", nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return nil, anchor.NewError(anchor.KindNetwork, "confirm", "wallet not connected", nil)
	}
	tx, ok := l.txs[txID]
	switch {
	case !ok:
		return nil, anchor.NewError(anchor.KindNotFound, "confirm", "transaction unknown", nil)
	case tx.minted == nil:
		return nil, anchor.NewUnconfirmed("confirm", txID, "transaction not mined", nil)
	}
	receipt := *tx.minted
	return &receipt, nil
}

func (l *Ledger) Verify(ctx context.Context, onChainID string) (*anchor.OnChainRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, anchor.NewError(anchor.KindNetwork, "verify", "context done", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.verifyErr != nil {
		return nil, l.verifyErr
	}
	t, ok := l.tokens[onChainID]
	if !ok {
		return nil, anchor.NewError(anchor.KindNotFound, "verify", "certificate does not exist", nil)
	}
	rec := t.record
	return &rec, nil
}

func (l *Ledger) CertificatesOf(_ context.Context, owner string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner = strings.ToLower(owner)
	var ids []string
	for id, t := range l.tokens {
		if t.owner == owner {
			ids = append(ids, id)
		}
	}
	sortNumeric(ids)
	return ids, nil
}

func (l *Ledger) CanMint(_ context.Context, address string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return false, anchor.NewError(anchor.KindNetwork, "can_mint", "wallet not connected", nil)
	}
	if !strings.EqualFold(address, l.wallet) {
		return false, nil
	}
	return l.authorized && l.balance.Sign() > 0, nil
}

func (l *Ledger) WalletState(_ context.Context) (anchor.WalletState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return anchor.WalletState{
		Connected: l.connected,
		Address:   l.wallet,
		Balance:   new(big.Int).Set(l.balance),
	}, nil
}

func (l *Ledger) TotalIssued(_ context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextID, nil
}

func (l *Ledger) Network() anchor.NetworkInfo {
	return l.network
}

func randomByte() byte {
	var b [1]byte
	_, _ = rand.Read(b[:])
	return b[0]
}

func randomTxHash() string {
	var b [32]byte
	_, _ = rand.Read(b[:])
	return "0x" + hex.EncodeToString(b[:])
}

func validTxHash(txID string) bool {
	raw, ok := strings.CutPrefix(txID, "0x")
	if !ok || len(raw) != 64 {
		return false
	}
	_, err := hex.DecodeString(raw)
	return err == nil
}

func sortNumeric(ids []string) {
	slices.SortFunc(ids, func(a, b string) int {
		x, _ := strconv.ParseUint(a, 10, 64)
		y, _ := strconv.ParseUint(b, 10, 64)
		return cmp.Compare(x, y)
	})
}

var _ anchor.Client = (*Ledger)(nil)
