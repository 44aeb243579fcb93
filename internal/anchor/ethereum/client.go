// Package ethereum anchors certificates on an EVM chain through the
// certificate contract. Every call is bounded by a timeout and guarded by a
// circuit breaker so an unreachable node fails fast as a network error.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"certify/internal/anchor"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/circuit"
)

// Backend is the chain access the client needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
}

// Config holds ledger connection settings.
type Config struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	NetworkName     string
	ExplorerURL     string
	Timeout         time.Duration
	ConfirmTimeout  time.Duration
}

// Validate reports missing settings as configuration errors.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.RPCURL) == "":
		return dErrors.New(dErrors.CodeConfiguration, "ledger rpc url is required")
	case !common.IsHexAddress(c.ContractAddress):
		return dErrors.New(dErrors.CodeConfiguration, "ledger contract address is missing or malformed")
	case strings.TrimSpace(c.PrivateKey) == "":
		return dErrors.New(dErrors.CodeConfiguration, "ledger signing key is required")
	}
	return nil
}

// Client is the live anchor.Client.
type Client struct {
	backend  Backend
	contract *bind.BoundContract
	abi      abi.ABI
	address  common.Address
	key      *ecdsa.PrivateKey
	signer   common.Address
	chainID  *big.Int
	cfg      Config
	breaker  *circuit.Breaker
	logger   *slog.Logger
	now      func() time.Time
	// mintMu serializes transactions from the one signing key so nonces do not race.
	mintMu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for breaker transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

// Dial connects to cfg.RPCURL and builds a Client.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Client, *ethclient.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial ledger rpc: %w", err)
	}
	chainCtx, cancel := context.WithTimeout(ctx, withDefault(cfg.Timeout, 10*time.Second))
	defer cancel()
	chainID, err := rpc.ChainID(chainCtx)
	if err != nil {
		rpc.Close()
		return nil, nil, fmt.Errorf("read chain id: %w", err)
	}
	client, err := New(rpc, cfg, chainID, opts...)
	if err != nil {
		rpc.Close()
		return nil, nil, err
	}
	return client, rpc, nil
}

// New builds a Client on an existing backend.
func New(backend Backend, cfg Config, chainID *big.Int, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "ledger signing key is malformed")
	}
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	if chainID == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "chain id is required")
	}
	cfg.Timeout = withDefault(cfg.Timeout, 15*time.Second)
	cfg.ConfirmTimeout = withDefault(cfg.ConfirmTimeout, 2*time.Minute)
	if cfg.NetworkName == "" {
		cfg.NetworkName = "chain-" + chainID.String()
	}

	address := common.HexToAddress(cfg.ContractAddress)
	c := &Client{
		backend:  backend,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		abi:      parsed,
		address:  address,
		key:      key,
		signer:   crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		cfg:      cfg,
		breaker:  circuit.New("ledger", circuit.WithFailureThreshold(3), circuit.WithCooldown(30*time.Second)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Signer returns the address transactions are sent from.
func (c *Client) Signer() common.Address {
	return c.signer
}

func (c *Client) Network() anchor.NetworkInfo {
	return anchor.NetworkInfo{
		Name:            c.cfg.NetworkName,
		ChainID:         c.chainID.String(),
		ContractAddress: c.address.Hex(),
		ExplorerBaseURL: c.cfg.ExplorerURL,
	}
}

func (c *Client) Mint(ctx context.Context, req anchor.MintRequest) (*anchor.MintReceipt, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	recipient := c.signer
	if req.RecipientAddress != "" {
		if !common.IsHexAddress(req.RecipientAddress) {
			return nil, anchor.NewError(anchor.KindInvalidInput, opMint, "recipient address is malformed", nil)
		}
		recipient = common.HexToAddress(req.RecipientAddress)
	}
	if err := c.allow(opMint); err != nil {
		return nil, err
	}

	c.mintMu.Lock()
	defer c.mintMu.Unlock()

	sendCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, anchor.NewError(anchor.KindInternal, opMint, "build transactor", err)
	}
	opts.Context = sendCtx
	opts.NoSend = true

	tx, err := c.contract.Transact(opts, methodMint,
		recipient,
		req.CourseID,
		req.CourseName,
		big.NewInt(req.CompletionEpoch),
		req.MetadataContentHash,
	)
	if err != nil {
		return nil, c.fail(classify(opMint, err))
	}
	if err := c.backend.SendTransaction(sendCtx, tx); err != nil {
		if maybeBroadcast(err) {
			c.fail(classify(opMint, err))
			return nil, anchor.NewUnconfirmed(opMint, tx.Hash().Hex(), "send outcome unknown", err)
		}
		return nil, c.fail(classify(opMint, err))
	}
	c.succeed()

	// From here on the transaction is out. Any failure to observe it must
	// surface as unconfirmed with its hash so nobody mints it a second time.
	waitCtx, cancelWait := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancelWait()
	receipt, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		return nil, anchor.NewUnconfirmed(opWaitMint, tx.Hash().Hex(), "transaction not confirmed before deadline", err)
	}
	return c.mintReceipt(opMint, tx.Hash(), receipt)
}

// Confirm looks up the receipt of a mint sent earlier. A missing receipt is
// pending while the node still knows the transaction and dropped otherwise.
func (c *Client) Confirm(ctx context.Context, txID string) (*anchor.MintReceipt, error) {
	txID = strings.TrimSpace(txID)
	if len(strings.TrimPrefix(txID, "0x")) != 2*common.HashLength {
		return nil, anchor.NewError(anchor.KindInvalidInput, opConfirm, "transaction id is malformed", nil)
	}
	if err := c.allow(opConfirm); err != nil {
		return nil, err
	}
	hash := common.HexToHash(txID)
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	receipt, err := c.backend.TransactionReceipt(callCtx, hash)
	if err == nil {
		c.succeed()
		return c.mintReceipt(opConfirm, hash, receipt)
	}
	if !errors.Is(err, geth.NotFound) {
		return nil, c.fail(classify(opConfirm, err))
	}

	_, _, err = c.backend.TransactionByHash(callCtx, hash)
	switch {
	case errors.Is(err, geth.NotFound):
		c.succeed()
		return nil, anchor.NewError(anchor.KindNotFound, opConfirm, "transaction "+hash.Hex()+" is unknown to the node", nil)
	case err != nil:
		return nil, c.fail(classify(opConfirm, err))
	}
	c.succeed()
	return nil, anchor.NewUnconfirmed(opConfirm, hash.Hex(), "transaction has no receipt yet", nil)
}

func (c *Client) mintReceipt(op string, hash common.Hash, receipt *types.Receipt) (*anchor.MintReceipt, error) {
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, anchor.NewError(anchor.KindMintFailed, op, "transaction "+hash.Hex()+" reverted", nil)
	}
	tokenID, err := c.tokenIDFromLogs(receipt.Logs)
	if err != nil {
		return nil, anchor.NewError(anchor.KindMintFailed, op, "mint event missing from receipt", err)
	}
	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	return &anchor.MintReceipt{
		OnChainID:     tokenID.String(),
		TransactionID: hash.Hex(),
		BlockNumber:   block,
		MintedAt:      c.now().UTC(),
	}, nil
}

func (c *Client) Verify(ctx context.Context, onChainID string) (*anchor.OnChainRecord, error) {
	tokenID, ok := new(big.Int).SetString(strings.TrimSpace(onChainID), 10)
	if !ok {
		return nil, anchor.NewError(anchor.KindNotFound, opVerify, "on-chain id is not numeric", nil)
	}
	out, err := c.call(ctx, opVerify, methodVerify, tokenID)
	if err != nil {
		return nil, err
	}
	if len(out) != 6 {
		return nil, anchor.NewError(anchor.KindInternal, opVerify, "unexpected verify output arity", nil)
	}
	metadataHash, _ := out[0].(string)
	isValid, _ := out[1].(bool)
	mintedAt, _ := out[2].(*big.Int)
	courseID, _ := out[3].(string)
	courseName, _ := out[4].(string)
	completion, _ := out[5].(*big.Int)

	return &anchor.OnChainRecord{
		OnChainID:           tokenID.String(),
		MetadataContentHash: metadataHash,
		IsValid:             isValid,
		MintedAtEpoch:       int64OrZero(mintedAt),
		CourseID:            courseID,
		CourseName:          courseName,
		CompletionEpoch:     int64OrZero(completion),
	}, nil
}

func (c *Client) CertificatesOf(ctx context.Context, owner string) ([]string, error) {
	if !common.IsHexAddress(owner) {
		return nil, anchor.NewError(anchor.KindInvalidInput, opByOwner, "owner address is malformed", nil)
	}
	out, err := c.call(ctx, opByOwner, methodByOwner, common.HexToAddress(owner))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	raw, _ := out[0].([]*big.Int)
	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, id.String())
	}
	return ids, nil
}

func (c *Client) CanMint(ctx context.Context, address string) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, nil
	}
	account := common.HexToAddress(address)
	out, err := c.call(ctx, opCanMint, methodHasRole, minterRole, account)
	if err != nil {
		return false, err
	}
	hasRole, _ := out[0].(bool)
	if !hasRole {
		return false, nil
	}
	balance, err := c.balance(ctx, account)
	if err != nil {
		return false, err
	}
	return balance.Sign() > 0, nil
}

// WalletState never fails on connectivity: an unreachable node reports Connected=false.
func (c *Client) WalletState(ctx context.Context) (anchor.WalletState, error) {
	state := anchor.WalletState{Address: c.signer.Hex()}
	balance, err := c.balance(ctx, c.signer)
	if err != nil {
		if anchor.KindOf(err) == anchor.KindNetwork {
			return state, nil
		}
		return state, err
	}
	state.Connected = true
	state.Balance = balance
	return state, nil
}

func (c *Client) TotalIssued(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, opTotal, methodTotalSupply)
	if err != nil {
		return 0, err
	}
	total, _ := out[0].(*big.Int)
	if total == nil {
		return 0, nil
	}
	return total.Uint64(), nil
}

func (c *Client) call(ctx context.Context, op, method string, args ...any) ([]any, error) {
	if err := c.allow(op); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: callCtx}, &out, method, args...); err != nil {
		return nil, c.fail(classify(op, err))
	}
	c.succeed()
	if len(out) == 0 {
		return nil, anchor.NewError(anchor.KindInternal, op, "empty call output", nil)
	}
	return out, nil
}

func (c *Client) balance(ctx context.Context, account common.Address) (*big.Int, error) {
	if err := c.allow(opWallet); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	balance, err := c.backend.BalanceAt(callCtx, account, nil)
	if err != nil {
		return nil, c.fail(classify(opWallet, err))
	}
	c.succeed()
	return balance, nil
}

func (c *Client) tokenIDFromLogs(logs []*types.Log) (*big.Int, error) {
	event, ok := c.abi.Events[eventMinted]
	if !ok {
		return nil, fmt.Errorf("abi has no %s event", eventMinted)
	}
	for _, lg := range logs {
		if lg == nil || len(lg.Topics) == 0 || lg.Topics[0] != event.ID || lg.Address != c.address {
			continue
		}
		var ev certificateMinted
		if err := c.contract.UnpackLog(&ev, eventMinted, *lg); err != nil {
			return nil, fmt.Errorf("unpack %s: %w", eventMinted, err)
		}
		if ev.TokenId == nil {
			return nil, fmt.Errorf("%s carried no token id", eventMinted)
		}
		return ev.TokenId, nil
	}
	return nil, fmt.Errorf("no %s log in receipt", eventMinted)
}

func (c *Client) allow(op string) error {
	if c.breaker.Allow() {
		return nil
	}
	return anchor.NewError(anchor.KindNetwork, op, "ledger circuit open", nil)
}

// fail feeds network failures to the breaker; contract-level rejections prove
// the node is reachable and count as successes.
func (c *Client) fail(err *anchor.Error) error {
	if err.Kind != anchor.KindNetwork {
		c.succeed()
		return err
	}
	if _, change := c.breaker.RecordFailure(); change.Opened && c.logger != nil {
		c.logger.Warn("ledger circuit opened", "breaker", c.breaker.Name(), "op", err.Op, "error", err)
	}
	return err
}

func (c *Client) succeed() {
	if _, change := c.breaker.RecordSuccess(); change.Closed && c.logger != nil {
		c.logger.Info("ledger circuit closed", "breaker", c.breaker.Name())
	}
}

func int64OrZero(v *big.Int) int64 {
	if v == nil || !v.IsInt64() {
		return 0
	}
	return v.Int64()
}

func withDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

var _ anchor.Client = (*Client)(nil)
