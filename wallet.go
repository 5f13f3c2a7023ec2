package ethdemo

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
)

// WalletOption configures a Wallet.
type WalletOption func(*Wallet)

// WithPollInterval sets how often receipts and the chain head are polled.
// Default is DefaultPollInterval.
func WithPollInterval(d time.Duration) WalletOption {
	return func(w *Wallet) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithWalletLogger sets the wallet's logger. Default is log.Root().
func WithWalletLogger(l log.Logger) WalletOption {
	return func(w *Wallet) {
		w.log = l
	}
}

// chainReader is the part of the RPC client that receipt and head polling uses.
type chainReader interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Wallet signs transactions with one key and submits them to a JSON-RPC endpoint.
type Wallet struct {
	client       *ethclient.Client
	reader       chainReader
	key          *ecdsa.PrivateKey
	address      common.Address
	chainID      *big.Int
	pollInterval time.Duration
	log          log.Logger
}

// ParsePrivateKey decodes a hex secp256k1 key, with or without 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "ethdemo: parse private key")
	}
	return key, nil
}

// AddressOf returns the account address controlled by hexKey.
func AddressOf(hexKey string) (common.Address, error) {
	key, err := ParsePrivateKey(hexKey)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// NewWallet dials endpoint and binds hexKey to the chain it serves.
func NewWallet(ctx context.Context, hexKey, endpoint string, opts ...WalletOption) (*Wallet, error) {
	key, err := ParsePrivateKey(hexKey)
	if err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "ethdemo: dial %s", endpoint)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "ethdemo: chain id from %s", endpoint)
	}

	w := &Wallet{
		client:       client,
		reader:       client,
		key:          key,
		address:      crypto.PubkeyToAddress(key.PublicKey),
		chainID:      chainID,
		pollInterval: DefaultPollInterval,
		log:          log.Root(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Address returns the signer's address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// ChainID returns the chain ID reported by the endpoint.
func (w *Wallet) ChainID() *big.Int {
	return new(big.Int).Set(w.chainID)
}

// Client returns the underlying RPC client.
func (w *Wallet) Client() *ethclient.Client {
	return w.client
}

// Close releases the RPC connection.
func (w *Wallet) Close() {
	w.client.Close()
}

func (w *Wallet) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(w.key, w.chainID)
	if err != nil {
		return nil, errors.Wrap(err, "ethdemo: transactor")
	}
	opts.Context = ctx
	return opts, nil
}

// Deploy sends a contract creation and waits until it is mined with code at
// the new address.
func (w *Wallet) Deploy(ctx context.Context, contractABI abi.ABI, bytecode []byte, args ...any) (*Contract, error) {
	opts, err := w.transactOpts(ctx)
	if err != nil {
		return nil, err
	}

	address, tx, bound, err := bind.DeployContract(opts, contractABI, bytecode, w.client, args...)
	if err != nil {
		return nil, errors.Wrap(err, "ethdemo: deploy")
	}
	w.log.Debug("Sent deployment", "address", address, "tx", tx.Hash())

	receipt, err := w.waitMined(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, errors.Wrapf(ErrTransactionFailed, "deployment %s", tx.Hash().Hex())
	}

	code, err := w.client.CodeAt(ctx, address, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "ethdemo: code at %s", address.Hex())
	}
	if len(code) == 0 {
		return nil, errors.Wrap(ErrNotDeployed, address.Hex())
	}

	return &Contract{address: address, abi: contractABI, bound: bound, deployTx: tx.Hash()}, nil
}

// Bind attaches to a contract that is already deployed.
func (w *Wallet) Bind(address common.Address, contractABI abi.ABI) *Contract {
	return &Contract{
		address: address,
		abi:     contractABI,
		bound:   bind.NewBoundContract(address, contractABI, w.client, w.client, w.client),
	}
}

// Call sends a transaction invoking method on c. It does not wait for mining.
func (w *Wallet) Call(ctx context.Context, c *Contract, method string, args ...any) (*Transaction, error) {
	if !c.HasMethod(method) {
		return nil, &MethodNotFoundError{Contract: c.address, Method: method}
	}
	opts, err := w.transactOpts(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := c.bound.Transact(opts, method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "ethdemo: transact %s", method)
	}
	w.log.Debug("Sent transaction", "to", c.address, "method", method, "tx", tx.Hash())
	return &Transaction{tx: tx, wallet: w, contract: c}, nil
}

// waitMined polls for the receipt of hash until it is available or ctx ends.
// Like bind.WaitMined, every lookup error is retried: a node may answer
// "transaction indexing is in progress" before it answers "not found".
func (w *Wallet) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return w.pollReceipt(ctx, hash, nil)
}

// pollReceipt fetches the receipt of hash, retrying failed lookups every
// pollInterval. When missing is non-nil a "not found" answer returns missing
// instead of being retried.
func (w *Wallet) pollReceipt(ctx context.Context, hash common.Hash, missing error) (*types.Receipt, error) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		receipt, err := w.reader.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
			if missing != nil {
				return nil, missing
			}
			w.log.Trace("Transaction not yet mined", "tx", hash)
		default:
			w.log.Trace("Receipt retrieval failed", "tx", hash, "err", err)
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "ethdemo: waiting for %s (last error: %v)", hash.Hex(), lastErr)
		case <-ticker.C:
		}
	}
}

// waitForBlock polls until the head is at least target and returns the head.
func (w *Wallet) waitForBlock(ctx context.Context, target uint64) (uint64, error) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		head, err := w.reader.BlockNumber(ctx)
		if err != nil {
			return 0, errors.Wrap(err, "ethdemo: block number")
		}
		if head >= target {
			return head, nil
		}

		select {
		case <-ctx.Done():
			return 0, errors.Wrapf(ctx.Err(), "ethdemo: waiting for block %d", target)
		case <-ticker.C:
		}
	}
}

// Transaction is a submitted contract call.
type Transaction struct {
	tx       *types.Transaction
	wallet   *Wallet
	contract *Contract
}

// Hash returns the transaction hash.
func (t *Transaction) Hash() common.Hash {
	return t.tx.Hash()
}

// Wait blocks until the transaction has the given number of confirmations
// (the including block counts as the first) and returns its decoded receipt.
// The receipt is read again after the wait; if it moved to another block the
// wait fails with ErrReceiptReorged.
func (t *Transaction) Wait(ctx context.Context, confirmations uint64) (*Receipt, error) {
	if confirmations == 0 {
		confirmations = 1
	}
	w := t.wallet
	hash := t.tx.Hash()

	mined, err := w.waitMined(ctx, hash)
	if err != nil {
		return nil, err
	}
	if mined.Status != types.ReceiptStatusSuccessful {
		return nil, errors.Wrapf(ErrTransactionFailed, "tx %s", hash.Hex())
	}

	target := mined.BlockNumber.Uint64() + confirmations - 1
	head, err := w.waitForBlock(ctx, target)
	if err != nil {
		return nil, err
	}

	final, err := w.pollReceipt(ctx, hash, errors.Wrapf(ErrReceiptReorged, "tx %s dropped", hash.Hex()))
	if err != nil {
		return nil, err
	}
	if final.BlockHash != mined.BlockHash {
		return nil, errors.Wrapf(ErrReceiptReorged, "tx %s moved from %s to %s", hash.Hex(), mined.BlockHash.Hex(), final.BlockHash.Hex())
	}

	confs := head - final.BlockNumber.Uint64() + 1
	w.log.Debug("Transaction confirmed", "tx", hash, "block", final.BlockNumber, "confirmations", confs)
	return NewReceipt(final, confs, t.contract.abi), nil
}
