package ethdemo

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrivateKey(t *testing.T) {
	withPrefix, err := AddressOf(DefaultPrivateKey)
	require.NoError(t, err)
	withoutPrefix, err := AddressOf(DefaultPrivateKey[2:])
	require.NoError(t, err)
	assert.Equal(t, withPrefix, withoutPrefix)
	assert.NotEqual(t, common.Address{}, withPrefix)

	_, err = ParsePrivateKey("0xnothex")
	assert.Error(t, err)
	_, err = ParsePrivateKey("")
	assert.Error(t, err)
}

// deployCounter starts a chain, connects a wallet and deploys the counter.
func deployCounter(t *testing.T, ctx context.Context) (*Wallet, *Contract) {
	t.Helper()
	signer, err := AddressOf(DefaultPrivateKey)
	require.NoError(t, err)
	chain := startTestChain(t, map[common.Address]*big.Int{signer: DefaultBalance}, nil)

	wallet, err := NewWallet(ctx, DefaultPrivateKey, chain.Endpoint(),
		WithPollInterval(testBlockTime),
		WithWalletLogger(quietLogger),
	)
	require.NoError(t, err)
	t.Cleanup(wallet.Close)
	assert.Equal(t, signer, wallet.Address())

	artifact, err := NewBuiltinCompiler(DefaultContractName).Compile(ctx, ContractSource)
	require.NoError(t, err)
	contract, err := wallet.Deploy(ctx, MustParseABI(DefaultABI), artifact.Bytecode)
	require.NoError(t, err)
	return wallet, contract
}

func TestWalletDeployAndCall(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	wallet, contract := deployCounter(t, ctx)

	t.Run("deployment has code", func(t *testing.T) {
		assert.NotEqual(t, common.Address{}, contract.Address())
		assert.NotEqual(t, common.Hash{}, contract.DeployTx())
		code, err := wallet.Client().CodeAt(ctx, contract.Address(), nil)
		require.NoError(t, err)
		assert.NotEmpty(t, code)
	})

	t.Run("sequential calls count up", func(t *testing.T) {
		for i := uint64(1); i <= 3; i++ {
			tx, err := wallet.Call(ctx, contract, DefaultFunction)
			require.NoError(t, err)

			receipt, err := tx.Wait(ctx, DefaultConfirmations)
			require.NoError(t, err)
			assert.Equal(t, tx.Hash(), receipt.TxHash)
			assert.GreaterOrEqual(t, receipt.Confirmations, uint64(DefaultConfirmations))
			assert.Equal(t, uint64(1), receipt.Status)
			require.Len(t, receipt.Events, 1)

			v, err := ExtractValue(receipt, DefaultEventName)
			require.NoError(t, err)
			assert.Equal(t, i, v.Uint64())
		}
	})

	t.Run("zero confirmations waits for inclusion", func(t *testing.T) {
		tx, err := wallet.Call(ctx, contract, DefaultFunction)
		require.NoError(t, err)
		receipt, err := tx.Wait(ctx, 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, receipt.Confirmations, uint64(1))
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := wallet.Call(ctx, contract, "decrement")
		var notFound *MethodNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, contract.Address(), notFound.Contract)
	})

	t.Run("bound handle calls the same contract", func(t *testing.T) {
		bound := wallet.Bind(contract.Address(), contract.ABI())
		tx, err := wallet.Call(ctx, bound, DefaultFunction)
		require.NoError(t, err)
		receipt, err := tx.Wait(ctx, 1)
		require.NoError(t, err)
		v, err := ExtractValue(receipt, DefaultEventName)
		require.NoError(t, err)
		assert.Equal(t, uint64(5), v.Uint64())
	})
}

func TestWalletWaitCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	wallet, contract := deployCounter(t, ctx)

	tx, err := wallet.Call(ctx, contract, DefaultFunction)
	require.NoError(t, err)

	short, cancelShort := context.WithTimeout(ctx, 5*testBlockTime)
	defer cancelShort()
	start := time.Now()
	_, err = tx.Wait(short, 1000)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNewWalletUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := NewWallet(ctx, DefaultPrivateKey, "http://127.0.0.1:1")
	assert.Error(t, err)
}

// scriptedReader answers receipt lookups from a fixed script. Once the script
// is exhausted the last answer repeats.
type scriptedReader struct {
	mu       sync.Mutex
	receipts []scriptedReceipt
	calls    int
	head     uint64
}

type scriptedReceipt struct {
	receipt *types.Receipt
	err     error
}

func (r *scriptedReader) TransactionReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.calls
	if i >= len(r.receipts) {
		i = len(r.receipts) - 1
	}
	r.calls++
	return r.receipts[i].receipt, r.receipts[i].err
}

func (r *scriptedReader) BlockNumber(context.Context) (uint64, error) {
	return r.head, nil
}

func (r *scriptedReader) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

var errIndexing = errors.New("transaction indexing is in progress")

func minedReceipt(block uint64) *types.Receipt {
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: new(big.Int).SetUint64(block),
		BlockHash:   common.BigToHash(new(big.Int).SetUint64(block)),
	}
}

func scriptedTransaction(reader *scriptedReader) *Transaction {
	w := &Wallet{reader: reader, pollInterval: time.Millisecond, log: quietLogger}
	return &Transaction{
		tx:       types.NewTx(&types.LegacyTx{}),
		wallet:   w,
		contract: &Contract{abi: MustParseABI(DefaultABI)},
	}
}

func TestWaitMinedRetriesLookupErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reader := &scriptedReader{receipts: []scriptedReceipt{
		{err: errIndexing},
		{err: ethereum.NotFound},
		{err: errIndexing},
		{receipt: minedReceipt(7)},
	}}
	tx := scriptedTransaction(reader)

	receipt, err := tx.wallet.waitMined(ctx, tx.Hash())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), receipt.BlockNumber.Uint64())
	assert.Equal(t, 4, reader.Calls())
}

func TestTransactionWaitScripted(t *testing.T) {
	t.Run("indexing error before and after confirmation", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		reader := &scriptedReader{head: 9, receipts: []scriptedReceipt{
			{err: errIndexing},
			{receipt: minedReceipt(8)},
			{err: errIndexing},
			{receipt: minedReceipt(8)},
		}}
		receipt, err := scriptedTransaction(reader).Wait(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, uint64(8), receipt.BlockNumber)
		assert.Equal(t, uint64(2), receipt.Confirmations)
		assert.Equal(t, 4, reader.Calls())
	})

	t.Run("receipt gone after confirmation", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		reader := &scriptedReader{head: 8, receipts: []scriptedReceipt{
			{receipt: minedReceipt(8)},
			{err: ethereum.NotFound},
		}}
		_, err := scriptedTransaction(reader).Wait(ctx, 1)
		assert.ErrorIs(t, err, ErrReceiptReorged)
	})

	t.Run("receipt moved to another block", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		reader := &scriptedReader{head: 9, receipts: []scriptedReceipt{
			{receipt: minedReceipt(8)},
			{receipt: minedReceipt(9)},
		}}
		_, err := scriptedTransaction(reader).Wait(ctx, 1)
		assert.ErrorIs(t, err, ErrReceiptReorged)
	})

	t.Run("reverted", func(t *testing.T) {
		failed := minedReceipt(8)
		failed.Status = types.ReceiptStatusFailed
		reader := &scriptedReader{head: 8, receipts: []scriptedReceipt{{receipt: failed}}}
		_, err := scriptedTransaction(reader).Wait(context.Background(), 1)
		assert.ErrorIs(t, err, ErrTransactionFailed)
	})

	t.Run("lookup never succeeds", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		reader := &scriptedReader{receipts: []scriptedReceipt{{err: errIndexing}}}
		_, err := scriptedTransaction(reader).Wait(ctx, 1)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), errIndexing.Error())
		assert.Greater(t, reader.Calls(), 1)
	})
}
