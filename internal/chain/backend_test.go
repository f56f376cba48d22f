package chain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
)

const testContract = "0x00000000000000000000000000000000000000aa"

// fakeBackend answers view calls from canned outputs and records sent transactions.
type fakeBackend struct {
	mu       sync.Mutex
	abi      abi.ABI
	outputs  map[string][]any
	calls    []ethereum.CallMsg
	blocks   []*big.Int
	sent     []*types.Transaction
	status   uint64
	head     uint64
	logs     []types.Log
	chainID  *big.Int
	subErr   error
	sub      *fakeSub
	subLogs  chan<- types.Log
	filtered int
	advance  bool
}

// fakeSub is a log subscription driven by the test.
type fakeSub struct {
	errc         chan error
	unsubscribed atomic.Bool
}

func newFakeSub() *fakeSub {
	return &fakeSub{errc: make(chan error, 1)}
}

func (s *fakeSub) Err() <-chan error { return s.errc }

func (s *fakeSub) Unsubscribe() { s.unsubscribed.Store(true) }

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	parsed, err := LoadABI("")
	require.NoError(t, err)
	return &fakeBackend{
		abi:     parsed,
		outputs: make(map[string][]any),
		status:  types.ReceiptStatusSuccessful,
		head:    100,
		chainID: big.NewInt(97),
		subErr:  rpc.ErrNotificationsUnsupported,
	}
}

func (f *fakeBackend) set(method string, values ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[method] = values
}

func (f *fakeBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	f.blocks = append(f.blocks, blockNumber)
	method, err := f.abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	values, ok := f.outputs[method.Name]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return method.Outputs.Pack(values...)
}

func (f *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: new(big.Int).SetUint64(f.head)}, nil
}

func (f *fakeBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &types.Receipt{
		Status:      f.status,
		TxHash:      txHash,
		BlockNumber: new(big.Int).SetUint64(f.head + 1),
		GasUsed:     42_000,
	}, nil
}

func (f *fakeBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filtered++
	return append([]types.Log(nil), f.logs...), nil
}

func (f *fakeBackend) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub == nil {
		return nil, f.subErr
	}
	f.subLogs = ch
	return f.sub, nil
}

// subscribed returns the channel Watch handed to SubscribeFilterLogs, once it has.
func (f *fakeBackend) subscribed() chan<- types.Log {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subLogs
}

func (f *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.advance {
		f.head++
	}
	return f.head, nil
}

func (f *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return f.chainID, nil
}

func (f *fakeBackend) Close() {}

func (f *fakeBackend) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, f *fakeBackend, withKey bool) *Client {
	t.Helper()
	cfg := Config{ContractAddress: testContract}
	if withKey {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		cfg.PrivateKey = common.Bytes2Hex(crypto.FromECDSA(key))
	}
	c, err := NewClient(context.Background(), f, cfg, discardLogger(), nil)
	require.NoError(t, err)
	return c
}
