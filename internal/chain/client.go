package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"chaintetris/internal/metrics"
)

// Config describes how to reach the contract and who signs transactions.
type Config struct {
	RPCURL          string
	ContractAddress string
	ABIPath         string
	// PrivateKey is a hex secp256k1 key. KeystorePath/Passphrase are used when it is empty.
	PrivateKey   string
	KeystorePath string
	Passphrase   string
	// Account is used as the caller for reads when no key is configured.
	Account      string
	ChainID      int64
	CallTimeout  time.Duration
	TxTimeout    time.Duration
	PollInterval time.Duration
}

// Backend is the RPC surface the client needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// Client talks to one deployed Tetris contract on behalf of one account.
type Client struct {
	backend  Backend
	abi      abi.ABI
	contract *bind.BoundContract
	address  common.Address
	account  common.Address
	signer   *bind.TransactOpts
	chainID  *big.Int
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	seen     *seenLogs
}

// Dial connects to cfg.RPCURL and builds a client for the configured contract.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, fmt.Errorf("%w: rpc url is required", ErrBadConfig)
	}
	backend, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}
	c, err := NewClient(ctx, backend, cfg, logger, m)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return c, nil
}

// NewClient builds a client over an existing backend.
func NewClient(ctx context.Context, backend Backend, cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("%w: contract address %q", ErrBadConfig, cfg.ContractAddress)
	}
	parsed, err := LoadABI(cfg.ABIPath)
	if err != nil {
		return nil, err
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 90 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
		chainID, err = backend.ChainID(callCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("chain id: %w", err)
		}
	}

	address := common.HexToAddress(cfg.ContractAddress)
	c := &Client{
		backend:  backend,
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		address:  address,
		chainID:  chainID,
		cfg:      cfg,
		log:      logger.With("component", "chain", "contract", address.Hex()),
		metrics:  m,
		seen:     newSeenLogs(defaultSeenSize),
	}

	key, err := loadKey(cfg)
	if err != nil {
		return nil, err
	}
	switch {
	case key != nil:
		signer, err := bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			return nil, fmt.Errorf("signer: %w", err)
		}
		c.signer = signer
		c.account = signer.From
	case common.IsHexAddress(cfg.Account):
		c.account = common.HexToAddress(cfg.Account)
	}
	c.log.Info("contract client ready", "chain_id", chainID.String(), "account", c.account.Hex(), "can_sign", c.signer != nil)
	return c, nil
}

func loadKey(cfg Config) (*ecdsa.PrivateKey, error) {
	if raw := strings.TrimSpace(cfg.PrivateKey); raw != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: private key: %v", ErrBadConfig, err)
		}
		return key, nil
	}
	if path := strings.TrimSpace(cfg.KeystorePath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read keystore: %w", err)
		}
		k, err := keystore.DecryptKey(data, cfg.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("%w: keystore: %v", ErrBadConfig, err)
		}
		return k.PrivateKey, nil
	}
	return nil, nil
}

// Account returns the address the client acts as.
func (c *Client) Account() common.Address {
	return c.account
}

// CanSign reports whether transactions can be sent.
func (c *Client) CanSign() bool {
	return c.signer != nil
}

// ChainID returns the chain id transactions are signed for.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Address returns the contract address.
func (c *Client) Address() common.Address {
	return c.address
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.backend.Close()
}
