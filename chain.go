package ethdemo

import (
	"context"
	"fmt"
	"math/big"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/eth/ethconfig"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/node"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/branched-services/go-ethdemo/metrics"
)

// ChainConfig configures StartChain.
type ChainConfig struct {
	Host      string
	Port      int
	BlockTime time.Duration

	// Alloc funds accounts in the genesis block.
	Alloc map[common.Address]*big.Int

	Logger  log.Logger
	Metrics *metrics.Metrics

	// OnReady is called with the JSON-RPC endpoint once the chain is serving.
	OnReady func(endpoint string)
}

// Chain is an in-process Ethereum chain serving JSON-RPC over HTTP.
// A block is committed every BlockTime, whether or not transactions are pending,
// so confirmations accumulate without outside traffic.
type Chain struct {
	backend  *simulated.Backend
	endpoint string
	log      log.Logger
	metrics  *metrics.Metrics

	cancel context.CancelFunc
	group  *errgroup.Group
	blocks atomic.Uint64

	mu     sync.Mutex
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// StartChain binds host:port, starts the simulated chain and begins producing
// blocks. It returns once the JSON-RPC endpoint is accepting requests.
func StartChain(ctx context.Context, cfg ChainConfig) (*Chain, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.BlockTime <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "block time %s", cfg.BlockTime)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Root()
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	probe, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(ErrPortInUse, "%s: %v", addr, err)
	}
	if err := probe.Close(); err != nil {
		return nil, errors.Wrapf(err, "ethdemo: release %s", addr)
	}

	alloc := make(types.GenesisAlloc, len(cfg.Alloc))
	for account, balance := range cfg.Alloc {
		alloc[account] = types.Account{Balance: new(big.Int).Set(balance)}
	}

	backend, err := newBackend(alloc, cfg.Host, cfg.Port)
	if err != nil {
		return nil, err
	}

	mineCtx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(mineCtx)
	c := &Chain{
		backend:  backend,
		endpoint: "http://" + addr,
		log:      logger,
		metrics:  cfg.Metrics,
		cancel:   cancel,
		group:    group,
	}
	group.Go(func() error {
		return c.mine(gctx, cfg.BlockTime)
	})

	c.log.Info("Chain started", "endpoint", c.endpoint, "blocktime", cfg.BlockTime)
	if cfg.OnReady != nil {
		cfg.OnReady(c.endpoint)
	}
	return c, nil
}

// newBackend converts construction panics from the simulator into errors.
func newBackend(alloc types.GenesisAlloc, host string, port int) (backend *simulated.Backend, err error) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			if strings.Contains(msg, "address already in use") {
				err = errors.Wrap(ErrPortInUse, msg)
				return
			}
			err = errors.Errorf("ethdemo: start simulated chain: %s", msg)
		}
	}()

	backend = simulated.NewBackend(alloc, func(nodeConf *node.Config, ethConf *ethconfig.Config) {
		nodeConf.HTTPHost = host
		nodeConf.HTTPPort = port
		nodeConf.HTTPModules = []string{"eth", "net", "web3"}
		nodeConf.HTTPVirtualHosts = []string{"*"}
	})
	return backend, nil
}

func (c *Chain) mine(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.Commit(); errors.Is(err, ErrChainClosed) {
				return nil
			}
		}
	}
}

// Commit seals the pending transactions into a new block immediately, without
// waiting for the next tick. It returns ErrChainClosed once Close was called.
func (c *Chain) Commit() (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return common.Hash{}, ErrChainClosed
	}

	hash := c.backend.Commit()
	n := c.blocks.Add(1)
	c.metrics.BlockMined()
	c.log.Trace("Committed block", "number", n, "hash", hash)
	return hash, nil
}

// Endpoint returns the HTTP JSON-RPC URL.
func (c *Chain) Endpoint() string {
	return c.endpoint
}

// Blocks returns how many blocks have been committed since start.
func (c *Chain) Blocks() uint64 {
	return c.blocks.Load()
}

// Client returns an in-process client that bypasses HTTP.
func (c *Chain) Client() simulated.Client {
	return c.backend.Client()
}

// Close stops block production and shuts the node down. It is safe to call
// more than once; later calls return the first result.
func (c *Chain) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.cancel()
		if err := c.group.Wait(); err != nil {
			c.log.Warn("Block production stopped with error", "err", err)
		}
		if err := c.backend.Close(); err != nil {
			c.closeErr = errors.Wrap(err, "ethdemo: close chain")
		}
		c.log.Info("Chain stopped", "endpoint", c.endpoint, "blocks", c.blocks.Load())
	})
	return c.closeErr
}
