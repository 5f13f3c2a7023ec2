package ethdemo

import (
	"math/big"
	"time"

	"github.com/pkg/errors"
)

// Defaults for Config.
const (
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 8545
	DefaultConfirmations = 2
	DefaultInvocations   = 1
	DefaultFunction      = "increment"
	DefaultEventName     = "Return"
	DefaultBlockTime     = 100 * time.Millisecond
	DefaultPollInterval  = 100 * time.Millisecond

	// DefaultPrivateKey is a throwaway demo key. Never fund it anywhere real.
	DefaultPrivateKey = "0x5e98cce00cff5dea6b454889f359a4ec06b9fa6b88e9d69b86de8e1c81887da0"
)

// DefaultBalance is the genesis balance given to the signer on the simulated chain (1000 ether).
var DefaultBalance = new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))

// Config carries every value the workflow needs.
type Config struct {
	Host string
	Port int

	// Endpoint, when set, points the wallet at an existing JSON-RPC node and
	// no simulated chain is started.
	Endpoint string

	PrivateKey   string
	Source       string
	ContractName string
	ABI          string
	Function     string
	EventName    string

	Confirmations uint64
	Invocations   int
	BlockTime     time.Duration
	PollInterval  time.Duration

	Compiler string
	SolcPath string

	Balance *big.Int
}

// DefaultConfig returns the configuration of the canonical demo run.
func DefaultConfig() Config {
	return Config{
		Host:          DefaultHost,
		Port:          DefaultPort,
		PrivateKey:    DefaultPrivateKey,
		Source:        ContractSource,
		ContractName:  DefaultContractName,
		ABI:           DefaultABI,
		Function:      DefaultFunction,
		EventName:     DefaultEventName,
		Confirmations: DefaultConfirmations,
		Invocations:   DefaultInvocations,
		BlockTime:     DefaultBlockTime,
		PollInterval:  DefaultPollInterval,
		Compiler:      CompilerAuto,
		SolcPath:      "solc",
		Balance:       new(big.Int).Set(DefaultBalance),
	}
}

// Validate reports the first out-of-range value.
func (c Config) Validate() error {
	switch {
	case c.Endpoint == "" && (c.Port < 1 || c.Port > 65535):
		return errors.Wrapf(ErrInvalidConfig, "port %d", c.Port)
	case c.Confirmations == 0:
		return errors.Wrap(ErrInvalidConfig, "confirmations must be positive")
	case c.Invocations < 1:
		return errors.Wrapf(ErrInvalidConfig, "invocations %d", c.Invocations)
	case c.Endpoint == "" && c.BlockTime <= 0:
		return errors.Wrapf(ErrInvalidConfig, "block time %s", c.BlockTime)
	case c.PollInterval <= 0:
		return errors.Wrapf(ErrInvalidConfig, "poll interval %s", c.PollInterval)
	case c.PrivateKey == "":
		return errors.Wrap(ErrInvalidConfig, "private key required")
	case c.Source == "" || c.ContractName == "" || c.Function == "" || c.EventName == "":
		return errors.Wrap(ErrInvalidConfig, "contract source, name, function and event required")
	}
	switch c.Compiler {
	case CompilerAuto, CompilerBuiltin, CompilerSolc, "":
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown compiler %q", c.Compiler)
	}
	return nil
}
