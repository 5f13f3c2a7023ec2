package main

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/branched-services/go-ethdemo"
)

const envPrefix = "ETHDEMO"

const (
	flagHost          = "host"
	flagPort          = "port"
	flagEndpoint      = "endpoint"
	flagPrivateKey    = "private-key"
	flagConfirmations = "confirmations"
	flagInvocations   = "invocations"
	flagBlockTime     = "block-time"
	flagPollInterval  = "poll-interval"
	flagCompiler      = "compiler"
	flagSolc          = "solc"
	flagVerbosity     = "verbosity"
	flagMetricsAddr   = "metrics-addr"
	flagConfig        = "config"
)

// addFlags registers every setting on fs with its library default.
func addFlags(fs *pflag.FlagSet) {
	def := ethdemo.DefaultConfig()

	fs.String(flagHost, def.Host, "address the simulated chain listens on")
	fs.Int(flagPort, def.Port, "JSON-RPC port of the simulated chain")
	fs.String(flagEndpoint, "", "use an existing JSON-RPC node instead of starting a chain")
	fs.String(flagPrivateKey, def.PrivateKey, "hex private key of the signing account")
	fs.Uint64(flagConfirmations, def.Confirmations, "blocks to wait for, including the one with the transaction")
	fs.Int(flagInvocations, def.Invocations, "number of times to call the contract")
	fs.Duration(flagBlockTime, def.BlockTime, "block period of the simulated chain")
	fs.Duration(flagPollInterval, def.PollInterval, "receipt and block polling interval")
	fs.String(flagCompiler, def.Compiler, "compiler backend (auto, builtin, solc)")
	fs.String(flagSolc, def.SolcPath, "path to the solc executable")
	fs.Int(flagVerbosity, 3, "log verbosity (0-5)")
	fs.String(flagMetricsAddr, "", "serve Prometheus metrics on this address")
	fs.String(flagConfig, "", "read settings from this file (yaml, toml or json)")
}

// newViper binds fs to a fresh viper instance. Precedence is flag, then
// ETHDEMO_* environment, then the --config file, then the flag default.
func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Wrap(err, "bind flags")
	}

	if file := v.GetString(flagConfig); file != "" {
		if _, err := os.Stat(file); err != nil {
			return nil, errors.Wrap(err, "config file")
		}
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read %s", file)
		}
	}
	return v, nil
}

// loadConfig builds the workflow configuration from v.
func loadConfig(v *viper.Viper) (ethdemo.Config, error) {
	cfg := ethdemo.DefaultConfig()
	cfg.Host = v.GetString(flagHost)
	cfg.Port = v.GetInt(flagPort)
	cfg.Endpoint = v.GetString(flagEndpoint)
	cfg.PrivateKey = v.GetString(flagPrivateKey)
	cfg.Confirmations = v.GetUint64(flagConfirmations)
	cfg.Invocations = v.GetInt(flagInvocations)
	cfg.BlockTime = v.GetDuration(flagBlockTime)
	cfg.PollInterval = v.GetDuration(flagPollInterval)
	cfg.Compiler = v.GetString(flagCompiler)
	cfg.SolcPath = v.GetString(flagSolc)

	if err := cfg.Validate(); err != nil {
		return ethdemo.Config{}, err
	}
	return cfg, nil
}
