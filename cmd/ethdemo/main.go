// Command ethdemo compiles a counter contract, deploys it to an in-process
// chain, calls it and prints the value carried by the emitted event.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/branched-services/go-ethdemo"
	"github.com/branched-services/go-ethdemo/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fatal(err)
	}
	stop()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ethdemo",
		Short:         "Deploy a counter contract to a local chain and print what it returns",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runWorkflow,
	}
	addFlags(root.PersistentFlags())
	root.AddCommand(newCompileCmd(), newChainCmd())
	return root
}

// env is what every command needs after flags are parsed.
type env struct {
	v   *viper.Viper
	cfg ethdemo.Config
	log log.Logger
}

func setup(cmd *cobra.Command) (*env, error) {
	v, err := newViper(cmd.Flags())
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	return &env{
		v:   v,
		cfg: cfg,
		log: initLogger(cmd.ErrOrStderr(), v.GetInt(flagVerbosity)),
	}, nil
}

// startMetrics serves metrics when --metrics-addr is set. The returned stop
// function shuts the server down and is never nil.
func (e *env) startMetrics(ctx context.Context) (*metrics.Metrics, func(), error) {
	addr := e.v.GetString(flagMetricsAddr)
	if addr == "" {
		return nil, func() {}, nil
	}

	m := metrics.New()
	srvCtx, cancel := context.WithCancel(ctx)
	wait, err := metrics.Serve(srvCtx, addr, m)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return m, func() {
		cancel()
		if err := wait(); err != nil {
			e.log.Warn("Metrics server stopped with error", "err", err)
		}
	}, nil
}

func runWorkflow(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	m, stopMetrics, err := e.startMetrics(cmd.Context())
	if err != nil {
		return err
	}
	defer stopMetrics()

	_, err = ethdemo.Run(cmd.Context(), e.cfg,
		ethdemo.WithOutput(cmd.OutOrStdout()),
		ethdemo.WithLogger(e.log),
		ethdemo.WithMetrics(m),
	)
	return err
}

// compiledContract is the JSON printed by the compile command.
type compiledContract struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

func newCompileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "Compile the contract and print its ABI and bytecode as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			compiler, err := ethdemo.NewCompiler(e.cfg.Compiler, e.cfg.SolcPath, e.cfg.ContractName)
			if err != nil {
				return err
			}
			artifact, err := compiler.Compile(cmd.Context(), e.cfg.Source)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return errors.Wrap(enc.Encode(compiledContract{
				ContractName: artifact.Name,
				ABI:          json.RawMessage(artifact.ABIJSON),
				Bytecode:     "0x" + hex.EncodeToString(artifact.Bytecode),
			}), "encode artifact")
		},
	}
}

func newChainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chain",
		Short: "Run the simulated chain until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			m, stopMetrics, err := e.startMetrics(cmd.Context())
			if err != nil {
				return err
			}
			defer stopMetrics()

			signer, err := ethdemo.AddressOf(e.cfg.PrivateKey)
			if err != nil {
				return err
			}
			chain, err := ethdemo.StartChain(cmd.Context(), ethdemo.ChainConfig{
				Host:      e.cfg.Host,
				Port:      e.cfg.Port,
				BlockTime: e.cfg.BlockTime,
				Alloc:     map[common.Address]*big.Int{signer: e.cfg.Balance},
				Logger:    e.log,
				Metrics:   m,
				OnReady: func(endpoint string) {
					fmt.Fprintln(cmd.OutOrStdout(), endpoint)
				},
			})
			if err != nil {
				return err
			}

			<-cmd.Context().Done()
			e.log.Info("Shutting down")
			return chain.Close()
		},
	}
}
