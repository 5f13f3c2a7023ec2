package ethdemo

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/branched-services/go-ethdemo/metrics"
)

// Result is what a successful run produced.
type Result struct {
	Address common.Address
	Values  []*uint256.Int
}

// step is one fallible unit of the pipeline.
type step struct {
	stage Stage
	name  string
	run   func(ctx context.Context, ex *execution) error
}

// execution carries values between steps of a single run.
type execution struct {
	artifact *Artifact
	abi      abi.ABI
	endpoint string
	chain    *Chain
	wallet   *Wallet
	contract *Contract
	tx       *Transaction
	receipt  *Receipt
	value    *uint256.Int
	result   Result
}

// release closes the wallet and the chain. Safe to call repeatedly.
func (ex *execution) release() error {
	if ex.wallet != nil {
		ex.wallet.Close()
		ex.wallet = nil
	}
	if ex.chain != nil {
		return ex.chain.Close()
	}
	return nil
}

// Runner executes the compile, deploy, invoke, confirm, extract and report
// workflow as an ordered list of steps. The first failing step ends the run.
type Runner struct {
	cfg      Config
	compiler Compiler
	out      io.Writer
	log      log.Logger
	metrics  *metrics.Metrics
	hooks    []func(from, to Stage)

	mu    sync.Mutex
	stage Stage
}

// NewRunner validates cfg and applies opts.
func NewRunner(cfg Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		cfg: cfg,
		out: os.Stdout,
		log: log.Root(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.compiler == nil {
		c, err := NewCompiler(cfg.Compiler, cfg.SolcPath, cfg.ContractName)
		if err != nil {
			return nil, err
		}
		r.compiler = c
	}
	return r, nil
}

// Run is shorthand for NewRunner(cfg, opts...).Run(ctx).
func Run(ctx context.Context, cfg Config, opts ...Option) (*Result, error) {
	r, err := NewRunner(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}

// Stage returns the stage the runner is in.
func (r *Runner) Stage() Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

// Run executes the pipeline once. The chain, if one was started, is closed on
// every return path.
func (r *Runner) Run(ctx context.Context) (res *Result, err error) {
	r.mu.Lock()
	r.stage = StageIdle
	r.mu.Unlock()

	ex := &execution{endpoint: r.cfg.Endpoint}
	defer func() {
		if cerr := ex.release(); cerr != nil && err == nil {
			err = &StepError{Stage: StageStopped, Step: "stop", Err: cerr}
			res = nil
		}
		r.metrics.RunFinished(err)
	}()

	for _, s := range r.plan() {
		if err := r.transition(s.stage); err != nil {
			return nil, &StepError{Stage: s.stage, Step: s.name, Err: err}
		}
		start := time.Now()
		if err := s.run(ctx, ex); err != nil {
			r.log.Error("Workflow step failed", "stage", s.stage, "step", s.name, "err", err)
			return nil, &StepError{Stage: s.stage, Step: s.name, Err: err}
		}
		r.metrics.ObserveStage(s.stage.String(), time.Since(start))
	}
	return &ex.result, nil
}

// transition moves the runner to the next stage and notifies the hooks. A move
// the stage order does not allow leaves the stage unchanged.
func (r *Runner) transition(to Stage) error {
	r.mu.Lock()
	from := r.stage
	if !from.canTransition(to) {
		r.mu.Unlock()
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
	}
	r.stage = to
	r.mu.Unlock()

	r.log.Debug("Stage transition", "from", from, "to", to)
	for _, hook := range r.hooks {
		hook(from, to)
	}
	return nil
}

// plan lays out the steps for the configured run.
func (r *Runner) plan() []step {
	steps := make([]step, 0, 4+4*r.cfg.Invocations)
	steps = append(steps, step{StageCompiling, "compile", r.compile})
	if r.cfg.Endpoint == "" {
		steps = append(steps, step{StageChainStarting, "startChain", r.startChain})
	}
	steps = append(steps, step{StageDeploying, "deploy", r.deploy})
	for i := 0; i < r.cfg.Invocations; i++ {
		steps = append(steps,
			step{StageInvoking, "invoke", r.invoke},
			step{StageAwaitingConfirmations, "awaitConfirmations", r.awaitConfirmations},
			step{StageExtractingEvent, "extractValue", r.extractValue},
			step{StageReporting, "report", r.report},
		)
	}
	steps = append(steps, step{StageStopped, "stop", r.stop})
	return steps
}

func (r *Runner) compile(ctx context.Context, ex *execution) error {
	artifact, err := r.compiler.Compile(ctx, r.cfg.Source)
	if err != nil {
		return err
	}
	ex.artifact = artifact
	r.log.Info("Compiled contract", "name", artifact.Name, "size", len(artifact.Bytecode))
	return nil
}

func (r *Runner) startChain(ctx context.Context, ex *execution) error {
	signer, err := AddressOf(r.cfg.PrivateKey)
	if err != nil {
		return err
	}
	balance := r.cfg.Balance
	if balance == nil {
		balance = DefaultBalance
	}

	chain, err := StartChain(ctx, ChainConfig{
		Host:      r.cfg.Host,
		Port:      r.cfg.Port,
		BlockTime: r.cfg.BlockTime,
		Alloc:     map[common.Address]*big.Int{signer: balance},
		Logger:    r.log,
		Metrics:   r.metrics,
	})
	if err != nil {
		return err
	}
	ex.chain = chain
	ex.endpoint = chain.Endpoint()
	return nil
}

func (r *Runner) deploy(ctx context.Context, ex *execution) error {
	handABI, err := ParseABI(r.cfg.ABI)
	if err != nil {
		return err
	}
	if err := VerifyABI(handABI, ex.artifact.ABI); err != nil {
		return err
	}
	ex.abi = handABI

	wallet, err := NewWallet(ctx, r.cfg.PrivateKey, ex.endpoint,
		WithPollInterval(r.cfg.PollInterval),
		WithWalletLogger(r.log),
	)
	if err != nil {
		return err
	}
	ex.wallet = wallet

	r.log.Info("Deploying the contract", "from", wallet.Address(), "chainid", wallet.ChainID())
	contract, err := wallet.Deploy(ctx, handABI, ex.artifact.Bytecode)
	if err != nil {
		return err
	}
	ex.contract = contract
	ex.result.Address = contract.Address()
	r.log.Info("Contract deployed", "address", contract.Address(), "tx", contract.DeployTx())
	return nil
}

func (r *Runner) invoke(ctx context.Context, ex *execution) error {
	r.log.Info("Sending a transaction to the contract", "address", ex.contract.Address(), "method", r.cfg.Function)
	tx, err := ex.wallet.Call(ctx, ex.contract, r.cfg.Function)
	if err != nil {
		return err
	}
	ex.tx = tx
	return nil
}

func (r *Runner) awaitConfirmations(ctx context.Context, ex *execution) error {
	receipt, err := ex.tx.Wait(ctx, r.cfg.Confirmations)
	if err != nil {
		return err
	}
	ex.receipt = receipt
	r.log.Info("Transaction confirmed", "tx", receipt.TxHash, "block", receipt.BlockNumber, "confirmations", receipt.Confirmations)
	return nil
}

func (r *Runner) extractValue(_ context.Context, ex *execution) error {
	value, err := ExtractValue(ex.receipt, r.cfg.EventName)
	if err != nil {
		return err
	}
	ex.value = value
	return nil
}

func (r *Runner) report(_ context.Context, ex *execution) error {
	if _, err := fmt.Fprintf(r.out, "Result: %s\n", ex.value.Dec()); err != nil {
		return errors.Wrap(err, "ethdemo: write result")
	}
	ex.result.Values = append(ex.result.Values, ex.value)
	r.metrics.SetLastValue(ex.value.Float64())
	return nil
}

func (r *Runner) stop(_ context.Context, ex *execution) error {
	return ex.release()
}
