package ethdemo

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Sentinel errors for common failure conditions.
var (
	// ErrPortInUse indicates the simulated chain could not bind its listening port.
	ErrPortInUse = errors.New("ethdemo: port already in use")

	// ErrChainClosed indicates an operation on a chain that has been shut down.
	ErrChainClosed = errors.New("ethdemo: chain closed")

	// ErrCompilerNotFound indicates the solc executable could not be located.
	ErrCompilerNotFound = errors.New("ethdemo: compiler executable not found")

	// ErrUnsupportedSource indicates the builtin compiler cannot handle the source.
	ErrUnsupportedSource = errors.New("ethdemo: unsupported contract source")

	// ErrContractNotFound indicates the compiler output lacks the requested contract.
	ErrContractNotFound = errors.New("ethdemo: contract not found in compiler output")

	// ErrABIMismatch indicates the hand-written ABI disagrees with the compiled one.
	ErrABIMismatch = errors.New("ethdemo: ABI does not match compiled artifact")

	// ErrNotDeployed indicates no code exists at the deployment address.
	ErrNotDeployed = errors.New("ethdemo: no contract code at address")

	// ErrTransactionFailed indicates a mined transaction reverted.
	ErrTransactionFailed = errors.New("ethdemo: transaction failed")

	// ErrReceiptReorged indicates the receipt moved to another block while confirming.
	ErrReceiptReorged = errors.New("ethdemo: receipt reorganized out of its block")

	// ErrInvalidTransition indicates a workflow step out of stage order.
	ErrInvalidTransition = errors.New("ethdemo: invalid stage transition")

	// ErrNoEvents indicates the receipt carried no events.
	ErrNoEvents = errors.New("ethdemo: receipt has no events")

	// ErrInvalidConfig indicates a configuration value is out of range.
	ErrInvalidConfig = errors.New("ethdemo: invalid configuration")
)

// StepError wraps the error that aborted a workflow step.
type StepError struct {
	Stage Stage
	Step  string
	Err   error
}

func (e *StepError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("ethdemo: %s (%s): %v", e.Stage, e.Step, e.Err)
	}
	return fmt.Sprintf("ethdemo: %s: %v", e.Stage, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// CompileError reports a compiler invocation that did not produce an artifact.
type CompileError struct {
	Compiler string
	Output   string
	Err      error
}

func (e *CompileError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("ethdemo: %s: %v: %s", e.Compiler, e.Err, e.Output)
	}
	return fmt.Sprintf("ethdemo: %s: %v", e.Compiler, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// AssertionError indicates a sanity check on a decoded event failed.
type AssertionError struct {
	Field    string
	Expected string
	Got      string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("ethdemo: assertion failed: %s: expected %q, got %q", e.Field, e.Expected, e.Got)
}

// TypeMismatchError indicates a value's type doesn't match the expected ABI type.
type TypeMismatchError struct {
	Expected string
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("ethdemo: type mismatch: expected %s, got %s", e.Expected, e.Got)
}

// MethodNotFoundError indicates the contract doesn't have the requested method.
type MethodNotFoundError struct {
	Contract common.Address
	Method   string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("ethdemo: method %q not found in contract %s", e.Method, e.Contract.Hex())
}
