// Package ethdemo compiles a small counter contract, deploys it to a local
// Ethereum chain, calls it and reports the value carried by the event the
// call emits.
//
// The workflow runs as an ordered list of steps:
//   - Compile the contract source with solc, or with the builtin assembler
//     when solc is not installed
//   - Start an in-process chain serving JSON-RPC on 127.0.0.1:8545
//   - Deploy the contract from a funded demo account
//   - Call increment() and wait for two confirmations
//   - Decode the receipt's last event, check it is Return(uint256), and
//     print "Result: <value>"
//   - Stop the chain
//
// # Basic Usage
//
//	res, err := ethdemo.Run(ctx, ethdemo.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Values[0].Dec())
//
// # Building Blocks
//
// Each step is also usable on its own:
//
//   - Compiler: NewCompiler, SolcCompiler and BuiltinCompiler produce an
//     Artifact (bytecode and ABI).
//
//   - Chain: StartChain runs a simulated go-ethereum backend behind HTTP
//     JSON-RPC and commits a block every BlockTime, so confirmations
//     accumulate without other traffic.
//
//   - Wallet: NewWallet signs with one key against any endpoint. Deploy,
//     Call and Transaction.Wait cover the contract lifecycle.
//
//   - Events: DecodeEvents and ExtractValue turn receipt logs into typed
//     values.
//
// # Errors
//
// The first failing step ends a run. Its error is returned as a *StepError
// naming the Stage, and wraps the sentinel (ErrPortInUse, ErrABIMismatch,
// ErrNoEvents, ...) or typed error that caused it. The chain is stopped on
// every path.
package ethdemo
