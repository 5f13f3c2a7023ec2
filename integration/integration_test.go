package integration

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/branched-services/go-ethdemo"
)

// Test private key (Anvil default account 0)
const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func endpoint() string {
	if url := os.Getenv("RPC_URL"); url != "" {
		return url
	}
	return "http://localhost:8545"
}

func TestWorkflowAgainstNode(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "1" {
		t.Skip("Set INTEGRATION_TEST=1 to run integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg := ethdemo.DefaultConfig()
	cfg.Endpoint = endpoint()
	cfg.PrivateKey = testPrivateKey
	// Anvil in automine mode only produces a block per transaction.
	cfg.Confirmations = 1
	cfg.Invocations = 2

	var out bytes.Buffer
	res, err := ethdemo.Run(ctx, cfg, ethdemo.WithOutput(&out))
	if err != nil {
		t.Fatalf("Workflow failed: %+v", err)
	}

	if got, want := out.String(), "Result: 1\nResult: 2\n"; got != want {
		t.Errorf("Expected output %q, got %q", want, got)
	}
	t.Logf("Counter deployed at: %s", res.Address.Hex())
}

func TestWalletAgainstNode(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "1" {
		t.Skip("Set INTEGRATION_TEST=1 to run integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	wallet, err := ethdemo.NewWallet(ctx, testPrivateKey, endpoint())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer wallet.Close()
	t.Logf("Connected to chain ID: %d", wallet.ChainID())

	artifact, err := ethdemo.NewBuiltinCompiler(ethdemo.DefaultContractName).Compile(ctx, ethdemo.ContractSource)
	if err != nil {
		t.Fatalf("Failed to compile: %v", err)
	}

	contract, err := wallet.Deploy(ctx, artifact.ABI, artifact.Bytecode)
	if err != nil {
		t.Fatalf("Failed to deploy: %v", err)
	}
	t.Logf("Counter deployed at: %s", contract.Address().Hex())

	tx, err := wallet.Call(ctx, contract, ethdemo.DefaultFunction)
	if err != nil {
		t.Fatalf("Failed to send transaction: %v", err)
	}
	receipt, err := tx.Wait(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to confirm transaction: %v", err)
	}

	value, err := ethdemo.ExtractValue(receipt, ethdemo.DefaultEventName)
	if err != nil {
		t.Fatalf("Failed to extract value: %v", err)
	}
	if value.Uint64() != 1 {
		t.Errorf("Expected 1, got %s", value.Dec())
	}
	t.Logf("Transaction successful! Gas used: %d", receipt.GasUsed)
}
