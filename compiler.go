package ethdemo

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"os/exec"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Compiler backend names accepted by NewCompiler.
const (
	CompilerAuto    = "auto"
	CompilerBuiltin = "builtin"
	CompilerSolc    = "solc"
)

// Compiler turns contract source into a deployable artifact.
type Compiler interface {
	Compile(ctx context.Context, source string) (*Artifact, error)
}

// NewCompiler returns the backend named kind, configured to select contract.
// CompilerAuto prefers solc when it can be found and falls back to the builtin backend.
func NewCompiler(kind, solcPath, contract string) (Compiler, error) {
	switch kind {
	case CompilerBuiltin:
		return NewBuiltinCompiler(contract), nil
	case CompilerSolc:
		return NewSolcCompiler(solcPath, contract), nil
	case CompilerAuto, "":
		if _, err := exec.LookPath(solcPath); err == nil {
			return NewSolcCompiler(solcPath, contract), nil
		}
		return NewBuiltinCompiler(contract), nil
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "unknown compiler %q", kind)
	}
}

// SolcCompiler shells out to the solc executable.
type SolcCompiler struct {
	path     string
	contract string
}

// NewSolcCompiler creates a compiler running the solc binary at path
// (looked up in PATH when it has no separator).
func NewSolcCompiler(path, contract string) *SolcCompiler {
	if path == "" {
		path = "solc"
	}
	return &SolcCompiler{path: path, contract: contract}
}

// Compile feeds source to solc on stdin and parses its combined JSON output.
func (c *SolcCompiler) Compile(ctx context.Context, source string) (*Artifact, error) {
	bin, err := exec.LookPath(c.path)
	if err != nil {
		return nil, errors.Wrap(ErrCompilerNotFound, c.path)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "--combined-json", "abi,bin", "-")
	cmd.Stdin = strings.NewReader(source)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &CompileError{Compiler: "solc", Output: strings.TrimSpace(stderr.String()), Err: err}
	}
	return parseCombinedJSON(stdout.Bytes(), c.contract)
}

// solcOutput is the subset of `solc --combined-json abi,bin` we read.
type solcOutput struct {
	Contracts map[string]struct {
		ABI json.RawMessage `json:"abi"`
		Bin string          `json:"bin"`
	} `json:"contracts"`
	Version string `json:"version"`
}

// parseCombinedJSON extracts the named contract from solc's combined JSON.
// Keys are "<file>:<name>"; solc before 0.8 encodes the ABI as a JSON string.
func parseCombinedJSON(data []byte, name string) (*Artifact, error) {
	var out solcOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &CompileError{Compiler: "solc", Err: errors.Wrap(err, "decode combined json")}
	}

	for key, c := range out.Contracts {
		if key != name && !strings.HasSuffix(key, ":"+name) {
			continue
		}

		abiJSON := string(c.ABI)
		if strings.HasPrefix(strings.TrimSpace(abiJSON), `"`) {
			if err := json.Unmarshal(c.ABI, &abiJSON); err != nil {
				return nil, &CompileError{Compiler: "solc", Err: errors.Wrap(err, "decode abi string")}
			}
		}
		parsed, err := ParseABI(abiJSON)
		if err != nil {
			return nil, &CompileError{Compiler: "solc", Err: err}
		}

		if c.Bin == "" {
			return nil, &CompileError{Compiler: "solc", Err: errors.Errorf("contract %s has no bytecode", name)}
		}
		code, err := hex.DecodeString(strings.TrimPrefix(c.Bin, "0x"))
		if err != nil {
			return nil, &CompileError{Compiler: "solc", Err: errors.Wrap(err, "decode bytecode")}
		}

		return &Artifact{Name: name, Bytecode: code, ABI: parsed, ABIJSON: abiJSON}, nil
	}
	return nil, errors.Wrap(ErrContractNotFound, name)
}

var (
	contractDecl = regexp.MustCompile(`\bcontract\s+([A-Za-z_]\w*)\s*\{`)
	eventDecl    = regexp.MustCompile(`\bevent\s+([A-Za-z_]\w*)\s*\(\s*uint256(?:\s+[A-Za-z_]\w*)?\s*\)\s*;`)
	functionDecl = regexp.MustCompile(`\bfunction\s+([A-Za-z_]\w*)\s*\(\s*\)[^{;]*?\breturns\s*\(\s*uint256(?:\s+([A-Za-z_]\w*))?\s*\)`)
)

// BuiltinCompiler handles the counter dialect without an external toolchain:
// a single contract declaring one uint256 event and one argument-less function
// returning uint256. The function increments a storage counter, emits the event
// with the new value and returns it.
type BuiltinCompiler struct {
	contract string
}

// NewBuiltinCompiler creates a builtin compiler selecting contract.
func NewBuiltinCompiler(contract string) *BuiltinCompiler {
	return &BuiltinCompiler{contract: contract}
}

// Compile derives the ABI from the declarations in source and assembles bytecode.
func (c *BuiltinCompiler) Compile(_ context.Context, source string) (*Artifact, error) {
	contracts := contractDecl.FindAllStringSubmatch(source, -1)
	events := eventDecl.FindAllStringSubmatch(source, -1)
	functions := functionDecl.FindAllStringSubmatch(source, -1)
	if len(contracts) != 1 || len(events) != 1 || len(functions) != 1 {
		return nil, errors.Wrapf(ErrUnsupportedSource,
			"want 1 contract, 1 event, 1 function; got %d, %d, %d",
			len(contracts), len(events), len(functions))
	}
	if contracts[0][1] != c.contract {
		return nil, errors.Wrap(ErrContractNotFound, c.contract)
	}

	abiJSON, err := counterABI(events[0][1], functions[0][1], functions[0][2])
	if err != nil {
		return nil, &CompileError{Compiler: CompilerBuiltin, Err: err}
	}
	parsed, err := ParseABI(abiJSON)
	if err != nil {
		return nil, &CompileError{Compiler: CompilerBuiltin, Err: err}
	}

	method := parsed.Methods[functions[0][1]]
	event := parsed.Events[events[0][1]]
	var selector [4]byte
	copy(selector[:], method.ID)

	runtime, err := counterRuntime(selector, event.ID)
	if err != nil {
		return nil, &CompileError{Compiler: CompilerBuiltin, Err: err}
	}
	code, err := deployable(runtime)
	if err != nil {
		return nil, &CompileError{Compiler: CompilerBuiltin, Err: err}
	}

	return &Artifact{Name: c.contract, Bytecode: code, ABI: parsed, ABIJSON: abiJSON}, nil
}

type abiArgument struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Indexed bool   `json:"indexed,omitempty"`
}

type abiEntry struct {
	Type            string        `json:"type"`
	Name            string        `json:"name"`
	StateMutability string        `json:"stateMutability,omitempty"`
	Anonymous       bool          `json:"anonymous,omitempty"`
	Inputs          []abiArgument `json:"inputs"`
	Outputs         []abiArgument `json:"outputs,omitempty"`
}

func counterABI(event, function, output string) (string, error) {
	entries := []abiEntry{
		{
			Type:   "event",
			Name:   event,
			Inputs: []abiArgument{{Type: "uint256"}},
		},
		{
			Type:            "function",
			Name:            function,
			StateMutability: "nonpayable",
			Inputs:          []abiArgument{},
			Outputs:         []abiArgument{{Name: output, Type: "uint256"}},
		},
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", errors.Wrap(err, "encode abi")
	}
	return string(data), nil
}
