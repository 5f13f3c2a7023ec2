package ethdemo

import (
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ContractSource is the counter contract deployed by the workflow.
const ContractSource = `// SPDX-License-Identifier: MIT
pragma solidity ^0.8.0;

contract Example {
    event Return(uint256);

    uint256 _accum = 0;

    function increment() public returns (uint256 sum) {
        _accum++;
        emit Return(_accum);
        return _accum;
    }
}
`

// DefaultContractName is the contract selected from ContractSource.
const DefaultContractName = "Example"

// DefaultABI is the hand-written interface used to deploy and call ContractSource.
// It must agree with whatever the compiler produces; see VerifyABI.
const DefaultABI = `[
	{
		"type": "event",
		"name": "Return",
		"anonymous": false,
		"inputs": [
			{"name": "", "type": "uint256", "indexed": false}
		]
	},
	{
		"type": "function",
		"name": "increment",
		"stateMutability": "nonpayable",
		"inputs": [],
		"outputs": [
			{"name": "sum", "type": "uint256"}
		]
	}
]`

// Artifact is the output of compiling a contract.
type Artifact struct {
	Name     string
	Bytecode []byte
	ABI      abi.ABI
	ABIJSON  string
}

// Contract is a handle to a deployed contract.
type Contract struct {
	address  common.Address
	abi      abi.ABI
	bound    *bind.BoundContract
	deployTx common.Hash
}

// Address returns the contract address.
func (c *Contract) Address() common.Address {
	return c.address
}

// ABI returns the contract ABI.
func (c *Contract) ABI() abi.ABI {
	return c.abi
}

// DeployTx returns the hash of the deployment transaction, if known.
func (c *Contract) DeployTx() common.Hash {
	return c.deployTx
}

// HasMethod returns true if the contract has a method with the given name.
func (c *Contract) HasMethod(methodName string) bool {
	_, ok := c.abi.Methods[methodName]
	return ok
}

// MethodNames returns all method names in the contract ABI, sorted.
func (c *Contract) MethodNames() []string {
	names := make([]string, 0, len(c.abi.Methods))
	for name := range c.abi.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseABI parses a JSON ABI string into an abi.ABI.
func ParseABI(abiJSON string) (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return abi.ABI{}, errors.Wrap(err, "ethdemo: parse ABI")
	}
	return parsed, nil
}

// MustParseABI is like ParseABI but panics on error.
func MustParseABI(abiJSON string) abi.ABI {
	parsed, err := ParseABI(abiJSON)
	if err != nil {
		panic(err)
	}
	return parsed
}

// VerifyABI checks that every method and event declared in want exists in got
// with an identical signature. got may declare more than want.
func VerifyABI(want, got abi.ABI) error {
	for name, m := range want.Methods {
		gm, ok := got.Methods[name]
		if !ok {
			return errors.Wrapf(ErrABIMismatch, "method %q missing", name)
		}
		if gm.Sig != m.Sig {
			return errors.Wrapf(ErrABIMismatch, "method %s compiled as %s", m.Sig, gm.Sig)
		}
		if len(gm.Outputs) != len(m.Outputs) {
			return errors.Wrapf(ErrABIMismatch, "method %s returns %d values, compiled %d", m.Sig, len(m.Outputs), len(gm.Outputs))
		}
	}
	for name, ev := range want.Events {
		gev, ok := got.Events[name]
		if !ok {
			return errors.Wrapf(ErrABIMismatch, "event %q missing", name)
		}
		if gev.Sig != ev.Sig {
			return errors.Wrapf(ErrABIMismatch, "event %s compiled as %s", ev.Sig, gev.Sig)
		}
	}
	return nil
}
