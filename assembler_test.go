package ethdemo

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/core/vm/runtime"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushOp(t *testing.T) {
	assert.Equal(t, vm.PUSH1, pushOp(1))
	assert.Equal(t, vm.PUSH2, pushOp(2))
	assert.Equal(t, vm.PUSH4, pushOp(4))
	assert.Equal(t, vm.PUSH32, pushOp(32))
}

func TestAssemblerPush(t *testing.T) {
	tests := []struct {
		name string
		asm  *Assembler
		want []byte
	}{
		{"zero uses PUSH1", NewAssembler().PushUint(0), []byte{0x60, 0x00}},
		{"one byte", NewAssembler().PushUint(0xe0), []byte{0x60, 0xe0}},
		{"two bytes", NewAssembler().PushUint(0x0102), []byte{0x61, 0x01, 0x02}},
		{"leading zeros trimmed", NewAssembler().PushBytes([]byte{0x00, 0x00, 0x12, 0x34}), []byte{0x61, 0x12, 0x34}},
		{"uint256", NewAssembler().PushInt(uint256.NewInt(0x010203)), []byte{0x62, 0x01, 0x02, 0x03}},
		{
			"full word",
			NewAssembler().PushBytes(bytes.Repeat([]byte{0xff}, 32)),
			append([]byte{0x7f}, bytes.Repeat([]byte{0xff}, 32)...),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := tt.asm.Assemble()
			require.NoError(t, err)
			assert.Equal(t, tt.want, code)
		})
	}

	t.Run("wider than a word", func(t *testing.T) {
		_, err := NewAssembler().PushBytes(make([]byte, 33)).Op(vm.STOP).Assemble()
		assert.ErrorIs(t, err, ErrPushTooWide)
	})
}

func TestAssemblerLabels(t *testing.T) {
	t.Run("forward reference", func(t *testing.T) {
		code, err := NewAssembler().
			PushLabel("end").Op(vm.JUMP).
			Label("end").Op(vm.STOP).
			Assemble()
		require.NoError(t, err)
		assert.Equal(t, []byte{0x61, 0x00, 0x04, 0x56, 0x5b, 0x00}, code)
	})

	t.Run("backward reference", func(t *testing.T) {
		code, err := NewAssembler().
			Label("top").PushLabel("top").Op(vm.JUMP).
			Assemble()
		require.NoError(t, err)
		assert.Equal(t, []byte{0x5b, 0x61, 0x00, 0x00, 0x56}, code)
	})

	t.Run("mark emits nothing", func(t *testing.T) {
		code, err := NewAssembler().
			PushLabel("data").Op(vm.STOP).
			Mark("data").Raw([]byte{0xaa, 0xbb}).
			Assemble()
		require.NoError(t, err)
		assert.Equal(t, []byte{0x61, 0x00, 0x04, 0x00, 0xaa, 0xbb}, code)
	})

	t.Run("undefined label", func(t *testing.T) {
		_, err := NewAssembler().PushLabel("nowhere").Op(vm.JUMP).Assemble()
		assert.ErrorIs(t, err, ErrUndefinedLabel)
	})

	t.Run("duplicate label", func(t *testing.T) {
		_, err := NewAssembler().Label("a").Label("a").Assemble()
		assert.ErrorIs(t, err, ErrDuplicateLabel)
	})
}

func TestDeployableLayout(t *testing.T) {
	runtimeCode := []byte{0x60, 0x2a, 0x60, 0x00, 0x52, 0x60, 0x20, 0x60, 0x00, 0xf3}
	code, err := deployable(runtimeCode)
	require.NoError(t, err)

	want := []byte{
		0x60, byte(len(runtimeCode)), // PUSH1 len
		0x80,             // DUP1
		0x61, 0x00, 0x0c, // PUSH2 offset of runtime
		0x60, 0x00, // PUSH1 0
		0x39,       // CODECOPY
		0x60, 0x00, // PUSH1 0
		0xf3, // RETURN
	}
	assert.Equal(t, want, code[:len(want)])
	assert.Equal(t, runtimeCode, code[len(want):])

	t.Run("creates the runtime", func(t *testing.T) {
		deployed, _, _, err := runtime.Create(code, &runtime.Config{})
		require.NoError(t, err)
		assert.Equal(t, runtimeCode, deployed)
	})
}

func TestCounterBytecodeExecutes(t *testing.T) {
	artifact, err := NewBuiltinCompiler(DefaultContractName).Compile(context.Background(), ContractSource)
	require.NoError(t, err)

	cfg := &runtime.Config{}
	deployed, address, _, err := runtime.Create(artifact.Bytecode, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, deployed)

	input, err := artifact.ABI.Pack("increment")
	require.NoError(t, err)

	for i := int64(1); i <= 3; i++ {
		ret, _, err := runtime.Call(address, input, cfg)
		require.NoError(t, err)

		out, err := artifact.ABI.Unpack("increment", ret)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, i, out[0].(*big.Int).Int64(), "return value of call %d", i)
	}

	assert.Equal(t, common.BigToHash(big.NewInt(3)), cfg.State.GetState(address, common.Hash{}))

	events := DecodeEvents(artifact.ABI, cfg.State.Logs())
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, "Return", ev.Name)
		assert.Equal(t, "Return(uint256)", ev.Signature)
		require.Len(t, ev.Args, 1)
		assert.Equal(t, int64(i+1), ev.Args[0].(*big.Int).Int64())
	}

	t.Run("unknown selector reverts", func(t *testing.T) {
		_, _, err := runtime.Call(address, []byte{0xde, 0xad, 0xbe, 0xef}, cfg)
		assert.ErrorIs(t, err, vm.ErrExecutionReverted)
	})

	t.Run("short calldata reverts", func(t *testing.T) {
		_, _, err := runtime.Call(address, nil, cfg)
		assert.ErrorIs(t, err, vm.ErrExecutionReverted)
	})
}
