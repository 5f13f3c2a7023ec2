package ethdemo

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// Assembler errors.
var (
	ErrUndefinedLabel = errors.New("ethdemo: undefined label")
	ErrDuplicateLabel = errors.New("ethdemo: duplicate label")
	ErrPushTooWide    = errors.New("ethdemo: push operand wider than 32 bytes")
)

// labelRefSize is the encoded size of a label reference (PUSH2 + 2 bytes).
const labelRefSize = 3

type itemKind uint8

const (
	itemOp itemKind = iota
	itemPush
	itemLabelRef
	itemJumpDest
	itemMark
	itemRaw
)

type item struct {
	kind  itemKind
	op    vm.OpCode
	data  []byte
	label string
}

func (it item) size() int {
	switch it.kind {
	case itemOp, itemJumpDest:
		return 1
	case itemPush:
		return 1 + len(it.data)
	case itemLabelRef:
		return labelRefSize
	case itemRaw:
		return len(it.data)
	default:
		return 0
	}
}

// Assembler builds EVM bytecode from opcodes, immediates and labels.
// Label references are always encoded as PUSH2, so offsets resolve in two passes.
// The first error encountered is retained and returned by Assemble.
type Assembler struct {
	items []item
	err   error
}

// NewAssembler creates an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{items: make([]item, 0, 64)}
}

// Op appends one or more opcodes without immediates.
func (a *Assembler) Op(ops ...vm.OpCode) *Assembler {
	for _, op := range ops {
		a.items = append(a.items, item{kind: itemOp, op: op})
	}
	return a
}

// PushInt appends the narrowest PUSHn for v. Zero is encoded as PUSH1 0x00.
func (a *Assembler) PushInt(v *uint256.Int) *Assembler {
	data := v.Bytes()
	if len(data) == 0 {
		data = []byte{0}
	}
	a.items = append(a.items, item{kind: itemPush, op: pushOp(len(data)), data: data})
	return a
}

// PushUint is PushInt for small constants.
func (a *Assembler) PushUint(v uint64) *Assembler {
	return a.PushInt(uint256.NewInt(v))
}

// PushBytes pushes b interpreted as a big-endian integer.
func (a *Assembler) PushBytes(b []byte) *Assembler {
	if len(b) > 32 {
		a.fail(errors.Wrapf(ErrPushTooWide, "%d bytes", len(b)))
		return a
	}
	return a.PushInt(new(uint256.Int).SetBytes(b))
}

// PushLabel pushes the offset of a label defined anywhere in the program.
func (a *Assembler) PushLabel(name string) *Assembler {
	a.items = append(a.items, item{kind: itemLabelRef, label: name})
	return a
}

// Label defines a jump target: a JUMPDEST at the current offset.
func (a *Assembler) Label(name string) *Assembler {
	a.items = append(a.items, item{kind: itemJumpDest, op: vm.JUMPDEST, label: name})
	return a
}

// Mark names the current offset without emitting anything.
func (a *Assembler) Mark(name string) *Assembler {
	a.items = append(a.items, item{kind: itemMark, label: name})
	return a
}

// Raw appends bytes verbatim, e.g. an embedded runtime.
func (a *Assembler) Raw(b []byte) *Assembler {
	a.items = append(a.items, item{kind: itemRaw, data: common.CopyBytes(b)})
	return a
}

// Assemble resolves labels and returns the encoded bytecode.
func (a *Assembler) Assemble() ([]byte, error) {
	if a.err != nil {
		return nil, a.err
	}

	offsets := make(map[string]int)
	size := 0
	for _, it := range a.items {
		if it.kind == itemJumpDest || it.kind == itemMark {
			if _, exists := offsets[it.label]; exists {
				return nil, errors.Wrap(ErrDuplicateLabel, it.label)
			}
			offsets[it.label] = size
		}
		size += it.size()
	}
	if size > 0xffff {
		return nil, errors.Errorf("ethdemo: program too large for PUSH2 labels (%d bytes)", size)
	}

	code := make([]byte, 0, size)
	for _, it := range a.items {
		switch it.kind {
		case itemOp, itemJumpDest:
			code = append(code, byte(it.op))
		case itemPush:
			code = append(code, byte(it.op))
			code = append(code, it.data...)
		case itemLabelRef:
			off, ok := offsets[it.label]
			if !ok {
				return nil, errors.Wrap(ErrUndefinedLabel, it.label)
			}
			code = append(code, byte(vm.PUSH2), byte(off>>8), byte(off))
		case itemRaw:
			code = append(code, it.data...)
		}
	}
	return code, nil
}

func (a *Assembler) fail(err error) {
	if a.err == nil {
		a.err = err
	}
}

// pushOp returns PUSHn for an n-byte immediate.
func pushOp(n int) vm.OpCode {
	return vm.OpCode(byte(vm.PUSH1) + byte(n-1))
}

// deployable wraps runtime code in init code that copies it to memory and returns it.
func deployable(runtime []byte) ([]byte, error) {
	return NewAssembler().
		PushUint(uint64(len(runtime))).
		Op(vm.DUP1).
		PushLabel("runtime").
		PushUint(0).
		Op(vm.CODECOPY).
		PushUint(0).
		Op(vm.RETURN).
		Mark("runtime").
		Raw(runtime).
		Assemble()
}

// counterRuntime assembles a contract with one non-payable function (selector)
// that increments storage slot 0, logs the new value under topic and returns it.
// Any other calldata reverts.
func counterRuntime(selector [4]byte, topic common.Hash) ([]byte, error) {
	return NewAssembler().
		// dispatch
		PushUint(4).Op(vm.CALLDATASIZE, vm.LT).PushLabel("revert").Op(vm.JUMPI).
		PushUint(0).Op(vm.CALLDATALOAD).PushUint(0xe0).Op(vm.SHR).
		PushBytes(selector[:]).Op(vm.EQ).PushLabel("increment").Op(vm.JUMPI).
		Label("revert").
		PushUint(0).Op(vm.DUP1, vm.REVERT).
		// increment
		Label("increment").
		Op(vm.CALLVALUE).PushLabel("revert").Op(vm.JUMPI).
		PushUint(0).Op(vm.SLOAD).PushUint(1).Op(vm.ADD, vm.DUP1).PushUint(0).Op(vm.SSTORE).
		PushUint(0).Op(vm.MSTORE).
		PushBytes(topic[:]).PushUint(32).PushUint(0).Op(vm.LOG1).
		PushUint(32).PushUint(0).Op(vm.RETURN).
		Assemble()
}
