package ethdemo

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Event is a log decoded against a contract ABI.
// Logs the ABI does not describe keep an empty Name and Signature and nil Args.
type Event struct {
	Name      string
	Signature string
	Args      []any
	Log       *types.Log
}

// Decoded reports whether the log matched an ABI event.
func (e Event) Decoded() bool {
	return e.Signature != ""
}

// Receipt is a mined transaction receipt with decoded events.
type Receipt struct {
	TxHash        common.Hash
	BlockHash     common.Hash
	BlockNumber   uint64
	Status        uint64
	GasUsed       uint64
	Confirmations uint64
	Events        []Event
}

// NewReceipt decodes r's logs against contractABI.
func NewReceipt(r *types.Receipt, confirmations uint64, contractABI abi.ABI) *Receipt {
	var number uint64
	if r.BlockNumber != nil {
		number = r.BlockNumber.Uint64()
	}
	return &Receipt{
		TxHash:        r.TxHash,
		BlockHash:     r.BlockHash,
		BlockNumber:   number,
		Status:        r.Status,
		GasUsed:       r.GasUsed,
		Confirmations: confirmations,
		Events:        DecodeEvents(contractABI, r.Logs),
	}
}

// PopEvent removes and returns the last event.
func (r *Receipt) PopEvent() (Event, bool) {
	if len(r.Events) == 0 {
		return Event{}, false
	}
	last := r.Events[len(r.Events)-1]
	r.Events = r.Events[:len(r.Events)-1]
	return last, true
}

// DecodeEvents decodes logs in order.
func DecodeEvents(contractABI abi.ABI, logs []*types.Log) []Event {
	events := make([]Event, 0, len(logs))
	for _, lg := range logs {
		events = append(events, decodeEvent(contractABI, lg))
	}
	return events
}

func decodeEvent(contractABI abi.ABI, lg *types.Log) Event {
	undecoded := Event{Log: lg}
	if len(lg.Topics) == 0 {
		return undecoded
	}
	ev, err := contractABI.EventByID(lg.Topics[0])
	if err != nil {
		return undecoded
	}

	data, err := ev.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return undecoded
	}

	// Indexed inputs come from topics, the rest from data, in declaration order.
	topics := lg.Topics[1:]
	args := make([]any, len(ev.Inputs))
	di, ti := 0, 0
	for i, input := range ev.Inputs {
		if !input.Indexed {
			args[i] = data[di]
			di++
			continue
		}
		if ti >= len(topics) {
			return undecoded
		}
		v, err := decodeTopic(input.Type, topics[ti])
		if err != nil {
			return undecoded
		}
		args[i] = v
		ti++
	}

	return Event{Name: ev.Name, Signature: ev.Sig, Args: args, Log: lg}
}

// decodeTopic decodes an indexed value. Reference types are only available
// as their keccak hash.
func decodeTopic(t abi.Type, topic common.Hash) (any, error) {
	switch t.T {
	case abi.StringTy, abi.BytesTy, abi.SliceTy, abi.ArrayTy, abi.TupleTy:
		return topic, nil
	}
	values, err := abi.Arguments{{Type: t}}.Unpack(topic.Bytes())
	if err != nil {
		return nil, err
	}
	return values[0], nil
}

// ExtractValue pops the last event of r, checks it is eventName(uint256) and
// returns its first argument.
func ExtractValue(r *Receipt, eventName string) (*uint256.Int, error) {
	ev, ok := r.PopEvent()
	if !ok {
		return nil, ErrNoEvents
	}
	if ev.Name != eventName {
		return nil, &AssertionError{Field: "event", Expected: eventName, Got: ev.Name}
	}
	if want := eventName + "(uint256)"; ev.Signature != want {
		return nil, &AssertionError{Field: "eventSignature", Expected: want, Got: ev.Signature}
	}

	b, ok := ev.Args[0].(*big.Int)
	if !ok {
		return nil, &TypeMismatchError{Expected: "uint256", Got: fmt.Sprintf("%T", ev.Args[0])}
	}
	v, overflow := uint256.FromBig(b)
	if overflow || b.Sign() < 0 {
		return nil, &TypeMismatchError{Expected: "uint256", Got: b.String()}
	}
	return v, nil
}
