package eeprom

import (
	"context"
	"fmt"
)

// Bus error taxonomy. Every multi-step transaction short-circuits on the
// first non-nil error and returns it to the caller.
var ErrInvalidBus = fmt.Errorf("invalid bus handle")
var ErrNoAck = fmt.Errorf("slave did not acknowledge")
var ErrArbitrationLost = fmt.Errorf("bus arbitration lost")
var ErrBusBusy = fmt.Errorf("bus engine is busy (command not completed)")

// Flags carry the start/run/stop framing bits of a single bus operation.
type Flags byte

const (
	FlagStart Flags = 1 << iota
	FlagRun
	FlagStop
)

func (f Flags) String() string {
	s := ""
	if f&FlagStart != 0 {
		s += "S"
	}
	if f&FlagRun != 0 {
		s += "R"
	}
	if f&FlagStop != 0 {
		s += "P"
	}
	return s
}

// MasterBus exposes the byte-level primitives of a two-wire master
// controller. Transactors are a thin orchestration layer on top of it.
//
// SetSlaveAddr latches the 7-bit device address and transfer direction for
// the frames that follow (receive true selects read mode). SendByte and
// ReceiveByte move one byte with the given framing. Busy reports whether the
// controller is still completing the previous operation. AddrAck reports
// whether the last address phase was acknowledged by the device.
type MasterBus interface {
	SetSlaveAddr(ctx context.Context, addr byte, receive bool) error
	SendByte(ctx context.Context, b byte, flags Flags) error
	ReceiveByte(ctx context.Context, flags Flags) (byte, error)
	Busy(ctx context.Context) (bool, error)
	AddrAck(ctx context.Context) (bool, error)
}
