// Package sim provides an in-memory simulation of a two-wire master bus with
// an attached MCP24LC32-style EEPROM part. It is used by the driver tests and
// by the CLI when no hardware adapter is available.
package sim

import (
	"context"
	"sync"

	"github.com/mklimuk/eeprom"
)

const deviceAddress = 0x50
const capacity = 4096
const addrMask = 0x0FFF

type BusOpts struct {
	// WriteCycle is the number of address phases the part NACKs after each
	// committed write, emulating the internal write-cycle latency.
	WriteCycle int
	// BusyPolls is the number of Busy queries answering true after each bus
	// operation before the engine reports idle again.
	BusyPolls int
}

type BusOpt func(*BusOpts)

func WithWriteCycle(polls int) BusOpt {
	return func(o *BusOpts) {
		o.WriteCycle = polls
	}
}

func WithBusyPolls(polls int) BusOpt {
	return func(o *BusOpts) {
		o.BusyPolls = polls
	}
}

// Bus models the master controller together with the EEPROM part hanging off
// it. The part latches two address bytes per write frame (high then low,
// masked to 12 bits), auto-increments on data bytes and on sequential reads,
// and refuses to ack its address while a write cycle is pending.
type Bus struct {
	mx     sync.Mutex
	config BusOpts

	mem     [capacity]byte
	pointer uint16
	hi      byte

	slave    byte
	receive  bool
	frameLen int
	wrote    bool

	lastAck   bool
	cycleLeft int
	busyLeft  int
}

func NewBus(opts ...BusOpt) *Bus {
	config := BusOpts{
		WriteCycle: 2,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Bus{config: config, lastAck: true}
}

func (b *Bus) SetSlaveAddr(ctx context.Context, addr byte, receive bool) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.slave = addr
	b.receive = receive
	return nil
}

func (b *Bus) SendByte(ctx context.Context, data byte, flags eeprom.Flags) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	defer b.completeOp()
	if flags&eeprom.FlagStart != 0 {
		b.frameLen = 0
		if !b.addressPhase() {
			return nil
		}
	}
	if !b.lastAck {
		// the part stays silent for the rest of a NACKed frame
		return nil
	}
	switch b.frameLen {
	case 0:
		b.hi = data
	case 1:
		b.pointer = (uint16(b.hi)<<8 | uint16(data)) & addrMask
	default:
		b.mem[b.pointer] = data
		b.pointer = (b.pointer + 1) & addrMask
		b.wrote = true
	}
	b.frameLen++
	if flags&eeprom.FlagStop != 0 && b.wrote {
		b.cycleLeft = b.config.WriteCycle
		b.wrote = false
	}
	return nil
}

func (b *Bus) ReceiveByte(ctx context.Context, flags eeprom.Flags) (byte, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	defer b.completeOp()
	if flags&eeprom.FlagStart != 0 {
		if !b.addressPhase() {
			return 0, eeprom.ErrNoAck
		}
	}
	if !b.receive {
		return 0, eeprom.ErrNoAck
	}
	data := b.mem[b.pointer]
	b.pointer = (b.pointer + 1) & addrMask
	return data, nil
}

func (b *Bus) Busy(ctx context.Context) (bool, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.busyLeft > 0 {
		b.busyLeft--
		return true, nil
	}
	return false, nil
}

func (b *Bus) AddrAck(ctx context.Context) (bool, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.lastAck, nil
}

// Preload copies data into the simulated memory array at the given offset.
func (b *Bus) Preload(address uint16, data []byte) {
	b.mx.Lock()
	defer b.mx.Unlock()
	for i, d := range data {
		b.mem[(address+uint16(i))&addrMask] = d
	}
}

// Memory returns a copy of the simulated memory array.
func (b *Bus) Memory() []byte {
	b.mx.Lock()
	defer b.mx.Unlock()
	out := make([]byte, capacity)
	copy(out, b.mem[:])
	return out
}

func (b *Bus) addressPhase() bool {
	if b.slave != deviceAddress {
		b.lastAck = false
		return false
	}
	if b.cycleLeft > 0 {
		b.cycleLeft--
		b.lastAck = false
		return false
	}
	b.lastAck = true
	return true
}

func (b *Bus) completeOp() {
	b.busyLeft = b.config.BusyPolls
}
