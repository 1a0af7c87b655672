package mem

import (
	"context"
	"fmt"
	"time"

	"github.com/mklimuk/eeprom"
)

// MCP24LC32 7-bit device address (1010 A2 A1 A0 with address pins tied low).
const mcp24lc32Address = 0x50

// Capacity is the size of the memory array in bytes.
const Capacity = 4096

// The part decodes only the lower 12 bits of the 16-bit memory address.
const addrMask = 0x0FFF

var ErrAckPollLimit = fmt.Errorf("ack poll limit reached while waiting for write cycle")

type MCP24LC32Opts struct {
	// BusyPollInterval is slept between busy-flag polls. Zero spins.
	BusyPollInterval time.Duration
	// AckPollLimit bounds the number of write-cycle ack probes.
	// Zero polls without bound; cancellation is then the only escape.
	AckPollLimit int
}

type MCP24LC32Opt func(*MCP24LC32Opts)

func WithBusyPollInterval(interval time.Duration) MCP24LC32Opt {
	return func(o *MCP24LC32Opts) {
		o.BusyPollInterval = interval
	}
}

func WithAckPollLimit(limit int) MCP24LC32Opt {
	return func(o *MCP24LC32Opts) {
		o.AckPollLimit = limit
	}
}

// MCP24LC32 represents a Microchip 24LC32A 32 Kbit serial EEPROM
// See: https://ww1.microchip.com/downloads/en/DeviceDoc/21713M.pdf
//
// Every method is a self-contained transaction; the driver keeps no state
// between calls beyond the physical EEPROM contents. Single caller assumed,
// transactions must not be interleaved from multiple goroutines without an
// external mutex.
type MCP24LC32 struct {
	bus    eeprom.MasterBus
	addr   byte
	config MCP24LC32Opts
}

func NewMCP24LC32(bus eeprom.MasterBus, opts ...MCP24LC32Opt) *MCP24LC32 {
	config := MCP24LC32Opts{
		BusyPollInterval: 50 * time.Microsecond,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &MCP24LC32{
		bus:    bus,
		addr:   mcp24lc32Address,
		config: config,
	}
}

// WaitForWriteComplete polls the device until it acknowledges being
// addressed in write mode. The part does not ack the address phase while an
// internal write cycle is committing the previous byte to the non-volatile
// cells (a few milliseconds). Each probe is a zero-content framed write
// (start+address+stop); the probe payload does not matter.
//
// Without an ack poll limit the loop never gives up on an unresponsive
// device; ctx cancellation is the only way out.
func (m *MCP24LC32) WaitForWriteComplete(ctx context.Context) error {
	status := m.bus.SetSlaveAddr(ctx, m.addr, false)
	if status != nil {
		return status
	}
	for polls := 0; ; polls++ {
		if m.config.AckPollLimit > 0 && polls >= m.config.AckPollLimit {
			return ErrAckPollLimit
		}
		status = m.bus.SendByte(ctx, 0x00, eeprom.FlagStart|eeprom.FlagRun|eeprom.FlagStop)
		if err := m.waitIdle(ctx); err != nil {
			return err
		}
		acked, err := m.bus.AddrAck(ctx)
		if err != nil {
			return err
		}
		if acked {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return status
}

// ByteWrite writes a single byte at the given memory address. Only the lower
// 12 bits of the address reach the device.
func (m *MCP24LC32) ByteWrite(ctx context.Context, address uint16, data byte) error {
	if err := m.waitIdle(ctx); err != nil {
		return err
	}
	if err := m.bus.SetSlaveAddr(ctx, m.addr, false); err != nil {
		return err
	}
	// the ack poll outcome does not participate in the returned status
	_ = m.WaitForWriteComplete(ctx)
	if err := m.bus.SendByte(ctx, byte(address>>8), eeprom.FlagStart|eeprom.FlagRun); err != nil {
		return err
	}
	if err := m.bus.SendByte(ctx, byte(address), eeprom.FlagRun); err != nil {
		return err
	}
	return m.bus.SendByte(ctx, data, eeprom.FlagRun|eeprom.FlagStop)
}

// ByteRead reads a single byte from the given memory address. The read
// pointer is established with a dummy write of the two address bytes before
// re-addressing the device in read mode.
func (m *MCP24LC32) ByteRead(ctx context.Context, address uint16) (byte, error) {
	if err := m.waitIdle(ctx); err != nil {
		return 0, err
	}
	// the ack poll outcome does not participate in the returned status
	_ = m.WaitForWriteComplete(ctx)
	if err := m.bus.SetSlaveAddr(ctx, m.addr, false); err != nil {
		return 0, err
	}
	if err := m.bus.SendByte(ctx, byte(address>>8), eeprom.FlagStart|eeprom.FlagRun); err != nil {
		return 0, err
	}
	if err := m.bus.SendByte(ctx, byte(address), eeprom.FlagRun); err != nil {
		return 0, err
	}
	if err := m.bus.SetSlaveAddr(ctx, m.addr, true); err != nil {
		return 0, err
	}
	return m.bus.ReceiveByte(ctx, eeprom.FlagStart|eeprom.FlagRun|eeprom.FlagStop)
}

// WriteBytes writes data as consecutive single-byte transactions starting at
// address. Each byte waits out the preceding write cycle.
func (m *MCP24LC32) WriteBytes(ctx context.Context, address uint16, data []byte) error {
	for i, b := range data {
		if err := m.ByteWrite(ctx, address+uint16(i), b); err != nil {
			return fmt.Errorf("could not write byte %d of %d at %#04x: %w", i+1, len(data), address+uint16(i), err)
		}
	}
	return nil
}

// ReadBytes fills buf with consecutive single-byte reads starting at address.
func (m *MCP24LC32) ReadBytes(ctx context.Context, address uint16, buf []byte) error {
	for i := range buf {
		b, err := m.ByteRead(ctx, address+uint16(i))
		if err != nil {
			return fmt.Errorf("could not read byte %d of %d at %#04x: %w", i+1, len(buf), address+uint16(i), err)
		}
		buf[i] = b
	}
	return nil
}

func (m *MCP24LC32) waitIdle(ctx context.Context) error {
	for {
		busy, err := m.bus.Busy(ctx)
		if err != nil {
			return err
		}
		if !busy {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if m.config.BusyPollInterval > 0 {
			time.Sleep(m.config.BusyPollInterval)
		}
	}
}
