// Package eeprom provides a Gobot driver for the Microchip 25AA1024 1-Mbit
// SPI EEPROM: paged writes with write-in-progress polling, sequential reads
// and the erase instructions.
//
// Datasheet reference: Microchip 25AA1024 Serial EEPROM, Table 3-1
// Instruction Set. Page size 256 bytes, 128 KiB total.
package eeprom

import (
	"fmt"
	"time"

	"gobot.io/x/gobot/v2/drivers/spi"
)

// instruction set (datasheet Table 3-1)
const (
	insRead        = 0x03
	insWrite       = 0x02
	insWriteEnable = 0x06
	insReadStatus  = 0x05
	insPageErase   = 0x42
	insSectorErase = 0xD8
	insChipErase   = 0xC7
)

// STATUS bit 0, set while an internal write cycle runs
const statusWIP = 0x01

const PageSize = 256
const Capacity = 131072

type Opts struct {
	// WritePollInterval sets the pause between STATUS register polls while
	// an internal write cycle runs.
	WritePollInterval time.Duration
	// WriteTimeout bounds a single write cycle (5ms max per datasheet).
	WriteTimeout time.Duration
}

type Opt func(*Opts)

func WithWritePollInterval(interval time.Duration) Opt {
	return func(o *Opts) {
		o.WritePollInterval = interval
	}
}

func WithWriteTimeout(timeout time.Duration) Opt {
	return func(o *Opts) {
		o.WriteTimeout = timeout
	}
}

// Driver binds the 25AA1024 protocol to a Gobot SPI adaptor.
type Driver struct {
	*spi.Driver
	opts Opts
}

// New returns a driver bound to a Gobot SPI adaptor. The device runs in SPI
// mode 0 at up to 20 MHz, a conservative 5 MHz default is applied when the
// adaptor does not set a speed.
func New(adaptor spi.Connector, bus string, opts ...Opt) *Driver {
	d := &Driver{
		Driver: spi.NewDriver(adaptor, bus),
		opts: Opts{
			WritePollInterval: 500 * time.Microsecond,
			WriteTimeout:      10 * time.Millisecond,
		},
	}
	for _, opt := range opts {
		opt(&d.opts)
	}
	d.SetMode(0)
	if d.GetSpeedOrDefault(0) == 0 {
		d.SetSpeed(5_000_000)
	}
	return d
}

// Read returns length bytes starting at address. The read instruction clocks
// data out sequentially, wrapping at the end of the array.
func (d *Driver) Read(address uint32, length int) ([]byte, error) {
	if length <= 0 {
		return nil, fmt.Errorf("invalid read length: %d", length)
	}
	if address+uint32(length) > Capacity {
		return nil, fmt.Errorf("read of %d bytes at %#05x out of range", length, address)
	}
	buf := make([]byte, length)
	err := d.command(addressed(insRead, address), buf)
	if err != nil {
		return nil, fmt.Errorf("read at %#05x failed: %w", address, err)
	}
	return buf, nil
}

// Write stores data starting at address. Data crossing a page boundary is
// split into page-sized chunks, each followed by a poll of the STATUS
// register until the internal write cycle completes.
func (d *Driver) Write(address uint32, data []byte) error {
	if address+uint32(len(data)) > Capacity {
		return fmt.Errorf("write of %d bytes at %#05x out of range", len(data), address)
	}
	for len(data) > 0 {
		chunk := data
		if space := PageSize - int(address%PageSize); len(chunk) > space {
			chunk = chunk[:space]
		}
		err := d.pageWrite(address, chunk)
		if err != nil {
			return fmt.Errorf("page write at %#05x failed: %w", address, err)
		}
		address += uint32(len(chunk))
		data = data[len(chunk):]
	}
	return nil
}

// ErasePage resets the 256-byte page containing address to 0xFF.
func (d *Driver) ErasePage(address uint32) error {
	return d.erase(insPageErase, address)
}

// EraseSector resets the 32 KiB sector containing address to 0xFF.
func (d *Driver) EraseSector(address uint32) error {
	return d.erase(insSectorErase, address)
}

// EraseChip resets the whole array to 0xFF.
func (d *Driver) EraseChip() error {
	err := d.command([]byte{insWriteEnable}, nil)
	if err != nil {
		return fmt.Errorf("write enable failed: %w", err)
	}
	err = d.command([]byte{insChipErase}, nil)
	if err != nil {
		return fmt.Errorf("chip erase failed: %w", err)
	}
	return d.waitWriteCycle()
}

// Status returns the raw STATUS register content.
func (d *Driver) Status() (byte, error) {
	buf := make([]byte, 1)
	err := d.command([]byte{insReadStatus}, buf)
	if err != nil {
		return 0, fmt.Errorf("status read failed: %w", err)
	}
	return buf[0], nil
}

func (d *Driver) erase(instruction byte, address uint32) error {
	if address >= Capacity {
		return fmt.Errorf("erase address %#05x out of range", address)
	}
	err := d.command([]byte{insWriteEnable}, nil)
	if err != nil {
		return fmt.Errorf("write enable failed: %w", err)
	}
	err = d.command(addressed(instruction, address), nil)
	if err != nil {
		return fmt.Errorf("erase at %#05x failed: %w", address, err)
	}
	return d.waitWriteCycle()
}

func (d *Driver) pageWrite(address uint32, data []byte) error {
	err := d.command([]byte{insWriteEnable}, nil)
	if err != nil {
		return fmt.Errorf("write enable failed: %w", err)
	}
	err = d.command(append(addressed(insWrite, address), data...), nil)
	if err != nil {
		return err
	}
	return d.waitWriteCycle()
}

func (d *Driver) waitWriteCycle() error {
	deadline := time.Now().Add(d.opts.WriteTimeout)
	for time.Now().Before(deadline) {
		status, err := d.Status()
		if err != nil {
			return err
		}
		if status&statusWIP == 0 {
			return nil
		}
		time.Sleep(d.opts.WritePollInterval)
	}
	return fmt.Errorf("timeout waiting for write cycle completion")
}

// command issues a single chip-select transaction: header bytes out, then
// data bytes clocked in when a receive buffer is supplied.
func (d *Driver) command(header []byte, data []byte) error {
	conn := d.Connection()
	type spiOps interface {
		ReadCommandData(command []byte, data []byte) error
		WriteBytes(data []byte) error
	}
	ops, ok := conn.(spiOps)
	if !ok {
		return fmt.Errorf("spi connection does not support required operations")
	}
	if len(data) == 0 {
		return ops.WriteBytes(header)
	}
	return ops.ReadCommandData(header, data)
}

// addressed prefixes an instruction with the 24-bit address. Only A16..A0
// are significant, the upper bits are ignored by the device.
func addressed(instruction byte, address uint32) []byte {
	return []byte{instruction, byte(address >> 16), byte(address >> 8), byte(address)}
}
