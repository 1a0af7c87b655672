package i2c

import (
	"context"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/mklimuk/eeprom"
)

var _ eeprom.MasterBus = &GenericBus{}

// GenericBus adapts a Linux kernel I2C bus (through periph.io) to the framed
// master-bus primitives. Kernel buses only expose whole transfers, so frames
// are assembled locally: a frame closed by a stop flag is issued as a write
// transfer, a frame left open before a framed read becomes a combined
// write+read with a repeated start.
type GenericBus struct {
	mx  sync.Mutex
	bus i2c.BusCloser

	slave   byte
	receive bool
	frame   []byte
	lastAck bool
}

func NewGenericBus(dev string) (*GenericBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	return &GenericBus{
		bus:     bus,
		lastAck: true,
	}, nil
}

// SetSpeed sets the bus frequency.
func (b *GenericBus) SetSpeed(freq physic.Frequency) error {
	return b.bus.SetSpeed(freq)
}

func (b *GenericBus) SetSlaveAddr(ctx context.Context, addr byte, receive bool) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.slave = addr
	b.receive = receive
	return nil
}

func (b *GenericBus) SendByte(ctx context.Context, data byte, flags eeprom.Flags) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if flags&eeprom.FlagStart != 0 {
		b.frame = b.frame[:0]
	}
	b.frame = append(b.frame, data)
	if flags&eeprom.FlagStop != 0 {
		frame := b.frame
		b.frame = b.frame[:0]
		err := b.bus.Tx(uint16(b.slave), frame, nil)
		if err != nil {
			b.lastAck = false
			return fmt.Errorf("could not write to i2c bus %x: %w", b.slave, err)
		}
		b.lastAck = true
	}
	return nil
}

func (b *GenericBus) ReceiveByte(ctx context.Context, flags eeprom.Flags) (byte, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if !b.receive {
		return 0, fmt.Errorf("bus is not in receive mode")
	}
	var pending []byte
	if len(b.frame) > 0 {
		pending = append(pending, b.frame...)
		b.frame = b.frame[:0]
	}
	buf := make([]byte, 1)
	err := b.bus.Tx(uint16(b.slave), pending, buf)
	if err != nil {
		b.lastAck = false
		return 0, fmt.Errorf("could not read from i2c bus %x: %w", b.slave, err)
	}
	b.lastAck = true
	return buf[0], nil
}

// Busy always reports idle: the kernel serializes transfers internally.
func (b *GenericBus) Busy(ctx context.Context) (bool, error) {
	return false, nil
}

func (b *GenericBus) AddrAck(ctx context.Context) (bool, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.lastAck, nil
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}
