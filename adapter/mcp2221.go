package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/eeprom"
	"github.com/mklimuk/eeprom/cmd/eeprom/console"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// MCP2221 I2C engine command codes
const (
	cmdStatus       = 0x10
	cmdGetData      = 0x40
	cmdGetGPIO      = 0x51
	cmdWriteData    = 0x90
	cmdReadData     = 0x91
	cmdReadRepStart = 0x93
	cmdWriteNoStop  = 0x94
)

var ErrCommandUnsupported = errors.New("unsupported command")
var ErrCommandFailed = errors.New("command failed")

// MCP2221 drives the EEPROM bus through a Microchip MCP2221 USB-to-I2C
// bridge. Framed byte sequences are assembled into the engine's buffered
// transfer commands: a frame closed by a stop flag becomes a single write
// transfer, a frame left open before a read becomes a write-without-stop
// followed by a repeated-start read.
type MCP2221 struct {
	mx           sync.Mutex
	request      []byte
	response     []byte
	responseWait time.Duration

	slave   byte
	receive bool
	frame   []byte
	lastAck bool
}

var _ eeprom.MasterBus = &MCP2221{}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"I2C_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"I2C_speed_divider"`
	I2CTimeout             int    `yaml:"I2C_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
	SlaveAcked             bool   `yaml:"slave_acked"`
}

func NewMCP2221() *MCP2221 {
	return &MCP2221{
		request:      make([]byte, 64),
		response:     make([]byte, 64),
		responseWait: 50 * time.Millisecond,
		lastAck:      true,
	}
}

// Init verifies that exactly one MCP2221 is reachable over USB.
func (d *MCP2221) Init() error {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return fmt.Errorf("MCP2221 device not found")
	}
	if len(devs) > 1 {
		return fmt.Errorf("ambiguous device identification")
	}
	return nil
}

func (d *MCP2221) SetSlaveAddr(ctx context.Context, addr byte, receive bool) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.slave = addr
	// a pending write frame is held back for the repeated-start read
	d.receive = receive
	return nil
}

func (d *MCP2221) SendByte(ctx context.Context, b byte, flags eeprom.Flags) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if flags&eeprom.FlagStart != 0 {
		d.frame = d.frame[:0]
	}
	d.frame = append(d.frame, b)
	if flags&eeprom.FlagStop != 0 {
		err := d.flushFrame(ctx, cmdWriteData)
		d.frame = d.frame[:0]
		return err
	}
	return nil
}

func (d *MCP2221) ReceiveByte(ctx context.Context, flags eeprom.Flags) (byte, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if !d.receive {
		return 0, fmt.Errorf("bus is not in receive mode")
	}
	command := byte(cmdReadData)
	if len(d.frame) > 0 {
		// flush the dummy write without a stop condition, then read with a
		// repeated start
		if err := d.flushFrame(ctx, cmdWriteNoStop); err != nil {
			d.frame = d.frame[:0]
			return 0, err
		}
		d.frame = d.frame[:0]
		command = cmdReadRepStart
	}
	d.resetBuffers()
	d.request[0] = command
	binary.LittleEndian.PutUint16(d.request[1:3], 1)
	d.request[3] = d.slave<<1 + 1
	err := d.send(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("bus read from %x failed: %w", d.slave, err)
	}
	d.request[0] = cmdGetData
	resetBuffer(d.response)
	err = d.send(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == 0x41 {
		d.lastAck = false
		return 0, fmt.Errorf("error reading the I2C slave data from the I2C engine: %w", eeprom.ErrNoAck)
	}
	if d.response[3] == 127 || d.response[3] != 1 {
		return 0, fmt.Errorf("invalid data size byte; expected 1, got %d", d.response[3])
	}
	d.lastAck = true
	return d.response[4], nil
}

func (d *MCP2221) Busy(ctx context.Context) (bool, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.statusRequest(ctx, false); err != nil {
		return false, err
	}
	// byte 8 carries the internal I2C state machine value, zero when idle
	return d.response[8] != 0, nil
}

func (d *MCP2221) AddrAck(ctx context.Context) (bool, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.statusRequest(ctx, false); err != nil {
		return false, err
	}
	// byte 20 bit 6 is set when the slave left the last address unacknowledged
	acked := d.response[20]&0x40 == 0
	d.lastAck = acked
	return acked, nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.statusRequest(ctx, false); err != nil {
		return nil, err
	}
	return bufferToStatus(d.response), nil
}

// Release cancels the current transfer and frees the bus engine.
func (d *MCP2221) Release(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.statusRequest(ctx, true)
}

// ReleaseBus cancels the current transfer and reports the engine status
// after the release.
func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.statusRequest(ctx, true); err != nil {
		return nil, err
	}
	return bufferToStatus(d.response), nil
}

type MCP2221Pin struct {
	Value     string `yaml:"value"`
	Direction string `yaml:"direction"`
}

type MCP2221GPIO struct {
	Pins []MCP2221Pin `yaml:"pins"`
}

// GPIO reports the current value and direction of the four GP pins.
func (d *MCP2221) GPIO(ctx context.Context) (*MCP2221GPIO, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdGetGPIO
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("gpio request failed: %w", err)
	}
	gpio := &MCP2221GPIO{Pins: make([]MCP2221Pin, 4)}
	for i := range gpio.Pins {
		value := d.response[2+2*i]
		direction := d.response[3+2*i]
		if value == 0xEE || direction == 0xEF {
			// pin assigned to a dedicated function, not GPIO
			gpio.Pins[i] = MCP2221Pin{Value: "n/a", Direction: "n/a"}
			continue
		}
		gpio.Pins[i].Value = fmt.Sprintf("%d", value)
		if direction == 0 {
			gpio.Pins[i].Direction = "output"
		} else {
			gpio.Pins[i].Direction = "input"
		}
	}
	return gpio, nil
}

func (d *MCP2221) flushFrame(ctx context.Context, command byte) error {
	frame := d.frame
	d.resetBuffers()
	d.request[0] = command
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(frame)))
	d.request[3] = d.slave << 1
	copy(d.request[4:], frame)
	err := d.send(ctx, true)
	if err != nil {
		d.lastAck = false
		return fmt.Errorf("write to %x failed: %w", d.slave, err)
	}
	if d.response[1] == 0x01 {
		console.Debug("adapter busy")
		d.lastAck = false
		return eeprom.ErrBusBusy
	}
	d.lastAck = true
	return nil
}

func (d *MCP2221) statusRequest(ctx context.Context, cancelTransfer bool) error {
	d.resetBuffers()
	d.request[0] = cmdStatus
	if cancelTransfer {
		d.request[2] = 0x10
	}
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("status request failed: %w", err)
	}
	return nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
		20: bit 6: NACK status of the last addressed slave
		25: pending read count
	*/
	status := &MCP2221Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
		SlaveAcked:           buffer[20]&0x40 == 0,
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

func (d *MCP2221) send(ctx context.Context, response bool) error {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) > 1 {
		return fmt.Errorf("ambiguous device identification")
	}
	if len(devs) == 0 {
		return fmt.Errorf("MCP2221 device not found")
	}
	dev, err := devs[0].Open()
	if err != nil {
		return fmt.Errorf("error opening device: %w", err)
	}
	defer func() {
		_ = dev.Close()
	}()
	verbose := console.IsVerbose(ctx)
	if verbose {
		console.Printf("sending message to adapter:\n%s\n", hex.Dump(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short write: %d", n)
	}
	if !response {
		return nil
	}
	time.Sleep(d.responseWait)
	console.Debug("reading response from adapter")
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		console.Printf("read message from adapter:\n%s\n", hex.Dump(d.response))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := 0; i < len(buf)-1; i++ {
		buf[i] = 0x00
	}
}
