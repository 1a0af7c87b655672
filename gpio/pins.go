// Package gpio configures the port pins backing a two-wire bus: digital
// enable, alternate function mux, open drain on the data line and the
// port-control register selection.
package gpio

import (
	"context"
	"fmt"
)

// PinController exposes the port-level primitives the setup sequence is
// built on. Pin arguments are bit masks within the port.
type PinController interface {
	EnablePort(ctx context.Context, port byte) error
	EnableDigital(ctx context.Context, port byte, pins byte) error
	SelectAlternateFunction(ctx context.Context, port byte, pins byte) error
	EnableOpenDrain(ctx context.Context, port byte, pins byte) error
	WritePortControl(ctx context.Context, port byte, mask uint32, value uint32) error
}

const (
	PortA byte = iota
	PortB
	PortC
	PortD
	PortE
	PortF
)

// BusPins names the clock and data pins of a bus instance together with
// their port-control mux values.
type BusPins struct {
	Port    byte
	SCL     byte
	SDA     byte
	SCLCtl  uint32
	SCLMask uint32
	SDACtl  uint32
	SDAMask uint32
}

// I2C1Pins is the default wiring: port A pin 6 carries the clock, pin 7 the
// data line, both muxed to function 3.
var I2C1Pins = BusPins{
	Port:    PortA,
	SCL:     1 << 6,
	SDA:     1 << 7,
	SCLCtl:  0x03000000,
	SCLMask: 0x0F000000,
	SDACtl:  0x30000000,
	SDAMask: 0xF0000000,
}

// Setup runs the pin configuration sequence for the bus: port enable, then
// the clock line (digital enable, alternate function, port control), then
// the data line (digital enable, open drain, alternate function, port
// control). The first failing step is returned immediately and no further
// steps run; configuration already applied is not rolled back.
func Setup(ctx context.Context, pc PinController, pins BusPins) error {
	if err := pc.EnablePort(ctx, pins.Port); err != nil {
		return fmt.Errorf("could not enable port: %w", err)
	}

	if err := pc.EnableDigital(ctx, pins.Port, pins.SCL); err != nil {
		return fmt.Errorf("could not enable digital function on clock pin: %w", err)
	}
	if err := pc.SelectAlternateFunction(ctx, pins.Port, pins.SCL); err != nil {
		return fmt.Errorf("could not select alternate function on clock pin: %w", err)
	}
	if err := pc.WritePortControl(ctx, pins.Port, pins.SCLMask, pins.SCLCtl); err != nil {
		return fmt.Errorf("could not write port control for clock pin: %w", err)
	}

	if err := pc.EnableDigital(ctx, pins.Port, pins.SDA); err != nil {
		return fmt.Errorf("could not enable digital function on data pin: %w", err)
	}
	if err := pc.EnableOpenDrain(ctx, pins.Port, pins.SDA); err != nil {
		return fmt.Errorf("could not enable open drain on data pin: %w", err)
	}
	if err := pc.SelectAlternateFunction(ctx, pins.Port, pins.SDA); err != nil {
		return fmt.Errorf("could not select alternate function on data pin: %w", err)
	}
	if err := pc.WritePortControl(ctx, pins.Port, pins.SDAMask, pins.SDACtl); err != nil {
		return fmt.Errorf("could not write port control for data pin: %w", err)
	}
	return nil
}
