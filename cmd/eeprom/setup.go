package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/eeprom/cmd/eeprom/console"
	"github.com/mklimuk/eeprom/gpio"
	"github.com/mklimuk/eeprom/sim"
)

var setupCmd = cli.Command{
	Name:  "setup",
	Usage: "run the I2C pin configuration sequence and print every step",
	Action: func(c *cli.Context) error {
		pins := sim.NewPins()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := gpio.Setup(ctx, pins, gpio.I2C1Pins)
		for _, step := range pins.Steps() {
			console.PInfof(console.PictoPin, "%s", step)
		}
		if err != nil {
			return console.Exit(1, "pin configuration stopped: %s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "pin configuration complete")
		return nil
	},
}
