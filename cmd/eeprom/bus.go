package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/eeprom"
	"github.com/mklimuk/eeprom/adapter"
	"github.com/mklimuk/eeprom/i2c"
	"github.com/mklimuk/eeprom/sim"
)

var busFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "bus",
		Usage: "bus backend: mcp2221, generic or sim",
		Value: "mcp2221",
	},
	&cli.StringFlag{
		Name:  "dev",
		Usage: "i2c device reference for the generic backend",
		Value: "/dev/i2c-0",
	},
}

// openBus resolves the bus backend selected on the command line.
func openBus(c *cli.Context) (eeprom.MasterBus, error) {
	switch c.String("bus") {
	case "mcp2221":
		a := adapter.NewMCP2221()
		if err := a.Init(); err != nil {
			return nil, fmt.Errorf("could not initialize adapter: %w", err)
		}
		return a, nil
	case "generic":
		return i2c.NewGenericBus(c.String("dev"))
	case "sim":
		return sim.NewBus(), nil
	default:
		return nil, fmt.Errorf("unknown bus backend: %s", c.String("bus"))
	}
}
