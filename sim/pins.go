package sim

import (
	"context"
	"fmt"
	"sync"
)

// Pins is a PinController that records configuration steps and can be told
// to fail at a given step.
type Pins struct {
	mx     sync.Mutex
	steps  []string
	failAt string
}

func NewPins() *Pins {
	return &Pins{}
}

// FailAt makes the named step (port-enable, digital-enable, alt-function,
// open-drain, port-control) return an error when next invoked.
func (p *Pins) FailAt(step string) {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.failAt = step
}

// Steps returns the configuration steps performed so far.
func (p *Pins) Steps() []string {
	p.mx.Lock()
	defer p.mx.Unlock()
	out := make([]string, len(p.steps))
	copy(out, p.steps)
	return out
}

func (p *Pins) EnablePort(ctx context.Context, port byte) error {
	return p.record(fmt.Sprintf("port-enable %d", port), "port-enable")
}

func (p *Pins) EnableDigital(ctx context.Context, port byte, pins byte) error {
	return p.record(fmt.Sprintf("digital-enable %d %#02x", port, pins), "digital-enable")
}

func (p *Pins) SelectAlternateFunction(ctx context.Context, port byte, pins byte) error {
	return p.record(fmt.Sprintf("alt-function %d %#02x", port, pins), "alt-function")
}

func (p *Pins) EnableOpenDrain(ctx context.Context, port byte, pins byte) error {
	return p.record(fmt.Sprintf("open-drain %d %#02x", port, pins), "open-drain")
}

func (p *Pins) WritePortControl(ctx context.Context, port byte, mask uint32, value uint32) error {
	return p.record(fmt.Sprintf("port-control %d %#08x %#08x", port, mask, value), "port-control")
}

func (p *Pins) record(step, name string) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.failAt == name {
		return fmt.Errorf("pin configuration step %s failed", name)
	}
	p.steps = append(p.steps, step)
	return nil
}
