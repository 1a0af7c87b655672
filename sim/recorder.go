package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/eeprom"
)

type OpKind int

const (
	OpSetAddr OpKind = iota
	OpSend
	OpReceive
	OpBusy
	OpAddrAck
)

// Op is one recorded bus primitive call.
type Op struct {
	Kind    OpKind
	Byte    byte
	Flags   eeprom.Flags
	Receive bool
	Err     error
}

func (o Op) String() string {
	switch o.Kind {
	case OpSetAddr:
		mode := "write"
		if o.Receive {
			mode = "read"
		}
		return fmt.Sprintf("SETADDR %#02x %s > %v", o.Byte, mode, o.Err)
	case OpSend:
		return fmt.Sprintf("SEND %#02x [%s] > %v", o.Byte, o.Flags, o.Err)
	case OpReceive:
		return fmt.Sprintf("RECV %#02x [%s] > %v", o.Byte, o.Flags, o.Err)
	case OpBusy:
		return fmt.Sprintf("BUSY > %v", o.Err)
	case OpAddrAck:
		return fmt.Sprintf("ACK > %v", o.Err)
	}
	return "unknown op"
}

// Recorder wraps a MasterBus and logs every primitive call. Tests use the
// log to assert transaction call order.
type Recorder struct {
	mx  sync.Mutex
	bus eeprom.MasterBus
	ops []Op
}

func NewRecorder(bus eeprom.MasterBus) *Recorder {
	return &Recorder{bus: bus}
}

func (r *Recorder) SetSlaveAddr(ctx context.Context, addr byte, receive bool) error {
	err := r.bus.SetSlaveAddr(ctx, addr, receive)
	r.append(Op{Kind: OpSetAddr, Byte: addr, Receive: receive, Err: err})
	return err
}

func (r *Recorder) SendByte(ctx context.Context, b byte, flags eeprom.Flags) error {
	err := r.bus.SendByte(ctx, b, flags)
	r.append(Op{Kind: OpSend, Byte: b, Flags: flags, Err: err})
	return err
}

func (r *Recorder) ReceiveByte(ctx context.Context, flags eeprom.Flags) (byte, error) {
	b, err := r.bus.ReceiveByte(ctx, flags)
	r.append(Op{Kind: OpReceive, Byte: b, Flags: flags, Err: err})
	return b, err
}

func (r *Recorder) Busy(ctx context.Context) (bool, error) {
	busy, err := r.bus.Busy(ctx)
	r.append(Op{Kind: OpBusy, Err: err})
	return busy, err
}

func (r *Recorder) AddrAck(ctx context.Context) (bool, error) {
	acked, err := r.bus.AddrAck(ctx)
	r.append(Op{Kind: OpAddrAck, Err: err})
	return acked, err
}

// Ops returns a copy of the recorded call log.
func (r *Recorder) Ops() []Op {
	r.mx.Lock()
	defer r.mx.Unlock()
	out := make([]Op, len(r.ops))
	copy(out, r.ops)
	return out
}

// Filter returns the recorded calls of the given kinds, preserving order.
func (r *Recorder) Filter(kinds ...OpKind) []Op {
	r.mx.Lock()
	defer r.mx.Unlock()
	var out []Op
	for _, op := range r.ops {
		for _, k := range kinds {
			if op.Kind == k {
				out = append(out, op)
				break
			}
		}
	}
	return out
}

// Reset clears the call log.
func (r *Recorder) Reset() {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.ops = nil
}

func (r *Recorder) append(op Op) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.ops = append(r.ops, op)
}
