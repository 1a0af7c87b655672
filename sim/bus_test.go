package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/eeprom"
)

func writeFrame(t *testing.T, bus *Bus, addr uint16, data byte) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, bus.SetSlaveAddr(ctx, 0x50, false))
	require.NoError(t, bus.SendByte(ctx, byte(addr>>8), eeprom.FlagStart|eeprom.FlagRun))
	require.NoError(t, bus.SendByte(ctx, byte(addr), eeprom.FlagRun))
	require.NoError(t, bus.SendByte(ctx, data, eeprom.FlagRun|eeprom.FlagStop))
}

func TestBus_WriteFrameLatchesAddress(t *testing.T) {
	bus := NewBus(WithWriteCycle(0))
	writeFrame(t, bus, 0x0123, 0xAA)

	acked, err := bus.AddrAck(context.Background())
	require.NoError(t, err)
	assert.True(t, acked)
	assert.Equal(t, byte(0xAA), bus.Memory()[0x0123])
}

func TestBus_TwelveBitDecode(t *testing.T) {
	bus := NewBus(WithWriteCycle(0))
	writeFrame(t, bus, 0xF010, 0xBB)
	assert.Equal(t, byte(0xBB), bus.Memory()[0x0010])
}

func TestBus_WriteCycleNacksAddressPhase(t *testing.T) {
	bus := NewBus(WithWriteCycle(2))
	ctx := context.Background()
	writeFrame(t, bus, 0x0001, 0x01)

	// two probes are refused, the third is acknowledged
	for i := 0; i < 2; i++ {
		require.NoError(t, bus.SendByte(ctx, 0x00, eeprom.FlagStart|eeprom.FlagRun|eeprom.FlagStop))
		acked, err := bus.AddrAck(ctx)
		require.NoError(t, err)
		assert.False(t, acked, "probe %d", i+1)
	}
	require.NoError(t, bus.SendByte(ctx, 0x00, eeprom.FlagStart|eeprom.FlagRun|eeprom.FlagStop))
	acked, err := bus.AddrAck(ctx)
	require.NoError(t, err)
	assert.True(t, acked)
}

func TestBus_SequentialRead(t *testing.T) {
	bus := NewBus()
	bus.Preload(0x0100, []byte{0x01, 0x02, 0x03})
	ctx := context.Background()

	require.NoError(t, bus.SetSlaveAddr(ctx, 0x50, false))
	require.NoError(t, bus.SendByte(ctx, 0x01, eeprom.FlagStart|eeprom.FlagRun))
	require.NoError(t, bus.SendByte(ctx, 0x00, eeprom.FlagRun))
	require.NoError(t, bus.SetSlaveAddr(ctx, 0x50, true))

	for _, expected := range []byte{0x01, 0x02, 0x03} {
		got, err := bus.ReceiveByte(ctx, eeprom.FlagStart|eeprom.FlagRun|eeprom.FlagStop)
		require.NoError(t, err)
		assert.Equal(t, expected, got)
	}
}

func TestBus_UnknownAddressNacked(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()
	require.NoError(t, bus.SetSlaveAddr(ctx, 0x23, false))
	require.NoError(t, bus.SendByte(ctx, 0x00, eeprom.FlagStart|eeprom.FlagRun|eeprom.FlagStop))
	acked, err := bus.AddrAck(ctx)
	require.NoError(t, err)
	assert.False(t, acked)
}

func TestBus_BusyPolls(t *testing.T) {
	bus := NewBus(WithBusyPolls(2))
	ctx := context.Background()
	require.NoError(t, bus.SetSlaveAddr(ctx, 0x50, false))
	require.NoError(t, bus.SendByte(ctx, 0x00, eeprom.FlagStart|eeprom.FlagRun|eeprom.FlagStop))

	for i := 0; i < 2; i++ {
		busy, err := bus.Busy(ctx)
		require.NoError(t, err)
		assert.True(t, busy, "poll %d", i+1)
	}
	busy, err := bus.Busy(ctx)
	require.NoError(t, err)
	assert.False(t, busy)
}

func TestRecorder_LogsCalls(t *testing.T) {
	bus := NewBus(WithWriteCycle(0))
	rec := NewRecorder(bus)
	ctx := context.Background()

	require.NoError(t, rec.SetSlaveAddr(ctx, 0x50, false))
	require.NoError(t, rec.SendByte(ctx, 0x12, eeprom.FlagStart|eeprom.FlagRun))

	ops := rec.Ops()
	require.Len(t, ops, 2)
	assert.Equal(t, OpSetAddr, ops[0].Kind)
	assert.Equal(t, byte(0x50), ops[0].Byte)
	assert.Equal(t, OpSend, ops[1].Kind)
	assert.Equal(t, byte(0x12), ops[1].Byte)

	rec.Reset()
	assert.Empty(t, rec.Ops())
}
