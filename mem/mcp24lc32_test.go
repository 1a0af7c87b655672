package mem

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/eeprom"
	"github.com/mklimuk/eeprom/sim"
)

// MockMasterBus is a mock implementation of eeprom.MasterBus using testify/mock
type MockMasterBus struct {
	mock.Mock
}

func (m *MockMasterBus) SetSlaveAddr(ctx context.Context, addr byte, receive bool) error {
	args := m.Called(ctx, addr, receive)
	return args.Error(0)
}

func (m *MockMasterBus) SendByte(ctx context.Context, b byte, flags eeprom.Flags) error {
	args := m.Called(ctx, b, flags)
	return args.Error(0)
}

func (m *MockMasterBus) ReceiveByte(ctx context.Context, flags eeprom.Flags) (byte, error) {
	args := m.Called(ctx, flags)
	return args.Get(0).(byte), args.Error(1)
}

func (m *MockMasterBus) Busy(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockMasterBus) AddrAck(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func TestMCP24LC32_RoundTrip(t *testing.T) {
	bus := sim.NewBus()
	dev := NewMCP24LC32(bus, WithBusyPollInterval(0))
	ctx := context.Background()

	// every address in the array, value derived from the address
	for addr := uint16(0); addr < Capacity; addr++ {
		value := byte(addr ^ (addr >> 8) ^ 0xA5)
		require.NoError(t, dev.ByteWrite(ctx, addr, value))
	}
	for addr := uint16(0); addr < Capacity; addr++ {
		value := byte(addr ^ (addr >> 8) ^ 0xA5)
		got, err := dev.ByteRead(ctx, addr)
		require.NoError(t, err)
		require.Equal(t, value, got, "address %#04x", addr)
	}

	// every byte value at a fixed address
	for v := 0; v < 256; v++ {
		require.NoError(t, dev.ByteWrite(ctx, 0x07FF, byte(v)))
		got, err := dev.ByteRead(ctx, 0x07FF)
		require.NoError(t, err)
		require.Equal(t, byte(v), got)
	}
}

func TestMCP24LC32_UpperAddressBitsIgnored(t *testing.T) {
	bus := sim.NewBus()
	dev := NewMCP24LC32(bus, WithBusyPollInterval(0))
	ctx := context.Background()

	// only the lower 12 bits reach the part
	assert.NoError(t, dev.ByteWrite(ctx, 0xF234, 0x5A))
	got, err := dev.ByteRead(ctx, 0x0234)
	assert.NoError(t, err)
	assert.Equal(t, byte(0x5A), got)
}

func TestMCP24LC32_ByteWrite_AddressNack(t *testing.T) {
	bus := new(MockMasterBus)
	dev := NewMCP24LC32(bus, WithBusyPollInterval(0))
	ctx := context.Background()

	bus.On("Busy", mock.Anything).Return(false, nil).Once()
	bus.On("SetSlaveAddr", mock.Anything, byte(0x50), false).Return(eeprom.ErrNoAck).Once()

	err := dev.ByteWrite(ctx, 0x0100, 0x42)
	assert.ErrorIs(t, err, eeprom.ErrNoAck)
	bus.AssertNotCalled(t, "SendByte", mock.Anything, mock.Anything, mock.Anything)
	bus.AssertExpectations(t)
}

func TestMCP24LC32_WaitForWriteComplete_PollsUntilAck(t *testing.T) {
	tests := []struct {
		name       string
		writeCycle int
	}{
		{name: "short write cycle", writeCycle: 1},
		{name: "typical write cycle", writeCycle: 4},
		{name: "no write cycle", writeCycle: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := sim.NewBus(sim.WithWriteCycle(tt.writeCycle))
			rec := sim.NewRecorder(bus)
			dev := NewMCP24LC32(rec, WithBusyPollInterval(0))
			ctx := context.Background()

			// commit a byte so the part enters its write cycle
			require.NoError(t, dev.ByteWrite(ctx, 0x0010, 0xEE))
			rec.Reset()

			require.NoError(t, dev.WaitForWriteComplete(ctx))

			sends := rec.Filter(sim.OpSend)
			assert.Len(t, sends, tt.writeCycle+1, "one probe per NACK plus the acked one")
			for _, op := range sends {
				assert.Equal(t, byte(0x00), op.Byte)
				assert.Equal(t, eeprom.FlagStart|eeprom.FlagRun|eeprom.FlagStop, op.Flags)
			}
			// nothing is sent after the acked probe
			ops := rec.Ops()
			last := 0
			for i, op := range ops {
				if op.Kind == sim.OpSend {
					last = i
				}
			}
			for _, op := range ops[last+1:] {
				assert.NotEqual(t, sim.OpSend, op.Kind)
			}
		})
	}
}

func TestMCP24LC32_ByteRead_CallOrder(t *testing.T) {
	bus := sim.NewBus()
	bus.Preload(0x0123, []byte{0x77})
	rec := sim.NewRecorder(bus)
	dev := NewMCP24LC32(rec, WithBusyPollInterval(0))
	ctx := context.Background()

	got, err := dev.ByteRead(ctx, 0x0123)
	require.NoError(t, err)
	require.Equal(t, byte(0x77), got)

	ops := rec.Filter(sim.OpSetAddr, sim.OpSend, sim.OpReceive)
	require.GreaterOrEqual(t, len(ops), 5)
	tail := ops[len(ops)-5:]

	// dummy write of the address bytes, then re-address in read mode
	assert.Equal(t, sim.OpSetAddr, tail[0].Kind)
	assert.False(t, tail[0].Receive)
	assert.Equal(t, sim.OpSend, tail[1].Kind)
	assert.Equal(t, byte(0x01), tail[1].Byte)
	assert.Equal(t, eeprom.FlagStart|eeprom.FlagRun, tail[1].Flags)
	assert.Equal(t, sim.OpSend, tail[2].Kind)
	assert.Equal(t, byte(0x23), tail[2].Byte)
	assert.Equal(t, eeprom.FlagRun, tail[2].Flags)
	assert.Equal(t, sim.OpSetAddr, tail[3].Kind)
	assert.True(t, tail[3].Receive)
	assert.Equal(t, sim.OpReceive, tail[4].Kind)
	assert.Equal(t, eeprom.FlagStart|eeprom.FlagRun|eeprom.FlagStop, tail[4].Flags)
}

func TestMCP24LC32_StringRoundTrip(t *testing.T) {
	bus := sim.NewBus()
	dev := NewMCP24LC32(bus, WithBusyPollInterval(0))
	ctx := context.Background()

	record := "Team number: 13\n"
	require.NoError(t, dev.WriteBytes(ctx, 490, []byte(record)))

	got := make([]byte, len(record))
	for i := range got {
		b, err := dev.ByteRead(ctx, 490+uint16(i))
		require.NoError(t, err)
		got[i] = b
	}
	assert.Equal(t, record, string(got))
}

func TestMCP24LC32_ReadBytes(t *testing.T) {
	bus := sim.NewBus()
	bus.Preload(250, []byte("Please press SW2 to get student info\n"))
	dev := NewMCP24LC32(bus, WithBusyPollInterval(0))
	ctx := context.Background()

	buf := make([]byte, 37)
	require.NoError(t, dev.ReadBytes(ctx, 250, buf))
	assert.Equal(t, "Please press SW2 to get student info\n", string(buf))
}

func TestMCP24LC32_BusyFlagDrained(t *testing.T) {
	bus := sim.NewBus(sim.WithBusyPolls(3))
	rec := sim.NewRecorder(bus)
	dev := NewMCP24LC32(rec, WithBusyPollInterval(0))
	ctx := context.Background()

	require.NoError(t, dev.ByteWrite(ctx, 0x0001, 0x11))
	got, err := dev.ByteRead(ctx, 0x0001)
	require.NoError(t, err)
	assert.Equal(t, byte(0x11), got)
	assert.NotEmpty(t, rec.Filter(sim.OpBusy))
}

func TestMCP24LC32_AckPollLimit(t *testing.T) {
	bus := sim.NewBus(sim.WithWriteCycle(1000))
	dev := NewMCP24LC32(bus, WithBusyPollInterval(0), WithAckPollLimit(3))
	ctx := context.Background()

	require.NoError(t, dev.ByteWrite(ctx, 0x0020, 0x01))
	err := dev.WaitForWriteComplete(ctx)
	assert.ErrorIs(t, err, ErrAckPollLimit)
}

func TestMCP24LC32_ContextCancelledDuringWait(t *testing.T) {
	bus := sim.NewBus(sim.WithWriteCycle(1 << 20))
	dev := NewMCP24LC32(bus, WithBusyPollInterval(0))
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, dev.ByteWrite(ctx, 0x0030, 0x02))
	cancel()
	err := dev.WaitForWriteComplete(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMCP24LC32_ByteWrite_ErrorCases(t *testing.T) {
	busErr := errors.New("bus controller fault")
	tests := []struct {
		name      string
		setupMock func(*MockMasterBus)
		expected  error
	}{
		{
			name: "busy query fails",
			setupMock: func(bus *MockMasterBus) {
				bus.On("Busy", mock.Anything).Return(false, busErr).Once()
			},
			expected: busErr,
		},
		{
			name: "high address byte not acknowledged",
			setupMock: func(bus *MockMasterBus) {
				bus.On("Busy", mock.Anything).Return(false, nil)
				bus.On("SetSlaveAddr", mock.Anything, byte(0x50), false).Return(nil)
				bus.On("SendByte", mock.Anything, byte(0x00), eeprom.FlagStart|eeprom.FlagRun|eeprom.FlagStop).Return(nil).Once()
				bus.On("AddrAck", mock.Anything).Return(true, nil).Once()
				bus.On("SendByte", mock.Anything, byte(0x01), eeprom.FlagStart|eeprom.FlagRun).Return(eeprom.ErrNoAck).Once()
			},
			expected: eeprom.ErrNoAck,
		},
		{
			name: "arbitration lost on data byte",
			setupMock: func(bus *MockMasterBus) {
				bus.On("Busy", mock.Anything).Return(false, nil)
				bus.On("SetSlaveAddr", mock.Anything, byte(0x50), false).Return(nil)
				bus.On("SendByte", mock.Anything, byte(0x00), eeprom.FlagStart|eeprom.FlagRun|eeprom.FlagStop).Return(nil).Once()
				bus.On("AddrAck", mock.Anything).Return(true, nil).Once()
				bus.On("SendByte", mock.Anything, byte(0x01), eeprom.FlagStart|eeprom.FlagRun).Return(nil).Once()
				bus.On("SendByte", mock.Anything, byte(0x42), eeprom.FlagRun).Return(nil).Once()
				bus.On("SendByte", mock.Anything, byte(0xAB), eeprom.FlagRun|eeprom.FlagStop).Return(eeprom.ErrArbitrationLost).Once()
			},
			expected: eeprom.ErrArbitrationLost,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(MockMasterBus)
			dev := NewMCP24LC32(bus, WithBusyPollInterval(0))
			tt.setupMock(bus)

			err := dev.ByteWrite(context.Background(), 0x0142, 0xAB)
			assert.ErrorIs(t, err, tt.expected)
			bus.AssertExpectations(t)
		})
	}
}

func TestMCP24LC32_ByteRead_ErrorCases(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(*MockMasterBus)
		expected  error
	}{
		{
			name: "read mode address not acknowledged",
			setupMock: func(bus *MockMasterBus) {
				bus.On("Busy", mock.Anything).Return(false, nil)
				bus.On("SetSlaveAddr", mock.Anything, byte(0x50), false).Return(nil)
				bus.On("SendByte", mock.Anything, byte(0x00), eeprom.FlagStart|eeprom.FlagRun|eeprom.FlagStop).Return(nil).Once()
				bus.On("AddrAck", mock.Anything).Return(true, nil).Once()
				bus.On("SendByte", mock.Anything, byte(0x01), eeprom.FlagStart|eeprom.FlagRun).Return(nil).Once()
				bus.On("SendByte", mock.Anything, byte(0x42), eeprom.FlagRun).Return(nil).Once()
				bus.On("SetSlaveAddr", mock.Anything, byte(0x50), true).Return(eeprom.ErrNoAck).Once()
			},
			expected: eeprom.ErrNoAck,
		},
		{
			name: "framed read fails",
			setupMock: func(bus *MockMasterBus) {
				bus.On("Busy", mock.Anything).Return(false, nil)
				bus.On("SetSlaveAddr", mock.Anything, byte(0x50), false).Return(nil)
				bus.On("SendByte", mock.Anything, byte(0x00), eeprom.FlagStart|eeprom.FlagRun|eeprom.FlagStop).Return(nil).Once()
				bus.On("AddrAck", mock.Anything).Return(true, nil).Once()
				bus.On("SendByte", mock.Anything, byte(0x01), eeprom.FlagStart|eeprom.FlagRun).Return(nil).Once()
				bus.On("SendByte", mock.Anything, byte(0x42), eeprom.FlagRun).Return(nil).Once()
				bus.On("SetSlaveAddr", mock.Anything, byte(0x50), true).Return(nil).Once()
				bus.On("ReceiveByte", mock.Anything, eeprom.FlagStart|eeprom.FlagRun|eeprom.FlagStop).Return(byte(0), eeprom.ErrBusBusy).Once()
			},
			expected: eeprom.ErrBusBusy,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(MockMasterBus)
			dev := NewMCP24LC32(bus, WithBusyPollInterval(0))
			tt.setupMock(bus)

			_, err := dev.ByteRead(context.Background(), 0x0142)
			assert.ErrorIs(t, err, tt.expected)
			bus.AssertExpectations(t)
		})
	}
}
