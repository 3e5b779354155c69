package s8

import (
	"context"
	"testing"
	"time"

	"github.com/itohio/agmon/pkg/clock"
	"github.com/itohio/agmon/pkg/co2"
	"github.com/itohio/agmon/pkg/uart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSensor() (*Sensor, *uart.Mock, *clock.Fake) {
	port := uart.NewMock()
	clk := clock.NewFake(time.Unix(0, 0))
	return New(port, clk, Config{}), port, clk
}

func TestRequest(t *testing.T) {
	tests := []struct {
		name  string
		fn    byte
		reg   uint16
		value uint16
		want  []byte
	}{
		{
			name: "read co2",
			fn:   FuncReadInput, reg: IRSpaceCO2, value: 1,
			want: []byte{0xFE, 0x04, 0x00, 0x03, 0x00, 0x01, 0xD5, 0xC5},
		},
		{
			name: "read abc period",
			fn:   FuncReadHolding, reg: HRABCPeriod, value: 1,
			want: []byte{0xFE, 0x03, 0x00, 0x1F, 0x00, 0x01, 0xA1, 0xC3},
		},
		{
			name: "write abc period 180h",
			fn:   FuncWriteSingle, reg: HRABCPeriod, value: 180,
			want: []byte{0xFE, 0x06, 0x00, 0x1F, 0x00, 0xB4, 0xAC, 0x74},
		},
		{
			name: "background calibration",
			fn:   FuncWriteSingle, reg: HRSpecialCommand, value: CommandBackgroundCalibration,
			want: []byte{0xFE, 0x06, 0x00, 0x01, 0x7C, 0x06, 0x6C, 0xC7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Request(tt.fn, tt.reg, tt.value))
		})
	}
}

func TestReadResponse(t *testing.T) {
	assert.Equal(t, []byte{0xFE, 0x04, 0x02, 0x01, 0x9F, 0xEC, 0xDC}, ReadResponse(FuncReadInput, 415))
	assert.Equal(t, []byte{0xFE, 0x84, 0x02, 0xF2, 0xF1}, ExceptionResponse(FuncReadInput, 0x02))
}

func TestParseReadResponse(t *testing.T) {
	valid := ReadResponse(FuncReadInput, 415)

	badCRC := append([]byte(nil), valid...)
	badCRC[4] ^= 0x01

	badCount := []byte{0xFE, 0x04, 0x03, 0x01, 0x9F}
	badCount = append(badCount, byte(CRC(badCount)), byte(CRC(badCount)>>8))

	tests := []struct {
		name    string
		fn      byte
		msg     []byte
		want    uint16
		wantErr error
	}{
		{name: "valid", fn: FuncReadInput, msg: valid, want: 415},
		{name: "short", fn: FuncReadInput, msg: valid[:5], wantErr: co2.ErrIncomplete},
		{name: "bad crc", fn: FuncReadInput, msg: badCRC, wantErr: co2.ErrChecksum},
		{name: "wrong function", fn: FuncReadHolding, msg: valid, wantErr: co2.ErrFraming},
		{name: "wrong byte count", fn: FuncReadInput, msg: badCount, wantErr: co2.ErrFraming},
		{name: "too long", fn: FuncReadInput, msg: append(append([]byte(nil), valid...), 0x00), wantErr: co2.ErrFraming},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReadResponse(tt.fn, tt.msg, 1)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []uint16{tt.want}, got)
		})
	}
}

func TestParseReadResponse_Exception(t *testing.T) {
	_, err := ParseReadResponse(FuncReadInput, ExceptionResponse(FuncReadInput, 0x02), 1)
	var exc *ExceptionError
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, byte(0x02), exc.Code)
	assert.Equal(t, byte(FuncReadInput), exc.Function)
}

func TestSensor_CO2(t *testing.T) {
	s, port, _ := newTestSensor()
	port.Expect(Request(FuncReadInput, IRSpaceCO2, 1), ReadResponse(FuncReadInput, 612))

	got, err := s.ReadCO2(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 612, got)
}

func TestSensor_CO2Errors(t *testing.T) {
	valid := ReadResponse(FuncReadInput, 612)
	corrupted := append([]byte(nil), valid...)
	corrupted[3] ^= 0x10

	tests := []struct {
		name     string
		reply    []byte
		wantErr  error
		wantCode int16
	}{
		{name: "silent", reply: nil, wantErr: co2.ErrNoResponse, wantCode: co2.CodeNoResponse},
		{name: "partial", reply: valid[:4], wantErr: co2.ErrIncomplete, wantCode: co2.CodeIncomplete},
		{name: "corrupted", reply: corrupted, wantErr: co2.ErrChecksum, wantCode: co2.CodeChecksum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, port, clk := newTestSensor()
			port.Expect(nil, tt.reply)
			start := clk.Now()

			_, err := s.CO2(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantCode, co2.Code(err))
			if len(tt.reply) < ReadResponseLen(1) {
				assert.GreaterOrEqual(t, clk.Now().Sub(start), DefaultTimeout)
			}
		})
	}
}

func TestSensor_ExceptionDoesNotWaitForTimeout(t *testing.T) {
	s, port, clk := newTestSensor()
	port.Expect(nil, ExceptionResponse(FuncReadInput, 0x02))
	start := clk.Now()

	_, err := s.CO2(context.Background())
	var exc *ExceptionError
	assert.ErrorAs(t, err, &exc)
	assert.Less(t, clk.Now().Sub(start), DefaultTimeout)
}

func TestSensor_Info(t *testing.T) {
	s, port, _ := newTestSensor()
	port.
		Expect(Request(FuncReadInput, IRFirmware, 1), ReadResponse(FuncReadInput, 0x0201)).
		Expect(Request(FuncReadInput, IRSensorTypeHi, 1), ReadResponse(FuncReadInput, 0x0001)).
		Expect(Request(FuncReadInput, IRSensorTypeLo, 1), ReadResponse(FuncReadInput, 0x0104)).
		Expect(Request(FuncReadInput, IRSensorIDHi, 1), ReadResponse(FuncReadInput, 0x0123)).
		Expect(Request(FuncReadInput, IRSensorIDLo, 1), ReadResponse(FuncReadInput, 0x4567)).
		Expect(Request(FuncReadInput, IRMemoryMap, 1), ReadResponse(FuncReadInput, 0x0006)).
		Expect(Request(FuncReadInput, IRMeterStatus, 1), ReadResponse(FuncReadInput, 0x0021)).
		Expect(Request(FuncReadInput, IRPWMOutput, 1), ReadResponse(FuncReadInput, 16383))

	ctx := context.Background()

	version, err := s.Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2.1", version)

	typeID, err := s.SensorTypeID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x010104), typeID)

	id, err := s.SensorID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01234567), id)

	mm, err := s.MemoryMapVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(6), mm)

	status, err := s.MeterStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.OK())
	assert.Equal(t, "fatal, out of range", status.String())

	pwm, err := s.PWMOutput(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2000, PWMToPPM(pwm), 0.01)

	assert.Equal(t, 0, port.Unmet())
}

func TestSensor_InitNotFound(t *testing.T) {
	s, _, _ := newTestSensor()
	_, err := s.Init(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSensor_SetABCPeriod(t *testing.T) {
	ctx := context.Background()

	t.Run("writes new value", func(t *testing.T) {
		s, port, _ := newTestSensor()
		write := Request(FuncWriteSingle, HRABCPeriod, 192)
		port.
			Expect(Request(FuncReadHolding, HRABCPeriod, 1), ReadResponse(FuncReadHolding, 180)).
			Expect(write, write)

		require.NoError(t, s.SetABCPeriod(ctx, 192))
		assert.Equal(t, 0, port.Unmet())
		assert.Len(t, port.Written(), 2)
	})

	t.Run("skips equal value", func(t *testing.T) {
		s, port, _ := newTestSensor()
		port.Expect(Request(FuncReadHolding, HRABCPeriod, 1), ReadResponse(FuncReadHolding, 192))

		require.NoError(t, s.SetABCPeriod(ctx, 192))
		assert.Len(t, port.Written(), 1)
	})

	t.Run("rejects out of range", func(t *testing.T) {
		s, port, _ := newTestSensor()
		assert.ErrorIs(t, s.SetABCPeriod(ctx, MaxABCPeriod+1), ErrInvalidPeriod)
		assert.ErrorIs(t, s.SetABCPeriod(ctx, -1), ErrInvalidPeriod)
		assert.Empty(t, port.Written())
	})

	t.Run("bad echo", func(t *testing.T) {
		s, port, _ := newTestSensor()
		write := Request(FuncWriteSingle, HRABCPeriod, 0)
		other := Request(FuncWriteSingle, HRABCPeriod, 1)
		port.
			Expect(nil, ReadResponse(FuncReadHolding, 180)).
			Expect(write, other)

		assert.ErrorIs(t, s.SetABCPeriod(ctx, 0), co2.ErrFraming)
	})
}

func TestSensor_ManualCalibration(t *testing.T) {
	s, port, _ := newTestSensor()
	clearAck := Request(FuncWriteSingle, HRAcknowledgement, 0)
	start := Request(FuncWriteSingle, HRSpecialCommand, CommandBackgroundCalibration)
	port.
		Expect(clearAck, clearAck).
		Expect(start, start).
		Expect(Request(FuncReadHolding, HRAcknowledgement, 1), ReadResponse(FuncReadHolding, 0)).
		Expect(Request(FuncReadHolding, HRAcknowledgement, 1), ReadResponse(FuncReadHolding, AckBackgroundCalibration))

	ctx := context.Background()
	require.NoError(t, s.ManualCalibration(ctx))

	done, err := s.IsBaselineCalibrationDone(ctx)
	require.NoError(t, err)
	assert.False(t, done)

	done, err = s.IsBaselineCalibrationDone(ctx)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestSensor_ZeroCalibrationFailsWhenClearFails(t *testing.T) {
	s, port, _ := newTestSensor()

	err := s.ZeroCalibration(context.Background())
	assert.ErrorIs(t, err, co2.ErrNoResponse)
	assert.Len(t, port.Written(), 1, "special command must not be sent without a cleared acknowledgement")
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "ok", Status(0).String())
	assert.True(t, Status(0x80).OK())
	assert.Equal(t, "memory", StatusMemoryError.String())
}
