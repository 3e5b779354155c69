package mhz19

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

var readCmd = []byte{0xFF, 0x01, 0x86, 0x00, 0x00, 0x00, 0x00, 0x00, 0x79}

func response(ppm int, temp int, status byte) []byte {
	f := []byte{0xFF, 0x86, byte(ppm >> 8), byte(ppm), byte(temp + 44), status, 0x00, 0x00, 0x00}
	f[8] = Checksum(f)
	return f
}

func newTestSensor() (*Sensor, *uart.Mock, *clock.Fake) {
	port := uart.NewMock()
	clk := clock.NewFake(time.Unix(0, 0))
	return New(port, clk, Config{}), port, clk
}

func TestCommand(t *testing.T) {
	cmd := Command(cmdRead, 0)
	assert.Equal(t, readCmd, cmd[:])

	abcOffCmd := Command(cmdABC, abcOff)
	assert.Equal(t, []byte{0xFF, 0x01, 0x79, 0x00, 0x00, 0x00, 0x00, 0x00, 0x86}, abcOffCmd[:])

	abcOnCmd := Command(cmdABC, abcOn)
	assert.Equal(t, []byte{0xFF, 0x01, 0x79, 0xA0, 0x00, 0x00, 0x00, 0x00, 0xE6}, abcOnCmd[:])
}

func TestDecode(t *testing.T) {
	valid := response(1234, 25, 0x40)

	badSum := append([]byte(nil), valid...)
	badSum[3]++

	tests := []struct {
		name    string
		frame   []byte
		want    Reading
		wantErr error
	}{
		{name: "valid", frame: valid, want: Reading{CO2: 1234, Temperature: 25, Status: 0x40}},
		{name: "short", frame: valid[:8], wantErr: co2.ErrIncomplete},
		{name: "checksum", frame: badSum, wantErr: co2.ErrChecksum},
		{name: "wrong header", frame: append([]byte{0xFF, 0x79}, valid[2:]...), wantErr: co2.ErrFraming},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.frame)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSensor_Read(t *testing.T) {
	tests := []struct {
		name     string
		reply    []byte
		want     int
		wantErr  error
		wantCode int16
	}{
		{
			name:  "clean reply",
			reply: response(415, 21, 0),
			want:  415,
		},
		{
			name:  "garbage before start byte",
			reply: append([]byte{0x00, 0x13, 0x37, 0x86}, response(800, 30, 0)...),
			want:  800,
		},
		{
			name:  "long garbage",
			reply: append(make([]byte, 14), response(2000, 30, 0)...),
			want:  2000,
		},
		{
			name:     "no reply",
			reply:    nil,
			wantErr:  co2.ErrNoResponse,
			wantCode: co2.CodeNoResponse,
		},
		{
			name:     "incomplete",
			reply:    response(415, 21, 0)[:6],
			wantErr:  co2.ErrIncomplete,
			wantCode: co2.CodeIncomplete,
		},
		{
			name:     "garbage only",
			reply:    []byte{0x01, 0x02, 0x03},
			wantErr:  co2.ErrIncomplete,
			wantCode: co2.CodeIncomplete,
		},
		{
			name: "corrupted",
			reply: func() []byte {
				r := response(415, 21, 0)
				r[2] ^= 0x01
				return r
			}(),
			wantErr:  co2.ErrChecksum,
			wantCode: co2.CodeChecksum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, port, _ := newTestSensor()
			port.Expect(readCmd, tt.reply)

			got, err := s.ReadCO2(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.wantCode, co2.Code(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 0, port.Unmet())
		})
	}
}

func TestSensor_NoResponseWaits(t *testing.T) {
	s, _, clk := newTestSensor()
	start := clk.Now()

	_, err := s.Read(context.Background())
	assert.ErrorIs(t, err, co2.ErrNoResponse)
	assert.Equal(t, 10*100*time.Millisecond, clk.Now().Sub(start))
}

func TestSensor_DrainsStaleBytes(t *testing.T) {
	s, port, _ := newTestSensor()
	port.Feed(response(9999, 0, 0)...)
	port.Expect(readCmd, response(420, 22, 0))

	got, err := s.ReadCO2(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 420, got)
}

func TestSensor_ReadStable(t *testing.T) {
	s, port, _ := newTestSensor()
	port.Expect(readCmd, response(420, 22, 0))
	port.Expect(readCmd, response(500, 22, 0))

	_, err := co2.ReadStable(context.Background(), s, co2.Tolerance)
	assert.ErrorIs(t, err, co2.ErrUnstable)
}

func TestSensor_Calibration(t *testing.T) {
	s, port, _ := newTestSensor()

	require.NoError(t, s.SetABC(false))
	require.NoError(t, s.SetABC(true))
	require.NoError(t, s.CalibrateZero())

	written := port.Written()
	require.Len(t, written, 3)
	assert.Equal(t, byte(0x86), written[0][8])
	assert.Equal(t, byte(0xE6), written[1][8])
	assert.Equal(t, []byte{0xFF, 0x01, 0x87, 0x00, 0x00, 0x00, 0x00, 0x00, 0x78}, written[2])
}
