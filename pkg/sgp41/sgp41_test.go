package sgp41

import (
	"context"
	"testing"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/agmon/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

var measureDefaults = []byte{0x26, 0x19, 0x80, 0x00, 0xA2, 0x66, 0x66, 0x93}

func newTestSensor(ops ...i2ctest.IO) (*Sensor, *i2ctest.Playback, *clock.Fake) {
	bus := &i2ctest.Playback{Ops: ops, DontPanic: true}
	clk := clock.NewFake(time.Unix(0, 0))
	return New(bus, clk), bus, clk
}

func TestSensor_SelfTest(t *testing.T) {
	t.Run("pass", func(t *testing.T) {
		s, bus, clk := newTestSensor(
			i2ctest.IO{Addr: Address, W: []byte{0x28, 0x0E}},
			i2ctest.IO{Addr: Address, R: []byte{0xD4, 0x00, 0xC6}},
		)
		start := clk.Now()
		require.NoError(t, s.SelfTest(context.Background()))
		assert.Equal(t, selfTestDelay, clk.Now().Sub(start))
		assert.NoError(t, bus.Close())
	})

	t.Run("fail", func(t *testing.T) {
		s, _, _ := newTestSensor(
			i2ctest.IO{Addr: Address, W: []byte{0x28, 0x0E}},
			i2ctest.IO{Addr: Address, R: []byte{0x4B, 0x00, 0x12}},
		)
		assert.ErrorIs(t, s.SelfTest(context.Background()), ErrSelfTest)
	})

	t.Run("absent", func(t *testing.T) {
		s, _, _ := newTestSensor()
		assert.Error(t, s.SelfTest(context.Background()))
	})
}

func TestSensor_MeasureRaw(t *testing.T) {
	s, bus, _ := newTestSensor(
		i2ctest.IO{Addr: Address, W: measureDefaults},
		i2ctest.IO{Addr: Address, R: []byte{0x12, 0x34, 0x37, 0x30, 0x00, 0x33}},
	)

	voc, nox, err := s.MeasureRaw(context.Background(), DefaultRH, DefaultT)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), voc)
	assert.Equal(t, uint16(0x3000), nox)
	assert.NoError(t, bus.Close())
}

func TestSensor_MeasureRawBadCRC(t *testing.T) {
	s, _, _ := newTestSensor(
		i2ctest.IO{Addr: Address, W: measureDefaults},
		i2ctest.IO{Addr: Address, R: []byte{0x12, 0x34, 0x37, 0x30, 0x00, 0x34}},
	)

	_, _, err := s.MeasureRaw(context.Background(), DefaultRH, DefaultT)
	assert.ErrorIs(t, err, ErrCRC)
}

func TestSensor_Conditioning(t *testing.T) {
	s, bus, _ := newTestSensor(
		i2ctest.IO{Addr: Address, W: []byte{0x26, 0x12, 0x80, 0x00, 0xA2, 0x66, 0x66, 0x93}},
		i2ctest.IO{Addr: Address, R: []byte{0x7F, 0xFF, 0x8F}},
	)

	voc, err := s.Conditioning(context.Background(), DefaultRH, DefaultT)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x7FFF), voc)
	assert.NoError(t, bus.Close())
}

func TestSensor_SerialAndHeater(t *testing.T) {
	s, bus, _ := newTestSensor(
		i2ctest.IO{Addr: Address, W: []byte{0x36, 0x82}},
		i2ctest.IO{Addr: Address, R: []byte{0x00, 0x01, 0xB0, 0x02, 0x03, 0x0B, 0x04, 0x05, 0xF7}},
		i2ctest.IO{Addr: Address, W: []byte{0x36, 0x15}},
	)

	sn, err := s.SerialNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0x000102030405), sn)
	require.NoError(t, s.HeaterOff(context.Background()))
	assert.NoError(t, bus.Close())
}

func TestCompensationTicks(t *testing.T) {
	rh, tt := CompensationTicks(math32.NaN(), math32.NaN())
	assert.Equal(t, DefaultRH, rh)
	assert.Equal(t, DefaultT, tt)

	rh, tt = CompensationTicks(100, -45)
	assert.Equal(t, uint16(65535), rh)
	assert.Equal(t, uint16(0), tt)

	rh, tt = CompensationTicks(150, 200)
	assert.Equal(t, uint16(65535), rh)
	assert.Equal(t, uint16(65535), tt)
}
