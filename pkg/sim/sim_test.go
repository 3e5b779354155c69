package sim

import (
	"context"
	"testing"
	"time"

	"github.com/itohio/agmon/pkg/clock"
	"github.com/itohio/agmon/pkg/co2"
	"github.com/itohio/agmon/pkg/co2/mhz19"
	"github.com/itohio/agmon/pkg/co2/s8"
	"github.com/itohio/agmon/pkg/config"
	"github.com/itohio/agmon/pkg/pms"
	"github.com/itohio/agmon/pkg/sgp41"
	"github.com/itohio/agmon/pkg/sht"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnv(noise float32) (*Environment, *clock.Fake) {
	clk := clock.NewFake(time.Unix(0, 0))
	cfg := config.Default().Mock
	cfg.Noise = noise
	return NewEnvironment(cfg, clk), clk
}

func TestEnvironment(t *testing.T) {
	env, clk := newEnv(0)
	assert.Equal(t, 600, env.CO2())
	assert.InDelta(t, 12, env.PM25(), 1e-4)
	assert.InDelta(t, 23, env.Temperature(), 1e-4)
	assert.InDelta(t, 45, env.Humidity(), 1e-4)

	env, clk = newEnv(0.1)
	for i := 0; i < 100; i++ {
		clk.Advance(time.Minute)
		assert.InDelta(t, 600, env.CO2(), 61)
		assert.InDelta(t, 45, env.Humidity(), 4.6)
	}
}

func TestPMS(t *testing.T) {
	tests := []struct {
		name    string
		model   pms.Model
		tempHum bool
	}{
		{name: "pms5003", model: pms.ModelPMS5003},
		{name: "pms5003t", model: pms.ModelPMS5003T, tempHum: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, clk := newEnv(0)
			p := NewPMS(env, tt.model)
			dev := pms.NewSensor(p.Port(), tt.model, clk)

			r, err := dev.ReadUntil(context.Background(), time.Second)
			require.NoError(t, err)
			assert.Equal(t, uint16(12), r.PM25AE)
			assert.Equal(t, uint16(1800), r.Count03)
			assert.Equal(t, tt.tempHum, r.HasTempHum)
			if tt.tempHum {
				assert.InDelta(t, 23, r.Temperature, 0.1)
				assert.InDelta(t, 45, r.Humidity, 0.1)
			}
		})
	}
}

func TestPMS_Sleep(t *testing.T) {
	env, clk := newEnv(0)
	p := NewPMS(env, pms.ModelPMS5003)
	dev := pms.NewSensor(p.Port(), pms.ModelPMS5003, clk)

	require.NoError(t, dev.Sleep())
	assert.True(t, p.Asleep())
	_, err := dev.ReadUntil(context.Background(), time.Second)
	assert.ErrorIs(t, err, pms.ErrTimeout)

	require.NoError(t, dev.Wake())
	assert.False(t, p.Asleep())
	_, err = dev.ReadUntil(context.Background(), time.Second)
	assert.NoError(t, err)
}

func TestS8(t *testing.T) {
	env, clk := newEnv(0)
	sim := NewS8(env)
	dev := s8.New(sim.Port(), clk, s8.Config{})
	ctx := context.Background()

	version, err := dev.Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2.1", version)

	ppm, err := dev.CO2(ctx)
	require.NoError(t, err)
	assert.Equal(t, 600, ppm)

	typeID, err := dev.SensorTypeID(ctx)
	require.NoError(t, err)
	assert.Equal(t, S8TypeID, typeID)

	id, err := dev.SensorID(ctx)
	require.NoError(t, err)
	assert.Equal(t, S8SensorID, id)

	require.NoError(t, dev.SetABCPeriod(ctx, 192))
	assert.Equal(t, uint16(192), sim.ABCPeriod())

	require.NoError(t, dev.ManualCalibration(ctx))
	done, err := dev.IsBaselineCalibrationDone(ctx)
	require.NoError(t, err)
	assert.True(t, done)

	var exc *s8.ExceptionError
	_, err = dev.ReadInput(ctx, 0x0042)
	assert.ErrorAs(t, err, &exc)
}

func TestMHZ19(t *testing.T) {
	env, clk := newEnv(0)
	sim := NewMHZ19(env)
	dev := mhz19.New(sim.Port(), clk, mhz19.Config{})
	ctx := context.Background()

	r, err := dev.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 600, r.CO2)
	assert.Equal(t, 23, r.Temperature)

	ppm, err := co2.ReadStable(ctx, dev, co2.Tolerance)
	require.NoError(t, err)
	assert.Equal(t, 600, ppm)

	require.NoError(t, dev.SetABC(false))
	assert.False(t, sim.ABC())
}

func TestBus(t *testing.T) {
	env, clk := newEnv(0)
	ctx := context.Background()

	t.Run("sht autodetect", func(t *testing.T) {
		bus := NewBus(env, false)
		model, err := sht.AutoDetect(ctx, bus, clk)
		require.NoError(t, err)
		assert.Equal(t, sht.SHT4X, model)

		s := sht.New(bus, model, clk)
		sample, err := s.ReadSample(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 23, sample.Temperature, 0.01)
		assert.InDelta(t, 45, sample.Humidity, 0.01)
	})

	t.Run("sgp41", func(t *testing.T) {
		bus := NewBus(env, true)
		s := sgp41.New(bus, clk)
		require.NoError(t, s.SelfTest(ctx))

		serial, err := s.SerialNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(0x000102030405), serial)

		voc, nox, err := s.MeasureRaw(ctx, sgp41.DefaultRH, sgp41.DefaultT)
		require.NoError(t, err)
		assert.Equal(t, uint16(30000), voc)
		assert.Equal(t, uint16(16000), nox)
	})

	t.Run("absent sgp41", func(t *testing.T) {
		bus := NewBus(env, false)
		assert.ErrorIs(t, sgp41.New(bus, clk).SelfTest(ctx), ErrNoDevice)
	})
}
