//go:build tinygo

//go:generate tinygo flash -target=xiao-esp32c3

package main

import (
	"context"
	"machine"
	"time"

	"github.com/itohio/agmon/pkg/aqi"
	"github.com/itohio/agmon/pkg/co2/s8"
	"github.com/itohio/agmon/pkg/correction"
	"github.com/itohio/agmon/pkg/pms"
	"github.com/itohio/agmon/pkg/sht"
)

var (
	particles *pms.Sensor
	carbon    *s8.Sensor
	climate   *sht.Sensor
	daily     = aqi.NewCalculator(nil)

	// Last known values, invalid until the first good reading
	co2         = correction.InvalidCO2
	pm          pms.Reading
	pmValid     bool
	temperature = correction.InvalidTemperature
	humidity    = correction.InvalidHumidity

	co2Fails     int
	climateFails int

	// Timing
	lastMeasure time.Time
	lastAQI     time.Time
)

func main() {
	ctx := context.Background()

	uartPMS.Configure(machine.UARTConfig{BaudRate: UART_BAUD_RATE, TX: PIN_PMS_TX, RX: PIN_PMS_RX})
	uartCO2.Configure(machine.UARTConfig{BaudRate: UART_BAUD_RATE, TX: PIN_CO2_TX, RX: PIN_CO2_RX})
	i2c.Configure(machine.I2CConfig{SDA: PIN_SDA, SCL: PIN_SCL, Frequency: I2C_FREQUENCY})

	particles = pms.NewSensor(uartPMS, pms.ModelPMS5003, nil)
	carbon = s8.New(uartCO2, nil, s8.Config{})
	climate = sht.New(i2c, sht.Auto, nil)

	particles.Wake()
	particles.ActiveMode()

	if _, err := carbon.Init(ctx); err != nil {
		println("s8:", err.Error())
		carbon = nil
	} else if err := carbon.SetABCPeriod(ctx, S8_ABC_HOURS); err != nil {
		println("s8 abc:", err.Error())
	}

	if err := climate.Init(ctx); err != nil {
		println("sht:", err.Error())
		climate = nil
	} else {
		climate.SetAccuracy(sht.Medium)
	}

	lastMeasure = time.Now()
	lastAQI = lastMeasure

	for {
		now := time.Now()

		// Drain particle frames as they stream in (non-blocking)
		readParticles()

		if now.Sub(lastMeasure) >= MEASURE_INTERVAL {
			readCO2(ctx)
			readClimate(ctx)
			outputValues(now)
			lastMeasure = now
		}

		if now.Sub(lastAQI) >= AQI_INTERVAL {
			if pmValid {
				daily.Add(float32(pm.PM25AE))
			}
			lastAQI = now
		}

		time.Sleep(LOOP_DELAY)
	}
}

func readParticles() {
	got, _ := particles.Update()
	if got {
		r := particles.Reading()
		// A zero PM2.5 right after a high value is a glitch
		if r.PM25AE == 0 && pmValid && pm.PM25AE >= 10 {
			return
		}
		pm = r
		pmValid = true
		return
	}
	if particles.Failed() {
		pmValid = false
	}
}

func readCO2(ctx context.Context) {
	if carbon == nil {
		return
	}
	value, err := carbon.CO2(ctx)
	if err != nil || value <= 0 {
		co2Fails++
		if co2Fails >= SENSOR_FAILS {
			co2 = correction.InvalidCO2
		}
		return
	}
	co2Fails = 0
	co2 = value
}

func readClimate(ctx context.Context) {
	if climate == nil {
		return
	}
	sample, err := climate.ReadSample(ctx)
	if err != nil {
		climateFails++
		if climateFails >= SENSOR_FAILS {
			temperature = correction.InvalidTemperature
			humidity = correction.InvalidHumidity
		}
		return
	}
	climateFails = 0
	temperature = sample.Temperature + SHT_OFFSET_C
	humidity = sample.Humidity
}

func outputValues(now time.Time) {
	// Output format: "unix_millis,co2,pm1,pm25,pm10,pm25_epa,temp_dC,rh_pct,aqi,aqi24h\n"
	// Invalid values are printed as empty fields.
	print(now.UnixMilli())
	print(",")
	if correction.ValidCO2(co2) {
		print(co2)
	}
	print(",")
	if pmValid {
		print(pm.PM1AE, ",", pm.PM25AE, ",", pm.PM10AE, ",")
	} else {
		print(",,,")
	}
	if pmValid && correction.ValidHumidity(humidity) {
		print(int(correction.CompensatePM25(float32(pm.PM25AE), humidity)))
	}
	print(",")
	if correction.ValidTemperature(temperature) {
		print(int(temperature * 10))
	}
	print(",")
	if correction.ValidHumidity(humidity) {
		print(int(humidity))
	}
	print(",")
	if pmValid {
		print(correction.PM25ToUSAQI(float32(pm.PM25AE)))
	}
	print(",")
	if v, ok := daily.AQI(); ok {
		print(v)
	}
	print("\n")
}
