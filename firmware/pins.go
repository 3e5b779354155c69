//go:build tinygo

package main

import (
	"machine"
	"time"
)

const (
	// Timing
	LOOP_DELAY       = 10 * time.Millisecond
	MEASURE_INTERVAL = 5 * time.Second  // CO2 and humidity poll interval
	AQI_INTERVAL     = 15 * time.Minute // 24h AQI sample interval (96 samples)

	// Sensor settings
	S8_ABC_HOURS = 8 * 24      // SenseAir S8 automatic baseline correction period
	SHT_OFFSET_C = float32(-2) // Enclosure self heating compensation
	SENSOR_FAILS = 10          // Consecutive failed reads before a value is invalidated

	// UART configuration (PMS5003 and S8 both run at 9600 8N1)
	UART_BAUD_RATE = 9600

	// Particle sensor on UART1
	PIN_PMS_TX = machine.GPIO21
	PIN_PMS_RX = machine.GPIO20

	// CO2 sensor on UART0
	PIN_CO2_TX = machine.GPIO2
	PIN_CO2_RX = machine.GPIO3

	// Humidity sensor on I2C0
	PIN_SDA       = machine.GPIO6
	PIN_SCL       = machine.GPIO7
	I2C_FREQUENCY = 100 * machine.KHz
)

var (
	uartPMS = machine.UART1
	uartCO2 = machine.UART0
	i2c     = machine.I2C0
)
