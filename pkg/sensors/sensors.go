// Package sensors adapts the protocol drivers to gatherer.Sensor. Every
// adapter owns one physical device and writes only the snapshot fields of the
// measurements it provides.
package sensors

import (
	"github.com/itohio/agmon/pkg/gatherer"
	log "github.com/sirupsen/logrus"
)

var (
	_ gatherer.Sensor = (*PMS)(nil)
	_ gatherer.Sensor = (*S8)(nil)
	_ gatherer.Sensor = (*MHZ19)(nil)
	_ gatherer.Sensor = (*SHT)(nil)
	_ gatherer.Sensor = (*SGP41)(nil)
	_ gatherer.Sensor = (*BootTime)(nil)
)

// MaxFailures consecutive failed updates mark a sensor disconnected and
// replace its values with the invalid sentinels.
const MaxFailures = 10

func logger(name string) *log.Entry {
	return log.WithField("sensor", name)
}
