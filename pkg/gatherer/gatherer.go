// Package gatherer polls a set of sensors into a shared measurement snapshot.
// Each measurement is produced by exactly one registered sensor.
package gatherer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultInterval is the polling period used by Run.
const DefaultInterval = 3 * time.Second

var (
	ErrConflict   = errors.New("gatherer: measurement already claimed")
	ErrNotStarted = errors.New("gatherer: not started")
)

// Sensor produces one or more measurements.
type Sensor interface {
	Name() string
	// Measurements returns everything the sensor is able to produce.
	Measurements() Measurement
	Begin(ctx context.Context) error
	// Update writes fresh values into s. On a failed read the sensor keeps
	// its last values or writes invalid sentinels.
	Update(ctx context.Context, s *Snapshot)
}

type entry struct {
	sensor  Sensor
	current Measurement
}

// Gatherer owns the snapshot and the sensors writing into it.
type Gatherer struct {
	interval time.Duration

	mu      sync.RWMutex
	sensors []entry
	claimed Measurement
	started bool
	snap    Snapshot

	gatherMu sync.Mutex

	callbacks []func(Snapshot)
	cbMu      sync.RWMutex
}

// New creates a gatherer. A non-positive interval selects DefaultInterval.
func New(interval time.Duration) *Gatherer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Gatherer{
		interval: interval,
		snap:     NewSnapshot(),
	}
}

// Interval returns the polling period used by Run.
func (g *Gatherer) Interval() time.Duration { return g.interval }

// Add registers s for its measurements minus exclude. A sensor overlapping an
// already claimed measurement is logged and ignored.
func (g *Gatherer) Add(s Sensor, exclude Measurement) error {
	current := s.Measurements() &^ exclude

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, e := range g.sensors {
		if overlap := e.current & current; overlap != None {
			log.WithFields(log.Fields{
				"sensor":   s.Name(),
				"existing": e.sensor.Name(),
				"overlap":  overlap.String(),
			}).Warn("sensor conflict, ignoring")
			return errors.Wrapf(ErrConflict, "%s: %v claimed by %s", s.Name(), overlap, e.sensor.Name())
		}
	}

	g.claimed |= current
	g.sensors = append(g.sensors, entry{sensor: s, current: current})
	log.Debugf("added sensor %s providing %v", s.Name(), current)
	return nil
}

// Claimed returns the union of all registered measurements.
func (g *Gatherer) Claimed() Measurement {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.claimed
}

// Sensors returns the names of the registered sensors in order.
func (g *Gatherer) Sensors() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, len(g.sensors))
	for i, e := range g.sensors {
		names[i] = e.sensor.Name()
	}
	return names
}

// Begin initialises the sensors in registration order. The first failure
// stops initialisation and nothing is polled afterwards.
func (g *Gatherer) Begin(ctx context.Context) error {
	g.mu.RLock()
	sensors := append([]entry(nil), g.sensors...)
	g.mu.RUnlock()

	for _, e := range sensors {
		if err := e.sensor.Begin(ctx); err != nil {
			log.Errorf("can't init sensor %s, stopping initialization: %s", e.sensor.Name(), err)
			return errors.Wrapf(err, "begin %s", e.sensor.Name())
		}
		log.Infof("sensor %s initialized", e.sensor.Name())
	}

	g.mu.Lock()
	g.started = true
	g.mu.Unlock()
	return nil
}

// Gather polls every sensor once and publishes the new snapshot.
func (g *Gatherer) Gather(ctx context.Context) error {
	g.gatherMu.Lock()
	defer g.gatherMu.Unlock()

	g.mu.RLock()
	started := g.started
	sensors := append([]entry(nil), g.sensors...)
	snap := g.snap
	g.mu.RUnlock()

	if !started {
		log.Warn("gather called before a successful begin")
		return ErrNotStarted
	}

	for _, e := range sensors {
		scratch := snap
		e.sensor.Update(ctx, &scratch)
		snap.merge(&scratch, e.current)
	}
	snap.Updated = time.Now()

	g.mu.Lock()
	g.snap = snap
	g.mu.Unlock()

	g.notifyCallbacks(snap)
	return ctx.Err()
}

// Snapshot returns a copy of the last gathered values.
func (g *Gatherer) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snap
}

// OnUpdate registers a callback invoked with a copy of the snapshot after
// every gather.
func (g *Gatherer) OnUpdate(cb func(Snapshot)) {
	g.cbMu.Lock()
	defer g.cbMu.Unlock()
	g.callbacks = append(g.callbacks, cb)
}

func (g *Gatherer) notifyCallbacks(s Snapshot) {
	g.cbMu.RLock()
	callbacks := append(([]func(Snapshot))(nil), g.callbacks...)
	g.cbMu.RUnlock()

	for _, cb := range callbacks {
		cb(s)
	}
}

// Run begins the sensors, gathers once and then every interval until ctx is
// done.
func (g *Gatherer) Run(ctx context.Context) error {
	if err := g.Begin(ctx); err != nil {
		return err
	}
	if err := g.Gather(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := g.Gather(ctx); err != nil {
				return err
			}
		}
	}
}
