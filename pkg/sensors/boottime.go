package sensors

import (
	"context"
	"time"

	"github.com/itohio/agmon/pkg/clock"
	"github.com/itohio/agmon/pkg/gatherer"
)

// BootTime reports when the agent started.
type BootTime struct {
	clock clock.Clock
	at    time.Time
}

// NewBootTime creates a boot time source. A nil clock selects the system clock.
func NewBootTime(c clock.Clock) *BootTime {
	return &BootTime{clock: clock.Or(c)}
}

func (b *BootTime) Name() string                       { return "boot_time" }
func (b *BootTime) Measurements() gatherer.Measurement { return gatherer.BootTime }

func (b *BootTime) Begin(ctx context.Context) error {
	if b.at.IsZero() {
		b.at = b.clock.Now()
	}
	return nil
}

// Update sets the boot time once.
func (b *BootTime) Update(ctx context.Context, s *gatherer.Snapshot) {
	if s.BootTime.IsZero() {
		s.BootTime = b.at
	}
}
