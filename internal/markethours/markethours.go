// Package markethours gates alert cycles on a configured trading window.
package markethours

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config describes the trading window. Hours form a half-open interval:
// EndHour is exclusive, so [8,22) passes through 21:59 but not 22:00.
type Config struct {
	Enabled          bool
	Timezone         string
	StartHour        int
	EndHour          int
	DaysMonToFriOnly bool
}

// Gate decides whether the current moment falls inside the trading window.
type Gate struct {
	cfg Config
	loc *time.Location
	now func() time.Time
	log zerolog.Logger
}

// New resolves the configured timezone once. An unknown timezone is a
// configuration error, reported here rather than per cycle.
func New(cfg Config, log zerolog.Logger) (*Gate, error) {
	g := &Gate{cfg: cfg, now: time.Now, log: log}
	if cfg.Enabled {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
		}
		g.loc = loc
	}
	return g, nil
}

// Open reports whether alerts may fire right now. A disabled gate is
// always open.
func (g *Gate) Open() bool {
	if !g.cfg.Enabled {
		return true
	}

	now := g.now().In(g.loc)

	if g.cfg.DaysMonToFriOnly {
		wd := now.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			g.log.Debug().Str("weekday", wd.String()).Msg("market closed: weekend")
			return false
		}
	}

	h := now.Hour()
	open := h >= g.cfg.StartHour && h < g.cfg.EndHour
	if !open {
		g.log.Debug().
			Int("hour", h).
			Int("start_hour", g.cfg.StartHour).
			Int("end_hour", g.cfg.EndHour).
			Msg("market closed: outside window")
	}
	return open
}
