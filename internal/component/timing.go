package component

import (
	"context"
	"fmt"

	"github.com/cwbudde/petstudy/internal/timing"
)

// SaveTime passes pass_in through to pass_out and marks the timing file.
type SaveTime struct {
	Path string
}

func (c *SaveTime) Params() []Port   { return []Port{{Name: "pass_in"}} }
func (c *SaveTime) Unknowns() []Port { return []Port{{Name: "pass_out"}} }
func (c *SaveTime) Stateful() bool   { return true }

func (c *SaveTime) Solve(ctx context.Context, params Values) (Values, error) {
	if err := timing.Mark(c.Path); err != nil {
		return nil, fmt.Errorf("savetime: %w", err)
	}
	return Values{"pass_out": params["pass_in"]}, nil
}

// MeasureTime reports the seconds since the last SaveTime mark in time,
// or timing.NoMark if nothing was marked. The finished param only orders it
// after the measured work.
type MeasureTime struct {
	Path string
}

func (c *MeasureTime) Params() []Port   { return []Port{{Name: "finished"}} }
func (c *MeasureTime) Unknowns() []Port { return []Port{{Name: "time"}} }
func (c *MeasureTime) Stateful() bool   { return true }

func (c *MeasureTime) Solve(ctx context.Context, params Values) (Values, error) {
	elapsed, err := timing.Elapsed(c.Path)
	if err != nil {
		return nil, fmt.Errorf("measuretime: %w", err)
	}
	return Values{"time": elapsed}, nil
}
