package sink

import (
	"errors"

	"github.com/fleet-sim/fleet-sim/sim"
)

type multiSink []sim.Sink

// Multi fans every tick out to all sinks in order. A write error stops the
// fan-out for that tick; Close closes every sink and joins their errors.
func Multi(sinks ...sim.Sink) sim.Sink {
	var flat multiSink
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if inner, ok := s.(multiSink); ok {
			flat = append(flat, inner...)
			continue
		}
		flat = append(flat, s)
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return flat
}

func (m multiSink) WriteDay(day int, rows []sim.DayRecord) error {
	for _, s := range m {
		if err := s.WriteDay(day, rows); err != nil {
			return err
		}
	}
	return nil
}

func (m multiSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
