package sim

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// lanes runs one phase of a tick over independent units. Each call is a
// barrier: it returns only after every lane has finished.
type lanes struct {
	workers int
}

func newLanes(workers int) lanes {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return lanes{workers: workers}
}

// minChunk keeps goroutine overhead below the per-unit work for small fleets.
const minChunk = 64

// each calls fn(i) for i in [0, n), chunked across the worker lanes.
func (l lanes) each(n int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}
	if l.workers == 1 || n <= minChunk {
		for i := 0; i < n; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}
	chunk := (n + l.workers - 1) / l.workers
	if chunk < minChunk {
		chunk = minChunk
	}
	var g errgroup.Group
	g.SetLimit(l.workers)
	for start := 0; start < n; start += chunk {
		start := start
		end := min(start+chunk, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := fn(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// units runs fn over every unit of the given slice.
func (l lanes) units(us []*Unit, fn func(u *Unit) error) error {
	return l.each(len(us), func(i int) error { return fn(us[i]) })
}
