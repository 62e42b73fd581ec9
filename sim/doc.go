// Package sim provides the fleet lifecycle simulation engine.
//
// # Reading Guide
//
// Start with these files to understand the engine:
//   - state.go: unit states and the per-tick transition flags
//   - unit.go, fleet.go: the unit arena and its shared atomic counters
//   - simulator.go: the tick loop and the phase barrier
//
// # Tick Phases
//
// Every tick lands on one day and runs, in order, with a barrier between phases:
//   - transitions.go: usage accrual and limit triggers (airframes, then aggregates)
//   - quota.go: per-class demotion or P1/P2/P3 promotion against the daily target
//   - assembly.go: claim/verify passes mounting free aggregates on airframes
//   - repair.go: repair slot admission, FIFO per class
//   - spawn.go: new units on seed days when a class is structurally short
//
// step.go picks the next tick: one day, or in adaptive mode the distance to
// the nearest limiter, repair exit, recall gate, plan change or seed day.
//
// Within a phase units are processed in parallel lanes. Decisions that pick
// "the k best" are made over a snapshot by rank, so the committed rows are the
// same for any worker count.
//
// # Sub-packages
//   - sim/plan/: scenario YAML and snapshot CSV loading
//   - sim/sink/: CSV, SQLite and Prometheus sinks
//   - sim/validate/: post-run invariant checks over committed rows
//   - sim/trace/: decision trace recording
package sim
