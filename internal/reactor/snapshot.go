package reactor

import "time"

type PlanInfo struct {
	Name          string    `json:"name"`
	LastRun       time.Time `json:"last_run,omitempty"`
	NextRun       time.Time `json:"next_run,omitempty"` // zero when exhausted
	Running       bool      `json:"running"`
	AllowMultiple bool      `json:"allow_multiple,omitempty"`
	Runs          uint64    `json:"runs"`
	Skips         uint64    `json:"skips"`
}

type Snapshot struct {
	Running  bool       `json:"running"`
	Timezone string     `json:"timezone"`
	Plans    []PlanInfo `json:"plans"`
}

// Snapshot reports the registered plans in registration order.
func (r *Reactor) Snapshot() Snapshot {
	r.mu.Lock()
	plans := append([]*Plan(nil), r.plans...)
	r.mu.Unlock()

	out := Snapshot{Running: r.Running(), Timezone: r.loc.String(), Plans: make([]PlanInfo, 0, len(plans))}
	for _, p := range plans {
		out.Plans = append(out.Plans, p.info())
	}
	return out
}
