package plugin

import "time"

// Status is the per-plugin result of one dispatch.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Result is one plugin's entry in an Outcome.
type Result struct {
	Plugin   string        `json:"plugin"`
	Status   Status        `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"durationNs"`
}

// Outcome aggregates the per-plugin results of one dispatch, in registry
// order.
type Outcome struct {
	EventID string   `json:"eventId"`
	Results []Result `json:"results"`
}

// Result returns the first result for the named plugin.
func (o Outcome) Result(plugin string) (Result, bool) {
	for _, r := range o.Results {
		if r.Plugin == plugin {
			return r, true
		}
	}
	return Result{}, false
}

// Failures returns the failed results.
func (o Outcome) Failures() []Result {
	var out []Result
	for _, r := range o.Results {
		if r.Status == StatusFailed {
			out = append(out, r)
		}
	}
	return out
}

// Delivered returns how many plugins accepted the event.
func (o Outcome) Delivered() int {
	n := 0
	for _, r := range o.Results {
		if r.Status == StatusDelivered {
			n++
		}
	}
	return n
}

func delivered(plugin string, d time.Duration) Result {
	return Result{Plugin: plugin, Status: StatusDelivered, Duration: d}
}

func failed(plugin string, err error, d time.Duration) Result {
	return Result{Plugin: plugin, Status: StatusFailed, Reason: err.Error(), Duration: d}
}
