// Package router picks the backing calendar for a session from the parity
// of its local start hour.
package router

import (
	"time"

	"classcal/internal/log"
	"classcal/internal/model"
	"classcal/internal/timenorm"
)

// Router maps partitions to remote calendar ids.
type Router struct {
	even, odd string
	def       model.Partition
}

// New returns a Router. An invalid def falls back to odd.
func New(evenID, oddID string, def model.Partition) *Router {
	if !def.Valid() {
		def = model.PartitionOdd
	}
	return &Router{even: evenID, odd: oddID, def: def}
}

// RouteHour maps a local hour (0-23) to its partition.
func RouteHour(hour int) model.Partition {
	if hour%2 == 0 {
		return model.PartitionEven
	}
	return model.PartitionOdd
}

// Route returns the partition for a start timestamp using the hour as
// written, before any zone conversion. Empty or unparseable input yields
// the default partition.
func (r *Router) Route(start string) model.Partition {
	if start == "" {
		log.Debug("empty start, using default partition", "partition", string(r.def))
		return r.def
	}
	t, err := timenorm.Parse(start, time.UTC)
	if err != nil {
		log.Warn("cannot route start time, using default partition", "start", start, "partition", string(r.def))
		return r.def
	}
	return RouteHour(t.Hour())
}

// Default returns the designated fallback partition.
func (r *Router) Default() model.Partition {
	return r.def
}

// CalendarID returns the remote calendar id backing p.
func (r *Router) CalendarID(p model.Partition) string {
	if p == model.PartitionEven {
		return r.even
	}
	return r.odd
}

// PartitionOf is the reverse of CalendarID. The second result is false for
// ids that belong to neither partition.
func (r *Router) PartitionOf(calendarID string) (model.Partition, bool) {
	switch calendarID {
	case r.even:
		return model.PartitionEven, true
	case r.odd:
		return model.PartitionOdd, true
	}
	return "", false
}

// Resolve expands a list filter ("odd", "even", "both" or empty) into
// partitions in probe order.
func Resolve(filter string) []model.Partition {
	switch model.Partition(filter) {
	case model.PartitionOdd:
		return []model.Partition{model.PartitionOdd}
	case model.PartitionEven:
		return []model.Partition{model.PartitionEven}
	}
	return model.Partitions
}
