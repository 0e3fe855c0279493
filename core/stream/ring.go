package stream

import schemastream "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/stream"

// ring is a bounded FIFO of the most recently received envelopes. On
// overflow the oldest envelope is evicted.
type ring struct {
	capacity int
	entries  []schemastream.EventEnvelope
}

func newRing(capacity int) *ring {
	return &ring{
		capacity: capacity,
		entries:  make([]schemastream.EventEnvelope, 0, capacity),
	}
}

func (r *ring) append(envelope schemastream.EventEnvelope) {
	if len(r.entries) == r.capacity {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:len(r.entries)-1]
	}
	r.entries = append(r.entries, envelope)
}

func (r *ring) snapshot() []schemastream.EventEnvelope {
	return append([]schemastream.EventEnvelope(nil), r.entries...)
}
