package transaction

import "sync"

// MemorySink keeps measurements in a lock-protected buffer.
type MemorySink struct {
	mu   sync.Mutex
	data []Measurement
}

// Record appends m.
func (s *MemorySink) Record(m Measurement) {
	s.mu.Lock()
	s.data = append(s.data, m)
	s.mu.Unlock()
}

// Measurements returns a copy of everything recorded so far.
func (s *MemorySink) Measurements() []Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Measurement(nil), s.data...)
}

// Named returns the measurements recorded under name.
func (s *MemorySink) Named(name string) []Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Measurement
	for _, m := range s.data {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// ChannelSink forwards measurements to an append-only channel. Record blocks
// when the channel is full.
type ChannelSink chan Measurement

// Record sends m.
func (c ChannelSink) Record(m Measurement) { c <- m }

// MultiSink fans a measurement out to several sinks in order.
type MultiSink []Sink

// Record forwards m to every sink.
func (ms MultiSink) Record(m Measurement) {
	for _, s := range ms {
		s.Record(m)
	}
}
