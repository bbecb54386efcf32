package types

// ProgressSink consumes progress and log events emitted during long-running
// store operations. SetTotal is called once per phase; Advance and Info may
// be called any number of times after it.
type ProgressSink interface {
	SetTotal(total int)
	Advance(n int)
	Info(msg string)
}

type nopSink struct{}

func (nopSink) SetTotal(int) {}
func (nopSink) Advance(int)  {}
func (nopSink) Info(string)  {}

// NopSink is a ProgressSink that discards every event.
var NopSink ProgressSink = nopSink{}

// SinkOrNop returns s, or NopSink when s is nil. A nil sink is always legal.
func SinkOrNop(s ProgressSink) ProgressSink {
	if s == nil {
		return NopSink
	}
	return s
}
