package logging

import (
	"sync"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

// progressSteps is how many progress lines a phase logs at most.
const progressSteps = 10

// ProgressSink logs progress events. Each SetTotal starts a new phase; within
// a phase, Advance logs one line every tenth of the total so tens of
// thousands of rows do not flood the log.
type ProgressSink struct {
	mu    sync.Mutex
	log   *zap.Logger
	phase int
	total int
	done  int
	next  int
}

var _ types.ProgressSink = (*ProgressSink)(nil)

// NewProgressSink returns a sink writing to log at info level.
func NewProgressSink(log *zap.Logger) *ProgressSink {
	return &ProgressSink{log: OrNop(log)}
}

// SetTotal starts a new phase of total units.
func (p *ProgressSink) SetTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.phase++
	p.total = total
	p.done = 0
	p.next = p.step()
	p.log.Info("progress", zap.Int("phase", p.phase), zap.Int("total", total), zap.Int("done", 0))
}

// Advance records n more completed units.
func (p *ProgressSink) Advance(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done += n
	if p.done < p.next && p.done != p.total {
		return
	}
	for p.next <= p.done {
		p.next += p.step()
	}
	p.log.Info("progress", zap.Int("phase", p.phase), zap.Int("total", p.total), zap.Int("done", p.done))
}

// Info logs msg within the current phase.
func (p *ProgressSink) Info(msg string) {
	p.mu.Lock()
	phase := p.phase
	p.mu.Unlock()
	p.log.Info(msg, zap.Int("phase", phase))
}

// Done returns the units completed in the current phase.
func (p *ProgressSink) Done() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *ProgressSink) step() int {
	s := p.total / progressSteps
	if s < 1 {
		s = 1
	}
	return s
}
