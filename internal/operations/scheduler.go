package operations

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner runs Manager.Prune on a cron schedule instead of a fixed
// ticker, so housekeeping can be tuned independently of the prune
// horizon itself (e.g. "sweep hourly, keep 3 days of terminal ops").
type Pruner struct {
	mgr      *Manager
	schedule cron.Schedule

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPruner parses expr (a standard five-field cron expression) and
// returns a Pruner for mgr. An invalid expression is an error from the
// caller's configuration, not a runtime condition, so it is returned
// rather than silently falling back to a default schedule.
func NewPruner(mgr *Manager, expr string) (*Pruner, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, err
	}
	return &Pruner{mgr: mgr, schedule: schedule}, nil
}

// Start begins the scheduler loop. It is a no-op if already running.
func (p *Pruner) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopChan = make(chan struct{})

	p.wg.Add(1)
	go p.runLoop()
}

// Stop halts the scheduler loop and waits for it to exit.
func (p *Pruner) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pruner) runLoop() {
	defer p.wg.Done()

	now := time.Now()
	next := p.schedule.Next(now)

	for {
		timer := time.NewTimer(time.Until(next))
		select {
		case fired := <-timer.C:
			p.mgr.Prune(fired)
			next = p.schedule.Next(fired)
		case <-p.stopChan:
			timer.Stop()
			return
		}
	}
}
