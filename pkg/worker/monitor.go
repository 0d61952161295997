package worker

import (
	"github.com/routecalc/prefork/pkg/types"
)

// monitor periodically scans Busy workers and kills those whose request
// exceeded the timeout. It runs until Stop has drained the pool, so the
// request timeout keeps being enforced during shutdown.
func (p *Pool) monitor() {
	defer close(p.monitorDone)

	ticker := p.config.Clock.NewTicker(p.config.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.monitorQuit:
			return
		case <-ticker.C():
			p.scanOnce()
		}
	}
}

// scanOnce performs one timeout scan over the worker table. The kill is
// serialized with the worker's own completion through Worker.abort: only
// one of the two wins.
func (p *Pool) scanOnce() {
	now := p.config.Clock.Now()

	for _, w := range p.snapshot() {
		startedAt, busy := w.requestStart()
		if !busy {
			continue
		}

		elapsed := now.Sub(startedAt)
		if elapsed < p.config.RequestTimeout {
			continue
		}

		if !w.abort(types.ErrRequestTimeout) {
			continue // completed between the snapshot and the kill
		}
		p.config.Logger.Error("worker died", "worker", w.id,
			"cause", "timeout", "elapsed", elapsed)
		w.markDead()
		p.replace(w)
	}
}
