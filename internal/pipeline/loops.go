package pipeline

import (
	"errors"
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-decode-pipeline/internal/decoder"
	"github.com/randomizedcoder/go-decode-pipeline/internal/metrics"
)

// event is one backend notification travelling through the async queue.
type eventKind int

const (
	evInputFree eventKind = iota
	evOutput
	evError
)

type event struct {
	kind eventKind
	slot decoder.Slot
	out  decoder.OutputSlot
	err  error
}

// backendSink adapts decoder callbacks to the event channel. Callbacks
// fire on the backend's threads; the sink only enqueues, never blocks.
type backendSink struct {
	p *Pipeline
}

func (s *backendSink) OnInputAvailable(slot decoder.Slot) {
	s.p.enqueueEvent(event{kind: evInputFree, slot: slot})
}

func (s *backendSink) OnOutputAvailable(out decoder.OutputSlot) {
	s.p.enqueueEvent(event{kind: evOutput, out: out})
}

func (s *backendSink) OnError(err error) {
	s.p.enqueueEvent(event{kind: evError, err: err})
}

func (p *Pipeline) enqueueEvent(ev event) {
	select {
	case p.events <- ev:
	default:
		// Channel full. Counted and sampled; blocking here would stall
		// the decoder's callback thread.
		p.eventOverflow.Add(1)
		p.errorSampler.Log(slog.LevelWarn, "event_queue_overflow",
			"kind", int(ev.kind))
	}
}

// eventLoop is the async-mode consumer: the single goroutine that touches
// the coordinator's free pool and the presentation path.
func (p *Pipeline) eventLoop(done chan struct{}) {
	defer p.wg.Done()
	for {
		select {
		case <-done:
			return
		case ev := <-p.events:
			switch ev.kind {
			case evInputFree:
				if err := p.coord.AddFree(ev.slot); err != nil {
					p.logger.Warn("duplicate_input_slot",
						"slot", ev.slot.Index, "error", err)
				}
			case evOutput:
				p.handleOutput(ev.out)
				if p.terminalFlag.Load() {
					return
				}
			case evError:
				p.errorSampler.Log(slog.LevelWarn, "decoder_error", "error", ev.err)
			}
		}
	}
}

// pollLoop is the sync-mode driver. Each cycle drains a batch of queued
// frames into decoder input buffers, then polls once for decoded output.
// An idle cycle parks on the coordinator for about one frame interval so
// a queued frame or shutdown wakes it immediately.
func (p *Pipeline) pollLoop() {
	defer p.wg.Done()
	cfg := &p.activeCfg
	frameInterval := cfg.FrameInterval()
	outputTimeout := frameInterval / 2
	if outputTimeout <= 0 {
		outputTimeout = 8 * time.Millisecond
	}

	for p.running.Load() {
		worked := false

		for i := 0; i < cfg.DrainBatchSize; i++ {
			unit, ok := p.coord.PendingPop()
			if !ok {
				break
			}
			slot, err := p.backend.DequeueInput(cfg.DirectSubmitTimeout)
			if err != nil {
				// No input buffer; the frame keeps its queue position.
				p.coord.PendingUnpop(unit)
				break
			}
			if err := p.fillAndPush(slot, &unit); err != nil {
				p.dropFrame(&unit, "queued_push_failed")
				continue
			}
			worked = true
		}

		out, err := p.backend.DequeueOutput(outputTimeout)
		switch {
		case err == nil:
			p.handleOutput(out)
			if p.terminalFlag.Load() {
				return
			}
			worked = true
		case errors.Is(err, decoder.ErrTimeout):
		case errors.Is(err, decoder.ErrStopped):
			return
		default:
			p.errorSampler.Log(slog.LevelWarn, "output_poll_failed", "error", err)
		}

		if !worked {
			p.coord.WaitWork(frameInterval)
		}
	}
}

// handleOutput presents one decoded frame. Render failures free the buffer
// so the decoder is never starved, and consecutive failures terminate the
// session: a surface that stopped accepting frames will not recover by
// retrying forever.
func (p *Pipeline) handleOutput(out decoder.OutputSlot) {
	if err := p.coord.CheckOutOutput(out.Index); err != nil {
		p.logger.Warn("duplicate_output_slot", "slot", out.Index, "error", err)
	}

	var renderErr error
	if target, scheduled := p.timer.TargetTime(out.PTS); scheduled {
		renderErr = p.backend.RenderOutputAt(out, target)
	} else {
		renderErr = p.backend.RenderOutput(out)
	}

	if renderErr != nil {
		p.outputSampler.Log(slog.LevelWarn, "render_failed",
			"slot", out.Index,
			"pts", out.PTS,
			"error", renderErr,
		)
		if err := p.backend.FreeOutput(out); err != nil {
			p.logger.Warn("output_free_failed", "slot", out.Index, "error", err)
		}
		_ = p.coord.ReleaseOutput(out.Index)
		p.stats.RecordDropped()
		p.needsIDR.Store(true)

		n := p.consecOutputErrs.Add(1)
		if int(n) >= p.activeCfg.OutputErrorLimit {
			p.failTerminal(ErrUnhealthy)
		}
		return
	}

	_ = p.coord.ReleaseOutput(out.Index)
	p.consecOutputErrs.Store(0)

	if ms, matched := p.stats.RecordDecoded(out.PTS); matched {
		if c := p.collectorRef(); c != nil {
			c.RecordDecodeTime(ms)
		}
	}
}

func (p *Pipeline) collectorRef() *metrics.Collector {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.collector
}
