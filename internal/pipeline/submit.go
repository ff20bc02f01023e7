package pipeline

import (
	"log/slog"

	"github.com/randomizedcoder/go-decode-pipeline/internal/decoder"
)

// SubmitDecodeUnit hands one compressed frame to the pipeline. It returns
// true when the frame was accepted: copied into a hardware buffer, or
// queued for the poll loop in sync mode. False means the frame was dropped
// and the caller should expect NeedsIDR to be raised.
//
// Called from the network receive path; the wait bounds are tuned so a
// wedged decoder never stalls the receiver for more than tens of
// milliseconds.
func (p *Pipeline) SubmitDecodeUnit(unit decoder.DecodeUnit) bool {
	if !p.running.Load() {
		p.dropSampler.Log(slog.LevelDebug, "frame_rejected_not_running",
			"frame", unit.FrameNumber)
		return false
	}
	if len(unit.Payload) == 0 {
		p.dropSampler.Log(slog.LevelWarn, "frame_rejected_empty",
			"frame", unit.FrameNumber)
		return false
	}

	if unit.FrameType == decoder.FrameTypeI {
		p.needsIDR.Store(false)
	}

	if p.syncActive {
		return p.submitSync(unit)
	}
	return p.submitAsync(unit)
}

// submitAsync copies the frame into a free input slot tracked by the
// coordinator. The acquire wait is bounded; a starved pool drops the frame
// rather than stalling the receiver.
func (p *Pipeline) submitAsync(unit decoder.DecodeUnit) bool {
	cfg := &p.activeCfg
	for attempt := 0; attempt <= cfg.PushRetryLimit; attempt++ {
		slot, ok := p.coord.AcquireInput(cfg.AsyncAcquireTimeout)
		if !ok {
			p.dropFrame(&unit, "input_slot_timeout")
			return false
		}
		if err := p.fillAndPush(slot, &unit); err != nil {
			p.submitSampler.Log(slog.LevelWarn, "frame_push_failed",
				"frame", unit.FrameNumber,
				"attempt", attempt,
				"error", err,
			)
			continue
		}
		p.recordAccepted(&unit)
		return true
	}
	p.dropFrame(&unit, "push_retries_exhausted")
	return false
}

// submitSync tries direct submission first: a short bounded dequeue from
// the decoder, repeated a few times. When the decoder has no free buffer
// the frame degrades to the pending queue, where the poll loop picks it up.
// The queue is bounded drop-oldest, so sustained decoder stalls shed the
// stalest frames first.
//
// Direct submission is only attempted while the pending queue is empty:
// frames must reach the decoder in arrival order, and pushing a fresh
// frame past queued predecessors would reorder the stream.
func (p *Pipeline) submitSync(unit decoder.DecodeUnit) bool {
	cfg := &p.activeCfg
	for attempt := 0; p.coord.PendingLen() == 0 && attempt < cfg.DirectSubmitAttempts; attempt++ {
		slot, err := p.backend.DequeueInput(cfg.DirectSubmitTimeout)
		if err != nil {
			continue
		}
		if err := p.fillAndPush(slot, &unit); err != nil {
			p.submitSampler.Log(slog.LevelWarn, "frame_push_failed",
				"frame", unit.FrameNumber,
				"attempt", attempt,
				"error", err,
			)
			continue
		}
		p.recordAccepted(&unit)
		return true
	}

	evicted, dropped := p.coord.PendingPush(unit)
	if dropped {
		p.dropFrame(&evicted, "pending_queue_evicted")
	}
	p.recordAccepted(&unit)
	return true
}

// fillAndPush copies the payload into the slot and queues it for decode.
// On push failure the backend reclaims the slot.
func (p *Pipeline) fillAndPush(slot decoder.Slot, unit *decoder.DecodeUnit) error {
	attrs := decoder.InputAttrs{
		PTS:      unit.PTS,
		Keyframe: unit.FrameType == decoder.FrameTypeI,
	}
	if err := p.backend.FillInput(slot, unit.Payload, attrs); err != nil {
		// Fill failed with the slot still in hand. In async mode the slot
		// goes back to the coordinator; in sync mode the next dequeue
		// cycle recovers it from the backend.
		if !p.syncActive {
			if aerr := p.coord.AddFree(slot); aerr != nil {
				p.logger.Warn("slot_return_failed", "slot", slot.Index, "error", aerr)
			}
		}
		return err
	}
	return p.backend.PushInput(slot)
}

// recordAccepted updates accounting for a frame the pipeline now owns.
func (p *Pipeline) recordAccepted(unit *decoder.DecodeUnit) {
	p.stats.RecordSubmit(unit.PTS, unit.Size(),
		unit.FrameType == decoder.FrameTypeI, unit.HostLatency)
}

// dropFrame updates accounting for a frame the pipeline gave up on. Any
// drop forces a keyframe request: the decoder cannot reconstruct delta
// frames referencing the missing one.
func (p *Pipeline) dropFrame(unit *decoder.DecodeUnit, reason string) {
	p.stats.RecordDropped()
	p.needsIDR.Store(true)
	p.dropSampler.Log(slog.LevelWarn, "frame_dropped",
		"frame", unit.FrameNumber,
		"type", unit.FrameType.String(),
		"reason", reason,
	)
}
