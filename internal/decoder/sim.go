package decoder

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// SimConfig controls the simulated backend's behavior.
type SimConfig struct {
	// SyncSupported controls the SupportsSync capability probe.
	SyncSupported bool

	// DecodeDelay is the simulated hardware decode time per delta frame.
	DecodeDelay time.Duration

	// KeyframeDelayFactor multiplies DecodeDelay for keyframes. Zero means 1.
	KeyframeDelayFactor int

	// FailPushEvery makes every Nth PushInput fail (0 = never).
	FailPushEvery int

	// FailRenderEvery makes every Nth render call fail (0 = never).
	FailRenderEvery int

	// FailConfigure makes Configure fail, for codec step-down tests.
	FailConfigure bool

	// InputStarved suppresses input buffer availability entirely,
	// simulating a wedged decoder that never frees input slots.
	InputStarved bool
}

// simWork is one pushed frame travelling through the simulated decoder.
type simWork struct {
	slotIndex int
	attrs     InputAttrs
	size      int
}

// Sim is a deterministic in-process decoder backend used by tests and the
// soak CLI. It honors the Backend contract: bounded input/output pools,
// in-order output delivery, and async callbacks that fire from a dedicated
// goroutine (never the caller's).
type Sim struct {
	cfg SimConfig

	mu         sync.Mutex
	configured bool
	prepared   bool
	running    bool
	format     Format
	surface    Surface
	sink       EventSink
	hdrMeta    *HDRMetadata

	// Input pool. Free slot indices flow through freeInputs; a pushed
	// slot's index returns to the pool once the decode loop consumes it.
	freeInputs chan Slot

	// Decode queue and output delivery. A single decode goroutine keeps
	// outputs in push order.
	work    chan simWork
	outputs chan OutputSlot
	done    chan struct{}
	wg      sync.WaitGroup

	// Outstanding output buffers not yet rendered or freed. The decode
	// loop stalls when the pool is exhausted, like real hardware.
	outMu       sync.Mutex
	outCond     *sync.Cond
	outstanding int

	outIndex atomic.Int64

	// Attrs staged by FillInput, consumed by PushInput.
	stagedMu sync.Mutex
	staged   map[int]simWork

	// Order of accepted pushes, for submission-order assertions.
	pushMu    sync.Mutex
	pushedPTS []int64

	// Counters for assertions.
	pushes         atomic.Int64
	decoded        atomic.Int64
	renderAttempts atomic.Int64
	rendered       atomic.Int64
	freed          atomic.Int64
	flushes        atomic.Int64
	renderErr      atomic.Int64
}

// NewSim creates a simulated backend.
func NewSim(cfg SimConfig) *Sim {
	s := &Sim{cfg: cfg, staged: make(map[int]simWork)}
	s.outCond = sync.NewCond(&s.outMu)
	return s
}

// Configure validates and stores the session format.
func (s *Sim) Configure(f Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.FailConfigure {
		return fmt.Errorf("sim: codec %s rejected by platform", f.Codec)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("sim: invalid dimensions %dx%d", f.Width, f.Height)
	}
	if f.BufferDepth < 1 {
		return fmt.Errorf("sim: invalid buffer depth %d", f.BufferDepth)
	}
	s.format = f
	s.configured = true
	return nil
}

// Prepare allocates the buffer pools.
func (s *Sim) Prepare() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.configured {
		return fmt.Errorf("sim: prepare before configure")
	}
	depth := s.format.BufferDepth
	s.freeInputs = make(chan Slot, depth)
	s.work = make(chan simWork, depth)
	s.outputs = make(chan OutputSlot, depth)
	s.prepared = true
	return nil
}

// Start launches the decode goroutine and publishes the input pool.
func (s *Sim) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.prepared {
		return fmt.Errorf("sim: start before prepare")
	}
	if s.surface == nil {
		return fmt.Errorf("sim: start without surface")
	}
	if s.running {
		return nil
	}
	s.running = true
	s.done = make(chan struct{})

	// Drain leftovers from a previous session before republishing pools.
	for {
		select {
		case <-s.freeInputs:
			continue
		case <-s.work:
			continue
		case <-s.outputs:
			continue
		default:
		}
		break
	}
	s.stagedMu.Lock()
	s.staged = make(map[int]simWork)
	s.stagedMu.Unlock()
	s.outMu.Lock()
	s.outstanding = 0
	s.outMu.Unlock()

	// With a sink registered the sink is the sole distribution path for
	// input slots; without one they flow through the DequeueInput channel.
	if !s.cfg.InputStarved {
		for i := 0; i < s.format.BufferDepth; i++ {
			slot := Slot{Index: i, Handle: make([]byte, 0, 1<<16)}
			if s.sink != nil {
				s.sink.OnInputAvailable(slot)
			} else {
				s.freeInputs <- slot
			}
		}
	}

	s.wg.Add(1)
	go s.decodeLoop(s.done)
	return nil
}

// Stop halts the decode goroutine. Pools survive for a later Start.
func (s *Sim) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.done)
	s.mu.Unlock()

	s.outCond.Broadcast()
	s.wg.Wait()
	return nil
}

// Flush discards queued work and pending outputs. Input slots held by
// discarded work return to the free pool. The decoder stays configured
// and running.
func (s *Sim) Flush() error {
	s.flushes.Add(1)

	var reclaimed []int
	s.mu.Lock()
	for {
		select {
		case w := <-s.work:
			reclaimed = append(reclaimed, w.slotIndex)
			continue
		default:
		}
		break
	}
	for {
		select {
		case <-s.outputs:
			s.outMu.Lock()
			s.outstanding--
			s.outMu.Unlock()
			continue
		default:
		}
		break
	}
	s.mu.Unlock()

	for _, idx := range reclaimed {
		s.recycleInput(idx)
	}
	s.outCond.Broadcast()
	return nil
}

// Destroy tears everything down.
func (s *Sim) Destroy() error {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configured = false
	s.prepared = false
	s.sink = nil
	s.hdrMeta = nil
	return nil
}

// SetSurface binds the presentation target.
func (s *Sim) SetSurface(surface Surface) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surface = surface
	return nil
}

// ReleaseSurface unbinds the presentation target.
func (s *Sim) ReleaseSurface() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surface = nil
}

// SetHDRMetadata stores forwarded HDR10 static metadata.
func (s *Sim) SetHDRMetadata(meta HDRMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := meta
	s.hdrMeta = &m
	return nil
}

// HDRMetadataSet reports whether HDR metadata was forwarded.
func (s *Sim) HDRMetadataSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hdrMeta != nil
}

// SupportsSync reports the configured sync capability.
func (s *Sim) SupportsSync() bool { return s.cfg.SyncSupported }

// RegisterSink installs the async event sink.
func (s *Sim) RegisterSink(sink EventSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
	return nil
}

// DequeueInput hands out a free input slot, waiting up to timeout.
func (s *Sim) DequeueInput(timeout time.Duration) (Slot, error) {
	select {
	case slot := <-s.freeInputs:
		return slot, nil
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case slot := <-s.freeInputs:
		return slot, nil
	case <-t.C:
		return Slot{}, ErrTimeout
	}
}

// DequeueOutput hands out a decoded output slot, waiting up to timeout.
func (s *Sim) DequeueOutput(timeout time.Duration) (OutputSlot, error) {
	select {
	case out := <-s.outputs:
		return out, nil
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case out := <-s.outputs:
		return out, nil
	case <-t.C:
		return OutputSlot{}, ErrTimeout
	}
}

// FillInput stages payload bytes into the slot.
func (s *Sim) FillInput(slot Slot, payload []byte, attrs InputAttrs) error {
	if len(payload) == 0 {
		return fmt.Errorf("sim: empty payload for slot %d", slot.Index)
	}
	s.stagedMu.Lock()
	s.staged[slot.Index] = simWork{slotIndex: slot.Index, attrs: attrs, size: len(payload)}
	s.stagedMu.Unlock()
	return nil
}

// PushInput queues the filled slot for decoding.
func (s *Sim) PushInput(slot Slot) error {
	n := s.pushes.Add(1)
	if s.cfg.FailPushEvery > 0 && n%int64(s.cfg.FailPushEvery) == 0 {
		// Push rejected: the backend reclaims the slot.
		s.stagedMu.Lock()
		delete(s.staged, slot.Index)
		s.stagedMu.Unlock()
		s.recycleInput(slot.Index)
		return fmt.Errorf("sim: push rejected for slot %d", slot.Index)
	}
	s.mu.Lock()
	running := s.running
	done := s.done
	s.mu.Unlock()
	if !running {
		return ErrStopped
	}
	s.stagedMu.Lock()
	w, ok := s.staged[slot.Index]
	delete(s.staged, slot.Index)
	s.stagedMu.Unlock()
	if !ok {
		return fmt.Errorf("sim: push of unfilled slot %d", slot.Index)
	}
	select {
	case s.work <- w:
		s.pushMu.Lock()
		s.pushedPTS = append(s.pushedPTS, w.attrs.PTS)
		s.pushMu.Unlock()
		return nil
	case <-done:
		return ErrStopped
	}
}

// decodeLoop consumes pushed frames in order, applies the simulated decode
// delay, and delivers outputs.
func (s *Sim) decodeLoop(done chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-done:
			return
		case w := <-s.work:
			// Input bytes consumed: the slot returns to the pool.
			s.recycleInput(w.slotIndex)

			delay := s.cfg.DecodeDelay
			if w.attrs.Keyframe && s.cfg.KeyframeDelayFactor > 1 {
				delay *= time.Duration(s.cfg.KeyframeDelayFactor)
			}
			if delay > 0 {
				select {
				case <-done:
					return
				case <-time.After(delay):
				}
			}

			if !s.waitOutputCapacity(done) {
				return
			}
			out := OutputSlot{
				Index: int(s.outIndex.Add(1)) % s.format.BufferDepth,
				PTS:   w.attrs.PTS,
			}
			s.decoded.Add(1)
			s.mu.Lock()
			sink := s.sink
			s.mu.Unlock()
			if sink != nil {
				sink.OnOutputAvailable(out)
			} else {
				select {
				case s.outputs <- out:
				case <-done:
					return
				}
			}
		}
	}
}

// recycleInput returns a consumed input slot to the free pool. The sink
// hears about every recycle; the channel only feeds the poll path.
func (s *Sim) recycleInput(index int) {
	if s.cfg.InputStarved {
		return
	}
	slot := Slot{Index: index, Handle: make([]byte, 0, 1<<16)}
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink.OnInputAvailable(slot)
		return
	}
	select {
	case s.freeInputs <- slot:
	default:
		// Pool already full; drop the duplicate.
	}
}

// waitOutputCapacity blocks until an output buffer is available or the
// backend stops. Mirrors real hardware stalling when the app stops
// consuming output.
func (s *Sim) waitOutputCapacity(done chan struct{}) bool {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	for s.outstanding >= s.format.BufferDepth {
		select {
		case <-done:
			return false
		default:
		}
		s.outCond.Wait()
	}
	s.outstanding++
	return true
}

// releaseOutput returns an output buffer to the decoder.
func (s *Sim) releaseOutput() {
	s.outMu.Lock()
	if s.outstanding > 0 {
		s.outstanding--
	}
	s.outCond.Signal()
	s.outMu.Unlock()
}

// RenderOutput presents the buffer immediately and returns it to the pool.
func (s *Sim) RenderOutput(out OutputSlot) error {
	return s.render(out)
}

// RenderOutputAt presents the buffer at the given deadline. The simulation
// does not sleep until the deadline; it validates and records the call.
func (s *Sim) RenderOutputAt(out OutputSlot, at time.Time) error {
	return s.render(out)
}

func (s *Sim) render(out OutputSlot) error {
	n := s.renderAttempts.Add(1)
	if s.cfg.FailRenderEvery > 0 && n%int64(s.cfg.FailRenderEvery) == 0 {
		s.renderErr.Add(1)
		return fmt.Errorf("sim: render failed for output %d", out.Index)
	}
	s.rendered.Add(1)
	s.releaseOutput()
	return nil
}

// FreeOutput returns the buffer without presenting it.
func (s *Sim) FreeOutput(out OutputSlot) error {
	s.freed.Add(1)
	s.releaseOutput()
	return nil
}

// Capabilities reports what the simulation supports.
func (s *Sim) Capabilities() Capabilities {
	return Capabilities{
		Codecs:    []Codec{CodecH264, CodecHEVC, CodecAV1},
		MaxWidth:  3840,
		MaxHeight: 2160,
		MaxFPS:    120,
		SyncMode:  s.cfg.SyncSupported,
		HDR:       true,
	}
}

// PushedPTS returns the PTS of every frame accepted by PushInput, in
// acceptance order.
func (s *Sim) PushedPTS() []int64 {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	return append([]int64(nil), s.pushedPTS...)
}

// Rendered returns the number of successfully presented frames.
func (s *Sim) Rendered() int64 { return s.rendered.Load() }

// Decoded returns the number of frames the decode loop completed.
func (s *Sim) Decoded() int64 { return s.decoded.Load() }

// Freed returns the number of force-freed output buffers.
func (s *Sim) Freed() int64 { return s.freed.Load() }

// Flushes returns how many times Flush was called.
func (s *Sim) Flushes() int64 { return s.flushes.Load() }

// SimSurface is an in-process Surface for tests and soak runs.
type SimSurface struct {
	id uint64

	mu       sync.Mutex
	rateMin  float64
	rateMax  float64
	rateSet  bool
	vrrCalls int
}

// NewSimSurface creates a surface with the given platform ID.
func NewSimSurface(id uint64) *SimSurface {
	return &SimSurface{id: id}
}

// ID returns the surface identifier.
func (s *SimSurface) ID() uint64 { return s.id }

// SetExpectedFrameRateRange records the VRR hint.
func (s *SimSurface) SetExpectedFrameRateRange(min, max, expected float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateMin = min
	s.rateMax = max
	s.rateSet = true
	s.vrrCalls++
	return nil
}

// FrameRateRange returns the last VRR hint and whether one was set.
func (s *SimSurface) FrameRateRange() (min, max float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rateMin, s.rateMax, s.rateSet
}
