package tts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/go-speechkit/internal/audio"
	"github.com/example/go-speechkit/internal/text"
)

// State is the scheduler's position in a run.
type State int

const (
	StateIdle State = iota
	StatePausing
	StateSynthesizing
	StateWaitingForPlayback
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePausing:
		return "pausing"
	case StateSynthesizing:
		return "synthesizing"
	case StateWaitingForPlayback:
		return "waiting_for_playback"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is a snapshot of the scheduler.
type Status struct {
	State      State
	Generation uint64
	RunID      string
	Segment    int
	PauseUntil time.Time
}

type SchedulerOption func(*Scheduler)

func WithDelays(d text.Delays) SchedulerOption {
	return func(s *Scheduler) { s.delays = d }
}

func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.poll = d
		}
	}
}

// WithSleep replaces the timer used for pauses and playback polling.
func WithSleep(fn func(context.Context, time.Duration) error) SchedulerOption {
	return func(s *Scheduler) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// WithChunkErrorHandler observes chunks that were skipped.
func WithChunkErrorHandler(fn func(*ChunkError)) SchedulerOption {
	return func(s *Scheduler) { s.onChunkError = fn }
}

// Scheduler speaks text chunk by chunk: content segments are synthesized and
// played to completion, delimiter segments become pauses. Each Speak starts
// a new generation; a run whose generation is no longer current stops at its
// next step and never touches the player again.
type Scheduler struct {
	synth        ChunkSynthesizer
	player       audio.Player
	delays       text.Delays
	poll         time.Duration
	sleep        func(context.Context, time.Duration) error
	onChunkError func(*ChunkError)

	mu     sync.Mutex
	gen    uint64
	active bool
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(synth ChunkSynthesizer, player audio.Player, opts ...SchedulerOption) (*Scheduler, error) {
	if synth == nil {
		return nil, fmt.Errorf("%w: synthesizer is nil", ErrNotInitialized)
	}

	if player == nil {
		return nil, fmt.Errorf("%w: audio player is nil", ErrNotInitialized)
	}

	s := &Scheduler{
		synth:  synth,
		player: player,
		delays: text.DelaysFromSeconds(0.1, 0.5, 0.6),
		poll:   20 * time.Millisecond,
		sleep:  sleepContext,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Speak cancels any run in progress and starts speaking input. It returns
// once the run is scheduled; use Wait to block until it ends.
func (s *Scheduler) Speak(ctx context.Context, input string) error {
	normalized, err := text.Normalize(input)
	if err != nil {
		// Rejected input still supersedes the current run.
		s.Stop()
		return err
	}

	segments := text.Segments(normalized)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.stopLocked()
	s.gen++
	gen := s.gen
	s.active = true
	s.cancel = cancel
	s.done = done
	s.status = Status{State: StateIdle, Generation: gen, RunID: uuid.NewString()}
	runID := s.status.RunID
	s.mu.Unlock()

	slog.Info("tts run started", "run", runID, "generation", gen, "segments", len(segments))

	go s.run(runCtx, gen, segments, done)

	return nil
}

// Stop cancels the current run and silences the player.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.gen++
	s.active = false
	s.status = Status{State: StateIdle, Generation: s.gen}
}

// Wait blocks until the most recent run has ended.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsPlaying reports whether a run is still working through its chunks.
func (s *Scheduler) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

func (s *Scheduler) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	s.player.Stop()
}

func (s *Scheduler) run(ctx context.Context, gen uint64, segments []text.Segment, done chan struct{}) {
	defer close(done)
	defer s.finish(ctx, gen)

	rate := s.synth.SampleRate()

	for i, seg := range segments {
		if !s.advance(ctx, gen, i) {
			return
		}

		switch seg.Kind {
		case text.KindDelay:
			pause, ok := s.delays.PauseFor(seg.Payload)
			if !ok || pause <= 0 {
				continue
			}

			s.setState(gen, StatePausing, time.Now().Add(pause))

			if err := s.sleep(ctx, pause); err != nil {
				return
			}

		case text.KindContent:
			chunk := text.CleanChunk(seg.Payload)
			if chunk == "" {
				continue
			}

			s.setState(gen, StateSynthesizing, time.Time{})

			pcm, err := s.synth.SynthesizeChunk(ctx, chunk)
			if err != nil {
				if ctx.Err() != nil {
					return
				}

				s.chunkFailed(&ChunkError{Index: i, Text: chunk, Err: err})

				continue
			}

			played, err := s.play(gen, pcm, rate)
			if err != nil {
				s.chunkFailed(&ChunkError{Index: i, Text: chunk, Err: err})
				continue
			}

			if !played {
				return
			}

			s.setState(gen, StateWaitingForPlayback, time.Time{})

			if !s.waitPlayback(ctx, gen) {
				return
			}
		}
	}
}

// advance is the per-step cancellation point.
func (s *Scheduler) advance(ctx context.Context, gen uint64, segment int) bool {
	if ctx.Err() != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return false
	}

	s.status.Segment = segment

	return true
}

func (s *Scheduler) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return gen == s.gen
}

func (s *Scheduler) setState(gen uint64, state State, pauseUntil time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return
	}

	s.status.State = state
	s.status.PauseUntil = pauseUntil
}

// play hands pcm to the player unless the run has been superseded.
func (s *Scheduler) play(gen uint64, pcm []float32, rate int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return false, nil
	}

	if err := s.player.Play(pcm, rate); err != nil {
		return true, fmt.Errorf("playback: %w", err)
	}

	return true, nil
}

func (s *Scheduler) waitPlayback(ctx context.Context, gen uint64) bool {
	for s.player.IsPlaying() {
		if err := s.sleep(ctx, s.poll); err != nil {
			return false
		}

		if !s.current(gen) {
			return false
		}
	}

	return true
}

func (s *Scheduler) finish(ctx context.Context, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return
	}

	if ctx.Err() != nil {
		s.player.Stop()
	}

	s.active = false
	s.status.State = StateDone
	s.status.PauseUntil = time.Time{}

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	slog.Info("tts run finished", "run", s.status.RunID, "generation", gen)
}

func (s *Scheduler) chunkFailed(err *ChunkError) {
	slog.Warn("skipping chunk", "index", err.Index, "text", err.Text, "error", err.Err)

	if s.onChunkError != nil {
		s.onChunkError(err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
