package asr

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/example/go-speechkit/internal/onnx"
	"github.com/example/go-speechkit/internal/telemetry"
	"github.com/example/go-speechkit/internal/tokenizer"
)

// Manifest graph names of a Whisper model set.
const (
	GraphSpectrogram = "logmel"
	GraphEncoder     = "encoder"
	GraphDecoder1    = "decoder1"
	GraphDecoder2    = "decoder2"
)

// Graph I/O names. The spectrogram and encoder inputs fall back to these
// when the manifest does not declare them; undeclared single outputs are
// taken whatever their name.
const (
	spectrogramInput    = "audio"
	encoderInput        = "input_features"
	inputIDs            = "input_ids"
	encoderHiddenStates = "encoder_hidden_states"
	logitsOutput        = "logits"
)

// SessionState is the decode loop's position.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionEncoding
	SessionPromptPass
	SessionDecodeStep
	SessionDone
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionEncoding:
		return "encoding"
	case SessionPromptPass:
		return "prompt_pass"
	case SessionDecodeStep:
		return "decode_step"
	case SessionDone:
		return "done"
	default:
		return fmt.Sprintf("session_state(%d)", int(s))
	}
}

// Progress is handed to the text sink after every decode step.
type Progress struct {
	SessionID string
	Step      int
	Count     int
	Token     int64
	Text      string
}

// Result is the outcome of a finished session.
type Result struct {
	SessionID  string
	Text       string
	Tokens     []int64
	Steps      int
	StopReason StopReason
}

type sessionGraphs struct {
	spectrogram      onnx.GraphRunner
	encoder          onnx.GraphRunner
	decoder1         onnx.GraphRunner
	decoder2         onnx.GraphRunner
	argmax           onnx.GraphRunner
	spectrogramInput  string
	spectrogramOutput string
	encoderInput      string
	encoderOutput     string
}

// Session is one recognition run. Its fields are owned by the goroutine
// driving it; the recognizer only cancels it and waits on released.
type Session struct {
	ID string

	engine  *onnx.Engine
	graphs  sessionGraphs
	vocab   tokenizer.Decoder
	metrics *telemetry.Metrics
	sink    func(Progress)

	tokens     []int64
	count      int
	lastToken  int64
	encoded    *onnx.Tensor
	transcribe bool
	text       strings.Builder
	steps      int
	state      SessionState

	cancel      context.CancelFunc
	released    chan struct{}
	releaseOnce sync.Once
}

func newSession(id string, prompt [promptLength]int64, capacity int, engine *onnx.Engine, graphs sessionGraphs, vocab tokenizer.Decoder) *Session {
	s := &Session{
		ID:         id,
		engine:     engine,
		graphs:     graphs,
		vocab:      vocab,
		tokens:     make([]int64, capacity),
		lastToken:  TokenNoTimestamps,
		transcribe: true,
		released:   make(chan struct{}),
	}

	s.count = copy(s.tokens, prompt[:])

	return s
}

// run encodes samples and decodes until EOT or the token buffer is full.
func (s *Session) run(ctx context.Context, samples []float32) (StopReason, error) {
	defer func() { s.state = SessionDone }()

	if err := s.encode(ctx, samples); err != nil {
		return s.abort(ctx, 0, err)
	}

	s.state = SessionPromptPass

	for s.transcribe && s.count < len(s.tokens)-1 {
		if err := yield(ctx); err != nil {
			return s.abort(ctx, s.steps+1, err)
		}

		index, err := s.step(ctx)
		if err != nil {
			return s.abort(ctx, s.steps+1, err)
		}

		s.tokens[s.count] = s.lastToken
		s.lastToken = index
		s.count++
		s.steps++
		s.state = SessionDecodeStep
		s.metrics.DecodeStep(ctx)

		if index == TokenEOT {
			s.transcribe = false
		} else if index < int64(s.vocab.Size()) {
			piece, err := s.vocab.Decode(index)
			if err == nil {
				s.text.WriteString(piece)
			}
		}

		if s.sink != nil {
			s.sink(Progress{
				SessionID: s.ID,
				Step:      s.steps,
				Count:     s.count,
				Token:     index,
				Text:      s.text.String(),
			})
		}
	}

	if s.transcribe {
		return StopCapacity, nil
	}

	return StopEOT, nil
}

func (s *Session) abort(ctx context.Context, step int, err error) (StopReason, error) {
	reason := StopError
	if ctx.Err() != nil {
		reason = StopCancelled
	}

	s.transcribe = false

	return reason, &SessionError{SessionID: s.ID, Step: step, Err: err}
}

// encode runs the spectrogram and encoder graphs once and keeps the encoder
// output for every decode step.
func (s *Session) encode(ctx context.Context, samples []float32) error {
	s.state = SessionEncoding

	in, err := onnx.NewTensor(samples, []int64{1, int64(len(samples))})
	if err != nil {
		return fmt.Errorf("audio tensor: %w", err)
	}

	out, err := s.graphs.spectrogram.Run(ctx, map[string]*onnx.Tensor{s.graphs.spectrogramInput: in})
	if err != nil {
		return fmt.Errorf("spectrogram: %w", err)
	}

	logmel, err := onnx.Output(out, s.graphs.spectrogramOutput)
	if err != nil {
		return fmt.Errorf("spectrogram: %w", err)
	}

	out, err = s.graphs.encoder.Run(ctx, map[string]*onnx.Tensor{s.graphs.encoderInput: logmel})
	if err != nil {
		return fmt.Errorf("encoder: %w", err)
	}

	s.encoded, err = onnx.Output(out, s.graphs.encoderOutput)
	if err != nil {
		return fmt.Errorf("encoder: %w", err)
	}

	return nil
}

// step runs decoder1 over the accepted tokens, decoder2 over the last token
// and the fresh cache, and returns the greedy next token.
func (s *Session) step(ctx context.Context) (int64, error) {
	ids, err := onnx.NewTensor(s.tokens[:s.count], []int64{1, int64(s.count)})
	if err != nil {
		return 0, fmt.Errorf("input_ids tensor: %w", err)
	}

	out, err := s.graphs.decoder1.Run(ctx, map[string]*onnx.Tensor{
		inputIDs:            ids,
		encoderHiddenStates: s.encoded,
	})
	if err != nil {
		return 0, fmt.Errorf("decoder1: %w", err)
	}

	cache, err := CacheFromOutputs(out)
	if err != nil {
		return 0, err
	}

	last, err := onnx.NewTensor([]int64{s.lastToken}, []int64{1, 1})
	if err != nil {
		return 0, fmt.Errorf("last token tensor: %w", err)
	}

	in := map[string]*onnx.Tensor{inputIDs: last}
	cache.Feed(in)

	out, err = s.graphs.decoder2.Run(ctx, in)
	if err != nil {
		return 0, fmt.Errorf("decoder2: %w", err)
	}

	logits, err := onnx.Output(out, logitsOutput)
	if err != nil {
		return 0, fmt.Errorf("decoder2: %w", err)
	}

	out, err = s.graphs.argmax.Run(ctx, map[string]*onnx.Tensor{onnx.ArgMaxInput: logits})
	if err != nil {
		return 0, fmt.Errorf("argmax: %w", err)
	}

	idx, err := onnx.Output(out, onnx.ArgMaxOutput)
	if err != nil {
		return 0, fmt.Errorf("argmax: %w", err)
	}

	values, err := onnx.ExtractInt64(idx)
	if err != nil {
		return 0, fmt.Errorf("argmax: %w", err)
	}

	if len(values) == 0 {
		return 0, fmt.Errorf("argmax: empty result")
	}

	return values[len(values)-1], nil
}

func (s *Session) result(reason StopReason) Result {
	return Result{
		SessionID:  s.ID,
		Text:       s.text.String(),
		Tokens:     append([]int64(nil), s.tokens[:s.count]...),
		Steps:      s.steps,
		StopReason: reason,
	}
}

// release closes every runner the session opened and drops its tensors.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		s.engine.Close()
		s.graphs = sessionGraphs{}
		s.encoded = nil
		close(s.released)
	})
}

// yield lets other goroutines run between decode steps.
func yield(ctx context.Context) error {
	runtime.Gosched()
	return ctx.Err()
}
