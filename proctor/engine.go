package proctor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/xerrors"
)

// Detector locates faces and their 68 landmarks in a frame. A frame with
// no face returns an empty result, not an error.
type Detector interface {
	Detect(ctx context.Context, frame Frame) ([]FaceDetection, error)
}

// CycleResult is what one decision cycle observed and decided. It feeds the
// overlay and the status endpoints.
type CycleResult struct {
	Timestamp         time.Time       `json:"timestamp"`
	Gaze              GazeState       `json:"gaze"`
	LipOpen           bool            `json:"lipOpen"`
	AudioActive       bool            `json:"audioActive"`
	MicAvailable      bool            `json:"micAvailable"`
	LipsTalking       bool            `json:"lipsTalking"`
	AudioTalking      bool            `json:"audioTalking"`
	LipCheating       bool            `json:"lipCheating"`
	PersonCount       int             `json:"personCount"`
	DetectionTimedOut bool            `json:"detectionTimedOut"`
	Faces             []FaceDetection `json:"-"`
	Events            []CheatingEvent `json:"events,omitempty"`
}

// Engine runs the per-frame fusion: detection, gaze, lips, persons,
// smoothing and the decision rules. Evaluate must be called from a single
// goroutine in frame order.
type Engine struct {
	cfg      Config
	detector Detector
	gaze     GazeClassifier
	lip      LipDetector
	window   *SmoothingWindow
	tracker  *PersonTracker
	decision *DecisionEngine
	events   *EventLog
	audio    *AudioSignal
	tracer   trace.Tracer
	now      func() time.Time
}

type EngineOption func(*Engine)

// WithClock replaces the wall clock used to stamp events.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// NewEngine wires the components around an owned event log and the audio
// cell published by the audio loop. audio may be nil when no microphone is
// configured.
func NewEngine(cfg Config, detector Detector, events *EventLog, audio *AudioSignal, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if detector == nil {
		return nil, xerrors.New("a face detector is required")
	}
	if events == nil {
		return nil, xerrors.New("an event log is required")
	}
	if audio == nil {
		audio = &AudioSignal{}
	}

	e := &Engine{
		cfg:      cfg,
		detector: detector,
		gaze:     NewGazeClassifier(cfg),
		lip:      NewLipDetector(cfg),
		window:   NewSmoothingWindow(cfg.WindowSize, cfg.WindowRatio),
		tracker:  NewPersonTracker(cfg.MatchIoU),
		decision: NewDecisionEngine(cfg),
		events:   events,
		audio:    audio,
		tracer:   noop.NewTracerProvider().Tracer("proctor"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Events() *EventLog { return e.events }

func (e *Engine) Audio() *AudioSignal { return e.audio }

// Evaluate runs one decision cycle on frame. A malformed frame or a failed
// detection skips the cycle and returns an error; a detection that outlives
// the per-frame deadline is treated as "no face" and the cycle proceeds.
func (e *Engine) Evaluate(ctx context.Context, frame Frame) (CycleResult, error) {
	ctx, span := e.tracer.Start(ctx, "proctor.evaluate")
	defer span.End()

	if !frame.Valid() {
		span.SetStatus(codes.Error, "invalid frame")
		return CycleResult{}, xerrors.Errorf("%dx%d frame with %d bytes: %w", frame.Width, frame.Height, len(frame.Data), ErrFrameDecode)
	}

	faces, timedOut, err := e.detect(ctx, frame)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "detection failed")
		return CycleResult{}, err
	}

	primary := primaryFace(faces)
	result := CycleResult{
		Timestamp:         e.now(),
		Gaze:              e.gaze.Classify(primary, frame.Width),
		LipOpen:           e.lip.Open(primary),
		AudioActive:       e.audio.Active(),
		MicAvailable:      e.audio.Available(),
		PersonCount:       e.tracker.Update(faces),
		DetectionTimedOut: timedOut,
		Faces:             faces,
	}
	result.LipsTalking, result.AudioTalking = e.window.Push(result.LipOpen, result.AudioActive)
	result.LipCheating = LipCheating(result.LipsTalking, result.AudioTalking)

	result.Events = e.decision.Decide(Evidence{
		Gaze:         result.Gaze,
		LipsTalking:  result.LipsTalking,
		AudioTalking: result.AudioTalking,
		PersonCount:  result.PersonCount,
	}, result.Timestamp)
	e.events.Append(result.Events...)

	span.SetAttributes(
		attribute.Int("proctor.faces", len(faces)),
		attribute.Int("proctor.persons", result.PersonCount),
		attribute.Bool("proctor.gaze.tracking", result.Gaze.Tracking),
		attribute.String("proctor.gaze.direction", result.Gaze.Direction.String()),
		attribute.Bool("proctor.lip_cheating", result.LipCheating),
		attribute.Int("proctor.events", len(result.Events)),
	)
	return result, nil
}

type detection struct {
	faces []FaceDetection
	err   error
}

func (e *Engine) detect(ctx context.Context, frame Frame) ([]FaceDetection, bool, error) {
	dctx, cancel := context.WithTimeout(ctx, e.cfg.DetectionTimeout)
	defer cancel()

	// The deadline holds even for a detector that ignores its context; a
	// late answer is dropped.
	done := make(chan detection, 1)
	go func() {
		faces, err := e.detector.Detect(dctx, frame)
		done <- detection{faces, err}
	}()

	var faces []FaceDetection
	var err error
	select {
	case d := <-done:
		faces, err = d.faces, d.err
	case <-dctx.Done():
		err = dctx.Err()
	}
	if err == nil {
		return faces, false, nil
	}

	// The session itself is going away; not a per-frame deadline.
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	if xerrors.Is(err, ErrDetectionTimeout) || xerrors.Is(err, context.DeadlineExceeded) {
		return nil, true, nil
	}
	if xerrors.Is(err, ErrFrameDecode) {
		return nil, false, err
	}
	return nil, false, xerrors.Errorf("face detection: %w", err)
}

// primaryFace picks the largest face so the reading does not depend on the
// order the detector reports faces in.
func primaryFace(faces []FaceDetection) *FaceDetection {
	var best *FaceDetection
	for i := range faces {
		f := &faces[i]
		if best == nil || f.Area() > best.Area() ||
			(f.Area() == best.Area() && lessRect(f.Box, best.Box)) {
			best = f
		}
	}
	return best
}
