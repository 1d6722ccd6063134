package pronunciation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/elocute/internal/observe"
	"github.com/MrWong99/elocute/pkg/assess"
	"github.com/MrWong99/elocute/pkg/audio"
	"github.com/MrWong99/elocute/pkg/features"
	"github.com/MrWong99/elocute/pkg/provider/stt"
)

// Config wires an [Engine]. Transcriber is required; everything else has a
// default.
type Config struct {
	// Decoder turns uploads into clips. Default: audio.NewDecoder with a
	// zero DecoderConfig (first channel, no ffmpeg).
	Decoder *audio.Decoder

	// Features configures the signal feature extractor.
	Features features.Params

	// Tunables configures style analysis, scoring and timeouts.
	Tunables Tunables

	// Transcriber is the speech-to-text collaborator.
	Transcriber stt.Provider
	// TranscriberName labels it in logs and metrics.
	TranscriberName string
	// Language is the recognition language passed to the transcriber.
	Language string
	// HintTarget passes the target word to the transcriber as a prompt.
	HintTarget bool

	// Assessor grades phonemes. Default: assess.Heuristic.
	Assessor assess.Assessor
	// AssessorName labels it in logs and metrics. Default: "assessor".
	AssessorName string

	// Metrics may be nil to disable metrics.
	Metrics *observe.Metrics

	// Now and NewID are test seams. Defaults: time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Request is one attempt to analyse.
type Request struct {
	UserID string
	Word   string
	// Audio is the encoded recording (WAV, Ogg/Opus, or anything the
	// decoder's ffmpeg fallback accepts).
	Audio []byte
}

// Engine runs the analysis pipeline. It holds no per-request state and is
// safe for concurrent use.
type Engine struct {
	decoder      *audio.Decoder
	extractor    *features.Extractor
	tunables     Tunables
	transcriber  *Transcriber
	assessor     assess.Assessor
	assessorName string
	metrics      *observe.Metrics
	now          func() time.Time
	newID        func() string
}

// ErrNoTranscriber is returned by NewEngine without a transcriber.
var ErrNoTranscriber = errors.New("pronunciation: transcriber is required")

// NewEngine validates cfg and builds an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Transcriber == nil {
		return nil, ErrNoTranscriber
	}
	tun := cfg.Tunables.withDefaults()

	e := &Engine{
		decoder:      cfg.Decoder,
		extractor:    features.NewExtractor(cfg.Features),
		tunables:     tun,
		assessor:     cfg.Assessor,
		assessorName: cfg.AssessorName,
		metrics:      cfg.Metrics,
		now:          cfg.Now,
		newID:        cfg.NewID,
	}
	e.transcriber = NewTranscriber(cfg.Transcriber, TranscriberConfig{
		Name:       cfg.TranscriberName,
		Language:   cfg.Language,
		Timeout:    tun.TranscriptionTimeout,
		HintTarget: cfg.HintTarget,
		Metrics:    cfg.Metrics,
	})
	if e.decoder == nil {
		e.decoder = audio.NewDecoder(audio.DecoderConfig{})
	}
	if e.assessor == nil {
		e.assessor = assess.Heuristic{}
		if e.assessorName == "" {
			e.assessorName = "heuristic"
		}
	}
	if e.assessorName == "" {
		e.assessorName = "assessor"
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e, nil
}

// Tunables returns the effective tunables.
func (e *Engine) Tunables() Tunables { return e.tunables }

// Analyze decodes req.Audio and analyses it. The only errors are a
// [*audio.DecodeError] (matching audio.ErrDecode), an empty word, and ctx
// cancellation; collaborator failures yield a degraded Analysis.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	if req.Word == "" {
		return nil, errors.New("pronunciation: target word must not be empty")
	}

	dctx, end := observe.StartStage(ctx, e.metrics, "decode")
	clip, err := e.decoder.Decode(dctx, req.Audio)
	end(err)
	if err != nil {
		return nil, fmt.Errorf("pronunciation: decode: %w", err)
	}
	return e.AnalyzeClip(ctx, req.UserID, req.Word, clip)
}

// AnalyzeClip runs the pipeline on an already decoded clip.
func (e *Engine) AnalyzeClip(ctx context.Context, userID, word string, clip *audio.Clip) (*Analysis, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "pronunciation.Analyze")
	defer span.End()

	var (
		feats      features.Features
		transcript RawTranscript
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, end := observe.StartStage(gctx, e.metrics, "extract")
		feats = e.extractor.Extract(clip)
		end(nil)
		return nil
	})
	g.Go(func() error {
		tctx, end := observe.StartStage(gctx, e.metrics, "transcribe")
		transcript = e.transcriber.Transcribe(tctx, clip, word)
		end(nil)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pronunciation: analyze: %w", err)
	}

	result := e.assess(ctx, transcript, word)

	a := e.assemble(userID, word, feats, transcript, result)
	if e.metrics != nil {
		e.metrics.RecordAnalysis(ctx, time.Since(start), a.OverallScore, a.DegradedReasons)
	}
	observe.Logger(ctx).Debug("analysis complete",
		"word", word,
		"score", a.OverallScore,
		"degraded", a.Degraded,
	)
	return a, nil
}

func (e *Engine) assess(ctx context.Context, transcript RawTranscript, word string) assess.Result {
	if transcript.Failed() {
		return assess.Failure("no transcript to assess")
	}
	ctx, end := observe.StartStage(ctx, e.metrics, "assess")
	if e.tunables.AssessmentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.tunables.AssessmentTimeout)
		defer cancel()
	}
	r := assess.Run(ctx, e.assessor, transcript.Text, word)

	var err error
	if r.Degraded() {
		err = errors.New(r.Reason)
		observe.Logger(ctx).Warn("assessment failed, using fallback", "provider", e.assessorName, "err", r.Reason)
	}
	if e.metrics != nil {
		e.metrics.RecordCollaborator(ctx, observe.KindAssessor, e.assessorName, err)
	}
	end(err)
	return r
}

// assemble is the pure tail of the pipeline.
func (e *Engine) assemble(userID, word string, f features.Features, tr RawTranscript, ar assess.Result) *Analysis {
	t := e.tunables

	text := tr.Text
	if tr.Failed() {
		text = ""
	}
	wordCount := tr.WordCount()
	if wordCount == 0 {
		wordCount = f.EstimatedWordCount
	}
	style := t.AnalyzeStyle(text, wordCount, f.DurationMs, f.PitchRange)

	phonemes := ar.Assessment.PhonemeAccuracy
	score := t.OverallScore(ScoreInputs{
		Confidence:      tr.Confidence,
		PhonemeAccuracy: ar.Assessment.MeanAccuracy(),
		Clarity:         style.Clarity,
		Fluency:         style.Fluency,
	})

	a := &Analysis{
		ID:              e.newID(),
		UserID:          userID,
		Word:            word,
		Transcript:      tr.Text,
		Confidence:      tr.Confidence,
		DurationMs:      f.DurationMs,
		WordCount:       wordCount,
		WordsPerMinute:  style.WordsPerMinute,
		AveragePitch:    f.AveragePitch,
		PitchMeasured:   f.PitchMeasured,
		PitchRange:      f.PitchRange,
		Volume:          Decibels(f.Volume),
		PhonemeAccuracy: phonemes,
		Errors:          append([]string{}, ar.Assessment.Errors...),
		SpeakingRate:    style.SpeakingRate,
		Clarity:         style.Clarity,
		Fluency:         style.Fluency,
		Intonation:      style.Intonation,
		OverallScore:    score,
		Suggestions:     t.Suggestions(tr.Confidence, style.SpeakingRate, style.Intonation, ar),
		Difficulty:      t.ClassifyDifficulty(word),
		Mastery:         t.ClassifyMastery(score),
		DegradedReasons: []string{},
		CreatedAt:       e.now().UTC(),
	}
	if tr.Failed() {
		a.DegradedReasons = append(a.DegradedReasons, ReasonTranscriptionUnavailable)
	}
	if ar.Degraded() {
		a.DegradedReasons = append(a.DegradedReasons, ReasonAssessmentUnavailable)
	}
	if !f.PitchMeasured {
		a.DegradedReasons = append(a.DegradedReasons, ReasonNoVoicedFrames)
	}
	a.Degraded = len(a.DegradedReasons) > 0
	return a
}
