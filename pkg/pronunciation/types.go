// Package pronunciation is the analysis engine: it turns one recorded
// attempt at a target word into a scored [Analysis] and folds analyses into
// per-word [Progress] and per-day [SessionInsights].
//
// The pipeline is Decode → (Extract ∥ Transcribe) → Assess → Style → Score.
// Only a decode failure aborts an analysis. Every collaborator failure
// (transcription, assessment) is replaced by documented fallback values and
// reported through [Analysis.Degraded] and [Analysis.DegradedReasons], so a
// returned Analysis always has every field populated.
package pronunciation

import (
	"encoding/json"
	"math"
	"time"
)

// SpeakingRate classifies words per minute.
type SpeakingRate string

const (
	RateSlow   SpeakingRate = "slow"
	RateNormal SpeakingRate = "normal"
	RateFast   SpeakingRate = "fast"
)

// Difficulty classifies a target word by length.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Mastery classifies a score.
type Mastery string

const (
	MasteryLearning   Mastery = "learning"
	MasteryPracticing Mastery = "practicing"
	MasteryMastered   Mastery = "mastered"
)

// Degraded reasons recorded on an Analysis.
const (
	ReasonTranscriptionUnavailable = "transcription_unavailable"
	ReasonAssessmentUnavailable    = "assessment_unavailable"
	ReasonNoVoicedFrames           = "no_voiced_frames"
)

// Decibels is a relative level in dBFS. Digital silence is -Inf, which JSON
// cannot represent; it is encoded as null and decoded back to -Inf.
type Decibels float64

// MarshalJSON implements json.Marshaler.
func (d Decibels) MarshalJSON() ([]byte, error) {
	f := float64(d)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Decibels) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Decibels(math.Inf(-1))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*d = Decibels(f)
	return nil
}

// Analysis is the result of one attempt. Scores are in [0, 1].
type Analysis struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Word   string `json:"word"`

	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`

	DurationMs     float64 `json:"duration_ms"`
	WordCount      int     `json:"word_count"`
	WordsPerMinute float64 `json:"words_per_minute"`

	AveragePitch  float64  `json:"average_pitch_hz"`
	PitchMeasured bool     `json:"pitch_measured"`
	PitchRange    float64  `json:"pitch_range_hz"`
	Volume        Decibels `json:"volume_db"`

	PhonemeAccuracy map[string]float64 `json:"phoneme_accuracy"`
	Errors          []string           `json:"errors"`

	SpeakingRate SpeakingRate `json:"speaking_rate"`
	Clarity      float64      `json:"clarity"`
	Fluency      float64      `json:"fluency"`
	Intonation   float64      `json:"intonation"`

	OverallScore float64    `json:"overall_score"`
	Suggestions  []string   `json:"suggestions"`
	Difficulty   Difficulty `json:"difficulty"`
	Mastery      Mastery    `json:"mastery"`

	Degraded        bool     `json:"degraded"`
	DegradedReasons []string `json:"degraded_reasons"`

	CreatedAt time.Time `json:"created_at"`
}

// Progress is the running record of one user's attempts at one word.
type Progress struct {
	UserID string `json:"user_id"`
	// Word is the normalised progress key (see [WordKey]).
	Word string `json:"word"`

	Attempts     int     `json:"attempts"`
	BestScore    float64 `json:"best_score"`
	LatestScore  float64 `json:"latest_score"`
	AverageScore float64 `json:"average_score"`

	// Difficulty and Mastery come from the latest attempt.
	Difficulty Difficulty `json:"difficulty"`
	Mastery    Mastery    `json:"mastery"`

	FirstAttemptAt time.Time `json:"first_attempt_at"`
	LastAttemptAt  time.Time `json:"last_attempt_at"`
}

// SessionInsights summarises the analyses of one session window. It is
// always recomputed from the analysis history.
type SessionInsights struct {
	UserID      string    `json:"user_id"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	WordCount      int           `json:"word_count"`
	RecordingCount int           `json:"recording_count"`
	AverageScore   float64       `json:"average_score"`
	FocusAreas     []string      `json:"focus_areas"`
	Achievements   []string      `json:"achievements"`
	TimeSpent      time.Duration `json:"time_spent_ns"`
	Summary        string        `json:"summary"`
}

// Tunables holds the heuristic constants of the style analyzer, scorer and
// insights. [DefaultTunables] returns the calibrated values; they are
// exposed so deployments can experiment without code changes.
type Tunables struct {
	// Overall score weights.
	ConfidenceWeight float64
	PhonemeWeight    float64
	ClarityWeight    float64
	FluencyWeight    float64

	// Speaking rate thresholds and the fluency curve, in words per minute.
	SlowBelowWPM float64
	FastAboveWPM float64
	IdealWPM     float64
	FluencySpan  float64

	// CharsPerWord is the expected transcript length per word for clarity.
	CharsPerWord float64
	// EmptyClarity is the clarity reported for an empty transcript.
	EmptyClarity float64
	// FullIntonationHz is the pitch range that earns an intonation of 1.
	FullIntonationHz float64

	// Suggestion triggers.
	LowConfidence float64
	LowIntonation float64

	// Difficulty by rune length: <= EasyMaxLen easy, > HardAboveLen hard.
	EasyMaxLen   int
	HardAboveLen int

	// Mastery thresholds.
	MasteredAt    float64
	LearningBelow float64

	// Insights: a sub-score below FocusBelow in at least FocusMinCount
	// analyses becomes a focus area. AchievementAt marks a mastered attempt;
	// StreakCount such attempts earn "streak" and ExplorerWords distinct
	// words earn "explorer".
	FocusBelow    float64
	FocusMinCount int
	AchievementAt float64
	StreakCount   int
	ExplorerWords int

	// Collaborator timeouts.
	TranscriptionTimeout time.Duration
	AssessmentTimeout    time.Duration
}

// DefaultTunables returns the calibrated constants.
func DefaultTunables() Tunables {
	return Tunables{
		ConfidenceWeight: 0.30,
		PhonemeWeight:    0.40,
		ClarityWeight:    0.15,
		FluencyWeight:    0.15,

		SlowBelowWPM: 120,
		FastAboveWPM: 180,
		IdealWPM:     150,
		FluencySpan:  180,

		CharsPerWord:     5,
		EmptyClarity:     0.5,
		FullIntonationHz: 100,

		LowConfidence: 0.7,
		LowIntonation: 0.3,

		EasyMaxLen:   4,
		HardAboveLen: 8,

		MasteredAt:    0.9,
		LearningBelow: 0.6,

		FocusBelow:    0.6,
		FocusMinCount: 2,
		AchievementAt: 0.9,
		StreakCount:   3,
		ExplorerWords: 5,

		TranscriptionTimeout: 15 * time.Second,
		AssessmentTimeout:    20 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultTunables. Weights are taken as
// a group: if all four are zero the defaults apply.
func (t Tunables) withDefaults() Tunables {
	d := DefaultTunables()
	if t.ConfidenceWeight == 0 && t.PhonemeWeight == 0 && t.ClarityWeight == 0 && t.FluencyWeight == 0 {
		t.ConfidenceWeight, t.PhonemeWeight, t.ClarityWeight, t.FluencyWeight =
			d.ConfidenceWeight, d.PhonemeWeight, d.ClarityWeight, d.FluencyWeight
	}
	fill := func(v *float64, def float64) {
		if *v == 0 {
			*v = def
		}
	}
	fillInt := func(v *int, def int) {
		if *v == 0 {
			*v = def
		}
	}
	fillDur := func(v *time.Duration, def time.Duration) {
		if *v == 0 {
			*v = def
		}
	}
	fill(&t.SlowBelowWPM, d.SlowBelowWPM)
	fill(&t.FastAboveWPM, d.FastAboveWPM)
	fill(&t.IdealWPM, d.IdealWPM)
	fill(&t.FluencySpan, d.FluencySpan)
	fill(&t.CharsPerWord, d.CharsPerWord)
	fill(&t.EmptyClarity, d.EmptyClarity)
	fill(&t.FullIntonationHz, d.FullIntonationHz)
	fill(&t.LowConfidence, d.LowConfidence)
	fill(&t.LowIntonation, d.LowIntonation)
	fillInt(&t.EasyMaxLen, d.EasyMaxLen)
	fillInt(&t.HardAboveLen, d.HardAboveLen)
	fill(&t.MasteredAt, d.MasteredAt)
	fill(&t.LearningBelow, d.LearningBelow)
	fill(&t.FocusBelow, d.FocusBelow)
	fillInt(&t.FocusMinCount, d.FocusMinCount)
	fill(&t.AchievementAt, d.AchievementAt)
	fillInt(&t.StreakCount, d.StreakCount)
	fillInt(&t.ExplorerWords, d.ExplorerWords)
	fillDur(&t.TranscriptionTimeout, d.TranscriptionTimeout)
	fillDur(&t.AssessmentTimeout, d.AssessmentTimeout)
	return t
}

// clamp01 limits v to [0, 1]. NaN maps to 0.
func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(1, max(0, v))
}
