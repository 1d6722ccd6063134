package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/elocute/internal/config"
	"github.com/MrWong99/elocute/pkg/pronunciation"
)

const (
	formatText = "text"
	formatJSON = "json"
)

type outputFlags struct {
	format string
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.format, "format", "o", formatText, "output format: text or json")
}

func (o *outputFlags) validate() error {
	if o.format != formatText && o.format != formatJSON {
		return fmt.Errorf("--format %q is invalid; valid values: text, json", o.format)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// analyzeResult is the JSON shape of the analyze command and the
// POST /v1/analyze response.
type analyzeResult struct {
	Analysis *pronunciation.Analysis `json:"analysis"`
	Progress *pronunciation.Progress `json:"progress,omitempty"`
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	var (
		user, word string
		out        outputFlags
	)
	cmd := &cobra.Command{
		Use:   "analyze <audio-file|->",
		Short: "Analyse one recorded attempt and record it",
		Long: "Analyse a recording of a single word, print the result and fold it into the\n" +
			"user's progress. Use - to read the recording from stdin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.validate(); err != nil {
				return err
			}
			if strings.TrimSpace(word) == "" {
				return errors.New("--word is required")
			}
			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			reg := config.NewRegistry()
			registerBuiltinProviders(reg)
			svc, err := newServices(ctx, root.cfg, reg, nil, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			a, prog, err := svc.analyzeAndRecord(ctx, pronunciation.Request{UserID: user, Word: word, Audio: data})
			if a == nil {
				return err
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			if out.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), analyzeResult{Analysis: a, Progress: prog})
			}
			printAnalysis(cmd.OutOrStdout(), a, prog)
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "local", "user the attempt belongs to")
	cmd.Flags().StringVarP(&word, "word", "w", "", "target word (required)")
	out.register(cmd)
	return cmd
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	return data, nil
}

func printAnalysis(w io.Writer, a *pronunciation.Analysis, p *pronunciation.Progress) {
	fmt.Fprintf(w, "word:        %s\n", a.Word)
	fmt.Fprintf(w, "heard:       %s (confidence %.2f)\n", a.Transcript, a.Confidence)
	fmt.Fprintf(w, "score:       %.0f%% (%s, %s)\n", a.OverallScore*100, a.Mastery, a.Difficulty)
	fmt.Fprintf(w, "style:       %s, clarity %.2f, fluency %.2f, intonation %.2f\n", a.SpeakingRate, a.Clarity, a.Fluency, a.Intonation)
	if a.Degraded {
		fmt.Fprintf(w, "degraded:    %s\n", strings.Join(a.DegradedReasons, ", "))
	}
	for _, s := range a.Suggestions {
		fmt.Fprintf(w, "  - %s\n", s)
	}
	if p != nil {
		fmt.Fprintf(w, "progress:    %d attempt(s), best %.0f%%, average %.0f%%\n", p.Attempts, p.BestScore*100, p.AverageScore*100)
	}
}

func newProgressCmd(root *rootOptions) *cobra.Command {
	var (
		user, word string
		out        outputFlags
	)
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show a user's progress on one word",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := out.validate(); err != nil {
				return err
			}
			if strings.TrimSpace(word) == "" {
				return errors.New("--word is required")
			}
			ctx := cmd.Context()
			svc, err := newServices(ctx, root.cfg, nil, nil, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			p, err := svc.tracker().Progress(ctx, user, word)
			if errors.Is(err, pronunciation.ErrNotFound) {
				return fmt.Errorf("no attempts at %q recorded for user %q", word, user)
			}
			if err != nil {
				return err
			}
			if out.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), p)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s / %s: %d attempt(s)\n", p.UserID, p.Word, p.Attempts)
			fmt.Fprintf(w, "best %.0f%%, latest %.0f%%, average %.0f%%\n", p.BestScore*100, p.LatestScore*100, p.AverageScore*100)
			fmt.Fprintf(w, "%s, %s, last practised %s\n", p.Mastery, p.Difficulty, p.LastAttemptAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "local", "user to look up")
	cmd.Flags().StringVarP(&word, "word", "w", "", "word to look up (required)")
	out.register(cmd)
	return cmd
}

func newInsightsCmd(root *rootOptions) *cobra.Command {
	var (
		user, date string
		out        outputFlags
	)
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Summarise a user's practice session for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := out.validate(); err != nil {
				return err
			}
			now, err := sessionTime(date, time.Now())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := newServices(ctx, root.cfg, nil, nil, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			in, err := svc.tracker().Insights(ctx, user, now)
			if err != nil {
				return err
			}
			if out.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), in)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, in.Summary)
			if len(in.FocusAreas) > 0 {
				fmt.Fprintf(w, "focus on:     %s\n", strings.Join(in.FocusAreas, ", "))
			}
			if len(in.Achievements) > 0 {
				fmt.Fprintf(w, "achievements: %s\n", strings.Join(in.Achievements, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "local", "user to summarise")
	cmd.Flags().StringVar(&date, "date", "", "day to summarise as YYYY-MM-DD in local time (default: today)")
	out.register(cmd)
	return cmd
}

// sessionTime returns the end of the insights window: now for an empty
// date, otherwise the last instant of that local day.
func sessionTime(date string, now time.Time) (time.Time, error) {
	if date == "" {
		return now, nil
	}
	day, err := time.ParseInLocation(time.DateOnly, date, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("--date %q: want YYYY-MM-DD", date)
	}
	return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}
