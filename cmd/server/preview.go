package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/soaringjerry/Sigmo/internal/questionnaire"
)

type previewFlags struct {
	product string
	day     int
	period  int
	state   string
	scores  string
}

func newPreviewCmd(c *cli) *cobra.Command {
	f := previewFlags{}
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Generate one day's questionnaire without storing it",
		Example: `  sigmo preview --day 1
  sigmo preview --day 9 --scores odor=2,dust=4 --state normal`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request()
			if err != nil {
				return err
			}
			gen, err := newGenerator(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			out, err := gen.Generate(cmd.Context(), req)
			if err != nil {
				return err
			}
			printPreview(cmd.OutOrStdout(), req, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.product, "product", "", "product name passed to the rewriter")
	cmd.Flags().IntVar(&f.day, "day", 1, "test day (1-based)")
	cmd.Flags().IntVar(&f.period, "period", 0, "test period in days (default from config)")
	cmd.Flags().StringVar(&f.state, "state", string(questionnaire.StateNewBag), "current material state")
	cmd.Flags().StringVar(&f.scores, "scores", "", "previous day's scores, e.g. odor=2,dust=4")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		if f.period == 0 {
			f.period = c.cfg.Engine.DefaultPeriodDays
		}
	}
	return cmd
}

func (f previewFlags) request() (questionnaire.Request, error) {
	state := questionnaire.MaterialState(f.state)
	if !state.Valid() {
		return questionnaire.Request{}, fmt.Errorf("unknown state %q", f.state)
	}
	req := questionnaire.Request{
		ProductName:  f.product,
		Day:          f.day,
		PeriodDays:   f.period,
		CurrentState: state,
	}
	if f.scores != "" {
		scores, err := parseScores(f.scores)
		if err != nil {
			return questionnaire.Request{}, err
		}
		req.PreviousScores = &scores
	}
	return req, nil
}

// parseScores reads "theme=score" pairs. Themes left out stay neutral.
func parseScores(s string) (questionnaire.StructuredScores, error) {
	scores := questionnaire.NeutralScores()
	for _, pair := range strings.Split(s, ",") {
		name, raw, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return scores, fmt.Errorf("bad score %q, want theme=score", pair)
		}
		theme, ok := questionnaire.ParseTheme(name)
		if !ok {
			return scores, fmt.Errorf("unknown theme %q", name)
		}
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return scores, fmt.Errorf("score for %s: %w", name, err)
		}
		if !scores.Set(theme, v) {
			return scores, fmt.Errorf("theme %s is not scored", name)
		}
	}
	if err := scores.Validate(); err != nil {
		return scores, err
	}
	return scores, nil
}

func printPreview(w io.Writer, req questionnaire.Request, g *questionnaire.Generated) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	bold.Fprintf(w, "Day %d of %d\n", req.Day, req.PeriodDays)
	fmt.Fprintf(w, "  state:  %s\n", g.State.MaterialState)
	fmt.Fprintf(w, "  phase:  %s\n", g.State.LifecyclePhase)
	fmt.Fprintf(w, "  branch: %s\n", g.State.LogicBranch)
	fmt.Fprintf(w, "  cycle:  %d (day %d)\n", g.Context.CycleIndex, g.Context.DayInCycle)
	fmt.Fprintf(w, "  source: %s\n\n", g.Outcome)

	for i, q := range g.Questions {
		tag := yellow
		if q.Source == questionnaire.SourceModel {
			tag = green
		}
		fmt.Fprintf(w, "%d. ", i+1)
		cyan.Fprintf(w, "[%s] ", q.Theme.Label())
		fmt.Fprintf(w, "%s ", q.Title)
		tag.Fprintf(w, "(%s)\n", sourceLabel(q.Source))
		if q.FollowupRule != "" {
			fmt.Fprintf(w, "   %s\n", q.FollowupRule)
		}
	}

	if g.Context.RewriteError != "" {
		red.Fprintf(w, "\nrewrite failed after %d attempt(s): %s\n", g.Context.RewriteAttempts, g.Context.RewriteError)
	}
	for _, e := range g.Validation.Errors {
		red.Fprintf(w, "error: %s\n", e)
	}
	for _, warn := range g.Validation.Warnings {
		yellow.Fprintf(w, "warning: %s\n", warn)
	}
}

func sourceLabel(s questionnaire.Source) string {
	if s == "" {
		return string(questionnaire.SourceFallback)
	}
	return string(s)
}
