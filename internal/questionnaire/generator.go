package questionnaire

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const defaultRewriteAttempts = 3

// RewriteRequest is what a rewriter needs to paraphrase a day's templates.
type RewriteRequest struct {
	ProductName   string
	Day           int
	PeriodDays    int
	State         State
	Scores        *StructuredScores
	HistoryTitles []string
	Questions     []Question
}

// Rewriter paraphrases question titles. It must return one question per input, in order.
type Rewriter interface {
	Rewrite(ctx context.Context, req RewriteRequest) ([]Question, error)
}

// RewriterFunc adapts a function to Rewriter.
type RewriterFunc func(ctx context.Context, req RewriteRequest) ([]Question, error)

func (f RewriterFunc) Rewrite(ctx context.Context, req RewriteRequest) ([]Question, error) {
	return f(ctx, req)
}

// ErrRewriteShape is returned by rewriters whose output does not match the request.
var ErrRewriteShape = errors.New("rewrite returned wrong number of questions")

// Request is the input of one generation.
type Request struct {
	ProductName     string
	Day             int
	PeriodDays      int
	CurrentState    MaterialState
	PreviousScores  *StructuredScores
	PreviousAnswers []Answer
	HistoryTitles   []string
}

// Generated is the outcome of one generation. Outcome is model when every
// question was rewritten, fallback when none was, and mixed otherwise.
type Generated struct {
	State      State
	Questions  []Question
	Validation BatchResult
	Outcome    Source
	Context    GenerationContext
}

type Generator struct {
	bank      *TemplateBank
	validator *Validator
	calc      *Calculator
	rewriter  Rewriter
	attempts  int
	logger    *zap.Logger
}

type GeneratorOption func(*Generator)

func WithRewriter(r Rewriter) GeneratorOption {
	return func(g *Generator) { g.rewriter = r }
}

func WithCalculator(c *Calculator) GeneratorOption {
	return func(g *Generator) {
		if c != nil {
			g.calc = c
		}
	}
}

func WithRewriteAttempts(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.attempts = n
		}
	}
}

func WithLogger(l *zap.Logger) GeneratorOption {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

func NewGenerator(bank *TemplateBank, validator *Validator, opts ...GeneratorOption) *Generator {
	if validator == nil {
		validator = NewValidator()
	}
	g := &Generator{
		bank:      bank,
		validator: validator,
		calc:      NewCalculator(DefaultThresholds()),
		attempts:  defaultRewriteAttempts,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Calculator() *Calculator { return g.calc }

func (g *Generator) Bank() *TemplateBank { return g.bank }

func (g *Generator) Validator() *Validator { return g.validator }

// Generate builds the five questions of req.Day. Rewrite failures degrade to
// template text; only configuration faults are returned as errors.
func (g *Generator) Generate(ctx context.Context, req Request) (*Generated, error) {
	if g.bank == nil {
		return nil, fmt.Errorf("%w: no template bank", ErrBankMisconfigured)
	}
	if req.Day < 1 {
		return nil, fmt.Errorf("invalid test day %d", req.Day)
	}

	var scores *StructuredScores
	if req.Day > 1 {
		s := PreviousScores(req.PreviousScores, req.PreviousAnswers)
		scores = &s
	}
	state := g.calc.Evaluate(req.CurrentState, req.Day, req.PeriodDays, scores)
	cycle, dayInCycle := CycleIndex(req.Day)
	gctx := GenerationContext{
		MaterialState:   state.MaterialState,
		LogicBranch:     state.LogicBranch,
		LifecyclePhase:  state.LifecyclePhase,
		CycleIndex:      cycle,
		DayInCycle:      dayInCycle,
		PreviousScores:  scores,
		PreviousAnswers: req.PreviousAnswers,
		HistoryTitles:   req.HistoryTitles,
	}

	var templates []Question
	if req.Day == 1 {
		templates = g.bank.Baseline()
	} else {
		var err error
		templates, err = g.bank.FollowUp(*scores, req.Day)
		if err != nil {
			return nil, err
		}
	}
	if len(templates) != len(CoreThemes) {
		return nil, fmt.Errorf("%w: bank returned %d questions", ErrBankMisconfigured, len(templates))
	}

	questions := templates
	if req.Day > 1 && g.rewriter != nil {
		questions = g.rewrite(ctx, req, state, scores, templates, &gctx)
	}

	validation := g.validator.ValidateBatch(questions)
	if !validation.Valid && countSource(questions, SourceModel) > 0 {
		g.logger.Warn("rewritten set failed batch validation, using templates",
			zap.Int("day", req.Day),
			zap.Strings("errors", validation.Errors))
		questions = templates
		validation = g.validator.ValidateBatch(questions)
	}

	return &Generated{
		State:      state,
		Questions:  questions,
		Validation: validation,
		Outcome:    outcome(questions),
		Context:    gctx,
	}, nil
}

func (g *Generator) rewrite(ctx context.Context, req Request, state State, scores *StructuredScores, templates []Question, gctx *GenerationContext) []Question {
	rreq := RewriteRequest{
		ProductName:   req.ProductName,
		Day:           req.Day,
		PeriodDays:    req.PeriodDays,
		State:         state,
		Scores:        scores,
		HistoryTitles: req.HistoryTitles,
		Questions:     templates,
	}
	var (
		rewritten []Question
		lastErr   error
	)
	for attempt := 1; attempt <= g.attempts; attempt++ {
		gctx.RewriteAttempts = attempt
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		out, err := g.rewriter.Rewrite(ctx, rreq)
		if err == nil && len(out) != len(templates) {
			err = fmt.Errorf("%w: got %d, want %d", ErrRewriteShape, len(out), len(templates))
		}
		if err != nil {
			lastErr = err
			g.logger.Warn("question rewrite failed",
				zap.Int("day", req.Day),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}
		rewritten = out
		lastErr = nil
		break
	}
	if rewritten == nil {
		if lastErr != nil {
			gctx.RewriteError = lastErr.Error()
		}
		g.logger.Info("using template questions", zap.Int("day", req.Day))
		return templates
	}

	questions := make([]Question, len(templates))
	for i, tpl := range templates {
		q := tpl
		title := strings.TrimSpace(rewritten[i].Title)
		if title == "" || title == tpl.Title {
			questions[i] = q
			continue
		}
		if res := g.validator.ValidateSingle(title); !res.Valid {
			g.logger.Debug("rewritten title rejected",
				zap.String("id", tpl.ID),
				zap.String("title", title),
				zap.Strings("errors", res.Errors))
			questions[i] = q
			continue
		}
		q.Title = title
		q.Source = SourceModel
		questions[i] = q
	}
	return questions
}

func countSource(qs []Question, src Source) int {
	n := 0
	for _, q := range qs {
		if q.Source == src {
			n++
		}
	}
	return n
}

func outcome(qs []Question) Source {
	switch countSource(qs, SourceModel) {
	case 0:
		return SourceFallback
	case len(qs):
		return SourceModel
	default:
		return SourceMixed
	}
}
