package attempt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/api"
)

// State is the lifecycle phase of the current attempt.
type State string

const (
	StateIdle       State = "IDLE"
	StateLoading    State = "LOADING"
	StateInProgress State = "IN_PROGRESS"
	StateSubmitting State = "SUBMITTING"
	StateScored     State = "SCORED"
)

// Controller lifecycle errors.
var (
	ErrNotInProgress  = errors.New("no exam in progress")
	ErrCannotCancel   = errors.New("nothing to cancel")
	ErrAlreadyLoading = errors.New("an exam is already loading")
)

const autoSubmitTimeout = 30 * time.Second

// Result is the outcome of a scored attempt. Fallback marks results computed
// locally because the network submission failed — a weaker guarantee than a
// server-scored result, since it trusts client-held correct-option data.
type Result struct {
	Score    int
	Correct  int
	Total    int
	Pass     bool
	Fallback bool
}

// Controller owns the lifecycle of one exam attempt: question loading, answer
// capture, the countdown, submission, and the fallback scorer. Exactly one
// attempt is live at a time; selecting a new exam discards any unfinished one.
//
// All operations are safe for concurrent use. The countdown runs on its own
// goroutine per attempt and identifies itself by the attempt token, so a tick
// from a superseded attempt detects staleness and discards itself.
type Controller struct {
	api *api.Client
	log zerolog.Logger

	mu        sync.Mutex
	state     State
	attemptID uuid.UUID
	exam      api.Exam
	questions []api.Question
	answers   map[int]int
	remaining int
	result    *Result

	// Read models refreshed after every terminal submit.
	attemptsSummary []api.CategoryAttempts
	leaderboard     []api.LeaderboardEntry
}

// NewController creates an idle controller.
func NewController(apiClient *api.Client, log zerolog.Logger) *Controller {
	return &Controller{
		api:     apiClient,
		log:     log.With().Str("component", "attempt").Logger(),
		state:   StateIdle,
		answers: make(map[int]int),
	}
}

// SelectExam starts a new attempt: it fetches the exam's question set, resets
// answers and result, and initializes the countdown to duration_minutes * 60.
// Any unfinished attempt is implicitly discarded. On fetch failure the
// controller returns to Idle with no partial state.
func (c *Controller) SelectExam(ctx context.Context, exam api.Exam) error {
	c.mu.Lock()
	if c.state == StateLoading {
		c.mu.Unlock()
		return ErrAlreadyLoading
	}

	// Supersede whatever attempt was live; its ticker sees the new token
	// and stops itself.
	id := uuid.New()
	c.attemptID = id
	c.state = StateLoading
	c.exam = exam
	c.questions = nil
	c.answers = make(map[int]int)
	c.result = nil
	c.remaining = 0
	c.mu.Unlock()

	questions, err := c.api.Questions(ctx, exam.ID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attemptID != id {
		// A newer SelectExam or Cancel superseded this load.
		return nil
	}
	if err != nil {
		c.state = StateIdle
		c.exam = api.Exam{}
		return fmt.Errorf("load questions for exam %d: %w", exam.ID, err)
	}

	c.questions = questions
	c.remaining = exam.DurationMinutes * 60
	c.state = StateInProgress
	c.log.Info().
		Int("exam_id", exam.ID).
		Int("questions", len(questions)).
		Int("seconds", c.remaining).
		Msg("Attempt started")

	go c.runCountdown(id)
	return nil
}

// Answer records the selected option for a question. Valid only while the
// attempt is in progress. The option is not checked against the question's
// option set; the server is authoritative there.
func (c *Controller) Answer(questionID, optionID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInProgress {
		return ErrNotInProgress
	}
	c.answers[questionID] = optionID
	return nil
}

// Submit sends the answers for scoring and transitions to Scored. Calling it
// while a submission is already in flight or the attempt is scored is a
// no-op, which makes the countdown-triggered auto-submit safe against a
// concurrent manual submit. On network or server failure the attempt is
// scored locally by the fallback scorer instead, so the student always sees a
// result.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateSubmitting, StateScored:
		c.mu.Unlock()
		return nil
	case StateInProgress:
		// fall through
	default:
		c.mu.Unlock()
		return ErrNotInProgress
	}

	id := c.attemptID
	examID := c.exam.ID
	questions := c.questions
	answers := make(map[int]int, len(c.answers))
	for k, v := range c.answers {
		answers[k] = v
	}
	c.state = StateSubmitting
	c.mu.Unlock()

	res, err := c.api.Submit(ctx, examID, answers)

	c.mu.Lock()
	if c.attemptID != id {
		c.mu.Unlock()
		return nil
	}

	var result Result
	if err != nil {
		c.log.Warn().Err(err).Int("exam_id", examID).Msg("Submission failed, scoring locally")
		result = scoreLocally(questions, answers)
	} else {
		result = resultFromServer(res, len(questions))
	}
	c.result = &result
	c.state = StateScored
	c.mu.Unlock()

	c.log.Info().
		Int("exam_id", examID).
		Int("score", result.Score).
		Bool("pass", result.Pass).
		Bool("fallback", result.Fallback).
		Msg("Attempt scored")

	// Refresh read models in the background; failures there never affect
	// the attempt's terminal state.
	go c.refreshReadModels()

	return nil
}

// Cancel discards the current attempt without a network call and returns the
// controller to Idle. Valid from Loading or InProgress.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateLoading && c.state != StateInProgress {
		return ErrCannotCancel
	}

	c.attemptID = uuid.New() // invalidates the running ticker and any in-flight load
	c.state = StateIdle
	c.exam = api.Exam{}
	c.questions = nil
	c.answers = make(map[int]int)
	c.result = nil
	c.remaining = 0
	c.log.Info().Msg("Attempt cancelled")
	return nil
}

// ─── Countdown ──────────────────────────────────────────────────────────────

// runCountdown drives one attempt's wall-clock countdown. It keeps ticking
// while a submission is in flight and only stops once the attempt reaches a
// terminal state or is superseded.
func (c *Controller) runCountdown(id uuid.UUID) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if !c.tick(id) {
			return
		}
	}
}

// tick decrements the countdown by one second. Reaching exactly zero triggers
// the same guarded submit path as an explicit submit, exactly once. Returns
// false when the ticker should stop.
func (c *Controller) tick(id uuid.UUID) bool {
	c.mu.Lock()
	if c.attemptID != id {
		c.mu.Unlock()
		return false
	}

	switch c.state {
	case StateIdle, StateScored:
		c.mu.Unlock()
		return false
	case StateInProgress:
		if c.remaining > 0 {
			c.remaining--
			if c.remaining == 0 {
				examID := c.exam.ID
				c.mu.Unlock()
				c.log.Info().Int("exam_id", examID).Msg("Time is up, auto-submitting")
				ctx, cancel := context.WithTimeout(context.Background(), autoSubmitTimeout)
				defer cancel()
				if err := c.Submit(ctx); err != nil {
					c.log.Error().Err(err).Msg("Auto-submit failed")
				}
				return true
			}
		}
	}

	c.mu.Unlock()
	return true
}

// ─── Scoring ────────────────────────────────────────────────────────────────

// resultFromServer builds the result view-model from the scoring response.
// Pass comes from the server when reported, otherwise from the majority-pass
// heuristic over the question count.
func resultFromServer(res api.SubmitResult, questionCount int) Result {
	total := res.Total
	if total == 0 {
		total = questionCount
	}
	pass := res.Score >= majorityThreshold(questionCount)
	if res.Pass != nil {
		pass = *res.Pass
	}
	return Result{
		Score:   res.Score,
		Correct: res.Correct,
		Total:   total,
		Pass:    pass,
	}
}

// scoreLocally counts answers matching each question's correct-option field.
// Questions whose payload did not include the field never match. The result
// is labeled as a fallback so consumers can tell it apart from an
// authoritative server score.
func scoreLocally(questions []api.Question, answers map[int]int) Result {
	correct := 0
	for _, q := range questions {
		if q.CorrectOption == 0 {
			continue
		}
		if selected, ok := answers[q.ID]; ok && selected == q.CorrectOption {
			correct++
		}
	}
	return Result{
		Score:    correct,
		Correct:  correct,
		Total:    len(questions),
		Pass:     correct >= majorityThreshold(len(questions)),
		Fallback: true,
	}
}

// majorityThreshold is ceil(n/2).
func majorityThreshold(n int) int {
	return (n + 1) / 2
}

// ─── Read models ────────────────────────────────────────────────────────────

// refreshReadModels re-fetches the attempt-history and leaderboard views.
// Fire-and-forget: errors are logged and the stale snapshot is kept.
func (c *Controller) refreshReadModels() {
	ctx, cancel := context.WithTimeout(context.Background(), autoSubmitTimeout)
	defer cancel()

	attempts, err := c.api.AttemptsPerCategory(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("Cannot refresh attempts summary")
	}
	board, err := c.api.Leaderboard(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("Cannot refresh leaderboard")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if attempts != nil {
		c.attemptsSummary = attempts
	}
	if board != nil {
		c.leaderboard = board
	}
}

// ─── Accessors ──────────────────────────────────────────────────────────────

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Exam returns the selected exam.
func (c *Controller) Exam() api.Exam {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exam
}

// Questions returns the loaded question set.
func (c *Controller) Questions() []api.Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.Question, len(c.questions))
	copy(out, c.questions)
	return out
}

// Answers returns a copy of the recorded answers.
func (c *Controller) Answers() map[int]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]int, len(c.answers))
	for k, v := range c.answers {
		out[k] = v
	}
	return out
}

// Remaining returns the countdown value in seconds.
func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Result returns the scored result, or nil while the attempt is unfinished.
func (c *Controller) Result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return nil
	}
	r := *c.result
	return &r
}

// AttemptsSummary returns the latest attempts-per-category snapshot.
func (c *Controller) AttemptsSummary() []api.CategoryAttempts {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.CategoryAttempts, len(c.attemptsSummary))
	copy(out, c.attemptsSummary)
	return out
}

// Leaderboard returns the latest leaderboard snapshot.
func (c *Controller) Leaderboard() []api.LeaderboardEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.LeaderboardEntry, len(c.leaderboard))
	copy(out, c.leaderboard)
	return out
}

// FormatClock renders seconds as mm:ss for countdown display.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
