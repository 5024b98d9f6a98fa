package attempt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/session"
	"github.com/stemsi/exstem-client/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeExamAPI serves one exam's lifecycle endpoints.
type fakeExamAPI struct {
	questions    []gin.H
	submitStatus int
	submitBody   gin.H
	submitCalls  atomic.Int32
	readCalls    atomic.Int32

	srv *httptest.Server
}

func newFakeExamAPI(t *testing.T) *fakeExamAPI {
	t.Helper()

	f := &fakeExamAPI{
		submitStatus: http.StatusOK,
		submitBody:   gin.H{"id": 7, "exam": 10, "score": 2},
		questions: []gin.H{
			{"id": 1, "text": "2+2?", "options": []gin.H{{"id": 11, "text": "3"}, {"id": 12, "text": "4"}}},
			{"id": 2, "text": "3+3?", "options": []gin.H{{"id": 21, "text": "6"}, {"id": 22, "text": "7"}}},
		},
	}

	r := gin.New()
	r.GET("/api/exams/:id/questions/", func(c *gin.Context) {
		if f.questions == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Exam not found"})
			return
		}
		c.JSON(http.StatusOK, f.questions)
	})
	r.POST("/api/exams/:id/submit/", func(c *gin.Context) {
		f.submitCalls.Add(1)
		c.JSON(f.submitStatus, f.submitBody)
	})
	r.GET("/api/attempts-per-category/", func(c *gin.Context) {
		f.readCalls.Add(1)
		c.JSON(http.StatusOK, []gin.H{{"category_id": 1, "category_name": "Math", "count": 3}})
	})
	r.GET("/api/leaderboard/", func(c *gin.Context) {
		f.readCalls.Add(1)
		c.JSON(http.StatusOK, []gin.H{{"student": "alice", "score": 9, "attempts": 3}})
	})

	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func newTestController(t *testing.T, f *fakeExamAPI) *Controller {
	t.Helper()
	store := session.NewStore(filepath.Join(t.TempDir(), "session.json"), zerolog.Nop())
	store.SetTokens("access", "refresh")
	tr := transport.New(f.srv.URL+"/api/", 5*time.Second, store, zerolog.Nop())
	client := api.NewClient(tr, store, zerolog.Nop())

	c := NewController(client, zerolog.Nop())
	t.Cleanup(func() { _ = c.Cancel() })
	return c
}

func testExam() api.Exam {
	return api.Exam{ID: 10, Title: "Algebra", DurationMinutes: 2}
}

func TestSelectExamInitializesAttempt(t *testing.T) {
	f := newFakeExamAPI(t)
	c := newTestController(t, f)

	// Seed leftovers from a hypothetical previous attempt.
	c.mu.Lock()
	c.answers = map[int]int{9: 9}
	c.result = &Result{Score: 1}
	c.mu.Unlock()

	require.NoError(t, c.SelectExam(context.Background(), testExam()))

	assert.Equal(t, StateInProgress, c.State())
	assert.Equal(t, 120, c.Remaining(), "remaining = duration_minutes * 60")
	assert.Empty(t, c.Answers())
	assert.Nil(t, c.Result())
	assert.Len(t, c.Questions(), 2)
}

func TestSelectExamFailureLeavesIdle(t *testing.T) {
	f := newFakeExamAPI(t)
	f.questions = nil // questions endpoint 404s
	c := newTestController(t, f)

	err := c.SelectExam(context.Background(), testExam())
	require.Error(t, err)
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, c.Questions())
	assert.Zero(t, c.Remaining())
}

func TestAnswerOnlyValidInProgress(t *testing.T) {
	f := newFakeExamAPI(t)
	c := newTestController(t, f)

	assert.ErrorIs(t, c.Answer(1, 12), ErrNotInProgress)

	require.NoError(t, c.SelectExam(context.Background(), testExam()))
	require.NoError(t, c.Answer(1, 12))
	require.NoError(t, c.Answer(1, 11), "answers upsert")
	require.NoError(t, c.Answer(2, 21))

	assert.Equal(t, map[int]int{1: 11, 2: 21}, c.Answers())
}

func TestSubmitUsesServerResult(t *testing.T) {
	f := newFakeExamAPI(t)
	c := newTestController(t, f)
	require.NoError(t, c.SelectExam(context.Background(), testExam()))
	require.NoError(t, c.Answer(1, 12))

	require.NoError(t, c.Submit(context.Background()))

	res := c.Result()
	require.NotNil(t, res)
	assert.Equal(t, StateScored, c.State())
	assert.Equal(t, 2, res.Score)
	assert.False(t, res.Fallback)
	// No pass reported by the server: majority heuristic, 2 >= ceil(2/2).
	assert.True(t, res.Pass)
}

func TestSubmitHonorsServerPassFlag(t *testing.T) {
	f := newFakeExamAPI(t)
	// Score above the majority threshold but server says fail.
	f.submitBody = gin.H{"score": 2, "pass": false}
	c := newTestController(t, f)
	require.NoError(t, c.SelectExam(context.Background(), testExam()))

	require.NoError(t, c.Submit(context.Background()))

	res := c.Result()
	require.NotNil(t, res)
	assert.False(t, res.Pass)
}

func TestDoubleSubmitScoresOnce(t *testing.T) {
	f := newFakeExamAPI(t)
	c := newTestController(t, f)
	require.NoError(t, c.SelectExam(context.Background(), testExam()))

	require.NoError(t, c.Submit(context.Background()))
	require.NoError(t, c.Submit(context.Background()), "second submit is a no-op")

	assert.Equal(t, int32(1), f.submitCalls.Load())
	assert.Equal(t, StateScored, c.State())
}

func TestSubmitFallsBackToLocalScoring(t *testing.T) {
	f := newFakeExamAPI(t)
	f.submitStatus = http.StatusInternalServerError
	f.submitBody = gin.H{"error": "boom"}
	f.questions = []gin.H{
		{"id": 1, "text": "q1", "correct_option": 11, "options": []gin.H{{"id": 11, "text": "a"}, {"id": 12, "text": "b"}}},
		{"id": 2, "text": "q2", "correct_option": 21, "options": []gin.H{{"id": 21, "text": "a"}, {"id": 22, "text": "b"}}},
		{"id": 3, "text": "q3", "correct_option": 31, "options": []gin.H{{"id": 31, "text": "a"}, {"id": 32, "text": "b"}}},
		{"id": 4, "text": "q4", "correct_option": 41, "options": []gin.H{{"id": 41, "text": "a"}, {"id": 42, "text": "b"}}},
	}
	c := newTestController(t, f)
	require.NoError(t, c.SelectExam(context.Background(), testExam()))

	// 3 of 4 correct.
	require.NoError(t, c.Answer(1, 11))
	require.NoError(t, c.Answer(2, 21))
	require.NoError(t, c.Answer(3, 31))
	require.NoError(t, c.Answer(4, 42))

	require.NoError(t, c.Submit(context.Background()))

	res := c.Result()
	require.NotNil(t, res)
	assert.Equal(t, 3, res.Score)
	assert.True(t, res.Pass, "3 >= ceil(4/2)")
	assert.True(t, res.Fallback, "fallback results are labeled")
	assert.Equal(t, StateScored, c.State())
}

func TestSubmitRefreshesReadModels(t *testing.T) {
	f := newFakeExamAPI(t)
	c := newTestController(t, f)
	require.NoError(t, c.SelectExam(context.Background(), testExam()))

	require.NoError(t, c.Submit(context.Background()))

	require.Eventually(t, func() bool {
		return len(c.AttemptsSummary()) == 1 && len(c.Leaderboard()) == 1
	}, 2*time.Second, 10*time.Millisecond, "read models refresh after scoring")

	assert.Equal(t, "Math", c.AttemptsSummary()[0].CategoryName)
	assert.Equal(t, "alice", c.Leaderboard()[0].Student)
}

func TestCancelDiscardsAttempt(t *testing.T) {
	f := newFakeExamAPI(t)
	c := newTestController(t, f)

	assert.ErrorIs(t, c.Cancel(), ErrCannotCancel)

	require.NoError(t, c.SelectExam(context.Background(), testExam()))
	require.NoError(t, c.Answer(1, 12))

	require.NoError(t, c.Cancel())
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, c.Answers())
	assert.Nil(t, c.Result())
	assert.Zero(t, c.Remaining())
	assert.Equal(t, int32(0), f.submitCalls.Load(), "cancel never submits")
}

// ─── Countdown semantics (ticks driven directly) ────────────────────────────

// primedController builds an in-progress attempt without spawning the real
// one-second ticker, so tests can drive ticks deterministically.
func primedController(t *testing.T, f *fakeExamAPI, remaining int) (*Controller, uuid.UUID) {
	t.Helper()
	c := newTestController(t, f)

	questions := []api.Question{
		{ID: 1, CorrectOption: 11, Options: []api.Option{{ID: 11}, {ID: 12}}},
		{ID: 2, CorrectOption: 21, Options: []api.Option{{ID: 21}, {ID: 22}}},
	}

	id := uuid.New()
	c.mu.Lock()
	c.attemptID = id
	c.state = StateInProgress
	c.exam = testExam()
	c.questions = questions
	c.answers = map[int]int{1: 11}
	c.remaining = remaining
	c.mu.Unlock()
	return c, id
}

func TestTickDecrementsWhileInProgress(t *testing.T) {
	f := newFakeExamAPI(t)
	c, id := primedController(t, f, 5)

	assert.True(t, c.tick(id))
	assert.Equal(t, 4, c.Remaining())
}

func TestTickAtZeroTriggersExactlyOneSubmit(t *testing.T) {
	f := newFakeExamAPI(t)
	c, id := primedController(t, f, 1)

	assert.True(t, c.tick(id), "countdown keeps running while submission settles")
	assert.Equal(t, 0, c.Remaining())
	assert.Equal(t, StateScored, c.State())
	assert.Equal(t, int32(1), f.submitCalls.Load())

	// Further ticks neither decrement below zero nor resubmit.
	assert.False(t, c.tick(id), "terminal state stops the ticker")
	assert.Equal(t, 0, c.Remaining())
	assert.Equal(t, int32(1), f.submitCalls.Load())
}

func TestTickNeverDecrementsBelowZero(t *testing.T) {
	f := newFakeExamAPI(t)
	f.submitStatus = http.StatusInternalServerError
	c, id := primedController(t, f, 0)

	assert.True(t, c.tick(id))
	assert.Equal(t, 0, c.Remaining())
	assert.Equal(t, int32(0), f.submitCalls.Load(), "zero was never reached by this tick")
}

func TestStaleTickIsNoOp(t *testing.T) {
	f := newFakeExamAPI(t)
	c, _ := primedController(t, f, 5)

	assert.False(t, c.tick(uuid.New()), "tick from a superseded attempt discards itself")
	assert.Equal(t, 5, c.Remaining())
}

func TestTickAfterCancelIsNoOp(t *testing.T) {
	f := newFakeExamAPI(t)
	c, id := primedController(t, f, 5)

	require.NoError(t, c.Cancel())

	assert.False(t, c.tick(id))
	assert.Zero(t, c.Remaining())
	assert.Equal(t, StateIdle, c.State())
}

func TestTickKeepsRunningWhileSubmitting(t *testing.T) {
	f := newFakeExamAPI(t)
	c, id := primedController(t, f, 5)

	c.mu.Lock()
	c.state = StateSubmitting
	c.mu.Unlock()

	assert.True(t, c.tick(id), "countdown continues while a submission is in flight")
	assert.Equal(t, 5, c.Remaining(), "but only InProgress decrements")
}

// ─── Scoring helpers ────────────────────────────────────────────────────────

func TestMajorityThreshold(t *testing.T) {
	assert.Equal(t, 0, majorityThreshold(0))
	assert.Equal(t, 1, majorityThreshold(1))
	assert.Equal(t, 1, majorityThreshold(2))
	assert.Equal(t, 2, majorityThreshold(3))
	assert.Equal(t, 2, majorityThreshold(4))
	assert.Equal(t, 3, majorityThreshold(5))
}

func TestScoreLocallySkipsQuestionsWithoutCorrectOption(t *testing.T) {
	questions := []api.Question{
		{ID: 1, CorrectOption: 11},
		{ID: 2}, // payload omitted correct_option
	}
	answers := map[int]int{1: 11, 2: 21}

	res := scoreLocally(questions, answers)
	assert.Equal(t, 1, res.Score)
	assert.Equal(t, 2, res.Total)
	assert.True(t, res.Pass, "1 >= ceil(2/2)")
	assert.True(t, res.Fallback)
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "02:05", FormatClock(125))
	assert.Equal(t, "00:00", FormatClock(0))
	assert.Equal(t, "00:00", FormatClock(-3))
}
