package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/apierr"
	"github.com/stemsi/exstem-client/internal/session"
	"github.com/stemsi/exstem-client/internal/transport"
	"github.com/stemsi/exstem-client/internal/validate"
)

// Client exposes one method per backend endpoint. Every call goes through the
// credentialed transport; auth flows additionally update the session store.
type Client struct {
	tr    *transport.Client
	store *session.Store
	log   zerolog.Logger
}

// NewClient creates an API client on top of the given transport.
func NewClient(tr *transport.Client, store *session.Store, log zerolog.Logger) *Client {
	return &Client{
		tr:    tr,
		store: store,
		log:   log.With().Str("component", "api").Logger(),
	}
}

// Login exchanges credentials for a token pair and persists pair + identity.
func (c *Client) Login(ctx context.Context, username, password string) (User, error) {
	req := LoginRequest{Username: username, Password: password}
	if fields := validate.Struct(req); fields != nil {
		return User{}, apierr.Validation(fields)
	}

	var resp LoginResponse
	if err := c.tr.Do(ctx, http.MethodPost, "login/", req, &resp); err != nil {
		return User{}, err
	}

	c.store.SetTokens(resp.Access, resp.Refresh)
	c.store.SetIdentity(session.Identity{Username: resp.User.Username, Role: resp.User.Role})
	c.log.Info().Str("username", resp.User.Username).Str("role", resp.User.Role).Msg("Logged in")

	return resp.User, nil
}

// Register creates a new account. The payload is validated client-side first
// so obviously bad input never reaches the network.
func (c *Client) Register(ctx context.Context, username, password, role string) error {
	req := RegisterRequest{Username: username, Password: password, Role: role}
	if fields := validate.Struct(req); fields != nil {
		return apierr.Validation(fields)
	}
	return c.tr.Do(ctx, http.MethodPost, "register/", req, nil)
}

// Logout destroys the stored session.
func (c *Client) Logout() {
	c.store.Clear()
	c.log.Info().Msg("Logged out")
}

// Categories lists all exam categories.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var out []Category
	err := c.tr.Do(ctx, http.MethodGet, "categories/", nil, &out)
	return out, err
}

// ExamsByCategory lists the exams belonging to a category.
func (c *Client) ExamsByCategory(ctx context.Context, categoryID int) ([]Exam, error) {
	var out []Exam
	err := c.tr.Do(ctx, http.MethodGet, fmt.Sprintf("categories/%d/exams/", categoryID), nil, &out)
	return out, err
}

// Questions fetches the question set of an exam.
func (c *Client) Questions(ctx context.Context, examID int) ([]Question, error) {
	var out []Question
	err := c.tr.Do(ctx, http.MethodGet, fmt.Sprintf("exams/%d/questions/", examID), nil, &out)
	return out, err
}

// Submit sends the answers map (question id → selected option id) for scoring.
func (c *Client) Submit(ctx context.Context, examID int, answers map[int]int) (SubmitResult, error) {
	payload := map[string]map[int]int{"answers": answers}
	var out SubmitResult
	err := c.tr.Do(ctx, http.MethodPost, fmt.Sprintf("exams/%d/submit/", examID), payload, &out)
	return out, err
}

// CheckScore retrieves the graded report of a past submission.
func (c *Client) CheckScore(ctx context.Context, examID int) (ScoreReport, error) {
	var out ScoreReport
	err := c.tr.Do(ctx, http.MethodGet, fmt.Sprintf("exams/%d/score/", examID), nil, &out)
	return out, err
}

// AttemptsPerCategory returns the student's attempt counts per category.
func (c *Client) AttemptsPerCategory(ctx context.Context) ([]CategoryAttempts, error) {
	var out []CategoryAttempts
	err := c.tr.Do(ctx, http.MethodGet, "attempts-per-category/", nil, &out)
	return out, err
}

// Leaderboard returns the top students.
func (c *Client) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	var out []LeaderboardEntry
	err := c.tr.Do(ctx, http.MethodGet, "leaderboard/", nil, &out)
	return out, err
}

// AdminExamStats returns the aggregate admin dashboard payload.
func (c *Client) AdminExamStats(ctx context.Context) (AdminStats, error) {
	var out AdminStats
	err := c.tr.Do(ctx, http.MethodGet, "admin/exam-stats/", nil, &out)
	return out, err
}
