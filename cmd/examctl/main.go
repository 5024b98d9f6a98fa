package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/apierr"
	"github.com/stemsi/exstem-client/internal/attempt"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/logger"
	"github.com/stemsi/exstem-client/internal/session"
	"github.com/stemsi/exstem-client/internal/transport"
	"golang.org/x/term"
)

type app struct {
	client *api.Client
	ctrl   *attempt.Controller
	store  *session.Store
	in     *bufio.Reader
}

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	// ─── Initialize Session & Transport ────────────────────────────────
	store := session.NewStore(cfg.StateFile, log)
	tr := transport.New(cfg.BaseURL, cfg.HTTPTimeout, store, log,
		transport.WithAuthExpiredHook(func() {
			color.Red("Session expired. Please login again.")
		}),
	)

	client := api.NewClient(tr, store, log)
	ctrl := attempt.NewController(client, log)

	a := &app{
		client: client,
		ctrl:   ctrl,
		store:  store,
		in:     bufio.NewReader(os.Stdin),
	}

	fmt.Printf("exstem — exam platform client (%s)\n", cfg.BaseURL)
	a.run()
}

// run dispatches by the persisted role: admin and student get their
// dashboards, anything else lands on the auth menu.
func (a *app) run() {
	for {
		id, ok := a.store.Identity()
		switch {
		case ok && id.IsAdmin():
			if done := a.adminDashboard(); done {
				return
			}
		case ok && id.IsStudent():
			if done := a.studentDashboard(id); done {
				return
			}
		default:
			if done := a.authMenu(); done {
				return
			}
		}
	}
}

// ─── Auth ───────────────────────────────────────────────────────────────────

func (a *app) authMenu() (quit bool) {
	fmt.Println()
	fmt.Println("1) Login")
	fmt.Println("2) Register")
	fmt.Println("3) Quit")

	switch a.prompt("> ") {
	case "1":
		a.login()
	case "2":
		a.register()
	case "3":
		return true
	}
	return false
}

func (a *app) login() {
	username := a.prompt("Username: ")
	password := a.promptPassword("Password: ")

	user, err := a.client.Login(context.Background(), username, password)
	if err != nil {
		printError(err, "Invalid credentials")
		return
	}
	color.Green("Welcome, %s (%s)", user.Username, user.Role)
}

func (a *app) register() {
	username := a.prompt("Username: ")
	password := a.promptPassword("Password: ")
	role := strings.ToLower(a.prompt("Role (student/admin) [student]: "))
	if role == "" {
		role = session.RoleStudent
	}

	if err := a.client.Register(context.Background(), username, password, role); err != nil {
		printError(err, "Error registering user")
		return
	}
	color.Green("Registered successfully! Please login.")
}

// ─── Student dashboard ──────────────────────────────────────────────────────

func (a *app) studentDashboard(id session.Identity) (quit bool) {
	fmt.Println()
	color.Cyan("Student Dashboard — %s", id.Username)
	fmt.Println("1) Browse categories & take an exam")
	fmt.Println("2) My attempts per category")
	fmt.Println("3) Leaderboard")
	fmt.Println("4) Check a past score")
	fmt.Println("5) Logout")
	fmt.Println("6) Quit")

	switch a.prompt("> ") {
	case "1":
		a.browseAndTakeExam()
	case "2":
		a.showAttempts()
	case "3":
		a.showLeaderboard()
	case "4":
		a.showScoreReport()
	case "5":
		a.client.Logout()
	case "6":
		return true
	}
	return false
}

func (a *app) browseAndTakeExam() {
	ctx := context.Background()

	categories, err := a.client.Categories(ctx)
	if err != nil {
		printError(err, "Cannot load categories")
		return
	}
	if len(categories) == 0 {
		fmt.Println("No categories available.")
		return
	}
	renderCategories(categories)

	catID, ok := a.promptInt("Category id: ")
	if !ok {
		return
	}

	exams, err := a.client.ExamsByCategory(ctx, catID)
	if err != nil {
		printError(err, "Cannot load exams")
		return
	}
	if len(exams) == 0 {
		fmt.Println("No exams in this category.")
		return
	}
	renderExams(exams)

	examID, ok := a.promptInt("Exam id: ")
	if !ok {
		return
	}
	var selected *api.Exam
	for i := range exams {
		if exams[i].ID == examID {
			selected = &exams[i]
			break
		}
	}
	if selected == nil {
		fmt.Println("No such exam in this category.")
		return
	}

	if err := a.ctrl.SelectExam(ctx, *selected); err != nil {
		printError(err, "Cannot start exam")
		return
	}
	a.examLoop()
}

// examLoop captures answers until the attempt reaches a terminal state. The
// countdown keeps running inside the controller; an auto-submit at zero shows
// up here as a Scored state after the next input.
func (a *app) examLoop() {
	exam := a.ctrl.Exam()
	questions := a.ctrl.Questions()

	color.Cyan("%s — %d questions, %s on the clock",
		exam.Title, len(questions), attempt.FormatClock(a.ctrl.Remaining()))
	renderQuestions(questions, a.ctrl.Answers())
	fmt.Println(`Commands: "a <question#> <option#>" answer, "show" questions, "submit", "cancel"`)

	for {
		if a.ctrl.State() == attempt.StateScored {
			a.showResult(len(questions))
			return
		}

		line := a.prompt(fmt.Sprintf("[%s] > ", attempt.FormatClock(a.ctrl.Remaining())))

		// The countdown may have fired while we were blocked on input.
		if a.ctrl.State() == attempt.StateScored {
			a.showResult(len(questions))
			return
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "a":
			a.handleAnswer(fields, questions)
		case "show":
			renderQuestions(questions, a.ctrl.Answers())
		case "submit":
			if err := a.ctrl.Submit(context.Background()); err != nil {
				printError(err, "Cannot submit")
				continue
			}
			a.showResult(len(questions))
			return
		case "cancel":
			if err := a.ctrl.Cancel(); err != nil {
				printError(err, "Cannot cancel")
				continue
			}
			fmt.Println("Exam cancelled.")
			return
		default:
			fmt.Println("Unknown command.")
		}
	}
}

func (a *app) handleAnswer(fields []string, questions []api.Question) {
	if len(fields) != 3 {
		fmt.Println(`Usage: a <question#> <option#>`)
		return
	}
	qNum, err1 := strconv.Atoi(fields[1])
	oNum, err2 := strconv.Atoi(fields[2])
	if err1 != nil || err2 != nil || qNum < 1 || qNum > len(questions) {
		fmt.Println("Invalid question number.")
		return
	}
	q := questions[qNum-1]
	if oNum < 1 || oNum > len(q.Options) {
		fmt.Println("Invalid option number.")
		return
	}

	if err := a.ctrl.Answer(q.ID, q.Options[oNum-1].ID); err != nil {
		printError(err, "Cannot record answer")
		return
	}
	fmt.Printf("Q%d -> %s\n", qNum, q.Options[oNum-1].Text)
}

func (a *app) showResult(questionCount int) {
	res := a.ctrl.Result()
	if res == nil {
		return
	}

	if res.Pass {
		color.Green("PASS — score %d / %d", res.Score, questionCount)
	} else {
		color.Red("FAIL — score %d / %d", res.Score, questionCount)
	}
	if res.Fallback {
		color.Yellow("(scored locally — submission could not be confirmed by the server)")
	}

	if summary := a.ctrl.AttemptsSummary(); len(summary) > 0 {
		fmt.Println("\nYour attempts:")
		renderAttempts(summary)
	}
	if board := a.ctrl.Leaderboard(); len(board) > 0 {
		fmt.Println("\nLeaderboard:")
		renderLeaderboard(board)
	}
}

func (a *app) showAttempts() {
	attempts, err := a.client.AttemptsPerCategory(context.Background())
	if err != nil {
		printError(err, "Cannot load attempts")
		return
	}
	renderAttempts(attempts)
}

func (a *app) showLeaderboard() {
	board, err := a.client.Leaderboard(context.Background())
	if err != nil {
		printError(err, "Cannot load leaderboard")
		return
	}
	renderLeaderboard(board)
}

func (a *app) showScoreReport() {
	examID, ok := a.promptInt("Exam id: ")
	if !ok {
		return
	}
	report, err := a.client.CheckScore(context.Background(), examID)
	if err != nil {
		printError(err, "No submission found")
		return
	}
	renderScoreReport(report)
}

// ─── Admin dashboard ────────────────────────────────────────────────────────

func (a *app) adminDashboard() (quit bool) {
	fmt.Println()
	color.Cyan("Admin Dashboard")
	fmt.Println("1) Exam statistics")
	fmt.Println("2) Logout")
	fmt.Println("3) Quit")

	switch a.prompt("> ") {
	case "1":
		stats, err := a.client.AdminExamStats(context.Background())
		if err != nil {
			printError(err, "Cannot load stats")
			return false
		}
		renderAdminStats(stats)
	case "2":
		a.client.Logout()
	case "3":
		return true
	}
	return false
}

// ─── Input helpers ──────────────────────────────────────────────────────────

func (a *app) prompt(label string) string {
	fmt.Print(label)
	line, _ := a.in.ReadString('\n')
	return strings.TrimSpace(line)
}

func (a *app) promptInt(label string) (int, bool) {
	raw := a.prompt(label)
	n, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Println("Expected a number.")
		return 0, false
	}
	return n, true
}

func (a *app) promptPassword(label string) string {
	fmt.Print(label)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		// Not a terminal (piped input) — fall back to a plain line read.
		return a.prompt("")
	}
	return strings.TrimSpace(string(raw))
}

func printError(err error, fallback string) {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		color.Red("%s: %s", fallback, apiErr.Message)
		for field, msg := range apiErr.Fields {
			color.Red("  %s: %s", field, msg)
		}
		return
	}
	color.Red("%s: %v", fallback, err)
}
