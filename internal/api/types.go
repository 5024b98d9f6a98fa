package api

// Request payloads.

// LoginRequest is the credentials payload for POST login/.
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=150"`
	Password string `json:"password" validate:"required,min=1"`
}

// RegisterRequest is the payload for POST register/.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=150"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=student admin"`
}

// Response payloads, mirroring the backend serializers.

// User is the identity block of the login response.
type User struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

// LoginResponse carries the credential pair and the user identity.
type LoginResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    User   `json:"user"`
}

// Category is an exam category.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Exam describes one exam within a category.
type Exam struct {
	ID              int    `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Category        int    `json:"category"`
	DurationMinutes int    `json:"duration_minutes"`
	TotalMarks      int    `json:"total_marks"`
}

// Option is one selectable answer of a question.
type Option struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// Question is one exam question. CorrectOption is only populated when the
// backend chooses to include it; zero means absent.
type Question struct {
	ID            int      `json:"id"`
	Text          string   `json:"text"`
	Options       []Option `json:"options"`
	CorrectOption int      `json:"correct_option,omitempty"`
}

// SubmitResult is the scoring response for a submitted exam. Pass is a
// pointer because older backend revisions do not report it; callers fall back
// to the majority-pass heuristic when nil.
type SubmitResult struct {
	ID      int   `json:"id"`
	Exam    int   `json:"exam"`
	Score   int   `json:"score"`
	Total   int   `json:"total"`
	Correct int   `json:"correct"`
	Pass    *bool `json:"pass"`
}

// CategoryAttempts aggregates the student's attempts within one category.
type CategoryAttempts struct {
	CategoryID   int    `json:"category_id"`
	CategoryName string `json:"category_name"`
	Count        int    `json:"count"`
}

// LeaderboardEntry is one row of the student leaderboard.
type LeaderboardEntry struct {
	Student  string `json:"student"`
	Score    int    `json:"score"`
	Attempts int    `json:"attempts"`
}

// AvgScore is the per-exam average in the admin stats.
type AvgScore struct {
	ExamTitle string  `json:"exam__title"`
	AvgScore  float64 `json:"avg_score"`
}

// AdminLeaderboardEntry is one row of the admin-side leaderboard.
type AdminLeaderboardEntry struct {
	Username      string `json:"username"`
	TotalScore    int    `json:"total_score"`
	TotalAttempts int    `json:"total_attempts"`
}

// AdminStats is the aggregate admin dashboard payload.
type AdminStats struct {
	TotalExams      int                     `json:"total_exams"`
	TotalAttempts   int                     `json:"total_attempts"`
	AvgScorePerExam []AvgScore              `json:"avg_score_per_exam"`
	Leaderboard     []AdminLeaderboardEntry `json:"leaderboard"`
}

// AnswerRecord is one graded answer in a score report.
type AnswerRecord struct {
	ID             int  `json:"id"`
	Question       int  `json:"question"`
	SelectedOption int  `json:"selected_option"`
	IsCorrect      bool `json:"is_correct"`
}

// ScoreReport is the response of GET exams/{id}/score/.
type ScoreReport struct {
	Attempt SubmitResult   `json:"attempt"`
	Answers []AnswerRecord `json:"answers"`
}
