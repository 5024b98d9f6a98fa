package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/stemsi/exstem-client/internal/api"
)

func newTable(headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	return table
}

func renderCategories(categories []api.Category) {
	table := newTable("ID", "Category")
	for _, c := range categories {
		table.Append([]string{strconv.Itoa(c.ID), c.Name})
	}
	table.Render()
}

func renderExams(exams []api.Exam) {
	table := newTable("ID", "Title", "Description", "Duration (min)")
	for _, e := range exams {
		table.Append([]string{
			strconv.Itoa(e.ID),
			e.Title,
			e.Description,
			strconv.Itoa(e.DurationMinutes),
		})
	}
	table.Render()
}

func renderQuestions(questions []api.Question, answers map[int]int) {
	for i, q := range questions {
		marker := " "
		if _, answered := answers[q.ID]; answered {
			marker = color.GreenString("*")
		}
		fmt.Printf("%s %d. %s\n", marker, i+1, q.Text)
		for j, opt := range q.Options {
			selected := ""
			if answers[q.ID] == opt.ID {
				selected = color.GreenString(" <- selected")
			}
			fmt.Printf("     %d) %s%s\n", j+1, opt.Text, selected)
		}
	}
}

func renderAttempts(attempts []api.CategoryAttempts) {
	table := newTable("Category", "Attempts")
	for _, a := range attempts {
		table.Append([]string{a.CategoryName, strconv.Itoa(a.Count)})
	}
	table.Render()
}

func renderLeaderboard(board []api.LeaderboardEntry) {
	table := newTable("#", "Student", "Score", "Attempts")
	for i, entry := range board {
		table.Append([]string{
			strconv.Itoa(i + 1),
			entry.Student,
			strconv.Itoa(entry.Score),
			strconv.Itoa(entry.Attempts),
		})
	}
	table.Render()
}

func renderScoreReport(report api.ScoreReport) {
	fmt.Printf("Attempt %d — score %d\n", report.Attempt.ID, report.Attempt.Score)
	table := newTable("Question", "Selected option", "Correct")
	for _, ans := range report.Answers {
		mark := color.RedString("no")
		if ans.IsCorrect {
			mark = color.GreenString("yes")
		}
		table.Append([]string{
			strconv.Itoa(ans.Question),
			strconv.Itoa(ans.SelectedOption),
			mark,
		})
	}
	table.Render()
}

func renderAdminStats(stats api.AdminStats) {
	fmt.Printf("Total exams: %d\nTotal attempts: %d\n", stats.TotalExams, stats.TotalAttempts)

	if len(stats.AvgScorePerExam) > 0 {
		fmt.Println("\nAverage score per exam:")
		table := newTable("Exam", "Avg score")
		for _, avg := range stats.AvgScorePerExam {
			table.Append([]string{avg.ExamTitle, fmt.Sprintf("%.2f", avg.AvgScore)})
		}
		table.Render()
	}

	if len(stats.Leaderboard) > 0 {
		fmt.Println("\nTop students:")
		table := newTable("#", "Student", "Total score", "Attempts")
		for i, entry := range stats.Leaderboard {
			table.Append([]string{
				strconv.Itoa(i + 1),
				entry.Username,
				strconv.Itoa(entry.TotalScore),
				strconv.Itoa(entry.TotalAttempts),
			})
		}
		table.Render()
	}
}
