package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your study sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := requireToken()
		if err != nil {
			return err
		}
		status, _ := cmd.Flags().GetString("status")
		page, _ := cmd.Flags().GetInt("page")
		size, _ := cmd.Flags().GetInt("size")

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		res, err := apiClient().ListRecords(ctx, tok, status, page, size)
		if err != nil {
			return err
		}
		if len(res.Items) == 0 {
			cmd.Println("No study sessions yet")
			return nil
		}

		cmd.Println(headerStyle.Render(fmt.Sprintf("%-16s %-10s %-12s %-24s %5s %5s %4s %4s",
			"STARTED", "STATUS", "SUBJECT", "TOPIC", "MIN", "FOCUS", "POMO", "PTS")))
		for _, r := range res.Items {
			cmd.Printf("%-16s %-10s %-12s %-24s %5d %5d %4d %4d\n",
				r.StartTime.Local().Format("2006-01-02 15:04"), r.Status,
				truncate(r.SubjectID, 12), truncate(r.Topic, 24),
				r.Duration, r.FocusScore, r.PomodoroCount, r.PointsAwarded)
		}
		cmd.Println(mutedStyle.Render(fmt.Sprintf("page %d of %d, %d sessions",
			res.Pagination.Page, res.Pagination.TotalPages, res.Pagination.Total)))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show points, streak and totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := requireToken()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		st, err := apiClient().Stats(ctx, tok)
		if err != nil {
			return err
		}
		cmd.Println(headerStyle.Render("Study stats"))
		cmd.Printf("Points:         %d\n", st.Points)
		cmd.Printf("Streak:         %s (longest %d)\n", plural(st.CurrentStreak, "day"), st.LongestStreak)
		cmd.Printf("Sessions:       %d completed, %d active\n", st.CompletedSessions, st.ActiveSessions)
		cmd.Printf("Time studied:   %s\n", (time.Duration(st.TotalMinutes) * time.Minute).String())
		cmd.Printf("Pomodoros:      %d\n", st.TotalPomodoros)
		cmd.Printf("Average focus:  %.1f\n", st.AverageFocus)
		printPolicy(ctx, cmd, tok)
		return nil
	},
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}

func init() {
	listCmd.Flags().String("status", "", "filter by status (ongoing, paused, completed, cancelled)")
	listCmd.Flags().Int("page", 1, "page number")
	listCmd.Flags().Int("size", 20, "page size")
}

// printPolicy lists the server's point awards; it stays quiet when the server cannot be asked.
func printPolicy(ctx context.Context, cmd *cobra.Command, tok string) {
	p, err := apiClient().Policy(ctx, tok)
	if err != nil {
		logger.Warn("fetch reward policy", zap.Error(err))
		return
	}
	cmd.Println(headerStyle.Render("How points are earned"))
	for _, line := range p.Lines() {
		cmd.Println(mutedStyle.Render("  " + line))
	}
}
