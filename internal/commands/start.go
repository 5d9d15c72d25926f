package commands

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/studymate/studymate/internal/tui"
	"github.com/studymate/studymate/timer"
)

var startCmd = &cobra.Command{
	Use:   "start <subject> <topic...>",
	Short: "Start a pomodoro study session",
	Long: `Start a study session. Opens the interactive timer by default.

Examples:
  studymate-timer start Math Algebra
  studymate-timer start Physics "Rigid bodies" --pomodoro 50m --break 10m
  studymate-timer start Math Algebra --no-ui --minutes 30`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := requireToken()
		if err != nil {
			return err
		}
		pomodoro, _ := cmd.Flags().GetDuration("pomodoro")
		breakLen, _ := cmd.Flags().GetDuration("break")
		noUI, _ := cmd.Flags().GetBool("no-ui")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		api := apiClient()
		acct, err := api.Me(ctx, tok)
		if err != nil {
			return err
		}
		user := acct.User()

		ctl := timer.New(api,
			timer.WithDurations(pomodoro, breakLen),
			timer.WithLogger(logger.With(zap.String("user", acct.Username))))
		if err := ctl.Start(ctx, user, args[0], strings.Join(args[1:], " ")); err != nil {
			return err
		}

		var res *timer.CompleteResult
		if noUI {
			res, err = runHeadless(ctx, cmd, ctl, user)
		} else {
			res, err = tui.RunTimerTUI(ctx, ctl, user)
		}
		if err != nil {
			return err
		}
		if res == nil {
			cmd.Println("Session abandoned. The server will close it after it goes stale.")
			return nil
		}
		printResult(cmd, res)
		policyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		printPolicy(policyCtx, cmd, tok)
		return nil
	},
}

// runHeadless ticks the controller for the requested minutes, then completes the session.
func runHeadless(ctx context.Context, cmd *cobra.Command, ctl *timer.Controller, user timer.User) (*timer.CompleteResult, error) {
	minutes, _ := cmd.Flags().GetInt("minutes")
	focus, _ := cmd.Flags().GetInt("focus")
	notes, _ := cmd.Flags().GetString("notes")
	tags, _ := cmd.Flags().GetStringSlice("tags")
	ctl.SetFocusRating(focus)

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(minutes)*time.Minute)
	defer cancel()
	cmd.Printf("Studying for %d minutes. Press Ctrl+C to finish early.\n", minutes)
	reported := 0
	ctl.Run(runCtx, user, time.Second, func(s timer.Snapshot, err error) {
		if err != nil {
			cmd.PrintErrf("sync failed: %v\n", err)
		}
		if s.Last.Action != "pomodoro" || s.Last.Status != timer.RequestCommitted || s.Pomodoros <= reported {
			return
		}
		reported = s.Pomodoros
		cmd.Printf("Pomodoro %d done, take a break.\n", s.Pomodoros)
		if s.Milestone != nil {
			cmd.Println(s.Milestone.Message)
		}
	})

	// the parent context may already be cancelled by Ctrl+C
	finishCtx, finishCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer finishCancel()
	return ctl.Complete(finishCtx, user, notes, tags, focus)
}

func printResult(cmd *cobra.Command, res *timer.CompleteResult) {
	cmd.Printf("Session complete: %d minutes, +%d points (total %d)\n", res.Duration, res.PointsAwarded, res.TotalPoints)
	for _, a := range res.Breakdown {
		cmd.Printf("  +%-4d %s\n", a.Points, a.Detail)
	}
	cmd.Printf("Streak: %s (longest %d)\n", plural(res.Streak.Current, "day"), res.Streak.Longest)
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func init() {
	startCmd.Flags().Duration("pomodoro", timer.DefaultPomodoro, "focus interval length")
	startCmd.Flags().Duration("break", timer.DefaultBreak, "break length")
	startCmd.Flags().Bool("no-ui", false, "run without the interactive timer")
	startCmd.Flags().Int("minutes", 25, "session length in --no-ui mode")
	startCmd.Flags().Int("focus", 70, "focus score 0-100 in --no-ui mode")
	startCmd.Flags().String("notes", "", "session notes in --no-ui mode")
	startCmd.Flags().StringSlice("tags", nil, "session tags in --no-ui mode")
}
