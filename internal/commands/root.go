package commands

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/studymate/studymate/client"
	"github.com/studymate/studymate/utils"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	serverURL string
	token     string
	logger    = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "studymate-timer",
	Short: "Pomodoro study timer backed by the StudyMate server",
	Long: `studymate-timer runs focus sessions from the terminal and reports them to a
StudyMate server, which awards reputation points and tracks your study streak.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadEnv()
		if !cmd.Flags().Changed("server") {
			if v := os.Getenv("STUDYMATE_SERVER"); v != "" {
				serverURL = v
			}
		}
		if !cmd.Flags().Changed("token") {
			token = os.Getenv("STUDYMATE_TOKEN")
		}
		if dir, err := stateDir(); err == nil {
			if l, err := utils.NewRollingFileLogger(filepath.Join(dir, "timer.log"), "info", 5, 2, 14, true); err == nil {
				logger = l
			}
		}
	},
}

// loadEnv reads ./.env and then the saved credentials file; real environment variables win.
func loadEnv() {
	_ = godotenv.Load()
	if path, err := credentialsPath(); err == nil {
		_ = godotenv.Load(path)
	}
}

func stateDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir = filepath.Join(dir, "studymate")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func credentialsPath() (string, error) {
	dir, err := stateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "credentials.env"), nil
}

func apiClient() *client.Client {
	return client.New(serverURL, nil)
}

var errNoToken = errors.New("not logged in: run 'studymate-timer login' or set STUDYMATE_TOKEN")

func requireToken() (string, error) {
	if token == "" {
		return "", errNoToken
	}
	return token, nil
}

// SetVersion sets the version information
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the root command
func Execute() error {
	defer func() { _ = logger.Sync() }()
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("studymate-timer %s (%s, %s)\n", version, commit, date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "StudyMate server base URL (env STUDYMATE_SERVER)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token (env STUDYMATE_TOKEN)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}
