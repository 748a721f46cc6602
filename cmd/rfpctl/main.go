package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rfpdesk/internal/app"
	"rfpdesk/internal/config"
	"rfpdesk/internal/session"
	"rfpdesk/internal/util"
)

// cli carries what every subcommand needs once the root has run.
type cli struct {
	configPath string
	logLevel   string
	app        *app.App
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{}
	if err := c.execute(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, session.ErrLoginRequired) {
			fmt.Fprintln(os.Stderr, "Session expired or missing. Run: rfpctl login")
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// execute runs one command and closes the app whether or not it failed.
// cobra skips post-run hooks after an error, so the close lives here.
func (c *cli) execute(ctx context.Context, args []string) error {
	root := c.root()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if c.app != nil {
		if cerr := c.app.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close: %w", cerr))
		}
		c.app = nil
	}
	return err
}

func (c *cli) root() *cobra.Command {
	root := &cobra.Command{
		Use:           "rfpctl",
		Short:         "Work RFP assignments, answers and reports from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.open(cmd)
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", config.ConfigPath, "path to config.yaml")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.passwordCmd(),
		c.profileCmd(),
		c.sessionCmd(),
		c.docsCmd(),
		c.uploadCmd(),
		c.detailsCmd(),
		c.assignCmd(),
		c.unassignCmd(),
		c.reviewersCmd(),
		c.questionsCmd(),
		c.generateCmd(),
		c.editCmd(),
		c.submitCmd(),
		c.notForMeCmd(),
		c.versionsCmd(),
		c.refineCmd(),
		c.countsCmd(),
		c.analyzeCmd(),
		c.reportCmd(),
		c.scorecardCmd(),
		c.reviewCmd(),
		c.teamCmd(),
	)
	return root
}

func (c *cli) open(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	fc, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	level := fc.LogLevel
	if c.logLevel != "" {
		level = c.logLevel
	}
	logger := util.InitLoggerTo(os.Stderr, level)
	ctx := util.ContextWithLogger(cmd.Context(), logger)
	cmd.SetContext(ctx)

	a, err := app.New(ctx, app.FromFile(fc))
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	c.app = a
	return nil
}
