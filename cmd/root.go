package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/resqmeals/gateway/app"
	"github.com/resqmeals/gateway/config"
	"github.com/resqmeals/gateway/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "resqmeals",
	Short: "ResQMeals dispatch gateway",
	Long: "Serves the ResQMeals gateway: LLM helpers, partner data, audit log, " +
		"the full donation dispatch pipeline and the driver job console.",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (YAML or JSON); RESQ_ environment variables override it")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
