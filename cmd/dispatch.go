package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/resqmeals/gateway/app"
	"github.com/resqmeals/gateway/config"
	"github.com/resqmeals/gateway/core/dispatch"
	"github.com/resqmeals/gateway/core/fault"
	"github.com/resqmeals/gateway/infra/logger"
)

var dispatchReq dispatch.Request

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run one donation dispatch and print the result as JSON",
	RunE:  runDispatch,
}

func init() {
	f := dispatchCmd.Flags()
	f.StringVarP(&dispatchReq.Message, "message", "m", "", "restaurant surplus message")
	f.StringVar(&dispatchReq.RestaurantID, "restaurant", "", "restaurant id (defaults to dispatch.default_restaurant_id)")
	f.StringSliceVar(&dispatchReq.Accepts, "accepts", nil, "food categories the charity must accept")
	f.StringVar(&dispatchReq.AcceptLink, "accept-link", "", "link drivers use to accept the pickup")
	_ = dispatchCmd.MarkFlagRequired("message")
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
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
	logg := logger.New("dispatch-command")
	defer func() {
		if err := svc.Close(); err != nil {
			logg.Errorf("service close: %v", err)
		}
	}()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	res, err := svc.Pipeline.Run(ctx, dispatchReq)
	if err != nil {
		var se *dispatch.StepError
		if errors.As(err, &se) {
			_ = enc.Encode(map[string]any{"error": err.Error(), "stage": se.Stage, "debug": fault.Debug(err)})
		}
		return err
	}
	return enc.Encode(res)
}
