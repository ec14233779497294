package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/resqmeals/gateway/config"
	"github.com/resqmeals/gateway/core/auditlog"
	"github.com/resqmeals/gateway/pkg/export"
)

var (
	exportFormat     string
	exportOut        string
	exportRestaurant string
	exportLimit      int
	exportSince      time.Duration
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the local audit log",
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recent audit records as CSV or JSON",
	RunE:  runAuditExport,
}

func init() {
	f := auditExportCmd.Flags()
	f.StringVarP(&exportFormat, "format", "f", string(export.FormatCSV), "output format (csv|json)")
	f.StringVarP(&exportOut, "out", "o", "", "output file (defaults to stdout)")
	f.StringVar(&exportRestaurant, "restaurant", "", "only records of this restaurant id")
	f.IntVar(&exportLimit, "limit", 0, "maximum number of records, newest first (0 uses the log default)")
	f.DurationVar(&exportSince, "since", 0, "only records newer than this duration")
	auditCmd.AddCommand(auditExportCmd)
	rootCmd.AddCommand(auditCmd)
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	format := export.Format(exportFormat)
	if format != export.FormatCSV && format != export.FormatJSON {
		return fmt.Errorf("unsupported format %q", exportFormat)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logs, err := auditlog.New(cfg.AuditLog)
	if err != nil {
		return err
	}
	defer logs.Close()

	q := auditlog.Query{Limit: exportLimit, RestaurantID: exportRestaurant}
	if exportSince > 0 {
		q.Since = time.Now().Add(-exportSince)
	}
	recs, err := logs.Recent(cmd.Context(), q)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return export.Write(w, format, recs)
}
