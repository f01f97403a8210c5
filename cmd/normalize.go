package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ocppbridge/core/model"
	"github.com/kilianp07/ocppbridge/core/telemetry"
	"github.com/kilianp07/ocppbridge/pkg/export"
)

var (
	normalizeAll    bool
	normalizeFormat string
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize <meter-values.json>",
	Short: "Convert a MeterValues payload into metric snapshots",
	Long: "Reads a MeterValues request payload from a file (or - for stdin) and prints\n" +
		"the snapshots that would be published, one per meter value.",
	Args: cobra.ExactArgs(1),
	RunE: normalizeFile,
}

func init() {
	normalizeCmd.Flags().BoolVar(&normalizeAll, "all", false, "include snapshots without any reading")
	normalizeCmd.Flags().StringVarP(&normalizeFormat, "format", "f", "json", "output format: json or csv")
	rootCmd.AddCommand(normalizeCmd)
}

func normalizeFile(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	var req model.MeterValuesRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return fmt.Errorf("decode meter values: %w", err)
	}
	snaps := make([]model.MetricSnapshot, 0, len(req.MeterValue))
	for _, mv := range req.MeterValue {
		s := telemetry.Normalize(mv)
		if normalizeAll || s.Eligible() {
			snaps = append(snaps, s)
		}
	}
	return export.Write(cmd.OutOrStdout(), export.Format(normalizeFormat), snaps)
}
