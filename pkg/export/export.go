// Package export renders metric snapshots for offline inspection.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/ocppbridge/core/model"
)

// Format names an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

var csvHeader = []string{
	"timestamp", "energy_wh", "power_w", "frequency_hz",
	"current_l1", "current_l2", "current_l3",
	"voltage_l1", "voltage_l2", "voltage_l3",
}

// Write encodes snaps to w in format f.
func Write(w io.Writer, f Format, snaps []model.MetricSnapshot) error {
	switch f {
	case FormatJSON, "":
		return WriteJSON(w, snaps)
	case FormatCSV:
		return WriteCSV(w, snaps)
	default:
		return fmt.Errorf("export: unknown format %q", f)
	}
}

// WriteJSON writes snaps as an indented JSON array.
func WriteJSON(w io.Writer, snaps []model.MetricSnapshot) error {
	if snaps == nil {
		snaps = []model.MetricSnapshot{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snaps)
}

// WriteCSV writes one row per snapshot. Missing phases are left empty.
func WriteCSV(w io.Writer, snaps []model.MetricSnapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range snaps {
		rec := []string{
			s.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(s.Energy),
			formatFloat(s.Power),
			formatFloat(s.Frequency),
		}
		rec = append(rec, phases(s.Current)...)
		rec = append(rec, phases(s.Voltage)...)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func phases(vals []float64) []string {
	out := make([]string, 3)
	for i := 0; i < len(vals) && i < 3; i++ {
		out[i] = formatFloat(vals[i])
	}
	return out
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
