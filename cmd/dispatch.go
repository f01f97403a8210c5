package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ocppbridge/api/tasks"
	"github.com/kilianp07/ocppbridge/config"
	"github.com/kilianp07/ocppbridge/core/command"
)

var dispatchOpts struct {
	api     string
	targets []string
	payload string
	wait    time.Duration
	// limit builds a SetChargingProfile payload, e.g. "16A" or "7400W".
	limit     string
	connector int
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <kind>",
	Short: "Send a command to charge boxes through the task API",
	Args:  cobra.ExactArgs(1),
	RunE:  dispatchCommand,
}

func init() {
	f := dispatchCmd.Flags()
	f.StringVar(&dispatchOpts.api, "api", "", "task API base URL (defaults to the configured api.addr)")
	f.StringSliceVarP(&dispatchOpts.targets, "targets", "t", nil, "target charge box ids")
	f.StringVarP(&dispatchOpts.payload, "payload", "p", "{}", "command payload as JSON")
	f.DurationVarP(&dispatchOpts.wait, "wait", "w", 10*time.Second, "how long to wait for the answers")
	f.StringVar(&dispatchOpts.limit, "limit", "", "SetChargingProfile shortcut: cap the connector at e.g. 16A or 7400W")
	f.IntVar(&dispatchOpts.connector, "connector", 1, "connector id used with --limit")
	rootCmd.AddCommand(dispatchCmd)
}

func dispatchCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base, token, err := apiTarget()
	if err != nil {
		return err
	}
	payload := json.RawMessage(dispatchOpts.payload)
	if dispatchOpts.limit != "" {
		if args[0] != string(command.KindSetChargingProfile) {
			return fmt.Errorf("--limit only applies to %s", command.KindSetChargingProfile)
		}
		if payload, err = limitPayload(dispatchOpts.limit, dispatchOpts.connector, time.Now().UTC()); err != nil {
			return err
		}
	}
	body, err := json.Marshal(tasks.DispatchRequest{
		Kind:    args[0],
		Targets: dispatchOpts.targets,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	var accepted tasks.DispatchResponse
	if err := doJSON(ctx, http.MethodPost, base+"/api/tasks", token, body, http.StatusAccepted, &accepted); err != nil {
		return err
	}
	q := url.Values{"wait": {dispatchOpts.wait.String()}}
	var view json.RawMessage
	if err := doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/api/tasks/%s?%s", base, accepted.TaskID, q.Encode()), token, nil, http.StatusOK, &view); err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, view, "", "  "); err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out.String())
	return err
}

func apiTarget() (string, string, error) {
	if dispatchOpts.api != "" {
		return strings.TrimSuffix(dispatchOpts.api, "/"), "", nil
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return "", "", fmt.Errorf("load config: %w", err)
	}
	addr := cfg.API.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr, cfg.API.Token, nil
}

func doJSON(ctx context.Context, method, target, token string, body []byte, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		return fmt.Errorf("%s %s: %s: %s", method, target, resp.Status, strings.TrimSpace(string(data)))
	}
	return json.Unmarshal(data, out)
}

// limitPayload renders a single-period absolute profile for s ("16A", "7400W").
func limitPayload(s string, connector int, start time.Time) (json.RawMessage, error) {
	s = strings.TrimSpace(s)
	unit := command.RateUnitA
	switch {
	case strings.HasSuffix(s, "W"):
		unit = command.RateUnitW
		s = strings.TrimSuffix(s, "W")
	case strings.HasSuffix(s, "A"):
		s = strings.TrimSuffix(s, "A")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("invalid limit %q", s)
	}
	return json.Marshal(command.SetChargingProfile{
		ConnectorID: connector,
		Profile:     command.NewLimitProfile(1, v, unit, start),
	})
}
