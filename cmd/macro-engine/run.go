package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"macro-go-engine/internal/action"
	"macro-go-engine/internal/engine"
	"macro-go-engine/internal/macro"
	"macro-go-engine/internal/permission"
)

// RunReport is the output of the run command.
type RunReport struct {
	RunID   string        `json:"run_id" yaml:"run_id"`
	Macro   string        `json:"macro" yaml:"macro"`
	Mode    engine.Mode   `json:"mode" yaml:"mode"`
	Status  engine.Status `json:"status" yaml:"status"`
	Summary string        `json:"summary" yaml:"summary"`
	Error   string        `json:"error,omitempty" yaml:"error,omitempty"`
	Log     []string      `json:"log" yaml:"log"`
}

// CheckReport is the output of the check command.
type CheckReport struct {
	Macro       string   `json:"macro" yaml:"macro"`
	Unsupported []string `json:"unsupported" yaml:"unsupported"`
	Required    []string `json:"required_permissions" yaml:"required_permissions"`
	Missing     []string `json:"missing_permissions" yaml:"missing_permissions"`
	AllGranted  bool     `json:"all_granted" yaml:"all_granted"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <macro-file>",
		Short: "Run a macro file once and print the outcome",
		Args:  cobra.ExactArgs(1),
		RunE:  runMacro,
	}
	cmd.Flags().String("mode", "", "Execution mode: demo, web, hybrid, android (default from config)")
	cmd.Flags().String("format", "yaml", "Output format: yaml, json")
	return cmd
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <macro-file>",
		Short: "List steps Android cannot run and permissions the macro needs",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}
	cmd.Flags().String("format", "yaml", "Output format: yaml, json")
	return cmd
}

func runMacro(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format); err != nil {
		return err
	}
	cfg, err := configFromFlags(cmd, true)
	if err != nil {
		return err
	}
	if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
		m, err := engine.ParseMode(mode)
		if err != nil {
			return err
		}
		cfg.Engine.Mode = string(m)
	}
	m, err := macro.LoadFile(args[0])
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	a, err := newApp(cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.close()

	// Stream log lines as steps complete.
	progress := cmd.ErrOrStderr()
	unsub := a.engine.Events().On(func(ev engine.Event) {
		if run, ok := ev.Data.(engine.Run); ok && len(run.Log) > 0 {
			fmt.Fprintf(progress, "[%d/%d] %s\n", run.CurrentStep, run.TotalSteps, run.Log[len(run.Log)-1])
		}
	}, engine.EventRunStep)
	defer unsub()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	id, err := a.engine.StartRun(ctx, m)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		a.engine.CancelRun(id)
	}()
	run, err := a.engine.Wait(context.Background(), id)
	if err != nil {
		return err
	}

	report := RunReport{
		RunID:   run.ID,
		Macro:   run.MacroName,
		Mode:    run.Mode,
		Status:  run.Status,
		Summary: run.Summary,
		Error:   run.Error,
		Log:     run.Log,
	}
	if err := printReport(cmd.OutOrStdout(), format, report); err != nil {
		return err
	}
	if run.Status == engine.StatusFailed {
		return fmt.Errorf("macro %q failed: %s", m.Name, run.Summary)
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format); err != nil {
		return err
	}
	cfg, err := configFromFlags(cmd, true)
	if err != nil {
		return err
	}
	m, err := macro.LoadFile(args[0])
	if err != nil {
		return err
	}

	perms, err := permission.NewManager(permission.Config{AutoGrant: cfg.Permissions.AutoGrant}, newLogger(cfg))
	if err != nil {
		return err
	}
	check := perms.CheckMacro(m)

	report := CheckReport{
		Macro:       m.Name,
		Unsupported: action.UnsupportedSteps(m.Steps),
		Required:    permission.Required(m),
		AllGranted:  check.AllGranted,
	}
	for _, info := range check.Missing {
		report.Missing = append(report.Missing, info.Name)
	}
	return printReport(cmd.OutOrStdout(), format, report)
}

func checkFormat(format string) error {
	switch format {
	case "yaml", "json":
		return nil
	}
	return fmt.Errorf("unsupported format: %s (use yaml or json)", format)
}

func printReport(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("json encode: %w", err)
		}
		return nil
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("yaml encode: %w", err)
		}
		return enc.Close()
	}
}
