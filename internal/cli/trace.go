package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hearthside/scullery/internal/ir"
	"github.com/hearthside/scullery/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	FlowToken string
	Action    string // optional - filter to specific action
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	FlowToken string             `json:"flow_token"`
	Timeline  []store.TraceEvent `json:"timeline"`
	Stats     TraceStats         `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Actions     int `json:"actions"`
	SyncFirings int `json:"sync_firings"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the causal chain of a flow",
		Long: `Show the causal chain of a flow.

Lists every completed action in the flow in log order, interleaved
with the rules that fired on each completion.

Examples:
  scullery trace --db ./scullery.db --flow 0192d7a1-...
  scullery trace --db ./scullery.db --flow 0192d7a1-... --action Recipe.addRecipe
  scullery trace --db ./scullery.db --flow 0192d7a1-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite action log (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.FlowToken, "flow", "", "flow token to trace (required)")
	_ = cmd.MarkFlagRequired("flow")
	cmd.Flags().StringVar(&opts.Action, "action", "", "filter to a specific action")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	timeline, err := st.ReadTrace(ctx, opts.FlowToken)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	if opts.Action != "" {
		filtered := timeline[:0]
		for _, event := range timeline {
			if string(event.Action) == opts.Action {
				filtered = append(filtered, event)
			}
		}
		timeline = filtered
	}

	if len(timeline) == 0 {
		if opts.Format == "json" {
			return outputTraceJSON(cmd, TraceResult{
				FlowToken: opts.FlowToken,
				Timeline:  []store.TraceEvent{},
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "No events found for flow: %s\n", opts.FlowToken)
		return nil
	}

	result := TraceResult{
		FlowToken: opts.FlowToken,
		Timeline:  timeline,
		Stats:     traceStats(timeline),
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

func traceStats(timeline []store.TraceEvent) TraceStats {
	stats := TraceStats{TotalEvents: len(timeline)}
	for _, event := range timeline {
		if event.SyncName != "" {
			stats.SyncFirings++
		} else {
			stats.Actions++
		}
	}
	return stats
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(CLIResponse{Status: "ok", Data: result})
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Trace for Flow: %s\n\n", result.FlowToken)

	fmt.Fprintln(w, "=== Timeline ===")
	for _, event := range result.Timeline {
		formatTimelineEvent(w, event, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Actions:      %d\n", result.Stats.Actions)
	fmt.Fprintf(w, "  Sync Firings: %d\n", result.Stats.SyncFirings)

	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event store.TraceEvent, verbose bool) {
	if event.SyncName != "" {
		fmt.Fprintf(w, "  [%d] SYNC %s\n", event.Seq, event.SyncName)
		return
	}

	fmt.Fprintf(w, "  [%d] %s\n", event.Seq, event.Action)
	if verbose {
		fmt.Fprintf(w, "       Input:  %s\n", formatObject(event.Input))
		fmt.Fprintf(w, "       Output: %s\n", formatObject(event.Output))
	}
}

// formatObject formats a record for display with sorted keys, so output
// is deterministic.
func formatObject(obj ir.Object) string {
	if len(obj) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(obj[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// formatValue formats a single value for display.
func formatValue(v ir.Value) string {
	switch val := v.(type) {
	case ir.Object:
		return formatObject(val)
	case ir.Array:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ir.String:
		return string(val)
	default:
		return fmt.Sprintf("%v", ir.ToGo(v))
	}
}
