package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hearthside/scullery/internal/ir"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Config string
	Args   string
}

// InvokeResult is the invoke command's JSON payload.
type InvokeResult struct {
	Action    string      `json:"action"`
	FlowToken string      `json:"flow_token,omitempty"`
	Output    ir.Object   `json:"output,omitempty"`
	Rows      []ir.Object `json:"rows,omitempty"`
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <Concept.action>",
		Short: "Invoke a concept action or query against the local databases",
		Long: `Invoke a concept action or query against the local databases.

Actions are submitted through the rule engine, so any rules they
trigger fire as well and the whole flow lands in the action log.
Queries (underscore prefix) run directly and print their rows.

Examples:
  scullery invoke UserAuthentication.register --args '{"username":"alice","password":"hunter2-long"}'
  scullery invoke Recipe._getRecipesByAuthor --args '{"author":"..."}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(cmd, opts, ir.ActionRef(args[0]))
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "action arguments as JSON")

	return cmd
}

func runInvoke(cmd *cobra.Command, opts *InvokeOptions, ref ir.ActionRef) error {
	ctx := context.Background()

	var input ir.Object
	if err := json.Unmarshal([]byte(opts.Args), &input); err != nil {
		return WrapExitError(ExitCommandError, "invalid --args JSON", err)
	}

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	application, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	if ref.IsQuery() {
		if !application.registry.HasQuery(ref) {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown query: %s", ref))
		}
		rows, err := application.registry.RunQuery(ctx, ref, input)
		if err != nil {
			return WrapExitError(ExitCommandError, "query failed", err)
		}
		return outputInvoke(cmd, opts, InvokeResult{Action: string(ref), Rows: rows})
	}

	if !application.registry.HasAction(ref) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown action: %s", ref))
	}

	flow, ok := application.eng.Submit(ref, input)
	if !ok {
		return NewExitError(ExitCommandError, "engine rejected the invocation")
	}
	if err := application.eng.Drain(ctx); err != nil {
		return WrapExitError(ExitCommandError, "engine failed", err)
	}

	// The submitted invocation is the first completion in the flow.
	history, err := application.logStore.ReadFlowHistory(ctx, flow)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read flow history", err)
	}
	result := InvokeResult{Action: string(ref), FlowToken: flow}
	for _, rec := range history {
		if rec.Invocation.Action == ref {
			result.Output = rec.Completion.Output
			break
		}
	}
	return outputInvoke(cmd, opts, result)
}

func outputInvoke(cmd *cobra.Command, opts *InvokeOptions, result InvokeResult) error {
	w := cmd.OutOrStdout()

	if opts.Format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: result})
	}

	if result.Rows != nil {
		fmt.Fprintf(w, "%s: %d row(s)\n", result.Action, len(result.Rows))
		for _, row := range result.Rows {
			fmt.Fprintf(w, "  %s\n", formatObject(row))
		}
		return nil
	}

	fmt.Fprintf(w, "Flow: %s\n", result.FlowToken)
	fmt.Fprintf(w, "%s -> %s\n", result.Action, formatObject(result.Output))
	return nil
}
