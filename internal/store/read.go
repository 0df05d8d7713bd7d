package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hearthside/scullery/internal/ir"
)

// CompletedAction pairs an invocation with its completion: the realized
// (input, output) record the when-clause matcher unifies against.
type CompletedAction struct {
	Invocation ir.Invocation
	Completion ir.Completion
}

// ReadInvocation retrieves an invocation by ID.
func (s *Store) ReadInvocation(ctx context.Context, id string) (ir.Invocation, error) {
	var inv ir.Invocation
	var inputJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, flow_token, action, input, seq
		FROM invocations WHERE id = ?
	`, id).Scan(&inv.ID, &inv.FlowToken, &inv.Action, &inputJSON, &inv.Seq)
	if err == sql.ErrNoRows {
		return ir.Invocation{}, fmt.Errorf("invocation %s not found", id)
	}
	if err != nil {
		return ir.Invocation{}, fmt.Errorf("read invocation %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(inputJSON), &inv.Input); err != nil {
		return ir.Invocation{}, fmt.Errorf("read invocation %s: decode input: %w", id, err)
	}
	return inv, nil
}

// ReadFlowHistory returns every completed action in a flow, in completion
// order. The matcher evaluates multi-pattern when-clauses against this
// history.
func (s *Store) ReadFlowHistory(ctx context.Context, flowToken string) ([]CompletedAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.flow_token, i.action, i.input, i.seq,
		       c.id, c.invocation_id, c.output, c.seq
		FROM completions c
		JOIN invocations i ON i.id = c.invocation_id
		WHERE i.flow_token = ?
		ORDER BY c.seq
	`, flowToken)
	if err != nil {
		return nil, fmt.Errorf("read flow history %s: %w", flowToken, err)
	}
	defer rows.Close()

	var history []CompletedAction
	for rows.Next() {
		var rec CompletedAction
		var inputJSON, outputJSON string
		if err := rows.Scan(
			&rec.Invocation.ID, &rec.Invocation.FlowToken, &rec.Invocation.Action,
			&inputJSON, &rec.Invocation.Seq,
			&rec.Completion.ID, &rec.Completion.InvocationID, &outputJSON, &rec.Completion.Seq,
		); err != nil {
			return nil, fmt.Errorf("read flow history %s: scan: %w", flowToken, err)
		}
		if err := json.Unmarshal([]byte(inputJSON), &rec.Invocation.Input); err != nil {
			return nil, fmt.Errorf("read flow history %s: decode input: %w", flowToken, err)
		}
		if err := json.Unmarshal([]byte(outputJSON), &rec.Completion.Output); err != nil {
			return nil, fmt.Errorf("read flow history %s: decode output: %w", flowToken, err)
		}
		history = append(history, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read flow history %s: %w", flowToken, err)
	}
	return history, nil
}

// TraceEvent is one step in a flow's causal chain, as reported by the
// trace CLI.
type TraceEvent struct {
	Seq      int64     `json:"seq"`
	Action   ir.ActionRef `json:"action"`
	Input    ir.Object `json:"input"`
	Output   ir.Object `json:"output,omitempty"`
	SyncName string    `json:"sync_name,omitempty"`
}

// ReadTrace reconstructs the causal chain of a flow: completed actions in
// order, annotated with the syncs that fired on each completion.
func (s *Store) ReadTrace(ctx context.Context, flowToken string) ([]TraceEvent, error) {
	history, err := s.ReadFlowHistory(ctx, flowToken)
	if err != nil {
		return nil, err
	}

	var trace []TraceEvent
	for _, rec := range history {
		trace = append(trace, TraceEvent{
			Seq:    rec.Completion.Seq,
			Action: rec.Invocation.Action,
			Input:  rec.Invocation.Input,
			Output: rec.Completion.Output,
		})

		firings, err := s.readFirings(ctx, rec.Completion.ID)
		if err != nil {
			return nil, err
		}
		for _, f := range firings {
			trace = append(trace, TraceEvent{
				Seq:      f.Seq,
				SyncName: f.SyncName,
			})
		}
	}
	return trace, nil
}

// MaxSeq returns the highest sequence number in the log, or 0 when the
// log is empty. Used to position the clock when resuming a database.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var maxSeq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM (
			SELECT seq FROM invocations
			UNION ALL
			SELECT seq FROM completions
			UNION ALL
			SELECT seq FROM sync_firings
		)
	`).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("read max seq: %w", err)
	}
	return maxSeq, nil
}

// readFirings returns the sync firings recorded for a completion, in order.
func (s *Store) readFirings(ctx context.Context, completionID string) ([]ir.SyncFiring, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, completion_id, sync_name, binding_hash, seq
		FROM sync_firings WHERE completion_id = ? ORDER BY seq
	`, completionID)
	if err != nil {
		return nil, fmt.Errorf("read firings for %s: %w", completionID, err)
	}
	defer rows.Close()

	var firings []ir.SyncFiring
	for rows.Next() {
		var f ir.SyncFiring
		if err := rows.Scan(&f.ID, &f.CompletionID, &f.SyncName, &f.BindingHash, &f.Seq); err != nil {
			return nil, fmt.Errorf("read firings for %s: scan: %w", completionID, err)
		}
		firings = append(firings, f)
	}
	return firings, rows.Err()
}
