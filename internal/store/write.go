package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hearthside/scullery/internal/ir"
)

// WriteInvocation inserts an invocation record into the log.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - the engine may deliver
// the same content-addressed record more than once.
func (s *Store) WriteInvocation(ctx context.Context, inv ir.Invocation) error {
	inputJSON, err := json.Marshal(inv.Input)
	if err != nil {
		return fmt.Errorf("write invocation: marshal input: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invocations (id, flow_token, action, input, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		inv.ID,
		inv.FlowToken,
		string(inv.Action),
		string(inputJSON),
		inv.Seq,
	)
	if err != nil {
		return fmt.Errorf("write invocation: %w", err)
	}
	return nil
}

// WriteCompletion inserts a completion record into the log.
// Each invocation can have exactly one completion (UNIQUE on invocation_id);
// duplicate writes are silently ignored for idempotency.
//
// The invocation referenced by InvocationID must already exist (FK).
func (s *Store) WriteCompletion(ctx context.Context, comp ir.Completion) error {
	outputJSON, err := json.Marshal(comp.Output)
	if err != nil {
		return fmt.Errorf("write completion: marshal output: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO completions (id, invocation_id, output, seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		comp.ID,
		comp.InvocationID,
		string(outputJSON),
		comp.Seq,
	)
	if err != nil {
		return fmt.Errorf("write completion: %w", err)
	}
	return nil
}

// WriteSyncFiring records that a sync fired for a completion.
// Firings are observability records, not a dedupe mechanism: the engine is
// stateless per event and re-delivering an event fires syncs again.
func (s *Store) WriteSyncFiring(ctx context.Context, firing ir.SyncFiring) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_firings (completion_id, sync_name, binding_hash, seq)
		VALUES (?, ?, ?, ?)
	`,
		firing.CompletionID,
		firing.SyncName,
		firing.BindingHash,
		firing.Seq,
	)
	if err != nil {
		return 0, fmt.Errorf("write sync firing: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("write sync firing: last insert id: %w", err)
	}
	return id, nil
}
