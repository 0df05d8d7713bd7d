package engine

import "context"

type ctxKey int

const flowTokenKey ctxKey = iota

// WithFlowToken attaches a flow token to the context. The engine does this
// for every action invocation so concepts that correlate external work with
// a flow (ingress, tracing) can read it back.
func WithFlowToken(ctx context.Context, flowToken string) context.Context {
	return context.WithValue(ctx, flowTokenKey, flowToken)
}

// FlowTokenFromContext returns the flow token of the invocation being
// executed, or "" outside an engine invocation.
func FlowTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(flowTokenKey).(string)
	return token
}
