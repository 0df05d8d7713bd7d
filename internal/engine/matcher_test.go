package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthside/scullery/internal/frame"
	"github.com/hearthside/scullery/internal/ir"
	"github.com/hearthside/scullery/internal/store"
)

// completed builds a realized action record for matcher tests. The
// completion ID doubles as the record's identity for anchoring.
func completed(id string, action ir.ActionRef, input, output ir.Object) store.CompletedAction {
	return store.CompletedAction{
		Invocation: ir.Invocation{ID: "inv-" + id, FlowToken: "flow-1", Action: action, Input: input},
		Completion: ir.Completion{ID: id, InvocationID: "inv-" + id, Output: output},
	}
}

func TestMatchRecord_LiteralMismatchFails(t *testing.T) {
	pattern := Record{"method": Lit(ir.String("linear"))}
	concrete := ir.Object{"method": ir.String("ai")}

	_, ok := matchRecord(pattern, concrete, frame.New())
	assert.False(t, ok, "mismatched literal must never bind a frame")
}

func TestMatchRecord_LiteralMatchIgnoresExtraKeys(t *testing.T) {
	pattern := Record{"method": Lit(ir.String("linear"))}
	concrete := ir.Object{"method": ir.String("linear"), "servings": ir.Int(4)}

	f, ok := matchRecord(pattern, concrete, frame.New())
	require.True(t, ok, "pattern is a sub-record constraint")
	assert.Equal(t, 0, f.Len())
}

func TestMatchRecord_MissingKeyFails(t *testing.T) {
	v := frame.NewVar("servings")
	pattern := Record{"servings": V(v)}

	_, ok := matchRecord(pattern, ir.Object{"name": ir.String("Pie")}, frame.New())
	assert.False(t, ok)
}

func TestMatchRecord_VariableBindsOnFirstSight(t *testing.T) {
	v := frame.NewVar("recipe")
	pattern := Record{"recipe": V(v)}

	f, ok := matchRecord(pattern, ir.Object{"recipe": ir.String("r1")}, frame.New())
	require.True(t, ok)

	bound, ok := f.Get(v)
	require.True(t, ok)
	assert.Equal(t, ir.String("r1"), bound)
}

func TestMatchRecord_BoundVariableConstrains(t *testing.T) {
	v := frame.NewVar("recipe")
	f, ok := frame.New().Bind(v, ir.String("r1"))
	require.True(t, ok)

	_, ok = matchRecord(Record{"recipe": V(v)}, ir.Object{"recipe": ir.String("r2")}, f)
	assert.False(t, ok, "conflicting rebind must drop the frame")

	same, ok := matchRecord(Record{"recipe": V(v)}, ir.Object{"recipe": ir.String("r1")}, f)
	require.True(t, ok)
	assert.Equal(t, 1, same.Len())
}

func TestMatchAction_ActionRefMustMatch(t *testing.T) {
	rec := completed("c1", "Recipe.addRecipe", ir.Object{}, ir.Object{"recipe": ir.String("r1")})

	_, ok := matchAction(ActionPattern{Action: "Recipe.removeRecipe"}, rec.Invocation, rec.Completion, frame.New())
	assert.False(t, ok)
}

func TestMatchWhen_SinglePatternAnchorsOnTrigger(t *testing.T) {
	v := frame.NewVar("recipe")
	when := []ActionPattern{{
		Action: "Recipe.addRecipe",
		Output: Record{"recipe": V(v)},
	}}

	history := []store.CompletedAction{
		completed("c1", "Recipe.addRecipe", ir.Object{}, ir.Object{"recipe": ir.String("r1")}),
		completed("c2", "Recipe.addRecipe", ir.Object{}, ir.Object{"recipe": ir.String("r2")}),
	}

	// Triggered by c2: only the binding from c2 survives; c1 is old history
	// whose match does not consume the trigger.
	frames := matchWhen(when, history, "c2")
	require.Equal(t, 1, frames.Len())

	bound, ok := frames.Frames()[0].Get(v)
	require.True(t, ok)
	assert.Equal(t, ir.String("r2"), bound)
}

func TestMatchWhen_ConjunctiveSharedVariableJoinsRecords(t *testing.T) {
	request := frame.NewVar("request")
	recipe := frame.NewVar("recipe")

	when := []ActionPattern{
		{
			Action: "Requesting.request",
			Input:  Record{"path": Lit(ir.String("/recipes/create"))},
			Output: Record{"request": V(request)},
		},
		{
			Action: "Recipe.addRecipe",
			Output: Record{"recipe": V(recipe)},
		},
	}

	history := []store.CompletedAction{
		completed("c1", "Requesting.request",
			ir.Object{"path": ir.String("/recipes/create")},
			ir.Object{"request": ir.String("req-1")}),
		completed("c2", "Recipe.addRecipe", ir.Object{}, ir.Object{"recipe": ir.String("r1")}),
	}

	frames := matchWhen(when, history, "c2")
	require.Equal(t, 1, frames.Len())

	f := frames.Frames()[0]
	gotReq, _ := f.Get(request)
	gotRecipe, _ := f.Get(recipe)
	assert.Equal(t, ir.String("req-1"), gotReq)
	assert.Equal(t, ir.String("r1"), gotRecipe)
}

func TestMatchWhen_SharedVariableConflictYieldsZeroFrames(t *testing.T) {
	user := frame.NewVar("user")

	// Both patterns bind the same variable from records carrying different
	// concrete values: no consistent frame exists.
	when := []ActionPattern{
		{Action: "UserAuthentication.login", Output: Record{"user": V(user)}},
		{Action: "Recipe.addRecipe", Input: Record{"author": V(user)}},
	}

	history := []store.CompletedAction{
		completed("c1", "UserAuthentication.login", ir.Object{}, ir.Object{"user": ir.String("alice")}),
		completed("c2", "Recipe.addRecipe", ir.Object{"author": ir.String("bob")}, ir.Object{"recipe": ir.String("r1")}),
	}

	frames := matchWhen(when, history, "c2")
	assert.Equal(t, 0, frames.Len())
}

func TestMatchWhen_MissingConjunctYieldsZeroFrames(t *testing.T) {
	when := []ActionPattern{
		{Action: "Requesting.request", Output: Record{}},
		{Action: "Recipe.addRecipe", Output: Record{}},
	}

	history := []store.CompletedAction{
		completed("c2", "Recipe.addRecipe", ir.Object{}, ir.Object{"recipe": ir.String("r1")}),
	}

	frames := matchWhen(when, history, "c2")
	assert.Equal(t, 0, frames.Len())
}

func TestMatchWhen_NoAnchorMeansInert(t *testing.T) {
	when := []ActionPattern{{Action: "Recipe.addRecipe", Output: Record{}}}

	history := []store.CompletedAction{
		completed("c1", "Recipe.addRecipe", ir.Object{}, ir.Object{"recipe": ir.String("r1")}),
		completed("c2", "RecipeScaler.scaleManually", ir.Object{}, ir.Object{"scaledRecipeId": ir.String("s1")}),
	}

	// c2 triggered the evaluation but the when-clause only matches c1,
	// which is old history: the sync must stay inert rather than refire
	// off the old event.
	frames := matchWhen(when, history, "c2")
	assert.Equal(t, 0, frames.Len())
}

func TestMatchWhen_DuplicateBindingsCollapse(t *testing.T) {
	v := frame.NewVar("recipe")
	// Two identical patterns both matching the trigger produce one logical
	// frame, not two.
	when := []ActionPattern{
		{Action: "Recipe.addRecipe", Output: Record{"recipe": V(v)}},
	}

	history := []store.CompletedAction{
		completed("c1", "Recipe.addRecipe", ir.Object{}, ir.Object{"recipe": ir.String("r1")}),
	}

	frames := matchWhen(when, history, "c1")
	assert.Equal(t, 1, frames.Len())
}

func TestInstantiate_SubstitutesBoundVariables(t *testing.T) {
	v := frame.NewVar("recipe")
	f, _ := frame.New().Bind(v, ir.String("r1"))

	input, err := instantiate(Record{
		"recipe": V(v),
		"reason": Lit(ir.String("cleanup")),
	}, f)
	require.NoError(t, err)
	assert.Equal(t, ir.Object{
		"recipe": ir.String("r1"),
		"reason": ir.String("cleanup"),
	}, input)
}

func TestInstantiate_UnboundVariableIsAuthoringError(t *testing.T) {
	v := frame.NewVar("never_bound")

	_, err := instantiate(Record{"x": V(v)}, frame.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never_bound")
}

func TestMatchRecord_AbsenceConstraint(t *testing.T) {
	pattern := Record{"error": Absent()}

	_, ok := matchRecord(pattern, ir.Object{"error": ir.String("nope")}, frame.New())
	assert.False(t, ok, "present key must fail an absence constraint")

	f, ok := matchRecord(pattern, ir.Object{}, frame.New())
	require.True(t, ok)
	assert.Equal(t, 0, f.Len())
}

func TestMatchRecord_NestedRecordBindsInnerVariables(t *testing.T) {
	recipeID := frame.NewVar("recipeID")
	pattern := Record{"recipeContext": Rec(Record{"recipeId": V(recipeID)})}
	concrete := ir.Object{"recipeContext": ir.Object{
		"recipeId": ir.String("r1"),
		"name":     ir.String("Pie"),
	}}

	f, ok := matchRecord(pattern, concrete, frame.New())
	require.True(t, ok)
	bound, ok := f.Get(recipeID)
	require.True(t, ok)
	assert.Equal(t, ir.String("r1"), bound)
}

func TestInstantiate_NestedRecordAssemblesObject(t *testing.T) {
	recipeID := frame.NewVar("recipeID")
	name := frame.NewVar("name")
	f, _ := frame.New().Bind(recipeID, ir.String("r1"))
	f, _ = f.Bind(name, ir.String("Pie"))

	out, err := instantiate(Record{
		"recipeContext": Rec(Record{
			"recipeId": V(recipeID),
			"name":     V(name),
			"kind":     Lit(ir.String("base")),
		}),
	}, f)
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"recipeContext": ir.Object{
		"recipeId": ir.String("r1"),
		"name":     ir.String("Pie"),
		"kind":     ir.String("base"),
	}}, out)
}

func TestInstantiate_AbsenceConstraintIsAuthoringError(t *testing.T) {
	_, err := instantiate(Record{"error": Absent()}, frame.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absence constraint")
}
