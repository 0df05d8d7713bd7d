package syncs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthside/scullery/internal/concept"
	"github.com/hearthside/scullery/internal/concepts/recipe"
	"github.com/hearthside/scullery/internal/concepts/requesting"
	"github.com/hearthside/scullery/internal/concepts/scaler"
	"github.com/hearthside/scullery/internal/concepts/tips"
	"github.com/hearthside/scullery/internal/concepts/userauth"
	"github.com/hearthside/scullery/internal/docstore"
	"github.com/hearthside/scullery/internal/engine"
	"github.com/hearthside/scullery/internal/ir"
	"github.com/hearthside/scullery/internal/llm"
	"github.com/hearthside/scullery/internal/store"
)

// fixture assembles the full application: real concepts over in-memory
// storage, the complete rule set, and a scripted language model.
type fixture struct {
	eng      *engine.Engine
	registry *concept.Registry
	req      *requesting.Concept
	store    *store.Store
	scripted *llm.Scripted
}

func newFixture(t *testing.T, scripted *llm.Scripted) *fixture {
	t.Helper()

	logStore, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { logStore.Close() })

	docs, err := docstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })

	req := requesting.New().WithTimeout(time.Second)
	recipes := recipe.New(docs)
	registry, err := concept.NewRegistry(
		req,
		userauth.New(docs),
		recipes,
		scaler.New(docs, recipes, scripted),
		tips.New(docs, scripted),
	)
	require.NoError(t, err)

	eng, err := engine.New(logStore, registry, All(), engine.UUIDv7Generator{})
	require.NoError(t, err)

	return &fixture{
		eng:      eng,
		registry: registry,
		req:      req,
		store:    logStore,
		scripted: scripted,
	}
}

// post simulates one HTTP request: record it, drain the engine, and collect
// the response the rules produced. The returned flow token lets tests
// inspect the causal history.
func (fx *fixture) post(t *testing.T, path string, body ir.Object) (ir.Object, string) {
	t.Helper()
	ctx := context.Background()

	input := ir.Object{"path": ir.String(path)}
	for k, v := range body {
		input[k] = v
	}

	flow, ok := fx.eng.Submit(requestingRequest, input)
	require.True(t, ok)
	require.NoError(t, fx.eng.Drain(ctx))

	payload, err := fx.req.Await(ctx, flow)
	require.NoError(t, err, "every request must resolve to exactly one response")
	return payload, flow
}

// respondCount counts how many responses fired in a flow. The complete rule
// set must produce exactly one per request.
func (fx *fixture) respondCount(t *testing.T, flow string) int {
	t.Helper()
	history, err := fx.store.ReadFlowHistory(context.Background(), flow)
	require.NoError(t, err)
	n := 0
	for _, rec := range history {
		if rec.Invocation.Action == requestingRespond {
			n++
		}
	}
	return n
}

// invocationCount counts completed invocations of one action in a flow.
func (fx *fixture) invocationCount(t *testing.T, flow string, action ir.ActionRef) int {
	t.Helper()
	history, err := fx.store.ReadFlowHistory(context.Background(), flow)
	require.NoError(t, err)
	n := 0
	for _, rec := range history {
		if rec.Invocation.Action == action {
			n++
		}
	}
	return n
}

// registerAndLogin provisions a user directly through the registry (auth
// routes are passthrough, not rule-driven) and returns (userID, sessionID).
func (fx *fixture) registerAndLogin(t *testing.T, username, password string) (ir.String, ir.String) {
	t.Helper()
	ctx := context.Background()

	reg := fx.registry.Invoke(ctx, "UserAuthentication.register", ir.Object{
		"username": ir.String(username),
		"password": ir.String(password),
	})
	require.NotContains(t, reg, "error")

	login := fx.registry.Invoke(ctx, "UserAuthentication.login", ir.Object{
		"username": ir.String(username),
		"password": ir.String(password),
	})
	require.NotContains(t, login, "error")
	return login["user"].(ir.String), login["sessionId"].(ir.String)
}

func recipeBody(sessionID ir.String) ir.Object {
	return ir.Object{
		"sessionId":        sessionID,
		"name":             ir.String("Apple Pie"),
		"originalServings": ir.Int(8),
		"ingredients": ir.Array{
			ir.Object{"name": ir.String("Apples"), "quantity": ir.Float(6), "unit": ir.String("medium"), "scalingContext": ir.String("fruit")},
			ir.Object{"name": ir.String("Cinnamon"), "quantity": ir.Float(1), "unit": ir.String("tsp"), "scalingContext": ir.String("to taste")},
		},
		"cookingMethods": ir.Array{ir.String("Baking")},
	}
}

func (fx *fixture) createRecipe(t *testing.T, sessionID ir.String) ir.String {
	t.Helper()
	payload, _ := fx.post(t, PathAddRecipe, recipeBody(sessionID))
	require.NotContains(t, payload, "error")
	return payload["recipe"].(ir.String)
}

func TestRecipeCreation_AuthenticatedSuccess(t *testing.T) {
	fx := newFixture(t, &llm.Scripted{})
	userID, sessionID := fx.registerAndLogin(t, "alice", "password123")

	payload, flow := fx.post(t, PathAddRecipe, recipeBody(sessionID))
	require.NotContains(t, payload, "error")
	recipeID := payload["recipe"].(ir.String)

	rows, err := fx.registry.RunQuery(context.Background(), recipeGetByID,
		ir.Object{"recipeId": recipeID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, userID, rows[0]["author"], "author comes from the session, not the body")

	assert.Equal(t, 1, fx.respondCount(t, flow))
}

func TestRecipeCreation_AuthenticationFailure(t *testing.T) {
	fx := newFixture(t, &llm.Scripted{})

	payload, flow := fx.post(t, PathAddRecipe, recipeBody(ir.String("bogus-session")))
	assert.Equal(t, ir.String(AuthFailedMessage), payload["error"])

	assert.Equal(t, 1, fx.respondCount(t, flow))
	assert.Equal(t, 0, fx.invocationCount(t, flow, recipeAdd), "no recipe may be created")
}

func TestRecipeCreation_ValidationErrorRelayed(t *testing.T) {
	fx := newFixture(t, &llm.Scripted{})
	_, sessionID := fx.registerAndLogin(t, "alice", "password123")

	body := recipeBody(sessionID)
	body["ingredients"] = ir.Array{}
	payload, flow := fx.post(t, PathAddRecipe, body)

	assert.Equal(t, ir.String("Recipe must have at least one ingredient."), payload["error"])
	assert.Equal(t, 1, fx.respondCount(t, flow))
}

func TestRecipeDeletion_OwnerSucceeds(t *testing.T) {
	fx := newFixture(t, &llm.Scripted{})
	_, aliceSession := fx.registerAndLogin(t, "alice", "password123")
	recipeID := fx.createRecipe(t, aliceSession)

	payload, flow := fx.post(t, PathRemoveRecipe, ir.Object{
		"sessionId": aliceSession,
		"recipeId":  recipeID,
	})
	assert.NotContains(t, payload, "error")
	assert.Equal(t, 1, fx.respondCount(t, flow))

	rows, err := fx.registry.RunQuery(context.Background(), recipeGetByID,
		ir.Object{"recipeId": recipeID})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRecipeDeletion_ForeignRecipeDenied(t *testing.T) {
	fx := newFixture(t, &llm.Scripted{})
	_, aliceSession := fx.registerAndLogin(t, "alice", "password123")
	_, bobSession := fx.registerAndLogin(t, "bob", "password456")
	recipeID := fx.createRecipe(t, aliceSession)

	payload, flow := fx.post(t, PathRemoveRecipe, ir.Object{
		"sessionId": bobSession,
		"recipeId":  recipeID,
	})
	assert.Equal(t, ir.String(RecipeOwnershipDeniedMessage), payload["error"])
	assert.Equal(t, 1, fx.respondCount(t, flow))
	assert.Equal(t, 0, fx.invocationCount(t, flow, recipeRemove))

	rows, err := fx.registry.RunQuery(context.Background(), recipeGetByID,
		ir.Object{"recipeId": recipeID})
	require.NoError(t, err)
	assert.Len(t, rows, 1, "the recipe must survive")
}

func TestManualScaling_Success(t *testing.T) {
	fx := newFixture(t, &llm.Scripted{})
	_, sessionID := fx.registerAndLogin(t, "alice", "password123")
	recipeID := fx.createRecipe(t, sessionID)

	payload, flow := fx.post(t, PathScaleManually, ir.Object{
		"sessionId":      sessionID,
		"baseRecipeId":   recipeID,
		"targetServings": ir.Int(4),
	})
	require.NotContains(t, payload, "error")
	require.Contains(t, payload, "scaledRecipeId")
	assert.Equal(t, 1, fx.respondCount(t, flow))
}

func TestManualScaling_BusinessErrorRelayed(t *testing.T) {
	fx := newFixture(t, &llm.Scripted{})
	_, sessionID := fx.registerAndLogin(t, "alice", "password123")
	recipeID := fx.createRecipe(t, sessionID)

	payload, flow := fx.post(t, PathScaleManually, ir.Object{
		"sessionId":      sessionID,
		"baseRecipeId":   recipeID,
		"targetServings": ir.Int(8), // equals originalServings
	})
	assert.Equal(t, ir.String("targetServings (8) cannot be equal to originalServings (8)."), payload["error"])
	assert.Equal(t, 1, fx.respondCount(t, flow))
}

func TestAIScaling_ChainsTipGeneration(t *testing.T) {
	scripted := &llm.Scripted{Responses: []string{
		// First completion: the scaled ingredients.
		`{"name": "Apple Pie", "ingredients": [{"name": "Apples", "quantity": 3, "unit": "medium", "scalingContext": "fruit"}]}`,
		// Second completion: the generated tip.
		"Halve the apples but keep the cinnamon close to original; taste before baking.",
	}}
	fx := newFixture(t, scripted)
	_, sessionID := fx.registerAndLogin(t, "alice", "password123")
	recipeID := fx.createRecipe(t, sessionID)

	payload, flow := fx.post(t, PathScaleRecipeAI, ir.Object{
		"sessionId":      sessionID,
		"baseRecipeId":   recipeID,
		"targetServings": ir.Int(4),
	})
	require.NotContains(t, payload, "error")
	require.Contains(t, payload, "scaledRecipeId")
	assert.Equal(t, 1, fx.respondCount(t, flow))

	// The tip generation chained off the scaling without any client request.
	assert.Equal(t, 1, fx.invocationCount(t, flow, tipsGenerate))

	rows, err := fx.registry.RunQuery(context.Background(), "ScalingTips._getScalingTips",
		ir.Object{"cookingMethod": ir.String("Baking"), "direction": ir.String("down")})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ir.String("ai"), rows[0]["source"])
	assert.Equal(t, recipeID, rows[0]["recipeId"])
}

func TestAIScaling_ModelErrorRelayed(t *testing.T) {
	scripted := &llm.Scripted{Responses: []string{"not json at all"}}
	fx := newFixture(t, scripted)
	_, sessionID := fx.registerAndLogin(t, "alice", "password123")
	recipeID := fx.createRecipe(t, sessionID)

	payload, flow := fx.post(t, PathScaleRecipeAI, ir.Object{
		"sessionId":      sessionID,
		"baseRecipeId":   recipeID,
		"targetServings": ir.Int(4),
	})
	require.Contains(t, payload, "error")
	assert.Contains(t, string(payload["error"].(ir.String)), "AI scaling failed")
	assert.Equal(t, 1, fx.respondCount(t, flow))
	assert.Equal(t, 0, fx.invocationCount(t, flow, tipsGenerate),
		"failed scaling must not generate tips")
}

func TestScaledRecipeDeletion_OwnerSucceeds(t *testing.T) {
	fx := newFixture(t, &llm.Scripted{})
	_, sessionID := fx.registerAndLogin(t, "alice", "password123")
	recipeID := fx.createRecipe(t, sessionID)

	scalePayload, _ := fx.post(t, PathScaleManually, ir.Object{
		"sessionId":      sessionID,
		"baseRecipeId":   recipeID,
		"targetServings": ir.Int(4),
	})
	scaledID := scalePayload["scaledRecipeId"].(ir.String)

	payload, flow := fx.post(t, PathRemoveScaledRecipe, ir.Object{
		"sessionId":      sessionID,
		"scaledRecipeId": scaledID,
	})
	assert.NotContains(t, payload, "error")
	assert.Equal(t, 1, fx.respondCount(t, flow))
}

func TestScaledRecipeDeletion_ForeignBaseRecipeDenied(t *testing.T) {
	fx := newFixture(t, &llm.Scripted{})
	_, aliceSession := fx.registerAndLogin(t, "alice", "password123")
	_, bobSession := fx.registerAndLogin(t, "bob", "password456")
	recipeID := fx.createRecipe(t, aliceSession)

	scalePayload, _ := fx.post(t, PathScaleManually, ir.Object{
		"sessionId":      aliceSession,
		"baseRecipeId":   recipeID,
		"targetServings": ir.Int(4),
	})
	scaledID := scalePayload["scaledRecipeId"].(ir.String)

	payload, flow := fx.post(t, PathRemoveScaledRecipe, ir.Object{
		"sessionId":      bobSession,
		"scaledRecipeId": scaledID,
	})
	assert.Equal(t, ir.String(ScaledOwnershipDeniedMessage), payload["error"])
	assert.Equal(t, 1, fx.respondCount(t, flow))
	assert.Equal(t, 0, fx.invocationCount(t, flow, scalerRemove))
}

func TestScaling_AuthenticationFailure(t *testing.T) {
	fx := newFixture(t, &llm.Scripted{})
	_, sessionID := fx.registerAndLogin(t, "alice", "password123")
	recipeID := fx.createRecipe(t, sessionID)

	payload, flow := fx.post(t, PathScaleManually, ir.Object{
		"sessionId":      ir.String("expired"),
		"baseRecipeId":   recipeID,
		"targetServings": ir.Int(4),
	})
	assert.Equal(t, ir.String(AuthFailedMessage), payload["error"])
	assert.Equal(t, 1, fx.respondCount(t, flow))
	assert.Equal(t, 0, fx.invocationCount(t, flow, scalerManual))
}

func TestAll_RegistersWithoutValidationErrors(t *testing.T) {
	logStore, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { logStore.Close() })

	docs, err := docstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })

	recipes := recipe.New(docs)
	registry, err := concept.NewRegistry(
		requesting.New(), userauth.New(docs), recipes,
		scaler.New(docs, recipes, &llm.Scripted{}), tips.New(docs, &llm.Scripted{}),
	)
	require.NoError(t, err)

	_, err = engine.New(logStore, registry, All(), engine.UUIDv7Generator{})
	assert.NoError(t, err)
}
