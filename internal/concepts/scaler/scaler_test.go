package scaler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthside/scullery/internal/concepts/recipe"
	"github.com/hearthside/scullery/internal/docstore"
	"github.com/hearthside/scullery/internal/ir"
	"github.com/hearthside/scullery/internal/llm"
)

func newTestConcepts(t *testing.T, client llm.Client) (*Concept, *recipe.Concept) {
	t.Helper()
	store, err := docstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	recipes := recipe.New(store)
	return New(store, recipes, client), recipes
}

func addBaseRecipe(t *testing.T, recipes *recipe.Concept, servings int64) ir.String {
	t.Helper()
	out := recipes.Actions()["addRecipe"](context.Background(), ir.Object{
		"author":           ir.String("user-alice"),
		"name":             ir.String("Pancakes"),
		"originalServings": ir.Int(servings),
		"ingredients": ir.Array{
			ir.Object{"name": ir.String("Flour"), "quantity": ir.Float(2), "unit": ir.String("cups"), "scalingContext": ir.String("dry")},
			ir.Object{"name": ir.String("Salt"), "quantity": ir.Float(0.5), "unit": ir.String("tsp"), "scalingContext": ir.String("to taste")},
		},
		"cookingMethods": ir.Array{ir.String("Mix"), ir.String("Fry")},
	})
	require.NotContains(t, out, "error")
	return out["recipe"].(ir.String)
}

func TestScaleManually_LinearTwoDecimalPlaces(t *testing.T) {
	c, recipes := newTestConcepts(t, &llm.Scripted{})
	ctx := context.Background()

	baseID := addBaseRecipe(t, recipes, 4)

	out := c.scaleManually(ctx, ir.Object{
		"baseRecipeId":   baseID,
		"targetServings": ir.Int(6),
	})
	require.NotContains(t, out, "error")
	scaledID := out["scaledRecipeId"].(ir.String)

	rows, err := c.getScaledRecipe(ctx, ir.Object{"scaledRecipeId": scaledID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	doc := rows[0]
	assert.Equal(t, baseID, doc["baseRecipeId"])
	assert.Equal(t, ir.Int(6), doc["targetServings"])
	assert.Equal(t, ir.String("manual"), doc["scalingMethod"])

	scaled := doc["scaledIngredients"].(ir.Array)
	require.Len(t, scaled, 2)
	flour := scaled[0].(ir.Object)
	salt := scaled[1].(ir.Object)
	assert.Equal(t, ir.Float(3), flour["quantity"])
	assert.Equal(t, ir.Float(0.75), salt["quantity"])
	assert.Equal(t, ir.String("to taste"), salt["scalingContext"])
}

func TestScaleManually_Preconditions(t *testing.T) {
	c, recipes := newTestConcepts(t, &llm.Scripted{})
	ctx := context.Background()

	baseID := addBaseRecipe(t, recipes, 4)

	out := c.scaleManually(ctx, ir.Object{
		"baseRecipeId":   ir.String("missing-recipe"),
		"targetServings": ir.Int(6),
	})
	assert.Equal(t, ir.String("Base recipe with ID missing-recipe not found."), out["error"])

	out = c.scaleManually(ctx, ir.Object{
		"baseRecipeId":   baseID,
		"targetServings": ir.Int(0),
	})
	assert.Equal(t, ir.String("targetServings must be greater than 0."), out["error"])

	out = c.scaleManually(ctx, ir.Object{
		"baseRecipeId":   baseID,
		"targetServings": ir.Int(4),
	})
	assert.Equal(t, ir.String("targetServings (4) cannot be equal to originalServings (4)."), out["error"])
}

func TestScaleManually_UpsertsSameTarget(t *testing.T) {
	c, recipes := newTestConcepts(t, &llm.Scripted{})
	ctx := context.Background()

	baseID := addBaseRecipe(t, recipes, 4)

	first := c.scaleManually(ctx, ir.Object{"baseRecipeId": baseID, "targetServings": ir.Int(8)})
	second := c.scaleManually(ctx, ir.Object{"baseRecipeId": baseID, "targetServings": ir.Int(8)})
	require.NotContains(t, first, "error")
	require.NotContains(t, second, "error")
	assert.Equal(t, first["scaledRecipeId"], second["scaledRecipeId"])

	rows, err := c.getScaledRecipesByBaseRecipe(ctx, ir.Object{"baseRecipeId": baseID})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestScaleRecipeAI_UsesModelOutput(t *testing.T) {
	scripted := &llm.Scripted{Responses: []string{
		"```json\n{\"name\": \"Pancakes\", \"ingredients\": [" +
			"{\"name\": \"Flour\", \"quantity\": 4, \"unit\": \"cups\", \"scalingContext\": \"dry\"}," +
			"{\"name\": \"Salt\", \"quantity\": 0.5, \"unit\": \"tsp\", \"scalingContext\": \"to taste\"}" +
			"]}\n```",
	}}
	c, recipes := newTestConcepts(t, scripted)
	ctx := context.Background()

	baseID := addBaseRecipe(t, recipes, 4)

	out := c.scaleRecipeAI(ctx, ir.Object{
		"baseRecipeId":   baseID,
		"targetServings": ir.Int(8),
	})
	require.NotContains(t, out, "error")

	require.Len(t, scripted.Prompts, 1)
	assert.Contains(t, scripted.Prompts[0], `"targetServings": 8`)
	assert.Contains(t, scripted.Prompts[0], "Pancakes")

	rows, err := c.getScaledRecipe(ctx, ir.Object{"scaledRecipeId": out["scaledRecipeId"]})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ir.String("ai"), rows[0]["scalingMethod"])

	scaled := rows[0]["scaledIngredients"].(ir.Array)
	require.Len(t, scaled, 2)
	salt := scaled[1].(ir.Object)
	// The model kept "to taste" salt sub-linear; stored verbatim.
	assert.Equal(t, ir.Float(0.5), salt["quantity"])
}

func TestScaleRecipeAI_ModelFailureIsErrorRecord(t *testing.T) {
	scripted := &llm.Scripted{Err: errors.New("rate limited")}
	c, recipes := newTestConcepts(t, scripted)

	baseID := addBaseRecipe(t, recipes, 4)

	out := c.scaleRecipeAI(context.Background(), ir.Object{
		"baseRecipeId":   baseID,
		"targetServings": ir.Int(8),
	})
	require.Contains(t, out, "error")
	assert.Contains(t, string(out["error"].(ir.String)), "AI scaling failed")
}

func TestScaleRecipeAI_MalformedResponseIsErrorRecord(t *testing.T) {
	scripted := &llm.Scripted{Responses: []string{"sorry, I cannot help with that"}}
	c, recipes := newTestConcepts(t, scripted)

	baseID := addBaseRecipe(t, recipes, 4)

	out := c.scaleRecipeAI(context.Background(), ir.Object{
		"baseRecipeId":   baseID,
		"targetServings": ir.Int(8),
	})
	require.Contains(t, out, "error")
	assert.Contains(t, string(out["error"].(ir.String)), "AI scaling failed")
}

func TestRemoveScaledRecipe(t *testing.T) {
	c, recipes := newTestConcepts(t, &llm.Scripted{})
	ctx := context.Background()

	baseID := addBaseRecipe(t, recipes, 4)
	out := c.scaleManually(ctx, ir.Object{"baseRecipeId": baseID, "targetServings": ir.Int(2)})
	scaledID := out["scaledRecipeId"].(ir.String)

	removed := c.removeScaledRecipe(ctx, ir.Object{"scaledRecipeId": scaledID})
	assert.Equal(t, ir.Object{}, removed)

	again := c.removeScaledRecipe(ctx, ir.Object{"scaledRecipeId": scaledID})
	assert.Equal(t, ir.String("Scaled recipe with ID "+string(scaledID)+" not found."), again["error"])
}

func TestFindScaledRecipe_MatchesBaseAndTarget(t *testing.T) {
	c, recipes := newTestConcepts(t, &llm.Scripted{})
	ctx := context.Background()

	baseID := addBaseRecipe(t, recipes, 4)
	c.scaleManually(ctx, ir.Object{"baseRecipeId": baseID, "targetServings": ir.Int(2)})
	c.scaleManually(ctx, ir.Object{"baseRecipeId": baseID, "targetServings": ir.Int(6)})

	rows, err := c.findScaledRecipe(ctx, ir.Object{
		"baseRecipeId":   baseID,
		"targetServings": ir.Int(6),
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ir.Int(6), rows[0]["targetServings"])

	rows, err = c.findScaledRecipe(ctx, ir.Object{
		"baseRecipeId":   baseID,
		"targetServings": ir.Int(100),
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
