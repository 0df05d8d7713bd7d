// Package scaler implements the RecipeScaler concept: scaled versions of
// existing recipes, adjusted either linearly or by a language model that
// interprets each ingredient's scaling context.
package scaler

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hearthside/scullery/internal/concept"
	"github.com/hearthside/scullery/internal/docstore"
	"github.com/hearthside/scullery/internal/ir"
	"github.com/hearthside/scullery/internal/llm"
)

const scaledRecipesCollection = "RecipeScaler.scaledRecipes"

// Scaling methods recorded on each scaled recipe.
const (
	MethodManual = "manual"
	MethodAI     = "ai"
)

// RecipeSource supplies base recipe context. The Recipe concept satisfies it.
type RecipeSource interface {
	RecipeByID(ctx context.Context, recipeID string) (ir.Object, bool, error)
}

// Concept holds the scaled recipes collection and its collaborators.
type Concept struct {
	scaled  *docstore.Collection
	recipes RecipeSource
	llm     llm.Client
	now     func() time.Time
}

func New(store *docstore.Store, recipes RecipeSource, client llm.Client) *Concept {
	return &Concept{
		scaled:  store.Collection(scaledRecipesCollection),
		recipes: recipes,
		llm:     client,
		now:     time.Now,
	}
}

// WithClock substitutes the time source, for tests.
func (c *Concept) WithClock(now func() time.Time) *Concept {
	c.now = now
	return c
}

func (c *Concept) Name() string { return "RecipeScaler" }

func (c *Concept) Actions() map[string]concept.Action {
	return map[string]concept.Action{
		"scaleManually":      c.scaleManually,
		"scaleRecipeAI":      c.scaleRecipeAI,
		"removeScaledRecipe": c.removeScaledRecipe,
	}
}

func (c *Concept) Queries() map[string]concept.Query {
	return map[string]concept.Query{
		"_getScaledRecipe":              c.getScaledRecipe,
		"_findScaledRecipe":             c.findScaledRecipe,
		"_getScaledRecipesByBaseRecipe": c.getScaledRecipesByBaseRecipe,
	}
}

// validateTarget checks the shared preconditions of both scaling actions and
// returns the base recipe on success.
func (c *Concept) validateTarget(ctx context.Context, input ir.Object) (ir.Object, ir.String, ir.Int, ir.Object) {
	baseRecipeID, _ := input["baseRecipeId"].(ir.String)

	base, found, err := c.recipes.RecipeByID(ctx, string(baseRecipeID))
	if err != nil {
		return nil, "", 0, concept.ErrorOutput(fmt.Sprintf("recipe lookup failed: %v", err))
	}
	if !found {
		return nil, "", 0, concept.ErrorOutput(fmt.Sprintf("Base recipe with ID %s not found.", baseRecipeID))
	}

	target, ok := input["targetServings"].(ir.Int)
	if !ok || target <= 0 {
		return nil, "", 0, concept.ErrorOutput("targetServings must be greater than 0.")
	}
	original, _ := base["originalServings"].(ir.Int)
	if target == original {
		return nil, "", 0, concept.ErrorOutput(fmt.Sprintf(
			"targetServings (%d) cannot be equal to originalServings (%d).", target, original))
	}

	return base, baseRecipeID, target, nil
}

// upsert creates or refreshes the scaled recipe for (base, target, method).
// Rescaling the same combination overwrites the previous result rather than
// accumulating rows.
func (c *Concept) upsert(ctx context.Context, baseRecipeID ir.String, target ir.Int, method string, ingredients ir.Array) (string, error) {
	key := ir.Object{
		"baseRecipeId":   baseRecipeID,
		"targetServings": target,
		"scalingMethod":  ir.String(method),
	}
	doc := ir.Object{
		"baseRecipeId":      baseRecipeID,
		"targetServings":    target,
		"scalingMethod":     ir.String(method),
		"scaledIngredients": ingredients,
		"generatedAt":       ir.Int(c.now().UnixMilli()),
	}

	existing, found, err := c.scaled.FindOne(ctx, key)
	if err != nil {
		return "", err
	}
	if found {
		id := string(existing["_id"].(ir.String))
		if err := c.scaled.Update(ctx, id, doc); err != nil {
			return "", err
		}
		return id, nil
	}

	id := uuid.Must(uuid.NewV7()).String()
	if err := c.scaled.Insert(ctx, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

// scaleManually scales ingredient quantities linearly by target/original,
// rounded to two decimal places.
// Input: {baseRecipeId, targetServings}. Output: {scaledRecipeId} or {error}.
func (c *Concept) scaleManually(ctx context.Context, input ir.Object) ir.Object {
	base, baseRecipeID, target, errOut := c.validateTarget(ctx, input)
	if errOut != nil {
		return errOut
	}

	original, _ := base["originalServings"].(ir.Int)
	factor := float64(target) / float64(original)

	ingredients, _ := base["ingredients"].(ir.Array)
	scaled := make(ir.Array, 0, len(ingredients))
	for _, v := range ingredients {
		ing, ok := v.(ir.Object)
		if !ok {
			continue
		}
		out := make(ir.Object, len(ing))
		for k, val := range ing {
			out[k] = val
		}
		if q, ok := asFloat(ing["quantity"]); ok {
			out["quantity"] = ir.Float(math.Round(q*factor*100) / 100)
		}
		scaled = append(scaled, out)
	}

	id, err := c.upsert(ctx, baseRecipeID, target, MethodManual, scaled)
	if err != nil {
		return concept.ErrorOutput(fmt.Sprintf("scaled recipe storage failed: %v", err))
	}
	return ir.Object{"scaledRecipeId": ir.String(id)}
}

// scaleRecipeAI asks the language model to scale the full recipe context,
// honoring each ingredient's scalingContext instead of a strict linear factor.
// Input: {baseRecipeId, targetServings}. Output: {scaledRecipeId} or {error}.
func (c *Concept) scaleRecipeAI(ctx context.Context, input ir.Object) ir.Object {
	base, baseRecipeID, target, errOut := c.validateTarget(ctx, input)
	if errOut != nil {
		return errOut
	}

	ingredients, _ := base["ingredients"].(ir.Array)
	cookingMethods, _ := base["cookingMethods"].(ir.Array)
	recipeContext := ir.Object{
		"name":             base["name"],
		"originalServings": base["originalServings"],
		"targetServings":   target,
		"ingredients":      ingredients,
		"cookingMethods":   cookingMethods,
	}

	prompt, err := scalePrompt(recipeContext)
	if err != nil {
		return concept.ErrorOutput(fmt.Sprintf("AI scaling failed: %v", err))
	}

	response, err := c.llm.Complete(ctx, prompt)
	if err != nil {
		return concept.ErrorOutput(fmt.Sprintf("AI scaling failed: %v", err))
	}

	scaled, err := parseScaledIngredients(response)
	if err != nil {
		return concept.ErrorOutput(fmt.Sprintf("AI scaling failed: %v", err))
	}

	id, err := c.upsert(ctx, baseRecipeID, target, MethodAI, scaled)
	if err != nil {
		return concept.ErrorOutput(fmt.Sprintf("scaled recipe storage failed: %v", err))
	}
	return ir.Object{"scaledRecipeId": ir.String(id)}
}

// removeScaledRecipe deletes a scaled recipe by id.
// Input: {scaledRecipeId}. Output: {} or {error}.
func (c *Concept) removeScaledRecipe(ctx context.Context, input ir.Object) ir.Object {
	scaledRecipeID, _ := input["scaledRecipeId"].(ir.String)

	deleted, err := c.scaled.Delete(ctx, string(scaledRecipeID))
	if err != nil {
		return concept.ErrorOutput(fmt.Sprintf("scaled recipe deletion failed: %v", err))
	}
	if !deleted {
		return concept.ErrorOutput(fmt.Sprintf("Scaled recipe with ID %s not found.", scaledRecipeID))
	}
	return ir.Object{}
}

func (c *Concept) getScaledRecipe(ctx context.Context, input ir.Object) ([]ir.Object, error) {
	scaledRecipeID, _ := input["scaledRecipeId"].(ir.String)

	doc, found, err := c.scaled.Get(ctx, string(scaledRecipeID))
	if err != nil {
		return nil, fmt.Errorf("scaled recipe lookup: %w", err)
	}
	if !found {
		return nil, nil
	}
	return []ir.Object{doc}, nil
}

func (c *Concept) findScaledRecipe(ctx context.Context, input ir.Object) ([]ir.Object, error) {
	baseRecipeID, _ := input["baseRecipeId"].(ir.String)
	target, _ := input["targetServings"].(ir.Int)

	doc, found, err := c.scaled.FindOne(ctx, ir.Object{
		"baseRecipeId":   baseRecipeID,
		"targetServings": target,
	})
	if err != nil {
		return nil, fmt.Errorf("scaled recipe lookup: %w", err)
	}
	if !found {
		return nil, nil
	}
	return []ir.Object{doc}, nil
}

func (c *Concept) getScaledRecipesByBaseRecipe(ctx context.Context, input ir.Object) ([]ir.Object, error) {
	baseRecipeID, _ := input["baseRecipeId"].(ir.String)

	docs, err := c.scaled.Find(ctx, ir.Object{"baseRecipeId": baseRecipeID})
	if err != nil {
		return nil, fmt.Errorf("scaled recipe lookup: %w", err)
	}
	return docs, nil
}

// asFloat widens Int or Float values to float64.
func asFloat(v ir.Value) (float64, bool) {
	switch n := v.(type) {
	case ir.Int:
		return float64(n), true
	case ir.Float:
		return float64(n), true
	default:
		return 0, false
	}
}

// parseScaledIngredients strips Markdown code fences from a model response
// and extracts the scaled ingredients array.
func parseScaledIngredients(response string) (ir.Array, error) {
	sanitized := strings.ReplaceAll(response, "```json", "")
	sanitized = strings.ReplaceAll(sanitized, "```", "")
	sanitized = strings.TrimSpace(sanitized)

	var parsed ir.Object
	if err := json.Unmarshal([]byte(sanitized), &parsed); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}
	ingredients, ok := parsed["ingredients"].(ir.Array)
	if !ok {
		return nil, fmt.Errorf("response has no ingredients array")
	}
	return ingredients, nil
}

// scalePrompt renders the scaling instructions with the full recipe context
// embedded as JSON.
func scalePrompt(recipeContext ir.Object) (string, error) {
	contextJSON, err := json.MarshalIndent(recipeContext, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal recipe context: %w", err)
	}

	return `You are a helpful AI assistant that scales ingredients for recipes.

- Input: A recipe with a name, its original number of servings, the target number of servings, a list of ingredients, and cooking methods.
- Output: A JSON object with the scaled ingredients.

- Each ingredient in the input has:
    - name: The name of the ingredient.
    - quantity: The original quantity of the ingredient.
    - unit: The unit of measurement for the ingredient.
    - scalingContext: A description of helpful information to be used when deciding on how much to scale the ingredient.

The final output list of ingredients should be able to feed the specified target number of servings.
Each ingredient should be scaled appropriately, considering its scaling context (some ingredients might not need to be scaled exactly according to the linear scale factor).

CRITICAL REQUIREMENTS:
- Scale the ingredients based on the ratio of targetServings to originalServings (does NOT need to be followed strictly).
- Maintain the scaling context for each ingredient in the output.
- Return the result in a strict JSON format as specified below.

Here is the recipe to scale:
` + string(contextJSON) + `

Return your response as a JSON object with this exact structure:
{
  "name": "Example Recipe",
  "ingredients": [
    {
      "name": "Ingredient Name",
      "quantity": 0,
      "unit": "Unit of Measurement",
      "scalingContext": "Scaling Context Description"
    }
  ]
}

Return ONLY the JSON object, no additional text.`, nil
}
