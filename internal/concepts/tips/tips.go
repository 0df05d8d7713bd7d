// Package tips implements the ScalingTips concept: practical advice for
// scaling recipes up or down, either contributed manually or generated by a
// language model from a recipe's scaling context.
package tips

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hearthside/scullery/internal/concept"
	"github.com/hearthside/scullery/internal/docstore"
	"github.com/hearthside/scullery/internal/ir"
	"github.com/hearthside/scullery/internal/llm"
)

const tipsCollection = "ScalingTips.tips"

// Tip sources recorded on each document.
const (
	SourceManual = "manual"
	SourceAI     = "ai"
)

// Scaling directions.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Concept holds the tips collection and the language model used for
// generated tips.
type Concept struct {
	tips *docstore.Collection
	llm  llm.Client
	now  func() time.Time
}

func New(store *docstore.Store, client llm.Client) *Concept {
	return &Concept{
		tips: store.Collection(tipsCollection),
		llm:  client,
		now:  time.Now,
	}
}

// WithClock substitutes the time source, for tests.
func (c *Concept) WithClock(now func() time.Time) *Concept {
	c.now = now
	return c
}

func (c *Concept) Name() string { return "ScalingTips" }

func (c *Concept) Actions() map[string]concept.Action {
	return map[string]concept.Action{
		"addManualScalingTip":  c.addManualScalingTip,
		"requestTipGeneration": c.requestTipGeneration,
		"removeScalingTip":     c.removeScalingTip,
	}
}

func (c *Concept) Queries() map[string]concept.Query {
	return map[string]concept.Query{
		"_getScalingTips":    c.getScalingTips,
		"_getScalingTipById": c.getScalingTipByID,
	}
}

// addManualScalingTip stores a user-contributed tip.
// Input: {cookingMethod, direction, tipText, addedBy}.
// Output: {tipId} or {error}.
func (c *Concept) addManualScalingTip(ctx context.Context, input ir.Object) ir.Object {
	cookingMethod, _ := input["cookingMethod"].(ir.String)
	direction, _ := input["direction"].(ir.String)
	tipText, _ := input["tipText"].(ir.String)
	addedBy, _ := input["addedBy"].(ir.String)

	if direction != DirectionUp && direction != DirectionDown {
		return concept.ErrorOutput("Direction must be 'up' or 'down'.")
	}
	if cookingMethod == "" {
		return concept.ErrorOutput("Cooking method cannot be empty.")
	}
	if tipText == "" {
		return concept.ErrorOutput("Tip text cannot be empty.")
	}

	tipID := uuid.Must(uuid.NewV7()).String()
	if err := c.tips.Insert(ctx, tipID, ir.Object{
		"cookingMethod": cookingMethod,
		"direction":     direction,
		"text":          tipText,
		"source":        ir.String(SourceManual),
		"addedBy":       addedBy,
		"createdAt":     ir.Int(c.now().UnixMilli()),
	}); err != nil {
		return concept.ErrorOutput(fmt.Sprintf("tip creation failed: %v", err))
	}

	return ir.Object{"tipId": ir.String(tipID)}
}

// requestTipGeneration asks the language model for one scaling tip given
// full recipe context. The direction is derived from the serving change.
// Input: {recipeContext: {recipeId, name, originalServings, targetServings,
// ingredients, cookingMethods}}. Output: {tipId} or {error}.
func (c *Concept) requestTipGeneration(ctx context.Context, input ir.Object) ir.Object {
	recipeContext, ok := input["recipeContext"].(ir.Object)
	if !ok {
		return concept.ErrorOutput("recipeContext is required.")
	}

	original, _ := recipeContext["originalServings"].(ir.Int)
	target, _ := recipeContext["targetServings"].(ir.Int)
	if original <= 0 || target <= 0 {
		return concept.ErrorOutput("recipeContext must include originalServings and targetServings.")
	}

	direction := DirectionUp
	if target < original {
		direction = DirectionDown
	}

	prompt, err := tipPrompt(recipeContext, direction)
	if err != nil {
		return concept.ErrorOutput(fmt.Sprintf("tip generation failed: %v", err))
	}

	text, err := c.llm.Complete(ctx, prompt)
	if err != nil {
		return concept.ErrorOutput(fmt.Sprintf("tip generation failed: %v", err))
	}

	// A cooking method gives the tip a retrieval bucket; fall back to the
	// recipe name when the context has none.
	cookingMethod := ""
	if methods, ok := recipeContext["cookingMethods"].(ir.Array); ok && len(methods) > 0 {
		if m, ok := methods[0].(ir.String); ok {
			cookingMethod = string(m)
		}
	}
	if cookingMethod == "" {
		if name, ok := recipeContext["name"].(ir.String); ok {
			cookingMethod = string(name)
		}
	}

	tipID := uuid.Must(uuid.NewV7()).String()
	doc := ir.Object{
		"cookingMethod": ir.String(cookingMethod),
		"direction":     ir.String(direction),
		"text":          ir.String(text),
		"source":        ir.String(SourceAI),
		"createdAt":     ir.Int(c.now().UnixMilli()),
	}
	if recipeID, ok := recipeContext["recipeId"].(ir.String); ok {
		doc["recipeId"] = recipeID
	}
	if err := c.tips.Insert(ctx, tipID, doc); err != nil {
		return concept.ErrorOutput(fmt.Sprintf("tip creation failed: %v", err))
	}

	return ir.Object{"tipId": ir.String(tipID)}
}

// removeScalingTip deletes a tip by id.
// Input: {tipId}. Output: {} or {error}.
func (c *Concept) removeScalingTip(ctx context.Context, input ir.Object) ir.Object {
	tipID, _ := input["tipId"].(ir.String)

	deleted, err := c.tips.Delete(ctx, string(tipID))
	if err != nil {
		return concept.ErrorOutput(fmt.Sprintf("tip deletion failed: %v", err))
	}
	if !deleted {
		return concept.ErrorOutput(fmt.Sprintf("Tip with ID %s not found.", tipID))
	}
	return ir.Object{}
}

// getScalingTips filters tips by cooking method and direction.
func (c *Concept) getScalingTips(ctx context.Context, input ir.Object) ([]ir.Object, error) {
	cookingMethod, _ := input["cookingMethod"].(ir.String)
	direction, _ := input["direction"].(ir.String)

	docs, err := c.tips.Find(ctx, ir.Object{
		"cookingMethod": cookingMethod,
		"direction":     direction,
	})
	if err != nil {
		return nil, fmt.Errorf("tip lookup: %w", err)
	}
	return docs, nil
}

func (c *Concept) getScalingTipByID(ctx context.Context, input ir.Object) ([]ir.Object, error) {
	tipID, _ := input["tipId"].(ir.String)

	doc, found, err := c.tips.Get(ctx, string(tipID))
	if err != nil {
		return nil, fmt.Errorf("tip lookup: %w", err)
	}
	if !found {
		return nil, nil
	}
	return []ir.Object{doc}, nil
}

// tipPrompt renders the tip generation instructions with the recipe context
// embedded as JSON.
func tipPrompt(recipeContext ir.Object, direction string) (string, error) {
	contextJSON, err := json.MarshalIndent(recipeContext, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal recipe context: %w", err)
	}

	return `You are a helpful AI assistant that gives practical advice for scaling recipes.

- Input: A recipe with a name, its original number of servings, the target number of servings, a list of ingredients, and cooking methods.
- Output: ONE concise, practical tip for scaling this recipe ` + direction + `.

The tip should address the hardest part of this particular scaling: pan sizes, cooking times, seasoning adjustments, or ingredients whose scaling context says they do not scale linearly.

Here is the recipe being scaled:
` + string(contextJSON) + `

Return ONLY the tip text as a single plain sentence or two, no additional formatting.`, nil
}
