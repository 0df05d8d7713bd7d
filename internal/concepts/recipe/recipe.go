// Package recipe implements the Recipe concept: manually entered recipes with
// ingredients, cooking methods, and an original serving count, stored per
// author and read by the scaling and tips features.
package recipe

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hearthside/scullery/internal/concept"
	"github.com/hearthside/scullery/internal/docstore"
	"github.com/hearthside/scullery/internal/ir"
)

const recipesCollection = "Recipe.recipes"

// Concept holds the recipes collection.
type Concept struct {
	recipes *docstore.Collection
}

func New(store *docstore.Store) *Concept {
	return &Concept{recipes: store.Collection(recipesCollection)}
}

func (c *Concept) Name() string { return "Recipe" }

func (c *Concept) Actions() map[string]concept.Action {
	return map[string]concept.Action{
		"addRecipe":    c.addRecipe,
		"removeRecipe": c.removeRecipe,
	}
}

func (c *Concept) Queries() map[string]concept.Query {
	return map[string]concept.Query{
		"_getRecipeById":      c.getRecipeByID,
		"_getRecipeByName":    c.getRecipeByName,
		"_getRecipesByAuthor": c.getRecipesByAuthor,
	}
}

// addRecipe stores a new recipe.
// Input: {author, name, originalServings, ingredients, cookingMethods}.
// Output: {recipe} or {error}. Names are unique per author, not globally.
func (c *Concept) addRecipe(ctx context.Context, input ir.Object) ir.Object {
	author, _ := input["author"].(ir.String)
	name, _ := input["name"].(ir.String)

	servings, ok := input["originalServings"].(ir.Int)
	if !ok {
		if _, isFloat := input["originalServings"].(ir.Float); isFloat {
			return concept.ErrorOutput("originalServings must be an integer.")
		}
		return concept.ErrorOutput("originalServings must be greater than 0.")
	}
	if servings <= 0 {
		return concept.ErrorOutput("originalServings must be greater than 0.")
	}

	ingredients, _ := input["ingredients"].(ir.Array)
	if len(ingredients) == 0 {
		return concept.ErrorOutput("Recipe must have at least one ingredient.")
	}

	cookingMethods, ok := input["cookingMethods"].(ir.Array)
	if !ok {
		cookingMethods = ir.Array{}
	}

	_, found, err := c.recipes.FindOne(ctx, ir.Object{"author": author, "name": name})
	if err != nil {
		return concept.ErrorOutput(fmt.Sprintf("recipe lookup failed: %v", err))
	}
	if found {
		return concept.ErrorOutput(fmt.Sprintf("A recipe named '%s' already exists for this author.", name))
	}

	recipeID := uuid.Must(uuid.NewV7()).String()
	if err := c.recipes.Insert(ctx, recipeID, ir.Object{
		"author":           author,
		"name":             name,
		"originalServings": servings,
		"ingredients":      ingredients,
		"cookingMethods":   cookingMethods,
	}); err != nil {
		return concept.ErrorOutput(fmt.Sprintf("recipe creation failed: %v", err))
	}

	return ir.Object{"recipe": ir.String(recipeID)}
}

// removeRecipe deletes a recipe by id.
// Input: {recipeId}. Output: {} or {error}. Ownership is not checked here;
// authorization is composed in at a higher level.
func (c *Concept) removeRecipe(ctx context.Context, input ir.Object) ir.Object {
	recipeID, _ := input["recipeId"].(ir.String)

	deleted, err := c.recipes.Delete(ctx, string(recipeID))
	if err != nil {
		return concept.ErrorOutput(fmt.Sprintf("recipe deletion failed: %v", err))
	}
	if !deleted {
		return concept.ErrorOutput(fmt.Sprintf("Recipe with ID %s not found.", recipeID))
	}
	return ir.Object{}
}

// RecipeByID is the programmatic form of the _getRecipeById query, for
// collaborating concepts that need full base recipe context.
func (c *Concept) RecipeByID(ctx context.Context, recipeID string) (ir.Object, bool, error) {
	return c.recipes.Get(ctx, recipeID)
}

func (c *Concept) getRecipeByID(ctx context.Context, input ir.Object) ([]ir.Object, error) {
	recipeID, _ := input["recipeId"].(ir.String)

	doc, found, err := c.RecipeByID(ctx, string(recipeID))
	if err != nil {
		return nil, fmt.Errorf("recipe lookup: %w", err)
	}
	if !found {
		return nil, nil
	}
	return []ir.Object{doc}, nil
}

func (c *Concept) getRecipeByName(ctx context.Context, input ir.Object) ([]ir.Object, error) {
	name, _ := input["recipeName"].(ir.String)
	author, _ := input["author"].(ir.String)

	doc, found, err := c.recipes.FindOne(ctx, ir.Object{"name": name, "author": author})
	if err != nil {
		return nil, fmt.Errorf("recipe lookup: %w", err)
	}
	if !found {
		return nil, nil
	}
	return []ir.Object{doc}, nil
}

func (c *Concept) getRecipesByAuthor(ctx context.Context, input ir.Object) ([]ir.Object, error) {
	author, _ := input["author"].(ir.String)

	docs, err := c.recipes.Find(ctx, ir.Object{"author": author})
	if err != nil {
		return nil, fmt.Errorf("recipe lookup: %w", err)
	}
	return docs, nil
}
