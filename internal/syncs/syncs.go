// Package syncs holds the canonical rule set wiring HTTP ingress to concept
// actions: recipe creation and deletion, manual and AI scaling, scaled recipe
// deletion, and the automatic tip generation chained off AI scaling.
//
// Every route carries a complete, mutually exclusive set of response rules
// (success, business error, authentication failure, ownership failure where
// applicable) so each request resolves to exactly one respond.
package syncs

import (
	"context"

	"github.com/hearthside/scullery/internal/engine"
	"github.com/hearthside/scullery/internal/frame"
	"github.com/hearthside/scullery/internal/ir"
)

// Action and query references the rules are written against.
const (
	requestingRequest = ir.ActionRef("Requesting.request")
	requestingRespond = ir.ActionRef("Requesting.respond")

	recipeAdd     = ir.ActionRef("Recipe.addRecipe")
	recipeRemove  = ir.ActionRef("Recipe.removeRecipe")
	recipeGetByID = ir.ActionRef("Recipe._getRecipeById")

	scalerManual    = ir.ActionRef("RecipeScaler.scaleManually")
	scalerAI        = ir.ActionRef("RecipeScaler.scaleRecipeAI")
	scalerRemove    = ir.ActionRef("RecipeScaler.removeScaledRecipe")
	scalerGetScaled = ir.ActionRef("RecipeScaler._getScaledRecipe")

	tipsGenerate = ir.ActionRef("ScalingTips.requestTipGeneration")

	authGetActiveSession = ir.ActionRef("UserAuthentication._getActiveSession")
)

// Routes served through the rule set.
const (
	PathAddRecipe          = "/Recipe/addRecipe"
	PathRemoveRecipe       = "/Recipe/removeRecipe"
	PathScaleManually      = "/RecipeScaler/scaleManually"
	PathScaleRecipeAI      = "/RecipeScaler/scaleRecipeAI"
	PathRemoveScaledRecipe = "/RecipeScaler/removeScaledRecipe"
)

// Fixed failure payloads.
const (
	AuthFailedMessage            = "Authentication failed: Invalid or expired session."
	RecipeOwnershipDeniedMessage = "Permission denied: You can only delete your own recipes."
	ScaledOwnershipDeniedMessage = "Permission denied: You can only delete scaled recipes for your own recipes."
)

// All returns the full rule set in registration order.
func All() []engine.Sync {
	return []engine.Sync{
		// /Recipe/addRecipe
		authenticatedRecipeCreation(),
		successResponse("RecipeCreationResponse", PathAddRecipe, recipeAdd, "recipe"),
		errorResponse("RecipeCreationErrorResponse", PathAddRecipe, recipeAdd),
		authFailure("RecipeCreationAuthenticationFailure", PathAddRecipe),

		// /Recipe/removeRecipe
		authenticatedRecipeDeletion(),
		emptySuccessResponse("RecipeDeletionResponse", PathRemoveRecipe, recipeRemove),
		errorResponse("RecipeDeletionErrorResponse", PathRemoveRecipe, recipeRemove),
		authFailure("RecipeDeletionAuthenticationFailure", PathRemoveRecipe),
		recipeDeletionOwnershipFailure(),

		// /RecipeScaler/scaleManually
		authenticatedScaling("AuthenticatedScaling", PathScaleManually, scalerManual),
		successResponse("ScalingResponse", PathScaleManually, scalerManual, "scaledRecipeId"),
		errorResponse("ScalingErrorResponse", PathScaleManually, scalerManual),
		authFailure("ScalingAuthenticationFailure", PathScaleManually),

		// /RecipeScaler/scaleRecipeAI
		authenticatedScaling("AuthenticatedAIScaling", PathScaleRecipeAI, scalerAI),
		successResponse("AIScalingResponse", PathScaleRecipeAI, scalerAI, "scaledRecipeId"),
		errorResponse("AIScalingErrorResponse", PathScaleRecipeAI, scalerAI),
		authFailure("AIScalingAuthenticationFailure", PathScaleRecipeAI),
		autoGenerateTipsOnAIScaling(),

		// /RecipeScaler/removeScaledRecipe
		authenticatedScaledRecipeDeletion(),
		emptySuccessResponse("ScaledRecipeDeletionResponse", PathRemoveScaledRecipe, scalerRemove),
		errorResponse("ScaledRecipeDeletionErrorResponse", PathRemoveScaledRecipe, scalerRemove),
		authFailure("ScaledRecipeDeletionAuthenticationFailure", PathRemoveScaledRecipe),
		scaledRecipeDeletionOwnershipFailure(),
	}
}

// authenticatedRecipeCreation resolves the session to a user and invokes
// addRecipe with that user as the author. Requests without a valid session
// drop here and are answered by the auth failure rule instead.
func authenticatedRecipeCreation() engine.Sync {
	request := frame.NewVar("request")
	sessionID := frame.NewVar("sessionId")
	name := frame.NewVar("name")
	originalServings := frame.NewVar("originalServings")
	ingredients := frame.NewVar("ingredients")
	cookingMethods := frame.NewVar("cookingMethods")
	user := frame.NewVar("authenticatedUser")

	return engine.Sync{
		Name: "AuthenticatedRecipeCreation",
		When: []engine.ActionPattern{{
			Action: requestingRequest,
			Input: engine.Record{
				"path":             engine.Lit(ir.String(PathAddRecipe)),
				"sessionId":        engine.V(sessionID),
				"name":             engine.V(name),
				"originalServings": engine.V(originalServings),
				"ingredients":      engine.V(ingredients),
				"cookingMethods":   engine.V(cookingMethods),
			},
			Output: engine.Record{"request": engine.V(request)},
		}},
		Where: func(ctx context.Context, fr *engine.Frames) error {
			return fr.QueryAsync(ctx, authGetActiveSession,
				engine.Record{"sessionId": engine.V(sessionID)},
				map[string]*frame.Var{"user": user})
		},
		Then: []engine.ActionPattern{{
			Action: recipeAdd,
			Input: engine.Record{
				"author":           engine.V(user),
				"name":             engine.V(name),
				"originalServings": engine.V(originalServings),
				"ingredients":      engine.V(ingredients),
				"cookingMethods":   engine.V(cookingMethods),
			},
		}},
	}
}

// authenticatedScaling covers both the manual and AI scaling routes; they
// differ only in path and target action.
func authenticatedScaling(name, path string, action ir.ActionRef) engine.Sync {
	request := frame.NewVar("request")
	sessionID := frame.NewVar("sessionId")
	baseRecipeID := frame.NewVar("baseRecipeId")
	targetServings := frame.NewVar("targetServings")
	user := frame.NewVar("authenticatedUser")

	return engine.Sync{
		Name: name,
		When: []engine.ActionPattern{{
			Action: requestingRequest,
			Input: engine.Record{
				"path":           engine.Lit(ir.String(path)),
				"sessionId":      engine.V(sessionID),
				"baseRecipeId":   engine.V(baseRecipeID),
				"targetServings": engine.V(targetServings),
			},
			Output: engine.Record{"request": engine.V(request)},
		}},
		Where: func(ctx context.Context, fr *engine.Frames) error {
			return fr.QueryAsync(ctx, authGetActiveSession,
				engine.Record{"sessionId": engine.V(sessionID)},
				map[string]*frame.Var{"user": user})
		},
		Then: []engine.ActionPattern{{
			Action: action,
			Input: engine.Record{
				"baseRecipeId":   engine.V(baseRecipeID),
				"targetServings": engine.V(targetServings),
			},
		}},
	}
}

// authenticatedRecipeDeletion deletes a recipe only when the session user
// is its author. Missing recipes and foreign recipes drop here; the
// ownership failure rule answers the latter.
func authenticatedRecipeDeletion() engine.Sync {
	request := frame.NewVar("request")
	sessionID := frame.NewVar("sessionId")
	recipeID := frame.NewVar("recipeId")
	user := frame.NewVar("authenticatedUser")
	author := frame.NewVar("recipeAuthor")

	return engine.Sync{
		Name: "AuthenticatedRecipeDeletion",
		When: []engine.ActionPattern{{
			Action: requestingRequest,
			Input: engine.Record{
				"path":      engine.Lit(ir.String(PathRemoveRecipe)),
				"sessionId": engine.V(sessionID),
				"recipeId":  engine.V(recipeID),
			},
			Output: engine.Record{"request": engine.V(request)},
		}},
		Where: func(ctx context.Context, fr *engine.Frames) error {
			if err := fr.QueryAsync(ctx, authGetActiveSession,
				engine.Record{"sessionId": engine.V(sessionID)},
				map[string]*frame.Var{"user": user}); err != nil {
				return err
			}
			if err := fr.QueryAsync(ctx, recipeGetByID,
				engine.Record{"recipeId": engine.V(recipeID)},
				map[string]*frame.Var{"author": author}); err != nil {
				return err
			}
			fr.Filter(sameBinding(user, author))
			return nil
		},
		Then: []engine.ActionPattern{{
			Action: recipeRemove,
			Input:  engine.Record{"recipeId": engine.V(recipeID)},
		}},
	}
}

// authenticatedScaledRecipeDeletion deletes a scaled recipe only when the
// session user owns the base recipe it was derived from.
func authenticatedScaledRecipeDeletion() engine.Sync {
	request := frame.NewVar("request")
	sessionID := frame.NewVar("sessionId")
	scaledRecipeID := frame.NewVar("scaledRecipeId")
	baseRecipeID := frame.NewVar("baseRecipeId")
	user := frame.NewVar("authenticatedUser")
	author := frame.NewVar("recipeAuthor")

	return engine.Sync{
		Name: "AuthenticatedScaledRecipeDeletion",
		When: []engine.ActionPattern{{
			Action: requestingRequest,
			Input: engine.Record{
				"path":           engine.Lit(ir.String(PathRemoveScaledRecipe)),
				"sessionId":      engine.V(sessionID),
				"scaledRecipeId": engine.V(scaledRecipeID),
			},
			Output: engine.Record{"request": engine.V(request)},
		}},
		Where: func(ctx context.Context, fr *engine.Frames) error {
			if err := fr.QueryAsync(ctx, authGetActiveSession,
				engine.Record{"sessionId": engine.V(sessionID)},
				map[string]*frame.Var{"user": user}); err != nil {
				return err
			}
			if err := fr.QueryAsync(ctx, scalerGetScaled,
				engine.Record{"scaledRecipeId": engine.V(scaledRecipeID)},
				map[string]*frame.Var{"baseRecipeId": baseRecipeID}); err != nil {
				return err
			}
			if err := fr.QueryAsync(ctx, recipeGetByID,
				engine.Record{"recipeId": engine.V(baseRecipeID)},
				map[string]*frame.Var{"author": author}); err != nil {
				return err
			}
			fr.Filter(sameBinding(user, author))
			return nil
		},
		Then: []engine.ActionPattern{{
			Action: scalerRemove,
			Input:  engine.Record{"scaledRecipeId": engine.V(scaledRecipeID)},
		}},
	}
}

// autoGenerateTipsOnAIScaling chains tip generation off every successful AI
// scaling: the scaled recipe is resolved back to its base recipe and the
// full context handed to the tips concept. No client request is involved.
func autoGenerateTipsOnAIScaling() engine.Sync {
	scaledRecipeID := frame.NewVar("scaledRecipeId")
	baseRecipeID := frame.NewVar("baseRecipeId")
	targetServings := frame.NewVar("targetServings")
	recipeName := frame.NewVar("recipeName")
	originalServings := frame.NewVar("originalServings")
	ingredients := frame.NewVar("ingredients")
	cookingMethods := frame.NewVar("cookingMethods")

	return engine.Sync{
		Name: "AutoGenerateTipsOnAIScaling",
		When: []engine.ActionPattern{{
			Action: scalerAI,
			Input: engine.Record{
				"baseRecipeId":   engine.V(baseRecipeID),
				"targetServings": engine.V(targetServings),
			},
			Output: engine.Record{"scaledRecipeId": engine.V(scaledRecipeID)},
		}},
		Where: func(ctx context.Context, fr *engine.Frames) error {
			if err := fr.QueryAsync(ctx, scalerGetScaled,
				engine.Record{"scaledRecipeId": engine.V(scaledRecipeID)},
				map[string]*frame.Var{
					"baseRecipeId":   baseRecipeID,
					"targetServings": targetServings,
				}); err != nil {
				return err
			}
			return fr.QueryAsync(ctx, recipeGetByID,
				engine.Record{"recipeId": engine.V(baseRecipeID)},
				map[string]*frame.Var{
					"name":             recipeName,
					"originalServings": originalServings,
					"ingredients":      ingredients,
					"cookingMethods":   cookingMethods,
				})
		},
		Then: []engine.ActionPattern{{
			Action: tipsGenerate,
			Input: engine.Record{
				"recipeContext": engine.Rec(engine.Record{
					"recipeId":         engine.V(baseRecipeID),
					"name":             engine.V(recipeName),
					"originalServings": engine.V(originalServings),
					"targetServings":   engine.V(targetServings),
					"ingredients":      engine.V(ingredients),
					"cookingMethods":   engine.V(cookingMethods),
				}),
			},
		}},
	}
}

// recipeDeletionOwnershipFailure answers a deletion request whose session is
// valid and whose recipe exists but belongs to someone else. Invalid
// sessions and missing recipes are other rules' paths, so this one stays
// quiet for them.
func recipeDeletionOwnershipFailure() engine.Sync {
	request := frame.NewVar("request")
	sessionID := frame.NewVar("sessionId")
	recipeID := frame.NewVar("recipeId")
	user := frame.NewVar("authenticatedUser")
	author := frame.NewVar("recipeAuthor")

	return engine.Sync{
		Name: "RecipeDeletionOwnershipFailure",
		When: []engine.ActionPattern{{
			Action: requestingRequest,
			Input: engine.Record{
				"path":      engine.Lit(ir.String(PathRemoveRecipe)),
				"sessionId": engine.V(sessionID),
				"recipeId":  engine.V(recipeID),
			},
			Output: engine.Record{"request": engine.V(request)},
		}},
		Where: func(ctx context.Context, fr *engine.Frames) error {
			withSession := fr.Branch()
			if err := withSession.QueryAsync(ctx, authGetActiveSession,
				engine.Record{"sessionId": engine.V(sessionID)},
				map[string]*frame.Var{"user": user}); err != nil {
				return err
			}
			if withSession.Len() == 0 {
				fr.Clear()
				return nil
			}
			withRecipe := withSession.Branch()
			if err := withRecipe.QueryAsync(ctx, recipeGetByID,
				engine.Record{"recipeId": engine.V(recipeID)},
				map[string]*frame.Var{"author": author}); err != nil {
				return err
			}
			if withRecipe.Len() == 0 {
				fr.Clear()
				return nil
			}
			owned := withRecipe.Branch().Filter(sameBinding(user, author))
			if owned.Len() > 0 {
				fr.Clear()
			}
			return nil
		},
		Then: []engine.ActionPattern{{
			Action: requestingRespond,
			Input: engine.Record{
				"request": engine.V(request),
				"error":   engine.Lit(ir.String(RecipeOwnershipDeniedMessage)),
			},
		}},
	}
}

// scaledRecipeDeletionOwnershipFailure is the scaled recipe counterpart:
// ownership is judged against the base recipe's author.
func scaledRecipeDeletionOwnershipFailure() engine.Sync {
	request := frame.NewVar("request")
	sessionID := frame.NewVar("sessionId")
	scaledRecipeID := frame.NewVar("scaledRecipeId")
	baseRecipeID := frame.NewVar("baseRecipeId")
	user := frame.NewVar("authenticatedUser")
	author := frame.NewVar("recipeAuthor")

	return engine.Sync{
		Name: "ScaledRecipeDeletionOwnershipFailure",
		When: []engine.ActionPattern{{
			Action: requestingRequest,
			Input: engine.Record{
				"path":           engine.Lit(ir.String(PathRemoveScaledRecipe)),
				"sessionId":      engine.V(sessionID),
				"scaledRecipeId": engine.V(scaledRecipeID),
			},
			Output: engine.Record{"request": engine.V(request)},
		}},
		Where: func(ctx context.Context, fr *engine.Frames) error {
			withSession := fr.Branch()
			if err := withSession.QueryAsync(ctx, authGetActiveSession,
				engine.Record{"sessionId": engine.V(sessionID)},
				map[string]*frame.Var{"user": user}); err != nil {
				return err
			}
			if withSession.Len() == 0 {
				fr.Clear()
				return nil
			}
			withScaled := withSession.Branch()
			if err := withScaled.QueryAsync(ctx, scalerGetScaled,
				engine.Record{"scaledRecipeId": engine.V(scaledRecipeID)},
				map[string]*frame.Var{"baseRecipeId": baseRecipeID}); err != nil {
				return err
			}
			if withScaled.Len() == 0 {
				fr.Clear()
				return nil
			}
			withRecipe := withScaled.Branch()
			if err := withRecipe.QueryAsync(ctx, recipeGetByID,
				engine.Record{"recipeId": engine.V(baseRecipeID)},
				map[string]*frame.Var{"author": author}); err != nil {
				return err
			}
			if withRecipe.Len() == 0 {
				fr.Clear()
				return nil
			}
			owned := withRecipe.Branch().Filter(sameBinding(user, author))
			if owned.Len() > 0 {
				fr.Clear()
			}
			return nil
		},
		Then: []engine.ActionPattern{{
			Action: requestingRespond,
			Input: engine.Record{
				"request": engine.V(request),
				"error":   engine.Lit(ir.String(ScaledOwnershipDeniedMessage)),
			},
		}},
	}
}

// authFailure answers any request on the path whose session does not
// resolve. When the session is valid it stays quiet and the route's primary
// rule proceeds.
func authFailure(name, path string) engine.Sync {
	request := frame.NewVar("request")
	sessionID := frame.NewVar("sessionId")

	return engine.Sync{
		Name: name,
		When: []engine.ActionPattern{{
			Action: requestingRequest,
			Input: engine.Record{
				"path":      engine.Lit(ir.String(path)),
				"sessionId": engine.V(sessionID),
			},
			Output: engine.Record{"request": engine.V(request)},
		}},
		Where: func(ctx context.Context, fr *engine.Frames) error {
			probe := fr.Branch()
			if err := probe.QueryAsync(ctx, authGetActiveSession,
				engine.Record{"sessionId": engine.V(sessionID)}, nil); err != nil {
				return err
			}
			if probe.Len() > 0 {
				fr.Clear()
			}
			return nil
		},
		Then: []engine.ActionPattern{{
			Action: requestingRespond,
			Input: engine.Record{
				"request": engine.V(request),
				"error":   engine.Lit(ir.String(AuthFailedMessage)),
			},
		}},
	}
}

// successResponse relays the named output field of a successful action back
// to the request that caused it.
func successResponse(name, path string, action ir.ActionRef, field string) engine.Sync {
	request := frame.NewVar("request")
	value := frame.NewVar(field)

	return engine.Sync{
		Name: name,
		When: []engine.ActionPattern{
			{
				Action: requestingRequest,
				Input:  engine.Record{"path": engine.Lit(ir.String(path))},
				Output: engine.Record{"request": engine.V(request)},
			},
			{
				Action: action,
				Output: engine.Record{field: engine.V(value)},
			},
		},
		Then: []engine.ActionPattern{{
			Action: requestingRespond,
			Input: engine.Record{
				"request": engine.V(request),
				field:     engine.V(value),
			},
		}},
	}
}

// emptySuccessResponse is for actions whose success output is the empty
// record. The absence constraint keeps it off the error path.
func emptySuccessResponse(name, path string, action ir.ActionRef) engine.Sync {
	request := frame.NewVar("request")

	return engine.Sync{
		Name: name,
		When: []engine.ActionPattern{
			{
				Action: requestingRequest,
				Input:  engine.Record{"path": engine.Lit(ir.String(path))},
				Output: engine.Record{"request": engine.V(request)},
			},
			{
				Action: action,
				Output: engine.Record{"error": engine.Absent()},
			},
		},
		Then: []engine.ActionPattern{{
			Action: requestingRespond,
			Input:  engine.Record{"request": engine.V(request)},
		}},
	}
}

// errorResponse relays an action's {error} output back to the request.
func errorResponse(name, path string, action ir.ActionRef) engine.Sync {
	request := frame.NewVar("request")
	errVal := frame.NewVar("error")

	return engine.Sync{
		Name: name,
		When: []engine.ActionPattern{
			{
				Action: requestingRequest,
				Input:  engine.Record{"path": engine.Lit(ir.String(path))},
				Output: engine.Record{"request": engine.V(request)},
			},
			{
				Action: action,
				Output: engine.Record{"error": engine.V(errVal)},
			},
		},
		Then: []engine.ActionPattern{{
			Action: requestingRespond,
			Input: engine.Record{
				"request": engine.V(request),
				"error":   engine.V(errVal),
			},
		}},
	}
}

// sameBinding keeps frames where both variables are bound to equal values.
func sameBinding(a, b *frame.Var) func(frame.Frame) bool {
	return func(f frame.Frame) bool {
		av, aok := f.Get(a)
		bv, bok := f.Get(b)
		return aok && bok && ir.Equal(av, bv)
	}
}
