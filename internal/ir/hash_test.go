package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvocationID_Stable(t *testing.T) {
	input := Object{"baseRecipeId": String("r1"), "targetServings": Int(4)}

	first, err := InvocationID("flow-1", "RecipeScaler.scaleManually", input, 3)
	require.NoError(t, err)
	second, err := InvocationID("flow-1", "RecipeScaler.scaleManually", input, 3)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64, "hex-encoded SHA-256")
}

func TestInvocationID_SensitiveToInputs(t *testing.T) {
	base, err := InvocationID("flow-1", "Recipe.addRecipe", Object{"name": String("a")}, 1)
	require.NoError(t, err)

	differentFlow, err := InvocationID("flow-2", "Recipe.addRecipe", Object{"name": String("a")}, 1)
	require.NoError(t, err)
	assert.NotEqual(t, base, differentFlow)

	differentSeq, err := InvocationID("flow-1", "Recipe.addRecipe", Object{"name": String("a")}, 2)
	require.NoError(t, err)
	assert.NotEqual(t, base, differentSeq)

	differentInput, err := InvocationID("flow-1", "Recipe.addRecipe", Object{"name": String("b")}, 1)
	require.NoError(t, err)
	assert.NotEqual(t, base, differentInput)
}

func TestCompletionID_DomainSeparated(t *testing.T) {
	// The same logical payload hashed under different domains must differ.
	invID, err := InvocationID("flow-1", "Recipe.addRecipe", Object{}, 1)
	require.NoError(t, err)
	compID, err := CompletionID(invID, Object{}, 2)
	require.NoError(t, err)
	assert.NotEqual(t, invID, compID)
}

func TestBindingHash_KeyOrderIndependent(t *testing.T) {
	a := Object{"user": String("u1"), "recipe": String("r1")}
	b := Object{"recipe": String("r1"), "user": String("u1")}

	ha, err := BindingHash(a)
	require.NoError(t, err)
	hb, err := BindingHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}
