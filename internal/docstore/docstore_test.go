package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthside/scullery/internal/ir"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	users := s.Collection("UserAuthentication.users")

	err := users.Insert(ctx, "u1", ir.Object{"username": ir.String("alice")})
	require.NoError(t, err)

	doc, found, err := users.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.String("alice"), doc["username"])
	assert.Equal(t, ir.String("u1"), doc["_id"])
}

func TestInsert_DuplicateIDFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	users := s.Collection("UserAuthentication.users")

	require.NoError(t, users.Insert(ctx, "u1", ir.Object{}))
	assert.Error(t, users.Insert(ctx, "u1", ir.Object{}))
}

func TestGet_Absent(t *testing.T) {
	s := openTestStore(t)

	_, found, err := s.Collection("Recipe.recipes").Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFind_EqualityFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	recipes := s.Collection("Recipe.recipes")

	require.NoError(t, recipes.Insert(ctx, "r1", ir.Object{
		"author": ir.String("u1"), "name": ir.String("Apple Pie"),
	}))
	require.NoError(t, recipes.Insert(ctx, "r2", ir.Object{
		"author": ir.String("u1"), "name": ir.String("Tomato Sauce"),
	}))
	require.NoError(t, recipes.Insert(ctx, "r3", ir.Object{
		"author": ir.String("u2"), "name": ir.String("Apple Pie"),
	}))

	byAuthor, err := recipes.Find(ctx, ir.Object{"author": ir.String("u1")})
	require.NoError(t, err)
	assert.Len(t, byAuthor, 2)

	byBoth, err := recipes.Find(ctx, ir.Object{
		"author": ir.String("u2"), "name": ir.String("Apple Pie"),
	})
	require.NoError(t, err)
	require.Len(t, byBoth, 1)
	assert.Equal(t, ir.String("r3"), byBoth[0]["_id"])

	all, err := recipes.Find(ctx, ir.Object{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFind_NumericFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	scaled := s.Collection("RecipeScaler.scaledRecipes")

	require.NoError(t, scaled.Insert(ctx, "s1", ir.Object{
		"baseRecipeId": ir.String("r1"), "targetServings": ir.Int(4),
	}))

	// Integers survive the JSON round trip as integers.
	docs, err := scaled.Find(ctx, ir.Object{"targetServings": ir.Int(4)})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sessions := s.Collection("UserAuthentication.sessions")

	require.NoError(t, sessions.Insert(ctx, "s1", ir.Object{"user": ir.String("u1")}))
	require.NoError(t, sessions.Update(ctx, "s1", ir.Object{"user": ir.String("u2")}))

	doc, found, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.String("u2"), doc["user"])

	assert.Error(t, sessions.Update(ctx, "missing", ir.Object{}))
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	recipes := s.Collection("Recipe.recipes")

	require.NoError(t, recipes.Insert(ctx, "r1", ir.Object{}))

	deleted, err := recipes.Delete(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = recipes.Delete(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCollections_Isolated(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Collection("A.docs").Insert(ctx, "x", ir.Object{}))

	_, found, err := s.Collection("B.docs").Get(ctx, "x")
	require.NoError(t, err)
	assert.False(t, found, "collections must not leak into one another")
}
