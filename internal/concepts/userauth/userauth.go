// Package userauth implements the UserAuthentication concept: registration,
// login/logout, and session validation for the rest of the application.
package userauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hearthside/scullery/internal/concept"
	"github.com/hearthside/scullery/internal/docstore"
	"github.com/hearthside/scullery/internal/ir"
)

// sessionTTL is how long a login session stays valid.
const sessionTTL = time.Hour

// Collection names are prefixed with the concept name for namespace
// separation in the shared datastore.
const (
	usersCollection    = "UserAuthentication.users"
	sessionsCollection = "UserAuthentication.sessions"
)

// Concept holds the users and sessions collections.
type Concept struct {
	users    *docstore.Collection
	sessions *docstore.Collection
	now      func() time.Time
}

// New builds the concept over the given document store.
func New(store *docstore.Store) *Concept {
	return &Concept{
		users:    store.Collection(usersCollection),
		sessions: store.Collection(sessionsCollection),
		now:      time.Now,
	}
}

// WithClock overrides the time source. Tests use it to expire sessions.
func (c *Concept) WithClock(now func() time.Time) *Concept {
	c.now = now
	return c
}

func (c *Concept) Name() string { return "UserAuthentication" }

func (c *Concept) Actions() map[string]concept.Action {
	return map[string]concept.Action{
		"register": c.register,
		"login":    c.login,
		"logout":   c.logout,
	}
}

func (c *Concept) Queries() map[string]concept.Query {
	return map[string]concept.Query{
		"_getActiveSession":  c.getActiveSession,
		"_getUserByUsername": c.getUserByUsername,
		"_getUserById":       c.getUserById,
	}
}

// hashPassword returns the hex SHA-256 digest of a password.
func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// register creates a user with a unique username and a hashed password.
// Input: {username, password}. Output: {user} or {error}.
func (c *Concept) register(ctx context.Context, input ir.Object) ir.Object {
	username, _ := input["username"].(ir.String)
	password, _ := input["password"].(ir.String)

	_, found, err := c.users.FindOne(ctx, ir.Object{"username": username})
	if err != nil {
		return concept.ErrorOutput(fmt.Sprintf("user lookup failed: %v", err))
	}
	if found {
		return concept.ErrorOutput(fmt.Sprintf("Username '%s' already exists.", username))
	}

	if len(password) < 8 {
		return concept.ErrorOutput("Password must be at least 8 characters long.")
	}

	userID := uuid.Must(uuid.NewV7()).String()
	if err := c.users.Insert(ctx, userID, ir.Object{
		"username":       username,
		"hashedPassword": ir.String(hashPassword(string(password))),
	}); err != nil {
		return concept.ErrorOutput(fmt.Sprintf("user creation failed: %v", err))
	}

	return ir.Object{"user": ir.String(userID)}
}

// login verifies credentials and opens a one-hour session.
// Input: {username, password}. Output: {user, sessionId} or {error}.
// The same message covers unknown username and wrong password; callers
// cannot probe which usernames exist.
func (c *Concept) login(ctx context.Context, input ir.Object) ir.Object {
	username, _ := input["username"].(ir.String)
	password, _ := input["password"].(ir.String)

	user, found, err := c.users.FindOne(ctx, ir.Object{"username": username})
	if err != nil {
		return concept.ErrorOutput(fmt.Sprintf("user lookup failed: %v", err))
	}
	if !found {
		return concept.ErrorOutput("Invalid username or password.")
	}

	stored, _ := user["hashedPassword"].(ir.String)
	if string(stored) != hashPassword(string(password)) {
		return concept.ErrorOutput("Invalid username or password.")
	}

	userID, _ := user["_id"].(ir.String)
	sessionID := uuid.Must(uuid.NewV7()).String()
	expiration := c.now().Add(sessionTTL).UnixMilli()

	docID := uuid.Must(uuid.NewV7()).String()
	if err := c.sessions.Insert(ctx, docID, ir.Object{
		"user":           userID,
		"sessionId":      ir.String(sessionID),
		"expirationTime": ir.Int(expiration),
	}); err != nil {
		return concept.ErrorOutput(fmt.Sprintf("session creation failed: %v", err))
	}

	return ir.Object{"user": userID, "sessionId": ir.String(sessionID)}
}

// logout invalidates a session.
// Input: {sessionId}. Output: {} or {error}.
func (c *Concept) logout(ctx context.Context, input ir.Object) ir.Object {
	sessionID, _ := input["sessionId"].(ir.String)

	session, found, err := c.sessions.FindOne(ctx, ir.Object{"sessionId": sessionID})
	if err != nil {
		return concept.ErrorOutput(fmt.Sprintf("session lookup failed: %v", err))
	}
	if !found {
		return concept.ErrorOutput("Session not found or already expired.")
	}

	docID, _ := session["_id"].(ir.String)
	if _, err := c.sessions.Delete(ctx, string(docID)); err != nil {
		return concept.ErrorOutput(fmt.Sprintf("session deletion failed: %v", err))
	}
	return ir.Object{}
}

// getActiveSession returns the session row for a sessionId if it has not
// expired. Expired or unknown sessions yield an empty result, which is how
// authentication syncs fail closed.
func (c *Concept) getActiveSession(ctx context.Context, input ir.Object) ([]ir.Object, error) {
	sessionID, _ := input["sessionId"].(ir.String)

	session, found, err := c.sessions.FindOne(ctx, ir.Object{"sessionId": sessionID})
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	if !found {
		return nil, nil
	}

	expiration, _ := session["expirationTime"].(ir.Int)
	if int64(expiration) <= c.now().UnixMilli() {
		return nil, nil
	}
	return []ir.Object{session}, nil
}

func (c *Concept) getUserByUsername(ctx context.Context, input ir.Object) ([]ir.Object, error) {
	username, _ := input["username"].(ir.String)

	user, found, err := c.users.FindOne(ctx, ir.Object{"username": username})
	if err != nil {
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	if !found {
		return nil, nil
	}
	return []ir.Object{user}, nil
}

func (c *Concept) getUserById(ctx context.Context, input ir.Object) ([]ir.Object, error) {
	userID, _ := input["userId"].(ir.String)

	user, found, err := c.users.Get(ctx, string(userID))
	if err != nil {
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	if !found {
		return nil, nil
	}
	return []ir.Object{user}, nil
}
