// Package server is the HTTP ingress. Every route is a POST of a JSON body
// to {base}/{Concept}/{action-or-query}. Allowlisted routes pass straight
// through to the concept registry; excluded routes are recorded as
// Requesting.request actions and answered by whatever respond the rule set
// eventually fires.
package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"log/slog"

	"github.com/hearthside/scullery/internal/concept"
	"github.com/hearthside/scullery/internal/concepts/requesting"
	"github.com/hearthside/scullery/internal/engine"
	"github.com/hearthside/scullery/internal/ir"
	"github.com/hearthside/scullery/internal/syncs"
)

// Config selects which routes pass through and which are rule-driven.
// Route keys are "/{Concept}/{member}" without the base path.
type Config struct {
	BasePath   string
	Inclusions []string
	Exclusions []string
}

// DefaultConfig exposes the public queries and the session-free auth and
// tips actions as passthrough, and routes everything guarded by the rule
// set through Requesting.
func DefaultConfig() Config {
	return Config{
		BasePath: "/api",
		Inclusions: []string{
			"/Recipe/_getRecipeById",
			"/Recipe/_getRecipeByName",
			"/Recipe/_getRecipesByAuthor",
			"/RecipeScaler/_getScaledRecipe",
			"/RecipeScaler/_findScaledRecipe",
			"/RecipeScaler/_getScaledRecipesByBaseRecipe",
			"/ScalingTips/_getScalingTips",
			"/ScalingTips/_getScalingTipById",
			"/ScalingTips/addManualScalingTip",
			"/ScalingTips/removeScalingTip",
			"/UserAuthentication/register",
			"/UserAuthentication/login",
			"/UserAuthentication/logout",
			"/UserAuthentication/_getActiveSession",
			"/UserAuthentication/_getUserByUsername",
			"/UserAuthentication/_getUserById",
		},
		Exclusions: []string{
			syncs.PathAddRecipe,
			syncs.PathRemoveRecipe,
			syncs.PathScaleManually,
			syncs.PathScaleRecipeAI,
			syncs.PathRemoveScaledRecipe,
		},
	}
}

// Server dispatches HTTP requests to the registry or the rule engine.
type Server struct {
	registry   *concept.Registry
	eng        *engine.Engine
	req        *requesting.Concept
	basePath   string
	inclusions map[string]bool
	exclusions map[string]bool
}

func New(registry *concept.Registry, eng *engine.Engine, req *requesting.Concept, cfg Config) *Server {
	s := &Server{
		registry:   registry,
		eng:        eng,
		req:        req,
		basePath:   cfg.BasePath,
		inclusions: make(map[string]bool, len(cfg.Inclusions)),
		exclusions: make(map[string]bool, len(cfg.Exclusions)),
	}
	for _, route := range cfg.Inclusions {
		s.inclusions[route] = true
	}
	for _, route := range cfg.Exclusions {
		s.exclusions[route] = true
	}
	return s
}

// Router builds the gin engine with the single dispatch route mounted under
// the base path.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST(s.basePath+"/:concept/:member", s.dispatch)
	return router
}

func (s *Server) dispatch(c *gin.Context) {
	route := "/" + c.Param("concept") + "/" + c.Param("member")

	body, ok := s.readBody(c)
	if !ok {
		return
	}

	switch {
	case s.exclusions[route]:
		s.dispatchRequesting(c, route, body)
	case s.inclusions[route]:
		s.dispatchPassthrough(c, route, body)
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found."})
	}
}

// readBody parses the JSON body into an Object, preserving the integer
// versus float distinction the concepts validate on. An empty body is an
// empty record.
func (s *Server) readBody(c *gin.Context) (ir.Object, bool) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body must be a JSON object."})
		return nil, false
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return ir.Object{}, true
	}
	var body ir.Object
	if err := json.Unmarshal(raw, &body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body must be a JSON object."})
		return nil, false
	}
	return body, true
}

// dispatchPassthrough runs the concept action or query directly.
func (s *Server) dispatchPassthrough(c *gin.Context, route string, body ir.Object) {
	ref := ir.ActionRef(strings.Replace(strings.TrimPrefix(route, "/"), "/", ".", 1))

	if ref.IsQuery() {
		if !s.registry.HasQuery(ref) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Route not found."})
			return
		}
		rows, err := s.registry.RunQuery(c.Request.Context(), ref, body)
		if err != nil {
			slog.Error("passthrough query failed", "route", route, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal server error occurred."})
			return
		}
		if rows == nil {
			rows = []ir.Object{}
		}
		c.JSON(http.StatusOK, rows)
		return
	}

	if !s.registry.HasAction(ref) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found."})
		return
	}
	output := s.registry.Invoke(c.Request.Context(), ref, body)
	c.JSON(statusFor(output), output)
}

// dispatchRequesting records the request as an action and waits for the
// rule set to respond.
func (s *Server) dispatchRequesting(c *gin.Context, route string, body ir.Object) {
	input := ir.Object{"path": ir.String(route)}
	for k, v := range body {
		input[k] = v
	}

	flow, ok := s.eng.Submit("Requesting.request", input)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server is shutting down."})
		return
	}

	payload, err := s.req.Await(c.Request.Context(), flow)
	if err != nil {
		slog.Warn("request resolved no response", "route", route, "flow_token", flow, "error", err)
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Request timed out."})
		return
	}
	c.JSON(statusFor(payload), payload)
}

// statusFor maps an output record to an HTTP status: success is 200, and
// {error} records split into auth, permission, and validation failures.
func statusFor(output ir.Object) int {
	errVal, ok := output["error"].(ir.String)
	if !ok {
		return http.StatusOK
	}
	msg := string(errVal)
	switch {
	case msg == syncs.AuthFailedMessage:
		return http.StatusUnauthorized
	case strings.HasPrefix(msg, "Permission denied"):
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}
