// Package httpapi mounts a read-only introspection surface for an
// operation client on an Echo group, so an embedding service (or opctl)
// can inspect and clear cached stores at run time. This is a debugging
// aid, not a wire protocol: the cache itself never talks HTTP.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"eve.evalgo.org/operation/client"
	"eve.evalgo.org/operation/opath"
	"eve.evalgo.org/operation/version"
)

// API serves introspection endpoints over one client.
type API struct {
	client *client.Client
}

// New returns an API over c.
func New(c *client.Client) *API {
	return &API{client: c}
}

// RegisterRoutes adds the introspection endpoints to an Echo group.
func (a *API) RegisterRoutes(g *echo.Group) {
	g.GET("/operations", a.handleListOperations)
	g.GET("/operations/stats", a.handleGetStats)
	g.DELETE("/operations", a.handleClearOperations)
	g.GET("/version", a.handleVersion)
}

// parsePath turns a slash-separated query value ("user/42/profile")
// into a Path of string elements; empty means the root prefix.
func parsePath(raw string) opath.Path {
	if raw == "" {
		return opath.New()
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	elems := make([]interface{}, len(parts))
	for i, p := range parts {
		elems[i] = p
	}
	return opath.From(elems...)
}

// handleListOperations returns a snapshot of every cached store under
// the optional ?path= prefix.
func (a *API) handleListOperations(c echo.Context) error {
	snaps := a.client.Snapshots(parsePath(c.QueryParam("path")))
	if snaps == nil {
		snaps = []client.Snapshot{}
	}
	return c.JSON(http.StatusOK, snaps)
}

// Stats aggregates the cache for the stats endpoint.
type Stats struct {
	Stores       int                 `json:"stores"`
	ByKind       map[client.Kind]int `json:"byKind"`
	Loading      int                 `json:"loading"`
	Subscribers  int                 `json:"subscribers"`
	ValueUpdates int                 `json:"valueUpdates"`
	ErrorUpdates int                 `json:"errorUpdates"`
}

// handleGetStats returns aggregated statistics over the whole cache.
func (a *API) handleGetStats(c echo.Context) error {
	stats := Stats{ByKind: make(map[client.Kind]int)}
	for _, snap := range a.client.Snapshots(opath.New()) {
		stats.Stores++
		stats.ByKind[snap.Kind]++
		if snap.State.IsLoading {
			stats.Loading++
		}
		stats.Subscribers += snap.Subscribers
		stats.ValueUpdates += snap.State.ValueUpdateCount
		stats.ErrorUpdates += snap.State.ErrorUpdateCount
	}
	return c.JSON(http.StatusOK, stats)
}

// handleClearOperations drops every cached store under the ?path=
// prefix and reports how many were removed.
func (a *API) handleClearOperations(c echo.Context) error {
	prefix := parsePath(c.QueryParam("path"))
	removed := len(a.client.StoresMatching(prefix))
	a.client.ClearStores(prefix)
	return c.JSON(http.StatusOK, map[string]int{"removed": removed})
}

// handleVersion reports the cache module's version and build info.
func (a *API) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"version": version.CacheVersion(),
		"build":   version.GetBuildInfo(),
	})
}
