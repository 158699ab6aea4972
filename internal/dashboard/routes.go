package dashboard

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/flightcheck/internal/models"
	"github.com/zulandar/flightcheck/internal/monitor"
	"github.com/zulandar/flightcheck/internal/store"
)

// buildJSON is the wire shape of a build. Models carry no JSON tags, so the
// API owns its own representation.
type buildJSON struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Version       string     `json:"version"`
	BuildNumber   string     `json:"buildNumber"`
	URL           string     `json:"url"`
	Notes         string     `json:"notes"`
	Public        bool       `json:"public"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	LastCheckedAt *time.Time `json:"lastCheckedAt"`
}

// publicBuildJSON omits internal fields from the unauthenticated listing.
type publicBuildJSON struct {
	Name          string     `json:"name"`
	Version       string     `json:"version"`
	BuildNumber   string     `json:"buildNumber"`
	URL           string     `json:"url"`
	Status        string     `json:"status"`
	LastCheckedAt *time.Time `json:"lastCheckedAt"`
}

type logJSON struct {
	ID          uint      `json:"id"`
	BuildID     string    `json:"buildId"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	DurationMs  int64     `json:"durationMs"`
	HTTPStatus  *int      `json:"httpStatus"`
	ErrorDetail *string   `json:"errorDetail"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toBuildJSON(b models.Build) buildJSON {
	return buildJSON{
		ID:            b.ID,
		Name:          b.Name,
		Version:       b.Version,
		BuildNumber:   b.BuildNumber,
		URL:           b.URL,
		Notes:         b.Notes,
		Public:        b.Public,
		Status:        b.Status,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
		LastCheckedAt: b.LastCheckedAt,
	}
}

func toPublicBuildJSON(b models.Build) publicBuildJSON {
	return publicBuildJSON{
		Name:          b.Name,
		Version:       b.Version,
		BuildNumber:   b.BuildNumber,
		URL:           b.URL,
		Status:        b.Status,
		LastCheckedAt: b.LastCheckedAt,
	}
}

func toLogJSON(l models.CheckLog) logJSON {
	return logJSON{
		ID:          l.ID,
		BuildID:     l.BuildID,
		Status:      l.Status,
		Message:     l.Message,
		DurationMs:  l.DurationMs,
		HTTPStatus:  l.HTTPStatus,
		ErrorDetail: l.ErrorDetail,
		CreatedAt:   l.CreatedAt,
	}
}

// registerRoutes sets up the API routes on the gin router.
func registerRoutes(router *gin.Engine, st *store.Store, mon SweepRunner) {
	api := router.Group("/api")

	api.GET("/builds", handleListBuilds(st))
	api.POST("/builds", handleCreateBuild(st))
	api.GET("/builds/:id", handleGetBuild(st))
	api.PUT("/builds/:id", handleUpdateBuild(st))
	api.DELETE("/builds/:id", handleDeleteBuild(st))
	api.GET("/builds/:id/logs", handleBuildLogs(st))
	api.GET("/stats", handleStats(st, mon))

	api.POST("/check-all", handleCheck(mon, monitor.SweepAll))
	api.POST("/check-pending", handleCheck(mon, monitor.SweepPending))

	// Unauthenticated read-only surface for status pages.
	api.GET("/public/builds", handlePublicBuilds(st))
	api.GET("/public/stats", handlePublicStats(st))
}

func handleHealth(mon SweepRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := gin.H{"status": "ok"}
		if mon != nil {
			resp["monitorRunning"] = mon.Running()
			resp["sweepInProgress"] = mon.Sweeping()
		}
		c.JSON(http.StatusOK, resp)
	}
}

func handleListBuilds(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		filters := store.ListFilters{Status: c.Query("status")}
		if filters.Status != "" && !models.ValidStatus(filters.Status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + filters.Status})
			return
		}
		builds, err := st.List(filters)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]buildJSON, 0, len(builds))
		for _, b := range builds {
			out = append(out, toBuildJSON(b))
		}
		c.JSON(http.StatusOK, out)
	}
}

// createBuildRequest is the POST /api/builds body.
type createBuildRequest struct {
	Name        string `json:"name" binding:"required"`
	Version     string `json:"version"`
	BuildNumber string `json:"buildNumber"`
	URL         string `json:"url" binding:"required"`
	Notes       string `json:"notes"`
	Public      bool   `json:"public"`
}

func handleCreateBuild(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createBuildRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		build, err := st.Create(store.CreateOpts{
			Name:        req.Name,
			Version:     req.Version,
			BuildNumber: req.BuildNumber,
			URL:         req.URL,
			Notes:       req.Notes,
			Public:      req.Public,
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, toBuildJSON(*build))
	}
}

func handleGetBuild(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		build, err := st.Get(c.Param("id"))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, toBuildJSON(*build))
	}
}

// updateBuildRequest is the PUT /api/builds/:id body. Absent fields are left
// unchanged.
type updateBuildRequest struct {
	Name        *string `json:"name"`
	Version     *string `json:"version"`
	BuildNumber *string `json:"buildNumber"`
	URL         *string `json:"url"`
	Notes       *string `json:"notes"`
	Public      *bool   `json:"public"`
}

func handleUpdateBuild(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateBuildRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		build, err := st.Update(c.Param("id"), store.UpdateOpts{
			Name:        req.Name,
			Version:     req.Version,
			BuildNumber: req.BuildNumber,
			URL:         req.URL,
			Notes:       req.Notes,
			Public:      req.Public,
		})
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, toBuildJSON(*build))
	}
}

func handleDeleteBuild(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := st.Delete(c.Param("id")); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleBuildLogs(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := st.Get(id); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		logs, err := st.RecentLogs(id, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]logJSON, 0, len(logs))
		for _, l := range logs {
			out = append(out, toLogJSON(l))
		}
		c.JSON(http.StatusOK, out)
	}
}

func handleStats(st *store.Store, mon SweepRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := st.Stats()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		byStatus := make(map[string]int64, len(counts))
		var total int64
		for _, sc := range counts {
			byStatus[sc.Status] = sc.Count
			total += sc.Count
		}
		resp := gin.H{"total": total, "byStatus": byStatus}
		if mon != nil {
			resp["monitorRunning"] = mon.Running()
			resp["sweepInProgress"] = mon.Sweeping()
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleCheck triggers an on-demand sweep and returns its summary. A sweep
// already in flight yields 409 so callers can tell "busy" from "failed".
func handleCheck(mon SweepRunner, mode monitor.SweepMode) gin.HandlerFunc {
	return func(c *gin.Context) {
		if mon == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "monitor is not running"})
			return
		}
		summary, err := mon.RunSweep(c.Request.Context(), mode)
		if err != nil {
			if errors.Is(err, monitor.ErrSweepInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func handlePublicBuilds(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		builds, err := st.List(store.ListFilters{PublicOnly: true})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]publicBuildJSON, 0, len(builds))
		for _, b := range builds {
			out = append(out, toPublicBuildJSON(b))
		}
		c.JSON(http.StatusOK, out)
	}
}

func handlePublicStats(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		builds, err := st.List(store.ListFilters{PublicOnly: true})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		byStatus := map[string]int64{}
		for _, s := range models.Statuses() {
			byStatus[s] = 0
		}
		for _, b := range builds {
			byStatus[b.Status]++
		}
		c.JSON(http.StatusOK, gin.H{"total": int64(len(builds)), "byStatus": byStatus})
	}
}
