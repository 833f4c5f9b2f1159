package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appmatching "github.com/turtacn/BOMMesh/internal/application/matching"
	"github.com/turtacn/BOMMesh/internal/domain/matching"
	"github.com/turtacn/BOMMesh/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BOMMesh/pkg/errors"
)

// MatchingHandler serves /api/v1/matching.
type MatchingHandler struct {
	svc    appmatching.Service
	logger logging.Logger
}

func NewMatchingHandler(svc appmatching.Service, logger logging.Logger) *MatchingHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &MatchingHandler{svc: svc, logger: logger}
}

// RunListResponse is the body of GET /runs.
type RunListResponse struct {
	Runs  []matching.RunSummary `json:"runs"`
	Count int                   `json:"count"`
}

// Run handles POST /runs: executes a run synchronously and returns its
// report.
func (h *MatchingHandler) Run(c *gin.Context) {
	var req appmatching.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid request body"))
		return
	}

	report, err := h.svc.Run(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

// Get handles GET /runs/:id.
func (h *MatchingHandler) Get(c *gin.Context) {
	report, err := h.svc.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// List handles GET /runs?limit=N.
func (h *MatchingHandler) List(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		respondError(c, err)
		return
	}
	runs, err := h.svc.ListRuns(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, RunListResponse{Runs: runs, Count: len(runs)})
}
