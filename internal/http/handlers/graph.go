package handlers

import (
	"github.com/gin-gonic/gin"

	domain "github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/http/response"
	"github.com/yungbote/decisiontrace-backend/internal/modules/tracegraph"
)

const (
	defaultExploreDepth = 2
	defaultExploreLimit = 50
)

type GraphHandler struct {
	trace tracegraph.Usecases
}

func NewGraphHandler(trace tracegraph.Usecases) *GraphHandler {
	return &GraphHandler{trace: trace}
}

type expandRequest struct {
	View   domain.GraphView `json:"view"`
	NodeID string           `json:"nodeId"`
}

// POST /api/graph/expand
func (h *GraphHandler) Expand(c *gin.Context) {
	var req expandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, domain.Validation("http.expand", "invalid request body: %v", err))
		return
	}
	view, err := h.trace.ExpandNode(c.Request.Context(), tracegraph.ExpandNodeInput{View: req.View, NodeID: req.NodeID})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"view": view})
}

// GET /api/graph/nodes/:id/explore?depth=&limit=
func (h *GraphHandler) Explore(c *gin.Context) {
	depth, err := intQuery(c, "depth", defaultExploreDepth)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	limit, err := intQuery(c, "limit", defaultExploreLimit)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	view, err := h.trace.ExploreFrom(c.Request.Context(), tracegraph.ExploreFromInput{
		NodeID: c.Param("id"),
		Depth:  depth,
		Limit:  limit,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"view": view})
}

// GET /api/graph/schema
func (h *GraphHandler) Schema(c *gin.Context) {
	view, err := h.trace.GetSchema(c.Request.Context())
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"view": view})
}
