package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	domain "github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/http/response"
	"github.com/yungbote/decisiontrace-backend/internal/modules/tracegraph"
)

const (
	defaultPrecedentK  = 5
	defaultCausalDepth = 3
)

type DecisionHandler struct {
	trace tracegraph.Usecases
}

func NewDecisionHandler(trace tracegraph.Usecases) *DecisionHandler {
	return &DecisionHandler{trace: trace}
}

// GET /api/decisions/:id
func (h *DecisionHandler) GetDecision(c *gin.Context) {
	d, err := h.trace.GetDecision(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"decision": d})
}

// GET /api/decisions/:id/causal-chain?depth=&direction=
func (h *DecisionHandler) GetCausalChain(c *gin.Context) {
	depth, err := intQuery(c, "depth", defaultCausalDepth)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	dir, err := domain.ParseDirection(c.Query("direction"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	chain, err := h.trace.TraceCausalChain(c.Request.Context(), tracegraph.TraceCausalChainInput{
		DecisionID: c.Param("id"),
		MaxDepth:   depth,
		Direction:  dir,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"chain": chain})
}

// GET /api/decisions/:id/precedents?k=&mode=&category=
func (h *DecisionHandler) GetPrecedents(c *gin.Context) {
	k, err := intQuery(c, "k", defaultPrecedentK)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	mode, err := domain.ParseMode(c.Query("mode"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	set, err := h.trace.FindPrecedents(c.Request.Context(), tracegraph.FindPrecedentsInput{
		DecisionID: c.Param("id"),
		K:          k,
		Mode:       mode,
		Category:   c.Query("category"),
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"precedents": set})
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Validation("http.query", "%s must be an integer, got %q", name, raw)
	}
	return n, nil
}
