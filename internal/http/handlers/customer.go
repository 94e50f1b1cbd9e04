package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/decisiontrace-backend/internal/http/response"
	"github.com/yungbote/decisiontrace-backend/internal/modules/tracegraph"
)

const (
	defaultCustomerSearchLimit   = 10
	defaultCustomerDecisionLimit = 20
	defaultPolicyLimit           = 50
)

type CustomerHandler struct {
	trace tracegraph.Usecases
}

func NewCustomerHandler(trace tracegraph.Usecases) *CustomerHandler {
	return &CustomerHandler{trace: trace}
}

// GET /api/customers?q=&limit=
func (h *CustomerHandler) Search(c *gin.Context) {
	limit, err := intQuery(c, "limit", defaultCustomerSearchLimit)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	customers, err := h.trace.SearchCustomers(c.Request.Context(), tracegraph.SearchCustomersInput{
		Query: c.Query("q"),
		Limit: limit,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"customers": customers})
}

// GET /api/customers/:id/decisions?decision_type=&limit=
func (h *CustomerHandler) Decisions(c *gin.Context) {
	limit, err := intQuery(c, "limit", defaultCustomerDecisionLimit)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	decisions, err := h.trace.GetCustomerDecisions(c.Request.Context(), tracegraph.CustomerDecisionsInput{
		CustomerID:   c.Param("id"),
		DecisionType: c.Query("decision_type"),
		Limit:        limit,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"decisions": decisions})
}

// GET /api/policies?category=&name=&limit=
func (h *CustomerHandler) Policies(c *gin.Context) {
	limit, err := intQuery(c, "limit", defaultPolicyLimit)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	policies, err := h.trace.ListPolicies(c.Request.Context(), tracegraph.ListPoliciesInput{
		Category: c.Query("category"),
		Name:     c.Query("name"),
		Limit:    limit,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"policies": policies})
}
