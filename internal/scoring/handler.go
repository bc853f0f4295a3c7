package scoring

import (
	"log/slog"
	"net/http"
	"strconv"

	httperr "github.com/beaconhq/beacon-collector/internal/core/errors"
	"github.com/gin-gonic/gin"
)

const defaultListLimit = 50

// API exposes scoring rule CRUD and visitor score reads for the dashboard.
type API struct {
	store Store
}

func NewAPI(store Store) *API {
	return &API{store: store}
}

// RegisterRoutes registers the scoring API routes.
func (a *API) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/v1/sites/:siteId/scoring")
	g.PUT("/rules", a.UpsertRuleHandler)
	g.GET("/rules", a.ListRulesHandler)
	g.DELETE("/rules/:ruleId", a.DeleteRuleHandler)
	g.GET("/visitors/top", a.TopVisitorsHandler)
	g.GET("/visitors/:clientId/score", a.VisitorScoreHandler)
	g.GET("/visitors/:clientId/history", a.ScoreHistoryHandler)
}

type upsertRuleRequest struct {
	EventName   string `json:"eventName" binding:"required"`
	ScoreValue  int    `json:"scoreValue"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

func (a *API) UpsertRuleHandler(c *gin.Context) {
	var req upsertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   err.Error(),
		})
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	rule, err := a.store.UpsertRule(c.Request.Context(), &Rule{
		SiteID:      c.Param("siteId"),
		EventName:   req.EventName,
		ScoreValue:  req.ScoreValue,
		Description: req.Description,
		Active:      active,
	})
	if err != nil {
		slog.Error("[Scoring] Rule upsert failed", "site_id", c.Param("siteId"), "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "failed to save scoring rule",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rule": rule})
}

func (a *API) ListRulesHandler(c *gin.Context) {
	rules, err := a.store.ListRules(c.Request.Context(), c.Param("siteId"))
	if err != nil {
		slog.Error("[Scoring] Rule list failed", "site_id", c.Param("siteId"), "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "failed to list scoring rules",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

// DeleteRuleHandler removes a rule. History written under the rule is left
// untouched; deletion never retroactively alters past scores.
func (a *API) DeleteRuleHandler(c *gin.Context) {
	deleted, err := a.store.DeleteRule(c.Request.Context(), c.Param("ruleId"), c.Param("siteId"))
	if err != nil {
		slog.Error("[Scoring] Rule delete failed", "rule_id", c.Param("ruleId"), "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "failed to delete scoring rule",
		})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotFoundError,
			Message:   "scoring rule not found",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (a *API) VisitorScoreHandler(c *gin.Context) {
	score, err := a.store.VisitorScore(c.Request.Context(), c.Param("siteId"), c.Param("clientId"))
	if err != nil {
		slog.Error("[Scoring] Visitor score read failed", "client_id", c.Param("clientId"), "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "failed to read visitor score",
		})
		return
	}
	if score == nil {
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotFoundError,
			Message:   "no score for visitor",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"score": score})
}

func (a *API) ScoreHistoryHandler(c *gin.Context) {
	history, err := a.store.ScoreHistory(c.Request.Context(), c.Param("siteId"), c.Param("clientId"), queryLimit(c))
	if err != nil {
		slog.Error("[Scoring] History read failed", "client_id", c.Param("clientId"), "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "failed to read score history",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (a *API) TopVisitorsHandler(c *gin.Context) {
	visitors, err := a.store.TopVisitors(c.Request.Context(), c.Param("siteId"), queryLimit(c))
	if err != nil {
		slog.Error("[Scoring] Top visitors read failed", "site_id", c.Param("siteId"), "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "failed to read top visitors",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"visitors": visitors})
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 || limit > 500 {
		return defaultListLimit
	}
	return limit
}
