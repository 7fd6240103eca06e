package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skillmesh/trust-engine/internal/alerts"
	"github.com/skillmesh/trust-engine/internal/db"
	"github.com/skillmesh/trust-engine/internal/feedback"
	"github.com/skillmesh/trust-engine/internal/metrics"
	"github.com/skillmesh/trust-engine/internal/mitigation"
	"github.com/skillmesh/trust-engine/internal/providers"
	"github.com/skillmesh/trust-engine/internal/scoring"
	"github.com/skillmesh/trust-engine/internal/summary"
	"github.com/skillmesh/trust-engine/internal/tee"
	"github.com/skillmesh/trust-engine/pkg/models"
)

type APIHandler struct {
	store      *feedback.Store
	recomputer *summary.Recomputer
	teeStore   *tee.Store
	alertMgr   *alerts.Manager
	wsHub      *Hub
	dbStore    *db.PostgresStore
	clock      providers.Clock
	mitigation mitigation.Config
}

// Deps bundles the subsystems the router exposes
type Deps struct {
	Store      *feedback.Store
	Recomputer *summary.Recomputer
	TEEStore   *tee.Store
	AlertMgr   *alerts.Manager
	Hub        *Hub
	DBStore    *db.PostgresStore
	Clock      providers.Clock
	Mitigation mitigation.Config
}

func SetupRouter(deps Deps) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://registry.example.com
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		store:      deps.Store,
		recomputer: deps.Recomputer,
		teeStore:   deps.TEEStore,
		alertMgr:   deps.AlertMgr,
		wsHub:      deps.Hub,
		dbStore:    deps.DBStore,
		clock:      deps.Clock,
		mitigation: deps.Mitigation,
	}

	// ── Public endpoints (no auth) ─────────────────────────────
	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", deps.Hub.Subscribe)
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ── Protected endpoints (require bearer token if API_AUTH_TOKEN set) ──
	auth := r.Group("/api/v1")
	auth.Use(AuthMiddleware())
	// Rate-limit protected endpoints to 60 req/min per IP (burst=10).
	// Cluster analysis rebuilds the whole graph — especially important here.
	auth.Use(NewRateLimiter(60, 10).Middleware())
	{
		auth.POST("/feedback", handler.handleSubmitFeedback)
		auth.DELETE("/feedback/:id", handler.handleRevokeFeedback)
		auth.GET("/agents/:id/summary", handler.handleGetSummary)
		auth.GET("/agents/:id/divergence", handler.handleGetDivergence)
		auth.GET("/agents/:id/tee", handler.handleGetTEEState)
		auth.GET("/clusters", handler.handleGetClusters)
		auth.GET("/alerts", handler.handleGetAlerts)

		teeGroup := auth.Group("/tee")
		{
			teeGroup.POST("/pins", handler.handlePinCodeHash)
			teeGroup.POST("/attestations", handler.handleSubmitAttestation)
		}
	}

	// Serve Static Dashboard
	r.Static("/dashboard", "./public")

	return r
}

// handleHealth returns engine status and capabilities for service discovery
func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "SkillMesh Trust Engine v1.0",
		"capabilities": gin.H{
			"graph_analysis":      h.mitigation.GraphAnalysis.Enabled,
			"velocity_check":      h.mitigation.VelocityCheck.Enabled,
			"anomaly_detection":   h.mitigation.AnomalyDetection.Enabled,
			"temporal_decay":      h.mitigation.TemporalDecay.Enabled,
			"submitter_weighting": h.mitigation.SubmitterWeighting.Enabled,
			"behavioural_shift":   h.mitigation.BehaviouralShift.Enabled,
		},
		"dbConnected":   h.dbStore != nil,
		"activeCorpus":  h.store.ActiveCount(),
		"totalCorpus":   h.store.TotalCount(),
	})
}

// handleSubmitFeedback validates and ingests one feedback entry.
// POST /api/v1/feedback
func (h *APIHandler) handleSubmitFeedback(c *gin.Context) {
	var req models.Feedback
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Timestamp == 0 {
		req.Timestamp = h.clock.NowMs()
	}

	id, err := h.store.Submit(req)
	if err != nil {
		kind, status := classifySubmitError(err)
		metrics.FeedbackRejected.WithLabelValues(kind).Inc()
		c.JSON(status, gin.H{"error": err.Error(), "kind": kind})
		return
	}
	metrics.FeedbackSubmitted.Inc()

	if h.dbStore != nil {
		if err := h.dbStore.SaveFeedback(context.Background(), req); err != nil {
			log.Printf("Failed to persist feedback %s: %v", id, err)
		}
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// handleRevokeFeedback marks an entry revoked.
// DELETE /api/v1/feedback/:id
func (h *APIHandler) handleRevokeFeedback(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Revoke(id); err != nil {
		kind, status := classifySubmitError(err)
		c.JSON(status, gin.H{"error": err.Error(), "kind": kind})
		return
	}
	metrics.FeedbackRevoked.Inc()

	if h.dbStore != nil {
		if err := h.dbStore.MarkFeedbackRevoked(context.Background(), id); err != nil {
			log.Printf("Failed to persist revocation of %s: %v", id, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "revoked": true})
}

// handleGetSummary returns the (naive, hardened, usage-weighted) triple.
// GET /api/v1/agents/:id/summary
func (h *APIHandler) handleGetSummary(c *gin.Context) {
	agentID := c.Param("id")
	entry, err := h.recomputer.Summary(agentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Scoring failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// handleGetDivergence returns the naive-vs-hardened comparison for an agent.
// GET /api/v1/agents/:id/divergence
func (h *APIHandler) handleGetDivergence(c *gin.Context) {
	agentID := c.Param("id")
	entry, err := h.recomputer.Summary(agentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Scoring failed", "details": err.Error()})
		return
	}
	// Rebuild the hardened evidence so the report carries tag counts
	report := mitigation.AnalyzeGraph(h.store.ListAll(), h.mitigation.GraphAnalysis)
	tagged := 0
	for _, fb := range h.store.ListForAgent(agentID) {
		if _, ok := report.Results[fb.ID]; ok {
			tagged++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"agentId":       agentID,
		"naiveScore":    entry.Naive.SummaryValue,
		"hardenedScore": entry.Hardened.SummaryValue,
		"divergence":    scoring.ScoreDelta(entry.Naive.SummaryValue, entry.Hardened.SummaryValue),
		"tierChanged":   entry.Naive.Tier != entry.Hardened.Tier,
		"graphTagged":   tagged,
	})
}

// handleGetClusters returns the sybil cluster report over the full corpus.
// GET /api/v1/clusters
func (h *APIHandler) handleGetClusters(c *gin.Context) {
	report := mitigation.AnalyzeGraph(h.store.ListAll(), h.mitigation.GraphAnalysis)
	clusters := report.Clusters
	if clusters == nil {
		clusters = []models.ClusterSummary{}
	}
	c.JSON(http.StatusOK, gin.H{
		"clusters":   clusters,
		"totalCount": len(clusters),
	})
}

// handleGetTEEState returns the derived TEE state for an agent.
// GET /api/v1/agents/:id/tee
func (h *APIHandler) handleGetTEEState(c *gin.Context) {
	c.JSON(http.StatusOK, h.teeStore.AgentState(c.Param("id")))
}

// handlePinCodeHash registers the known-good code hash for an agent.
// POST /api/v1/tee/pins { "agentId", "codeHash", "pinnedBy", "auditReference" }
func (h *APIHandler) handlePinCodeHash(c *gin.Context) {
	var req struct {
		AgentID        string `json:"agentId"`
		CodeHash       string `json:"codeHash"`
		PinnedBy       string `json:"pinnedBy"`
		AuditReference string `json:"auditReference"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.AgentID == "" || req.CodeHash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agentId and codeHash are required"})
		return
	}

	pin, err := h.teeStore.PinCodeHash(req.AgentID, req.CodeHash, req.PinnedBy, req.AuditReference)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.dbStore != nil {
		if err := h.dbStore.SavePin(context.Background(), pin); err != nil {
			log.Printf("Failed to persist pin for %s: %v", pin.AgentID, err)
		}
	}

	c.JSON(http.StatusCreated, pin)
}

// handleSubmitAttestation runs the verification pipeline.
// POST /api/v1/tee/attestations
func (h *APIHandler) handleSubmitAttestation(c *gin.Context) {
	var att models.Attestation
	if err := c.ShouldBindJSON(&att); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if att.ID == "" {
		att.ID = uuid.NewString()
	}

	result := h.teeStore.SubmitAttestation(c.Request.Context(), att)
	switch {
	case result.Tier3Eligible:
		metrics.AttestationVerifications.WithLabelValues("tier3").Inc()
	case result.Valid:
		metrics.AttestationVerifications.WithLabelValues("valid").Inc()
	default:
		metrics.AttestationVerifications.WithLabelValues("invalid").Inc()
	}

	if h.dbStore != nil {
		if err := h.dbStore.SaveAttestation(context.Background(), att, result); err != nil {
			log.Printf("Failed to persist attestation %s: %v", att.ID, err)
		}
	}

	c.JSON(http.StatusOK, result)
}

// handleGetAlerts returns the recent operator alerts.
// GET /api/v1/alerts?limit=50
func (h *APIHandler) handleGetAlerts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	c.JSON(http.StatusOK, gin.H{"alerts": h.alertMgr.Recent(limit)})
}

// classifySubmitError maps store errors to (kind, HTTP status)
func classifySubmitError(err error) (string, int) {
	switch {
	case errors.Is(err, feedback.ErrInvalidValue):
		return "invalid_value", http.StatusBadRequest
	case errors.Is(err, feedback.ErrEmptyClient):
		return "empty_client", http.StatusBadRequest
	case errors.Is(err, feedback.ErrUnknownAgent):
		return "unknown_agent", http.StatusBadRequest
	case errors.Is(err, feedback.ErrDuplicateID):
		return "duplicate_id", http.StatusConflict
	case errors.Is(err, feedback.ErrNotFound):
		return "not_found", http.StatusNotFound
	case errors.Is(err, feedback.ErrAlreadyRevoked):
		return "already_revoked", http.StatusConflict
	default:
		return "internal", http.StatusInternalServerError
	}
}
