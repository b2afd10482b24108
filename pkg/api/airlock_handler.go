package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/atriumhq/atrium/pkg/airlock"
	"github.com/atriumhq/atrium/pkg/engine"
	"github.com/atriumhq/atrium/pkg/policy"
	"github.com/atriumhq/atrium/pkg/telemetry"
)

type airlockHandler struct {
	store           Store
	machine         *airlock.StateMachine
	scans           *airlock.ScanProcessor
	policy          *policy.Engine
	results         StepResultPublisher
	metrics         *telemetry.Metrics
	scanningEnabled bool
	logger          zerolog.Logger
}

func newAirlockHandler(deps Deps) *airlockHandler {
	return &airlockHandler{
		store:           deps.Store,
		machine:         deps.Machine,
		scans:           deps.Scans,
		policy:          deps.Policy,
		results:         deps.Results,
		metrics:         deps.Metrics,
		scanningEnabled: deps.ScanningEnabled,
		logger:          deps.Logger.With().Str("component", "airlock-api").Logger(),
	}
}

func (h *airlockHandler) actingUser(c *gin.Context) engine.User {
	return userFromHeaders(c.GetHeader("X-User-ID"), c.GetHeader("X-User-Name"))
}

// CreateDraft creates a draft airlock request in the workspace.
func (h *airlockHandler) CreateDraft(c *gin.Context) {
	var dto CreateAirlockRequestDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.machine.CreateDraftRequest(
		c.Request.Context(),
		c.Param("workspaceId"),
		airlock.RequestType(dto.Type),
		dto.BusinessJustification,
		h.actingUser(c),
	)
	if err != nil {
		writeError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordAirlockRequest(dto.Type)
	}
	c.JSON(http.StatusCreated, request)
}

// Get returns a single airlock request.
func (h *airlockHandler) Get(c *gin.Context) {
	request, err := h.store.GetRequestByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

// ListByWorkspace returns all airlock requests of a workspace.
func (h *airlockHandler) ListByWorkspace(c *gin.Context) {
	requests, err := h.store.ListRequestsByWorkspaceID(c.Request.Context(), c.Param("workspaceId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// Submit moves a draft request to submitted after the policy gate passes.
// With scanning disabled there is no verdict to wait for, so the request
// continues straight to in_review.
func (h *airlockHandler) Submit(c *gin.Context) {
	ctx := c.Request.Context()
	user := h.actingUser(c)

	request, err := h.store.GetRequestByID(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.policy.EvaluateRequest(ctx, request)
	if err != nil {
		writeError(c, err)
		return
	}
	if !result.Allowed {
		c.JSON(http.StatusForbidden, gin.H{
			"error":      "request blocked by policy",
			"violations": result.Violations,
		})
		return
	}

	request, err = h.machine.UpdateStatus(ctx, request.ID, airlock.StatusSubmitted, user, "")
	if err != nil {
		writeError(c, err)
		return
	}
	h.recordTransition(request.Status)

	if !h.scanningEnabled {
		request, err = h.machine.UpdateStatus(ctx, request.ID, airlock.StatusInReview, user, "scanning disabled")
		if err != nil {
			writeError(c, err)
			return
		}
		h.recordTransition(request.Status)
	}

	c.JSON(http.StatusOK, request)
}

// Review applies a reviewer decision to an in-review request. There is no
// external data mover in this deployment, so the in-progress status
// completes within the same call.
func (h *airlockHandler) Review(c *gin.Context) {
	var dto ReviewDecisionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	user := h.actingUser(c)
	requestID := c.Param("id")

	progress, final := airlock.StatusRejectionInProgress, airlock.StatusRejected
	if dto.Approve {
		progress, final = airlock.StatusApprovalInProgress, airlock.StatusApproved
	}

	request, err := h.machine.UpdateStatus(ctx, requestID, progress, user, dto.DecisionExplanation)
	if err != nil {
		writeError(c, err)
		return
	}
	h.recordTransition(request.Status)

	request, err = h.machine.UpdateStatus(ctx, requestID, final, user, dto.DecisionExplanation)
	if err != nil {
		writeError(c, err)
		return
	}
	h.recordTransition(request.Status)

	c.JSON(http.StatusOK, request)
}

// Cancel cancels a request that has not yet reached review completion.
func (h *airlockHandler) Cancel(c *gin.Context) {
	request, err := h.machine.UpdateStatus(c.Request.Context(), c.Param("id"), airlock.StatusCancelled, h.actingUser(c), "")
	if err != nil {
		writeError(c, err)
		return
	}
	h.recordTransition(request.Status)
	c.JSON(http.StatusOK, request)
}

// ScanResult ingests a malware scan verdict and advances the request.
func (h *airlockHandler) ScanResult(c *gin.Context) {
	var dto ScanResultDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	event := airlock.ScanResultEvent{BlobURI: dto.BlobURI, Verdict: dto.Verdict}

	result, err := h.scans.Process(ctx, event, h.actingUser(c))
	if err != nil {
		writeError(c, err)
		return
	}

	if h.metrics != nil {
		outcome := "threats_found"
		if result.NewStatus == airlock.StatusInReview {
			outcome = "clean"
		}
		h.metrics.RecordScanVerdict(outcome)
	}
	h.recordTransition(result.NewStatus)

	if h.results != nil {
		if err := h.results.PublishStepResult(ctx, *result); err != nil {
			h.logger.Warn().Err(err).Str("request_id", result.RequestID).Msg("step result publish failed")
		}
	}

	c.JSON(http.StatusOK, result)
}

func (h *airlockHandler) recordTransition(status airlock.Status) {
	if h.metrics != nil {
		h.metrics.RecordAirlockTransition(string(status))
	}
}
