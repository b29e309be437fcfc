package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"aifit/coach-app/internal/domain"
	"aifit/coach-app/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GenerationHandler exposes the plan-generation workflow: the context
// conversation, explicit generation start, and the recovery sweep.
type GenerationHandler struct {
	conversationService service.ConversationService
	generationService   service.GenerationService
}

// NewGenerationHandler creates a new GenerationHandler.
func NewGenerationHandler(conversationService service.ConversationService, generationService service.GenerationService) *GenerationHandler {
	return &GenerationHandler{
		conversationService: conversationService,
		generationService:   generationService,
	}
}

// --- Request/Response Structs ---

type StartConversationRequest struct {
	PlanKind domain.PlanKind `json:"planKind" binding:"required,oneof=diet workout_home workout_gym"`
	Text     string          `json:"text" binding:"required"`
}

type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

type TurnResponse struct {
	Role         domain.TurnRole     `json:"role"`
	Text         string              `json:"text"`
	ResponseKind domain.ResponseKind `json:"responseKind,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
}

// GenerationRecordResponse is the workflow state the clients render.
type GenerationRecordResponse struct {
	ID           string                 `json:"id"`
	PlanKind     domain.PlanKind        `json:"planKind"`
	Phase        domain.GenerationPhase `json:"phase"`
	Conversation []TurnResponse         `json:"conversation"`
	MessageCount int                    `json:"messageCount"`
	Ready        bool                   `json:"ready"`
	ResultPlanID *string                `json:"resultPlanId,omitempty"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// --- Handler Methods ---

// StartConversation begins a new generation flow from the user's free-text
// request.
func (h *GenerationHandler) StartConversation(c *gin.Context) {
	ownerID, err := getOwnerIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Could not identify user")
		return
	}

	var req StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	record, err := h.conversationService.StartConversation(c.Request.Context(), ownerID, req.PlanKind, req.Text)
	if err != nil {
		// The record may exist already (durable turn) even when the first
		// backend exchange failed; surface it alongside the error status.
		if errors.Is(err, service.ErrBackendUnavailable) && record != nil {
			c.JSON(http.StatusBadGateway, gin.H{
				"error":  "The assistant is unavailable right now. Please try again.",
				"record": MapRecordToResponse(record),
			})
			return
		}
		h.mapFlowError(c, err)
		return
	}

	c.JSON(http.StatusCreated, MapRecordToResponse(record))
}

// SendMessage appends a user message to an active conversation.
func (h *GenerationHandler) SendMessage(c *gin.Context) {
	ownerID, recordID, ok := h.ownerAndRecord(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	record, err := h.conversationService.SendMessage(c.Request.Context(), ownerID, recordID, req.Text)
	if err != nil {
		h.mapFlowError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapRecordToResponse(record))
}

// RequestMoreQuestions declines an early ready signal and continues the
// conversation.
func (h *GenerationHandler) RequestMoreQuestions(c *gin.Context) {
	ownerID, recordID, ok := h.ownerAndRecord(c)
	if !ok {
		return
	}

	record, err := h.conversationService.RequestMoreQuestions(c.Request.Context(), ownerID, recordID)
	if err != nil {
		h.mapFlowError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapRecordToResponse(record))
}

// BeginGeneration starts plan generation for a ready conversation.
func (h *GenerationHandler) BeginGeneration(c *gin.Context) {
	ownerID, recordID, ok := h.ownerAndRecord(c)
	if !ok {
		return
	}

	record, err := h.generationService.BeginGeneration(c.Request.Context(), ownerID, recordID)
	if err != nil {
		if errors.Is(err, service.ErrBackendUnavailable) && record != nil {
			// Still in generating phase; retry or recovery will finish it.
			c.JSON(http.StatusBadGateway, gin.H{
				"error":  "Plan generation could not be completed right now. It will be retried.",
				"record": MapRecordToResponse(record),
			})
			return
		}
		h.mapFlowError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapRecordToResponse(record))
}

// StartOver abandons the flow; the record is retained for history.
func (h *GenerationHandler) StartOver(c *gin.Context) {
	ownerID, recordID, ok := h.ownerAndRecord(c)
	if !ok {
		return
	}

	if err := h.conversationService.StartOver(c.Request.Context(), ownerID, recordID); err != nil {
		h.mapFlowError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RecoverPendingWork resumes interrupted generation work for the caller.
func (h *GenerationHandler) RecoverPendingWork(c *gin.Context) {
	ownerID, err := getOwnerIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Could not identify user")
		return
	}

	if err := h.generationService.RecoverPendingWork(c.Request.Context(), ownerID); err != nil {
		abortWithError(c, http.StatusInternalServerError, "Recovery sweep failed")
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Helpers ---

func (h *GenerationHandler) ownerAndRecord(c *gin.Context) (primitive.ObjectID, primitive.ObjectID, bool) {
	ownerID, err := getOwnerIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Could not identify user")
		return primitive.NilObjectID, primitive.NilObjectID, false
	}
	recordID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid record ID format")
		return primitive.NilObjectID, primitive.NilObjectID, false
	}
	return ownerID, recordID, true
}

// mapFlowError translates service errors to HTTP statuses with user-safe
// messages.
func (h *GenerationHandler) mapFlowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyInput), errors.Is(err, service.ErrInvalidPlanKind):
		abortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrRecordNotFound):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrFlowActive),
		errors.Is(err, service.ErrPhaseConflict),
		errors.Is(err, service.ErrPhaseTerminal),
		errors.Is(err, service.ErrConversationNotReady),
		errors.Is(err, service.ErrFlowCancelled):
		abortWithError(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrBackendUnavailable):
		abortWithError(c, http.StatusBadGateway, "The assistant is unavailable right now. Please try again.")
	default:
		abortWithError(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}

// MapRecordToResponse converts a domain GenerationRecord to its DTO.
func MapRecordToResponse(record *domain.GenerationRecord) GenerationRecordResponse {
	if record == nil {
		return GenerationRecordResponse{}
	}
	turns := make([]TurnResponse, len(record.Conversation))
	for i, t := range record.Conversation {
		turns[i] = TurnResponse{
			Role:         t.Role,
			Text:         t.Text,
			ResponseKind: t.ResponseKind,
			Timestamp:    t.Timestamp,
		}
	}
	resp := GenerationRecordResponse{
		ID:           record.ID.Hex(),
		PlanKind:     record.PlanKind,
		Phase:        record.Phase,
		Conversation: turns,
		MessageCount: record.MessageCount,
		Ready:        record.ReadySignalled(),
		ErrorMessage: record.ErrorMessage,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
	if record.ResultPlanID != nil {
		planID := record.ResultPlanID.Hex()
		resp.ResultPlanID = &planID
	}
	return resp
}
