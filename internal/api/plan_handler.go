package api

import (
	"errors"
	"log"
	"net/http"

	"aifit/coach-app/internal/repository"
	"aifit/coach-app/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PlanHandler serves generated plans. Loading the plan list also runs the
// housekeeping pass, so expired plans are archived on the read path.
type PlanHandler struct {
	planRepo     repository.PlanRepository
	housekeeping service.HousekeepingService
}

// NewPlanHandler creates a new PlanHandler.
func NewPlanHandler(planRepo repository.PlanRepository, housekeeping service.HousekeepingService) *PlanHandler {
	return &PlanHandler{
		planRepo:     planRepo,
		housekeeping: housekeeping,
	}
}

// ListPlans returns all of the caller's plans, archiving stale ones first.
func (h *PlanHandler) ListPlans(c *gin.Context) {
	ownerID, err := getOwnerIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Could not identify user")
		return
	}

	// Housekeeping before the read so the response reflects archive state.
	if _, err := h.housekeeping.ArchiveStale(c.Request.Context(), ownerID); err != nil {
		log.Printf("WARN: Housekeeping pass failed for owner %s: %v", ownerID.Hex(), err)
	}

	plans, err := h.planRepo.GetByOwner(c.Request.Context(), ownerID)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Could not load plans")
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

// GetPlan returns a single plan by id, scoped to the caller.
func (h *PlanHandler) GetPlan(c *gin.Context) {
	ownerID, err := getOwnerIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Could not identify user")
		return
	}
	planID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid plan ID format")
		return
	}

	plan, err := h.planRepo.GetByID(c.Request.Context(), planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			abortWithError(c, http.StatusNotFound, "Plan not found")
			return
		}
		abortWithError(c, http.StatusInternalServerError, "Could not load plan")
		return
	}
	if plan.OwnerID != ownerID {
		// Another user's plan is indistinguishable from a missing one.
		abortWithError(c, http.StatusNotFound, "Plan not found")
		return
	}
	c.JSON(http.StatusOK, plan)
}
