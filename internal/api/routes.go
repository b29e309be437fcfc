package api

import (
	"net/http"

	"aifit/coach-app/internal/repository"
	"aifit/coach-app/internal/service"

	"github.com/gin-gonic/gin"
)

// SetupRoutes wires the HTTP surface: public auth endpoints plus the
// JWT-protected plan-generation workflow.
func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authService service.AuthService,
	conversationService service.ConversationService,
	generationService service.GenerationService,
	housekeepingService service.HousekeepingService,
	planRepo repository.PlanRepository,
) {
	authHandler := NewAuthHandler(authService, generationService)
	generationHandler := NewGenerationHandler(conversationService, generationService)
	planHandler := NewPlanHandler(planRepo, housekeepingService)

	authMiddleware := AuthMiddleware(jwtSecret)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}
	}

	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		generationGroup := protected.Group("/generation")
		{
			generationGroup.POST("/conversations", generationHandler.StartConversation)
			generationGroup.POST("/conversations/:id/messages", generationHandler.SendMessage)
			generationGroup.POST("/conversations/:id/more-questions", generationHandler.RequestMoreQuestions)
			generationGroup.POST("/conversations/:id/generate", generationHandler.BeginGeneration)
			generationGroup.DELETE("/conversations/:id", generationHandler.StartOver)
			generationGroup.POST("/recover", generationHandler.RecoverPendingWork)
		}

		planGroup := protected.Group("/plans")
		{
			planGroup.GET("", planHandler.ListPlans)
			planGroup.GET("/:id", planHandler.GetPlan)
		}
	}
}
