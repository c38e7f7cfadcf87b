package app

import (
	"quizo/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	api := router.Group("/api")
	{
		api.GET("/health", c.health.HealthCheck)
		api.GET("/attempts", c.quiz.History)
	}

	quiz := api.Group("/quiz")
	{
		quiz.GET("", c.quiz.GetQuiz)
		quiz.POST("/choice", c.quiz.SelectChoice)
		quiz.POST("/numeric", c.quiz.SubmitNumeric)
		quiz.POST("/next", c.quiz.Next)
		quiz.POST("/acknowledge", c.quiz.Acknowledge)
	}
}
