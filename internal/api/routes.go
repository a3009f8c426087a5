package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	// Health check
	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1", ActingUserMiddleware())
	{
		results := v1.Group("/results")
		results.POST("/load", handler.LoadResults)
		results.GET("", handler.ListResults)
		results.GET("/events", handler.StreamChanges)

		results.POST("/edits", handler.RecordEdit)
		results.GET("/edits", handler.GetDraft)
		results.DELETE("/edits", handler.DiscardDraft)
		results.POST("/save", handler.SaveResults)
		results.GET("/saves/:save_run_id", handler.GetSaveRun)

		results.POST("/imports", handler.CreateImport)
		results.GET("/imports/:import_id", handler.GetImportStatus)
	}
}
