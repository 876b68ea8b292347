package api

import (
	"github.com/gin-gonic/gin"

	"github.com/fiscaldesk/printflow/internal/api/handlers"
	"github.com/fiscaldesk/printflow/internal/api/middleware"
	"github.com/fiscaldesk/printflow/internal/db"
	"github.com/fiscaldesk/printflow/internal/jobstore"
	"github.com/fiscaldesk/printflow/internal/notes"
)

type Deps struct {
	Jobs    *jobstore.Store
	Notes   *notes.Store
	Devices *db.DeviceStore
	Auth    *middleware.Auth
}

func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	jobs := handlers.NewJobHandler(deps.Jobs)
	noteHandler := handlers.NewNoteHandler(deps.Notes)
	agent := handlers.NewAgentHandler(deps.Jobs, deps.Devices)
	devices := handlers.NewDeviceHandler(deps.Devices)

	api := router.Group("/api")

	api.POST("/agent/login", deps.Auth.AgentLogin)

	user := api.Group("", deps.Auth.RequireUser())
	{
		user.POST("/jobs", jobs.CreateJob)
		user.GET("/jobs", jobs.ListJobs)
		user.GET("/jobs/stats", jobs.QueueStats)
		user.GET("/jobs/:id", jobs.GetJob)
		user.POST("/jobs/:id/retry", jobs.RetryJob)
		user.POST("/jobs/:id/cancel", jobs.CancelJob)
		user.GET("/history", jobs.ListHistory)

		user.POST("/notes", noteHandler.CreateNote)
		user.GET("/notes", noteHandler.ListNotes)
		user.GET("/notes/stats", noteHandler.NoteStats)
		user.GET("/notes/:id", noteHandler.GetNote)
		user.POST("/notes/:id/printed", noteHandler.MarkPrinted)

		user.POST("/devices", devices.RegisterDevice)
		user.GET("/devices", devices.ListDevices)
	}

	agentGroup := api.Group("/agent", deps.Auth.RequireAgent())
	{
		agentGroup.GET("/jobs", agent.PendingJobs)
		agentGroup.POST("/jobs/:id/claim", agent.ClaimJob)
		agentGroup.POST("/jobs/:id/printed", agent.ReportPrinted)
		agentGroup.POST("/jobs/:id/error", agent.ReportError)
	}

	return router
}
