package main

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/condovote/internal/config"
	"github.com/huangang/condovote/internal/handlers"
	"github.com/huangang/condovote/internal/middleware"
	"github.com/huangang/condovote/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, cfg *config.Config, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins...))

	// One-time codes are six digits; throttle the endpoints that accept them
	checkInLimiter := middleware.PerMinute(cfg.Assembly.CheckInRate)
	voteLimiter := middleware.PerMinute(cfg.Assembly.VoteRate)

	assemblyHandler := handlers.NewAssemblyHandler(svc.engine)
	agendaHandler := handlers.NewAgendaHandler(svc.engine)
	participantHandler := handlers.NewParticipantHandler(svc.engine)
	unitHandler := handlers.NewUnitHandler(svc.engine)
	publicHandler := handlers.NewPublicHandler(svc.engine)
	sseHandler := handlers.NewSSEHandler(svc.engine, svc.hub)

	// Health check
	r.GET("/health", handlers.NewHealthHandler(svc.db, svc.hub, svc.taskQueue).CheckHealth)
	if svc.registry != nil {
		r.GET("/metrics", handlers.Metrics(svc.registry))
	}

	api := r.Group("/api")
	{
		// Check-in link and projector screens (assembly access token)
		public := api.Group("/public/assemblies/:token")
		{
			public.GET("", publicHandler.Display)
			public.POST("/check-in", checkInLimiter, publicHandler.CheckIn)
			public.GET("/events", sseHandler.StreamAssemblyEvents)
		}

		// Participant devices (session token)
		participant := api.Group("/participant", middleware.ParticipantRequired(svc.engine.Sessions))
		{
			participant.GET("/me", publicHandler.Me)
			participant.POST("/leave", publicHandler.Leave)
			participant.POST("/proxy-document", publicHandler.UploadProxyDocument)
			participant.GET("/agenda/:id/vote", publicHandler.MyVote)
			participant.POST("/agenda/:id/vote", voteLimiter, publicHandler.Cast)
		}

		// Syndic and administration staff
		staff := api.Group("")
		staff.Use(middleware.AuthRequired(), middleware.SyndicRequired(), middleware.AuditLog())
		{
			// Units
			staff.GET("/units", unitHandler.List)
			staff.POST("/units", unitHandler.Create)
			staff.GET("/units/:id", unitHandler.GetByID)
			staff.PUT("/units/:id", unitHandler.Update)

			// Assemblies
			staff.GET("/assemblies", assemblyHandler.List)
			staff.POST("/assemblies", assemblyHandler.Schedule)
			staff.GET("/assemblies/:id", assemblyHandler.GetByID)
			staff.DELETE("/assemblies/:id", assemblyHandler.Delete)
			staff.POST("/assemblies/:id/start", assemblyHandler.Start)
			staff.POST("/assemblies/:id/finish", assemblyHandler.Finish)
			staff.POST("/assemblies/:id/cancel", assemblyHandler.Cancel)
			staff.GET("/assemblies/:id/access-token", assemblyHandler.AccessToken)
			staff.GET("/assemblies/:id/checkin-otp", assemblyHandler.CurrentCheckInOTP)
			staff.POST("/assemblies/:id/checkin-otp", assemblyHandler.GenerateCheckInOTP)
			staff.GET("/assemblies/:id/display", assemblyHandler.Display)
			staff.GET("/assemblies/:id/quorum", assemblyHandler.Quorum)
			staff.GET("/assemblies/:id/agenda", agendaHandler.List)
			staff.POST("/assemblies/:id/agenda", agendaHandler.AddItem)
			staff.GET("/assemblies/:id/participants", participantHandler.List)
			staff.GET("/assemblies/:id/pending-proxies", participantHandler.PendingProxies)

			// Agenda items
			staff.GET("/agenda/:id", agendaHandler.GetByID)
			staff.POST("/agenda/:id/start-voting", agendaHandler.StartVoting)
			staff.POST("/agenda/:id/close-voting", agendaHandler.CloseVoting)
			staff.GET("/agenda/:id/voting-otp", agendaHandler.CurrentVotingOTP)
			staff.POST("/agenda/:id/voting-otp", agendaHandler.RegenerateVotingOTP)
			staff.GET("/agenda/:id/summary", agendaHandler.Summary)
			staff.GET("/agenda/:id/votes", agendaHandler.Votes)

			// Participants and proxy approval
			staff.GET("/participants/:id", participantHandler.GetByID)
			staff.POST("/participants/:id/approve", participantHandler.Approve)
			staff.POST("/participants/:id/reject", participantHandler.Reject)
			staff.POST("/participants/:id/leave", participantHandler.MarkLeft)
			staff.PATCH("/participants/:id/voting-weight", participantHandler.SetVotingWeight)

			// System Logs
			staff.GET("/system-logs", handlers.NewSystemLogHandler(svc.engine.Audit).List)
		}
	}

	// Proxy documents on local disk are for staff eyes only
	if (cfg.Storage.Driver == "" || cfg.Storage.Driver == "local") && cfg.Storage.BaseURL != "" && cfg.Storage.BaseURL != "/" {
		docs := r.Group(cfg.Storage.BaseURL, middleware.AuthRequired(), middleware.SyndicRequired())
		docs.Static("/", cfg.Storage.Dir)
	}
}
