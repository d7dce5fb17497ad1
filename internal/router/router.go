package router

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/psds-microservice/helpy/paths"
	"github.com/psds-microservice/workshop-service/api"
	"github.com/psds-microservice/workshop-service/internal/auth"
	"github.com/psds-microservice/workshop-service/internal/handler"
	"github.com/psds-microservice/workshop-service/internal/lifecycle"
	"github.com/psds-microservice/workshop-service/internal/middleware"
	"github.com/psds-microservice/workshop-service/internal/model"
	"github.com/psds-microservice/workshop-service/internal/realtime"
	"github.com/psds-microservice/workshop-service/internal/service"
	"github.com/psds-microservice/workshop-service/internal/telemetry"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"
)

const PathMetrics = "/metrics"

// Deps — всё, что нужно роутеру.
type Deps struct {
	DB       *gorm.DB
	Issuer   *auth.Issuer
	Hub      *realtime.Hub
	Tickets  service.TicketServicer
	Buggies  *service.BuggyService
	Dealer   *service.DealerService
	Hours    *service.HoursService
	JobCards *service.JobCardService
	Accounts *service.AccountService

	CORSOrigins     []string
	LoginRatePerMin int
	Logger          *slog.Logger
}

func New(d Deps) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(otelgin.Middleware(telemetry.ServiceName))
	r.Use(middleware.Logger(d.Logger), middleware.Metrics())
	r.Use(cors.New(corsConfig(d.CORSOrigins)))

	r.GET(paths.PathHealth, handler.Health)
	r.GET(paths.PathReady, handler.Ready(d.DB))
	r.GET(PathMetrics, gin.WrapH(promhttp.Handler()))
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/openapi.json"))(c)
	})

	tickets := handler.NewTicketHandler(d.Tickets)
	buggies := handler.NewBuggyHandler(d.Buggies)
	dealer := handler.NewDealerHandler(d.Dealer)
	hours := handler.NewHoursHandler(d.Hours)
	jobCards := handler.NewJobCardHandler(d.JobCards)
	accounts := handler.NewAuthHandler(d.Accounts)

	const (
		admin    = model.RoleAdmin
		mechanic = model.RoleMechanic
		guide    = model.RoleGuide
	)
	only := middleware.RequireRole
	limiter := middleware.NewIPLimiter(d.LoginRatePerMin)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/auth/login", limiter.Middleware(), accounts.Login)
		v1.GET("/auth/roster", accounts.Roster)
	}

	authed := v1.Group("", middleware.Auth(d.Issuer))
	{
		authed.GET("/auth/me", accounts.Me)
		authed.POST("/accounts", only(admin), accounts.CreateAccount)

		authed.GET("/tickets/stream", d.Hub.ServeWS)
		authed.POST("/tickets", only(guide, admin), tickets.Create)
		authed.GET("/tickets", only(admin), tickets.List)
		authed.GET("/tickets/feed", only(mechanic), tickets.Feed)
		authed.GET("/tickets/mine", only(guide), tickets.Mine)
		authed.GET("/tickets/:id", tickets.Get)
		authed.POST("/tickets/:id/start", only(mechanic), tickets.Transition(lifecycle.ActionStart))
		authed.POST("/tickets/:id/done", only(mechanic), tickets.Transition(lifecycle.ActionDone))
		authed.POST("/tickets/:id/assign", only(mechanic), tickets.Transition(lifecycle.ActionAssign))
		authed.POST("/tickets/:id/test-drive", only(mechanic, guide), tickets.Transition(lifecycle.ActionRequestTestDrive))
		authed.POST("/tickets/:id/test-passed", only(guide), tickets.Transition(lifecycle.ActionTestPassed))
		authed.POST("/tickets/:id/send-back", only(guide), tickets.Transition(lifecycle.ActionSendBack))
		authed.PUT("/tickets/:id/readings", only(mechanic, guide), tickets.SaveReadings)
		authed.GET("/tickets/:id/worklogs", tickets.ListWorklogs)
		authed.POST("/tickets/:id/worklogs", only(mechanic), tickets.AddWorklog)

		authed.GET("/buggies", buggies.List)
		authed.POST("/buggies", only(admin), buggies.Create)
		authed.GET("/buggies/:id", buggies.Get)
		authed.POST("/buggies/:id/dealer-return", only(mechanic, admin), dealer.ReturnActive)

		authed.GET("/dealer-visits", only(admin, mechanic), dealer.List)
		authed.GET("/dealer-visits/lock", dealer.Lock)
		authed.POST("/dealer-visits", only(mechanic, admin), dealer.Give)
		authed.POST("/dealer-visits/:id/return", only(mechanic, admin), dealer.Return)

		authed.POST("/hours", only(guide), hours.Log)
		authed.GET("/hours/mine", only(guide), hours.Mine)
		authed.GET("/hours", only(admin), hours.List)

		authed.POST("/job-cards", only(guide), jobCards.Create)
		authed.GET("/job-cards", only(admin), jobCards.List)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders: []string{middleware.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
