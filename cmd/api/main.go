package main

import (
	"context"
	"fmt"
	"log"
	"time"

	common_api "go-reports/internal/api"
	"go-reports/internal/common/clock"
	"go-reports/internal/config"
	"go-reports/internal/database"
	"go-reports/internal/features/audit"
	"go-reports/internal/features/execution"
	"go-reports/internal/features/export"
	"go-reports/internal/features/notification"
	"go-reports/internal/features/query"
	"go-reports/internal/features/registry"
	"go-reports/internal/features/report"
	"go-reports/internal/features/schedule"
	"go-reports/internal/features/system"
	"go-reports/internal/features/tenant"
	"go-reports/internal/logger"
	"go-reports/internal/middleware"
	"go-reports/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.CORSMiddleware())

	return app
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),    // Cast to Interface
		fx.ResultTags(`group:"routes"`), // Add to Group
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route) {
	log.Printf("Registering %d routes...\n", len(routes))
	for i, route := range routes {
		log.Printf("Setting up route %d: %T\n", i+1, route)
		route.Setup(app)
	}
	log.Println("All routes registered successfully")
}

// RegisterAllRoutesWithAnnotation wraps RegisterAllRoutes with fx annotations
var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	utils.SetSecret(cfg.JWTSecret)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// InitializeIndexes ensures that necessary database indexes are created
func InitializeIndexes(
	lc fx.Lifecycle,
	reportRepo report.ReportRepository,
	favoriteRepo report.FavoriteRepository,
	executionRepo execution.ExecutionRepository,
	scheduleRepo schedule.ScheduleRepository,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				// Use a background context with timeout for index creation
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				for name, ensure := range map[string]func(context.Context) error{
					"report_definitions": reportRepo.EnsureIndexes,
					"report_favorites":   favoriteRepo.EnsureIndexes,
					"report_executions":  executionRepo.EnsureIndexes,
					"report_schedules":   scheduleRepo.EnsureIndexes,
				} {
					if err := ensure(ctx); err != nil {
						logger.Error("Failed to ensure indexes", zap.String("collection", name), zap.Error(err))
					}
				}
			}()
			return nil
		},
	})
}

// StartScheduler ties the report scheduler to the app lifecycle.
func StartScheduler(lc fx.Lifecycle, cfg *config.Config, scheduler *schedule.Scheduler, logger *zap.Logger) {
	if !cfg.SchedulerEnabled {
		logger.Info("Report scheduler disabled")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start()
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}

// reportCascade removes everything that hangs off a deleted report.
type reportCascade struct {
	executions execution.ExecutionRepository
	schedules  schedule.ScheduleRepository
}

func (c *reportCascade) DeleteByReport(ctx context.Context, reportID string, org string) error {
	if err := c.schedules.DeleteByReport(ctx, reportID, org); err != nil {
		return fmt.Errorf("delete schedules: %w", err)
	}
	if err := c.executions.DeleteByReport(ctx, reportID, org); err != nil {
		return fmt.Errorf("delete executions: %w", err)
	}
	return nil
}

func main() {
	app := fx.New(
		fx.Provide(
			// Load Config
			config.LoadConfig,

			// Initialize Logger
			logger.NewLogger,

			// Initialize Fiber Server
			NewFiberServer,

			// Initialize Databases
			database.NewDatabase,
			database.NewWarehouse,

			clock.New,
			tenant.NewClaimsResolver,
			registry.NewDefaultRegistry,
			report.NewValidator,
			query.NewPlanner,
			query.NewSQLReader,
			export.NewRenderer,
			execution.NewHub,

			// Initialize Repository
			audit.NewAuditRepository,
			report.NewReportRepository,
			report.NewFavoriteRepository,
			execution.NewExecutionRepository,
			schedule.NewScheduleRepository,
			notification.NewDeliveryRepository,

			audit.NewAuditService,
			report.NewReportService,
			execution.NewEngine,
			notification.NewSink,
			schedule.NewRunner,
			schedule.NewScheduleService,
			schedule.NewScheduler,

			// Interface Adapters to break circular dependencies and satisfy Fx
			func(e execution.ExecutionRepository, s schedule.ScheduleRepository) report.CascadeDeleter {
				return &reportCascade{executions: e, schedules: s}
			},

			// Initialize Controller
			registry.NewRegistryController,
			report.NewReportController,
			execution.NewExecutionController,
			schedule.NewScheduleController,
			audit.NewAuditController,

			// Initialize API Routes
			AsRoute(system.NewSystemApi),
			AsRoute(registry.NewRegistryApi),
			AsRoute(report.NewReportApi),
			AsRoute(execution.NewExecutionApi),
			AsRoute(schedule.NewScheduleApi),
			AsRoute(audit.NewAuditApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			// Register Routes & Start
			RegisterAllRoutesWithAnnotation,
			StartServer,
			StartScheduler,
			InitializeIndexes,
		),
	)

	app.Run()
}
