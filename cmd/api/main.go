package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmlabs-hris/hrms-backend-go/internal/config"
	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/employee"
	appHTTP "github.com/cmlabs-hris/hrms-backend-go/internal/handler/http"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/clock"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/cron"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/database"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/sse"
	"github.com/cmlabs-hris/hrms-backend-go/internal/repository/memory"
	"github.com/cmlabs-hris/hrms-backend-go/internal/repository/postgresql"
	attendanceService "github.com/cmlabs-hris/hrms-backend-go/internal/service/attendance"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type repositories struct {
	transactor database.Transactor
	attendance attendance.AttendanceRepository
	employee   employee.EmployeeRepository
	close      func()
}

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := appHTTP.NewLogger(os.Stdout, cfg.SlogLevel(), cfg.App.Version, cfg.App.Env)
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	policy, err := cfg.ShiftPolicy()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg, loc)
	if err != nil {
		return err
	}
	defer repos.close()

	clk := clock.New(loc)
	JWTService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)
	hub := sse.NewHub(16)

	attendanceSvc := attendanceService.NewAttendanceService(
		repos.transactor,
		repos.attendance,
		repos.employee,
		JWTService,
		hub,
		attendanceService.Options{
			Location:          loc,
			Clock:             clk,
			Policy:            policy,
			TransitionRetries: cfg.Attendance.TransitionRetries,
			Logger:            logger,
		},
	)

	attendanceHandler := appHTTP.NewAttendanceHandler(attendanceSvc)
	streamHandler := appHTTP.NewStreamHandler(JWTService, hub, cfg.Attendance.StreamKeepalive)
	router := appHTTP.NewRouter(JWTService, attendanceHandler, streamHandler, appHTTP.RouterOptions{
		Logger:         logger,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RequestTimeout: cfg.App.RequestTimeout,
	})

	scheduler := cron.NewScheduler(logger)
	cron.NewAttendanceJobs(repos.attendance, hub, clk, loc, logger).
		RegisterJobs(scheduler, cfg.Attendance.StaleScanInterval)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server running", "addr", server.Addr, "storage", cfg.Storage.Driver, "timezone", loc.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openRepositories(ctx context.Context, cfg *config.Config, loc *time.Location) (repositories, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		store := memory.NewStore(loc)
		if cfg.Storage.SeedFile != "" {
			n, err := store.LoadSeedFile(cfg.Storage.SeedFile)
			if err != nil {
				return repositories{}, err
			}
			slog.Info("Memory store seeded", "employees", n)
		} else {
			slog.Warn("Memory store has no seed file, every request will lack an employee profile")
		}
		return repositories{
			transactor: store.Transactor(),
			attendance: memory.NewAttendanceRepository(store),
			employee:   memory.NewEmployeeRepository(store),
			close:      func() {},
		}, nil

	default:
		db, err := database.NewPostgreSQLDBWithOptions(ctx, cfg.DatabaseURL(), database.PoolOptions{
			MaxConns: cfg.Database.MaxConns,
			TimeZone: cfg.App.Timezone,
		})
		if err != nil {
			return repositories{}, fmt.Errorf("connect database: %w", err)
		}
		if err := postgresql.Migrate(ctx, db); err != nil {
			db.Close()
			return repositories{}, fmt.Errorf("migrate database: %w", err)
		}
		return repositories{
			transactor: postgresql.NewTransactor(db),
			attendance: postgresql.NewAttendanceRepository(db, loc),
			employee:   postgresql.NewEmployeeRepository(db),
			close:      db.Close,
		}, nil
	}
}
