// Command plantcare runs the plant watering reminder service.
//
// Usage:
//
//	plantcare serve --config configs/config.yaml
//	plantcare status
//	plantcare notifications --plant 3
//	plantcare reschedule
//	plantcare cleanup
//
// Every command except serve talks to the running server over its API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/noahxzhu/plantcare-notify/internal/action"
	"github.com/noahxzhu/plantcare-notify/internal/config"
	"github.com/noahxzhu/plantcare-notify/internal/device"
	"github.com/noahxzhu/plantcare-notify/internal/lifecycle"
	"github.com/noahxzhu/plantcare-notify/internal/model"
	"github.com/noahxzhu/plantcare-notify/internal/plants"
	"github.com/noahxzhu/plantcare-notify/internal/pushover"
	"github.com/noahxzhu/plantcare-notify/internal/reminder"
	"github.com/noahxzhu/plantcare-notify/internal/storage"
	"github.com/noahxzhu/plantcare-notify/internal/web"
	"github.com/noahxzhu/plantcare-notify/internal/worker"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	var configPath, serverURL string
	root := &cobra.Command{
		Use:           "plantcare",
		Short:         "Plant watering reminders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to the YAML config file")
	root.PersistentFlags().StringVar(&serverURL, "server", "", "Base URL of the running server (default server.public_url)")

	r := remote{configPath: &configPath, serverURL: &serverURL}
	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(statusCmd(r))
	root.AddCommand(notificationsCmd(r))
	root.AddCommand(rescheduleCmd(r))
	root.AddCommand(cleanupCmd(r))

	if err := root.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *storage.Store
	journal   *storage.Journal
	center    *device.Center
	plants    plants.Repository
	scheduler *reminder.Scheduler
	handler   *action.Handler
	manager   *lifecycle.Manager
	closers   []func()
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	loc, _ := cfg.Location()

	store := storage.NewStore(cfg.Storage.FilePath)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("load storage: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: store}
	a.journal = storage.NewJournal(store, logger)

	a.center = device.NewCenter(store, device.Options{
		Platform:         device.Platform(cfg.Device.Platform),
		Simulated:        cfg.Device.Simulated,
		PermissionAnswer: device.PermissionStatus(cfg.Device.Permission),
	}, logger)
	if err := a.center.Load(); err != nil {
		return nil, err
	}

	if cfg.Database.URL != "" {
		logger.Info("Connecting to database...")
		pg, err := plants.NewPostgres(ctx, cfg.Database.URL, cfg.Database.MaxConns, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		a.plants = pg
	} else {
		logger.Warn("No database configured, plants are kept in memory")
		a.plants = plants.NewMemory()
	}

	a.scheduler = reminder.NewScheduler(a.center, reminder.Options{
		SendingHour:      cfg.Schedule.SendingHour,
		Location:         loc,
		SkipPastTriggers: cfg.Schedule.SkipPastTriggers,
	}, logger)
	a.scheduler.SetRecorder(a.journal)

	a.handler = action.NewHandler(a.plants, a.scheduler, action.Options{
		RemindLater: cfg.Schedule.RemindLater,
		Retry: action.RetryPolicy{
			Attempts: uint(cfg.Retry.MaxRetries),
			Delay:    cfg.Retry.RetryDelay,
			MaxDelay: cfg.Retry.MaxDelay,
		},
		Timeout: cfg.Retry.Timeout,
	}, logger)
	a.handler.SetRecorder(a.journal)

	a.manager = lifecycle.NewManager(a.center, storage.NewStateStore(store, logger), a.journal, logger)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) handlers() lifecycle.Handlers {
	return lifecycle.Handlers{
		OnNotificationReceived: func(n model.ScheduledNotification) {
			a.logger.Info("Notification received", "identifier", n.Identifier, "plant_id", n.PlantID(), "kind", n.Kind())
			a.journal.Record("received", n.Content.Title, map[string]any{
				"identifier": n.Identifier,
				"plant_id":   n.PlantID(),
				"kind":       string(n.Kind()),
			})
		},
		OnNotificationResponse: a.handler.Dispatch,
		OnError: func(err error) {
			a.logger.Error("Notifications unavailable", "error", err)
		},
	}
}

func (a *app) resyncAll(ctx context.Context) error {
	list, err := a.plants.List(ctx)
	if err != nil {
		return fmt.Errorf("list plants: %w", err)
	}
	return a.scheduler.Resync(ctx, list)
}

// run builds the app, hands it to fn and releases it afterwards.
func run(configPath string, fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --------------------------------------------------------------------------
// serve command
// --------------------------------------------------------------------------

func serveCmd(configPath *string) *cobra.Command {
	var resync bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reminder worker and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(*configPath, func(ctx context.Context, a *app) error {
				return serve(ctx, a, resync)
			})
		},
	}
	cmd.Flags().BoolVar(&resync, "resync", true, "Reschedule every plant at startup")
	return cmd
}

func serve(ctx context.Context, a *app, resync bool) error {
	cfg, logger := a.cfg, a.logger

	ready := a.manager.Init(ctx, a.handlers())
	if ready {
		startDelivery(ctx, a, resync)
	} else {
		logger.Warn("Notifications unavailable, reminders are not scheduled", "state", a.manager.State())
	}

	srv := web.NewServer(web.Deps{
		Plants:    a.plants,
		Scheduler: a.scheduler,
		Responder: a.center,
		Lifecycle: a.manager,
		Journal:   a.journal,
	}, cfg.Server.APIToken, logger)
	if cfg.Server.APIToken == "" {
		logger.Warn("server.api_token is empty, the API is unauthenticated")
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "port", cfg.Server.Port, "public_url", cfg.Server.PublicURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := a.handler.Wait(shutdownCtx); err != nil {
		logger.Warn("Abandoned in-flight notification responses", "error", err)
	}
	logger.Info("Server exited")
	return nil
}

// startDelivery runs the worker that fires due reminders and keeps the
// schedule in step with the plant repository.
func startDelivery(ctx context.Context, a *app, resync bool) {
	cfg, logger := a.cfg, a.logger

	var presenter worker.Presenter
	client := pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.User, cfg.Pushover.RequestsPerMinute)
	if client.Configured() {
		presenter = pushover.NewPresenter(client, a.center, cfg.Server.PublicURL, cfg.Server.APIToken)
		logger.Info("Pushover delivery enabled")
	} else {
		logger.Info("Pushover delivery disabled, fired reminders are only logged")
	}

	w := worker.NewWorker(a.center, presenter, logger)
	w.SetOnFire(func(n model.ScheduledNotification, err error) {
		if err != nil {
			a.journal.Record("present_failed", err.Error(), map[string]any{
				"identifier": n.Identifier,
				"plant_id":   n.PlantID(),
			})
		}
	})
	a.center.SetOnChange(w.Refresh)
	go w.Start(ctx)

	go a.scheduler.Sync(ctx, a.plants.Changes(ctx))

	if resync {
		if err := a.resyncAll(ctx); err != nil {
			logger.Error("Failed to resync reminders", "error", err)
		}
	}
}

// --------------------------------------------------------------------------
// inspection commands
// --------------------------------------------------------------------------

// remote resolves the running server the inspection commands talk to.
type remote struct {
	configPath *string
	serverURL  *string
}

func (r remote) run(fn func(ctx context.Context, c *web.Client) error) error {
	cfg, err := config.LoadConfig(*r.configPath)
	if err != nil {
		return err
	}

	base := *r.serverURL
	if base == "" {
		base = cfg.Server.PublicURL
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return fn(ctx, web.NewClient(base, cfg.Server.APIToken))
}

func statusCmd(r remote) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the notification state and recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(func(ctx context.Context, c *web.Client) error {
				state, err := c.State(ctx)
				if err != nil {
					return err
				}
				logs, err := c.Logs(ctx)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"lifecycle":    state.Lifecycle,
					"notification": state.Notification,
					"logs":         logs,
				})
			})
		},
	}
}

func notificationsCmd(r remote) *cobra.Command {
	var plantID int64
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List scheduled reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(func(ctx context.Context, c *web.Client) error {
				list, err := c.Notifications(ctx, plantID)
				if err != nil {
					return err
				}
				return printJSON(list)
			})
		},
	}
	cmd.Flags().Int64Var(&plantID, "plant", 0, "Only list reminders for this plant id")
	return cmd
}

func rescheduleCmd(r remote) *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule",
		Short: "Rebuild the reminders of every stored plant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(func(ctx context.Context, c *web.Client) error {
				n, err := c.Reschedule(ctx)
				if err != nil {
					return err
				}
				slog.Info("Reminders rebuilt", "plants", n)
				return nil
			})
		},
	}
}

func cleanupCmd(r remote) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Cancel every reminder and reset the notification state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(func(ctx context.Context, c *web.Client) error {
				if err := c.Cleanup(ctx); err != nil {
					return err
				}
				slog.Info("Notification state cleared")
				return nil
			})
		},
	}
}
