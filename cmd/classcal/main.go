package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"classcal/internal/auxstore"
	"classcal/internal/calendar"
	"classcal/internal/config"
	"classcal/internal/jobs"
	appLog "classcal/internal/log"
	"classcal/internal/model"
	"classcal/internal/router"
	"classcal/internal/schedule"
	"classcal/internal/suggest"
	"classcal/internal/timenorm"
	"classcal/internal/web"
)

type flagConfig struct {
	configPath    string
	listen        string
	reconcileOnce bool
}

func main() {
	appLog.Info("classcal starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.Configure(appLog.Config{Level: appLog.ParseLevel(conf.Log.Level), Pretty: conf.Log.Pretty})

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone.Default,
		"calendar_backend", conf.Calendar.Backend,
		"calendar_even", conf.Calendars.Even,
		"calendar_odd", conf.Calendars.Odd,
		"aux_backend", conf.Aux.Backend,
		"suggest_enabled", conf.Suggest.APIKey != "",
		"reconcile_cron", conf.Reconcile.Cron,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	manager, aux, err := buildManager(ctx, conf)
	if err != nil {
		appLog.Error("failed to initialize", err)
		os.Exit(1)
	}

	reconciler := jobs.NewReconciler(aux, manager)
	if flags.reconcileOnce {
		if _, err := reconciler.Run(ctx); err != nil {
			appLog.Error("reconcile failed", err)
			os.Exit(1)
		}
		return
	}

	c, err := jobs.StartReconcile(ctx, conf.Reconcile.Cron, reconciler)
	if err != nil {
		appLog.Error("failed to schedule reconcile job", err)
		os.Exit(1)
	}
	if c != nil {
		defer c.Stop()
	}

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.NewServer(conf, manager).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}
	appLog.Info("classcal exiting")
}

// buildManager wires the configured backends into a session manager.
func buildManager(ctx context.Context, conf *config.Config) (*schedule.Manager, auxstore.Store, error) {
	norm, err := timenorm.New(conf.Timezone.Default, conf.Timezone.Allowed, conf.Timezone.Labels)
	if err != nil {
		return nil, nil, err
	}

	var events calendar.Events
	switch conf.Calendar.Backend {
	case "google":
		g, err := calendar.NewGoogle(ctx, calendar.GoogleOptions{
			CredentialsFile: conf.Calendar.CredentialsFile,
			Endpoint:        conf.Calendar.Endpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		events = g
	default:
		appLog.Warn("using in-memory calendar backend; sessions are lost on restart")
		events = calendar.NewMemory()
	}

	var aux auxstore.Store
	switch conf.Aux.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: conf.Aux.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, err
		}
		aux = auxstore.NewRedis(client, conf.Aux.RedisKey)
	default:
		aux = auxstore.NewFile(conf.Aux.Path)
	}

	var client suggest.Client
	if conf.Suggest.APIKey != "" {
		client = suggest.NewOpenAI(suggest.Options{
			APIKey:  conf.Suggest.APIKey,
			BaseURL: conf.Suggest.BaseURL,
			Model:   conf.Suggest.Model,
			Timeout: conf.Suggest.Timeout,
		})
	}

	def := model.PartitionOdd
	if conf.Calendars.Default == config.PartitionEven {
		def = model.PartitionEven
	}

	manager := schedule.New(schedule.Options{
		Events:                 events,
		Aux:                    aux,
		Router:                 router.New(conf.Calendars.Even, conf.Calendars.Odd, def),
		Normalizer:             norm,
		Suggest:                client,
		ListHorizon:            time.Duration(conf.Calendar.ListHorizonDays) * 24 * time.Hour,
		FirstInstanceTolerance: conf.FirstInstanceTolerance,
	})
	return manager, aux, nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/classcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.reconcileOnce, "reconcile-once", false, "Remove orphaned auxiliary records once and exit")

	flag.Parse()

	return cfg
}
