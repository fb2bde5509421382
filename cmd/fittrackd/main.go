package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	auth "github.com/goliatone/go-fitauth"
	"github.com/goliatone/go-fitauth/activitymap"
	"github.com/goliatone/go-fitauth/config"
	"github.com/goliatone/go-fitauth/httpapi"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := config.Flags("fittrackd")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load(config.WithFlags(flags))
	if err != nil {
		return err
	}

	logger := auth.NewLogger(cfg.Logging.Level)
	if cfg.Debug {
		fmt.Println("============")
		fmt.Println(config.Dump(cfg))
		fmt.Println("============")
	}

	ctx := context.Background()

	db, err := auth.OpenDB(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := auth.CreateSchema(ctx, db); err != nil {
		return err
	}

	repos := auth.NewRepositoryManager(db)
	repos.MustValidate()

	hasher, err := auth.NewPasswordHasher(cfg.GetHashCost(),
		auth.WithHasherConcurrency(cfg.Bcrypt.Concurrency),
		auth.WithHasherLogger(logger),
	)
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenServiceFromConfig(cfg, auth.WithTokenLogger(logger))
	if err != nil {
		return err
	}

	auther := auth.NewAuthenticator(repos, hasher, tokens, cfg).
		WithLogger(logger).
		WithActivitySink(activitymap.LoggerSink(logger))

	app := httpapi.NewApp(httpapi.Options{
		Auther:          auther,
		TokenVerifier:   tokens,
		Logger:          logger,
		ContextKey:      cfg.GetContextKey(),
		AuthScheme:      cfg.GetAuthScheme(),
		CORSOrigins:     cfg.CORS.Origins,
		RateLimitMax:    cfg.RateLimit.Max,
		RateLimitWindow: cfg.RateLimit.Window,
		AccessLog:       cfg.Server.AccessLog,
		Debug:           cfg.Debug,
	})

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.Server.Address)
		errc <- app.Listen(cfg.Server.Address)
	}()

	select {
	case err := <-errc:
		return err
	case sig := <-WaitExitSignal():
		logger.Info("shutting down", "signal", sig)
	}

	return app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout)
}

func WaitExitSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return ch
}
