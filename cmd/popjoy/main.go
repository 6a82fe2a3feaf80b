package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"popjoy/internal/clock"
	"popjoy/internal/config"
	"popjoy/internal/http/handlers"
	applog "popjoy/internal/log"
	"popjoy/internal/repos"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run owns every resource it opens; returning closes them in reverse order.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("[config] %w", err)
	}

	// Optional file logging
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("[warn] could not open log file %s: %v", cfg.LogFile, err)
		} else {
			defer f.Close()
			log.SetOutput(io.MultiWriter(os.Stdout, f))
			defer log.SetOutput(os.Stderr)
		}
	}

	db, err := repos.OpenDB(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("[db] %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("[db] close: %v", err)
		}
	}()

	clk := clock.NewSystem()
	if cfg.SeedDemo {
		if err := repos.SeedDemo(context.Background(), db, clk.Now()); err != nil {
			return fmt.Errorf("[seed] %w", err)
		}
	}

	app := handlers.NewApp(cfg, handlers.NewDeps(db, cfg, clk))

	errc := make(chan error, 1)
	go func() {
		applog.Info(nil, "server.start", map[string]any{"port": cfg.Port, "driver": cfg.DBDriver})
		errc <- app.Listen(":" + cfg.Port)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errc:
		applog.Error(nil, "server.listen", err, nil)
		return err
	case sig := <-stop:
		applog.Info(nil, "server.shutdown", map[string]any{"signal": sig.String()})
	}
	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		applog.Error(nil, "server.shutdown", err, nil)
	}
	return nil
}
