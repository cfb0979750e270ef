package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantora/trademetrics/internal/logger"
	"github.com/quantora/trademetrics/internal/server"
	"github.com/quantora/trademetrics/internal/store"
	"github.com/quantora/trademetrics/internal/version"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// serveAction loads the config, opens the trade store and serves until
// interrupted.
func serveAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("print-schema") {
		schema, err := server.ConfigSchema()
		if err != nil {
			return err
		}

		fmt.Println(schema)

		return nil
	}

	config, err := server.LoadConfig(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLoggerWithLevel(config.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	st, err := store.Open(config.DataDir, log)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	srv := server.NewServer(config, log, st)
	if err := srv.Start(config.Address()); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info("Shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return srv.Stop(shutdownCtx)
}

func main() {
	cmd := &cli.Command{
		Name:  "trademetrics-server",
		Usage: "Serve trade uploads and performance metric reports",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file",
				Value:   "config.yaml",
			},
			&cli.BoolFlag{
				Name:  "print-schema",
				Usage: "Print the JSON schema of the config file and exit",
			},
		},
		Version: version.GetVersion(),
		Action: serveAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
