package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbodonnell/cuesync/pkg/api"
	"github.com/cbodonnell/cuesync/pkg/api/handlers"
	"github.com/cbodonnell/cuesync/pkg/config"
	"github.com/cbodonnell/cuesync/pkg/game"
	"github.com/cbodonnell/cuesync/pkg/log"
	"github.com/cbodonnell/cuesync/pkg/network"
	"github.com/cbodonnell/cuesync/pkg/queue"
	"github.com/cbodonnell/cuesync/pkg/repositories"
	"github.com/cbodonnell/cuesync/pkg/state"
	"github.com/cbodonnell/cuesync/pkg/table"
	"github.com/cbodonnell/cuesync/pkg/version"
	"github.com/cbodonnell/cuesync/pkg/workers"
)

// A headless table peer: it joins a table through the relay, runs the
// replicated table loop and serves the snapshot API.
func main() {
	apiPort := flag.Int("api-port", 9090, "API port to listen on, 0 disables the API")
	tickInterval := flag.Duration("tick", table.DefaultTickInterval, "Table loop interval")
	restore := flag.Bool("restore", false, "Restore the latest saved snapshot on start")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	log.Info("Starting peer version %s", version.Get())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg config.PeerEnv
	if err := config.ParseEnv(&cfg); err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	tls, err := cfg.TLS()
	if err != nil {
		panic(fmt.Sprintf("Failed to load TLS configuration: %v", err))
	}

	inbox := queue.NewInMemoryQueue(queue.DefaultQueueSize)
	transport := network.NewWSClient(network.NewWSClientOptions{
		URL:   cfg.TableURL(),
		Inbox: inbox,
	})
	if err := transport.Connect(ctx); err != nil {
		panic(fmt.Sprintf("Failed to connect to relay: %v", err))
	}
	defer transport.Close()

	stateManager := state.NewInMemoryStateManager(cfg.TableID)
	tbl := table.New(table.NewTableOptions{
		TableID:      cfg.TableID,
		Transport:    transport,
		Inbox:        inbox,
		Simulator:    game.NewHeadlessSimulator(game.NewHeadlessSimulatorOptions{}),
		StateManager: stateManager,
		TickInterval: *tickInterval,
	})
	go func() {
		if err := tbl.Start(ctx); err != nil {
			log.Error("Table loop exited: %v", err)
		}
	}()

	repository, err := repositories.NewRepository(ctx, repositories.NewRepositoryOptions{
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to open repository: %v", err))
	}

	entry := &handlers.TableEntry{Table: tbl, StateManager: stateManager}
	if repository != nil {
		defer repository.Close(context.Background())

		if *restore {
			if _, err := workers.RestoreLatestSnapshot(ctx, repository, tbl); err != nil {
				log.Error("Failed to restore table: %v", err)
			}
		}

		saveRequests := make(chan workers.SaveSnapshotRequest)
		saveWorker := workers.NewSaveSnapshotWorker(workers.NewSaveSnapshotWorkerOptions{
			Repository:   repository,
			StateManager: stateManager,
			Requests:     saveRequests,
			Interval:     cfg.SaveInterval,
		})
		go saveWorker.Start(ctx)
		entry.SaveRequests = saveRequests
	} else {
		log.Warn("No repository configured, snapshots will not be saved")
	}

	if *apiPort > 0 {
		var apiTLS *api.TLSConfig
		if tls != nil {
			apiTLS = &api.TLSConfig{CertFile: tls.CertFile, KeyFile: tls.KeyFile}
		}
		apiServer := api.NewAPIServer(api.NewAPIServerOptions{
			Port:       *apiPort,
			TLS:        apiTLS,
			Tables:     handlers.Tables{cfg.TableID: entry},
			Repository: repository,
		})
		go apiServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			apiServer.Stop(shutdownCtx)
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case <-transport.Done():
		log.Error("Lost connection to relay")
	}
}
