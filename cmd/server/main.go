package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cbodonnell/cuesync/pkg/clients"
	"github.com/cbodonnell/cuesync/pkg/config"
	"github.com/cbodonnell/cuesync/pkg/log"
	"github.com/cbodonnell/cuesync/pkg/network"
	"github.com/cbodonnell/cuesync/pkg/version"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	log.Info("Starting relay version %s", version.Get())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg config.RelayEnv
	if err := config.ParseEnv(&cfg); err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	tls, err := cfg.TLS()
	if err != nil {
		panic(fmt.Sprintf("Failed to load TLS configuration: %v", err))
	}

	clientEvents := clients.NewClientEventManager()
	clientEvents.RegisterHandler(func(event clients.ClientEvent) {
		log.Info("Peer %d %s table %s", event.ClientID, event.Type, event.TableID)
	})

	relay := network.NewRelay(network.NewRelayOptions{
		Port:          *port,
		TLS:           tls,
		ClientManager: clients.NewClientManager(),
		ClientEvents:  clientEvents,
	})
	relay.Start(ctx)
}
