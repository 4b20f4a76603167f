package main

import (
	"context"
	"crypto/tls"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/ruteri/safesync/cache"
	"github.com/ruteri/safesync/cmd/flags"
	"github.com/ruteri/safesync/common"
	"github.com/ruteri/safesync/config"
	"github.com/ruteri/safesync/httpserver"
	"github.com/ruteri/safesync/interfaces"
	"github.com/ruteri/safesync/metrics"
	"github.com/ruteri/safesync/safesync"
	"github.com/ruteri/safesync/storage"
	"github.com/urfave/cli/v2"
)

var flagVaultClientCert = &cli.StringFlag{
	Name:  "vault-client-cert",
	Usage: "PEM client certificate for Vault TLS authentication",
}

var flagVaultClientKey = &cli.StringFlag{
	Name:  "vault-client-key",
	Usage: "PEM private key for Vault TLS authentication",
}

func main() {
	app := &cli.App{
		Name:  "safesync-server",
		Usage: "Serve password database sync over a storage provider",
		Flags: append(append([]cli.Flag{
			flags.ConfigFileFlag,
			flags.EnvFileFlag,
			flags.LogServiceFlagFn(common.PackageName),
			flagVaultClientCert,
			flagVaultClientKey,
		}, flags.LogFlags...), flags.ServerFlags...),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	envFile := cCtx.String(flags.EnvFileFlag.Name)
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("Failed to load env file", "file", envFile, "err", err)
		return err
	}

	cfg, err := config.Load(cCtx.String(flags.ConfigFileFlag.Name))
	if err != nil {
		logger.Error("Failed to load configuration", "err", err)
		return err
	}

	m := metrics.NewMetrics(common.PackageName)

	var factory interfaces.StorageProviderFactory = storage.NewStorageProviderFactory(logger)
	if certFile := cCtx.String(flagVaultClientCert.Name); certFile != "" {
		keyFile := cCtx.String(flagVaultClientKey.Name)
		factory = factory.WithTLSAuth(func() (tls.Certificate, error) {
			return tls.LoadX509KeyPair(certFile, keyFile)
		})
	}

	locations, err := cfg.StorageLocations()
	if err != nil {
		return err
	}
	var provider interfaces.StorageProvider
	if len(locations) == 1 {
		provider, err = factory.StorageProviderFor(locations[0])
	} else {
		provider, err = factory.CreateMultiProvider(locations)
	}
	if err != nil {
		logger.Error("Failed to create storage provider", "err", err)
		return err
	}
	logger.Info("Storage provider ready", "provider", provider.Name(), "kind", provider.Kind().String())

	var offline *cache.Cache
	if cfg.CachePath != "" {
		offline, err = cache.Open(cfg.CachePath)
		if err != nil {
			logger.Error("Failed to open offline cache", "err", err)
			return err
		}
		defer offline.Close()
	}

	syncer := safesync.NewSyncer(provider, offline, m, logger)
	scheduler := safesync.NewScheduler(syncer, cfg.SyncTimeout, logger)
	for _, safe := range cfg.Safes {
		err := scheduler.Add(safesync.Safe{
			Name:     safe.Name,
			Path:     safe.Path,
			Ref:      interfaces.FileReference(safe.Ref),
			Schedule: safe.Schedule,
		})
		if err != nil {
			logger.Error("Failed to schedule safe", "safe", safe.Name, "err", err)
			return err
		}
	}
	scheduler.Start()

	handler := httpserver.NewHandler(syncer, scheduler, m, logger)
	server := httpserver.New(flags.ConfigureServer(cCtx, logger, cfg.ListenAddr, cfg.MetricsAddr), handler, m)
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop", "safes", len(cfg.Safes))
	<-exit
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.SyncTimeout+5*time.Second)
	defer cancel()
	scheduler.Stop(ctx)

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}
