// metahubd: metadata RPC server (TCP, TLS, or QUIC).
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"dev.c0redev.metahub/internal/config"
	"dev.c0redev.metahub/internal/server"
	"dev.c0redev.metahub/internal/server/auth"
	"dev.c0redev.metahub/internal/store"
	"dev.c0redev.metahub/internal/transport"
)

func main() {
	var (
		configPath = flag.String("config", "metahub.toml", "path to TOML config")
		addUser    = flag.String("adduser", "", "create a user with this login, print its license key, exit")
		debug      = flag.Bool("debug", false, "debug logging")
		trace      = flag.Bool("trace", false, "trace logging (includes protocol diagnostics)")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	if *trace {
		level = zerolog.TraceLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	log.Logger = logger

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	db, err := store.Open(cfg.Database.ConnectionInfo)
	if err != nil {
		logger.Fatal().Err(err).Msg("store")
	}
	defer db.Close()

	if *addUser != "" {
		secret := store.GenerateKey()
		hash, err := auth.HashKey(secret)
		if err != nil {
			logger.Fatal().Err(err).Msg("hash key")
		}
		if _, err := db.CreateUser(*addUser, hash); err != nil {
			logger.Fatal().Err(err).Msg("create user")
		}
		fmt.Printf("license key: %s:%s\n", *addUser, secret)
		return
	}

	var tlsConf *tls.Config
	if cfg.Server.UseTLS || cfg.Server.UseQUIC {
		tlsConf, err = transport.ServerTLSConfig(cfg.Server.TLS.ServerCert, cfg.Server.TLS.ServerKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("tls identity")
		}
	}

	var l net.Listener
	if cfg.Server.UseQUIC {
		l, err = transport.ListenQUIC(cfg.Server.BindAddr, tlsConf)
	} else {
		l, err = transport.Listen(cfg.Server.BindAddr, tlsConf)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("listen")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("addr", cfg.Server.BindAddr).
		Bool("tls", cfg.Server.UseTLS).
		Bool("quic", cfg.Server.UseQUIC).
		Msg("listening")

	srv := server.New(db, logger)
	if err := srv.Serve(ctx, l); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("serve")
	}
	logger.Info().Msg("shut down")
}
