// Command rtmp-server runs the RTMP ingest-and-relay server: a plain
// TCP listener, an optional RTMPS (TLS) listener, an optional
// administrative control plane, and a periodic ping sweep over live
// sessions. Grounded in the teacher's main.go/RTMPServer wiring.
package main

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nodewire-systems/rtmp-relay/internal/config"
	"github.com/nodewire-systems/rtmp-relay/internal/control"
	"github.com/nodewire-systems/rtmp-relay/internal/logger"
	"github.com/nodewire-systems/rtmp-relay/internal/netacl"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmp/registry"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmp/server"
	"github.com/nodewire-systems/rtmp-relay/internal/rtmp/session"
	"github.com/nodewire-systems/rtmp-relay/internal/tlscert"
)

func main() {
	config.Load()
	cfg := config.FromEnv()

	logger.Info("RTMP relay server starting")

	reg := registry.New()

	playWhitelist := netacl.Parse(os.Getenv("RTMP_PLAY_WHITELIST"))
	// With no play whitelist configured CanPlay stays nil and plays are
	// not address-restricted (an empty netacl.List allows nothing).
	var canPlay func(ip string) bool
	if os.Getenv("RTMP_PLAY_WHITELIST") != "" {
		canPlay = playWhitelist.Allowed
	}
	concurrencyExempt := netacl.Parse(os.Getenv("CONCURRENT_LIMIT_WHITELIST"))

	var controlConn *control.Connection
	if cfg.Control.WebsocketURL != "" {
		controlConn = control.Dial(cfg.Control.WebsocketURL, cfg.Control.AuthSecret, reg)
		defer controlConn.Close()
	}
	callback := control.NewCallback(cfg.Control.CallbackURL, cfg.Control.CallbackToken)

	if cfg.Redis.Use {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go control.RunRedisSubscriber(ctx, control.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			Channel:  cfg.Redis.Channel,
			TLS:      cfg.Redis.TLS,
		}, reg)
	}

	sessionCfg := session.Config{
		OutChunkSize:   uint32(cfg.Server.MaxChunkSize),
		StreamIDMaxLen: cfg.Server.StreamIDMaxLength,
		GOPCacheLimit:  256 * 1024 * 1024,
		CanPlay:        canPlay,
		OnPublishStart: func(sessionID uint64, ip, app, key string) (string, bool) {
			if controlConn != nil {
				if streamID, ok := controlConn.NotifyPublishStart(app, key, ip); ok {
					return streamID, true
				}
			}
			if streamID, ok := callback.Start(sessionID, ip, app, key); ok {
				return streamID, true
			}
			return "", false
		},
		OnPublishStop: func(sessionID uint64, ip, app, key, externalStreamID string) {
			if controlConn != nil {
				controlConn.NotifyPublishEnd(app, externalStreamID)
			}
			callback.Stop(sessionID, ip, app, key, externalStreamID)
		},
	}

	srv := server.New(reg, server.Config{
		SessionConfig:     sessionCfg,
		MaxIPConnections:  cfg.Server.MaxIPConcurrentConnections,
		IPExempt:          concurrencyExempt,
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error(err)
		os.Exit(1)
	}
	logger.Info("listening on " + addr)
	go srv.Serve(listener)

	if cfg.Server.SSLEnabled && cfg.Server.SSLCertPath != "" && cfg.Server.SSLKeyPath != "" {
		loader, err := tlscert.Load(cfg.Server.SSLCertPath, cfg.Server.SSLKeyPath, time.Duration(cfg.Server.SSLCertReloadSecs)*time.Second)
		if err != nil {
			logger.Error(err)
		} else {
			defer loader.Close()
			sslAddr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.SSLPort))
			tlsListener, err := net.Listen("tcp", sslAddr)
			if err != nil {
				logger.Error(err)
			} else {
				logger.Info("listening (TLS) on " + sslAddr)
				tlsListener = tlsWrap(tlsListener, loader)
				go srv.Serve(tlsListener)
			}
		}
	}

	go srv.PingSweep()

	waitForShutdown()
	srv.Close()
	logger.Info("shutting down")
}

func tlsWrap(listener net.Listener, loader *tlscert.Loader) net.Listener {
	return tls.NewListener(listener, loader.TLSConfig())
}

func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
