package control

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nodewire-systems/rtmp-relay/internal/logger"
)

// RedisConfig configures the optional Redis pub/sub command bus,
// grounded in redis_cmds.go.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	Channel  string
	TLS      bool
}

// Killer is the subset of *registry.Registry the command bus needs to
// act on kill-session/close-stream commands.
type Killer interface {
	KillPublisher(app string) bool
	KillPublisherWithStreamPath(app, streamPath string) bool
}

// RunRedisSubscriber blocks, subscribing to cfg.Channel and dispatching
// each message to killer, until ctx is cancelled. Reconnects after a
// fixed back-off on any subscription error, matching the teacher's
// retry loop.
func RunRedisSubscriber(ctx context.Context, cfg RedisConfig, killer Killer) {
	opts := &redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{}
	}
	client := redis.NewClient(opts)
	defer client.Close()

	logger.Info("[REDIS] listening for commands on channel '" + cfg.Channel + "'")

	sub := client.Subscribe(ctx, cfg.Channel)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warning("could not receive from Redis: " + err.Error())
			time.Sleep(10 * time.Second)
			continue
		}
		dispatchRedisCommand(killer, msg.Payload)
	}
}

func dispatchRedisCommand(killer Killer, cmd string) {
	parts := strings.SplitN(cmd, ">", 2)
	if len(parts) != 2 {
		logger.Warning("invalid message from Redis: " + cmd)
		return
	}

	name := parts[0]
	args := strings.Split(parts[1], "|")

	switch name {
	case "kill-session":
		if len(args) < 1 {
			logger.Warning("invalid message from Redis: " + cmd)
			return
		}
		killer.KillPublisher(args[0])
	case "close-stream":
		if len(args) < 2 {
			logger.Warning("invalid message from Redis: " + cmd)
			return
		}
		killer.KillPublisherWithStreamPath(args[0], args[1])
	default:
		logger.Warning("unknown Redis command: " + cmd)
	}
}
