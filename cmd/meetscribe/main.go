// Command meetscribe joins a LiveKit room as a transcription agent
// and republishes recognized speech to the meeting bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/skillsenselab/meetscribe/agent"
	"github.com/skillsenselab/meetscribe/config"
	"github.com/skillsenselab/meetscribe/events"
	"github.com/skillsenselab/meetscribe/kafka"
	"github.com/skillsenselab/meetscribe/logger"
	"github.com/skillsenselab/meetscribe/redis"
	"github.com/skillsenselab/meetscribe/relay"
	"github.com/skillsenselab/meetscribe/room"
	"github.com/skillsenselab/meetscribe/room/livekit"
	"github.com/skillsenselab/meetscribe/stt"
	"github.com/skillsenselab/meetscribe/stt/gladia"
	"github.com/skillsenselab/meetscribe/version"
)

func main() {
	var (
		configFile  = flag.String("config", "", "path to config.yml")
		envFile     = flag.String("env", "", "path to .env file")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().String())
		return
	}

	if err := run(*configFile, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "meetscribe: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, envFile string) error {
	var opts []config.LoaderOption
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	if envFile != "" {
		opts = append(opts, config.WithEnvFile(envFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}

	log := logger.New(&cfg.Logger, cfg.Name)
	logger.SetGlobalLogger(log)
	log.Info("starting meetscribe", map[string]interface{}{
		"version": version.Get().String(),
	})
	log.Debug("effective configuration", cfg.Redacted())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Bus sinks. Redis is the primary; Kafka mirrors when enabled.
	var sinks []relay.Sink
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.New(cfg.Redis, log)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx); err != nil {
			log.WithError(err).Warn("redis unreachable, transcripts will be dropped until it recovers")
		}
		cancel()
	}
	sinks = append(sinks, redis.NewPublisher(redisClient, cfg.Redis.Channel, log))

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka, log)
		if err != nil {
			return err
		}
		defer producer.Close()
		sinks = append(sinks, &kafkaSink{producer: producer})
	}

	// STT providers.
	if cfg.Gladia.APIKey != "" {
		opener, err := gladia.New(cfg.Gladia, log)
		if err != nil {
			return err
		}
		stt.Register(gladia.ProviderName, opener)
	}
	if _, err := stt.Lookup(cfg.Transcribe.Provider); err != nil {
		return fmt.Errorf("default provider unavailable: %w", err)
	}

	emitter := events.NewEmitter(log)
	defer emitter.Close()

	relay.New(relay.Config{
		MeetingID:           cfg.LiveKit.Room,
		MinUtteranceSeconds: cfg.Transcribe.MinUtterance(),
		Translations:        cfg.Transcribe.TranslationMap(),
	}, log, sinks...).Bind(emitter)

	// The manager needs the roster before the room exists; bind it
	// lazily and fill it in right after connecting.
	roster := &lazyRoster{}
	manager := agent.NewManager(roster, emitter, agent.Config{
		InterimResults: cfg.Transcribe.InterimEnabled(),
	}, log)

	identity := cfg.LiveKit.Identity
	if identity == "" {
		identity = "meetscribe-" + uuid.NewString()[:8]
	}

	lkroom, err := livekit.Connect(ctx, livekit.ConnectInfo{
		URL:             cfg.LiveKit.URL,
		APIKey:          cfg.LiveKit.APIKey,
		APISecret:       cfg.LiveKit.APISecret,
		RoomName:        cfg.LiveKit.Room,
		Identity:        identity,
		DefaultProvider: cfg.Transcribe.Provider,
	}, manager, log)
	if err != nil {
		return err
	}
	roster.set(lkroom.Roster())

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), agent.ShutdownGrace)
	defer cancel()
	manager.ShutdownAll(shutdownCtx)
	lkroom.Disconnect()
	return nil
}

// kafkaSink mirrors bus messages onto a Kafka topic, keyed by
// participant so one speaker's transcripts stay ordered.
type kafkaSink struct {
	producer *kafka.Producer
}

func (s *kafkaSink) Publish(ctx context.Context, u redis.TranscriptUpdate) error {
	return s.producer.SendJSON(ctx, u.UserID, u)
}

// lazyRoster defers roster resolution until the room connection
// exists. Lookups before that report the participant as absent.
type lazyRoster struct {
	mu    sync.Mutex
	inner room.Roster
}

func (l *lazyRoster) set(r room.Roster) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inner = r
}

func (l *lazyRoster) Participant(identity string) (room.Participant, bool) {
	l.mu.Lock()
	inner := l.inner
	l.mu.Unlock()
	if inner == nil {
		return nil, false
	}
	return inner.Participant(identity)
}
