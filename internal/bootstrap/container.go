package bootstrap

import (
	"context"
	"fmt"

	"agro-intake-be/internal/config"
	"agro-intake-be/internal/controller"
	"agro-intake-be/internal/pkg/logger"
	"agro-intake-be/internal/service"
	"agro-intake-be/internal/websocket"
	"agro-intake-be/pkg/chat"
	"agro-intake-be/pkg/events"
	"agro-intake-be/pkg/extraction"
	"agro-intake-be/pkg/extraction/cache"
	"agro-intake-be/pkg/llm"
	"agro-intake-be/pkg/llm/factory"
	pktNats "agro-intake-be/pkg/nats"
	"agro-intake-be/pkg/questionnaire"
	"agro-intake-be/pkg/transcription"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	// Controllers
	IntakeController controller.IIntakeController

	// Background Services (Exposed for main.go to run)
	EventConsumer service.IEventConsumerService
	WebSocketHub  *websocket.Hub

	Logger logger.ILogger

	closers []func()
}

// Close releases connections opened by NewContainer, last opened first.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func NewContainer(cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	eventLogger := logger.NewIsolatedLogger(cfg.App.EventLogFilePath)
	c := &Container{Logger: sysLogger}

	// 2. Questionnaire
	def, err := loadQuestionnaire(cfg.Questionnaire.Path)
	if err != nil {
		return nil, err
	}
	index := questionnaire.NewIndex(def.Sections, def.Questions, sysLogger)
	sysLogger.Info("Bootstrap", "Questionnaire loaded", map[string]interface{}{
		"sections":  len(def.Sections),
		"questions": len(def.Questions),
	})

	// 3. Infrastructure
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to parse Redis URL, using direct Addr", map[string]interface{}{"error": err.Error()})
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
		}
		c.closers = append(c.closers, func() { rdb.Close() })
	}

	var mirror events.Sink
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, eventLogger)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to NATS Publisher, events stay in-process", map[string]interface{}{"error": err.Error()})
		} else {
			mirror = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}
	}

	// 4. Event Bus
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		},
		watermill.NewStdLogger(false, false),
	)
	c.closers = append(c.closers, func() { pubSub.Close() })

	wsHub := websocket.NewHub(rdb, eventLogger)
	c.WebSocketHub = wsHub

	eventPublisher := service.NewEventPublisherService(cfg.App.EventTopic, pubSub, mirror, eventLogger)
	c.EventConsumer = service.NewEventConsumerService(pubSub, cfg.App.EventTopic, wsHub, eventLogger)

	// 5. Extraction
	var store cache.KeyValueStore
	if cfg.Cache.Backend == "redis" && rdb != nil {
		store = cache.NewRedisStore(rdb, cfg.Cache.TTL)
	} else {
		store = cache.NewMemoryStore(0)
	}
	extractionCache := cache.New(store, sysLogger)

	var provider llm.LLMProvider
	if cfg.Extraction.Backend == "llm" || cfg.Ai.PhraseQuestions {
		provider, err = factory.NewLLMProvider(factory.Config{
			Provider: cfg.Ai.LLMProvider,
			Model:    cfg.Ai.LLMModel,
			BaseURL:  cfg.Ai.BaseURL,
			APIKey:   cfg.Ai.APIKey,
			Timeout:  cfg.Ai.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize LLM provider: %w", err)
		}
		sysLogger.Info("Bootstrap", "Using LLM provider", map[string]interface{}{
			"provider": cfg.Ai.LLMProvider,
			"model":    cfg.Ai.LLMModel,
		})
	}

	var extractor extraction.Extractor
	switch cfg.Extraction.Backend {
	case "http":
		extractor = extraction.NewHTTPExtractor(cfg.Extraction.ServiceURL, cfg.Extraction.Timeout)
	case "llm":
		extractor = extraction.NewLLMExtractor(provider, cfg.Extraction.MaxTokens)
	default:
		return nil, fmt.Errorf("unsupported extraction backend: %s", cfg.Extraction.Backend)
	}

	orchestrator := extraction.NewOrchestrator(index, extractor, extractionCache, sysLogger,
		extraction.WithBatchSize(cfg.Extraction.BatchSize),
		extraction.WithProgressInterval(cfg.Extraction.ProgressInterval),
	)

	// 6. Services
	dispatcherOpts := []chat.Option{chat.WithDelays(chat.Delays{
		Typing:     cfg.Chat.TypingDelay,
		Suggestion: cfg.Chat.SuggestionDelay,
		FollowUp:   cfg.Chat.FollowUpDelay,
	})}
	if cfg.Ai.PhraseQuestions {
		dispatcherOpts = append(dispatcherOpts, chat.WithPhraser(chat.NewLLMPhraser(provider)))
	}

	transcriber := transcription.NewHTTPTranscriber(cfg.Transcription.URL, cfg.Transcription.Timeout, sysLogger)

	intakeService := service.NewIntakeService(
		index,
		orchestrator,
		transcriber,
		eventPublisher,
		cfg.App.SessionTTL,
		wsHub,
		sysLogger,
		service.WithDispatcherOptions(dispatcherOpts...),
	)

	// 7. Controllers
	c.IntakeController = controller.NewIntakeController(intakeService, wsHub)

	return c, nil
}

func loadQuestionnaire(path string) (*questionnaire.Definition, error) {
	if path == "" {
		return questionnaire.Default()
	}
	return questionnaire.LoadFile(path)
}
