package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"guardshift/internal/config"
	"guardshift/internal/dispatch"
	"guardshift/internal/feed"
	handlers "guardshift/internal/handlers/shared"
	"guardshift/internal/repositories/interfaces"
	"guardshift/internal/repositories/memory"
	"guardshift/internal/repositories/mongodb"
	"guardshift/internal/repositories/postgres"
	"guardshift/internal/services"
	"guardshift/internal/session"
	"guardshift/internal/tracking"
	"guardshift/pkg/cache"
	"guardshift/pkg/database"
	"guardshift/pkg/logger"
	"guardshift/pkg/maps"
	"guardshift/pkg/push"
	"guardshift/pkg/sms"
	"guardshift/pkg/websocket"
	"guardshift/routes"
)

// App holds the wired service.
type App struct {
	cfg      *config.Config
	logger   *logger.Logger
	storage  *storage
	redis    *cache.RedisCache
	sessions *session.Manager
	handlers *routes.Handlers

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.NewLogger(&logger.Config{
		Level:   logger.LogLevel(cfg.App.LogLevel),
		Format:  cfg.App.LogFormat,
		Output:  "stdout",
		Caller:  cfg.App.Debug,
		AppName: cfg.App.Name,
		Version: cfg.App.Version,
	})
}

func newApp(parent context.Context, cfg *config.Config) (*App, error) {
	log, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	st, err := openStorage(cfg, log)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	app := &App{cfg: cfg, logger: log, storage: st, cancel: cancel}

	if cfg.Redis.Enabled {
		app.redis, err = cache.NewRedisCache(&cache.RedisConfig{
			URL:          cfg.Redis.URL,
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			app.Close()
			return nil, err
		}
	}

	source, publisher, err := app.feedSource()
	if err != nil {
		app.Close()
		return nil, err
	}

	pusher, err := newPusher(ctx, cfg.Push)
	if err != nil {
		app.Close()
		return nil, err
	}
	smsProvider, err := newSMSProvider(ctx, cfg.SMS)
	if err != nil {
		app.Close()
		return nil, err
	}

	var geocoder maps.Geocoder
	if cfg.Maps.Enabled {
		geocoder, err = maps.NewGoogleMapsProvider(cfg.Maps.GoogleMaps.APIKey)
		if err != nil {
			app.Close()
			return nil, err
		}
	}

	var (
		alertCache services.AlertCache
		positions  tracking.PositionPublisher
		posReader  handlers.PositionReader
	)
	if app.redis != nil {
		alertCache = app.redis
		posReader = app.redis
		if cfg.Tracking.PublishToRedis {
			positions = app.redis
		}
	}

	// The alert service asks the session manager for presence, and the
	// manager is built after it.
	var sessions *session.Manager
	presence := services.PresenceFunc(func(personnelID string) bool {
		return sessions != nil && sessions.IsOnline(personnelID)
	})

	alerts := services.NewAlertService(presence, pusher, smsProvider, alertCache, cfg.Alerts, log)
	trackingSvc := services.NewTrackingService(st.store, tracking.FilterOptions{
		MinInterval: cfg.Tracking.MinInterval,
		MinDistance: cfg.Tracking.MinDistance,
	}, positions, log)
	claims := services.NewClaimService(st.store, cfg.Dispatch.LostRacePolicy, log)
	offers := services.NewOfferService(st.store, publisher, alerts, geocoder, log)

	sessions = session.NewManager(ctx, session.Deps{
		JWTSecret: cfg.Security.JWTSecret,
		Claims:    claims,
		Offers:    st.store.Offers,
		Source:    source,
		Tracking:  trackingSvc,
		Alerts:    alerts,
		Dispatch: dispatch.Options{
			TickInterval:     cfg.Dispatch.TickInterval,
			AcceptedHold:     cfg.Dispatch.AcceptedHold,
			WriteTimeout:     cfg.Dispatch.WriteTimeout,
			FirstShowPattern: cfg.Dispatch.FirstShowPattern,
			QueuedPattern:    cfg.Dispatch.QueuedPattern,
			SeenRetention:    cfg.Dispatch.SeenRetention,
		},
		Feed: feed.Options{
			Backoff: feed.Backoff{
				Initial: cfg.Feed.InitialBackoff,
				Max:     cfg.Feed.MaxBackoff,
				Factor:  cfg.Feed.BackoffFactor,
				Jitter:  cfg.Feed.BackoffJitter,
			},
			HealthyAfter: cfg.Feed.HealthyAfter,
			AlertPattern: cfg.Feed.AlertPattern,
			Backfill:     cfg.Feed.Backfill,
		},
		Clock:  dispatch.SystemClock{},
		Logger: log,
	})
	app.sessions = sessions

	hub := websocket.NewHub(log)
	wsOpts := websocket.DefaultOptions()
	wsOpts.ReadBufferSize = cfg.WebSocket.ReadBufferSize
	wsOpts.WriteBufferSize = cfg.WebSocket.WriteBufferSize
	wsOpts.PingInterval = cfg.WebSocket.PingInterval
	wsOpts.PongTimeout = cfg.WebSocket.PongTimeout
	wsOpts.WriteTimeout = cfg.WebSocket.WriteTimeout
	wsOpts.MaxMessageSize = cfg.WebSocket.MaxMessageSize
	wsOpts.AllowedOrigins = cfg.WebSocket.AllowedOrigins

	app.wg.Add(2)
	go func() {
		defer app.wg.Done()
		hub.Run(ctx)
	}()
	go func() {
		defer app.wg.Done()
		offers.RunExpirySweep(ctx, cfg.Dispatch.ExpirySweep)
	}()

	checks := st.pingers()
	if app.redis != nil {
		checks["redis"] = app.redis
	}

	app.handlers = &routes.Handlers{
		Offers:    handlers.NewOfferHandler(sessions, log),
		Tracking:  handlers.NewTrackingHandler(trackingSvc, sessions, log),
		Admin:     handlers.NewAdminHandler(offers, trackingSvc, sessions, posReader, log),
		Health:    handlers.NewHealthHandler(cfg.App.Version, checks, sessions.Count),
		WebSocket: websocket.NewHandler(hub, sessions, wsOpts, log),
	}

	log.WithFields(map[string]interface{}{
		"store":        cfg.Store.Driver,
		"feed_source":  cfg.Feed.Source,
		"redis":        app.redis != nil,
		"push":         pusher != nil,
		"sms":          smsProvider != nil,
		"geocoding":    geocoder != nil,
		"lost_race":    cfg.Dispatch.LostRacePolicy,
		"expiry_sweep": cfg.Dispatch.ExpirySweep.String(),
	}).Info("Service wired")

	return app, nil
}

// feedSource returns the authoritative offer feed and the publisher the
// offer service announces new offers on.
func (a *App) feedSource() (feed.Source, services.OfferPublisher, error) {
	var publisher services.OfferPublisher
	if a.redis != nil {
		publisher = a.redis
	}

	switch a.cfg.Feed.Source {
	case config.FeedSourceMongo:
		if a.storage.mongo == nil {
			return nil, nil, fmt.Errorf("feed source %q needs the mongodb store", a.cfg.Feed.Source)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.storage.mongo.RequireChangeStreams(ctx); err != nil {
			return nil, nil, err
		}
		return feed.NewMongoSource(a.storage.mongo.Collection(mongodb.OffersCollection)), publisher, nil
	case config.FeedSourcePostgres:
		if a.storage.postgres == nil {
			return nil, nil, fmt.Errorf("feed source %q needs the postgres store", a.cfg.Feed.Source)
		}
		return feed.NewPostgresSource(a.storage.postgres.Pool, a.logger), publisher, nil
	case config.FeedSourceRedis:
		if a.redis == nil {
			return nil, nil, fmt.Errorf("feed source %q needs redis", a.cfg.Feed.Source)
		}
		return feed.NewRedisSource(a.redis, a.logger), publisher, nil
	case config.FeedSourceMemory:
		src := feed.NewMemorySource()
		return src, src, nil
	default:
		return nil, nil, fmt.Errorf("unknown feed source %q", a.cfg.Feed.Source)
	}
}

func newPusher(ctx context.Context, cfg *config.PushConfig) (services.Pusher, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	router := &push.Router{Channel: cfg.OfferChannel, Sound: cfg.OfferSound}
	fcmReady, apnsReady := cfg.Providers()
	if fcmReady {
		fcm, err := push.NewFCMProvider(ctx, cfg.FCM.ProjectID, cfg.FCM.Credentials)
		if err != nil {
			return nil, err
		}
		router.FCM = fcm
	}
	if apnsReady {
		apns, err := push.NewAPNSProvider(cfg.APNS.KeyFile, cfg.APNS.KeyID, cfg.APNS.TeamID, cfg.APNS.BundleID, cfg.APNS.Production)
		if err != nil {
			return nil, err
		}
		router.APNS = apns
	}
	return router, nil
}

func newSMSProvider(ctx context.Context, cfg *config.SMSConfig) (sms.Provider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Provider {
	case config.SMSProviderTwilio:
		return sms.NewTwilioProvider(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber), nil
	case config.SMSProviderAWSSNS:
		provider, err := sms.NewAWSSNSProvider(ctx, cfg.AWS.Region, cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, cfg.AWS.SenderID)
		if err != nil {
			return nil, err
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unknown sms provider %q", cfg.Provider)
	}
}

// Close stops background work, then every session, then the backends.
func (a *App) Close() {
	a.cancel()
	a.wg.Wait()
	if a.sessions != nil {
		a.sessions.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close redis")
		}
	}
	a.storage.Close()
}

type storage struct {
	store    *interfaces.Store
	mongo    *database.MongoDB
	postgres *database.Postgres
	driver   string
	logger   *logger.Logger
}

func openStorage(cfg *config.Config, log *logger.Logger) (*storage, error) {
	st := &storage{driver: cfg.Store.Driver, logger: log}

	switch cfg.Store.Driver {
	case config.StoreDriverMongo:
		db, err := database.NewMongoDB(&database.DatabaseConfig{
			URI:            cfg.Database.URI,
			Database:       cfg.Database.Database,
			AppName:        cfg.App.Name,
			MaxPoolSize:    cfg.Database.MaxPoolSize,
			MinPoolSize:    cfg.Database.MinPoolSize,
			ConnectTimeout: cfg.Database.ConnectTimeout,
			SocketTimeout:  cfg.Database.SocketTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		st.mongo = db
		st.store = mongodb.NewStore(db.Database)
	case config.StoreDriverPostgres:
		pg, err := database.NewPostgres(&database.PostgresConfig{
			URL:             cfg.Postgres.URL,
			MaxConns:        int32(cfg.Postgres.MaxConns),
			MinConns:        int32(cfg.Postgres.MinConns),
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			ConnectTimeout:  cfg.Postgres.ConnectTimeout,
		})
		if err != nil {
			return nil, err
		}
		st.postgres = pg
		st.store = postgres.NewStore(pg.Pool)
	case config.StoreDriverMemory:
		log.Warn("Using the in-memory store; data is lost on restart")
		st.store = memory.NewStore(memory.NewDB())
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	return st, nil
}

func (s *storage) Migrate(ctx context.Context) error {
	switch {
	case s.mongo != nil:
		return database.NewMigrator(s.mongo.Database, s.logger).Up(ctx)
	case s.postgres != nil:
		return database.MigratePostgres(ctx, s.postgres.Pool, s.logger)
	default:
		s.logger.Info("Nothing to migrate for the in-memory store")
		return nil
	}
}

func (s *storage) pingers() map[string]handlers.Pinger {
	checks := make(map[string]handlers.Pinger)
	if s.mongo != nil {
		checks["mongodb"] = s.mongo
	}
	if s.postgres != nil {
		checks["postgres"] = s.postgres
	}
	return checks
}

func (s *storage) Close() {
	if s.mongo != nil {
		if err := s.mongo.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close mongodb")
		}
	}
	if s.postgres != nil {
		s.postgres.Close()
	}
}
