package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"evgrid/backend/libs/db"
	"evgrid/backend/libs/queue"
	libredis "evgrid/backend/libs/redis"
	"evgrid/backend/services/ocpp-server/internal/config"
	"evgrid/backend/services/ocpp-server/internal/handlers"
	"evgrid/backend/services/ocpp-server/internal/metrics"
	"evgrid/backend/services/ocpp-server/internal/ocpp"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
	redisstore "evgrid/backend/services/ocpp-server/internal/redis"
	"evgrid/backend/services/ocpp-server/internal/repository"
	"evgrid/backend/services/ocpp-server/internal/repository/memory"
	"evgrid/backend/services/ocpp-server/internal/service"
	"evgrid/backend/services/ocpp-server/internal/ws"
)

// stores groups the repositories the server runs on.
type stores struct {
	transactions   service.TransactionStore
	tariffs        service.TariffStore
	reservations   service.ReservationStore
	deviceModel    service.DeviceModelStore
	authorizations service.AuthorizationStore
	locations      service.LocationStore
	security       service.StationSecurityStore
	messages       ocpp.MessageLog
}

func memoryStores() stores {
	s := memory.NewStore()
	return stores{
		transactions:   s,
		tariffs:        s,
		reservations:   s,
		deviceModel:    s,
		authorizations: s,
		locations:      s,
		security:       s,
		messages:       s,
	}
}

func postgresStores(pool *pgxpool.Pool) stores {
	stations := repository.NewStationRepository(pool)
	return stores{
		transactions:   repository.NewTransactionRepository(pool),
		tariffs:        repository.NewTariffRepository(pool),
		reservations:   repository.NewReservationRepository(pool),
		deviceModel:    repository.NewDeviceModelRepository(pool),
		authorizations: repository.NewAuthorizationRepository(pool),
		locations:      stations,
		security:       stations,
		messages:       repository.NewOCPPLogRepository(pool),
	}
}

// App wires all dependencies for the OCPP server.
type App struct {
	httpServer  *http.Server
	pool        *pgxpool.Pool
	redis       *goredis.Client
	queue       queue.MessageQueue
	manager     *ws.Manager
	updater     *service.CostUpdater
	cancelConns context.CancelFunc
	logger      *zap.Logger
}

// New builds the application graph. Any failure leaves nothing running.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}
	built := false
	defer func() {
		if !built {
			a.Close()
		}
	}()

	var err error

	m := metrics.New()

	var st stores
	switch cfg.Database.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		st = memoryStores()
	default:
		a.pool, err = db.NewPostgresPool(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
		if err != nil {
			return nil, err
		}
		st = postgresStores(a.pool)
	}

	authorizations := st.authorizations
	if cfg.Redis.Addr != "" {
		a.redis, err = libredis.NewRedisClient(ctx, libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("app: redis: %w", err)
		}
		authorizations = redisstore.NewAuthorizationCache(a.redis, authorizations, cfg.RedisTTL(), logger)
	}

	a.queue, err = queue.New(cfg.Queue.Driver, cfg.Queue.URL, logger)
	if err != nil {
		return nil, err
	}
	events := service.NewEventPublisher(a.queue, cfg.Queue.SubjectPrefix, m, logger)

	a.manager = ws.NewManager(cfg.PingInterval(), m, logger)
	correlator := ocpp.NewCorrelator(a.manager, st.messages, m, cfg.CallTimeout(), logger)

	calculator := service.NewCostCalculator(st.transactions, st.tariffs, logger)
	a.updater = service.NewCostUpdater(st.transactions, calculator, correlator, events, m, logger)
	authorizer := service.NewAuthorizationService(authorizations, logger,
		service.NewConcurrentTransactionAuthorizer(st.transactions),
		service.StationAllowListAuthorizer{},
	)
	validator := service.NewMeterValueValidator(st.security, logger)
	statuses := service.NewStatusService(st.locations, st.deviceModel, service.NewConnectorStatuses(), logger)

	dispatcher, err := routes(cfg, st, authorizer, calculator, validator, a.updater, statuses, events, m, logger)
	if err != nil {
		return nil, err
	}
	processor := ocpp.NewProcessor(ocpp.NewParser(), dispatcher, correlator, st.messages, m, logger)

	connCtx, cancelConns := context.WithCancel(context.Background())
	a.cancelConns = cancelConns
	auth := ws.NewAuthenticator(ws.AuthConfig{
		JWTSecret:     cfg.Security.JWTSecret,
		BasicAuth:     cfg.Security.BasicAuth,
		DefaultTenant: cfg.OCPP.DefaultTenant,
	}, st.security)
	wsServer := ws.NewServer(connCtx, a.manager, processor, auth, ws.ConnectionOptions{
		WriteTimeout:       cfg.WriteTimeout(),
		PongWait:           2 * cfg.PingInterval(),
		MaxConcurrentCalls: cfg.WebSocket.MaxConcurrentCalls,
	}, func(stationID string) {
		if n := correlator.FailStation(stationID); n > 0 {
			logger.Info("failed pending calls of disconnected station", zap.String("station_id", stationID), zap.Int("calls", n))
		}
		statuses.Forget(stationID)
	}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/transactions/status", transactionStatusHandler(managerSessions(a.manager), correlator, logger))
	mux.HandleFunc("/ocpp/", wsServer.HandleWS)

	a.httpServer = &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("ocpp routes registered", zap.Strings("routes", dispatcher.Actions()))
	built = true
	return a, nil
}

func routes(
	cfg *config.Config,
	st stores,
	authorizer handlers.IdTokenAuthorizer,
	calculator service.TotalCostCalculator,
	validator handlers.MeterValidator,
	updater handlers.CostScheduler,
	statuses handlers.StatusProcessor,
	events *service.EventPublisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) (*ocpp.Dispatcher, error) {
	transactionEvent, err := handlers.NewTransactionEventHandler(handlers.TransactionEventDeps{
		Transactions: st.transactions,
		Reservations: st.reservations,
		DeviceModel:  st.deviceModel,
		Authorizer:   authorizer,
		Calculator:   calculator,
		Validator:    validator,
		Updater:      updater,
		Events:       events,
		Config: handlers.TransactionEventConfig{
			CostUpdatedInterval:         cfg.CostUpdatedInterval(),
			SendCostUpdatedOnMeterValue: cfg.Transactions.SendCostUpdatedOnMeterValue,
		},
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	meterValues, err := handlers.NewMeterValuesHandler(handlers.MeterValuesDeps{
		Transactions: st.transactions,
		Validator:    validator,
		Metrics:      m,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	statusNotification, err := handlers.NewStatusNotificationHandler(statuses, logger)
	if err != nil {
		return nil, err
	}

	return ocpp.NewDispatcher(
		ocpp.Call(protocol.ActionTransactionEvent, transactionEvent),
		ocpp.Call(protocol.ActionMeterValues, meterValues),
		ocpp.Call(protocol.ActionStatusNotification, statusNotification),
		ocpp.Response(protocol.ActionCostUpdated, handlers.NewCostUpdatedResponseHandler(logger)),
		ocpp.Response(protocol.ActionGetTransactionStatus, handlers.NewGetTransactionStatusResponseHandler(logger)),
	)
}

// Run starts manager and HTTP server.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go a.manager.Start(ctx)

	go func() {
		a.logger.Info("starting ocpp http server", zap.String("addr", a.httpServer.Addr))
		errCh <- a.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		a.cancelConns()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close releases resources.
func (a *App) Close() {
	if a.cancelConns != nil {
		a.cancelConns()
	}
	if a.manager != nil {
		a.manager.CloseAll()
	}
	if a.updater != nil {
		a.updater.Close()
	}
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.logger.Warn("failed to close queue", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
