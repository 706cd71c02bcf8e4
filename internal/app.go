package internal

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
	"github.com/s-larionov/process-manager"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/goverland-labs/teams-subscriptions/internal/catalog"
	"github.com/goverland-labs/teams-subscriptions/internal/config"
	"github.com/goverland-labs/teams-subscriptions/internal/events"
	"github.com/goverland-labs/teams-subscriptions/internal/metrics"
	"github.com/goverland-labs/teams-subscriptions/internal/notification"
	"github.com/goverland-labs/teams-subscriptions/internal/settings"
	"github.com/goverland-labs/teams-subscriptions/internal/subscription"
	"github.com/goverland-labs/teams-subscriptions/internal/user"
	"github.com/goverland-labs/teams-subscriptions/pkg/health"
	"github.com/goverland-labs/teams-subscriptions/pkg/httpsrv"
	"github.com/goverland-labs/teams-subscriptions/pkg/prometheus"
)

type Application struct {
	sigChan <-chan os.Signal
	manager *process.Manager
	cfg     config.App
	db      *gorm.DB
	nc      *nats.Conn

	catalog    *catalog.Repo
	users      *user.Service
	settings   *settings.Service
	sub        *subscription.Service
	inbox      *notification.Repo
	dispatcher *notification.Dispatcher
}

func NewApplication(cfg config.App) (*Application, error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	a := &Application{
		sigChan: sigChan,
		cfg:     cfg,
		manager: process.NewManager(),
	}

	err := a.bootstrap()
	if err != nil {
		return nil, err
	}

	return a, nil
}

func (a *Application) Run() {
	a.manager.StartAll()
	a.registerShutdown()
}

func (a *Application) bootstrap() error {
	initializers := []func() error{
		a.initDB,
		a.initNats,

		// Init Dependencies
		a.initServices,

		// Init Workers: Application
		a.initAPI,
		a.initConsumer,
		a.initDigestWorker,

		// Init Workers: System
		a.initPrometheusWorker,
		a.initHealthWorker,
	}

	for _, initializer := range initializers {
		if err := initializer(); err != nil {
			return err
		}
	}

	return nil
}

func (a *Application) initDB() error {
	db, err := gorm.Open(postgres.Open(a.cfg.DB.DSN), &gorm.Config{})
	if err != nil {
		return err
	}

	ps, err := db.DB()
	if err != nil {
		return err
	}
	ps.SetMaxOpenConns(a.cfg.DB.MaxOpenConnections)

	a.db = db
	if a.cfg.DB.Debug {
		a.db = db.Debug()
	}

	if !a.cfg.DB.AutoMigrate {
		return nil
	}

	for _, migrate := range []func(*gorm.DB) error{
		user.Migrate,
		catalog.Migrate,
		settings.Migrate,
		subscription.Migrate,
		notification.Migrate,
	} {
		if err := migrate(a.db); err != nil {
			return err
		}
	}

	return nil
}

func (a *Application) initNats() error {
	nc, err := nats.Connect(
		a.cfg.Nats.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(a.cfg.Nats.MaxReconnects),
		nats.ReconnectWait(a.cfg.Nats.ReconnectTimeout),
	)
	if err != nil {
		return err
	}

	a.nc = nc

	return nil
}

func (a *Application) initServices() error {
	a.catalog = catalog.NewRepo(a.db)
	a.users = user.NewService(user.NewRepo(a.db))
	a.settings = settings.NewService(settings.NewDetailsRepo(a.db))

	a.initSubscription()
	a.initNotification()

	return nil
}

func (a *Application) initSubscription() {
	repo := subscription.NewRepo(a.db)
	resolvers := map[subscription.TargetKind]subscription.Resolver{
		subscription.TargetKindTestCase:  a.catalog.CaseExists,
		subscription.TargetKindTestSuite: a.catalog.SuiteExists,
	}

	a.sub = subscription.NewService(repo, a.catalog, a.users, resolvers)
}

func (a *Application) initNotification() {
	a.inbox = notification.NewRepo(a.db)
	deliverers := notification.Deliverers{
		notification.NewInboxDeliverer(a.inbox),
		notification.NewPublisher(a.nc, a.users, a.settings),
	}

	a.dispatcher = notification.NewDispatcher(a.sub, a.catalog, deliverers)
}

func (a *Application) initAPI() error {
	r := mux.NewRouter()
	r.Use(metrics.NewRequestWatcher("api").Middleware)

	subscription.NewServer(a.sub).Register(r)
	notification.NewServer(a.inbox).Register(r)
	settings.NewServer(a.settings, a.users).Register(r)

	a.manager.AddWorker(process.NewServerWorker("API", httpsrv.NewServer(a.cfg.API.Listen, r)))

	return nil
}

func (a *Application) initConsumer() error {
	cs := events.NewConsumer(a.nc, a.sub, a.catalog, a.dispatcher)
	a.manager.AddWorker(process.NewCallbackWorker("hook-consumer", cs.Start))

	return nil
}

func (a *Application) initDigestWorker() error {
	if !a.cfg.Digest.Enabled {
		return nil
	}

	w := notification.NewDigestWorker(a.inbox, a.users, a.settings, a.nc, a.cfg.Digest.Interval, a.cfg.Digest.TopLimit)
	a.manager.AddWorker(process.NewCallbackWorker("notification-digest", w.Start))

	return nil
}

func (a *Application) initPrometheusWorker() error {
	srv := prometheus.NewServer(a.cfg.Prometheus.Listen, "/metrics")
	a.manager.AddWorker(process.NewServerWorker("prometheus", srv))

	return nil
}

func (a *Application) initHealthWorker() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}

	srv := health.NewHealthCheckServer(a.cfg.Health.Listen, "/status", health.DefaultHandler(sqlDB))
	a.manager.AddWorker(process.NewServerWorker("health", srv))

	return nil
}

func (a *Application) registerShutdown() {
	go func(manager *process.Manager) {
		<-a.sigChan

		manager.StopAll()
	}(a.manager)

	a.manager.AwaitAll()

	if a.nc != nil {
		a.nc.Close()
	}
}
