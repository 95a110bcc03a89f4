package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/projectsmartedu/SmartEducation-sub001/apps/api/echo"
	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/course"
	"github.com/projectsmartedu/SmartEducation-sub001/core/deadline"
	"github.com/projectsmartedu/SmartEducation-sub001/core/knowledge"
	"github.com/projectsmartedu/SmartEducation-sub001/core/notify"
	"github.com/projectsmartedu/SmartEducation-sub001/core/progress"
	"github.com/projectsmartedu/SmartEducation-sub001/core/revision"
	logsvc "github.com/projectsmartedu/SmartEducation-sub001/services/logger"
	"github.com/projectsmartedu/SmartEducation-sub001/services/realtime"
	"github.com/projectsmartedu/SmartEducation-sub001/storage/database"
	inmemdb "github.com/projectsmartedu/SmartEducation-sub001/storage/database/inmem"
	sqlxrepos "github.com/projectsmartedu/SmartEducation-sub001/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Store is the storage engine selected by database.engine.
type Store struct {
	dig.Out

	Catalog   course.Store
	Revisions revision.Repository
	Progress  progress.Repository
	Tx        core.TxRunner
	Health    HealthFunc
	Closer    StoreCloser
}

type (
	HealthFunc  func(ctx context.Context) error
	StoreCloser func() error
)

// Bus is the Redis event bus; Bus is nil when redis.addr is empty.
type Bus struct {
	*realtime.RedisBus
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newStore(conf *core.Config, loggerParam DBLoggerParam) Store {
	if conf.Database.Engine == database.EngineMemory {
		db := inmemdb.NewDB()
		return Store{
			Catalog:   inmemdb.NewCatalogRepository(db),
			Revisions: inmemdb.NewRevisionRepository(db),
			Progress:  inmemdb.NewProgressRepository(db),
			Tx:        db,
			Health:    func(context.Context) error { return nil },
			Closer:    func() error { return nil },
		}
	}

	db, err := database.Open(conf)
	if err == nil {
		err = database.Migrate(db)
	}
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return Store{
		Catalog:   sqlxrepos.NewCatalogRepository(db),
		Revisions: sqlxrepos.NewRevisionRepository(db),
		Progress:  sqlxrepos.NewProgressRepository(db),
		Tx:        sqlxrepos.NewTxRunner(db),
		Health:    db.PingContext,
		Closer:    db.Close,
	}
}

func newProgressService(
	conf *core.Config,
	repo progress.Repository,
	catalog course.Store,
	tx core.TxRunner,
	validate *validator.Validate,
) *progress.Service {
	return progress.NewService(conf, repo, catalog, tx, validate)
}

func newRevisionService(
	conf *core.Config,
	repo revision.Repository,
	progressSvc *progress.Service,
	catalog course.Store,
	tx core.TxRunner,
	validate *validator.Validate,
) *revision.Service {
	return revision.NewService(conf, repo, progressSvc, catalog, tx, validate)
}

func newAggregator(conf *core.Config, catalog course.Store, progressRepo progress.Repository, revisionRepo revision.Repository) *knowledge.Aggregator {
	return knowledge.NewAggregator(conf, catalog, progressRepo, revisionRepo)
}

func newBus(conf *core.Config, logger core.Logger) Bus {
	if conf.Redis.Addr == "" {
		return Bus{}
	}
	bus, err := realtime.NewRedisBus(conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
	}
	return Bus{bus}
}

// newNotifier publishes through Redis when configured, so that every instance delivers to its own hub.
func newNotifier(conf *core.Config, logger core.Logger, hub *realtime.Hub, bus Bus) notify.Notifier {
	var primary notify.Notifier = hub
	if bus.RedisBus != nil {
		primary = bus.RedisBus
	}
	if conf.Debug {
		return notify.Fanout{primary, notify.LogNotifier{Logger: logger}}
	}
	return primary
}

func newScanner(conf *core.Config, repo revision.Repository, notifier notify.Notifier, logger core.Logger) *deadline.Scanner {
	return deadline.NewScanner(conf, repo, notifier, logger)
}

func newRunner(
	conf *core.Config,
	scanner *deadline.Scanner,
	revisionSvc *revision.Service,
	progressSvc *progress.Service,
	logger core.Logger,
) *deadline.Runner {
	return deadline.NewRunner(conf, scanner, revisionSvc, progressSvc, logger)
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
	revisionSvc *revision.Service,
	progressSvc *progress.Service,
	agg *knowledge.Aggregator,
	hub *realtime.Hub,
	health HealthFunc,
) *echoapi.Server {
	return echoapi.NewServer(conf, logger, validate, translator, &echoapi.Deps{
		RevisionSvc: revisionSvc,
		ProgressSvc: progressSvc,
		Knowledge:   agg,
		Hub:         hub,
		Health:      health,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStore))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newProgressService))
	must(c.Provide(newRevisionService))
	must(c.Provide(newAggregator))
	must(c.Provide(realtime.NewHub))
	must(c.Provide(newBus))
	must(c.Provide(newNotifier))
	must(c.Provide(newScanner))
	must(c.Provide(newRunner))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
