package svc

import (
	"log"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "kisfeed/internal/cache"
	"kisfeed/internal/config"
	"kisfeed/internal/persistence/feedstore"
	"kisfeed/internal/repo"
	"kisfeed/pkg/feed"
	"kisfeed/pkg/kis"
	"kisfeed/pkg/notify"
)

// ServiceContext wires shared collaborators for the collector and strategy
// daemons. Optional pieces stay nil when their config section is absent.
type ServiceContext struct {
	Config config.Config

	Clock *feed.Clock
	TTL   cachekeys.TTLSet

	KIS      *kis.Client
	Fetchers []feed.Fetcher

	DBConn sqlx.SqlConn
	Redis  *redis.Redis
	Store  *feedstore.Store
	Writer *feedstore.Writer
	Bars   *repo.BarRepo

	Notifier *notify.Notifier
}

func NewServiceContext(c *config.Config) *ServiceContext {
	svc := &ServiceContext{
		Config: *c,
		Clock:  feed.NewClock(),
		TTL:    cachekeys.NewTTLSet(c.TTL),
	}

	if c.KIS.Value != nil {
		svc.KIS = kis.NewClient(c.KIS.Value)
	}

	if c.Feed.Value != nil {
		if svc.KIS == nil {
			log.Fatal("feed config requires a kis section")
		}
		fetchers, err := c.Feed.Value.BuildFetchers(feed.BuildDeps{Client: svc.KIS, Clock: svc.Clock})
		if err != nil {
			log.Fatalf("failed to build feed fetchers: %v", err)
		}
		svc.Fetchers = fetchers
	}

	if c.Redis.Host != "" {
		svc.Redis = redis.MustNewRedis(c.Redis)
	}

	if c.Postgres.DSN != "" {
		svc.DBConn = sqlx.NewSqlConn("pgx", c.Postgres.DSN)
		svc.Store = feedstore.NewStore(svc.DBConn, svc.Redis, svc.TTL)
		svc.Writer = feedstore.NewWriter(svc.Store, c.Batch)
		svc.Bars = repo.NewBarRepo(svc.DBConn)
	}

	if c.Notify.Value != nil {
		notifier, err := notify.New(c.Notify.Value)
		if err != nil {
			log.Fatalf("failed to init telegram notifier: %v", err)
		}
		svc.Notifier = notifier
	}

	return svc
}
