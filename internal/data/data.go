package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go-shortener-pipeline/internal/conf"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(NewData, NewURLRepo, NewURLCache, NewKeyAllocator)

// Data holds the SQL driver and the optional redis client.
type Data struct {
	db  *entsql.Driver
	rdb *redis.Client
}

// NewData opens the database, runs migrations when configured and connects
// to redis if an address is set.
func NewData(c *conf.Data, logger log.Logger) (*Data, func(), error) {
	helper := log.NewHelper(log.With(logger, "module", "data"))

	drv, err := openDriver(c.Database)
	if err != nil {
		return nil, nil, err
	}

	if c.Database.Migrate {
		if err := Migrate(context.Background(), drv.DB(), c.Database.Driver); err != nil {
			_ = drv.Close()
			return nil, nil, err
		}
		helper.Infow("msg", "database migrated", "driver", c.Database.Driver)
	}

	d := &Data{db: drv}

	if c.Redis != nil && c.Redis.Addr != "" {
		d.rdb = newRedis(c.Redis)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.rdb.Ping(ctx).Err(); err != nil {
			_ = d.rdb.Close()
			_ = drv.Close()
			return nil, nil, fmt.Errorf("connect to redis %s: %w", c.Redis.Addr, err)
		}
	}

	cleanup := func() {
		helper.Info("closing the data resources")
		if d.rdb != nil {
			if err := d.rdb.Close(); err != nil {
				helper.Error(err)
			}
		}
		if err := d.db.Close(); err != nil {
			helper.Error(err)
		}
	}

	return d, cleanup, nil
}

// NewDataWith wraps an already opened driver and redis client.
func NewDataWith(db *entsql.Driver, rdb *redis.Client) *Data {
	return &Data{db: db, rdb: rdb}
}

func openDriver(c *conf.Database) (*entsql.Driver, error) {
	var dialectName string
	switch c.Driver {
	case "sqlite3":
		dialectName = dialect.SQLite
	case "postgres", "pgx":
		dialectName = dialect.Postgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", c.Driver)
	}

	db, err := sql.Open(c.Driver, c.Source)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.Driver, err)
	}
	if c.Driver == "sqlite3" {
		// One writer; the shared-cache memory database lives as long as a connection does.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", c.Driver, err)
	}

	return entsql.OpenDB(dialectName, db), nil
}

func newRedis(c *conf.Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		ReadTimeout:  c.ReadTimeout.AsDuration(),
		WriteTimeout: c.WriteTimeout.AsDuration(),
	})
}
