package data

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"go-shortener-pipeline/internal/domain"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Compile-time interface check
var _ domain.URLRepository = (*urlRepo)(nil)

const (
	tableURLs       = "urls"
	tableClickInbox = "click_inbox"

	// Keeps multi-row inserts under the bind parameter limits of both dialects.
	maxInsertRows = 4000
)

var urlColumns = []string{
	"id", "key", "target_url", "user_id", "name", "is_active", "clicks_count", "created_at", "last_used",
}

type urlRepo struct {
	data *Data
	log  *log.Helper
}

// NewURLRepo creates the SQL url repository.
func NewURLRepo(data *Data, logger log.Logger) domain.URLRepository {
	return &urlRepo{
		data: data,
		log:  log.NewHelper(log.With(logger, "module", "data/url")),
	}
}

func (r *urlRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.data.db.Dialect())
}

// AddBulk inserts urls with ON CONFLICT (key) DO NOTHING in one transaction.
func (r *urlRepo) AddBulk(ctx context.Context, urls []*domain.URL) (int, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	inserted := 0
	err := r.withTx(ctx, func(tx dialect.Tx) error {
		for _, chunk := range lo.Chunk(urls, maxInsertRows) {
			insert := r.builder().Insert(tableURLs).
				Columns("key", "target_url", "user_id", "name", "is_active", "clicks_count", "created_at", "last_used")
			for _, u := range chunk {
				insert.Values(
					u.Key().String(),
					u.TargetURL().String(),
					u.UserID().String(),
					u.Name(),
					u.IsActive(),
					u.ClicksCount(),
					u.CreatedAt().UTC(),
					u.LastUsed().UTC(),
				)
			}
			insert.OnConflict(entsql.ConflictColumns("key"), entsql.DoNothing())

			query, args := insert.Query()
			var res sql.Result
			if err := tx.Exec(ctx, query, args, &res); err != nil {
				return fmt.Errorf("insert urls: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if skipped := len(urls) - inserted; skipped > 0 {
		r.log.WithContext(ctx).Debugw("msg", "skipped existing urls", "count", skipped)
	}
	return inserted, nil
}

// ApplyClickEvents records events in click_inbox and adds the newly inserted
// ones to clicks_count with a single UPDATE, all in one transaction.
func (r *urlRepo) ApplyClickEvents(ctx context.Context, events []domain.ClickEvent) (int, error) {
	events = lo.UniqBy(events, func(e domain.ClickEvent) uuid.UUID { return e.EventID })
	if len(events) == 0 {
		return 0, nil
	}

	applied := 0
	err := r.withTx(ctx, func(tx dialect.Tx) error {
		now := time.Now().UTC()
		var keys []string
		for _, chunk := range lo.Chunk(events, maxInsertRows) {
			fresh, err := r.insertInbox(ctx, tx, chunk, now)
			if err != nil {
				return err
			}
			keys = append(keys, fresh...)
		}
		if len(keys) == 0 {
			return nil
		}

		if err := r.incrementClicks(ctx, tx, lo.CountValues(keys), now); err != nil {
			return err
		}
		applied = len(keys)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// insertInbox returns the url key of every row actually inserted.
func (r *urlRepo) insertInbox(ctx context.Context, tx dialect.Tx, events []domain.ClickEvent, now time.Time) ([]string, error) {
	insert := r.builder().Insert(tableClickInbox).Columns("event_id", "url_key", "created_at")
	for _, e := range events {
		insert.Values(e.EventID.String(), e.Key, now)
	}
	insert.OnConflict(entsql.ConflictColumns("event_id"), entsql.DoNothing()).Returning("url_key")

	query, args := insert.Query()
	var rows entsql.Rows
	if err := tx.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("insert click inbox: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0, len(events))
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// incrementClicks runs
//
//	WITH v(url_key, cnt) AS (VALUES (?, ?), ...)
//	UPDATE urls SET clicks_count = clicks_count + (SELECT cnt FROM v WHERE v.url_key = urls.key), last_used = ?
//	WHERE key IN (SELECT url_key FROM v)
func (r *urlRepo) incrementClicks(ctx context.Context, tx dialect.Tx, counts map[string]int, now time.Time) error {
	keys := lo.Keys(counts)
	slices.Sort(keys)

	values := entsql.ExprFunc(func(b *entsql.Builder) {
		b.WriteString("WITH v(url_key, cnt) AS (VALUES ")
		for i, k := range keys {
			if i > 0 {
				b.Comma()
			}
			b.WriteByte('(').Arg(k).WriteString(", CAST(").Arg(counts[k]).WriteString(" AS BIGINT))")
		}
		b.WriteByte(')')
	})

	update := r.builder().Update(tableURLs).
		Prefix(values).
		Set("clicks_count", entsql.ExprFunc(func(b *entsql.Builder) {
			b.Ident("clicks_count").
				WriteString(" + (SELECT cnt FROM v WHERE v.url_key = ").
				Ident(tableURLs).WriteByte('.').Ident("key").
				WriteByte(')')
		})).
		Set("last_used", now).
		Where(entsql.P(func(b *entsql.Builder) {
			b.Ident("key").WriteString(" IN (SELECT url_key FROM v)")
		}))

	query, args := update.Query()
	var res sql.Result
	if err := tx.Exec(ctx, query, args, &res); err != nil {
		return fmt.Errorf("increment clicks: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && int(n) < len(keys) {
		r.log.WithContext(ctx).Warnw("msg", "clicks for unknown urls", "keys", len(keys), "updated", n)
	}
	return nil
}

func (r *urlRepo) Get(ctx context.Context, key domain.Key) (*domain.URL, error) {
	query, args := r.builder().Select(urlColumns...).
		From(entsql.Table(tableURLs)).
		Where(entsql.EQ("key", key.String())).
		Limit(1).
		Query()

	urls, err := r.queryURLs(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%s: %w", key, domain.ErrURLNotFound)
	}
	return urls[0], nil
}

func (r *urlRepo) Update(ctx context.Context, u *domain.URL) error {
	query, args := r.builder().Update(tableURLs).
		Set("name", u.Name()).
		Set("is_active", u.IsActive()).
		Where(entsql.EQ("key", u.Key().String())).
		Query()

	return r.execAffecting(ctx, query, args, u.Key())
}

func (r *urlRepo) Delete(ctx context.Context, key domain.Key) error {
	query, args := r.builder().Delete(tableURLs).
		Where(entsql.EQ("key", key.String())).
		Query()

	return r.execAffecting(ctx, query, args, key)
}

func (r *urlRepo) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.URL, int, error) {
	if page < 1 {
		page = 1
	}

	countQuery, countArgs := r.builder().Select().
		Count().
		From(entsql.Table(tableURLs)).
		Where(entsql.EQ("user_id", userID.String())).
		Query()

	var rows entsql.Rows
	if err := r.data.db.Query(ctx, countQuery, countArgs, &rows); err != nil {
		return nil, 0, fmt.Errorf("count urls: %w", err)
	}
	total, err := entsql.ScanInt(rows)
	_ = rows.Close()
	if err != nil {
		return nil, 0, fmt.Errorf("count urls: %w", err)
	}

	query, args := r.builder().Select(urlColumns...).
		From(entsql.Table(tableURLs)).
		Where(entsql.EQ("user_id", userID.String())).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Query()

	urls, err := r.queryURLs(ctx, query, args)
	if err != nil {
		return nil, 0, err
	}
	return urls, total, nil
}

func (r *urlRepo) execAffecting(ctx context.Context, query string, args []any, key domain.Key) error {
	var res sql.Result
	if err := r.data.db.Exec(ctx, query, args, &res); err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", key, domain.ErrURLNotFound)
	}
	return nil
}

func (r *urlRepo) queryURLs(ctx context.Context, query string, args []any) ([]*domain.URL, error) {
	var rows entsql.Rows
	if err := r.data.db.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("query urls: %w", err)
	}
	defer rows.Close()

	var urls []*domain.URL
	for rows.Next() {
		u, err := scanURL(&rows)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

func scanURL(rows *entsql.Rows) (*domain.URL, error) {
	var (
		id          int64
		key         string
		target      string
		userID      string
		name        string
		isActive    bool
		clicksCount int64
		createdAt   time.Time
		lastUsed    time.Time
	)
	if err := rows.Scan(&id, &key, &target, &userID, &name, &isActive, &clicksCount, &createdAt, &lastUsed); err != nil {
		return nil, fmt.Errorf("scan url: %w", err)
	}

	k, err := domain.NewKey(key)
	if err != nil {
		return nil, fmt.Errorf("stored key %q: %w", key, err)
	}
	t, err := domain.NewTargetURL(target)
	if err != nil {
		return nil, fmt.Errorf("stored target of %q: %w", key, err)
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("stored user_id of %q: %w", key, domain.ErrInvalidUserID)
	}

	return domain.ReconstructURL(id, k, t, uid, name, isActive, clicksCount, createdAt, lastUsed), nil
}

func (r *urlRepo) withTx(ctx context.Context, fn func(tx dialect.Tx) error) error {
	tx, err := r.data.db.Tx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.WithContext(ctx).Errorw("msg", "rollback failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}
