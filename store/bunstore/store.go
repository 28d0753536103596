// Package bunstore implements the courier store on a SQL database using the
// Bun ORM. PostgreSQL and SQLite are supported; on PostgreSQL the delivery
// queue uses FOR UPDATE SKIP LOCKED so multiple workers can dequeue
// concurrently without double-delivery.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	courier "github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/endpoint"
	"github.com/xraph/courier/id"
	courierstore "github.com/xraph/courier/store"
)

// compile-time interface check
var _ courierstore.Store = (*Store)(nil)

// Store implements store.Store using the Bun ORM.
type Store struct {
	db *bun.DB
}

// New creates a Bun-backed store from an already-configured *bun.DB.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// NewPostgres creates a Bun-backed store over a PostgreSQL connection.
func NewPostgres(sqldb *sql.DB) *Store {
	return New(bun.NewDB(sqldb, pgdialect.New()))
}

// NewSQLite creates a Bun-backed store over a SQLite connection.
func NewSQLite(sqldb *sql.DB) *Store {
	return New(bun.NewDB(sqldb, sqlitedialect.New()))
}

// DB returns the underlying Bun database for direct access.
func (s *Store) DB() *bun.DB { return s.db }

// Migrate creates the required tables using Bun's CreateTable.
func (s *Store) Migrate(ctx context.Context) error {
	models := []any{
		(*endpointModel)(nil),
		(*deliveryModel)(nil),
		(*dlqEntryModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
	}

	// Create indexes.
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_courier_deliveries_due ON courier_deliveries (next_attempt_at) WHERE status IN ('pending', 'failed')",
		"CREATE INDEX IF NOT EXISTS idx_courier_deliveries_endpoint ON courier_deliveries (endpoint_id)",
		"CREATE INDEX IF NOT EXISTS idx_courier_endpoints_enabled ON courier_endpoints (enabled)",
		"CREATE INDEX IF NOT EXISTS idx_courier_dlq_endpoint ON courier_dlq (endpoint_id)",
		"CREATE INDEX IF NOT EXISTS idx_courier_dlq_failed_at ON courier_dlq (failed_at)",
	}
	for _, ddl := range indexes {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Endpoint Store ====================

func (s *Store) CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m := toEndpointModel(ep)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	return err
}

func (s *Store) GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	m := new(endpointModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", epID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, courier.ErrEndpointNotFound
		}
		return nil, err
	}
	return fromEndpointModel(m)
}

func (s *Store) UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m := toEndpointModel(ep)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model(m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return courier.ErrEndpointNotFound
	}
	return nil
}

func (s *Store) DeleteEndpoint(ctx context.Context, epID id.ID) error {
	res, err := s.db.NewDelete().
		Model((*endpointModel)(nil)).
		Where("id = ?", epID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return courier.ErrEndpointNotFound
	}
	return nil
}

func (s *Store) ListEndpoints(ctx context.Context, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	var models []endpointModel
	q := s.db.NewSelect().Model(&models)

	if opts.Enabled != nil {
		q = q.Where("enabled = ?", *opts.Enabled)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.Order("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*endpoint.Endpoint, len(models))
	for i := range models {
		ep, err := fromEndpointModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = ep
	}
	return result, nil
}

func (s *Store) Resolve(ctx context.Context, eventType string) ([]*endpoint.Endpoint, error) {
	var models []endpointModel
	if err := s.db.NewSelect().
		Model(&models).
		Where("enabled = ?", true).
		Scan(ctx); err != nil {
		return nil, err
	}

	// Subscription patterns are globs, so matching happens here rather than
	// in SQL.
	var result []*endpoint.Endpoint
	for i := range models {
		ep, err := fromEndpointModel(&models[i])
		if err != nil {
			return nil, err
		}
		if ep.Subscribed(eventType) {
			result = append(result, ep)
		}
	}
	return result, nil
}

func (s *Store) SetEnabled(ctx context.Context, epID id.ID, enabled bool) error {
	now := time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model((*endpointModel)(nil)).
		Set("enabled = ?", enabled).
		Set("updated_at = ?", now).
		Where("id = ?", epID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return courier.ErrEndpointNotFound
	}
	return nil
}

// ==================== Delivery Store ====================

func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	return err
}

func (s *Store) EnqueueBatch(ctx context.Context, ds []*delivery.Delivery) error {
	if len(ds) == 0 {
		return nil
	}
	models := make([]deliveryModel, len(ds))
	for i, d := range ds {
		models[i] = *toDeliveryModel(d)
	}
	_, err := s.db.NewInsert().Model(&models).Exec(ctx)
	return err
}

// Dequeue claims due deliveries by flipping them to 'delivering' in a single
// UPDATE, so a row is only ever returned to one worker. A delivery is due
// when it is pending with no scheduled attempt or its scheduled attempt time
// has passed, or when it failed and a retry is scheduled and due.
func (s *Store) Dequeue(ctx context.Context, limit int) ([]*delivery.Delivery, error) {
	now := time.Now().UTC()

	// SQLite serializes writers, so the row lock is only needed on Postgres.
	lock := ""
	if s.db.Dialect().Name() == dialect.PG {
		lock = "FOR UPDATE SKIP LOCKED"
	}

	var models []deliveryModel
	err := s.db.NewRaw(`
		UPDATE courier_deliveries
		SET status = 'delivering', updated_at = ?
		WHERE id IN (
			SELECT id FROM courier_deliveries
			WHERE (status = 'pending' AND (next_attempt_at IS NULL OR next_attempt_at <= ?))
			   OR (status = 'failed' AND next_attempt_at IS NOT NULL AND next_attempt_at <= ?)
			ORDER BY next_attempt_at ASC
			LIMIT ?
			`+lock+`
		)
		RETURNING *
	`, now, now, now, limit).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}

	result := make([]*delivery.Delivery, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	m.UpdatedAt = time.Now().UTC()
	_, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	return err
}

// Release restores a skipped delivery's pre-claim status so it becomes due
// again. Dequeue marked it delivering; a delivery with prior attempts goes
// back to failed, a fresh one back to pending.
func (s *Store) Release(ctx context.Context, d *delivery.Delivery) error {
	status := string(delivery.StatusPending)
	if d.Attempts > 0 {
		status = string(delivery.StatusFailed)
	}
	_, err := s.db.NewUpdate().
		Model((*deliveryModel)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", d.ID.String()).
		Where("status = ?", string(delivery.StatusDelivering)).
		Exec(ctx)
	return err
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", delID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, courier.ErrDeliveryNotFound
		}
		return nil, err
	}
	return fromDeliveryModel(m)
}

func (s *Store) ListByEndpoint(ctx context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.db.NewSelect().Model(&models).Where("endpoint_id = ?", epID.String())

	if opts.Status != nil {
		q = q.Where("status = ?", string(*opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.Order("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*delivery.Delivery, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	count, err := s.db.NewSelect().
		Model((*deliveryModel)(nil)).
		Where("status = ?", string(delivery.StatusPending)).
		Count(ctx)
	return int64(count), err
}

// ==================== DLQ Store ====================

func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	m := toDLQEntryModel(entry)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	return err
}

func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	var models []dlqEntryModel
	q := s.db.NewSelect().Model(&models)

	if opts.EndpointID != nil {
		q = q.Where("endpoint_id = ?", opts.EndpointID.String())
	}
	if opts.EventType != "" {
		q = q.Where("event_type = ?", opts.EventType)
	}
	if opts.From != nil {
		q = q.Where("failed_at >= ?", *opts.From)
	}
	if opts.To != nil {
		q = q.Where("failed_at <= ?", *opts.To)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.Order("failed_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*dlq.Entry, len(models))
	for i := range models {
		entry, err := fromDLQEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = entry
	}
	return result, nil
}

func (s *Store) GetDLQ(ctx context.Context, dlqID id.ID) (*dlq.Entry, error) {
	m := new(dlqEntryModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", dlqID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, courier.ErrDLQNotFound
		}
		return nil, err
	}
	return fromDLQEntryModel(m)
}

// replayEntry re-enqueues a fresh pending delivery built from a DLQ entry and
// marks the entry as replayed. The entry stays in the DLQ for audit.
func (s *Store) replayEntry(ctx context.Context, entry *dlq.Entry) error {
	now := time.Now().UTC()

	d := &delivery.Delivery{
		ID:         id.NewDeliveryID(),
		EndpointID: entry.EndpointID,
		EventType:  entry.EventType,
		ResourceID: entry.ResourceID,
		Payload:    entry.Payload,
		Status:     delivery.StatusPending,
	}
	d.CreatedAt = now
	d.UpdatedAt = now

	if err := s.Enqueue(ctx, d); err != nil {
		return err
	}

	_, err := s.db.NewUpdate().
		Model((*dlqEntryModel)(nil)).
		Set("replayed_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", entry.ID.String()).
		Exec(ctx)
	return err
}

func (s *Store) Replay(ctx context.Context, dlqID id.ID) error {
	entry, err := s.GetDLQ(ctx, dlqID)
	if err != nil {
		return err
	}
	return s.replayEntry(ctx, entry)
}

func (s *Store) ReplayBulk(ctx context.Context, from, to time.Time) (int64, error) {
	var models []dlqEntryModel
	if err := s.db.NewSelect().
		Model(&models).
		Where("failed_at >= ?", from).
		Where("failed_at <= ?", to).
		Where("replayed_at IS NULL").
		Scan(ctx); err != nil {
		return 0, err
	}

	var count int64
	for i := range models {
		entry, err := fromDLQEntryModel(&models[i])
		if err != nil {
			return count, err
		}
		if err := s.replayEntry(ctx, entry); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*dlqEntryModel)(nil)).
		Where("failed_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return rows, nil
}

func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.db.NewSelect().
		Model((*dlqEntryModel)(nil)).
		Count(ctx)
	return int64(count), err
}
