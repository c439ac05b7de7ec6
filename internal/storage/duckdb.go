package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-fleet/internal/logger"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/internal/version"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"go.uber.org/zap"
)

const schemaVersionKey = "schema_version"

var positionColumns = []string{
	"id", "agent_id", "symbol", "side", "entry_price", "size", "stake", "leverage",
	"stop_loss", "take_profit", "status", "opened_at", "updated_at", "entry_order_id",
	"reservation_id", "current_price", "unrealized_pnl", "close_order_id", "close_reason",
	"exit_price", "realized_pnl", "fee", "closed_at",
}

// DuckDB is a Store backed by a DuckDB file. An empty path opens an in-memory database.
type DuckDB struct {
	db  *sql.DB
	sq  squirrel.StatementBuilderType
	log *logger.Logger
}

// Open opens the database at path, creates missing tables and checks the stored schema
// version against this binary's.
func Open(ctx context.Context, path string, log *logger.Logger) (*DuckDB, error) {
	if log == nil {
		log = logger.NewNop()
	}

	dsn := path
	if path == "" || path == ":memory:" {
		dsn = ""
	} else if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(errors.ErrCodePersistence, err, "failed to create directory %s", dir)
		}
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePersistence, "failed to open database", err)
	}

	s := &DuckDB{
		db:  db,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		log: log.Component("storage"),
	}

	if err := s.initialize(ctx); err != nil {
		db.Close()

		return nil, err
	}

	return s, nil
}

// initialize creates the necessary tables and guards the schema version
func (s *DuckDB) initialize(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT
		)`,
		// name uniqueness is enforced by the orchestrator; a UNIQUE index here would make
		// DuckDB reject in-place upserts of the same row
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			config TEXT NOT NULL,
			state TEXT NOT NULL,
			metrics TEXT NOT NULL,
			updated_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			symbol TEXT,
			side TEXT,
			entry_price DOUBLE,
			size DOUBLE,
			stake DOUBLE,
			leverage DOUBLE,
			stop_loss DOUBLE,
			take_profit DOUBLE,
			status TEXT,
			opened_at TIMESTAMP,
			updated_at TIMESTAMP,
			entry_order_id TEXT,
			reservation_id TEXT,
			current_price DOUBLE,
			unrealized_pnl DOUBLE,
			close_order_id TEXT,
			close_reason TEXT,
			exit_price DOUBLE,
			realized_pnl DOUBLE,
			fee DOUBLE DEFAULT 0,
			closed_at TIMESTAMP
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(errors.ErrCodePersistence, "failed to create tables", err)
		}
	}

	stored, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	if stored == "" {
		return s.setSchemaVersion(ctx, version.SchemaVersion)
	}

	if err := version.CheckSchemaCompatibility(version.SchemaVersion, stored); err != nil {
		return err
	}

	if version.NeedsMigration(version.SchemaVersion, stored) {
		return s.migrate(ctx, stored)
	}

	return nil
}

// migrate brings an older schema forward. 1.0.x stores lack the fee column.
func (s *DuckDB) migrate(ctx context.Context, from string) error {
	s.log.Info("Migrating schema", zap.String("from", from), zap.String("to", version.SchemaVersion))

	if _, err := s.db.ExecContext(ctx, `ALTER TABLE positions ADD COLUMN IF NOT EXISTS fee DOUBLE DEFAULT 0`); err != nil {
		return errors.Wrap(errors.ErrCodePersistence, "failed to migrate positions table", err)
	}

	return s.setSchemaVersion(ctx, version.SchemaVersion)
}

func (s *DuckDB) schemaVersion(ctx context.Context) (string, error) {
	var value string

	err := s.sq.Select("value").From("meta").Where(squirrel.Eq{"key": schemaVersionKey}).
		RunWith(s.db).QueryRowContext(ctx).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}

	if err != nil {
		return "", errors.Wrap(errors.ErrCodePersistence, "failed to read schema version", err)
	}

	return value, nil
}

func (s *DuckDB) setSchemaVersion(ctx context.Context, v string) error {
	_, err := s.sq.Insert("meta").Options("OR REPLACE").
		Columns("key", "value").Values(schemaVersionKey, v).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistence, "failed to write schema version", err)
	}

	return nil
}

// SchemaVersion returns the version recorded in the store.
func (s *DuckDB) SchemaVersion(ctx context.Context) (string, error) {
	return s.schemaVersion(ctx)
}

func (s *DuckDB) SaveAgent(ctx context.Context, record AgentRecord) error {
	if record.Config.ID == "" {
		return errors.New(errors.ErrCodeInvalidParameter, "agent record has no id")
	}

	config, err := json.Marshal(record.Config)
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistence, "failed to encode agent config", err)
	}

	metrics, err := json.Marshal(record.Metrics)
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistence, "failed to encode agent metrics", err)
	}

	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = s.sq.Insert("agents").Options("OR REPLACE").
		Columns("id", "name", "config", "state", "metrics", "updated_at").
		Values(record.Config.ID, record.Config.Name, string(config), string(record.State), string(metrics), updatedAt).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return errors.Wrapf(errors.ErrCodePersistence, err, "failed to save agent %s", record.Config.ID)
	}

	return nil
}

func (s *DuckDB) DeleteAgent(ctx context.Context, id string) error {
	_, err := s.sq.Delete("agents").Where(squirrel.Eq{"id": id}).RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return errors.Wrapf(errors.ErrCodePersistence, err, "failed to delete agent %s", id)
	}

	return nil
}

func (s *DuckDB) LoadAgents(ctx context.Context) ([]AgentRecord, error) {
	rows, err := s.sq.Select("id", "name", "config", "state", "metrics", "updated_at").
		From("agents").OrderBy("name").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePersistence, "failed to load agents", err)
	}
	defer rows.Close()

	var records []AgentRecord

	for rows.Next() {
		var (
			id, name, config, state, metrics string
			updatedAt                        sql.NullTime
		)

		if err := rows.Scan(&id, &name, &config, &state, &metrics, &updatedAt); err != nil {
			return nil, errors.Wrap(errors.ErrCodePersistence, "failed to scan agent", err)
		}

		records = append(records, decodeAgent(id, name, config, state, metrics, updatedAt.Time))
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodePersistence, "failed to iterate agents", err)
	}

	return records, nil
}

func decodeAgent(id, name, config, state, metrics string, updatedAt time.Time) AgentRecord {
	record := AgentRecord{
		State:     types.AgentState(state),
		UpdatedAt: updatedAt,
	}

	if err := json.Unmarshal([]byte(config), &record.Config); err != nil {
		record.Config = types.AgentConfig{ID: id, Name: name}
		record.Err = errors.Wrapf(errors.ErrCodeRecordCorrupt, err, "agent %s has an unreadable config", id)

		return record
	}

	if err := json.Unmarshal([]byte(metrics), &record.Metrics); err != nil {
		record.Err = errors.Wrapf(errors.ErrCodeRecordCorrupt, err, "agent %s has unreadable metrics", id)
	}

	record.Config.ID = id

	return record
}

func (s *DuckDB) SavePosition(ctx context.Context, p types.Position) error {
	if p.ID == "" {
		return errors.New(errors.ErrCodeInvalidParameter, "position has no id")
	}

	_, err := s.sq.Insert("positions").Options("OR REPLACE").
		Columns(positionColumns...).
		Values(
			p.ID, p.AgentID, p.Symbol, string(p.Side), p.EntryPrice, p.Size, p.Stake, p.Leverage,
			p.StopLoss, p.TakeProfit, string(p.Status), p.OpenedAt, nullTime(p.UpdatedAt), p.EntryOrderID,
			p.ReservationID, p.CurrentPrice, p.UnrealizedPnL, p.CloseOrderID, string(p.CloseReason),
			p.ExitPrice, p.RealizedPnL, p.Fee, nullTime(p.ClosedAt),
		).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return errors.Wrapf(errors.ErrCodePersistence, err, "failed to save position %s", p.ID)
	}

	return nil
}

func (s *DuckDB) LoadActivePositions(ctx context.Context) ([]types.Position, error) {
	query := s.sq.Select(positionColumns...).From("positions").
		Where(squirrel.NotEq{"status": string(types.PositionStatusClosed)}).
		OrderBy("opened_at")

	return s.queryPositions(ctx, query)
}

func (s *DuckDB) QueryClosedPositions(ctx context.Context, agentID string, filter types.PositionFilter) ([]types.Position, error) {
	query := s.sq.Select(positionColumns...).From("positions").
		Where(squirrel.Eq{"status": string(types.PositionStatusClosed)})

	if agentID != "" {
		query = query.Where(squirrel.Eq{"agent_id": agentID})
	}

	if filter.Symbol != "" {
		query = query.Where(squirrel.Eq{"symbol": filter.Symbol})
	}

	if !filter.From.IsZero() {
		query = query.Where(squirrel.GtOrEq{"closed_at": filter.From})
	}

	if !filter.To.IsZero() {
		query = query.Where(squirrel.Lt{"closed_at": filter.To})
	}

	switch filter.Outcome {
	case types.PositionOutcomeWin:
		query = query.Where(squirrel.Gt{"realized_pnl": 0})
	case types.PositionOutcomeLoss:
		query = query.Where(squirrel.LtOrEq{"realized_pnl": 0})
	case types.PositionOutcomeAll:
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "unknown outcome filter %q", filter.Outcome)
	}

	query = query.OrderBy("closed_at DESC", "id DESC")

	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	return s.queryPositions(ctx, query)
}

func (s *DuckDB) queryPositions(ctx context.Context, query squirrel.SelectBuilder) ([]types.Position, error) {
	rows, err := query.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePersistence, "failed to query positions", err)
	}
	defer rows.Close()

	var positions []types.Position

	for rows.Next() {
		var (
			p                          types.Position
			side, status, closeReason  string
			updatedAt, closedAt        sql.NullTime
			entryOrderID, closeOrderID sql.NullString
			reservationID              sql.NullString
		)

		err := rows.Scan(
			&p.ID, &p.AgentID, &p.Symbol, &side, &p.EntryPrice, &p.Size, &p.Stake, &p.Leverage,
			&p.StopLoss, &p.TakeProfit, &status, &p.OpenedAt, &updatedAt, &entryOrderID,
			&reservationID, &p.CurrentPrice, &p.UnrealizedPnL, &closeOrderID, &closeReason,
			&p.ExitPrice, &p.RealizedPnL, &p.Fee, &closedAt,
		)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodePersistence, "failed to scan position", err)
		}

		p.Side = types.PositionType(side)
		p.Status = types.PositionStatus(status)
		p.CloseReason = types.CloseReason(closeReason)
		p.UpdatedAt = updatedAt.Time
		p.ClosedAt = closedAt.Time
		p.EntryOrderID = entryOrderID.String
		p.CloseOrderID = closeOrderID.String
		p.ReservationID = reservationID.String
		p.OpenedAt = p.OpenedAt.UTC()

		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodePersistence, "failed to iterate positions", err)
	}

	return positions, nil
}

// Close closes the database.
func (s *DuckDB) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(errors.ErrCodePersistence, "failed to close database", err)
	}

	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

var _ Store = (*DuckDB)(nil)
