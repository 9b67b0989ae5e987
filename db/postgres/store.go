// Package postgres implements the cost history, prediction and suggestion
// stores plus the resource inventory on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"cloudguard/pkg/costs"
)

// Store wraps one connection pool. It implements costs.HistoryStore,
// costs.PredictionStore, costs.SuggestionStore and costs.ResourceInventory.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore opens a connection pool for the DSN. Connectivity is verified
// separately through Ping so callers control the timeout.
func NewStore(dsn string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db, log: log}, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cost_history (
			id BIGSERIAL PRIMARY KEY,
			organization_id BIGINT NOT NULL,
			date DATE NOT NULL,
			amount NUMERIC(14,4) NOT NULL CHECK (amount >= 0),
			service_category TEXT NOT NULL DEFAULT 'Unknown',
			region TEXT,
			usage_type TEXT,
			usage_amount NUMERIC(14,4),
			usage_unit TEXT,
			resource_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cost_history_org_date
			ON cost_history (organization_id, date)`,
		`CREATE TABLE IF NOT EXISTS cost_predictions (
			run_id UUID NOT NULL,
			organization_id BIGINT NOT NULL,
			predicted_date DATE NOT NULL,
			predicted_amount NUMERIC(14,4) NOT NULL CHECK (predicted_amount >= 0),
			confidence_interval NUMERIC(14,4) NOT NULL CHECK (confidence_interval >= 0),
			model TEXT NOT NULL,
			prediction_period TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cost_predictions_org_run
			ON cost_predictions (organization_id, run_id)`,
		`CREATE TABLE IF NOT EXISTS optimization_suggestions (
			id UUID PRIMARY KEY,
			organization_id BIGINT NOT NULL,
			resource_id TEXT,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			suggested_action TEXT NOT NULL,
			potential_savings NUMERIC(14,4) NOT NULL CHECK (potential_savings >= 0),
			confidence NUMERIC(4,3) NOT NULL,
			implementation_difficulty TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS resources (
			id TEXT PRIMARY KEY,
			organization_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			region TEXT,
			tags JSONB NOT NULL DEFAULT '{}',
			cost NUMERIC(14,4) NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}

// =============================================================================
// COST HISTORY
// =============================================================================

// Append inserts records one by one. A failing row is logged and skipped so
// one malformed record never aborts an otherwise valid batch; the returned
// count is the number of rows actually stored.
func (s *Store) Append(ctx context.Context, records []costs.CostRecord) (int, error) {
	const q = `
		INSERT INTO cost_history (
			organization_id, date, amount, service_category, region,
			usage_type, usage_amount, usage_unit, resource_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	inserted := 0
	for _, r := range records {
		_, err := s.db.ExecContext(ctx, q,
			r.OrganizationID,
			r.Date,
			r.Amount,
			r.ServiceCategory,
			nullString(r.Region),
			nullString(r.UsageType),
			nullFloat(r.UsageAmount),
			nullString(r.UsageUnit),
			nullString(r.ResourceID),
		)
		if err != nil {
			s.log.Warn().Err(err).
				Int64("organization_id", r.OrganizationID).
				Time("date", r.Date).
				Msg("skipping cost record insert")
			continue
		}
		inserted++
	}
	return inserted, nil
}

// QueryRange returns the organization's records inside the inclusive range,
// ordered by date.
func (s *Store) QueryRange(ctx context.Context, orgID int64, r costs.DateRange) ([]costs.CostRecord, error) {
	const q = `
		SELECT date, amount, service_category, region, usage_type,
		       usage_amount, usage_unit, resource_id, created_at
		FROM cost_history
		WHERE organization_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date`

	rows, err := s.db.QueryContext(ctx, q, orgID, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("querying cost history: %w", err)
	}
	defer rows.Close()

	var records []costs.CostRecord
	for rows.Next() {
		var (
			rec         costs.CostRecord
			region      sql.NullString
			usageType   sql.NullString
			usageAmount sql.NullFloat64
			usageUnit   sql.NullString
			resourceID  sql.NullString
		)
		if err := rows.Scan(&rec.Date, &rec.Amount, &rec.ServiceCategory,
			&region, &usageType, &usageAmount, &usageUnit, &resourceID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning cost record: %w", err)
		}
		rec.OrganizationID = orgID
		rec.Date = costs.Day(rec.Date)
		rec.Region = region.String
		rec.UsageType = usageType.String
		rec.UsageAmount = usageAmount.Float64
		rec.UsageUnit = usageUnit.String
		rec.ResourceID = resourceID.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// PREDICTIONS
// =============================================================================

// SaveRun persists one forecast batch. Earlier runs stay in place; readers
// pick the latest run_id, so a batch is superseded rather than mutated.
func (s *Store) SaveRun(ctx context.Context, predictions []costs.CostPrediction) error {
	const q = `
		INSERT INTO cost_predictions (
			run_id, organization_id, predicted_date, predicted_amount,
			confidence_interval, model, prediction_period
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, p := range predictions {
		if _, err := s.db.ExecContext(ctx, q,
			p.RunID, p.OrganizationID, p.PredictedDate, p.PredictedAmount,
			p.ConfidenceInterval, p.Model, string(p.Period),
		); err != nil {
			return fmt.Errorf("saving prediction run %s: %w", p.RunID, err)
		}
	}
	return nil
}

// =============================================================================
// SUGGESTIONS
// =============================================================================

// Save persists freshly generated suggestions.
func (s *Store) Save(ctx context.Context, suggestions []costs.OptimizationSuggestion) error {
	const q = `
		INSERT INTO optimization_suggestions (
			id, organization_id, resource_id, title, description,
			suggested_action, potential_savings, confidence,
			implementation_difficulty, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for _, sg := range suggestions {
		if _, err := s.db.ExecContext(ctx, q,
			sg.ID, sg.OrganizationID, nullString(sg.ResourceID), sg.Title,
			sg.Description, string(sg.SuggestedAction), sg.PotentialSavings,
			sg.Confidence, string(sg.Difficulty), string(sg.Status),
		); err != nil {
			return fmt.Errorf("saving suggestion %s: %w", sg.ID, err)
		}
	}
	return nil
}

// List returns the organization's suggestions ordered by descending
// potential savings.
func (s *Store) List(ctx context.Context, orgID int64) ([]costs.OptimizationSuggestion, error) {
	const q = `
		SELECT id, resource_id, title, description, suggested_action,
		       potential_savings, confidence, implementation_difficulty,
		       status, created_at
		FROM optimization_suggestions
		WHERE organization_id = $1
		ORDER BY potential_savings DESC`

	rows, err := s.db.QueryContext(ctx, q, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing suggestions: %w", err)
	}
	defer rows.Close()

	var out []costs.OptimizationSuggestion
	for rows.Next() {
		var (
			sg         costs.OptimizationSuggestion
			resourceID sql.NullString
		)
		if err := rows.Scan(&sg.ID, &resourceID, &sg.Title, &sg.Description,
			&sg.SuggestedAction, &sg.PotentialSavings, &sg.Confidence,
			&sg.Difficulty, &sg.Status, &sg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning suggestion: %w", err)
		}
		sg.OrganizationID = orgID
		sg.ResourceID = resourceID.String
		out = append(out, sg)
	}
	return out, rows.Err()
}

// UpdateStatus applies a pending-only transition. The pending check lives in
// the UPDATE predicate so concurrent transitions cannot race past it.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status costs.SuggestionStatus) error {
	if status != costs.StatusApplied && status != costs.StatusDismissed {
		return fmt.Errorf("%w: pending -> %s", costs.ErrInvalidTransition, status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE optimization_suggestions
		SET status = $1
		WHERE id = $2 AND status = 'pending'`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("updating suggestion status: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM optimization_suggestions WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking suggestion: %w", err)
		}
		if !exists {
			return costs.ErrNotFound
		}
		return fmt.Errorf("%w: suggestion %s is no longer pending", costs.ErrInvalidTransition, id)
	}
	return nil
}

// =============================================================================
// RESOURCE INVENTORY
// =============================================================================

// ListResources reads the organization's resource snapshots. The inventory
// itself is maintained by the provider scan pipeline; this store only reads
// the durable copy.
func (s *Store) ListResources(ctx context.Context, orgID int64) ([]costs.Resource, error) {
	const q = `
		SELECT id, name, type, status, region, tags, cost
		FROM resources
		WHERE organization_id = $1
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}
	defer rows.Close()

	var out []costs.Resource
	for rows.Next() {
		var (
			res     costs.Resource
			region  sql.NullString
			rawTags []byte
		)
		if err := rows.Scan(&res.ID, &res.Name, &res.Type, &res.Status,
			&region, &rawTags, &res.Cost); err != nil {
			return nil, fmt.Errorf("scanning resource: %w", err)
		}
		res.OrganizationID = orgID
		res.Region = region.String
		res.Tags = map[string]string{}
		if len(rawTags) > 0 {
			if err := json.Unmarshal(rawTags, &res.Tags); err != nil {
				return nil, fmt.Errorf("decoding resource tags for %s: %w", res.ID, err)
			}
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: f != 0}
}
