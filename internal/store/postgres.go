package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/substancewiki/catalog-cli/internal/db"
	"github.com/substancewiki/catalog-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS substances (
	id               BIGSERIAL PRIMARY KEY,
	slug             TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	category         TEXT NOT NULL DEFAULT '',
	drug_class       TEXT NOT NULL DEFAULT '',
	wikidata_id      TEXT NOT NULL DEFAULT '',
	pubchem_cid      BIGINT NOT NULL DEFAULT 0,
	chemical_formula TEXT NOT NULL DEFAULT '',
	molecular_weight DOUBLE PRECISION NOT NULL DEFAULT 0,
	iupac_name       TEXT NOT NULL DEFAULT '',
	enrichment       JSONB,
	confidence       INT NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'draft',
	extra            JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS substance_aliases (
	id           BIGSERIAL PRIMARY KEY,
	substance_id BIGINT NOT NULL REFERENCES substances(id) ON DELETE CASCADE,
	slug         TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL,
	source       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sync_consumers (
	id           BIGSERIAL PRIMARY KEY,
	name         TEXT NOT NULL UNIQUE,
	entity_type  TEXT NOT NULL,
	last_cursor  TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
	last_sync_at TIMESTAMPTZ,
	config       JSONB
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id            BIGSERIAL PRIMARY KEY,
	consumer_id   BIGINT NOT NULL REFERENCES sync_consumers(id),
	status        TEXT NOT NULL DEFAULT 'running',
	started_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at  TIMESTAMPTZ,
	cursor_before TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
	cursor_after  TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
	processed     INT NOT NULL DEFAULT 0,
	failed        INT NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sync_errors (
	id          BIGSERIAL PRIMARY KEY,
	run_id      BIGINT NOT NULL REFERENCES sync_runs(id),
	slug        TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_substances_updated_at ON substances (updated_at);
CREATE INDEX IF NOT EXISTS idx_substances_name_lower ON substances (lower(name));
CREATE INDEX IF NOT EXISTS idx_sync_runs_consumer ON sync_runs (consumer_id, started_at DESC);
`

// Migrate applies the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const substanceColumns = `id, slug, name, description, category, drug_class, wikidata_id,
	pubchem_cid, chemical_formula, molecular_weight, iupac_name, enrichment,
	confidence, status, extra, created_at, updated_at`

func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || err.Error() == "no rows in result set"
}

func scanSubstance(row pgx.Row) (*model.Substance, error) {
	var sub model.Substance
	var enrichmentJSON, extraJSON []byte
	err := row.Scan(
		&sub.ID, &sub.Slug, &sub.Name, &sub.Description, &sub.Category,
		&sub.DrugClass, &sub.WikidataID, &sub.PubChemCID, &sub.ChemicalFormula,
		&sub.MolecularWeight, &sub.IUPACName, &enrichmentJSON,
		&sub.Confidence, &sub.Status, &extraJSON, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if enrichmentJSON != nil {
		_ = json.Unmarshal(enrichmentJSON, &sub.Enrichment)
	}
	if extraJSON != nil {
		_ = json.Unmarshal(extraJSON, &sub.Extra)
	}
	return &sub, nil
}

func marshalJSONB(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// GetBySlug returns the substance with the exact slug, or nil.
func (s *PostgresStore) GetBySlug(ctx context.Context, slug string) (*model.Substance, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+substanceColumns+` FROM substances WHERE slug = $1`, slug)
	sub, err := scanSubstance(row)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get substance by slug %s", slug)
	}
	return sub, nil
}

// GetByName returns the substance whose canonical name matches
// case-insensitively, or nil.
func (s *PostgresStore) GetByName(ctx context.Context, name string) (*model.Substance, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+substanceColumns+` FROM substances WHERE lower(name) = lower($1)`, name)
	sub, err := scanSubstance(row)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get substance by name %s", name)
	}
	return sub, nil
}

// GetByAlias returns the substance owning the alias slug, or nil.
func (s *PostgresStore) GetByAlias(ctx context.Context, aliasSlug string) (*model.Substance, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+substanceColumns+` FROM substances
		 WHERE id = (SELECT substance_id FROM substance_aliases WHERE slug = $1)`, aliasSlug)
	sub, err := scanSubstance(row)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get substance by alias %s", aliasSlug)
	}
	return sub, nil
}

// Insert writes a new substance row and fills in ID and timestamps.
func (s *PostgresStore) Insert(ctx context.Context, sub *model.Substance) error {
	enrichmentJSON, err := marshalJSONB(sub.Enrichment)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal enrichment")
	}
	extraJSON, err := marshalJSONB(sub.Extra)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal extra")
	}
	if sub.Status == "" {
		sub.Status = model.StatusDraft
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO substances (slug, name, description, category, drug_class,
			wikidata_id, pubchem_cid, chemical_formula, molecular_weight, iupac_name,
			enrichment, confidence, status, extra)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING id, created_at, updated_at`,
		sub.Slug, sub.Name, sub.Description, sub.Category, sub.DrugClass,
		sub.WikidataID, sub.PubChemCID, sub.ChemicalFormula, sub.MolecularWeight,
		sub.IUPACName, enrichmentJSON, sub.Confidence, sub.Status, extraJSON,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert substance %s", sub.Slug)
	}
	return nil
}

// UpdateEnrichment rewrites provider-derived columns. Editorial columns are
// included only when includeEditorial is true.
func (s *PostgresStore) UpdateEnrichment(ctx context.Context, sub *model.Substance, includeEditorial bool) error {
	enrichmentJSON, err := marshalJSONB(sub.Enrichment)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal enrichment")
	}
	extraJSON, err := marshalJSONB(sub.Extra)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal extra")
	}

	if includeEditorial {
		_, err = s.pool.Exec(ctx,
			`UPDATE substances SET wikidata_id = $1, pubchem_cid = $2,
				chemical_formula = $3, molecular_weight = $4, iupac_name = $5,
				enrichment = $6, confidence = $7, extra = $8,
				description = $9, category = $10, drug_class = $11,
				updated_at = now()
			 WHERE id = $12`,
			sub.WikidataID, sub.PubChemCID, sub.ChemicalFormula, sub.MolecularWeight,
			sub.IUPACName, enrichmentJSON, sub.Confidence, extraJSON,
			sub.Description, sub.Category, sub.DrugClass, sub.ID)
	} else {
		_, err = s.pool.Exec(ctx,
			`UPDATE substances SET wikidata_id = $1, pubchem_cid = $2,
				chemical_formula = $3, molecular_weight = $4, iupac_name = $5,
				enrichment = $6, confidence = $7, extra = $8, updated_at = now()
			 WHERE id = $9`,
			sub.WikidataID, sub.PubChemCID, sub.ChemicalFormula, sub.MolecularWeight,
			sub.IUPACName, enrichmentJSON, sub.Confidence, extraJSON, sub.ID)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: update substance %d", sub.ID)
	}
	return nil
}

// InsertAliases writes alias rows, tolerating duplicates.
func (s *PostgresStore) InsertAliases(ctx context.Context, substanceID int64, aliases []model.Alias) (int64, error) {
	rows := make([][]any, 0, len(aliases))
	for _, a := range aliases {
		rows = append(rows, []any{substanceID, a.Slug, a.Name, a.Source})
	}
	return db.BulkInsertIgnore(ctx, s.pool, db.InsertIgnoreConfig{
		Table:        "substance_aliases",
		Columns:      []string{"substance_id", "slug", "name", "source"},
		ConflictKeys: []string{"slug"},
	}, rows)
}

// GetAllowedColumns introspects the live column set of the substances table.
func (s *PostgresStore) GetAllowedColumns(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_name = 'substances'`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get allowed columns")
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan column name")
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// FetchUpdatedSince returns up to limit records with update timestamps
// strictly after the cursor. An empty status matches any editorial state.
func (s *PostgresStore) FetchUpdatedSince(ctx context.Context, cursor time.Time, status model.SubstanceStatus, limit int) ([]model.Substance, error) {
	query := `SELECT ` + substanceColumns + ` FROM substances
		 WHERE updated_at > $1`
	args := []any{cursor}
	if status != "" {
		query += ` AND status = $2
		 ORDER BY updated_at ASC LIMIT $3`
		args = append(args, status, limit)
	} else {
		query += ` ORDER BY updated_at ASC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch updated since")
	}
	defer rows.Close()

	var out []model.Substance
	for rows.Next() {
		sub, err := scanSubstance(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan substance page")
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

// UpsertReplica writes a mirrored record keyed by slug, preserving the
// source's update timestamp so version checks stay meaningful.
func (s *PostgresStore) UpsertReplica(ctx context.Context, sub *model.Substance) error {
	enrichmentJSON, err := marshalJSONB(sub.Enrichment)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal enrichment")
	}
	extraJSON, err := marshalJSONB(sub.Extra)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal extra")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO substances (slug, name, description, category, drug_class,
			wikidata_id, pubchem_cid, chemical_formula, molecular_weight, iupac_name,
			enrichment, confidence, status, extra, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description,
			category = EXCLUDED.category, drug_class = EXCLUDED.drug_class,
			wikidata_id = EXCLUDED.wikidata_id, pubchem_cid = EXCLUDED.pubchem_cid,
			chemical_formula = EXCLUDED.chemical_formula,
			molecular_weight = EXCLUDED.molecular_weight,
			iupac_name = EXCLUDED.iupac_name, enrichment = EXCLUDED.enrichment,
			confidence = EXCLUDED.confidence, status = EXCLUDED.status,
			extra = EXCLUDED.extra, updated_at = EXCLUDED.updated_at`,
		sub.Slug, sub.Name, sub.Description, sub.Category, sub.DrugClass,
		sub.WikidataID, sub.PubChemCID, sub.ChemicalFormula, sub.MolecularWeight,
		sub.IUPACName, enrichmentJSON, sub.Confidence, sub.Status, extraJSON,
		sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert replica %s", sub.Slug)
	}
	return nil
}

// GetOrCreateConsumer fetches the named consumer state, creating it lazily
// on first use.
func (s *PostgresStore) GetOrCreateConsumer(ctx context.Context, name, entityType string) (*model.SyncConsumerState, error) {
	state, err := s.scanConsumer(ctx, name)
	if err != nil {
		return nil, err
	}
	if state != nil {
		return state, nil
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sync_consumers (name, entity_type) VALUES ($1, $2)
		 ON CONFLICT (name) DO NOTHING`,
		name, entityType)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: create consumer %s", name)
	}
	state, err = s.scanConsumer(ctx, name)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, eris.Errorf("postgres: consumer %s missing after create", name)
	}
	return state, nil
}

func (s *PostgresStore) scanConsumer(ctx context.Context, name string) (*model.SyncConsumerState, error) {
	var state model.SyncConsumerState
	var configJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, entity_type, last_cursor, last_sync_at, config
		 FROM sync_consumers WHERE name = $1`, name).
		Scan(&state.ID, &state.Name, &state.EntityType, &state.LastCursor,
			&state.LastSyncAt, &configJSON)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get consumer %s", name)
	}
	if configJSON != nil {
		_ = json.Unmarshal(configJSON, &state.Config)
	}
	return &state, nil
}

// ListConsumers returns every registered consumer ordered by name.
func (s *PostgresStore) ListConsumers(ctx context.Context) ([]model.SyncConsumerState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, entity_type, last_cursor, last_sync_at, config
		 FROM sync_consumers ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list consumers")
	}
	defer rows.Close()

	var states []model.SyncConsumerState
	for rows.Next() {
		var state model.SyncConsumerState
		var configJSON []byte
		if err := rows.Scan(&state.ID, &state.Name, &state.EntityType,
			&state.LastCursor, &state.LastSyncAt, &configJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan consumer")
		}
		if configJSON != nil {
			_ = json.Unmarshal(configJSON, &state.Config)
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list consumers")
	}
	return states, nil
}

// UpdateConsumerCursor persists a consumer's cursor position.
func (s *PostgresStore) UpdateConsumerCursor(ctx context.Context, consumerID int64, cursor time.Time, syncAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sync_consumers SET last_cursor = $1, last_sync_at = $2 WHERE id = $3`,
		cursor, syncAt, consumerID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update consumer cursor %d", consumerID)
	}
	return nil
}

// CreateSyncRun opens a run record in status running.
func (s *PostgresStore) CreateSyncRun(ctx context.Context, consumerID int64, cursorBefore time.Time) (*model.SyncRun, error) {
	run := &model.SyncRun{
		ConsumerID:   consumerID,
		Status:       model.SyncRunRunning,
		CursorBefore: cursorBefore,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sync_runs (consumer_id, status, cursor_before)
		 VALUES ($1, $2, $3) RETURNING id, started_at`,
		consumerID, run.Status, cursorBefore).
		Scan(&run.ID, &run.StartedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: create sync run for consumer %d", consumerID)
	}
	return run, nil
}

// CompleteSyncRun closes a run record with its final counts and status.
func (s *PostgresStore) CompleteSyncRun(ctx context.Context, run *model.SyncRun) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sync_runs SET status = $1, completed_at = now(), cursor_after = $2,
			processed = $3, failed = $4, error = $5
		 WHERE id = $6`,
		run.Status, run.CursorAfter, run.Processed, run.Failed, run.Error, run.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete sync run %d", run.ID)
	}
	return nil
}

// InsertSyncError appends a per-record error to a run.
func (s *PostgresStore) InsertSyncError(ctx context.Context, runID int64, slug, message string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_errors (run_id, slug, message) VALUES ($1, $2, $3)`,
		runID, slug, message)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert sync error for run %d", runID)
	}
	return nil
}
