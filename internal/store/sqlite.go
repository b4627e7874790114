package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/substancewiki/catalog-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for
// local development and the derived-store side of sync testing.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS substances (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	slug             TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	category         TEXT NOT NULL DEFAULT '',
	drug_class       TEXT NOT NULL DEFAULT '',
	wikidata_id      TEXT NOT NULL DEFAULT '',
	pubchem_cid      INTEGER NOT NULL DEFAULT 0,
	chemical_formula TEXT NOT NULL DEFAULT '',
	molecular_weight REAL NOT NULL DEFAULT 0,
	iupac_name       TEXT NOT NULL DEFAULT '',
	enrichment       TEXT,
	confidence       INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'draft',
	extra            TEXT,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS substance_aliases (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	substance_id INTEGER NOT NULL REFERENCES substances(id) ON DELETE CASCADE,
	slug         TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL,
	source       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sync_consumers (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	name         TEXT NOT NULL UNIQUE,
	entity_type  TEXT NOT NULL,
	last_cursor  DATETIME NOT NULL DEFAULT '1970-01-01 00:00:00',
	last_sync_at DATETIME,
	config       TEXT
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	consumer_id   INTEGER NOT NULL REFERENCES sync_consumers(id),
	status        TEXT NOT NULL DEFAULT 'running',
	started_at    DATETIME NOT NULL,
	completed_at  DATETIME,
	cursor_before DATETIME NOT NULL DEFAULT '1970-01-01 00:00:00',
	cursor_after  DATETIME NOT NULL DEFAULT '1970-01-01 00:00:00',
	processed     INTEGER NOT NULL DEFAULT 0,
	failed        INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sync_errors (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      INTEGER NOT NULL REFERENCES sync_runs(id),
	slug        TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL,
	occurred_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_substances_updated_at ON substances (updated_at);
`

// Migrate applies the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) scanSubstanceRow(row *sql.Row) (*model.Substance, error) {
	var sub model.Substance
	var enrichmentJSON, extraJSON sql.NullString
	err := row.Scan(
		&sub.ID, &sub.Slug, &sub.Name, &sub.Description, &sub.Category,
		&sub.DrugClass, &sub.WikidataID, &sub.PubChemCID, &sub.ChemicalFormula,
		&sub.MolecularWeight, &sub.IUPACName, &enrichmentJSON,
		&sub.Confidence, &sub.Status, &extraJSON, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if enrichmentJSON.Valid && enrichmentJSON.String != "" {
		_ = json.Unmarshal([]byte(enrichmentJSON.String), &sub.Enrichment)
	}
	if extraJSON.Valid && extraJSON.String != "" {
		_ = json.Unmarshal([]byte(extraJSON.String), &sub.Extra)
	}
	return &sub, nil
}

func marshalText(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// GetBySlug returns the substance with the exact slug, or nil.
func (s *SQLiteStore) GetBySlug(ctx context.Context, slug string) (*model.Substance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+substanceColumns+` FROM substances WHERE slug = ?`, slug)
	sub, err := s.scanSubstanceRow(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get substance by slug %s", slug)
	}
	return sub, nil
}

// GetByName returns the substance whose canonical name matches
// case-insensitively, or nil.
func (s *SQLiteStore) GetByName(ctx context.Context, name string) (*model.Substance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+substanceColumns+` FROM substances WHERE lower(name) = lower(?)`, name)
	sub, err := s.scanSubstanceRow(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get substance by name %s", name)
	}
	return sub, nil
}

// GetByAlias returns the substance owning the alias slug, or nil.
func (s *SQLiteStore) GetByAlias(ctx context.Context, aliasSlug string) (*model.Substance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+substanceColumns+` FROM substances
		 WHERE id = (SELECT substance_id FROM substance_aliases WHERE slug = ?)`, aliasSlug)
	sub, err := s.scanSubstanceRow(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get substance by alias %s", aliasSlug)
	}
	return sub, nil
}

// Insert writes a new substance row and fills in ID and timestamps.
func (s *SQLiteStore) Insert(ctx context.Context, sub *model.Substance) error {
	enrichmentJSON, err := marshalText(sub.Enrichment)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal enrichment")
	}
	extraJSON, err := marshalText(sub.Extra)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal extra")
	}
	if sub.Status == "" {
		sub.Status = model.StatusDraft
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO substances (slug, name, description, category, drug_class,
			wikidata_id, pubchem_cid, chemical_formula, molecular_weight, iupac_name,
			enrichment, confidence, status, extra, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.Slug, sub.Name, sub.Description, sub.Category, sub.DrugClass,
		sub.WikidataID, sub.PubChemCID, sub.ChemicalFormula, sub.MolecularWeight,
		sub.IUPACName, enrichmentJSON, sub.Confidence, sub.Status, extraJSON,
		now, now)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert substance %s", sub.Slug)
	}
	sub.ID, err = res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: last insert id")
	}
	return nil
}

// UpdateEnrichment rewrites provider-derived columns. Editorial columns are
// included only when includeEditorial is true.
func (s *SQLiteStore) UpdateEnrichment(ctx context.Context, sub *model.Substance, includeEditorial bool) error {
	enrichmentJSON, err := marshalText(sub.Enrichment)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal enrichment")
	}
	extraJSON, err := marshalText(sub.Extra)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal extra")
	}
	now := time.Now().UTC()

	if includeEditorial {
		_, err = s.db.ExecContext(ctx,
			`UPDATE substances SET wikidata_id = ?, pubchem_cid = ?,
				chemical_formula = ?, molecular_weight = ?, iupac_name = ?,
				enrichment = ?, confidence = ?, extra = ?,
				description = ?, category = ?, drug_class = ?, updated_at = ?
			 WHERE id = ?`,
			sub.WikidataID, sub.PubChemCID, sub.ChemicalFormula, sub.MolecularWeight,
			sub.IUPACName, enrichmentJSON, sub.Confidence, extraJSON,
			sub.Description, sub.Category, sub.DrugClass, now, sub.ID)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE substances SET wikidata_id = ?, pubchem_cid = ?,
				chemical_formula = ?, molecular_weight = ?, iupac_name = ?,
				enrichment = ?, confidence = ?, extra = ?, updated_at = ?
			 WHERE id = ?`,
			sub.WikidataID, sub.PubChemCID, sub.ChemicalFormula, sub.MolecularWeight,
			sub.IUPACName, enrichmentJSON, sub.Confidence, extraJSON, now, sub.ID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: update substance %d", sub.ID)
	}
	return nil
}

// InsertAliases writes alias rows, tolerating duplicates.
func (s *SQLiteStore) InsertAliases(ctx context.Context, substanceID int64, aliases []model.Alias) (int64, error) {
	var total int64
	for _, a := range aliases {
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO substance_aliases (substance_id, slug, name, source)
			 VALUES (?, ?, ?, ?)`,
			substanceID, a.Slug, a.Name, a.Source)
		if err != nil {
			return total, eris.Wrapf(err, "sqlite: insert alias %s", a.Slug)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}

// GetAllowedColumns introspects the live column set of the substances table.
func (s *SQLiteStore) GetAllowedColumns(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `PRAGMA table_info(substances)`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get allowed columns")
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan column info")
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// FetchUpdatedSince returns up to limit records with update timestamps
// strictly after the cursor. An empty status matches any editorial state.
func (s *SQLiteStore) FetchUpdatedSince(ctx context.Context, cursor time.Time, status model.SubstanceStatus, limit int) ([]model.Substance, error) {
	query := `SELECT ` + substanceColumns + ` FROM substances
		 WHERE updated_at > ?`
	args := []any{cursor}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch updated since")
	}
	defer rows.Close()

	var out []model.Substance
	for rows.Next() {
		var sub model.Substance
		var enrichmentJSON, extraJSON sql.NullString
		err := rows.Scan(
			&sub.ID, &sub.Slug, &sub.Name, &sub.Description, &sub.Category,
			&sub.DrugClass, &sub.WikidataID, &sub.PubChemCID, &sub.ChemicalFormula,
			&sub.MolecularWeight, &sub.IUPACName, &enrichmentJSON,
			&sub.Confidence, &sub.Status, &extraJSON, &sub.CreatedAt, &sub.UpdatedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan substance page")
		}
		if enrichmentJSON.Valid && enrichmentJSON.String != "" {
			_ = json.Unmarshal([]byte(enrichmentJSON.String), &sub.Enrichment)
		}
		if extraJSON.Valid && extraJSON.String != "" {
			_ = json.Unmarshal([]byte(extraJSON.String), &sub.Extra)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// UpsertReplica writes a mirrored record keyed by slug, preserving the
// source's update timestamp.
func (s *SQLiteStore) UpsertReplica(ctx context.Context, sub *model.Substance) error {
	enrichmentJSON, err := marshalText(sub.Enrichment)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal enrichment")
	}
	extraJSON, err := marshalText(sub.Extra)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal extra")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO substances (slug, name, description, category, drug_class,
			wikidata_id, pubchem_cid, chemical_formula, molecular_weight, iupac_name,
			enrichment, confidence, status, extra, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (slug) DO UPDATE SET
			name = excluded.name, description = excluded.description,
			category = excluded.category, drug_class = excluded.drug_class,
			wikidata_id = excluded.wikidata_id, pubchem_cid = excluded.pubchem_cid,
			chemical_formula = excluded.chemical_formula,
			molecular_weight = excluded.molecular_weight,
			iupac_name = excluded.iupac_name, enrichment = excluded.enrichment,
			confidence = excluded.confidence, status = excluded.status,
			extra = excluded.extra, updated_at = excluded.updated_at`,
		sub.Slug, sub.Name, sub.Description, sub.Category, sub.DrugClass,
		sub.WikidataID, sub.PubChemCID, sub.ChemicalFormula, sub.MolecularWeight,
		sub.IUPACName, enrichmentJSON, sub.Confidence, sub.Status, extraJSON,
		sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert replica %s", sub.Slug)
	}
	return nil
}

// GetOrCreateConsumer fetches the named consumer state, creating it lazily.
func (s *SQLiteStore) GetOrCreateConsumer(ctx context.Context, name, entityType string) (*model.SyncConsumerState, error) {
	state, err := s.scanConsumer(ctx, name)
	if err != nil {
		return nil, err
	}
	if state != nil {
		return state, nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sync_consumers (name, entity_type) VALUES (?, ?)`,
		name, entityType)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: create consumer %s", name)
	}
	state, err = s.scanConsumer(ctx, name)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, eris.Errorf("sqlite: consumer %s missing after create", name)
	}
	return state, nil
}

func (s *SQLiteStore) scanConsumer(ctx context.Context, name string) (*model.SyncConsumerState, error) {
	var state model.SyncConsumerState
	var lastSyncAt sql.NullTime
	var configJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, entity_type, last_cursor, last_sync_at, config
		 FROM sync_consumers WHERE name = ?`, name).
		Scan(&state.ID, &state.Name, &state.EntityType, &state.LastCursor,
			&lastSyncAt, &configJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get consumer %s", name)
	}
	if lastSyncAt.Valid {
		state.LastSyncAt = &lastSyncAt.Time
	}
	if configJSON.Valid && configJSON.String != "" {
		_ = json.Unmarshal([]byte(configJSON.String), &state.Config)
	}
	return &state, nil
}

// ListConsumers returns every registered consumer ordered by name.
func (s *SQLiteStore) ListConsumers(ctx context.Context) ([]model.SyncConsumerState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, entity_type, last_cursor, last_sync_at, config
		 FROM sync_consumers ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list consumers")
	}
	defer rows.Close()

	var states []model.SyncConsumerState
	for rows.Next() {
		var state model.SyncConsumerState
		var lastSyncAt sql.NullTime
		var configJSON sql.NullString
		if err := rows.Scan(&state.ID, &state.Name, &state.EntityType,
			&state.LastCursor, &lastSyncAt, &configJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan consumer")
		}
		if lastSyncAt.Valid {
			state.LastSyncAt = &lastSyncAt.Time
		}
		if configJSON.Valid && configJSON.String != "" {
			_ = json.Unmarshal([]byte(configJSON.String), &state.Config)
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list consumers")
	}
	return states, nil
}

// UpdateConsumerCursor persists a consumer's cursor position.
func (s *SQLiteStore) UpdateConsumerCursor(ctx context.Context, consumerID int64, cursor time.Time, syncAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_consumers SET last_cursor = ?, last_sync_at = ? WHERE id = ?`,
		cursor, syncAt, consumerID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update consumer cursor %d", consumerID)
	}
	return nil
}

// CreateSyncRun opens a run record in status running.
func (s *SQLiteStore) CreateSyncRun(ctx context.Context, consumerID int64, cursorBefore time.Time) (*model.SyncRun, error) {
	now := time.Now().UTC()
	run := &model.SyncRun{
		ConsumerID:   consumerID,
		Status:       model.SyncRunRunning,
		StartedAt:    now,
		CursorBefore: cursorBefore,
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (consumer_id, status, started_at, cursor_before)
		 VALUES (?, ?, ?, ?)`,
		consumerID, run.Status, now, cursorBefore)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: create sync run for consumer %d", consumerID)
	}
	run.ID, err = res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last insert id")
	}
	return run, nil
}

// CompleteSyncRun closes a run record with its final counts and status.
func (s *SQLiteStore) CompleteSyncRun(ctx context.Context, run *model.SyncRun) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET status = ?, completed_at = ?, cursor_after = ?,
			processed = ?, failed = ?, error = ?
		 WHERE id = ?`,
		run.Status, time.Now().UTC(), run.CursorAfter,
		run.Processed, run.Failed, run.Error, run.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete sync run %d", run.ID)
	}
	return nil
}

// InsertSyncError appends a per-record error to a run.
func (s *SQLiteStore) InsertSyncError(ctx context.Context, runID int64, slug, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_errors (run_id, slug, message, occurred_at)
		 VALUES (?, ?, ?, ?)`,
		runID, slug, message, time.Now().UTC())
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert sync error for run %d", runID)
	}
	return nil
}
