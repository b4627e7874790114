package enrich

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/substancewiki/catalog-cli/internal/model"
	"github.com/substancewiki/catalog-cli/pkg/pubchem"
	"github.com/substancewiki/catalog-cli/pkg/wikidata"
)

// memStore is an in-memory Store for pipeline tests. failSlugs injects a
// write failure for specific slugs so item-isolation behavior can be
// exercised.
type memStore struct {
	mu         sync.Mutex
	nextID     int64
	bySlug     map[string]*model.Substance
	aliases    map[string]int64 // alias slug -> substance id
	failSlugs  map[string]bool
	columns    map[string]bool
	columnsErr error
	inserts    int
	updates    int
}

func newMemStore() *memStore {
	return &memStore{
		bySlug:    map[string]*model.Substance{},
		aliases:   map[string]int64{},
		failSlugs: map[string]bool{},
		columns: map[string]bool{
			"slug": true, "name": true, "description": true,
			"wikidata_id": true, "pubchem_cid": true,
			"chemical_formula": true, "molecular_weight": true,
			"iupac_name": true, "confidence": true, "status": true,
		},
	}
}

func (m *memStore) GetBySlug(_ context.Context, slug string) (*model.Substance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.bySlug[slug]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) GetByName(_ context.Context, name string) (*model.Substance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.bySlug {
		if strings.EqualFold(s.Name, name) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetByAlias(_ context.Context, aliasSlug string) (*model.Substance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.aliases[aliasSlug]
	if !ok {
		return nil, nil
	}
	for _, s := range m.bySlug {
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) Insert(_ context.Context, s *model.Substance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSlugs[s.Slug] {
		return eris.New("memstore: injected insert failure")
	}
	m.nextID++
	s.ID = m.nextID
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	cp := *s
	m.bySlug[s.Slug] = &cp
	m.inserts++
	return nil
}

func (m *memStore) UpdateEnrichment(_ context.Context, s *model.Substance, includeEditorial bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSlugs[s.Slug] {
		return eris.New("memstore: injected update failure")
	}
	// Updates resolve by ID, like the real stores: the writer's name-match
	// path carries the existing row's ID under the incoming slug.
	var existing *model.Substance
	for _, candidate := range m.bySlug {
		if candidate.ID == s.ID {
			existing = candidate
			break
		}
	}
	if existing == nil {
		return eris.New("memstore: no such substance")
	}
	existing.WikidataID = s.WikidataID
	existing.PubChemCID = s.PubChemCID
	existing.ChemicalFormula = s.ChemicalFormula
	existing.MolecularWeight = s.MolecularWeight
	existing.IUPACName = s.IUPACName
	existing.Enrichment = s.Enrichment
	existing.Confidence = s.Confidence
	existing.Extra = s.Extra
	if includeEditorial {
		existing.Name = s.Name
		existing.Description = s.Description
	}
	existing.UpdatedAt = time.Now().UTC()
	m.updates++
	return nil
}

func (m *memStore) InsertAliases(_ context.Context, substanceID int64, aliases []model.Alias) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range aliases {
		if _, ok := m.aliases[a.Slug]; ok {
			continue
		}
		m.aliases[a.Slug] = substanceID
		n++
	}
	return n, nil
}

func (m *memStore) GetAllowedColumns(context.Context) (map[string]bool, error) {
	if m.columnsErr != nil {
		return nil, m.columnsErr
	}
	return m.columns, nil
}

func (m *memStore) FetchUpdatedSince(_ context.Context, cursor time.Time, status model.SubstanceStatus, limit int) ([]model.Substance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Substance
	for _, s := range m.bySlug {
		if s.UpdatedAt.After(cursor) && (status == "" || s.Status == status) {
			out = append(out, *s)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) UpsertReplica(_ context.Context, s *model.Substance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.bySlug[s.Slug] = &cp
	return nil
}

func (m *memStore) GetOrCreateConsumer(_ context.Context, name, entityType string) (*model.SyncConsumerState, error) {
	return &model.SyncConsumerState{ID: 1, Name: name, EntityType: entityType}, nil
}

func (m *memStore) ListConsumers(context.Context) ([]model.SyncConsumerState, error) {
	return nil, nil
}

func (m *memStore) UpdateConsumerCursor(context.Context, int64, time.Time, time.Time) error {
	return nil
}

func (m *memStore) CreateSyncRun(_ context.Context, consumerID int64, cursorBefore time.Time) (*model.SyncRun, error) {
	return &model.SyncRun{ID: 1, ConsumerID: consumerID, Status: model.SyncRunRunning, CursorBefore: cursorBefore}, nil
}

func (m *memStore) CompleteSyncRun(context.Context, *model.SyncRun) error { return nil }

func (m *memStore) InsertSyncError(context.Context, int64, string, string) error { return nil }

func (m *memStore) Migrate(context.Context) error { return nil }

func (m *memStore) Close() error { return nil }

// stubWikidata serves canned entities keyed by QID and search hits keyed by
// lowercased name.
type stubWikidata struct {
	entities map[string]*wikidata.Entity
	searches map[string][]wikidata.SearchResult
	err      error
}

func (s *stubWikidata) GetEntity(_ context.Context, qid string) (*wikidata.Entity, error) {
	if s.err != nil {
		return nil, s.err
	}
	if e, ok := s.entities[qid]; ok {
		return e, nil
	}
	return nil, wikidata.ErrNotFound
}

func (s *stubWikidata) SearchByName(_ context.Context, name string) ([]wikidata.SearchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.searches[strings.ToLower(name)], nil
}

// stubPubChem serves canned compounds keyed by name or CID string.
type stubPubChem struct {
	compounds map[string]*pubchem.Compound
	err       error
}

func (s *stubPubChem) GetByCID(_ context.Context, cid string) (*pubchem.Compound, error) {
	return s.lookup(cid)
}

func (s *stubPubChem) GetByName(_ context.Context, name string) (*pubchem.Compound, error) {
	return s.lookup(strings.ToLower(name))
}

func (s *stubPubChem) lookup(key string) (*pubchem.Compound, error) {
	if s.err != nil {
		return nil, s.err
	}
	if c, ok := s.compounds[key]; ok {
		return c, nil
	}
	return nil, pubchem.ErrNotFound
}
