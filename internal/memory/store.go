// Package memory implements the long-term Memory Store (C8): pattern-based
// extraction from assistant text, surprise-filtered storage, decay-aware
// retrieval ranking, and a background decay-maintenance loop. SQLite is
// the storage engine (glebarez/sqlite, a cgo-free gorm.io driver, for
// CRUD), with golang-migrate owning schema creation/versioning, grounded
// on the teacher's internal/migration package — narrowed to SQLite only,
// since no other database is ever configured here. GORM cannot model a
// virtual table, so the FTS5 mirror and its sync triggers are created
// once at startup via a raw *sql.DB Exec against GORM's own underlying
// connection, in the spirit of internal/database/pool.go's db.DB() use.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ashgate/gateway/internal/memory/migrations"
)

// Config tunes the memory subsystem, per spec §6's "memory subsystem
// parameters (surprise threshold, max age days, max count, dedup
// lookback, decay half-life)".
type Config struct {
	DBPath string

	SurpriseThreshold float64
	MaxAgeDays        int
	MaxCount          int
	DedupLookback     int
	DecayHalfLifeDays float64

	// DecayInterval is how often the background maintenance loop
	// recomputes decay_factor in bulk. Defaults to 10 minutes.
	DecayInterval time.Duration

	// SimilarityWindow is N in "the most recent N memories (default 100)
	// for the session" used as the surprise-scoring comparison set.
	SimilarityWindow int
}

func (c Config) withDefaults() Config {
	if c.SurpriseThreshold <= 0 {
		c.SurpriseThreshold = 0.3
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 90
	}
	if c.MaxCount <= 0 {
		c.MaxCount = 10_000
	}
	if c.DedupLookback <= 0 {
		c.DedupLookback = 5
	}
	if c.DecayHalfLifeDays <= 0 {
		c.DecayHalfLifeDays = 30
	}
	if c.DecayInterval <= 0 {
		c.DecayInterval = 10 * time.Minute
	}
	if c.SimilarityWindow <= 0 {
		c.SimilarityWindow = 100
	}
	return c
}

// Store is the sole writer of Records; it is safe for concurrent use by
// multiple request-handler goroutines.
type Store struct {
	cfg    Config
	db     *gorm.DB
	sqlDB  *sql.DB
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// Open runs pending migrations, opens the GORM connection, and ensures
// the FTS5 mirror/triggers exist.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	if err := migrations.Apply(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("memory: apply migrations: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("memory: open db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("memory: underlying sql.DB: %w", err)
	}
	// SQLite serializes writers regardless; a single connection avoids
	// SQLITE_BUSY churn under concurrent request handlers.
	sqlDB.SetMaxOpenConns(1)

	if err := ensureFTS(sqlDB); err != nil {
		return nil, fmt.Errorf("memory: ensure fts: %w", err)
	}

	s := &Store{cfg: cfg, db: db, sqlDB: sqlDB, logger: logger.With(zap.String("component", "memory_store"))}
	return s, nil
}

func ensureFTS(db *sql.DB) error {
	stmts := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			content, content='memories', content_rowid='rowid'
		)`,
		`CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content) VALUES('delete', old.rowid, old.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content) VALUES('delete', old.rowid, old.content);
			INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
		END`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sqlDB.Close()
}

// ExtractAndStore scans assistantText for extractable fragments and
// stores the ones that clear the surprise threshold and aren't
// dedup-window duplicates. It never returns an error to the caller:
// per spec §4.8/§9, extraction/storage problems are logged and
// swallowed so a memory-subsystem hiccup never fails the request whose
// response is being scanned. The returned count is for tests/metrics
// only.
func (s *Store) ExtractAndStore(ctx context.Context, sessionID, sourceTurnID, assistantText string) int {
	candidates := Extract(assistantText)
	if len(candidates) == 0 {
		return 0
	}

	stored := 0
	for _, c := range candidates {
		ok, err := s.storeCandidate(ctx, sessionID, sourceTurnID, c)
		if err != nil {
			s.logger.Warn("memory extraction failed", zap.Error(err), zap.String("type", string(c.Type)))
			continue
		}
		if ok {
			stored++
		}
	}
	return stored
}

func (s *Store) storeCandidate(ctx context.Context, sessionID, sourceTurnID string, c Candidate) (bool, error) {
	if dup, err := s.isDuplicate(ctx, sessionID, c.Content); err != nil {
		return false, err
	} else if dup {
		return false, nil
	}

	priors, err := s.recentContentsByType(ctx, sessionID, c.Type, s.cfg.SimilarityWindow)
	if err != nil {
		return false, err
	}

	surprise := surpriseScore(c.Content, priors)
	if surprise < s.cfg.SurpriseThreshold {
		return false, nil
	}

	now := time.Now()
	rec := Record{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		Content:        c.Content,
		Type:           c.Type,
		Importance:     importanceScore(c.Type, surprise),
		SurpriseScore:  surprise,
		AccessCount:    0,
		DecayFactor:    1,
		SourceTurnID:   sourceTurnID,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessedAt: now,
	}

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return false, err
	}
	return true, nil
}

// isDuplicate checks the last DedupLookback memories in this session for
// an identical content string, per spec §8 scenario 6's "second identical
// assistant text within the dedup lookback window stores zero additional
// memories".
func (s *Store) isDuplicate(ctx context.Context, sessionID, content string) (bool, error) {
	var recent []Record
	q := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(s.cfg.DedupLookback)
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	if err := q.Find(&recent).Error; err != nil {
		return false, err
	}
	for _, r := range recent {
		if r.Content == content {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) recentContentsByType(ctx context.Context, sessionID string, t Type, limit int) ([]string, error) {
	var recent []Record
	q := s.db.WithContext(ctx).
		Where("type = ?", t).
		Order("created_at DESC").
		Limit(limit)
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	if err := q.Find(&recent).Error; err != nil {
		return nil, err
	}
	out := make([]string, len(recent))
	for i, r := range recent {
		out[i] = r.Content
	}
	return out, nil
}

// Filters narrows a Retrieve call by the dimensions spec §4.8 names.
type Filters struct {
	Type          Type
	Category      string
	SessionID     string
	MinImportance float64
	Limit         int
}

// Retrieve runs the sanitized query against the FTS5 index, applies
// Filters, and returns matches ordered by FTS rank then importance. Each
// returned record has had its access_count incremented and decay_factor
// recomputed against the current time, with the update persisted before
// the (copied, immutable) result is handed back. On any failure the
// retrieval yields an empty list rather than propagating the error, per
// spec §4.8/§9.
func (s *Store) Retrieve(ctx context.Context, query string, f Filters) []Record {
	records, err := s.retrieve(ctx, query, f)
	if err != nil {
		s.logger.Warn("memory retrieval failed", zap.Error(err))
		return nil
	}
	return records
}

func (s *Store) retrieve(ctx context.Context, query string, f Filters) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}

	sanitized := SanitizeFTSQuery(query)

	sqlQuery := `
		SELECT m.id, m.session_id, m.content, m.type, m.category, m.importance,
		       m.surprise_score, m.access_count, m.decay_factor, m.source_turn_id,
		       m.created_at, m.updated_at, m.last_accessed_at, m.metadata
		FROM memories_fts f
		JOIN memories m ON m.rowid = f.rowid
		WHERE memories_fts MATCH ?`
	args := []any{sanitized}

	if f.Type != "" {
		sqlQuery += " AND m.type = ?"
		args = append(args, string(f.Type))
	}
	if f.Category != "" {
		sqlQuery += " AND m.category = ?"
		args = append(args, f.Category)
	}
	if f.SessionID != "" {
		sqlQuery += " AND m.session_id = ?"
		args = append(args, f.SessionID)
	}
	if f.MinImportance > 0 {
		sqlQuery += " AND m.importance >= ?"
		args = append(args, f.MinImportance)
	}

	sqlQuery += " ORDER BY rank, m.importance DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.sqlDB.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query fts: %w", err)
	}
	defer rows.Close()

	var out []Record
	now := time.Now()
	for rows.Next() {
		var r Record
		var category, sourceTurnID, metadata sql.NullString
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Content, &r.Type, &category, &r.Importance,
			&r.SurpriseScore, &r.AccessCount, &r.DecayFactor, &sourceTurnID,
			&r.CreatedAt, &r.UpdatedAt, &r.LastAccessedAt, &metadata); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Category = category.String
		r.SourceTurnID = sourceTurnID.String
		r.Metadata = metadata.String

		ageDays := now.Sub(r.LastAccessedAt).Hours() / 24
		r.DecayFactor = decayFactor(ageDays, s.cfg.DecayHalfLifeDays)
		r.AccessCount++
		r.LastAccessedAt = now

		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, r := range out {
		if err := s.db.WithContext(ctx).Model(&Record{}).Where("id = ?", r.ID).
			Updates(map[string]any{
				"decay_factor":     r.DecayFactor,
				"access_count":     r.AccessCount,
				"last_accessed_at": r.LastAccessedAt,
			}).Error; err != nil {
			s.logger.Warn("memory access-stat update failed", zap.Error(err), zap.String("id", r.ID))
		}
	}

	return out, nil
}
