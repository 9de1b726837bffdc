package store

// SQLite schema DDL constants

const schemaNodes = `
CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    concept TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    domain TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    difficulty REAL NOT NULL DEFAULT 0.5,
    mastery_recall REAL NOT NULL DEFAULT 0,
    mastery_application REAL NOT NULL DEFAULT 0,
    mastery_explanation REAL NOT NULL DEFAULT 0,
    mastery_overall REAL NOT NULL DEFAULT 0,
    ease_factor REAL NOT NULL DEFAULT 2.5,
    interval_days INTEGER NOT NULL DEFAULT 0,
    repetition_count INTEGER NOT NULL DEFAULT 0,
    next_review_due TEXT,
    misconceptions TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`

const schemaEdges = `
CREATE TABLE IF NOT EXISTS edges (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL REFERENCES nodes(id),
    target_id TEXT NOT NULL REFERENCES nodes(id),
    relation_type TEXT NOT NULL,
    strength REAL NOT NULL DEFAULT 1.0,
    reasoning TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    UNIQUE(source_id, target_id, relation_type)
)`

const schemaReviewHistory = `
CREATE TABLE IF NOT EXISTS review_history (
    node_id TEXT NOT NULL REFERENCES nodes(id),
    seq INTEGER NOT NULL,
    reviewed_at TEXT NOT NULL,
    quality INTEGER NOT NULL,
    mastery_snapshot REAL NOT NULL,
    notes TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (node_id, seq)
)`

// Index definitions
const indexNodesDomain = `CREATE INDEX IF NOT EXISTS idx_nodes_domain ON nodes(domain)`
const indexNodesConcept = `CREATE INDEX IF NOT EXISTS idx_nodes_concept ON nodes(concept COLLATE NOCASE)`
const indexNodesNextReview = `CREATE INDEX IF NOT EXISTS idx_nodes_next_review ON nodes(next_review_due)`
const indexEdgesSource = `CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id)`
const indexEdgesTarget = `CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id)`
const indexEdgesType = `CREATE INDEX IF NOT EXISTS idx_edges_type ON edges(relation_type)`

// SQLite pragmas, applied to every pooled connection through the DSN.
const pragmaWAL = `journal_mode(WAL)`
const pragmaFK = `foreign_keys(1)`
const pragmaBusyTimeout = `busy_timeout(5000)`
const pragmaSynchronous = `synchronous(NORMAL)`

// allSchemaStatements returns all schema DDL in order
func allSchemaStatements() []string {
	return []string{
		schemaNodes,
		schemaEdges,
		schemaReviewHistory,
		indexNodesDomain,
		indexNodesConcept,
		indexNodesNextReview,
		indexEdgesSource,
		indexEdgesTarget,
		indexEdgesType,
	}
}

// allPragmas returns all pragma settings
func allPragmas() []string {
	return []string{
		pragmaWAL,
		pragmaFK,
		pragmaBusyTimeout,
		pragmaSynchronous,
	}
}
