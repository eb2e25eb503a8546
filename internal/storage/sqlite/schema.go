package sqlite

// Schema contains the SQL statements to create the database schema for
// SQLite. Mirrors internal/storage/postgres/schema.go field-for-field,
// substituting SQLite types (TEXT for JSONB, BLOB for BYTEA, no native
// BOOLEAN — stored as INTEGER 0/1 per the driver's convention).
const Schema = `
-- Memories table: Core memory storage with async enrichment tracking
CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    source TEXT NOT NULL,
    domain TEXT,
    timestamp TIMESTAMP,
    status TEXT NOT NULL DEFAULT 'pending',

    entity_status TEXT NOT NULL DEFAULT 'pending',
    relationship_status TEXT NOT NULL DEFAULT 'pending',
    classification_status TEXT NOT NULL DEFAULT 'pending',
    summarization_status TEXT NOT NULL DEFAULT 'pending',
    embedding_status TEXT NOT NULL DEFAULT 'pending',

    enrichment_attempts INTEGER NOT NULL DEFAULT 0,
    enrichment_error TEXT,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    enriched_at TIMESTAMP,

    metadata TEXT,
    tags TEXT,
    summary TEXT,
    key_points TEXT,

    category TEXT,
    subcategory TEXT,
    context_labels TEXT,
    priority TEXT,

    state TEXT,
    state_updated_at TIMESTAMP,

    created_by TEXT,
    session_id TEXT,
    source_context TEXT,

    access_count INTEGER NOT NULL DEFAULT 0,
    last_accessed_at TIMESTAMP,
    decay_score REAL NOT NULL DEFAULT 1.0,
    decay_updated_at TIMESTAMP,

    deleted_at TIMESTAMP,

    content_hash TEXT,

    supersedes_id TEXT,

    memory_type TEXT,

    -- Dynamics and lineage (pkg/types.Memory; SPEC_FULL.md §4.2)
    stability REAL NOT NULL DEFAULT 0.5,
    confidence REAL NOT NULL DEFAULT 0.5,
    durability TEXT NOT NULL DEFAULT 'durable',
    pinned INTEGER NOT NULL DEFAULT 0,
    parent_ids TEXT,
    superseded_by TEXT
);

CREATE TABLE IF NOT EXISTS entities (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    type TEXT NOT NULL,

    description TEXT,
    attributes TEXT,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    UNIQUE(name, type)
);

CREATE TABLE IF NOT EXISTS relationships (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    type TEXT NOT NULL,

    weight REAL NOT NULL DEFAULT 1.0,
    context TEXT,
    metadata TEXT,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    FOREIGN KEY (source_id) REFERENCES entities(id) ON DELETE CASCADE,
    FOREIGN KEY (target_id) REFERENCES entities(id) ON DELETE CASCADE,

    UNIQUE(source_id, target_id, type)
);

CREATE TABLE IF NOT EXISTS memory_entities (
    memory_id TEXT NOT NULL,
    entity_id TEXT NOT NULL,

    frequency INTEGER NOT NULL DEFAULT 1,
    confidence REAL NOT NULL DEFAULT 1.0,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    PRIMARY KEY (memory_id, entity_id),
    FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE,
    FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS embeddings (
    memory_id TEXT PRIMARY KEY,
    embedding BLOB NOT NULL,
    dimension INTEGER NOT NULL,
    model TEXT NOT NULL,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_memories_status ON memories(status);
CREATE INDEX IF NOT EXISTS idx_memories_entity_status ON memories(entity_status);
CREATE INDEX IF NOT EXISTS idx_memories_relationship_status ON memories(relationship_status);
CREATE INDEX IF NOT EXISTS idx_memories_embedding_status ON memories(embedding_status);

CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_updated_at ON memories(updated_at);
CREATE INDEX IF NOT EXISTS idx_memories_enriched_at ON memories(enriched_at);

CREATE INDEX IF NOT EXISTS idx_memories_source ON memories(source);
CREATE INDEX IF NOT EXISTS idx_memories_domain ON memories(domain);
CREATE INDEX IF NOT EXISTS idx_memories_timestamp ON memories(timestamp);

CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category);
CREATE INDEX IF NOT EXISTS idx_memories_priority ON memories(priority);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);

CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id);
CREATE INDEX IF NOT EXISTS idx_relationships_type ON relationships(type);

CREATE INDEX IF NOT EXISTS idx_memory_entities_entity ON memory_entities(entity_id);
CREATE INDEX IF NOT EXISTS idx_memory_entities_memory ON memory_entities(memory_id);

CREATE INDEX IF NOT EXISTS idx_embeddings_model ON embeddings(model);

CREATE INDEX IF NOT EXISTS idx_memories_state ON memories(state);
CREATE INDEX IF NOT EXISTS idx_memories_session_id ON memories(session_id);
CREATE INDEX IF NOT EXISTS idx_memories_created_by ON memories(created_by);
CREATE INDEX IF NOT EXISTS idx_memories_decay_score ON memories(decay_score DESC);
CREATE INDEX IF NOT EXISTS idx_memories_memory_type ON memories(memory_type);
CREATE INDEX IF NOT EXISTS idx_memories_deleted_at ON memories(deleted_at);
CREATE INDEX IF NOT EXISTS idx_memories_supersedes_id ON memories(supersedes_id);
CREATE INDEX IF NOT EXISTS idx_memories_durability ON memories(durability);
CREATE INDEX IF NOT EXISTS idx_memories_pinned ON memories(pinned);

-- Memory links: direct memory-to-memory graph edges. Originally a plain
-- hierarchy-link table (CONTAINS for project trees); generalized into the
-- memory graph's typed, weighted edge substrate (related_to, caused_by,
-- solved_by, derived_from, contradicts, requires, part_of, supersedes).
CREATE TABLE IF NOT EXISTS memory_links (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    type TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(source_id, target_id, type)
);

CREATE INDEX IF NOT EXISTS idx_memory_links_source ON memory_links(source_id);
CREATE INDEX IF NOT EXISTS idx_memory_links_target ON memory_links(target_id);
CREATE INDEX IF NOT EXISTS idx_memory_links_type ON memory_links(type);

-- Facts: atomic sub-embeddings of a parent memory, stored in their own
-- vector sub-collection so sub-phrase queries can match precisely.
CREATE TABLE IF NOT EXISTS facts (
    id TEXT PRIMARY KEY,
    parent_id TEXT NOT NULL,
    fact_index INTEGER NOT NULL,
    content TEXT NOT NULL,
    domain TEXT,
    embedding BLOB,
    dimension INTEGER,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (parent_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_facts_parent_id ON facts(parent_id);
CREATE INDEX IF NOT EXISTS idx_facts_domain ON facts(domain);

-- Anti-patterns: warning memories in their own vector sub-collection, never
-- decayed, injected into retrieval when semantically close to the query.
CREATE TABLE IF NOT EXISTS anti_patterns (
    id TEXT PRIMARY KEY,
    pattern TEXT NOT NULL,
    warning TEXT NOT NULL,
    alternative TEXT,
    severity TEXT NOT NULL DEFAULT 'warning',
    domain TEXT,
    tags TEXT,
    times_triggered INTEGER NOT NULL DEFAULT 0,
    embedding BLOB,
    dimension INTEGER,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_anti_patterns_domain ON anti_patterns(domain);

-- Users: API principals authenticated by API key.
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    api_key TEXT NOT NULL UNIQUE,
    display_name TEXT,
    is_admin INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_active_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Audit log: append-only record of every mutating action (store, update,
-- supersede, consolidate, decay_archive, feedback, ...).
CREATE TABLE IF NOT EXISTS audit_log (
    id TEXT PRIMARY KEY,
    timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    action TEXT NOT NULL,
    memory_id TEXT,
    actor TEXT,
    details_json TEXT,
    session_id TEXT,
    user_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_log_memory_id ON audit_log(memory_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action);

-- Session archive: durable record of a session after its ephemeral entry
-- expires (internal/ephemeral holds the live copy).
CREATE TABLE IF NOT EXISTS session_archive (
    session_id TEXT PRIMARY KEY,
    started_at TIMESTAMP NOT NULL,
    ended_at TIMESTAMP,
    working_directory TEXT,
    current_task TEXT,
    memories_created INTEGER NOT NULL DEFAULT 0,
    memories_retrieved INTEGER NOT NULL DEFAULT 0,
    signals_detected INTEGER NOT NULL DEFAULT 0,
    archived_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Metrics snapshot: periodic counters/gauges for the health dashboard.
CREATE TABLE IF NOT EXISTS metrics_snapshot (
    id TEXT PRIMARY KEY,
    timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    counters_json TEXT,
    gauges_json TEXT
);

CREATE INDEX IF NOT EXISTS idx_metrics_snapshot_timestamp ON metrics_snapshot(timestamp);

-- Settings table: Persistent key-value store for application configuration
CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Unknown type stats: tracks entity/relationship types returned by the LLM
-- that were not in the allowed list.
CREATE TABLE IF NOT EXISTS unknown_type_stats (
    domain     TEXT NOT NULL,
    type_name  TEXT NOT NULL,
    count      INTEGER NOT NULL DEFAULT 1,
    first_seen TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_seen  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (domain, type_name)
);

CREATE INDEX IF NOT EXISTS idx_unknown_type_stats_domain ON unknown_type_stats(domain);
`
