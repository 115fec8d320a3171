package documents

import "github.com/walksalot/docpipe/internal/migrate"

// migrations is the documents package's ordered, reversible schema history:
// each step is a monotonically versioned up/down pair applied in sequence.
var migrations = []migrate.Migration{
	{
		Version: 1,
		Name:    "create_documents",
		Up: `
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sha256_hex TEXT NOT NULL,
	sha256_b64url TEXT NOT NULL,

	original_filename TEXT NOT NULL DEFAULT '',
	file_size_bytes INTEGER NOT NULL DEFAULT 0,
	page_count INTEGER,

	doc_type TEXT NOT NULL DEFAULT '',
	doc_subtype TEXT NOT NULL DEFAULT '',
	confidence REAL NOT NULL DEFAULT 0,

	issuer TEXT NOT NULL DEFAULT '',
	recipient TEXT NOT NULL DEFAULT '',
	primary_date DATETIME,
	secondary_date DATETIME,
	total_amount REAL,
	currency TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	action_items TEXT NOT NULL DEFAULT '[]',
	deadlines TEXT NOT NULL DEFAULT '[]',
	urgency TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',

	ocr_excerpt TEXT NOT NULL DEFAULT '',
	language TEXT NOT NULL DEFAULT '',

	llm_file_id TEXT,
	vector_store_file_id TEXT,

	processed_at DATETIME,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	model_used TEXT NOT NULL DEFAULT '',
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	cached_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd REAL,

	extraction_quality TEXT NOT NULL DEFAULT '',
	validation_errors TEXT NOT NULL DEFAULT '[]',
	requires_review INTEGER NOT NULL DEFAULT 0,

	raw_response BLOB,

	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	deleted_at DATETIME,

	status TEXT NOT NULL DEFAULT 'pending'
		CHECK(status IN ('pending','processing','completed','failed','duplicate','vector_upload_failed'))
);

-- sha256_hex is unique over non-soft-deleted rows. SQLite partial indexes
-- enforce this directly rather than needing an application-level
-- check-then-insert race.
CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_hash_live
	ON documents(sha256_hex) WHERE deleted_at IS NULL;

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);
`,
		Down: `DROP TABLE IF EXISTS documents;`,
	},
}
