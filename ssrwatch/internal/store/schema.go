package store

// Schema is the ssrwatch database schema. All statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS reports (
	id           TEXT PRIMARY KEY,
	page_id      TEXT NOT NULL,
	page_url     TEXT NOT NULL,
	phase        TEXT NOT NULL,
	server_count INTEGER NOT NULL,
	client_count INTEGER NOT NULL,
	total_count  INTEGER NOT NULL,
	verdicts     TEXT NOT NULL DEFAULT '[]',
	created_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_page ON reports(page_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at);

CREATE TABLE IF NOT EXISTS batches (
	id         TEXT PRIMARY KEY,
	page_id    TEXT NOT NULL,
	page_url   TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	records    INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batches_page ON batches(page_id, seq);
`
