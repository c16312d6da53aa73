package postgres

// Schema creates the drug catalogue tables used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS salts (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	normalized_name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS salt_aliases (
	normalized_alias TEXT PRIMARY KEY,
	salt_id          TEXT NOT NULL REFERENCES salts (id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS drugs (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	manufacturer TEXT NOT NULL DEFAULT '',
	form         TEXT NOT NULL DEFAULT '',
	store_id     TEXT NOT NULL,
	status       TEXT NOT NULL,
	deleted_at   TIMESTAMPTZ,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS drugs_store_status_idx ON drugs (store_id, status) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS drug_salts (
	drug_id        TEXT NOT NULL REFERENCES drugs (id) ON DELETE CASCADE,
	salt_id        TEXT NOT NULL REFERENCES salts (id),
	strength_value NUMERIC,
	strength_unit  TEXT NOT NULL DEFAULT '',
	role           TEXT NOT NULL DEFAULT '',
	sort_order     INT NOT NULL DEFAULT 0,
	PRIMARY KEY (drug_id, salt_id)
);
CREATE INDEX IF NOT EXISTS drug_salts_salt_idx ON drug_salts (salt_id);

CREATE TABLE IF NOT EXISTS batches (
	id          TEXT PRIMARY KEY,
	drug_id     TEXT NOT NULL REFERENCES drugs (id) ON DELETE CASCADE,
	quantity    BIGINT NOT NULL,
	mrp         NUMERIC NOT NULL,
	expiry_date TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS batches_drug_idx ON batches (drug_id);
`
