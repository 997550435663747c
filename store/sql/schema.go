package sqlstore

// schemaSQLite and schemaPostgres create the persisted layout from
// spec §6: entitlements, redemptions, offers, merchants, users,
// analytics_events, plus the partial unique index enforcing invariant
// #1 (daily uniqueness excluding VOIDED rows).
//
// Grounded on the teacher's store/sqlite/sqlite.go migration block,
// adapted from a leave-ledger schema to the redemption entities.

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS merchants (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	is_active  INTEGER NOT NULL DEFAULT 1,
	lat        REAL,
	lng        REAL
);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS offers (
	id                TEXT PRIMARY KEY,
	merchant_id       TEXT NOT NULL,
	category_id       TEXT NOT NULL,
	offer_type        TEXT NOT NULL,
	discount_value    TEXT NOT NULL,
	original_price    TEXT NOT NULL,
	discounted_price  TEXT NOT NULL,
	valid_from        TIMESTAMP NOT NULL,
	valid_until       TIMESTAMP NOT NULL,
	time_from         TEXT,
	time_until        TEXT,
	valid_weekdays    TEXT,
	is_active         INTEGER NOT NULL DEFAULT 1,
	max_total_claims  INTEGER,
	total_claims      INTEGER NOT NULL DEFAULT 0,
	is_featured       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS entitlements (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	offer_id    TEXT NOT NULL,
	device_id   TEXT,
	state       TEXT NOT NULL,
	claimed_at  TIMESTAMP NOT NULL,
	expires_at  TIMESTAMP NOT NULL,
	used_at     TIMESTAMP,
	voided_at   TIMESTAMP,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_entitlements_daily_unique
	ON entitlements (user_id, offer_id, date(claimed_at))
	WHERE state != 'VOIDED';

CREATE INDEX IF NOT EXISTS idx_entitlements_expirable
	ON entitlements (state, expires_at);

CREATE TABLE IF NOT EXISTS redemptions (
	id              TEXT PRIMARY KEY,
	entitlement_id  TEXT NOT NULL UNIQUE,
	merchant_id     TEXT NOT NULL,
	offer_id        TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	total_bill      TEXT NOT NULL,
	discount_amount TEXT NOT NULL,
	final_amount    TEXT NOT NULL,
	offer_type      TEXT NOT NULL,
	redeemed_at     TIMESTAMP NOT NULL,
	is_voided       INTEGER NOT NULL DEFAULT 0,
	voided_at       TIMESTAMP,
	void_reason     TEXT
);

CREATE TABLE IF NOT EXISTS analytics_events (
	id          TEXT PRIMARY KEY,
	event_type  TEXT NOT NULL,
	payload     TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS merchants (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	is_active  BOOLEAN NOT NULL DEFAULT TRUE,
	lat        DOUBLE PRECISION,
	lng        DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS offers (
	id                TEXT PRIMARY KEY,
	merchant_id       TEXT NOT NULL,
	category_id       TEXT NOT NULL,
	offer_type        TEXT NOT NULL,
	discount_value    TEXT NOT NULL,
	original_price    TEXT NOT NULL,
	discounted_price  TEXT NOT NULL,
	valid_from        TIMESTAMPTZ NOT NULL,
	valid_until       TIMESTAMPTZ NOT NULL,
	time_from         TEXT,
	time_until        TEXT,
	valid_weekdays    TEXT,
	is_active         BOOLEAN NOT NULL DEFAULT TRUE,
	max_total_claims  BIGINT,
	total_claims      BIGINT NOT NULL DEFAULT 0,
	is_featured       BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS entitlements (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	offer_id    TEXT NOT NULL,
	device_id   TEXT,
	state       TEXT NOT NULL,
	claimed_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL,
	used_at     TIMESTAMPTZ,
	voided_at   TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_entitlements_daily_unique
	ON entitlements (user_id, offer_id, (claimed_at::date))
	WHERE state != 'VOIDED';

CREATE INDEX IF NOT EXISTS idx_entitlements_expirable
	ON entitlements (state, expires_at);

CREATE TABLE IF NOT EXISTS redemptions (
	id              TEXT PRIMARY KEY,
	entitlement_id  TEXT NOT NULL UNIQUE,
	merchant_id     TEXT NOT NULL,
	offer_id        TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	total_bill      TEXT NOT NULL,
	discount_amount TEXT NOT NULL,
	final_amount    TEXT NOT NULL,
	offer_type      TEXT NOT NULL,
	redeemed_at     TIMESTAMPTZ NOT NULL,
	is_voided       BOOLEAN NOT NULL DEFAULT FALSE,
	voided_at       TIMESTAMPTZ,
	void_reason     TEXT
);

CREATE TABLE IF NOT EXISTS analytics_events (
	id          TEXT PRIMARY KEY,
	event_type  TEXT NOT NULL,
	payload     TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
`
