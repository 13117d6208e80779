package storage

const schema = `
CREATE TABLE IF NOT EXISTS user_settings (
	user_id      TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	thresholds   TEXT NOT NULL,
	updated_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS emergency_contacts (
	user_id  TEXT NOT NULL REFERENCES user_settings(user_id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	name     TEXT NOT NULL DEFAULT '',
	email    TEXT NOT NULL,
	PRIMARY KEY (user_id, position)
);

CREATE TABLE IF NOT EXISTS measurements (
	id        TEXT PRIMARY KEY,
	user_id   TEXT NOT NULL,
	kind      TEXT NOT NULL,
	taken_at  INTEGER NOT NULL,
	systolic  INTEGER,
	diastolic INTEGER,
	level     INTEGER,
	context   TEXT
);

CREATE INDEX IF NOT EXISTS idx_measurements_user_taken ON measurements(user_id, taken_at);
CREATE INDEX IF NOT EXISTS idx_measurements_taken ON measurements(taken_at);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	title      TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);
`
