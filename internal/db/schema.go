package db

// SchemaSQL defines all metadata tables. Statements are idempotent so the
// schema can be re-applied on every startup.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS datasets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	description TEXT DEFAULT '',
	external_id TEXT UNIQUE,
	type TEXT DEFAULT 'Text',
	sample_count INTEGER DEFAULT 0,
	loaded_samples INTEGER DEFAULT 0,
	size TEXT DEFAULT '',
	format TEXT DEFAULT '',
	license TEXT DEFAULT '',
	tags TEXT DEFAULT '[]',
	is_favorite BOOLEAN DEFAULT FALSE,
	is_public BOOLEAN DEFAULT TRUE,
	source TEXT DEFAULT '',
	samples TEXT DEFAULT '[]',
	created_at TIMESTAMP NOT NULL,
	last_modified TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS training_jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	description TEXT DEFAULT '',
	job_type TEXT DEFAULT 'experimental',
	base_model TEXT NOT NULL,
	model_name TEXT DEFAULT '',
	status TEXT NOT NULL DEFAULT 'PENDING',
	training_type TEXT NOT NULL DEFAULT 'lora',
	progress REAL DEFAULT 0.0,
	temperature REAL DEFAULT 0.7,
	top_p REAL DEFAULT 0.9,
	context_length INTEGER DEFAULT 4096,
	config TEXT DEFAULT '{}',
	error_message TEXT DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	started_at TIMESTAMP,
	completed_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS evaluations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	model_name TEXT NOT NULL,
	dataset_id INTEGER,
	evaluation_type TEXT DEFAULT 'accuracy',
	status TEXT NOT NULL DEFAULT 'PENDING',
	before_metrics TEXT,
	after_metrics TEXT,
	improvement REAL DEFAULT 0.0,
	notes TEXT DEFAULT '',
	error_message TEXT DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	FOREIGN KEY (dataset_id) REFERENCES datasets (id)
);

CREATE TABLE IF NOT EXISTS model_profiles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	model_name TEXT UNIQUE NOT NULL,
	training_job_id INTEGER,
	avatar_url TEXT DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	FOREIGN KEY (training_job_id) REFERENCES training_jobs (id)
);

CREATE TABLE IF NOT EXISTS rag_dataset_mapping (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id INTEGER NOT NULL,
	dataset_id INTEGER NOT NULL,
	collection_name TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (job_id, dataset_id)
);
`
