package dataset

// TableName is the denormalized entity table queried by sql_query
// operations.
const TableName = "denormalized_data"

// Entity kinds as they appear in model sources.
const (
	KindPolymer    = "polymer"
	KindNonPolymer = "non-polymer"
	KindWater      = "water"
)

const createDenormalized = `CREATE TABLE denormalized_data (
	ordinal             INTEGER,
	source_id           TEXT,
	file_name           TEXT,
	entity_id           TEXT,
	kind                TEXT,
	seq                 TEXT,
	seq_can             TEXT,
	comp_id             TEXT,
	src_method          TEXT,
	description         TEXT,
	poly_type           TEXT,
	organism_scientific TEXT,
	ncbi_taxonomy_id    TEXT,
	poly_group_id       INTEGER,
	nonpoly_group_id    INTEGER,
	sample_id           INTEGER,
	db_name             TEXT,
	db_code             TEXT,
	db_accession        TEXT,
	synchrotron_site    TEXT,
	exptl_method        TEXT,
	campaign_id         INTEGER,
	series_id           INTEGER,
	investigation_id    TEXT
)`

// schemaDDL lists the schema statements in execution order.
var schemaDDL = []string{
	`DROP TABLE IF EXISTS denormalized_data`,
	createDenormalized,
	`CREATE INDEX idx_denorm_source ON denormalized_data (source_id)`,
	`CREATE INDEX idx_denorm_source_entity ON denormalized_data (source_id, entity_id)`,
}

const insertSQL = `
INSERT INTO denormalized_data
	(ordinal, source_id, file_name, entity_id, kind, seq, seq_can,
	 comp_id, src_method, description, poly_type,
	 organism_scientific, ncbi_taxonomy_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`
