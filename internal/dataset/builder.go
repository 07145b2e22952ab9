package dataset

import (
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"invgen/internal/source"
	"invgen/pkg/types"
)

// Model-source category names consumed by the builder. _entity and
// _database_2 are required per source; the rest are optional and their
// enrichment is skipped for sources that lack them.
const (
	catEntity        = "_entity"
	catEntityPoly    = "_entity_poly"
	catEntityNonPoly = "_pdbx_entity_nonpoly"
	catDatabase2     = "_database_2"
	catSrcNatural    = "_entity_src_nat"
	catSrcEngineered = "_entity_src_gen"
	catSrcSynthetic  = "_pdbx_entity_src_syn"
	catExperiment    = "_exptl"
	catDiffrnSource  = "_diffrn_source"
	catStructRef     = "_struct_ref"
)

// Builder flattens all model sources into the denormalized entity table
// and runs the post-pass enrichments.
type Builder struct {
	set       *source.Set
	surface   *Surface
	batchSize int
	log       *zap.Logger

	// Ordinal state. One counter and fingerprint map per kind class,
	// shared across sources so content-equivalent entities get the same
	// ordinal no matter which file they came from.
	polyOrdinals    map[string]int
	nonpolyOrdinals map[string]int
	nextPoly        int
	nextNonpoly     int

	// sourceIDs caches the resolved id per file so the enrichment
	// passes reuse it and the fallback warning is logged once.
	sourceIDs map[string]string
}

// entityRecord is one row of the denormalized table before insertion.
type entityRecord struct {
	ordinal            *int
	sourceID           string
	fileName           string
	entityID           string
	kind               string
	seq                string
	seqCan             string
	compID             string
	srcMethod          string
	description        string
	polyType           string
	organismScientific string
	ncbiTaxonomyID     string
}

// polymerData is the per-entity payload of the _entity_poly lookup.
type polymerData struct {
	seq      string
	seqCan   string
	polyType string
}

// taxonomyData is the per-entity payload of the taxonomy lookups.
type taxonomyData struct {
	organism string
	taxonomy string
}

// NewBuilder creates a Builder over the given sources and surface.
func NewBuilder(set *source.Set, surface *Surface, batchSize int, log *zap.Logger) *Builder {
	if batchSize <= 0 {
		batchSize = types.DefaultBatchSize
	}
	return &Builder{
		set:             set,
		surface:         surface,
		batchSize:       batchSize,
		log:             log,
		polyOrdinals:    make(map[string]int),
		nonpolyOrdinals: make(map[string]int),
		nextPoly:        1,
		nextNonpoly:     1,
		sourceIDs:       make(map[string]string),
	}
}

// Build creates the table schema and loads one record per entity row of
// every source, in source order. Records are inserted in bounded
// batches so large source sets do not materialize in memory.
func (b *Builder) Build() error {
	b.log.Info("building denormalized entity table",
		zap.Int("sources", len(b.set.Sources())),
		zap.Int("batch_size", b.batchSize))

	for _, stmt := range schemaDDL {
		if err := b.surface.Exec(stmt); err != nil {
			return fmt.Errorf("creating denormalized table: %w", err)
		}
	}

	var batch []entityRecord
	total := 0
	for _, src := range b.set.Sources() {
		records, err := b.loadSource(src)
		if err != nil {
			return err
		}
		for _, rec := range records {
			batch = append(batch, rec)
			if len(batch) >= b.batchSize {
				if err := b.insertBatch(batch); err != nil {
					return err
				}
				total += len(batch)
				batch = batch[:0]
			}
		}
	}
	if len(batch) > 0 {
		if err := b.insertBatch(batch); err != nil {
			return err
		}
		total += len(batch)
	}

	b.log.Info("denormalized table loaded", zap.Int("entities", total))
	return nil
}

// loadSource extracts all entity records of one source.
func (b *Builder) loadSource(src *source.Source) ([]entityRecord, error) {
	entity := src.Category(catEntity)
	if entity == nil {
		return nil, fmt.Errorf("source %s: %s: %w", src.Name(), catEntity, types.ErrMissingCategory)
	}
	if src.Category(catDatabase2) == nil {
		return nil, fmt.Errorf("source %s: %s: %w", src.Name(), catDatabase2, types.ErrMissingCategory)
	}

	sourceID := b.sourceID(src)
	polyLookup := b.buildPolymerLookup(src)
	nonpolyLookup := b.buildNonPolymerLookup(src)
	taxLookup := b.buildTaxonomyLookups(src)

	idIdx, hasID := entity.ColumnIndex("id")
	if !hasID {
		return nil, fmt.Errorf("source %s: %s.id: %w", src.Name(), catEntity, types.ErrMissingItem)
	}
	typeIdx, hasType := entity.ColumnIndex("type")
	methodIdx, hasMethod := entity.ColumnIndex("src_method")
	descIdx, hasDesc := entity.ColumnIndex("pdbx_description")

	var records []entityRecord
	for _, row := range entity.Rows() {
		rec := entityRecord{
			sourceID: sourceID,
			fileName: src.Name(),
			entityID: cleanField(cell(row, idIdx)),
		}
		if hasType {
			rec.kind = cleanField(cell(row, typeIdx))
		}
		if hasMethod {
			rec.srcMethod = cleanField(cell(row, methodIdx))
		}
		if hasDesc {
			rec.description = cleanField(cell(row, descIdx))
		}

		if rec.sourceID == "" || rec.entityID == "" {
			b.log.Warn("dropping entity row without source and entity identifiers",
				zap.String("file", src.Name()),
				zap.String("entity_id", rec.entityID))
			continue
		}

		if tax, ok := taxLookup[rec.srcMethod][rec.entityID]; ok {
			rec.organismScientific = tax.organism
			rec.ncbiTaxonomyID = tax.taxonomy
		}

		switch rec.kind {
		case KindPolymer:
			if poly, ok := polyLookup[rec.entityID]; ok {
				rec.seq = poly.seq
				rec.seqCan = poly.seqCan
				rec.polyType = poly.polyType
			}
			rec.ordinal = b.polymerOrdinal(rec.seq)
		case KindNonPolymer, KindWater:
			if compID, ok := nonpolyLookup[rec.entityID]; ok {
				rec.compID = compID
			}
			rec.ordinal = b.nonPolymerOrdinal(rec.compID)
		default:
			b.log.Warn("entity of unrecognized kind, no ordinal assigned",
				zap.String("file", src.Name()),
				zap.String("entity_id", rec.entityID),
				zap.String("kind", rec.kind))
		}

		records = append(records, rec)
	}
	b.log.Debug("loaded source entities",
		zap.String("file", src.Name()),
		zap.Int("entities", len(records)))
	return records, nil
}

// sourceID reads _database_2.database_code. An empty or missing code
// falls back to a source key derived from the file name so the row
// validity invariant can still hold. The result is cached per file so
// the enrichment passes resolve it once.
func (b *Builder) sourceID(src *source.Source) string {
	if id, ok := b.sourceIDs[src.Name()]; ok {
		return id
	}
	id := ""
	if db2 := src.Category(catDatabase2); db2 != nil {
		if codes, ok := db2.Column("database_code"); ok && len(codes) > 0 {
			if code := cleanField(codes[0]); !isUnset(code) {
				id = code
			}
		}
	}
	if id == "" {
		id = strings.ToUpper(strings.TrimSuffix(src.Name(), ".cif"))
		b.log.Warn("source has no database code, using file name",
			zap.String("file", src.Name()),
			zap.String("source_id", id))
	}
	b.sourceIDs[src.Name()] = id
	return id
}

// polymerOrdinal returns the dense ordinal for a trimmed sequence
// fingerprint, allocating on first sight.
func (b *Builder) polymerOrdinal(seq string) *int {
	if o, ok := b.polyOrdinals[seq]; ok {
		return &o
	}
	o := b.nextPoly
	b.nextPoly++
	b.polyOrdinals[seq] = o
	return &o
}

// nonPolymerOrdinal is the non-polymer/water counterpart, keyed by
// component id.
func (b *Builder) nonPolymerOrdinal(compID string) *int {
	if o, ok := b.nonpolyOrdinals[compID]; ok {
		return &o
	}
	o := b.nextNonpoly
	b.nextNonpoly++
	b.nonpolyOrdinals[compID] = o
	return &o
}

// buildPolymerLookup indexes _entity_poly by entity id so entity rows
// resolve their sequence data in O(1) instead of scanning per row.
func (b *Builder) buildPolymerLookup(src *source.Source) map[string]polymerData {
	lookup := make(map[string]polymerData)
	cat := src.Category(catEntityPoly)
	if cat == nil {
		return lookup
	}
	idIdx, ok := cat.ColumnIndex("entity_id")
	if !ok {
		b.log.Warn("polymer category without entity_id, skipping",
			zap.String("file", src.Name()))
		return lookup
	}
	seqIdx, _ := cat.ColumnIndex("pdbx_seq_one_letter_code")
	canIdx, hasCan := cat.ColumnIndex("pdbx_seq_one_letter_code_can")
	typeIdx, hasPolyType := cat.ColumnIndex("type")
	for _, row := range cat.Rows() {
		id := cleanField(cell(row, idIdx))
		if id == "" {
			continue
		}
		data := polymerData{seq: cleanField(cell(row, seqIdx))}
		if hasCan {
			data.seqCan = cleanField(cell(row, canIdx))
		}
		if hasPolyType {
			data.polyType = cleanField(cell(row, typeIdx))
		}
		lookup[id] = data
	}
	return lookup
}

// buildNonPolymerLookup indexes _pdbx_entity_nonpoly by entity id.
func (b *Builder) buildNonPolymerLookup(src *source.Source) map[string]string {
	lookup := make(map[string]string)
	cat := src.Category(catEntityNonPoly)
	if cat == nil {
		return lookup
	}
	idIdx, ok := cat.ColumnIndex("entity_id")
	compIdx, ok2 := cat.ColumnIndex("comp_id")
	if !ok || !ok2 {
		b.log.Warn("non-polymer category without entity_id/comp_id, skipping",
			zap.String("file", src.Name()))
		return lookup
	}
	for _, row := range cat.Rows() {
		id := cleanField(cell(row, idIdx))
		if id == "" {
			continue
		}
		lookup[id] = cleanField(cell(row, compIdx))
	}
	return lookup
}

// taxonomyCategories maps origin-method tags to the category and item
// names carrying the origin-organism data for that method.
var taxonomyCategories = []struct {
	method       string
	category     string
	organismItem string
	taxonomyItem string
}{
	{"nat", catSrcNatural, "pdbx_organism_scientific", "pdbx_ncbi_taxonomy_id"},
	{"man", catSrcEngineered, "pdbx_gene_src_scientific_name", "pdbx_gene_src_ncbi_taxonomy_id"},
	{"syn", catSrcSynthetic, "organism_scientific", "ncbi_taxonomy_id"},
}

// buildTaxonomyLookups indexes the three origin-method categories by
// entity id. The outer key is the origin-method tag.
func (b *Builder) buildTaxonomyLookups(src *source.Source) map[string]map[string]taxonomyData {
	lookups := make(map[string]map[string]taxonomyData, len(taxonomyCategories))
	for _, tc := range taxonomyCategories {
		lookups[tc.method] = make(map[string]taxonomyData)
		cat := src.Category(tc.category)
		if cat == nil {
			continue
		}
		idIdx, ok := cat.ColumnIndex("entity_id")
		if !ok {
			continue
		}
		orgIdx, hasOrg := cat.ColumnIndex(tc.organismItem)
		taxIdx, hasTax := cat.ColumnIndex(tc.taxonomyItem)
		for _, row := range cat.Rows() {
			id := cleanField(cell(row, idIdx))
			if id == "" {
				continue
			}
			var data taxonomyData
			if hasOrg {
				data.organism = cleanField(cell(row, orgIdx))
			}
			if hasTax {
				data.taxonomy = cleanField(cell(row, taxIdx))
			}
			lookups[tc.method][id] = data
		}
	}
	return lookups
}

// insertBatch writes one batch of records inside a transaction.
func (b *Builder) insertBatch(batch []entityRecord) error {
	tx, err := b.surface.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range batch {
		var ordinal sql.NullInt64
		if rec.ordinal != nil {
			ordinal = sql.NullInt64{Int64: int64(*rec.ordinal), Valid: true}
		}
		if _, err := stmt.Exec(
			ordinal, rec.sourceID, rec.fileName, rec.entityID, rec.kind,
			rec.seq, rec.seqCan, rec.compID, rec.srcMethod,
			rec.description, rec.polyType,
			rec.organismScientific, rec.ncbiTaxonomyID,
		); err != nil {
			return fmt.Errorf("inserting entity %s/%s: %w", rec.sourceID, rec.entityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	b.log.Debug("inserted batch", zap.Int("rows", len(batch)))
	return nil
}

// cleanField strips the quoting and whitespace artifacts model files
// carry around free-text values.
func cleanField(v string) string {
	v = strings.Trim(v, "'\"")
	v = strings.Trim(v, ";")
	v = strings.TrimRight(v, "\n")
	return strings.TrimSpace(v)
}

// isUnset reports whether a value is empty or one of the mmCIF
// placeholders for unknown and inapplicable data.
func isUnset(v string) bool {
	return v == "" || v == "?" || v == "."
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
