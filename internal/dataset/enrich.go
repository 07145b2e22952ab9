package dataset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"invgen/internal/mmcif"
)

// Enrich runs the post-pass enrichments over the loaded table and
// stamps the investigation id on every row. Build must have succeeded
// first. Passes that depend on optional source categories skip sources
// that lack them; everything else here is deterministic table surgery.
func (b *Builder) Enrich(investigationID string) error {
	if err := b.applyStructRefs(); err != nil {
		return err
	}
	if err := b.assignDescriptionGroups(); err != nil {
		return err
	}
	if err := b.assignSampleGroups(); err != nil {
		return err
	}
	if err := b.applySynchrotrons(); err != nil {
		return err
	}
	if err := b.applyExperiments(); err != nil {
		return err
	}
	return b.stampInvestigationID(investigationID)
}

// assignDescriptionGroups fingerprints each source by the sorted set of
// ordinals it contains, separately for the polymer and the
// non-polymer/water partitions, and assigns a dense group id per
// distinct fingerprint in first-seen order.
func (b *Builder) assignDescriptionGroups() error {
	if err := b.assignGroupColumn("poly_group_id", []string{KindPolymer}); err != nil {
		return err
	}
	return b.assignGroupColumn("nonpoly_group_id", []string{KindNonPolymer, KindWater})
}

func (b *Builder) assignGroupColumn(column string, kinds []string) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(kinds)), ",")
	args := make([]any, len(kinds))
	for i, k := range kinds {
		args[i] = k
	}
	rows, err := b.surface.QueryStrings(
		"SELECT source_id, ordinal FROM denormalized_data WHERE kind IN ("+placeholders+") AND ordinal IS NOT NULL ORDER BY rowid",
		args...)
	if err != nil {
		return fmt.Errorf("collecting %s fingerprints: %w", column, err)
	}

	// Ordinal sets per source, sources kept in first-seen order.
	var sourceOrder []string
	ordinalSets := make(map[string]map[int]bool)
	for _, row := range rows {
		sourceID := row[0]
		ordinal, err := strconv.Atoi(row[1])
		if err != nil {
			return fmt.Errorf("unexpected ordinal %q for source %s: %w", row[1], sourceID, err)
		}
		set, ok := ordinalSets[sourceID]
		if !ok {
			set = make(map[int]bool)
			ordinalSets[sourceID] = set
			sourceOrder = append(sourceOrder, sourceID)
		}
		set[ordinal] = true
	}

	groupIDs := make(map[string]int)
	next := 1
	for _, sourceID := range sourceOrder {
		fp := fingerprint(ordinalSets[sourceID])
		id, ok := groupIDs[fp]
		if !ok {
			id = next
			next++
			groupIDs[fp] = id
		}
		if err := b.surface.Exec(
			"UPDATE denormalized_data SET "+column+" = ? WHERE source_id = ?",
			id, sourceID); err != nil {
			return fmt.Errorf("assigning %s for source %s: %w", column, sourceID, err)
		}
	}
	b.log.Debug("assigned description groups",
		zap.String("column", column),
		zap.Int("groups", next-1))
	return nil
}

// fingerprint renders a set of ordinals as its sorted comma-joined form,
// so two sources with the same composition map to the same group.
func fingerprint(set map[int]bool) string {
	ordinals := make([]int, 0, len(set))
	for o := range set {
		ordinals = append(ordinals, o)
	}
	sort.Ints(ordinals)
	parts := make([]string, len(ordinals))
	for i, o := range ordinals {
		parts[i] = strconv.Itoa(o)
	}
	return strings.Join(parts, ",")
}

// assignSampleGroups gives every distinct (poly group, nonpoly group)
// pair a dense sample id, first-seen order over table insertion order.
func (b *Builder) assignSampleGroups() error {
	rows, err := b.surface.QueryStrings(
		"SELECT COALESCE(poly_group_id, ''), COALESCE(nonpoly_group_id, '') FROM denormalized_data ORDER BY rowid")
	if err != nil {
		return fmt.Errorf("collecting sample pairs: %w", err)
	}

	type pair struct{ poly, nonpoly string }
	sampleIDs := make(map[pair]int)
	next := 1
	for _, row := range rows {
		p := pair{poly: row[0], nonpoly: row[1]}
		if _, ok := sampleIDs[p]; ok {
			continue
		}
		sampleIDs[p] = next
		// CAST before COALESCE: the group columns are integers and the
		// pair values are rendered as text.
		if err := b.surface.Exec(
			"UPDATE denormalized_data SET sample_id = ? WHERE COALESCE(CAST(poly_group_id AS TEXT), '') = ? AND COALESCE(CAST(nonpoly_group_id AS TEXT), '') = ?",
			next, p.poly, p.nonpoly); err != nil {
			return fmt.Errorf("assigning sample id %d: %w", next, err)
		}
		next++
	}
	b.log.Debug("assigned sample groups", zap.Int("samples", next-1))
	return nil
}

// applySynchrotrons propagates the synchrotron site onto each source's
// rows and allocates a dense campaign id per distinct site value in
// first-seen order. Sources without diffraction-source data keep their
// fields unset.
func (b *Builder) applySynchrotrons() error {
	campaigns := make(map[string]int)
	next := 1
	for _, src := range b.set.Sources() {
		cat := src.Category(catDiffrnSource)
		if cat == nil {
			b.log.Debug("source has no synchrotron data", zap.String("file", src.Name()))
			continue
		}
		sites, ok := cat.Column("pdbx_synchrotron_site")
		if !ok {
			b.log.Warn("diffraction source without synchrotron site item",
				zap.String("file", src.Name()))
			continue
		}
		sourceID := b.sourceID(src)
		for _, raw := range sites {
			site := cleanField(raw)
			id, ok := campaigns[site]
			if !ok {
				id = next
				next++
				campaigns[site] = id
			}
			if err := b.surface.Exec(
				"UPDATE denormalized_data SET synchrotron_site = ?, campaign_id = ?, series_id = ? WHERE source_id = ?",
				site, id, id, sourceID); err != nil {
				return fmt.Errorf("applying synchrotron data for source %s: %w", sourceID, err)
			}
		}
	}
	return nil
}

// applyExperiments propagates the experimental method onto each
// source's rows. Optional per source.
func (b *Builder) applyExperiments() error {
	for _, src := range b.set.Sources() {
		cat := src.Category(catExperiment)
		if cat == nil {
			b.log.Debug("source has no experiment data", zap.String("file", src.Name()))
			continue
		}
		methods, ok := cat.Column("method")
		if !ok {
			b.log.Warn("experiment category without method item", zap.String("file", src.Name()))
			continue
		}
		sourceID := b.sourceID(src)
		for _, raw := range methods {
			if err := b.surface.Exec(
				"UPDATE denormalized_data SET exptl_method = ? WHERE source_id = ?",
				cleanField(raw), sourceID); err != nil {
				return fmt.Errorf("applying experiment data for source %s: %w", sourceID, err)
			}
		}
	}
	return nil
}

// applyStructRefs propagates database cross-references onto polymer
// rows, keyed by source and entity identifier. Optional per source.
func (b *Builder) applyStructRefs() error {
	for _, src := range b.set.Sources() {
		cat := src.Category(catStructRef)
		if cat == nil {
			b.log.Debug("source has no struct_ref data", zap.String("file", src.Name()))
			continue
		}
		entityIdx, ok := cat.ColumnIndex("entity_id")
		if !ok {
			b.log.Warn("struct_ref without entity_id, skipping", zap.String("file", src.Name()))
			continue
		}
		nameIdx := optionalIndex(cat, "db_name")
		codeIdx := optionalIndex(cat, "db_code")
		accIdx := optionalIndex(cat, "pdbx_db_accession")
		sourceID := b.sourceID(src)
		for _, row := range cat.Rows() {
			if err := b.surface.Exec(
				"UPDATE denormalized_data SET db_name = ?, db_code = ?, db_accession = ? WHERE source_id = ? AND entity_id = ? AND kind = ?",
				cleanField(cell(row, nameIdx)),
				cleanField(cell(row, codeIdx)),
				cleanField(cell(row, accIdx)),
				sourceID, cleanField(cell(row, entityIdx)), KindPolymer); err != nil {
				return fmt.Errorf("applying struct_ref for source %s: %w", sourceID, err)
			}
		}
	}
	return nil
}

// optionalIndex resolves an item to its column index, or -1 when the
// category does not carry it.
func optionalIndex(cat *mmcif.Category, item string) int {
	i, ok := cat.ColumnIndex(item)
	if !ok {
		return -1
	}
	return i
}

// stampInvestigationID sets the final investigation id on every row.
func (b *Builder) stampInvestigationID(id string) error {
	if err := b.surface.Exec(
		"UPDATE denormalized_data SET investigation_id = ?", id); err != nil {
		return fmt.Errorf("stamping investigation id: %w", err)
	}
	return nil
}
