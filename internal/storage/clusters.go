package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/andeslab/thesisrec/internal/metadata"
)

// ReplaceClusters replaces all cluster assignments and labels for a model
// in a single transaction. Assignments map uuid to cluster id; labels map
// cluster id to a display label.
func (s *Store) ReplaceClusters(modelName string, assignments map[string]int, labels map[int]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM clusters WHERE model_name = ?`, modelName); err != nil {
		return fmt.Errorf("clearing clusters: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM cluster_labels WHERE model_name = ?`, modelName); err != nil {
		return fmt.Errorf("clearing cluster labels: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO clusters (uuid, model_name, cluster_id) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing cluster insert: %w", err)
	}
	defer stmt.Close()

	// Deterministic insert order keeps failures reproducible.
	uuids := make([]string, 0, len(assignments))
	for u := range assignments {
		uuids = append(uuids, u)
	}
	sort.Strings(uuids)

	for _, u := range uuids {
		if _, err := stmt.Exec(u, modelName, assignments[u]); err != nil {
			return fmt.Errorf("inserting cluster for %s: %w", u, err)
		}
	}

	labelStmt, err := tx.Prepare(`INSERT INTO cluster_labels (model_name, cluster_id, label) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing label insert: %w", err)
	}
	defer labelStmt.Close()

	ids := make([]int, 0, len(labels))
	for id := range labels {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		if _, err := labelStmt.Exec(modelName, id, labels[id]); err != nil {
			return fmt.Errorf("inserting label for cluster %d: %w", id, err)
		}
	}

	return tx.Commit()
}

// enrichChunkSize caps the number of bound variables per query, well under
// sqlite's host parameter limit.
const enrichChunkSize = 500

// EnrichItems fetches items for the given uuids with cluster assignment and
// label for the given model joined in. The result is keyed by uuid; uuids
// not present in the store are simply absent from the map. Large uuid sets
// are queried in chunks so the variable count stays bounded.
func (s *Store) EnrichItems(uuids []string, modelName string) (map[string]metadata.Item, error) {
	out := make(map[string]metadata.Item, len(uuids))
	for start := 0; start < len(uuids); start += enrichChunkSize {
		end := start + enrichChunkSize
		if end > len(uuids) {
			end = len(uuids)
		}
		if err := s.enrichChunk(uuids[start:end], modelName, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) enrichChunk(uuids []string, modelName string, out map[string]metadata.Item) error {
	args := make([]interface{}, 0, len(uuids)+2)
	args = append(args, modelName, modelName)
	for _, u := range uuids {
		args = append(args, u)
	}

	rows, err := s.db.Query(`
		SELECT i.uuid, i.handle, i.title, i.title_norm, i.abstract, i.abstract_norm,
		       i.authors_json, i.subjects_json, i.date_issued, i.url, i.university, i.created_at,
		       c.cluster_id, cl.label
		FROM items i
		LEFT JOIN clusters c
		  ON c.uuid = i.uuid AND c.model_name = ?
		LEFT JOIN cluster_labels cl
		  ON cl.model_name = ? AND cl.cluster_id = c.cluster_id
		WHERE i.uuid IN (`+placeholders(len(uuids))+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("querying enriched items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		it, err := scanEnrichedItem(rows)
		if err != nil {
			return err
		}
		out[it.UUID] = *it
	}

	return rows.Err()
}

// SameTopicItems returns up to limit items sharing a cluster with the given
// model, excluding one uuid (the query's own top hit), newest first.
func (s *Store) SameTopicItems(modelName string, clusterID int, excludeUUID string, limit int) ([]metadata.Item, error) {
	rows, err := s.db.Query(`
		SELECT i.uuid, i.handle, i.title, i.title_norm, i.abstract, i.abstract_norm,
		       i.authors_json, i.subjects_json, i.date_issued, i.url, i.university, i.created_at,
		       c.cluster_id, cl.label
		FROM clusters c
		JOIN items i ON i.uuid = c.uuid
		LEFT JOIN cluster_labels cl
		  ON cl.model_name = ? AND cl.cluster_id = c.cluster_id
		WHERE c.model_name = ?
		  AND c.cluster_id = ?
		  AND i.uuid != ?
		ORDER BY i.created_at DESC
		LIMIT ?
	`, modelName, modelName, clusterID, excludeUUID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying same-topic items: %w", err)
	}
	defer rows.Close()

	var items []metadata.Item
	for rows.Next() {
		it, err := scanEnrichedItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}

	return items, rows.Err()
}

func scanEnrichedItem(rows *sql.Rows) (*metadata.Item, error) {
	var it metadata.Item
	var handle, titleNorm, abstract, abstractNorm sql.NullString
	var authorsJSON, subjectsJSON, dateIssued, url, university sql.NullString
	var createdAt int64
	var clusterID sql.NullInt64
	var label sql.NullString

	err := rows.Scan(
		&it.UUID, &handle, &it.Title, &titleNorm, &abstract, &abstractNorm,
		&authorsJSON, &subjectsJSON, &dateIssued, &url, &university, &createdAt,
		&clusterID, &label,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning enriched item: %w", err)
	}

	it.Handle = handle.String
	it.TitleNorm = titleNorm.String
	it.Abstract = abstract.String
	it.AbstractNorm = abstractNorm.String
	it.DateIssued = dateIssued.String
	if authorsJSON.String != "" {
		if err := json.Unmarshal([]byte(authorsJSON.String), &it.Authors); err != nil {
			return nil, fmt.Errorf("parsing authors for %s: %w", it.UUID, err)
		}
	}
	if subjectsJSON.String != "" {
		if err := json.Unmarshal([]byte(subjectsJSON.String), &it.Subjects); err != nil {
			return nil, fmt.Errorf("parsing subjects for %s: %w", it.UUID, err)
		}
	}
	it.URL = url.String
	it.University = university.String
	it.CreatedAt = timeFromNano(createdAt)

	if clusterID.Valid {
		id := int(clusterID.Int64)
		it.ClusterID = &id
	}
	it.Label = label.String

	return &it, nil
}
