// Package postgres is a transactional Metastore backend over
// PostgreSQL, grounded on pgxpool-backed connection pattern. Every
// multi-row mutation (stage_splits, publish_splits,
// mark_splits_for_deletion, delete_splits, create_delete_task) runs
// inside a single pgx transaction so the all-or-nothing preconditions
// are enforced by the database rather than client-side check-then-act.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duskline/duskline/internal/metastore"
	"github.com/duskline/duskline/internal/model"
)

// Metastore is a PostgreSQL-backed metastore.Metastore.
type Metastore struct {
	pool *pgxpool.Pool
}

// New connects to connString and returns a ready Metastore. Callers
// are expected to have applied the schema in schema.sql beforehand.
func New(ctx context.Context, connString string) (*Metastore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, &metastore.ErrConnection{Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &metastore.ErrConnection{Err: err}
	}
	return &Metastore{pool: pool}, nil
}

// Close releases the connection pool.
func (m *Metastore) Close() { m.pool.Close() }

var _ metastore.Metastore = (*Metastore)(nil)

func asConnErr(err error) error {
	if err == nil {
		return nil
	}
	return &metastore.ErrConnection{Err: err}
}

func (m *Metastore) CreateIndex(ctx context.Context, idx *model.Index) error {
	mapping, err := json.Marshal(idx.Mapping)
	if err != nil {
		return &metastore.ErrInternal{Err: err}
	}
	createdAt := idx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = m.pool.Exec(ctx, `
 INSERT INTO indexes (index_uid, index_id, index_uri, mapping, created_at, last_delete_opstamp)
 VALUES ($1, $2, $3, $4, $5, 0)`,
		idx.IndexUID, idx.IndexID, idx.IndexURI, mapping, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &metastore.ErrAlreadyExists{Entity: "index " + idx.IndexUID}
		}
		return asConnErr(err)
	}
	for _, src := range idx.Sources {
		if err := m.insertSource(ctx, idx.IndexUID, src); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metastore) insertSource(ctx context.Context, indexUID string, src *model.Source) error {
	params, err := json.Marshal(src.Params)
	if err != nil {
		return &metastore.ErrInternal{Err: err}
	}
	checkpoint, err := json.Marshal(src.Checkpoint)
	if err != nil {
		return &metastore.ErrInternal{Err: err}
	}
	_, err = m.pool.Exec(ctx, `
 INSERT INTO sources (index_uid, source_id, source_type, enabled, desired_num_pipelines, max_num_pipelines_per_indexer, params, checkpoint)
 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
 ON CONFLICT (index_uid, source_id) DO UPDATE SET
 source_type = EXCLUDED.source_type,
 enabled = EXCLUDED.enabled,
 desired_num_pipelines = EXCLUDED.desired_num_pipelines,
 max_num_pipelines_per_indexer = EXCLUDED.max_num_pipelines_per_indexer,
 params = EXCLUDED.params,
 checkpoint = EXCLUDED.checkpoint`,
		indexUID, src.SourceID, src.SourceType, src.Enabled, src.DesiredNumPipelines,
		src.MaxNumPipelinesPerNode, params, checkpoint)
	return asConnErr(err)
}

func (m *Metastore) DeleteIndex(ctx context.Context, indexUID string) error {
	tag, err := m.pool.Exec(ctx, `DELETE FROM indexes WHERE index_uid = $1`, indexUID)
	if err != nil {
		return asConnErr(err)
	}
	if tag.RowsAffected() == 0 {
		return &metastore.ErrNotFound{Entity: "index " + indexUID}
	}
	return nil
}

func (m *Metastore) IndexMetadata(ctx context.Context, indexUID string) (*model.Index, error) {
	row := m.pool.QueryRow(ctx, `
 SELECT index_uid, index_id, index_uri, mapping, created_at, last_delete_opstamp
 FROM indexes WHERE index_uid = $1`, indexUID)
		idx, err := scanIndex(row)
		if err != nil {
			return nil, err
		}
		sources, err := m.loadSources(ctx, indexUID)
		if err != nil {
			return nil, err
		}
		idx.Sources = sources
		return idx, nil
	}

	func (m *Metastore) ListIndexes(ctx context.Context) ([]*model.Index, error) {
		rows, err := m.pool.Query(ctx, `
 SELECT index_uid, index_id, index_uri, mapping, created_at, last_delete_opstamp FROM indexes`)
			if err != nil {
				return nil, asConnErr(err)
			}
			defer rows.Close()

			var out []*model.Index
			for rows.Next() {
				idx, err := scanIndex(rows)
				if err != nil {
					return nil, err
				}
				sources, err := m.loadSources(ctx, idx.IndexUID)
				if err != nil {
					return nil, err
				}
				idx.Sources = sources
				out = append(out, idx)
			}
			return out, asConnErr(rows.Err())
		}

		type rowScanner interface {
			Scan(dest...interface{}) error
		}

		func scanIndex(row rowScanner) (*model.Index, error) {
			var idx model.Index
			var mapping []byte
			err := row.Scan(&idx.IndexUID, &idx.IndexID, &idx.IndexURI, &mapping, &idx.CreatedAt, &idx.LastDeleteOpstamp)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, &metastore.ErrNotFound{Entity: "index"}
			}
			if err != nil {
				return nil, asConnErr(err)
			}
			if len(mapping) > 0 {
				if err := json.Unmarshal(mapping, &idx.Mapping); err != nil {
					return nil, &metastore.ErrInternal{Err: err}
				}
			}
			return &idx, nil
		}

		func (m *Metastore) loadSources(ctx context.Context, indexUID string) (map[string]*model.Source, error) {
			rows, err := m.pool.Query(ctx, `
 SELECT source_id, source_type, enabled, desired_num_pipelines, max_num_pipelines_per_indexer, params, checkpoint
 FROM sources WHERE index_uid = $1`, indexUID)
				if err != nil {
					return nil, asConnErr(err)
				}
				defer rows.Close()

				out := make(map[string]*model.Source)
				for rows.Next() {
					var src model.Source
					var params, checkpoint []byte
					if err := rows.Scan(&src.SourceID, &src.SourceType, &src.Enabled, &src.DesiredNumPipelines,
						&src.MaxNumPipelinesPerNode, &params, &checkpoint); err != nil {
						return nil, asConnErr(err)
					}
					if len(params) > 0 {
						if err := json.Unmarshal(params, &src.Params); err != nil {
							return nil, &metastore.ErrInternal{Err: err}
						}
					}
					if len(checkpoint) > 0 {
						if err := json.Unmarshal(checkpoint, &src.Checkpoint); err != nil {
							return nil, &metastore.ErrInternal{Err: err}
						}
					}
					out[src.SourceID] = &src
				}
				return out, asConnErr(rows.Err())
			}

			func (m *Metastore) AddSource(ctx context.Context, indexUID string, src *model.Source) error {
				var exists bool
				if err := m.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sources WHERE index_uid=$1 AND source_id=$2)`,
					indexUID, src.SourceID).Scan(&exists); err != nil {
					return asConnErr(err)
				}
				if exists {
					return &metastore.ErrAlreadyExists{Entity: "source " + src.SourceID}
				}
				return m.insertSource(ctx, indexUID, src)
			}

			func (m *Metastore) DeleteSource(ctx context.Context, indexUID, sourceID string) error {
				tag, err := m.pool.Exec(ctx, `DELETE FROM sources WHERE index_uid=$1 AND source_id=$2`, indexUID, sourceID)
				if err != nil {
					return asConnErr(err)
				}
				if tag.RowsAffected() == 0 {
					return &metastore.ErrNotFound{Entity: "source " + sourceID}
				}
				return nil
			}

			func (m *Metastore) ToggleSource(ctx context.Context, indexUID, sourceID string, enabled bool) error {
				tag, err := m.pool.Exec(ctx, `UPDATE sources SET enabled=$3 WHERE index_uid=$1 AND source_id=$2`,
					indexUID, sourceID, enabled)
				if err != nil {
					return asConnErr(err)
				}
				if tag.RowsAffected() == 0 {
					return &metastore.ErrNotFound{Entity: "source " + sourceID}
				}
				return nil
			}

			func (m *Metastore) ResetSourceCheckpoint(ctx context.Context, indexUID, sourceID string) error {
				empty, _ := json.Marshal(model.Checkpoint{})
				tag, err := m.pool.Exec(ctx, `UPDATE sources SET checkpoint=$3 WHERE index_uid=$1 AND source_id=$2`,
					indexUID, sourceID, empty)
				if err != nil {
					return asConnErr(err)
				}
				if tag.RowsAffected() == 0 {
					return &metastore.ErrNotFound{Entity: "source " + sourceID}
				}
				return nil
			}

			// StageSplits resolves the Open Question decision on re-staging
			// (DESIGN.md): one INSERT... ON CONFLICT (split_id) DO UPDATE guarded
			// by a WHERE clause that only matches an existing row already in
			// state 'staged', inside a single transaction covering the whole
			// batch so the operation stays all-or-nothing.
			func (m *Metastore) StageSplits(ctx context.Context, indexUID string, splits []*model.SplitMetadata) error {
				tx, err := m.pool.Begin(ctx)
				if err != nil {
					return asConnErr(err)
				}
				defer tx.Rollback(ctx)

				now := time.Now()
				for _, s := range splits {
					tags, _ := json.Marshal(s.Tags)
					replaced, _ := json.Marshal(s.ReplacedSplitIDs)
					createTs := s.CreateTimestamp
					if createTs == 0 {
						createTs = now.Unix()
					}
					tag, err := tx.Exec(ctx, `
 INSERT INTO splits (
 split_id, index_uid, source_id, partition_id, state, num_docs,
 min_timestamp, max_timestamp, time_range_present, uncompressed_bytes,
 num_merge_ops, replaced_split_ids, delete_opstamp, tags, maturity_timestamp,
 footer_start, footer_end, create_timestamp, update_timestamp)
 VALUES ($1,$2,$3,$4,'staged',$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
 ON CONFLICT (split_id) DO UPDATE SET
 source_id = EXCLUDED.source_id,
 partition_id = EXCLUDED.partition_id,
 num_docs = EXCLUDED.num_docs,
 min_timestamp = EXCLUDED.min_timestamp,
 max_timestamp = EXCLUDED.max_timestamp,
 time_range_present = EXCLUDED.time_range_present,
 uncompressed_bytes = EXCLUDED.uncompressed_bytes,
 num_merge_ops = EXCLUDED.num_merge_ops,
 replaced_split_ids = EXCLUDED.replaced_split_ids,
 tags = EXCLUDED.tags,
 maturity_timestamp = EXCLUDED.maturity_timestamp,
 footer_start = EXCLUDED.footer_start,
 footer_end = EXCLUDED.footer_end,
 update_timestamp = EXCLUDED.update_timestamp
 WHERE splits.state = 'staged'`,
						s.SplitID, indexUID, s.SourceID, s.PartitionID, s.NumDocs,
						s.TimeRange.MinTimestamp, s.TimeRange.MaxTimestamp, s.TimeRange.Present, s.UncompressedBytes,
						s.NumMergeOps, replaced, s.DeleteOpstamp, tags, s.MaturityTimestamp,
						s.Footer.Start, s.Footer.End, createTs, now.Unix())
					if err != nil {
						return asConnErr(err)
					}
					if tag.RowsAffected() == 0 {
						return &metastore.ErrAlreadyExists{Entity: "split " + s.SplitID}
					}
				}
				return asConnErr(tx.Commit(ctx))
			}

			func (m *Metastore) PublishSplits(ctx context.Context, indexUID string, stagedSplitIDs, replacedSplitIDs []string, delta *model.CheckpointDelta) error {
				tx, err := m.pool.Begin(ctx)
				if err != nil {
					return asConnErr(err)
				}
				defer tx.Rollback(ctx)

				if err := requireState(ctx, tx, stagedSplitIDs, "staged"); err != nil {
					return err
				}
				if err := requireState(ctx, tx, replacedSplitIDs, "published"); err != nil {
					return err
				}

				if delta != nil {
					var checkpointRaw []byte
					if err := tx.QueryRow(ctx, `SELECT checkpoint FROM sources WHERE index_uid=$1 AND source_id=$2 FOR UPDATE`,
						indexUID, delta.SourceID).Scan(&checkpointRaw); err != nil {
						if errors.Is(err, pgx.ErrNoRows) {
							return &metastore.ErrNotFound{Entity: "source " + delta.SourceID}
						}
						return asConnErr(err)
					}
					var checkpoint model.Checkpoint
					if len(checkpointRaw) > 0 {
						if err := json.Unmarshal(checkpointRaw, &checkpoint); err != nil {
							return &metastore.ErrInternal{Err: err}
						}
					}
					next, err := checkpoint.Apply(*delta)
					if err != nil {
						return err
					}
					nextRaw, err := json.Marshal(next)
					if err != nil {
						return &metastore.ErrInternal{Err: err}
					}
					if _, err := tx.Exec(ctx, `UPDATE sources SET checkpoint=$3 WHERE index_uid=$1 AND source_id=$2`,
						indexUID, delta.SourceID, nextRaw); err != nil {
						return asConnErr(err)
					}
				}

				now := time.Now().Unix()
				if len(stagedSplitIDs) > 0 {
					if _, err := tx.Exec(ctx, `UPDATE splits SET state='published', update_timestamp=$2 WHERE split_id = ANY($1)`,
						stagedSplitIDs, now); err != nil {
						return asConnErr(err)
					}
				}
				if len(replacedSplitIDs) > 0 {
					if _, err := tx.Exec(ctx, `UPDATE splits SET state='marked_for_deletion', update_timestamp=$2 WHERE split_id = ANY($1)`,
						replacedSplitIDs, now); err != nil {
						return asConnErr(err)
					}
				}
				return asConnErr(tx.Commit(ctx))
			}

			func requireState(ctx context.Context, tx pgx.Tx, splitIDs []string, state string) error {
				if len(splitIDs) == 0 {
					return nil
				}
				rows, err := tx.Query(ctx, `SELECT split_id, state FROM splits WHERE split_id = ANY($1) FOR UPDATE`, splitIDs)
				if err != nil {
					return asConnErr(err)
				}
				defer rows.Close()

				found := make(map[string]string, len(splitIDs))
				for rows.Next() {
					var id, st string
					if err := rows.Scan(&id, &st); err != nil {
						return asConnErr(err)
					}
					found[id] = st
				}
				if err := rows.Err(); err != nil {
					return asConnErr(err)
				}
				for _, id := range splitIDs {
					st, ok := found[id]
					if !ok {
						return &metastore.ErrNotFound{Entity: "split " + id}
					}
					if st != state {
						return &metastore.ErrFailedPrecondition{Entity: "split " + id, Message: "expected state " + state}
					}
				}
				return nil
			}

			func (m *Metastore) MarkSplitsForDeletion(ctx context.Context, indexUID string, splitIDs []string) error {
				if len(splitIDs) == 0 {
					return nil
				}
				_, err := m.pool.Exec(ctx, `
 UPDATE splits SET state='marked_for_deletion', update_timestamp=$2
 WHERE split_id = ANY($1) AND state IN ('staged', 'published')`,
					splitIDs, time.Now().Unix())
				return asConnErr(err)
			}

			func (m *Metastore) DeleteSplits(ctx context.Context, indexUID string, splitIDs []string) error {
				tx, err := m.pool.Begin(ctx)
				if err != nil {
					return asConnErr(err)
				}
				defer tx.Rollback(ctx)

				if err := requireState(ctx, tx, splitIDs, "marked_for_deletion"); err != nil {
					return err
				}
				if _, err := tx.Exec(ctx, `DELETE FROM splits WHERE split_id = ANY($1)`, splitIDs); err != nil {
					return asConnErr(err)
				}
				return asConnErr(tx.Commit(ctx))
			}

			func (m *Metastore) ListSplits(ctx context.Context, query metastore.ListSplitsQuery) ([]*model.SplitMetadata, error) {
				sql := `SELECT split_id, index_uid, source_id, partition_id, state, num_docs,
 min_timestamp, max_timestamp, time_range_present, uncompressed_bytes,
 num_merge_ops, replaced_split_ids, delete_opstamp, tags, maturity_timestamp,
 footer_start, footer_end, create_timestamp, update_timestamp
 FROM splits`
				var args []interface{}
				if len(query.IndexUIDs) > 0 {
					args = append(args, query.IndexUIDs)
					sql += fmt.Sprintf(" WHERE index_uid = ANY($%d)", len(args))
				}
				sql += " ORDER BY split_id ASC"

				rows, err := m.pool.Query(ctx, sql, args...)
				if err != nil {
					return nil, asConnErr(err)
				}
				defer rows.Close()

				var out []*model.SplitMetadata
				for rows.Next() {
					var s model.SplitMetadata
					var tags, replaced []byte
					if err := rows.Scan(&s.SplitID, &s.IndexUID, &s.SourceID, &s.PartitionID, &s.State, &s.NumDocs,
						&s.TimeRange.MinTimestamp, &s.TimeRange.MaxTimestamp, &s.TimeRange.Present, &s.UncompressedBytes,
						&s.NumMergeOps, &replaced, &s.DeleteOpstamp, &tags, &s.MaturityTimestamp,
						&s.Footer.Start, &s.Footer.End, &s.CreateTimestamp, &s.UpdateTimestamp); err != nil {
						return nil, asConnErr(err)
					}
					if len(tags) > 0 {
						_ = json.Unmarshal(tags, &s.Tags)
					}
					if len(replaced) > 0 {
						_ = json.Unmarshal(replaced, &s.ReplacedSplitIDs)
					}
					if query.Matches(&s) {
						out = append(out, &s)
					}
				}
				if err := rows.Err(); err != nil {
					return nil, asConnErr(err)
				}

				if query.Offset > 0 {
					if query.Offset >= len(out) {
						return nil, nil
					}
					out = out[query.Offset:]
				}
				if query.Limit > 0 && query.Limit < len(out) {
					out = out[:query.Limit]
				}
				return out, nil
			}

			func (m *Metastore) CreateDeleteTask(ctx context.Context, indexUID, q string) (*metastore.DeleteTask, error) {
				tx, err := m.pool.Begin(ctx)
				if err != nil {
					return nil, asConnErr(err)
				}
				defer tx.Rollback(ctx)

				var opstamp uint64
				if err := tx.QueryRow(ctx, `
 UPDATE indexes SET last_delete_opstamp = last_delete_opstamp + 1
 WHERE index_uid = $1 RETURNING last_delete_opstamp`, indexUID).Scan(&opstamp); err != nil {
					if errors.Is(err, pgx.ErrNoRows) {
						return nil, &metastore.ErrNotFound{Entity: "index " + indexUID}
					}
					return nil, asConnErr(err)
				}

				createdAt := time.Now()
				if _, err := tx.Exec(ctx, `
 INSERT INTO delete_tasks (opstamp, index_uid, query, created_at) VALUES ($1, $2, $3, $4)`,
					opstamp, indexUID, q, createdAt); err != nil {
					return nil, asConnErr(err)
				}
				if err := tx.Commit(ctx); err != nil {
					return nil, asConnErr(err)
				}
				return &metastore.DeleteTask{Opstamp: opstamp, IndexUID: indexUID, Query: q, CreatedAt: createdAt}, nil
			}

			func (m *Metastore) ListDeleteTasks(ctx context.Context, indexUID string, opstampStart uint64) ([]*metastore.DeleteTask, error) {
				rows, err := m.pool.Query(ctx, `
 SELECT opstamp, index_uid, query, created_at FROM delete_tasks
 WHERE index_uid = $1 AND opstamp >= $2 ORDER BY opstamp ASC`, indexUID, opstampStart)
					if err != nil {
						return nil, asConnErr(err)
					}
					defer rows.Close()

					var out []*metastore.DeleteTask
					for rows.Next() {
						var t metastore.DeleteTask
						if err := rows.Scan(&t.Opstamp, &t.IndexUID, &t.Query, &t.CreatedAt); err != nil {
							return nil, asConnErr(err)
						}
						out = append(out, &t)
					}
					return out, asConnErr(rows.Err())
				}

				func (m *Metastore) LastDeleteOpstamp(ctx context.Context, indexUID string) (uint64, error) {
					var opstamp uint64
					err := m.pool.QueryRow(ctx, `SELECT last_delete_opstamp FROM indexes WHERE index_uid = $1`, indexUID).Scan(&opstamp)
					if errors.Is(err, pgx.ErrNoRows) {
						return 0, &metastore.ErrNotFound{Entity: "index " + indexUID}
					}
					if err != nil {
						return 0, asConnErr(err)
					}
					return opstamp, nil
				}

				func (m *Metastore) UpdateSplitsDeleteOpstamp(ctx context.Context, indexUID string, splitIDs []string, opstamp uint64) error {
					if len(splitIDs) == 0 {
						return nil
					}
					_, err := m.pool.Exec(ctx, `
 UPDATE splits SET delete_opstamp = $2
 WHERE split_id = ANY($1) AND delete_opstamp < $2`, splitIDs, opstamp)
						return asConnErr(err)
					}

					const pgUniqueViolation = "23505"

					func isUniqueViolation(err error) bool {
						var pgErr *pgconn.PgError
						return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
					}
