// Package filestore is a Metastore backend persisting one JSON
// document per index plus an indexes.json registry, serialized by a
// per-index mutex. Grounded on secondary/manager/meta_repo.go's
// in-memory-cache-plus-persistence shape and
// secondary/manager/topology.go's per-bucket document layout, adapted
// from Couchbase's repo/watcher machinery to plain local-disk JSON
// since duskline has no embedded consensus store to lean on.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/duskline/duskline/internal/metastore"
	"github.com/duskline/duskline/internal/model"
)

// Metastore is a filesystem-backed metastore.Metastore.
type Metastore struct {
	root string

	regMu sync.Mutex

	idxMuMu sync.Mutex
	idxMus map[string]*sync.Mutex
}

// indexState is the full persisted document for one index.
type indexState struct {
	Index *model.Index `json:"index"`
	Splits map[string]*model.SplitMetadata `json:"splits"`
	DeleteTasks []*metastore.DeleteTask `json:"delete_tasks"`
}

// New builds a Metastore persisting documents under root, creating it
// if absent.
func New(root string) (*Metastore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: creating root %s: %w", root, err)
	}
	return &Metastore{root: root, idxMus: make(map[string]*sync.Mutex)}, nil
}

var _ metastore.Metastore = (*Metastore)(nil)

func (m *Metastore) lockIndex(indexUID string) func() {
	m.idxMuMu.Lock()
	mu, ok := m.idxMus[indexUID]
	if !ok {
		mu = &sync.Mutex{}
		m.idxMus[indexUID] = mu
	}
	m.idxMuMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (m *Metastore) registryPath() string { return filepath.Join(m.root, "indexes.json") }
func (m *Metastore) indexPath(indexUID string) string {
	return filepath.Join(m.root, "indexes", indexUID+".json")
}

// loadRegistry returns the set of known index UIDs. Absence of the
// registry file is not an error; it means no index has been created
// yet.
func (m *Metastore) loadRegistry() ([]string, error) {
	data, err := os.ReadFile(m.registryPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &metastore.ErrConnection{Err: err}
	}
	var uids []string
	if err := json.Unmarshal(data, &uids); err != nil {
		return nil, &metastore.ErrInternal{Err: err}
	}
	return uids, nil
}

func (m *Metastore) saveRegistry(uids []string) error {
	sort.Strings(uids)
	data, err := json.MarshalIndent(uids, "", " ")
	if err != nil {
		return &metastore.ErrInternal{Err: err}
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return &metastore.ErrConnection{Err: err}
	}
	if err := os.WriteFile(m.registryPath(), data, 0o644); err != nil {
		return &metastore.ErrConnection{Err: err}
	}
	return nil
}

func (m *Metastore) loadState(indexUID string) (*indexState, error) {
	data, err := os.ReadFile(m.indexPath(indexUID))
	if os.IsNotExist(err) {
		return nil, &metastore.ErrNotFound{Entity: "index " + indexUID}
	}
	if err != nil {
		return nil, &metastore.ErrConnection{Err: err}
	}
	var st indexState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, &metastore.ErrInternal{Err: err}
	}
	if st.Splits == nil {
		st.Splits = make(map[string]*model.SplitMetadata)
	}
	return &st, nil
}

func (m *Metastore) saveState(indexUID string, st *indexState) error {
	data, err := json.MarshalIndent(st, "", " ")
	if err != nil {
		return &metastore.ErrInternal{Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(m.indexPath(indexUID)), 0o755); err != nil {
		return &metastore.ErrConnection{Err: err}
	}
	if err := os.WriteFile(m.indexPath(indexUID), data, 0o644); err != nil {
		return &metastore.ErrConnection{Err: err}
	}
	return nil
}

func (m *Metastore) CreateIndex(_ context.Context, idx *model.Index) error {
	unlock := m.lockIndex(idx.IndexUID)
	defer unlock()

	m.regMu.Lock()
	defer m.regMu.Unlock()

	if _, err := os.Stat(m.indexPath(idx.IndexUID)); err == nil {
		return &metastore.ErrAlreadyExists{Entity: "index " + idx.IndexUID}
	}

	uids, err := m.loadRegistry()
	if err != nil {
		return err
	}
	uids = append(uids, idx.IndexUID)

	st := &indexState{Index: idx.Clone(), Splits: make(map[string]*model.SplitMetadata)}
	if st.Index.CreatedAt.IsZero() {
		st.Index.CreatedAt = time.Now()
	}
	if err := m.saveState(idx.IndexUID, st); err != nil {
		return err
	}
	return m.saveRegistry(uids)
}

func (m *Metastore) DeleteIndex(_ context.Context, indexUID string) error {
	unlock := m.lockIndex(indexUID)
	defer unlock()

	m.regMu.Lock()
	defer m.regMu.Unlock()

	if _, err := m.loadState(indexUID); err != nil {
		return err
	}
	uids, err := m.loadRegistry()
	if err != nil {
		return err
	}
	kept := uids[:0]
	for _, u := range uids {
		if u != indexUID {
			kept = append(kept, u)
		}
	}
	if err := os.Remove(m.indexPath(indexUID)); err != nil && !os.IsNotExist(err) {
		return &metastore.ErrConnection{Err: err}
	}
	return m.saveRegistry(kept)
}

func (m *Metastore) IndexMetadata(_ context.Context, indexUID string) (*model.Index, error) {
	unlock := m.lockIndex(indexUID)
	defer unlock()

	st, err := m.loadState(indexUID)
	if err != nil {
		return nil, err
	}
	return st.Index.Clone(), nil
}

func (m *Metastore) ListIndexes(_ context.Context) ([]*model.Index, error) {
	uids, err := m.loadRegistry()
	if err != nil {
		return nil, err
	}
	var out []*model.Index
	for _, uid := range uids {
		unlock := m.lockIndex(uid)
		st, err := m.loadState(uid)
		unlock()
		if err != nil {
			continue
		}
		out = append(out, st.Index.Clone())
	}
	return out, nil
}

func (m *Metastore) AddSource(_ context.Context, indexUID string, src *model.Source) error {
	unlock := m.lockIndex(indexUID)
	defer unlock()

	st, err := m.loadState(indexUID)
	if err != nil {
		return err
	}
	if st.Index.Sources == nil {
		st.Index.Sources = make(map[string]*model.Source)
	}
	if _, exists := st.Index.Sources[src.SourceID]; exists {
		return &metastore.ErrAlreadyExists{Entity: "source " + src.SourceID}
	}
	st.Index.Sources[src.SourceID] = src.Clone()
	return m.saveState(indexUID, st)
}

func (m *Metastore) DeleteSource(_ context.Context, indexUID, sourceID string) error {
	unlock := m.lockIndex(indexUID)
	defer unlock()

	st, err := m.loadState(indexUID)
	if err != nil {
		return err
	}
	if _, exists := st.Index.Sources[sourceID]; !exists {
		return &metastore.ErrNotFound{Entity: "source " + sourceID}
	}
	delete(st.Index.Sources, sourceID)
	return m.saveState(indexUID, st)
}

func (m *Metastore) ToggleSource(_ context.Context, indexUID, sourceID string, enabled bool) error {
	unlock := m.lockIndex(indexUID)
	defer unlock()

	st, err := m.loadState(indexUID)
	if err != nil {
		return err
	}
	src, exists := st.Index.Sources[sourceID]
	if !exists {
		return &metastore.ErrNotFound{Entity: "source " + sourceID}
	}
	src.Enabled = enabled
	return m.saveState(indexUID, st)
}

func (m *Metastore) ResetSourceCheckpoint(_ context.Context, indexUID, sourceID string) error {
	unlock := m.lockIndex(indexUID)
	defer unlock()

	st, err := m.loadState(indexUID)
	if err != nil {
		return err
	}
	src, exists := st.Index.Sources[sourceID]
	if !exists {
		return &metastore.ErrNotFound{Entity: "source " + sourceID}
	}
	src.Checkpoint = model.Checkpoint{}
	return m.saveState(indexUID, st)
}

// StageSplits inserts each split as Staged, all-or-nothing. Re-staging an existing Staged split replaces its metadata;
// staging over a Published or MarkedForDeletion split fails the whole
// batch.
func (m *Metastore) StageSplits(_ context.Context, indexUID string, splits []*model.SplitMetadata) error {
	unlock := m.lockIndex(indexUID)
	defer unlock()

	st, err := m.loadState(indexUID)
	if err != nil {
		return err
	}
	for _, s := range splits {
		if existing, ok := st.Splits[s.SplitID]; ok && existing.State != model.SplitStaged {
			return &metastore.ErrAlreadyExists{Entity: "split " + s.SplitID}
		}
	}
	now := time.Now()
	for _, s := range splits {
		c := s.Clone()
		c.State = model.SplitStaged
		if c.CreateTimestamp == 0 {
			c.CreateTimestamp = now.Unix()
		}
		c.UpdateTimestamp = now.Unix()
		st.Splits[c.SplitID] = c
	}
	return m.saveState(indexUID, st)
}

// PublishSplits atomically verifies staged/replaced preconditions,
// composes the checkpoint delta, transitions states, and persists the
// result. On any precondition failure nothing is persisted.
func (m *Metastore) PublishSplits(_ context.Context, indexUID string, stagedSplitIDs, replacedSplitIDs []string, delta *model.CheckpointDelta) error {
	unlock := m.lockIndex(indexUID)
	defer unlock()

	st, err := m.loadState(indexUID)
	if err != nil {
		return err
	}

	for _, id := range stagedSplitIDs {
		s, ok := st.Splits[id]
		if !ok {
			return &metastore.ErrNotFound{Entity: "split " + id}
		}
		if s.State != model.SplitStaged {
			return &metastore.ErrFailedPrecondition{Entity: "split " + id, Message: "not staged"}
		}
	}
	for _, id := range replacedSplitIDs {
		s, ok := st.Splits[id]
		if !ok {
			return &metastore.ErrNotFound{Entity: "split " + id}
		}
		if s.State != model.SplitPublished {
			return &metastore.ErrFailedPrecondition{Entity: "split " + id, Message: "not published"}
		}
	}

	var newCheckpoint model.Checkpoint
	var source *model.Source
	if delta != nil {
		var exists bool
		source, exists = st.Index.Sources[delta.SourceID]
		if !exists {
			return &metastore.ErrNotFound{Entity: "source " + delta.SourceID}
		}
		newCheckpoint, err = source.Checkpoint.Apply(*delta)
		if err != nil {
			return err
		}
	}

	now := time.Now()
	for _, id := range stagedSplitIDs {
		st.Splits[id].State = model.SplitPublished
		st.Splits[id].UpdateTimestamp = now.Unix()
	}
	for _, id := range replacedSplitIDs {
		st.Splits[id].State = model.SplitMarkedForDeletion
		st.Splits[id].UpdateTimestamp = now.Unix()
	}
	if source != nil {
		source.Checkpoint = newCheckpoint
	}

	return m.saveState(indexUID, st)
}

func (m *Metastore) MarkSplitsForDeletion(_ context.Context, indexUID string, splitIDs []string) error {
	unlock := m.lockIndex(indexUID)
	defer unlock()

	st, err := m.loadState(indexUID)
	if err != nil {
		return err
	}
	for _, id := range splitIDs {
		s, ok := st.Splits[id]
		if !ok {
			continue
		}
		if !model.CanTransition(s.State, model.SplitMarkedForDeletion) {
			return &metastore.ErrFailedPrecondition{Entity: "split " + id, Message: "cannot transition to marked_for_deletion"}
		}
	}
	now := time.Now()
	for _, id := range splitIDs {
		if s, ok := st.Splits[id]; ok {
			s.State = model.SplitMarkedForDeletion
			s.UpdateTimestamp = now.Unix()
		}
	}
	return m.saveState(indexUID, st)
}

// DeleteSplits fails unless every input split is currently
// MarkedForDeletion.
func (m *Metastore) DeleteSplits(_ context.Context, indexUID string, splitIDs []string) error {
	unlock := m.lockIndex(indexUID)
	defer unlock()

	st, err := m.loadState(indexUID)
	if err != nil {
		return err
	}
	for _, id := range splitIDs {
		s, ok := st.Splits[id]
		if !ok {
			return &metastore.ErrNotFound{Entity: "split " + id}
		}
		if s.State != model.SplitMarkedForDeletion {
			return &metastore.ErrFailedPrecondition{Entity: "split " + id, Message: "not marked for deletion"}
		}
	}
	for _, id := range splitIDs {
		delete(st.Splits, id)
	}
	return m.saveState(indexUID, st)
}

func (m *Metastore) ListSplits(_ context.Context, query metastore.ListSplitsQuery) ([]*model.SplitMetadata, error) {
	indexUIDs := query.IndexUIDs
	if len(indexUIDs) == 0 {
		uids, err := m.loadRegistry()
		if err != nil {
			return nil, err
		}
		indexUIDs = uids
	}

	var matches []*model.SplitMetadata
	for _, uid := range indexUIDs {
		unlock := m.lockIndex(uid)
		st, err := m.loadState(uid)
		unlock()
		if err != nil {
			continue
		}
		for _, s := range st.Splits {
			if query.Matches(s) {
				matches = append(matches, s.Clone())
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].SplitID < matches[j].SplitID })

	if query.Offset > 0 {
		if query.Offset >= len(matches) {
			return nil, nil
		}
		matches = matches[query.Offset:]
	}
	if query.Limit > 0 && query.Limit < len(matches) {
		matches = matches[:query.Limit]
	}
	return matches, nil
}

func (m *Metastore) CreateDeleteTask(_ context.Context, indexUID, query string) (*metastore.DeleteTask, error) {
	unlock := m.lockIndex(indexUID)
	defer unlock()

	st, err := m.loadState(indexUID)
	if err != nil {
		return nil, err
	}
	st.Index.LastDeleteOpstamp++
	task := &metastore.DeleteTask{
		Opstamp: st.Index.LastDeleteOpstamp,
		IndexUID: indexUID,
		Query: query,
		CreatedAt: time.Now(),
	}
	st.DeleteTasks = append(st.DeleteTasks, task)
	if err := m.saveState(indexUID, st); err != nil {
		return nil, err
	}
	return task, nil
}

func (m *Metastore) ListDeleteTasks(_ context.Context, indexUID string, opstampStart uint64) ([]*metastore.DeleteTask, error) {
	unlock := m.lockIndex(indexUID)
	defer unlock()

	st, err := m.loadState(indexUID)
	if err != nil {
		return nil, err
	}
	var out []*metastore.DeleteTask
	for _, t := range st.DeleteTasks {
		if t.Opstamp >= opstampStart {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Metastore) LastDeleteOpstamp(_ context.Context, indexUID string) (uint64, error) {
	unlock := m.lockIndex(indexUID)
	defer unlock()

	st, err := m.loadState(indexUID)
	if err != nil {
		return 0, err
	}
	return st.Index.LastDeleteOpstamp, nil
}

// UpdateSplitsDeleteOpstamp only ever raises a split's delete_opstamp,
// matching the Open Question decision that a delete task racing a
// merge-publish becomes a no-op rather than lowering a split's stamp
// below one already applied by a later task.
func (m *Metastore) UpdateSplitsDeleteOpstamp(_ context.Context, indexUID string, splitIDs []string, opstamp uint64) error {
	unlock := m.lockIndex(indexUID)
	defer unlock()

	st, err := m.loadState(indexUID)
	if err != nil {
		return err
	}
	for _, id := range splitIDs {
		s, ok := st.Splits[id]
		if !ok {
			continue
		}
		if opstamp > s.DeleteOpstamp {
			s.DeleteOpstamp = opstamp
		}
	}
	return m.saveState(indexUID, st)
}
