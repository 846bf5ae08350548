// Package localstate persists the client-side wizard state: resume pointers,
// session snapshots, per-step field caches and recovery markers. Everything is
// stored as JSON under deterministic keys, so the file and SQLite backends are
// interchangeable and a cache layer can sit in front of either.
package localstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/futig/wizard-backend/internal/engine"
	"github.com/futig/wizard-backend/internal/entity"
)

// kv is the storage primitive all typed methods reduce to. get returns
// entity.ErrStateNotFound for a missing key; del of a missing key is a no-op.
type kv interface {
	get(ctx context.Context, key string) ([]byte, error)
	put(ctx context.Context, key string, payload []byte) error
	del(ctx context.Context, key string) error
	close() error
}

// Store implements the engine's three local persistence interfaces over one
// kv backend.
type Store struct {
	kv kv
}

var _ engine.SessionStore = &Store{}
var _ engine.FieldCacheStore = &Store{}
var _ engine.MarkerStore = &Store{}

// NewFile opens a file-backed store rooted at dir. Empty dir picks the
// platform data directory.
func NewFile(dir string) (*Store, error) {
	fs, err := newFileKV(dir)
	if err != nil {
		return nil, err
	}
	return &Store{kv: fs}, nil
}

// NewSQLite opens a SQLite-backed store at path, creating the schema on
// first use.
func NewSQLite(path string) (*Store, error) {
	db, err := newSQLiteKV(path)
	if err != nil {
		return nil, err
	}
	return &Store{kv: db}, nil
}

// WithCache layers a TTL read-through cache over the store's backend. Reads
// served from the cache never touch storage; writes go through.
func (s *Store) WithCache(ttl time.Duration) *Store {
	return &Store{kv: newCacheKV(s.kv, ttl)}
}

func (s *Store) Close() error {
	return s.kv.close()
}

func (s *Store) LoadPointer(ctx context.Context, wizard, workspaceID string) (*entity.ResumePointer, error) {
	var p entity.ResumePointer
	if err := s.load(ctx, pointerKey(wizard, workspaceID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SavePointer(ctx context.Context, wizard, workspaceID string, p *entity.ResumePointer) error {
	return s.save(ctx, pointerKey(wizard, workspaceID), p)
}

func (s *Store) LoadSnapshot(ctx context.Context, wizard, workspaceID, sessionID string) (*entity.Snapshot, error) {
	var snap entity.Snapshot
	if err := s.load(ctx, snapshotKey(wizard, workspaceID, sessionID), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, wizard, workspaceID string, snap *entity.Snapshot) error {
	return s.save(ctx, snapshotKey(wizard, workspaceID, snap.Session.ID), snap)
}

// Delete removes the snapshot and, when it still points at sessionID, the
// resume pointer.
func (s *Store) Delete(ctx context.Context, wizard, workspaceID, sessionID string) error {
	if err := s.kv.del(ctx, snapshotKey(wizard, workspaceID, sessionID)); err != nil {
		return err
	}
	ptr, err := s.LoadPointer(ctx, wizard, workspaceID)
	if err != nil {
		if errors.Is(err, entity.ErrStateNotFound) {
			return nil
		}
		return err
	}
	if ptr.SessionID != sessionID {
		return nil
	}
	return s.kv.del(ctx, pointerKey(wizard, workspaceID))
}

func (s *Store) LoadFields(ctx context.Context, wizard, workspaceID, sessionID string, step int) (*entity.FieldCache, error) {
	var fc entity.FieldCache
	if err := s.load(ctx, fieldsKey(wizard, workspaceID, sessionID, step), &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

func (s *Store) SaveFields(ctx context.Context, wizard, workspaceID, sessionID string, step int, fc *entity.FieldCache) error {
	return s.save(ctx, fieldsKey(wizard, workspaceID, sessionID, step), fc)
}

func (s *Store) ClearFields(ctx context.Context, wizard, workspaceID, sessionID string, step int) error {
	return s.kv.del(ctx, fieldsKey(wizard, workspaceID, sessionID, step))
}

func (s *Store) LoadMarker(ctx context.Context, wizard, workspaceID, action string) (*entity.OperationMarker, error) {
	var m entity.OperationMarker
	if err := s.load(ctx, markerKey(wizard, workspaceID, action), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) SaveMarker(ctx context.Context, wizard, workspaceID, action string, m *entity.OperationMarker) error {
	return s.save(ctx, markerKey(wizard, workspaceID, action), m)
}

func (s *Store) ClearMarker(ctx context.Context, wizard, workspaceID, action string) error {
	return s.kv.del(ctx, markerKey(wizard, workspaceID, action))
}

func (s *Store) LoadAwaiting(ctx context.Context, wizard, workspaceID string) (*entity.AwaitingQuestion, error) {
	var a entity.AwaitingQuestion
	if err := s.load(ctx, awaitingKey(wizard, workspaceID), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) SaveAwaiting(ctx context.Context, wizard, workspaceID string, a *entity.AwaitingQuestion) error {
	return s.save(ctx, awaitingKey(wizard, workspaceID), a)
}

func (s *Store) ClearAwaiting(ctx context.Context, wizard, workspaceID string) error {
	return s.kv.del(ctx, awaitingKey(wizard, workspaceID))
}

// RecoveryAttempted reports the once-only guard for dangling-step recovery.
// Absence means never attempted.
func (s *Store) RecoveryAttempted(ctx context.Context, sessionID string) (bool, error) {
	var attempted bool
	err := s.load(ctx, recoveryKey(sessionID), &attempted)
	if errors.Is(err, entity.ErrStateNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return attempted, nil
}

func (s *Store) SetRecoveryAttempted(ctx context.Context, sessionID string, attempted bool) error {
	if !attempted {
		return s.kv.del(ctx, recoveryKey(sessionID))
	}
	return s.save(ctx, recoveryKey(sessionID), attempted)
}

// LoadActivePlan returns the wizard name the workspace last ran, so a new
// process can remount the right plan before any user input arrives.
func (s *Store) LoadActivePlan(ctx context.Context, workspaceID string) (string, error) {
	var name string
	if err := s.load(ctx, activePlanKey(workspaceID), &name); err != nil {
		return "", err
	}
	return name, nil
}

func (s *Store) SaveActivePlan(ctx context.Context, workspaceID, wizard string) error {
	return s.save(ctx, activePlanKey(workspaceID), wizard)
}

func (s *Store) ClearActivePlan(ctx context.Context, workspaceID string) error {
	return s.kv.del(ctx, activePlanKey(workspaceID))
}

func (s *Store) load(ctx context.Context, key string, out any) error {
	b, err := s.kv.get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode state '%s': %w", key, err)
	}
	return nil
}

func (s *Store) save(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode state '%s': %w", key, err)
	}
	return s.kv.put(ctx, key, b)
}
