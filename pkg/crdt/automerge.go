package crdt

import (
	"context"
	"sync"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/cuemby/collabcore/pkg/cerrors"
)

// automergeFactory is the one Factory implementation collabcore ships,
// backed by github.com/automerge/automerge-go. It is the sole file in the
// module that imports the automerge package directly.
type automergeFactory struct{}

// NewFactory returns the automerge-backed Session factory.
func NewFactory() Factory {
	return automergeFactory{}
}

func (automergeFactory) Open(ctx context.Context, initialUpdates [][]byte) (Session, error) {
	var doc *automerge.Doc
	if len(initialUpdates) == 0 {
		doc = automerge.New()
	} else {
		loaded, err := automerge.Load(initialUpdates[0])
		if err != nil {
			return nil, cerrors.Wrap(cerrors.KindSerialization, err, "load initial document state")
		}
		doc = loaded
		for _, update := range initialUpdates[1:] {
			if _, err := doc.LoadIncremental(update); err != nil {
				return nil, cerrors.Wrap(cerrors.KindSerialization, err, "apply initial update")
			}
		}
	}

	s := &automergeSession{
		doc:        doc,
		undoStacks: map[Origin][]docRevision{},
		redoStacks: map[Origin][]docRevision{},
	}
	return s, nil
}

// automergeSession implements Session with a coarse exclusive write lock
// and a shared read lock, matching the "single writer, multi reader
// session guarded by a retrying exclusive lock" design used for the
// shared mutable document with observers.
type automergeSession struct {
	mu  sync.RWMutex
	doc *automerge.Doc

	subMu   sync.Mutex
	subs    map[int]func([]byte, Origin)
	nextSub int

	undoMu     sync.Mutex
	undoStacks map[Origin][]docRevision
	redoStacks map[Origin][]docRevision
}

// docRevision records the full document state immediately before and
// after one committed write, so Undo/Redo can restore either side
// exactly instead of only toggling a bookkeeping flag.
type docRevision struct {
	before []byte
	after  []byte
}

func (s *automergeSession) Read(ctx context.Context, fn func(Doc) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(automergeDoc{doc: s.doc})
}

func (s *automergeSession) Write(ctx context.Context, origin Origin, fn func(Doc) error) error {
	s.mu.Lock()
	update, err := s.writeLocked(origin, fn)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(update, origin)
	return nil
}

func (s *automergeSession) TryWrite(ctx context.Context, origin Origin, fn func(Doc) error) error {
	if !s.mu.TryLock() {
		return errContended()
	}
	update, err := s.writeLocked(origin, fn)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(update, origin)
	return nil
}

func (s *automergeSession) WriteRetry(ctx context.Context, origin Origin, fn func(Doc) error, deadline time.Time) error {
	backoff := time.Millisecond
	for {
		if s.mu.TryLock() {
			update, err := s.writeLocked(origin, fn)
			s.mu.Unlock()
			if err != nil {
				return err
			}
			s.notify(update, origin)
			return nil
		}
		if time.Now().After(deadline) {
			return errTimeout()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 200*time.Millisecond {
			backoff *= 2
		}
	}
}

// writeLocked runs fn under the already-held write lock and, on success,
// merges its change into s.doc and records it on origin's undo stack. It
// never delivers to subscribers itself: that happens after the caller has
// released s.mu, so a subscriber that calls back into this session (the
// persistence plugin's Encode-and-compact path) never contends with the
// lock its own commit is still holding.
//
// fn runs against a scratch clone of the document, not s.doc directly, so
// an error returned by fn leaves s.doc completely untouched; the clone and
// everything fn did to it are simply discarded.
func (s *automergeSession) writeLocked(origin Origin, fn func(Doc) error) ([]byte, error) {
	before, err := s.doc.Save()
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindSerialization, err, "snapshot document before write")
	}

	working, err := automerge.Load(before)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindSerialization, err, "clone document for write")
	}

	if err := fn(automergeDoc{doc: working}); err != nil {
		return nil, err
	}

	update, err := working.SaveIncremental()
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindSerialization, err, "save incremental update")
	}
	if len(update) == 0 {
		return nil, nil
	}

	if _, err := s.doc.LoadIncremental(update); err != nil {
		return nil, cerrors.Wrap(cerrors.KindSerialization, err, "apply committed update")
	}

	after, err := s.doc.Save()
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindSerialization, err, "snapshot document after write")
	}

	s.undoMu.Lock()
	s.undoStacks[origin] = append(s.undoStacks[origin], docRevision{before: before, after: after})
	s.redoStacks[origin] = nil
	s.undoMu.Unlock()

	return update, nil
}

// notify delivers update to every subscriber. Called only after the
// caller's write lock has been released.
func (s *automergeSession) notify(update []byte, origin Origin) {
	if len(update) == 0 {
		return
	}
	s.subMu.Lock()
	subs := make([]func([]byte, Origin), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, sub := range subs {
		sub(update, origin)
	}
}

func (s *automergeSession) Subscribe(fn func(update []byte, origin Origin)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.subs == nil {
		s.subs = map[int]func([]byte, Origin){}
	}
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Undo restores the document to its state immediately before origin's
// last committed write, by reloading s.doc wholesale from that write's
// recorded "before" snapshot. The reverted write moves to the redo stack
// so Redo can restore its "after" snapshot.
func (s *automergeSession) Undo(origin Origin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.undoMu.Lock()
	stack := s.undoStacks[origin]
	if len(stack) == 0 {
		s.undoMu.Unlock()
		return cerrors.New(cerrors.KindUndoNotEnabled, "nothing to undo for origin")
	}
	rev := stack[len(stack)-1]
	s.undoStacks[origin] = stack[:len(stack)-1]
	s.redoStacks[origin] = append(s.redoStacks[origin], rev)
	s.undoMu.Unlock()

	reverted, err := automerge.Load(rev.before)
	if err != nil {
		return cerrors.Wrap(cerrors.KindSerialization, err, "reload document for undo")
	}
	s.doc = reverted
	return nil
}

// Redo reapplies the most recently undone write by reloading s.doc from
// its recorded "after" snapshot.
func (s *automergeSession) Redo(origin Origin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.undoMu.Lock()
	stack := s.redoStacks[origin]
	if len(stack) == 0 {
		s.undoMu.Unlock()
		return cerrors.New(cerrors.KindUndoNotEnabled, "nothing to redo for origin")
	}
	rev := stack[len(stack)-1]
	s.redoStacks[origin] = stack[:len(stack)-1]
	s.undoStacks[origin] = append(s.undoStacks[origin], rev)
	s.undoMu.Unlock()

	reapplied, err := automerge.Load(rev.after)
	if err != nil {
		return cerrors.Wrap(cerrors.KindSerialization, err, "reload document for redo")
	}
	s.doc = reapplied
	return nil
}

func (s *automergeSession) CanUndo(origin Origin) bool {
	s.undoMu.Lock()
	defer s.undoMu.Unlock()
	return len(s.undoStacks[origin]) > 0
}

func (s *automergeSession) CanRedo(origin Origin) bool {
	s.undoMu.Lock()
	defer s.undoMu.Unlock()
	return len(s.redoStacks[origin]) > 0
}

func (s *automergeSession) Encode() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := s.doc.Save()
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindSerialization, err, "encode document")
	}
	return data, nil
}

func (s *automergeSession) Close() error {
	return nil
}

// automergeDoc implements Doc over automerge's root map, namespacing each
// top-level collabcore map (e.g. "cells", "meta", "blocks") as a nested
// map under the automerge root so one automerge.Doc can hold a whole
// object's state.
type automergeDoc struct {
	doc *automerge.Doc
}

func (d automergeDoc) Map(name string) Map {
	root, err := d.doc.RootMap()
	if err != nil {
		return failedMap{err: err}
	}
	m, err := root.Map(name)
	if err != nil {
		if m, cerr := root.PutObject(name, automerge.NewMap()); cerr == nil {
			return automergeMap{m: m}
		} else {
			return failedMap{err: err}
		}
	}
	return automergeMap{m: m}
}

type automergeMap struct {
	m *automerge.Map
}

func (m automergeMap) Get(key string) (any, bool) {
	v, err := m.m.Get(key)
	if err != nil || v == nil {
		return nil, false
	}
	return v.Value(), true
}

func (m automergeMap) Set(key string, value any) {
	_ = m.m.Set(key, value)
}

func (m automergeMap) Delete(key string) {
	_ = m.m.Delete(key)
}

func (m automergeMap) Keys() []string {
	keys, err := m.m.Keys()
	if err != nil {
		return nil
	}
	return keys
}

func (m automergeMap) SubMap(key string) Map {
	sub, err := m.m.Map(key)
	if err != nil {
		sub, err = m.m.PutObject(key, automerge.NewMap())
		if err != nil {
			return failedMap{err: err}
		}
	}
	return automergeMap{m: sub}
}

func (m automergeMap) SubArray(key string) Array {
	sub, err := m.m.List(key)
	if err != nil {
		sub, err = m.m.PutObject(key, automerge.NewList())
		if err != nil {
			return failedArray{err: err}
		}
	}
	return automergeArray{l: sub}
}

type automergeArray struct {
	l *automerge.List
}

func (a automergeArray) Len() int {
	n, err := a.l.Len()
	if err != nil {
		return 0
	}
	return n
}

func (a automergeArray) Get(i int) (any, bool) {
	v, err := a.l.Get(i)
	if err != nil || v == nil {
		return nil, false
	}
	return v.Value(), true
}

func (a automergeArray) Insert(i int, value any) {
	_ = a.l.Insert(i, value)
}

func (a automergeArray) Delete(i int) {
	_ = a.l.Delete(i)
}

func (a automergeArray) Append(value any) {
	_ = a.l.Append(value)
}

func (a automergeArray) Values() []any {
	n := a.Len()
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		v, ok := a.Get(i)
		if ok {
			out = append(out, v)
		}
	}
	return out
}

// failedMap/failedArray let accessor errors surface lazily at the first
// operation instead of forcing every caller in pkg/document, pkg/database,
// and pkg/folder to thread an error out of Doc.Map/SubMap/SubArray, which
// the CRDT library models as fallible but collabcore's adapters treat as
// infallible once a transaction is open.
type failedMap struct{ err error }

func (failedMap) Get(string) (any, bool)  { return nil, false }
func (failedMap) Set(string, any)         {}
func (failedMap) Delete(string)           {}
func (failedMap) Keys() []string          { return nil }
func (f failedMap) SubMap(string) Map     { return f }
func (f failedMap) SubArray(string) Array { return failedArray{err: f.err} }

type failedArray struct{ err error }

func (failedArray) Len() int            { return 0 }
func (failedArray) Get(int) (any, bool) { return nil, false }
func (failedArray) Insert(int, any)     {}
func (failedArray) Delete(int)          {}
func (failedArray) Append(any)          {}
func (failedArray) Values() []any       { return nil }
