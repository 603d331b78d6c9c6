package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jassi-singh/kvs/internal/format"
	"github.com/jassi-singh/kvs/internal/storage"
)

// Kvs is the generational log engine: an append-only log split across
// generation files, an in-memory index over it, and synchronous
// compaction to bound its size on disk. It implements Engine.
type Kvs struct {
	mu sync.Mutex

	dir          string
	compactBound uint64

	index     *KeyDir
	untracked uint64

	active uint64
	writer *storage.Writer

	readers map[uint64]*storage.Reader

	lock *storage.DirLock
}

// Open recovers (or creates) a log engine rooted at dir. It first acquires
// an exclusive lock on dir, enforcing that at most one engine process uses
// a given store directory at a time: a second engine process opening the
// same store fails immediately rather than racing the first for generation
// files. Existing generations are then replayed in ascending order to
// rebuild the index; a fresh, empty generation is created as the new
// active generation so prior generations remain strictly read-only.
func Open(dir string, compactBound uint64) (*Kvs, error) {
	lock, err := storage.LockDir(dir)
	if err != nil {
		return nil, fmt.Errorf("engine: opening store at %s: %w", dir, err)
	}

	gens, err := storage.ListGenerations(dir)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("engine: opening store at %s: %w", dir, err)
	}

	k := &Kvs{
		dir:          dir,
		compactBound: compactBound,
		index:        NewKeyDir(),
		readers:      make(map[uint64]*storage.Reader),
		lock:         lock,
	}

	for _, gen := range gens {
		f, err := storage.OpenGenerationReader(dir, gen)
		if err != nil {
			_ = lock.Unlock()
			return nil, err
		}
		r := storage.NewReader(f)
		k.readers[gen] = r

		if err := k.replay(gen, r); err != nil {
			_ = lock.Unlock()
			return nil, fmt.Errorf("engine: replaying generation %d: %w", gen, err)
		}
	}

	active := uint64(0)
	if len(gens) > 0 {
		active = gens[len(gens)-1] + 1
	}
	if err := k.openActive(active); err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	slog.Info("engine: kvs store opened",
		"dir", dir,
		"generations", len(gens),
		"active", active,
		"keys", k.index.Len())

	return k, nil
}

// openActive creates (or reopens) generation gen as the active generation,
// installing both its writer and its reader.
func (k *Kvs) openActive(gen uint64) error {
	w, r, err := storage.CreateGenerationWriter(k.dir, gen)
	if err != nil {
		return err
	}
	writer, err := storage.NewWriter(w)
	if err != nil {
		_ = w.Close()
		_ = r.Close()
		return err
	}
	k.active = gen
	k.writer = writer
	k.readers[gen] = storage.NewReader(r)
	return nil
}

// replay streams every record in generation gen from offset 0, applying
// each to the index exactly as set/remove would, crediting displaced
// bytes to untracked.
func (k *Kvs) replay(gen uint64, r *storage.Reader) error {
	for {
		start := r.Pos()
		cmd, err := format.DecodeOne(r)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		end := r.Pos()
		length := end - start

		switch cmd.Kind {
		case format.KindSet:
			entry := IndexEntry{Generation: gen, Offset: start, Length: length}
			if old, had := k.index.Insert(cmd.Key, entry); had {
				k.untracked += uint64(old.Length)
			}
		case format.KindRemove:
			if old, had := k.index.Remove(cmd.Key); had {
				k.untracked += uint64(old.Length)
			}
			k.untracked += uint64(length)
		}
	}
}

// Get returns the value for key, reading exactly the indexed byte range.
// It performs no writes.
func (k *Kvs) Get(key string) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.index.Lookup(key)
	if !ok {
		return "", false, nil
	}

	r, ok := k.readers[entry.Generation]
	if !ok {
		return "", false, fmt.Errorf("engine: no reader for generation %d", entry.Generation)
	}
	if err := r.Seek(entry.Offset); err != nil {
		return "", false, fmt.Errorf("engine: seeking generation %d: %w", entry.Generation, err)
	}

	lr := io.LimitReader(r, entry.Length)
	cmd, err := format.DecodeOne(lr)
	if err != nil {
		return "", false, fmt.Errorf("engine: decoding record for key %q: %w", key, err)
	}
	if cmd.Kind != format.KindSet {
		return "", false, fmt.Errorf("%w: key %q", ErrCommandMismatch, key)
	}

	return cmd.Val, true, nil
}

// Set writes a Set record, flushes it, and updates the index. Compaction
// runs synchronously if the untracked-bytes threshold is exceeded.
func (k *Kvs) Set(key, val string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, err := k.appendRecord(format.Command{
		Kind:      format.KindSet,
		Timestamp: time.Now().UnixNano(),
		Key:       key,
		Val:       val,
	})
	if err != nil {
		return err
	}

	if old, had := k.index.Insert(key, entry); had {
		k.untracked += uint64(old.Length)
	}

	return k.maybeCompact()
}

// Remove deletes key, appending a Remove record after verifying the key
// currently exists.
func (k *Kvs) Remove(key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	old, had := k.index.Lookup(key)
	if !had {
		return ErrKeyNotFound
	}

	entry, err := k.appendRecord(format.Command{
		Kind:      format.KindRemove,
		Timestamp: time.Now().UnixNano(),
		Key:       key,
	})
	if err != nil {
		return err
	}

	k.index.Remove(key)
	k.untracked += uint64(old.Length)
	k.untracked += uint64(entry.Length)

	return k.maybeCompact()
}

// appendRecord encodes cmd, appends it to the active generation, flushes,
// and returns the index entry describing where it landed.
func (k *Kvs) appendRecord(cmd format.Command) (IndexEntry, error) {
	data := format.Encode(cmd)

	start := k.writer.Pos()
	if _, err := k.writer.Write(data); err != nil {
		return IndexEntry{}, fmt.Errorf("engine: appending record: %w", err)
	}
	if err := k.writer.Flush(); err != nil {
		return IndexEntry{}, fmt.Errorf("engine: flushing record: %w", err)
	}
	end := k.writer.Pos()

	return IndexEntry{Generation: k.active, Offset: start, Length: end - start}, nil
}

// maybeCompact runs compaction if the untracked-bytes counter has crossed
// the configured bound.
func (k *Kvs) maybeCompact() error {
	if k.untracked <= k.compactBound {
		return nil
	}
	return k.compact()
}

// compact rewrites every live record into a fresh read-only generation and
// opens a new active generation, per the two-generation bump scheme: the
// compacted generation is never written to again once created.
func (k *Kvs) compact() error {
	compactGen := k.active + 1
	newActive := k.active + 2

	cw, cr, err := storage.CreateGenerationWriter(k.dir, compactGen)
	if err != nil {
		return err
	}
	compactWriter, err := storage.NewWriter(cw)
	if err != nil {
		_ = cw.Close()
		_ = cr.Close()
		return err
	}

	staleGens := make(map[uint64]struct{}, len(k.readers))
	for gen := range k.readers {
		staleGens[gen] = struct{}{}
	}

	for key, entry := range k.index.Keys() {
		r, ok := k.readers[entry.Generation]
		if !ok {
			return fmt.Errorf("engine: compacting key %q: no reader for generation %d", key, entry.Generation)
		}
		if err := r.Seek(entry.Offset); err != nil {
			return fmt.Errorf("engine: compacting key %q: %w", key, err)
		}

		buf := make([]byte, entry.Length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("engine: compacting key %q: reading record: %w", key, err)
		}

		newOffset := compactWriter.Pos()
		if _, err := compactWriter.Write(buf); err != nil {
			return fmt.Errorf("engine: compacting key %q: writing record: %w", key, err)
		}

		k.index.Insert(key, IndexEntry{
			Generation: compactGen,
			Offset:     newOffset,
			Length:     entry.Length,
		})
	}

	if err := compactWriter.Close(); err != nil {
		return fmt.Errorf("engine: flushing compacted generation: %w", err)
	}

	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("engine: closing superseded active generation: %w", err)
	}

	for gen := range staleGens {
		if r, ok := k.readers[gen]; ok {
			_ = r.Close()
			delete(k.readers, gen)
		}
		if err := storage.DeleteGeneration(k.dir, gen); err != nil {
			return fmt.Errorf("engine: deleting stale generation %d: %w", gen, err)
		}
	}

	k.readers[compactGen] = storage.NewReader(cr)

	if err := k.openActive(newActive); err != nil {
		return err
	}
	k.untracked = 0

	slog.Info("engine: compaction complete",
		"dir", k.dir,
		"compact_gen", compactGen,
		"new_active", newActive,
		"keys", k.index.Len())

	return nil
}

// Close flushes the active generation, closes every open file handle, and
// releases the directory lock acquired by Open so another engine process
// may use the store.
func (k *Kvs) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	var firstErr error
	if err := k.writer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	for _, r := range k.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := k.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
