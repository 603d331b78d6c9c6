package engine

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jassi-singh/kvs/internal/format"
	"github.com/jassi-singh/kvs/internal/storage"
)

const testCompactBound = 1024

func openTestKvs(t *testing.T) (*Kvs, string) {
	t.Helper()
	dir := t.TempDir()
	k, err := Open(dir, testCompactBound)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { k.Close() })
	return k, dir
}

func TestOpenRejectsSecondProcessOnSameDir(t *testing.T) {
	k, dir := openTestKvs(t)
	_ = k

	if _, err := Open(dir, testCompactBound); err == nil {
		t.Fatalf("Open() on already-locked directory: want error, got nil")
	}
}

func TestOpenAfterCloseReacquiresLock(t *testing.T) {
	dir := t.TempDir()

	k1, err := Open(dir, testCompactBound)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := k1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	k2, err := Open(dir, testCompactBound)
	if err != nil {
		t.Fatalf("Open() after Close() error = %v", err)
	}
	defer k2.Close()
}

func TestEmptyStoreGetReturnsNotFound(t *testing.T) {
	k, _ := openTestKvs(t)

	_, found, err := k.Get("k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Fatalf("Get() found = true, want false on empty store")
	}
}

func TestSetThenGet(t *testing.T) {
	k, _ := openTestKvs(t)

	if err := k.Set("a", "1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	val, found, err := k.Get("a")
	if err != nil || !found || val != "1" {
		t.Fatalf("Get() = (%q, %v, %v), want (1, true, nil)", val, found, err)
	}

	if err := k.Set("a", "2"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	val, found, err = k.Get("a")
	if err != nil || !found || val != "2" {
		t.Fatalf("Get() after overwrite = (%q, %v, %v), want (2, true, nil)", val, found, err)
	}
}

func TestRemoveSemantics(t *testing.T) {
	k, _ := openTestKvs(t)

	if err := k.Set("x", "y"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := k.Remove("x"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	_, found, err := k.Get("x")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Fatalf("Get() after remove: found = true, want false")
	}

	if err := k.Remove("x"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Remove() on absent key = %v, want ErrKeyNotFound", err)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	k1, err := Open(dir, testCompactBound)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := k1.Set("k", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := k1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	k2, err := Open(dir, testCompactBound)
	if err != nil {
		t.Fatalf("reopen Open() error = %v", err)
	}
	defer k2.Close()

	val, found, err := k2.Get("k")
	if err != nil || !found || val != "v" {
		t.Fatalf("Get() after reopen = (%q, %v, %v), want (v, true, nil)", val, found, err)
	}
}

func TestRemoveSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	k1, err := Open(dir, testCompactBound)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := k1.Set("k", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := k1.Remove("k"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := k1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	k2, err := Open(dir, testCompactBound)
	if err != nil {
		t.Fatalf("reopen Open() error = %v", err)
	}
	defer k2.Close()

	_, found, err := k2.Get("k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Fatalf("Get() after reopen following remove: found = true, want false")
	}
}

func TestCompactionPreservesObservableState(t *testing.T) {
	k, _ := openTestKvs(t)

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("key-%d", i%5)
		val := fmt.Sprintf("val-%d", i)
		if err := k.Set(key, val); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	if err := k.compact(); err != nil {
		t.Fatalf("compact() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("key-%d", i)
		val, found, err := k.Get(key)
		if err != nil || !found {
			t.Fatalf("Get(%q) after compaction = (%q, %v, %v)", key, val, found, err)
		}
	}
}

func TestCompactionBoundsLogSize(t *testing.T) {
	dir := t.TempDir()
	k, err := Open(dir, 1001)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer k.Close()

	var lastVal string
	for i := 0; i < 10000; i++ {
		lastVal = fmt.Sprintf("v%d", i)
		if err := k.Set("k", lastVal); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	val, found, err := k.Get("k")
	if err != nil || !found || val != lastVal {
		t.Fatalf("Get() = (%q, %v, %v), want (%q, true, nil)", val, found, err, lastVal)
	}

	gens, err := storage.ListGenerations(dir)
	if err != nil {
		t.Fatalf("ListGenerations() error = %v", err)
	}
	if len(gens) > 2 {
		t.Fatalf("generation count after heavy writes = %d, want <= 2", len(gens))
	}

	var total int64
	for _, gen := range gens {
		path := storage.GenerationPath(dir, gen)
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat(%s) error = %v", path, err)
		}
		total += info.Size()
	}

	finalEncodedLen := int64(format.HeaderSize + len("k") + len(lastVal))
	if total >= 10*finalEncodedLen {
		t.Fatalf("combined generation size = %d, want < 10x final record size (%d)", total, finalEncodedLen)
	}
}

func TestCompactionOnEmptyIndex(t *testing.T) {
	k, dir := openTestKvs(t)

	if err := k.compact(); err != nil {
		t.Fatalf("compact() on empty index error = %v", err)
	}

	gens, err := storage.ListGenerations(dir)
	if err != nil {
		t.Fatalf("ListGenerations() error = %v", err)
	}
	if len(gens) != 2 {
		t.Fatalf("generations after empty compaction = %v, want 2 (compact + fresh active)", gens)
	}
}

func TestGetNonexistentKeyAfterOthersSet(t *testing.T) {
	k, _ := openTestKvs(t)

	if err := k.Set("present", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	_, found, err := k.Get("absent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Fatalf("Get() found = true for never-set key")
	}
}

func TestSetEmptyValue(t *testing.T) {
	k, _ := openTestKvs(t)

	if err := k.Set("empty", ""); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	val, found, err := k.Get("empty")
	if err != nil || !found || val != "" {
		t.Fatalf("Get() = (%q, %v, %v), want (\"\", true, nil)", val, found, err)
	}
}
