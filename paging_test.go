package visengine

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenPagedStoreRejectsNonPositiveRecordLength(t *testing.T) {
	if _, err := OpenPagedStore(filepath.Join(t.TempDir(), "x"), 0, ModeNew); err == nil {
		t.Fatal("expected error for a non-positive record length")
	}
}

func TestPagedStoreWriteReadRoundTrip(t *testing.T) {
	ps, err := OpenPagedStore(filepath.Join(t.TempDir(), "x"), 8, ModeNew)
	if err != nil {
		t.Fatalf("OpenPagedStore: %v", err)
	}
	defer ps.Close()

	want := []byte("abcdefgh")
	if _, err := ps.Write(1, 8, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := ps.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	got := make([]byte, 8)
	n, err := ps.Read(1, 8, got)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 8 || string(got) != string(want) {
		t.Fatalf("Read() = %q (%d bytes), want %q", got, n, want)
	}
}

func TestPagedStoreScratchModeUnlinksOnClose(t *testing.T) {
	dir := t.TempDir()
	ps, err := OpenPagedStore(filepath.Join(dir, "scratch"), 4, ModeScratch)
	if err != nil {
		t.Fatalf("OpenPagedStore: %v", err)
	}
	if _, err := ps.Write(1, 4, []byte("data")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := ps.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(ps.path); !os.IsNotExist(err) {
		t.Fatalf("scratch file %s still present after Close (Stat err = %v)", ps.path, err)
	}
}

func TestPagedStoreReadOnlyRejectsWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ro")
	ps, err := OpenPagedStore(path, 4, ModeNew)
	if err != nil {
		t.Fatalf("OpenPagedStore(ModeNew): %v", err)
	}
	if _, err := ps.Write(1, 4, []byte("data")); err != nil {
		t.Fatalf("initial Write: %v", err)
	}
	ps.Close()

	ro, err := OpenPagedStore(path, 4, ModeReadOnly)
	if err != nil {
		t.Fatalf("OpenPagedStore(ModeReadOnly): %v", err)
	}
	defer ro.Close()
	if _, err := ro.Write(1, 4, []byte("xxxx")); err == nil {
		t.Fatal("expected an error writing to a read-only store")
	}
}

func TestPagedStoreSeekTracksPosition(t *testing.T) {
	ps, err := OpenPagedStore(filepath.Join(t.TempDir(), "x"), 4, ModeNew)
	if err != nil {
		t.Fatalf("OpenPagedStore: %v", err)
	}
	defer ps.Close()

	if err := ps.Seek(3, 2); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	rec, off := ps.Tell()
	if rec != 3 || off != 2 {
		t.Fatalf("Tell() = (%d,%d), want (3,2)", rec, off)
	}
}

func TestPagedStoreSeekRejectsNegative(t *testing.T) {
	ps, err := OpenPagedStore(filepath.Join(t.TempDir(), "x"), 4, ModeNew)
	if err != nil {
		t.Fatalf("OpenPagedStore: %v", err)
	}
	defer ps.Close()
	if err := ps.Seek(-1, 0); err == nil {
		t.Fatal("expected error for a negative record index")
	}
}

func TestPagedStoreRewindClearsStickyError(t *testing.T) {
	ps, err := OpenPagedStore(filepath.Join(t.TempDir(), "x"), 4, ModeNew)
	if err != nil {
		t.Fatalf("OpenPagedStore: %v", err)
	}
	defer ps.Close()
	ps.sticky = true
	ps.stickyErr = ErrStoreIO
	if err := ps.Rewind(); err != nil {
		t.Fatalf("Rewind: %v", err)
	}
	if ps.HadError() {
		t.Fatal("expected Rewind to clear the sticky error state")
	}
}

func TestPagedStoreCloseOnNilFileIsNoop(t *testing.T) {
	ps := &PagedStore{}
	if err := ps.Close(); err != nil {
		t.Fatalf("Close on a never-opened store: %v", err)
	}
}
