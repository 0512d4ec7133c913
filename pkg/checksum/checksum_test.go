package checksum

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// sha256("abc")
const abcDigest = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

func writeTemp(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "resource.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}

	return path
}

func TestBytes(t *testing.T) {
	if got := Bytes([]byte("abc")); got != abcDigest {
		t.Errorf("Bytes() = %s, want %s", got, abcDigest)
	}
}

func TestFile(t *testing.T) {
	got, err := File(writeTemp(t, "abc"))
	if err != nil {
		t.Fatalf("File() error: %v", err)
	}

	if got != abcDigest {
		t.Errorf("File() = %s, want %s", got, abcDigest)
	}
}

func TestFile_Missing(t *testing.T) {
	if _, err := File(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatal("Expected error for missing file")
	}
}

func TestVerify(t *testing.T) {
	path := writeTemp(t, "abc")

	ok, err := Verify(path, abcDigest)
	if err != nil || !ok {
		t.Fatalf("Verify() = %v, %v; want true, nil", ok, err)
	}

	ok, err = Verify(path, Bytes([]byte("other")))
	if ok || !errors.Is(err, ErrHashMismatch) {
		t.Errorf("Verify() = %v, %v; want false, ErrHashMismatch", ok, err)
	}

	if _, err := Verify(path, ""); !errors.Is(err, ErrNoHash) {
		t.Errorf("Verify() with empty hash error = %v, want ErrNoHash", err)
	}
}
