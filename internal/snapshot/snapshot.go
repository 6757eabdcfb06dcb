// Package snapshot persists the model's scenarios and unit set.
//
// A snapshot file is a ZIP archive with a single data.json entry:
//
//	{"units": ["cm", "m"], "scenarios": {"* Default": {...}, "* Active": {...}}}
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"github.com/leapstack-labs/leapcalc/internal/scenario"
)

// EntryName is the archive member holding the JSON document.
const EntryName = "data.json"

// ErrNoData is returned when an archive lacks the data.json entry.
var ErrNoData = errors.New("snapshot: archive has no " + EntryName)

// Data is the persisted model state.
type Data struct {
	Units     []string                 `json:"units"`
	Scenarios map[string]scenario.Data `json:"scenarios"`
}

// Encode writes d as indented JSON.
func Encode(w io.Writer, d Data) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// Decode reads a JSON document written by Encode.
func Decode(r io.Reader) (Data, error) {
	var d Data
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return Data{}, fmt.Errorf("snapshot: decode: %w", err)
	}
	if d.Scenarios == nil {
		d.Scenarios = map[string]scenario.Data{}
	}
	return d, nil
}

// Write stores d as a deflated archive on w.
func Write(w io.Writer, d Data) error {
	zw := zip.NewWriter(w)
	f, err := zw.CreateHeader(&zip.FileHeader{Name: EntryName, Method: zip.Deflate})
	if err != nil {
		return err
	}
	if err := Encode(f, d); err != nil {
		return errors.Join(err, zw.Close())
	}
	return zw.Close()
}

// Read loads an archive written by Write.
func Read(r io.ReaderAt, size int64) (Data, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return Data{}, fmt.Errorf("snapshot: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != EntryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return Data{}, err
		}
		defer rc.Close()
		return Decode(rc)
	}
	return Data{}, ErrNoData
}

// Save writes d to path, replacing any existing file only once the new
// content is complete.
func Save(path string, d Data) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if err := Write(tmp, d); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads the snapshot at path.
func Load(path string) (Data, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Data{}, err
	}
	return Read(bytes.NewReader(b), int64(len(b)))
}
