// Package handoff reads and writes the JSON documents the pipeline stages use
// to hand records to each other.
package handoff

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
)

var (
	// ErrDocumentNotFound is returned when a handoff file does not exist.
	ErrDocumentNotFound = errors.New("handoff document not found")
	// ErrInvalidDocument is returned when a handoff file is not a JSON array
	// of records of the expected shape.
	ErrInvalidDocument = errors.New("invalid handoff document")
)

const (
	permFile = 0o644
	permDir  = 0o755
)

// Paths holds the handoff file locations of one tier.
type Paths struct {
	DebitList         string
	ProcessedContacts string
	IgnoredInvoices   string
}

// PathsFor lays the tier's handoff files out under dataDir/tierName.
func PathsFor(dataDir, tierName string) Paths {
	root := filepath.Join(dataDir, tierName)
	return Paths{
		DebitList:         filepath.Join(root, "debitos", "listDebit.json"),
		ProcessedContacts: filepath.Join(root, "contatos", "contacts.json"),
		IgnoredInvoices:   filepath.Join(root, "ignored_boletos.json"),
	}
}

// Read loads the document at path. The file must hold a JSON array whose
// elements are objects decodable into T and, for struct records, passing
// their validation tags. The first failing record fails the whole document.
func Read[T any](path string) ([]T, error) {
	raw, err := ReadRaw(path)
	if err != nil {
		return nil, err
	}

	records := make([]T, 0, len(raw))
	for i, item := range raw {
		rec, err := Decode[T](item)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: record %d: %v", ErrInvalidDocument, path, i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadRaw loads the document at path without decoding its records. The file
// must hold a JSON array of objects.
func ReadRaw(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: %s: expected a JSON array", ErrInvalidDocument, path)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, path, err)
	}

	for i, item := range raw {
		if len(item) == 0 || item[0] != '{' {
			return nil, fmt.Errorf("%w: %s: record %d is not an object", ErrInvalidDocument, path, i)
		}
	}
	return raw, nil
}

// Decode unmarshals one record and, when T is a struct, checks its
// validation tags.
func Decode[T any](raw json.RawMessage) (T, error) {
	var rec T
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, err
	}
	if reflect.TypeOf(rec) != nil && reflect.TypeOf(rec).Kind() == reflect.Struct {
		if err := Validate(rec); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// Write replaces the document at path with records, pretty-printed with a
// four-space indent and without HTML escaping. Parent directories are created
// when missing and the file is swapped in atomically.
func Write[T any](path string, records []T) error {
	if records == nil {
		records = []T{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, permDir); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	return writeAtomic(dir, path, buf.Bytes())
}

func writeAtomic(dir, dest string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, permFile)

	bw := bufio.NewWriter(tmp)
	if _, err := bw.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("flush %s: %w", dest, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", dest, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", dest, err)
	}
	return nil
}
