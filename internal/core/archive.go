package core

import (
	"archive/zip"
	"bytes"
	"fmt"
	"time"
)

// NamedFile is an output document ready to be returned or archived.
type NamedFile struct {
	Name string
	Data []byte
}

// BuildArchive packs files into a zip archive in the order given.
func BuildArchive(files []NamedFile, modified time.Time) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if seen[f.Name] {
			return nil, fmt.Errorf("archive: duplicate entry %s", f.Name)
		}
		seen[f.Name] = true

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("archive: add %s: %w", f.Name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, fmt.Errorf("archive: write %s: %w", f.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archive: close: %w", err)
	}
	return buf.Bytes(), nil
}
