package batch

import (
	"archive/zip"
	"bytes"
	"path/filepath"
	"strings"

	"pixelbatch/internal/format"
)

// Archive bundles every completed item into a single zip blob. Entries are
// named <original-basename>.<target-extension>; when two sources share a
// basename the later item wins.
func (m *Manager) Archive() ([]byte, error) {
	m.mu.Lock()
	type entry struct {
		name string
		data []byte
	}
	order := make([]string, 0)
	byName := make(map[string]entry)
	for _, it := range m.items {
		if it.Status != StatusComplete || it.Result == nil {
			continue
		}
		name := archiveName(it.FileName, it.Options.Format)
		if _, seen := byName[name]; !seen {
			order = append(order, name)
		}
		byName[name] = entry{name: name, data: it.Result.Data}
	}
	m.mu.Unlock()

	if len(byName) == 0 {
		return nil, ErrNothingToArchive
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		e := byName[name]
		w, err := zw.Create(e.name)
		if err != nil {
			zw.Close()
			return nil, err
		}
		if _, err := w.Write(e.data); err != nil {
			zw.Close()
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func archiveName(srcName string, f format.Format) string {
	base := strings.TrimSuffix(filepath.Base(srcName), filepath.Ext(srcName))
	ext := string(f)
	if info, ok := format.Lookup(f); ok {
		ext = info.Extension
	}
	return base + "." + ext
}
