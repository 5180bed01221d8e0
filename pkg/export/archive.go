package export

import (
	"fmt"
	"io"
	"path"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/menta2k/image-cropper/pkg/registry"
)

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// WriteArchive writes results as a zip on w, every entry under folder and
// named by its result filename. When two results share a filename the later
// one wins. It returns the entry names in order and the bytes written.
func WriteArchive(w io.Writer, folder string, results []*registry.ProcessedResult) ([]string, int64, error) {
	var order []string
	byName := make(map[string]*registry.ProcessedResult)
	for _, res := range results {
		if res == nil || len(res.Data) == 0 {
			continue
		}
		if _, seen := byName[res.Filename]; !seen {
			order = append(order, res.Filename)
		}
		byName[res.Filename] = res
	}

	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	now := time.Now()

	entries := make([]string, 0, len(order))
	for _, name := range order {
		entry := path.Join(folder, name)
		// entries are stored uncompressed
		f, err := zw.CreateHeader(&zip.FileHeader{
			Name:     entry,
			Method:   zip.Store,
			Modified: now,
		})
		if err != nil {
			return nil, cw.n, fmt.Errorf("create archive entry %s: %w", entry, err)
		}
		if _, err := f.Write(byName[name].Data); err != nil {
			return nil, cw.n, fmt.Errorf("write archive entry %s: %w", entry, err)
		}
		entries = append(entries, entry)
	}

	if err := zw.Close(); err != nil {
		return nil, cw.n, fmt.Errorf("finish archive: %w", err)
	}
	return entries, cw.n, nil
}
