package utils

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"github.com/menta2k/image-cropper/pkg/registry"
)

// Fetcher downloads a remote input.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

// GetFileExtension returns the file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has an image extension
func IsImageFile(filename string) bool {
	switch GetFileExtension(filename) {
	case "jpg", "jpeg", "png", "gif", "bmp", "tiff", "tif", "webp":
		return true
	}
	return false
}

// IsURL reports whether s names an http(s) resource.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// DetectType returns the declared type of a file: by extension when known,
// otherwise by sniffing its content.
func DetectType(name string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return mimetype.Detect(data).String()
}

// ListImageFiles recursively lists all image files in a directory
func ListImageFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && IsImageFile(path) {
			files = append(files, path)
		}

		return nil
	})

	return files, err
}

// ReadInputs turns paths, directories and URLs into registry files in the
// order given. Directories contribute their image files; every other input
// is read as is so the registry can drop non-images by declared type.
func ReadInputs(ctx context.Context, fetcher Fetcher, inputs []string) ([]registry.File, error) {
	var files []registry.File
	for _, in := range inputs {
		if IsURL(in) {
			data, contentType, err := fetcher.Fetch(ctx, in)
			if err != nil {
				return nil, err
			}
			name := SanitizeFilename(path.Base(strings.SplitN(in, "?", 2)[0]))
			if name == "" {
				name = "image"
			}
			if contentType == "" {
				contentType = DetectType(name, data)
			}
			files = append(files, registry.File{Name: name, Type: contentType, Data: data})
			continue
		}

		if DirExists(in) {
			paths, err := ListImageFiles(in)
			if err != nil {
				return nil, fmt.Errorf("failed to list %s: %w", in, err)
			}
			for _, p := range paths {
				f, err := readFile(p)
				if err != nil {
					return nil, err
				}
				files = append(files, f)
			}
			continue
		}

		f, err := readFile(in)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func readFile(p string) (registry.File, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return registry.File{}, fmt.Errorf("failed to read %s: %w", p, err)
	}
	name := filepath.Base(p)
	return registry.File{Name: name, Type: DetectType(name, data), Data: data}, nil
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && info.IsDir()
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	return strings.Trim(result, " .")
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	if size < 0 {
		size = 0
	}
	return humanize.IBytes(uint64(size))
}
