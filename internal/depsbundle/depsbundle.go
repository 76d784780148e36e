// Package depsbundle produces and unpacks the dependency archive shipped
// with installers. One archive is built and copied under three
// platform-suffixed names; the platform choice happens at install time, so
// the copies must stay byte-identical.
package depsbundle

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Platform suffixes the copies carry.
var PlatformSuffixes = []string{"windows", "linux", "macos"}

// zipEpoch is a fixed timestamp so rebuilding from the same inputs yields
// the same bytes.
var zipEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Create zips srcDir into outPath. Entries are written in sorted order with
// fixed metadata, making the archive reproducible.
func Create(srcDir, outPath string) error {
	var files []string
	err := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", srcDir, err)
	}
	sort.Strings(files)

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	zw := zip.NewWriter(out)

	for _, path := range files {
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			zw.Close()
			out.Close()
			return err
		}
		header := &zip.FileHeader{
			Name:     filepath.ToSlash(rel),
			Method:   zip.Deflate,
			Modified: zipEpoch,
		}
		header.SetMode(0o644)
		w, err := zw.CreateHeader(header)
		if err != nil {
			zw.Close()
			out.Close()
			return fmt.Errorf("add %s: %w", rel, err)
		}
		f, err := os.Open(path)
		if err != nil {
			zw.Close()
			out.Close()
			return err
		}
		if _, err := io.Copy(w, f); err != nil {
			f.Close()
			zw.Close()
			out.Close()
			return fmt.Errorf("write %s: %w", rel, err)
		}
		f.Close()
	}

	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("finalize archive: %w", err)
	}
	return out.Close()
}

// PlatformCopies writes the three platform-suffixed copies of the archive
// next to it and returns their paths. The copies are bytewise identical to
// the source.
func PlatformCopies(archivePath string) ([]string, error) {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	base := strings.TrimSuffix(archivePath, filepath.Ext(archivePath))

	paths := make([]string, 0, len(PlatformSuffixes))
	for _, suffix := range PlatformSuffixes {
		path := fmt.Sprintf("%s-%s.zip", base, suffix)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s copy: %w", suffix, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Unzip extracts the archive into destDir, rejecting entries that would
// escape it.
func Unzip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	for _, entry := range r.File {
		target := filepath.Join(destDir, filepath.FromSlash(entry.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", entry.Name)
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		src, err := entry.Open()
		if err != nil {
			return fmt.Errorf("open entry %s: %w", entry.Name, err)
		}
		dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, entry.Mode().Perm()|0o200)
		if err != nil {
			src.Close()
			return err
		}
		if _, err := io.Copy(dst, src); err != nil { //nolint:gosec
			dst.Close()
			src.Close()
			return fmt.Errorf("extract %s: %w", entry.Name, err)
		}
		dst.Close()
		src.Close()
	}
	return nil
}
