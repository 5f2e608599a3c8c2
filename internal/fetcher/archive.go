package fetcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mholt/archives"
)

// Extract unpacks the archive at src into dest. The format is identified
// from the file name and content.
func Extract(ctx context.Context, src, dest string) error {
	file, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	format, _, err := archives.Identify(ctx, filepath.Base(src), file)
	if err != nil {
		return fmt.Errorf("failed to identify archive: %w", err)
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return fmt.Errorf("archive format %s cannot be extracted", format.Extension())
	}
	// Zip extraction needs random access, so hand over the file itself.
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind archive: %w", err)
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create extraction directory: %w", err)
	}

	return extractor.Extract(ctx, file, func(ctx context.Context, f archives.FileInfo) error {
		name := filepath.FromSlash(strings.TrimPrefix(f.NameInArchive, "/"))
		if name == "" || name == "." {
			return nil
		}
		if !filepath.IsLocal(name) {
			return fmt.Errorf("illegal file path in archive: %s", f.NameInArchive)
		}
		target := filepath.Join(dest, name)

		if f.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !f.Mode().IsRegular() {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}

		in, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s in archive: %w", f.NameInArchive, err)
		}
		defer in.Close()

		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return fmt.Errorf("failed to extract %s: %w", f.NameInArchive, err)
		}
		return out.Close()
	})
}

// FindModules walks down from root until it reaches a directory holding at
// least one file with extension ext. At each level without modules it
// descends into the first subdirectory in name order. It returns the
// directory and the module file names in it, or ErrEmptyArtifact.
func FindModules(root, ext string, maxDepth int) (string, []string, error) {
	dir := root
	for depth := 0; depth <= maxDepth; depth++ {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return "", nil, fmt.Errorf("failed to scan %s: %w", dir, err)
		}

		var modules, subdirs []string
		for _, e := range entries {
			switch {
			case e.IsDir():
				subdirs = append(subdirs, e.Name())
			case strings.EqualFold(filepath.Ext(e.Name()), ext):
				modules = append(modules, e.Name())
			}
		}
		if len(modules) > 0 {
			sort.Strings(modules)
			return dir, modules, nil
		}
		if len(subdirs) == 0 {
			break
		}
		sort.Strings(subdirs)
		dir = filepath.Join(dir, subdirs[0])
	}
	return "", nil, ErrEmptyArtifact
}
