// Package util - Local image file discovery for batch classification.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ImageExtensions lists the file extensions treated as images, lower-case.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
}

// IsImagePath reports whether the extension of path is a known image extension.
func IsImagePath(path string) bool {
	return ImageExtensions[strings.ToLower(filepath.Ext(path))]
}

// CollectImagePaths expands files and directories into image file paths.
//
// Files are kept as given, whatever their extension. Directories contribute their image files,
// descending into subdirectories when recursive is set. Directory entries are ordered so that
// numbered names such as frame-2.jpg sort before frame-10.jpg.
//
// Arguments:
//   - paths: Files and directories.
//   - recursive: Descend into subdirectories.
//
// Returns:
//   - []string: Image paths, each at most once.
//   - error: If a path does not exist or a directory cannot be read.
func CollectImagePaths(paths []string, recursive bool) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", p)
		}
		if !info.IsDir() {
			add(p)
			continue
		}

		found, err := listDirectory(p, recursive)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			add(f)
		}
	}

	return out, nil
}

func listDirectory(dir string, recursive bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading directory %s", dir)
	}

	var files, subdirs []string
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		switch {
		case e.IsDir():
			if recursive {
				subdirs = append(subdirs, full)
			}
		case IsImagePath(e.Name()):
			files = append(files, full)
		}
	}
	sortNatural(files)
	sortNatural(subdirs)

	for _, sub := range subdirs {
		nested, err := listDirectory(sub, true)
		if err != nil {
			return nil, err
		}
		files = append(files, nested...)
	}
	return files, nil
}

// ReadImageFile reads one image file.
func ReadImageFile(path string) (ImageFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImageFile{}, errors.Wrapf(err, "reading %s", path)
	}
	return ImageFile{Path: path, Data: data}, nil
}

// sortNatural orders by base name, comparing the trailing number of names that share a prefix.
func sortNatural(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		pi, ni, oki := splitNumber(paths[i])
		pj, nj, okj := splitNumber(paths[j])
		if oki && okj && pi == pj && ni != nj {
			return ni < nj
		}
		return filepath.Base(paths[i]) < filepath.Base(paths[j])
	})
}

// splitNumber splits "frame-12.jpg" into ("frame-", 12).
func splitNumber(path string) (string, int, bool) {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	end := len(name)
	start := end
	for start > 0 && name[start-1] >= '0' && name[start-1] <= '9' {
		start--
	}
	if start == end {
		return name, 0, false
	}
	n, err := strconv.Atoi(name[start:end])
	if err != nil {
		return name, 0, false
	}
	return name[:start], n, true
}
