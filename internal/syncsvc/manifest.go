package syncsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/modernreader/sensoria/internal/fault"
)

// hashChunkSize is the read size used while hashing manifest files. Large
// files are hashed incrementally so one big file never pins its whole body
// in memory.
const hashChunkSize = 8 * 1024

// maxHashWorkers bounds the parallel hashing done during a manifest rebuild.
const maxHashWorkers = 8

// ManifestEntry describes one syncable file by content hash.
type ManifestEntry struct {
	Path      string `json:"path"`
	SHA256    string `json:"sha256"`
	MTimeUnix int64  `json:"mtime_unix"`
	SizeBytes int64  `json:"size_bytes"`
	Category  string `json:"category"`
}

// Manifest is the full snapshot of the server's syncable content. The ETag
// is derived from the (path, sha256) pairs only, so touching a file without
// changing its bytes leaves the ETag intact.
type Manifest struct {
	Entries       []ManifestEntry `json:"entries"`
	ETag          string          `json:"etag"`
	FileCount     int             `json:"file_count"`
	GeneratedUnix int64           `json:"generated_at_unix"`
}

// computeManifest walks the allowed paths under root, hashes every regular
// file, and returns the sorted manifest. Allowed entries may name files or
// directories, always relative to root.
func computeManifest(ctx context.Context, root string, allowed []string) (*Manifest, error) {
	paths, err := collectFiles(root, allowed)
	if err != nil {
		return nil, err
	}

	entries := make([]ManifestEntry, len(paths))
	var g errgroup.Group
	g.SetLimit(maxHashWorkers)
	for i, rel := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return fault.Wrap(fault.Timeout, err, "syncsvc: manifest build")
			}
			abs := filepath.Join(root, filepath.FromSlash(rel))
			info, err := os.Stat(abs)
			if err != nil {
				return fault.Wrap(fault.Internal, err, "syncsvc: stat %s", rel)
			}
			sum, err := hashFile(abs)
			if err != nil {
				return err
			}
			entries[i] = ManifestEntry{
				Path:      rel,
				SHA256:    sum,
				MTimeUnix: info.ModTime().Unix(),
				SizeBytes: info.Size(),
				Category:  categoryOf(rel),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	etag, err := etagOf(entries)
	if err != nil {
		return nil, err
	}
	return &Manifest{
		Entries:   entries,
		ETag:      etag,
		FileCount: len(entries),
	}, nil
}

// collectFiles resolves the whitelist into a deduplicated list of regular
// files, as slash-separated paths relative to root. Missing whitelist entries
// are skipped rather than failing the whole manifest.
func collectFiles(root string, allowed []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(rel string) {
		rel = filepath.ToSlash(rel)
		if _, ok := seen[rel]; ok {
			return
		}
		seen[rel] = struct{}{}
		out = append(out, rel)
	}

	for _, a := range allowed {
		abs := filepath.Join(root, filepath.FromSlash(a))
		info, err := os.Stat(abs)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			add(a)
			continue
		}
		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			add(rel)
			return nil
		})
		if err != nil {
			return nil, fault.Wrap(fault.Internal, err, "syncsvc: walk %s", a)
		}
	}
	sort.Strings(out)
	return out, nil
}

// hashFile computes the hex SHA-256 of the file, reading in fixed chunks.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fault.Wrap(fault.Internal, err, "syncsvc: open %s", path)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fault.Wrap(fault.Internal, err, "syncsvc: read %s", path)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// etagOf derives the manifest ETag from the sorted (path, sha256) pairs.
func etagOf(entries []ManifestEntry) (string, error) {
	pairs := make([][2]string, len(entries))
	for i, e := range entries {
		pairs[i] = [2]string{e.Path, e.SHA256}
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return "", fault.Wrap(fault.Internal, err, "syncsvc: etag")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// categoryOf returns the top-level directory of a relative slash path, or
// "root" for files directly under the sync root.
func categoryOf(rel string) string {
	if i := strings.IndexByte(rel, '/'); i > 0 {
		return rel[:i]
	}
	return "root"
}
