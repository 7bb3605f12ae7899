package orchestrator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maastricht-university/audioscore/audio"
)

// Fetcher materializes a remote input (s3://bucket/prefix) into a local
// directory.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (dir string, err error)
}

var (
	textManifestExt = map[string]bool{".txt": true, ".tsv": true, ".lst": true, ".list": true, ".scp": true}
	yamlManifestExt = map[string]bool{".yaml": true, ".yml": true}
)

// Resolver turns the input forms a caller may supply into an ordered list
// of requests.
type Resolver struct {
	// Recursive makes directory inputs include subdirectories.
	Recursive bool
	// Fetcher handles s3:// inputs; nil rejects them.
	Fetcher Fetcher
	// Load decodes audio; nil means audio.Load.
	Load func(string) (*audio.Waveform, error)
}

type manifestEntry struct {
	Path      string `yaml:"path"`
	Reference string `yaml:"reference"`
}

// Resolve accepts a single audio file, a directory, a text manifest (one
// path per line, optionally followed by a reference path), a YAML manifest
// (a list of path/reference entries) or an s3:// prefix.
func (r *Resolver) Resolve(ctx context.Context, input string) ([]*Request, error) {
	if strings.HasPrefix(input, "s3://") {
		return r.resolveRemote(ctx, input)
	}
	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputNotFound, err)
	}
	if info.IsDir() {
		return r.resolveDir(input)
	}
	ext := strings.ToLower(filepath.Ext(input))
	switch {
	case textManifestExt[ext]:
		return r.resolveTextManifest(input)
	case yamlManifestExt[ext]:
		return r.resolveYAMLManifest(input)
	}
	return r.build([]manifestEntry{{Path: input}}, ""), nil
}

// ResolvePair pairs test audio with reference audio. Either argument may be
// a file or a directory; directory pairs are matched by file name. An empty
// reference yields requests without references.
func (r *Resolver) ResolvePair(ctx context.Context, test, reference string) ([]*Request, error) {
	if reference == "" {
		return r.Resolve(ctx, test)
	}
	ti, err := os.Stat(test)
	if err != nil {
		return nil, fmt.Errorf("%w: test: %v", ErrInputNotFound, err)
	}
	ri, err := os.Stat(reference)
	if err != nil {
		return nil, fmt.Errorf("%w: reference: %v", ErrInputNotFound, err)
	}
	switch {
	case !ti.IsDir() && !ri.IsDir():
		return r.build([]manifestEntry{{Path: test, Reference: reference}}, ""), nil
	case !ti.IsDir():
		ref := filepath.Join(reference, filepath.Base(test))
		return r.build([]manifestEntry{{Path: test, Reference: ref}}, ""), nil
	case !ri.IsDir():
		return nil, fmt.Errorf("reference %s must be a directory when test %s is one", reference, test)
	}
	files, err := r.listAudio(test)
	if err != nil {
		return nil, err
	}
	entries := make([]manifestEntry, len(files))
	for i, f := range files {
		rel, _ := filepath.Rel(test, f)
		entries[i] = manifestEntry{Path: f, Reference: filepath.Join(reference, rel)}
	}
	return r.build(entries, ""), nil
}

// ResolveFiles wraps an explicit file list.
func (r *Resolver) ResolveFiles(paths []string) ([]*Request, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: empty file list", ErrInputNotFound)
	}
	entries := make([]manifestEntry, len(paths))
	for i, p := range paths {
		entries[i] = manifestEntry{Path: p}
	}
	return r.build(entries, ""), nil
}

func (r *Resolver) resolveDir(dir string) ([]*Request, error) {
	files, err := r.listAudio(dir)
	if err != nil {
		return nil, err
	}
	entries := make([]manifestEntry, len(files))
	for i, f := range files {
		entries[i] = manifestEntry{Path: f}
	}
	return r.build(entries, ""), nil
}

// listAudio returns the audio files under dir in lexical order.
func (r *Resolver) listAudio(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && !r.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if audio.IsAudioFile(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no audio files in %s", ErrInputNotFound, dir)
	}
	sort.Strings(files)
	return files, nil
}

func (r *Resolver) resolveTextManifest(name string) ([]*Request, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputNotFound, err)
	}
	defer f.Close()

	var (
		entries []manifestEntry
		bad     = map[int]error{}
	)
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var fields []string
		if strings.Contains(text, "\t") {
			fields = strings.Split(text, "\t")
		} else {
			fields = strings.Fields(text)
		}
		switch len(fields) {
		case 1:
			entries = append(entries, manifestEntry{Path: fields[0]})
		case 2:
			entries = append(entries, manifestEntry{Path: fields[0], Reference: fields[1]})
		default:
			bad[len(entries)] = fmt.Errorf("%w: %s:%d: want 1 or 2 fields, got %d", ErrManifestFormat, name, line, len(fields))
			entries = append(entries, manifestEntry{Path: text})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifestFormat, name, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s has no entries", ErrManifestFormat, name)
	}
	reqs := r.build(entries, filepath.Dir(name))
	for i, err := range bad {
		reqs[i].Err = err
	}
	return reqs, nil
}

func (r *Resolver) resolveYAMLManifest(name string) ([]*Request, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputNotFound, err)
	}
	var entries []manifestEntry
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifestFormat, name, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s has no entries", ErrManifestFormat, name)
	}
	reqs := r.build(entries, filepath.Dir(name))
	for i, e := range entries {
		if strings.TrimSpace(e.Path) == "" {
			reqs[i].Err = fmt.Errorf("%w: %s: entry %d has no path", ErrManifestFormat, name, i)
		}
	}
	return reqs, nil
}

func (r *Resolver) resolveRemote(ctx context.Context, uri string) ([]*Request, error) {
	if r.Fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured for %s", ErrInputNotFound, uri)
	}
	dir, err := r.Fetcher.Fetch(ctx, uri)
	if err != nil {
		return nil, notFound(fmt.Errorf("fetch %s: %w", uri, err))
	}
	reqs, err := r.resolveDir(dir)
	if err != nil {
		return nil, err
	}
	for _, req := range reqs {
		rel, _ := filepath.Rel(dir, req.Path)
		req.ID = path.Join(strings.TrimSuffix(uri, "/"), filepath.ToSlash(rel))
	}
	return reqs, nil
}

// build turns entries into requests. Relative paths are taken relative to
// base. Missing files are marked here; decoding waits until first use.
func (r *Resolver) build(entries []manifestEntry, base string) []*Request {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) || base == "" {
			return p
		}
		return filepath.Join(base, p)
	}
	reqs := make([]*Request, len(entries))
	for i, e := range entries {
		req := &Request{
			Index:   i,
			ID:      e.Path,
			Path:    abs(e.Path),
			RefPath: abs(e.Reference),
			load:    r.Load,
		}
		if req.Path != "" {
			if _, err := os.Stat(req.Path); err != nil {
				req.Err = notFound(err)
			}
		}
		if req.RefPath != "" {
			if _, err := os.Stat(req.RefPath); err != nil {
				req.RefErr = notFound(err)
			}
		}
		reqs[i] = req
	}
	return reqs
}

func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrInputNotFound, err)
	}
	return err
}
