// Package discover walks a target directory and selects the source files that
// should be handed to the external analyzer.
package discover

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/src-d/enry/v2"
)

// Sentinel errors for discovery.
var (
	ErrRootNotDirectory = errors.New("root is not a readable directory")
	ErrInvalidGlob      = errors.New("invalid exclude glob")
)

// Default selection rules.
var (
	DefaultExcludeDirs         = []string{"node_modules", ".git", "dist", "build", "__tests__", "test"}
	DefaultSourceExtensions    = []string{".ts"}
	DefaultDeclarationSuffixes = []string{".d.ts"}
)

// gitignoreFile is the ignore file honored at the discovery root.
const gitignoreFile = ".gitignore"

// Candidate is a file selected for analysis.
type Candidate struct {
	// Path is relative to the discoverer's base directory, slash separated.
	Path string `json:"path"`
	// Language is the enry language tag, empty when unknown.
	Language string `json:"language,omitempty"`
}

// DiscoveryError describes a directory that could not be read.
type DiscoveryError struct {
	Err error
	Dir string
}

// Error implements the error interface.
func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("read directory %s: %v", e.Dir, e.Err)
}

// Unwrap returns the underlying filesystem error.
func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// ErrorSink receives non-fatal directory read failures.
type ErrorSink func(*DiscoveryError)

// Options configures a Discoverer. Zero values select the defaults.
type Options struct {
	// OnError receives unreadable directories. Nil drops them.
	OnError ErrorSink
	// Base is the directory candidate paths are made relative to. Empty means
	// the process working directory.
	Base                string
	ExcludeDirs         []string
	ExcludeGlobs        []string
	SourceExtensions    []string
	DeclarationSuffixes []string
	RespectGitignore    bool
	SkipVendor          bool
}

// Discoverer selects source files beneath a root directory.
type Discoverer struct {
	onError      ErrorSink
	excludeDirs  map[string]struct{}
	base         string
	excludeGlobs []string
	extensions   []string
	declarations []string
	gitignore    bool
	skipVendor   bool
}

// New validates the options and builds a Discoverer.
func New(opts Options) (*Discoverer, error) {
	for _, glob := range opts.ExcludeGlobs {
		if !doublestar.ValidatePattern(glob) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidGlob, glob)
		}
	}

	excludeDirs := opts.ExcludeDirs
	if excludeDirs == nil {
		excludeDirs = DefaultExcludeDirs
	}

	extensions := opts.SourceExtensions
	if len(extensions) == 0 {
		extensions = DefaultSourceExtensions
	}

	declarations := opts.DeclarationSuffixes
	if declarations == nil {
		declarations = DefaultDeclarationSuffixes
	}

	skip := make(map[string]struct{}, len(excludeDirs))
	for _, name := range excludeDirs {
		skip[name] = struct{}{}
	}

	return &Discoverer{
		onError:      opts.OnError,
		excludeDirs:  skip,
		base:         opts.Base,
		excludeGlobs: opts.ExcludeGlobs,
		extensions:   extensions,
		declarations: declarations,
		gitignore:    opts.RespectGitignore,
		skipVendor:   opts.SkipVendor,
	}, nil
}

// Discover walks root depth-first and returns the eligible files sorted by path.
// Unreadable subdirectories are reported to the error sink and skipped.
func (d *Discoverer) Discover(ctx context.Context, root string) ([]Candidate, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRootNotDirectory, root, err)
	}

	info, statErr := os.Stat(absRoot)
	if statErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRootNotDirectory, root, statErr)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDirectory, root)
	}

	absBase, err := d.absBase()
	if err != nil {
		return nil, err
	}

	// WalkDir does not descend into a symlinked root, so walk its target and
	// report candidates under the path the caller named.
	walkRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRootNotDirectory, root, err)
	}

	gi := d.loadGitignore(walkRoot)

	var found []Candidate

	walkErr := filepath.WalkDir(walkRoot, func(path string, entry fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel := relSlash(walkRoot, path)
		logical := filepath.Join(absRoot, filepath.FromSlash(rel))

		if err != nil {
			return d.handleWalkError(absRoot, logical, entry, err)
		}

		if entry.IsDir() {
			if path != walkRoot && d.skipDir(entry.Name(), rel, gi) {
				return filepath.SkipDir
			}

			return nil
		}

		if !entry.Type().IsRegular() || !d.eligible(entry.Name(), rel, gi) {
			return nil
		}

		lang, _ := enry.GetLanguageByExtension(entry.Name())
		found = append(found, Candidate{Path: relSlash(absBase, logical), Language: lang})

		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	slices.SortFunc(found, func(a, b Candidate) int {
		return strings.Compare(a.Path, b.Path)
	})

	return found, nil
}

func (d *Discoverer) absBase() (string, error) {
	base := d.base
	if base == "" {
		base = "."
	}

	abs, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolve base directory: %w", err)
	}

	return abs, nil
}

func (d *Discoverer) handleWalkError(absRoot, path string, entry fs.DirEntry, err error) error {
	if path == absRoot {
		return fmt.Errorf("%w: %s: %w", ErrRootNotDirectory, path, err)
	}

	if d.onError != nil {
		d.onError(&DiscoveryError{Dir: path, Err: err})
	}

	if entry != nil && entry.IsDir() {
		return filepath.SkipDir
	}

	return nil
}

func (d *Discoverer) skipDir(name, rel string, gi *ignore.GitIgnore) bool {
	if _, skip := d.excludeDirs[name]; skip {
		return true
	}

	if d.skipVendor && enry.IsVendor(rel+"/") {
		return true
	}

	if gi != nil && gi.MatchesPath(rel+"/") {
		return true
	}

	return d.matchesGlob(rel)
}

func (d *Discoverer) eligible(name, rel string, gi *ignore.GitIgnore) bool {
	if !hasAnySuffix(name, d.extensions) || hasAnySuffix(name, d.declarations) {
		return false
	}

	if d.skipVendor && enry.IsVendor(rel) {
		return false
	}

	if gi != nil && gi.MatchesPath(rel) {
		return false
	}

	return !d.matchesGlob(rel)
}

func (d *Discoverer) matchesGlob(rel string) bool {
	for _, glob := range d.excludeGlobs {
		// Patterns were validated in New.
		if ok, _ := doublestar.Match(glob, rel); ok {
			return true
		}
	}

	return false
}

func (d *Discoverer) loadGitignore(absRoot string) *ignore.GitIgnore {
	if !d.gitignore {
		return nil
	}

	gi, err := ignore.CompileIgnoreFile(filepath.Join(absRoot, gitignoreFile))
	if err != nil {
		return nil
	}

	return gi
}

func hasAnySuffix(name string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}

	return false
}

func relSlash(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return filepath.ToSlash(path)
	}

	return filepath.ToSlash(rel)
}
