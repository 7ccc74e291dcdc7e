// Package delta fingerprints the change domains of a working tree so the
// pipeline can skip stages whose inputs did not move.
//
// A fingerprint is the newest modification time among the files matching a
// domain's patterns. A domain is changed iff its after-pull fingerprint is
// strictly newer than its before-pull fingerprint.
package delta

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fulmenhq/convoy/pkg/ignore"
	"github.com/fulmenhq/convoy/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Domain names a functional area of the tree with its own deploy stage
type Domain string

const (
	Dependencies Domain = "dependencies"
	Frontend     Domain = "frontend"
	Backend      Domain = "backend"
)

// Domains lists every domain in stage order
var Domains = []Domain{Dependencies, Frontend, Backend}

// ParseDomain validates a domain name from configuration
func ParseDomain(s string) (Domain, error) {
	for _, d := range Domains {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown delta domain %q", s)
}

// DefaultPatterns are the doublestar patterns used when configuration does
// not override a domain.
func DefaultPatterns() map[Domain][]string {
	return map[Domain][]string{
		Dependencies: {"package.json", "package-lock.json"},
		Frontend:     {"**/*.vue", "**/*.{css,scss}"},
		Backend:      {"**/*.{js,mjs,cjs,ts,doop}"},
	}
}

// Snapshot maps each captured domain to its newest modification time
type Snapshot map[Domain]time.Time

// Status is the classification of one domain across a pull
type Status string

const (
	Unchanged Status = "unchanged"
	Changed   Status = "changed"
)

// Classify compares two snapshots. Only domains present in both are
// classified; the result is a pure function of its inputs.
func Classify(before, after Snapshot) map[Domain]Status {
	out := make(map[Domain]Status, len(after))
	for d, a := range after {
		b, ok := before[d]
		if !ok {
			continue
		}
		if a.After(b) {
			out[d] = Changed
		} else {
			out[d] = Unchanged
		}
	}
	return out
}

// AnyChanged reports whether at least one classified domain changed
func AnyChanged(statuses map[Domain]Status) bool {
	for _, s := range statuses {
		if s == Changed {
			return true
		}
	}
	return false
}

// Tracker computes snapshots for one working tree
type Tracker struct {
	Root     string
	Patterns map[Domain][]string

	// Now supplies the fingerprint of a domain with no matching files
	Now func() time.Time

	matcher *ignore.Matcher
}

// NewTracker builds a tracker for root honoring its ignore files. Nil or
// missing pattern entries fall back to DefaultPatterns.
func NewTracker(root string, patterns map[Domain][]string) (*Tracker, error) {
	m, err := ignore.NewMatcher(root)
	if err != nil {
		return nil, err
	}
	merged := DefaultPatterns()
	for d, p := range patterns {
		if len(p) > 0 {
			merged[d] = append([]string(nil), p...)
		}
	}
	for d, p := range merged {
		for _, pattern := range p {
			if !doublestar.ValidatePattern(trimNegation(pattern)) {
				return nil, fmt.Errorf("invalid %s pattern %q", d, pattern)
			}
		}
	}
	return &Tracker{Root: m.Root(), Patterns: merged, Now: time.Now, matcher: m}, nil
}

// Snapshot fingerprints the requested domains concurrently. Domains omitted
// from the request (for example forced ones) are simply absent from the
// result and do not affect the others.
func (t *Tracker) Snapshot(ctx context.Context, domains []Domain) (Snapshot, error) {
	snap := make(Snapshot, len(domains))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, d := range domains {
		d := d
		g.Go(func() error {
			newest, matched, err := t.newest(ctx, t.Patterns[d])
			if err != nil {
				return fmt.Errorf("snapshot %s: %w", d, err)
			}
			if matched == 0 {
				newest = t.now()
			}
			logger.Trace("delta snapshot", logger.String("domain", string(d)), logger.Int("files", matched), logger.String("newest", newest.Format(time.RFC3339Nano)))
			mu.Lock()
			snap[d] = newest
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Files lists the non-ignored files matching a domain, sorted
func (t *Tracker) Files(ctx context.Context, d Domain) ([]string, error) {
	var files []string
	err := t.walk(ctx, t.Patterns[d], func(rel string, _ fs.FileInfo) {
		files = append(files, rel)
	})
	sort.Strings(files)
	return files, err
}

func (t *Tracker) newest(ctx context.Context, patterns []string) (time.Time, int, error) {
	var newest time.Time
	count := 0
	err := t.walk(ctx, patterns, func(_ string, info fs.FileInfo) {
		count++
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	})
	return newest, count, err
}

func (t *Tracker) walk(ctx context.Context, patterns []string, visit func(rel string, info fs.FileInfo)) error {
	include, exclude := splitPatterns(patterns)
	if len(include) == 0 {
		return nil
	}
	return filepath.WalkDir(t.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == t.Root {
			return nil
		}
		rel, err := filepath.Rel(t.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if entry.IsDir() {
			if t.matcher.IsIgnoredDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() || t.matcher.IsIgnored(rel) {
			return nil
		}
		if !matchAny(include, rel) || matchAny(exclude, rel) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		visit(rel, info)
		return nil
	})
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func splitPatterns(patterns []string) (include, exclude []string) {
	for _, p := range patterns {
		if len(p) > 1 && p[0] == '!' {
			exclude = append(exclude, p[1:])
			continue
		}
		include = append(include, p)
	}
	return include, exclude
}

func trimNegation(p string) string {
	if len(p) > 1 && p[0] == '!' {
		return p[1:]
	}
	return p
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
