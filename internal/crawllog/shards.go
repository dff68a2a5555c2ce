package crawllog

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/hash"
)

const (
	finalShardName = "crawl.log"
	lockSuffix     = ".lck"
)

var (
	timestampSuffix = regexp.MustCompile(`\d{14}$`)
	launchIDPattern = regexp.MustCompile(`^\d{14}$`)
)

// Shard is one segment of a launch's crawl log.
type Shard struct {
	Name string
	Path string
	// Key is the trailing 14-digit timestamp; empty for the final shard.
	Key   string
	Final bool
}

// ShardSet is an ordered shard listing: suffixed shards by timestamp, then
// the final shard.
type ShardSet []Shard

// Fingerprint identifies the listing by the names it contains, so two
// listings with the same number of shards but different members differ.
func (s ShardSet) Fingerprint() string {
	return hash.SHA256().HashLines(s.Names())
}

// Names returns the shard names in scan order.
func (s ShardSet) Names() []string {
	out := make([]string, len(s))
	for i, shard := range s {
		out[i] = shard.Name
	}
	return out
}

// LaunchPath is the directory holding the crawl logs of one launch.
func LaunchPath(root, job, launch string) string {
	return path.Join(root, job, launch)
}

// ListShards enumerates the crawl log shards below parent. Lock files and
// names that are neither the final log nor timestamp-suffixed are skipped.
func ListShards(ctx context.Context, store docs.ShardStore, parent string) (ShardSet, error) {
	names, err := store.List(ctx, parent)
	if err != nil {
		return nil, fmt.Errorf("list shards in %s: %w", parent, err)
	}
	var set ShardSet
	for _, name := range names {
		name = path.Base(name)
		switch {
		case strings.HasSuffix(name, lockSuffix):
			continue
		case name == finalShardName:
			set = append(set, Shard{Name: name, Path: path.Join(parent, name), Final: true})
		case strings.HasPrefix(name, finalShardName) && timestampSuffix.MatchString(name):
			set = append(set, Shard{
				Name: name,
				Path: path.Join(parent, name),
				Key:  name[len(name)-14:],
			})
		}
	}
	sort.SliceStable(set, func(i, j int) bool {
		a, b := set[i], set[j]
		if a.Final != b.Final {
			return b.Final
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		return a.Name < b.Name
	})
	return set, nil
}

// Launch names one execution of a crawl job.
type Launch struct {
	Job string
	ID  string
}

// ListLaunches enumerates every job and launch directory below root.
// Launch directories must be named with a 14-digit timestamp.
func ListLaunches(ctx context.Context, store docs.ShardStore, root string) ([]Launch, error) {
	jobs, err := store.List(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("list jobs in %s: %w", root, err)
	}
	sort.Strings(jobs)
	var out []Launch
	for _, job := range jobs {
		job = path.Base(job)
		ids, err := store.List(ctx, path.Join(root, job))
		if err != nil {
			return nil, fmt.Errorf("list launches for %s: %w", job, err)
		}
		sort.Strings(ids)
		for _, id := range ids {
			id = path.Base(id)
			if launchIDPattern.MatchString(id) {
				out = append(out, Launch{Job: job, ID: id})
			}
		}
	}
	return out, nil
}

// ValidLaunchID reports whether id is a 14-digit launch timestamp.
func ValidLaunchID(id string) bool {
	return launchIDPattern.MatchString(id)
}
