package cache

import (
	"context"
	"time"

	"github.com/kedaihq/kedai/internal/logging"
	"github.com/kedaihq/kedai/internal/metrics"
)

// tagIndexTTL bounds tag-set growth: a tag set not refreshed by any write
// for this long disappears on its own.
const tagIndexTTL = 24 * time.Hour

// tagIndexer is the capability the durable backend provides for tag-based
// invalidation. The bounded store does not implement it, so tag operations
// against it are a logged no-op.
type tagIndexer interface {
	AddToTagSet(ctx context.Context, tagKey, member string, ttl time.Duration) error
	TagSetMembers(ctx context.Context, tagKey string) ([]string, error)
	DeleteBatch(ctx context.Context, keys []string) (int, error)
}

func (c *Cache) tagKey(tag string) string {
	return c.prefix + ":tag:" + tag
}

// indexer returns the durable backend's tag capability when it is
// reachable, nil otherwise.
func (c *Cache) indexer() tagIndexer {
	if c.sel.FallbackActive() {
		return nil
	}
	ti, _ := c.sel.Durable().(tagIndexer)
	return ti
}

// indexTags appends the rendered key to each tag's set and refreshes the
// set's TTL. Failures only lose invalidation coverage, never the write.
func (c *Cache) indexTags(ctx context.Context, fullKey string, tags []string) {
	ti := c.indexer()
	if ti == nil {
		logging.Op().Debug("tag index unavailable on bounded store, skipping", "key", fullKey)
		return
	}
	for _, tag := range tags {
		if err := ti.AddToTagSet(ctx, c.tagKey(tag), fullKey, tagIndexTTL); err != nil {
			logging.Op().Warn("tag index update failed", "tag", tag, "error", err)
			return
		}
	}
}

// InvalidateByTags deletes every key carrying any of the given tags, then
// the tag sets themselves. Returns the number of member keys deleted.
// Against the bounded store this is a documented no-op.
func (c *Cache) InvalidateByTags(ctx context.Context, tags []string) (int, error) {
	ti := c.indexer()
	if ti == nil {
		logging.Op().Info("tag invalidation skipped, bounded store has no tag index", "tags", tags)
		return 0, nil
	}

	total := 0
	for _, tag := range tags {
		tagKey := c.tagKey(tag)
		members, err := ti.TagSetMembers(ctx, tagKey)
		if err != nil {
			return total, err
		}
		if len(members) > 0 {
			n, err := ti.DeleteBatch(ctx, members)
			if err != nil {
				return total, err
			}
			total += n
		}
		if _, err := ti.DeleteBatch(ctx, []string{tagKey}); err != nil {
			return total, err
		}
	}
	metrics.RecordInvalidated("tag", total)
	return total, nil
}

// ClearByPattern bulk-deletes keys matching a glob within the cache's
// keyspace. The bounded store has no indexed scan, so the pattern matches
// nothing there and the call returns zero.
func (c *Cache) ClearByPattern(ctx context.Context, pattern string) (int, error) {
	keys, err := c.sel.Keys(ctx, c.prefix+":"+pattern)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	ti := c.indexer()
	if ti == nil {
		return 0, nil
	}
	n, err := ti.DeleteBatch(ctx, keys)
	if err != nil {
		return n, err
	}
	metrics.RecordInvalidated("pattern", n)
	return n, nil
}
