// Package invalidation maps business events to cache tags and page
// revalidation paths. It runs synchronously after the write that
// triggered the event, but a failed invalidation is reported as a result
// value and never fails the triggering business operation.
package invalidation

import (
	"context"
	"fmt"

	"github.com/kedaihq/kedai/internal/cache"
	"github.com/kedaihq/kedai/internal/logging"
	"github.com/kedaihq/kedai/internal/metrics"
)

// Event identifies a domain write that stales cached data.
type Event string

const (
	ProductCreated  Event = "product.created"
	ProductUpdated  Event = "product.updated"
	ProductDeleted  Event = "product.deleted"
	CategoryChanged Event = "category.changed"
	OrderPlaced     Event = "order.placed"
	ReviewAdded     Event = "review.added"
)

// Result is the structured outcome of one invalidation pass.
type Result struct {
	Success          bool
	TagsInvalidated  int
	PathsInvalidated int
	Err              error
}

// Revalidator triggers framework-level page regeneration for a path.
type Revalidator interface {
	Revalidate(ctx context.Context, path string) error
}

// rule is the fixed tag/path mapping for one event. %s slots take the
// subject identifier.
type rule struct {
	tags  []string
	paths []string
}

var rules = map[Event]rule{
	ProductCreated: {
		tags:  []string{"products", "search"},
		paths: []string{"/", "/products"},
	},
	ProductUpdated: {
		tags:  []string{"products", "product:%s", "search"},
		paths: []string{"/products", "/products/%s"},
	},
	ProductDeleted: {
		tags:  []string{"products", "product:%s", "search"},
		paths: []string{"/", "/products"},
	},
	CategoryChanged: {
		tags:  []string{"categories", "products"},
		paths: []string{"/", "/categories"},
	},
	OrderPlaced: {
		tags:  []string{"products", "inventory"},
		paths: nil,
	},
	ReviewAdded: {
		tags:  []string{"product:%s", "reviews"},
		paths: []string{"/products/%s"},
	},
}

// Invalidator applies event rules against the cache and revalidator.
type Invalidator struct {
	cache *cache.Cache
	reval Revalidator // nil disables path revalidation
}

// New creates an invalidator. reval may be nil in deployments without a
// storefront revalidation endpoint.
func New(c *cache.Cache, reval Revalidator) *Invalidator {
	return &Invalidator{cache: c, reval: reval}
}

// OnEvent invalidates the tags and paths mapped to the event. subject is
// the affected identifier (product ID, category slug) substituted into
// templated tags and paths. All failures are captured in the Result.
func (i *Invalidator) OnEvent(ctx context.Context, ev Event, subject string) Result {
	r, ok := rules[ev]
	if !ok {
		return Result{Success: true}
	}

	res := Result{Success: true}

	tags := expand(r.tags, subject)
	if len(tags) > 0 {
		if _, err := i.cache.InvalidateByTags(ctx, tags); err != nil {
			res.Success = false
			res.Err = fmt.Errorf("invalidate tags for %s: %w", ev, err)
			logging.Op().Warn("event tag invalidation failed", "event", ev, "error", err)
		} else {
			res.TagsInvalidated = len(tags)
		}
	}

	if i.reval != nil {
		for _, path := range expand(r.paths, subject) {
			if err := i.reval.Revalidate(ctx, path); err != nil {
				res.Success = false
				if res.Err == nil {
					res.Err = fmt.Errorf("revalidate %s: %w", path, err)
				}
				logging.Op().Warn("path revalidation failed", "event", ev, "path", path, "error", err)
				continue
			}
			res.PathsInvalidated++
		}
	}

	metrics.RecordInvalidated("event", res.TagsInvalidated+res.PathsInvalidated)
	return res
}

// expand substitutes the subject into templated entries.
func expand(templates []string, subject string) []string {
	out := make([]string, 0, len(templates))
	for _, t := range templates {
		if subject == "" && containsSlot(t) {
			continue
		}
		if containsSlot(t) {
			out = append(out, fmt.Sprintf(t, subject))
		} else {
			out = append(out, t)
		}
	}
	return out
}

func containsSlot(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '%' && s[i+1] == 's' {
			return true
		}
	}
	return false
}
