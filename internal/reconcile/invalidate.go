package reconcile

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"harborcast/pkg/logging"
)

const (
	invalidateChannel = "pages.invalidate"
	invalidateTimeout = 2 * time.Second
)

// Publisher is the post-transition hook. Implementations must be
// best-effort: a failed invalidation is logged, never surfaced, because
// failing the webhook response would make the upstream redeliver a
// transition that already succeeded.
type Publisher interface {
	PublishInvalidation(ctx context.Context, target Target)
}

// RedisPublisher invalidates rendered-page caches: it deletes the cached
// page keys and notifies the presentation layer on a channel so running
// renderers drop their in-process copies too.
type RedisPublisher struct {
	client *goredis.Client
	logger logging.Logger
}

// NewRedisPublisher creates a publisher over an open Redis client.
func NewRedisPublisher(client *goredis.Client, logger logging.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: logger}
}

// pathsFor lists the public paths whose rendered state depends on the
// target: the home page listing and the owner's channel page.
func pathsFor(target Target) []string {
	switch {
	case target.Stream != nil:
		return []string{"/", "/" + target.Stream.Username}
	case target.Donation != nil:
		return []string{"/" + target.Donation.StreamerUsername}
	default:
		return nil
	}
}

// PublishInvalidation deletes page keys and broadcasts the changed paths.
// Runs under its own deadline, detached from the request's cancellation,
// so a slow Redis cannot fail or outlive the webhook response.
func (p *RedisPublisher) PublishInvalidation(ctx context.Context, target Target) {
	paths := pathsFor(target)
	if len(paths) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()

	for _, path := range paths {
		if err := p.client.Del(ctx, "page:"+path).Err(); err != nil {
			p.warn(path, "delete cached page", err)
		}
		if err := p.client.Publish(ctx, invalidateChannel, path).Err(); err != nil {
			p.warn(path, "publish invalidation", err)
		}
	}
}

func (p *RedisPublisher) warn(path, op string, err error) {
	if p.logger == nil {
		return
	}
	p.logger.WithFields(logging.Fields{
		"path":  path,
		"error": err,
	}).Warn("Cache invalidation failed: " + op)
}
