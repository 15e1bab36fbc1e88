package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/domain"
)

// QuestionLoader fetches a question with its choices from the backing registry.
type QuestionLoader interface {
	Question(ctx context.Context, id int64) (domain.Question, error)
}

// QuestionCache caches public question views with TTL to avoid repeated registry hits.
type QuestionCache struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[int64]cachedQuestion
}

type cachedQuestion struct {
	view      domain.QuestionView
	expiresAt time.Time
}

func NewQuestionCache(loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int64]cachedQuestion),
	}
}

func (c *QuestionCache) QuestionView(ctx context.Context, id int64) (domain.QuestionView, error) {
	if view, ok := c.lookup(id); ok {
		return view, nil
	}

	result, err, _ := c.sf.Do(strconv.FormatInt(id, 10), func() (interface{}, error) {
		if view, ok := c.lookup(id); ok {
			return view, nil
		}

		question, err := c.loader.Question(ctx, id)
		if err != nil {
			return domain.QuestionView{}, err
		}
		view := question.View()

		c.mu.Lock()
		c.cache[id] = cachedQuestion{
			view:      view,
			expiresAt: c.clock().Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return view, nil
	})
	if err != nil {
		return domain.QuestionView{}, err
	}
	return result.(domain.QuestionView), nil
}

// Invalidate drops the cached view so the next read reloads it.
func (c *QuestionCache) Invalidate(_ context.Context, id int64) {
	c.mu.Lock()
	delete(c.cache, id)
	c.mu.Unlock()
}

func (c *QuestionCache) lookup(id int64) (domain.QuestionView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[id]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.QuestionView{}, false
	}
	return entry.view, true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
