package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/logger"
)

// QuestionLoader fetches a question with its choices from the registry.
type QuestionLoader interface {
	Question(ctx context.Context, id int64) (domain.Question, error)
}

// QuestionCache keeps public question views in Redis and falls back to the loader on a miss.
// Views are stored as JSON under question:{id}:view.
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	log    *logger.Logger

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration, log *logger.Logger) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    log.With("component", "question_cache"),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) QuestionView(ctx context.Context, id int64) (domain.QuestionView, error) {
	if view, ok := c.cached(ctx, id); ok {
		return view, nil
	}

	result, err, _ := c.sf.Do(strconv.FormatInt(id, 10), func() (interface{}, error) {
		// Re-check cache in case another caller filled it.
		if view, ok := c.cached(ctx, id); ok {
			return view, nil
		}
		question, err := c.loader.Question(ctx, id)
		if err != nil {
			return domain.QuestionView{}, err
		}
		view := question.View()
		raw, err := json.Marshal(view)
		if err == nil {
			err = c.client.Set(ctx, c.key(id), raw, c.ttlWithJitter()).Err()
		}
		if err != nil {
			c.log.Warn("question cache write failed", "question", id, "error", err)
		}
		return view, nil
	})
	if err != nil {
		return domain.QuestionView{}, err
	}
	return result.(domain.QuestionView), nil
}

// Invalidate drops the cached view so the next read reloads it.
func (c *QuestionCache) Invalidate(ctx context.Context, id int64) {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		c.log.Warn("question cache invalidate failed", "question", id, "error", err)
	}
}

func (c *QuestionCache) cached(ctx context.Context, id int64) (domain.QuestionView, bool) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		return domain.QuestionView{}, false
	}
	var view domain.QuestionView
	if err := json.Unmarshal(raw, &view); err != nil {
		return domain.QuestionView{}, false
	}
	return view, true
}

func (c *QuestionCache) key(id int64) string {
	return "question:" + strconv.FormatInt(id, 10) + ":view"
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
