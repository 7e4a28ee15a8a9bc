package coloyalty

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	models "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/models"
)

const balanceTTL = 5 * time.Minute

type CacheService struct {
	client *redis.Client
}

func NewCacheService() (serv *CacheService, err error) {
	// config
	addr := os.Getenv("LEDGER_CACHE_URL")
	if addr == "" {
		return nil, fmt.Errorf("env LEDGER_CACHE_URL is not set")
	}
	user := os.Getenv("LEDGER_CACHE_USER")
	pwd := os.Getenv("LEDGER_CACHE_PWD")

	db := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    pwd,
		Username:    user,
		DB:          0,
		MaxRetries:  5,
		DialTimeout: 10 * time.Second,
	})
	err = db.Ping(context.Background()).Err()
	if err != nil {
		return nil, err
	}

	return NewCacheServiceWithClient(db), nil
}

func NewCacheServiceWithClient(client *redis.Client) *CacheService {
	return &CacheService{client}
}

func balanceKey(user string) string {
	return "balance:" + user
}

func (c *CacheService) GetBalance(ctx context.Context, user string) (points int64, err error) {
	val, err := c.client.Get(ctx, balanceKey(user)).Result()
	if err == redis.Nil {
		return 0, fmt.Errorf("cached balance %s %w", user, models.ErrNotFound)
	} else if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

func (c *CacheService) SetBalance(ctx context.Context, user string, points int64) (err error) {
	return c.client.Set(ctx, balanceKey(user), points, balanceTTL).Err()
}

func (c *CacheService) InvalidateBalance(ctx context.Context, user string) error {
	return c.client.Del(ctx, balanceKey(user)).Err()
}

func (c *CacheService) Close() error {
	return c.client.Close()
}
