package middleware

import (
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	warningInterval   = 30 * time.Second
	cleanupInterval   = 10 * time.Minute
	inactiveThreshold = time.Hour
)

// userBucket is one user's token bucket plus warning state.
type userBucket struct {
	mu            sync.Mutex
	tokens        float64
	lastRefill    time.Time
	warningsSent  int
	lastWarningAt time.Time
}

// RateLimiterMiddleware enforces a per-user token bucket. Bucket capacity is
// the configured burst; tokens refill at the per-minute rate.
type RateLimiterMiddleware struct {
	mu         sync.Mutex
	buckets    map[int64]*userBucket
	capacity   float64
	refillRate float64 // tokens per second
	logger     *zap.Logger
	api        *tgbotapi.BotAPI
}

func NewRateLimiterMiddleware(
	requestsPerMinute int,
	burstSize int,
	logger *zap.Logger,
	api *tgbotapi.BotAPI,
) *RateLimiterMiddleware {
	rl := &RateLimiterMiddleware{
		buckets:    make(map[int64]*userBucket),
		capacity:   float64(burstSize),
		refillRate: float64(requestsPerMinute) / 60.0,
		logger:     logger,
		api:        api,
	}

	go rl.evictIdleUsers()

	return rl
}

// Handle drops updates that exceed the user's budget. Updates without an
// identifiable user pass through.
func (rl *RateLimiterMiddleware) Handle(update tgbotapi.Update, next func(tgbotapi.Update)) {
	userID, chatID, ok := limitScope(update)
	if !ok {
		next(update)
		return
	}

	if !rl.allow(userID, chatID) {
		rl.logger.Warn("rate limit exceeded",
			zap.Int64("user_id", userID),
			zap.Int64("chat_id", chatID),
		)
		return
	}

	next(update)
}

// limitScope names the user a bucket belongs to and the chat warnings go to.
// A callback on an expired message carries no chat; warnings are skipped then.
func limitScope(update tgbotapi.Update) (userID, chatID int64, ok bool) {
	switch {
	case update.Message != nil:
		return update.Message.From.ID, update.Message.Chat.ID, true
	case update.CallbackQuery != nil:
		if update.CallbackQuery.Message != nil {
			chatID = update.CallbackQuery.Message.Chat.ID
		}
		return update.CallbackQuery.From.ID, chatID, true
	}
	return 0, 0, false
}

func (rl *RateLimiterMiddleware) allow(userID, chatID int64) bool {
	rl.mu.Lock()
	bucket, exists := rl.buckets[userID]
	if !exists {
		bucket = &userBucket{
			tokens:     rl.capacity,
			lastRefill: time.Now(),
		}
		rl.buckets[userID] = bucket
	}
	rl.mu.Unlock()

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	now := time.Now()
	bucket.tokens += now.Sub(bucket.lastRefill).Seconds() * rl.refillRate
	if bucket.tokens > rl.capacity {
		bucket.tokens = rl.capacity
	}
	bucket.lastRefill = now

	if bucket.tokens >= 1.0 {
		bucket.tokens -= 1.0
		bucket.warningsSent = 0
		return true
	}

	if chatID != 0 && now.Sub(bucket.lastWarningAt) > warningInterval {
		bucket.warningsSent++
		bucket.lastWarningAt = now
		rl.warn(chatID, bucket.warningsSent)
	}

	return false
}

// warn escalates with repeated offenses; warningsSent resets on the next
// allowed request.
func (rl *RateLimiterMiddleware) warn(chatID int64, count int) {
	var text string
	switch {
	case count == 1:
		text = "⚠️ Too many requests. Please slow down a little."
	case count == 2:
		text = "⚠️ Request limit reached. Wait ~30 seconds before the next one."
	default:
		text = "🛑 You're sending requests too often. Please wait a minute."
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := rl.api.Send(msg); err != nil {
		rl.logger.Error("failed to send rate limit warning",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
		)
	}
}

func (rl *RateLimiterMiddleware) evictIdleUsers() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()

		rl.mu.Lock()
		for userID, bucket := range rl.buckets {
			bucket.mu.Lock()
			idle := now.Sub(bucket.lastRefill) > inactiveThreshold
			bucket.mu.Unlock()
			if idle {
				delete(rl.buckets, userID)
			}
		}
		rl.mu.Unlock()
	}
}
