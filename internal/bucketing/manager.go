package bucketing

import (
	"hash"
	"sync"
	"time"

	"phone-auth-service/internal/config"
	"phone-auth-service/internal/models"

	"github.com/spaolacci/murmur3"
)

type BucketingManager struct {
	accountBuckets int
	eventBuckets   int
	hasherPool     sync.Pool
}

func NewBucketingManager(cfg config.BucketingConfig) *BucketingManager {
	bm := &BucketingManager{
		accountBuckets: positive(cfg.UserBuckets, 1024),
		eventBuckets:   positive(cfg.EventBuckets, 64),
	}

	// Create pool of hash functions to avoid allocation overhead
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return bm
}

// GetAccountBucket returns the partition bucket for an account id (0 to accountBuckets-1)
func (bm *BucketingManager) GetAccountBucket(accountID string) int {
	return bm.getBucket(accountID, bm.accountBuckets)
}

// GetEventBucket returns the partition bucket for audit events
func (bm *BucketingManager) GetEventBucket(identifier string) int {
	return bm.getBucket(identifier, bm.eventBuckets)
}

// GetDateBucket returns the UTC day an event belongs to
func (bm *BucketingManager) GetDateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// AssignEvent fills the bucket columns of an audit event. Events are spread by
// phone number so failures for unknown numbers still distribute.
func (bm *BucketingManager) AssignEvent(event *models.AuthEvent) {
	key := event.AccountID
	if key == "" || key == models.PlaceholderAccountID {
		key = event.PhoneNumber
	}
	event.EventBucket = bm.GetEventBucket(key)
	event.DateBucket = bm.GetDateBucket(event.OccurredAt)
}

func (bm *BucketingManager) GetAccountBuckets() int {
	return bm.accountBuckets
}

// GetEventBuckets returns the number of event buckets
func (bm *BucketingManager) GetEventBuckets() int {
	return bm.eventBuckets
}

func (bm *BucketingManager) getBucket(key string, numBuckets int) int {
	return int(bm.getHash(key) % uint64(numBuckets))
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	// Reset hasher for reuse
	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}

func positive(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}
