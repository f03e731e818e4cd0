// Package availability resolves open booking slots for doctors, with a
// short-TTL cache in front of the portal API. The server remains the source
// of truth; the cache only smooths repeated lookups within a session.
package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"carelink/internal/dateutil"
	"carelink/internal/metrics"
	"carelink/internal/model"
)

// DefaultSearchWindowDays bounds FindEarliestAvailable: doctor cards only
// probe today and tomorrow.
const DefaultSearchWindowDays = 2

// Fetcher is the portal API surface the resolver needs.
type Fetcher interface {
	GetAvailability(ctx context.Context, doctorID string, date dateutil.CalendarDate) (*model.Availability, error)
}

// Resolver fetches and caches per-day availability.
type Resolver struct {
	fetcher Fetcher
	cache   *gocache.Cache
	ttl     time.Duration

	redis *redis.Client

	now func() time.Time
}

// NewResolver creates a resolver caching results for ttl.
func NewResolver(fetcher Fetcher, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &Resolver{
		fetcher: fetcher,
		cache:   gocache.New(ttl, 2*ttl),
		ttl:     ttl,
		now:     time.Now,
	}
}

// UseRedisCache adds a shared Redis tier behind the in-process cache, so
// several bot instances see the same availability within the TTL.
func (r *Resolver) UseRedisCache(client *redis.Client) {
	r.redis = client
}

func cacheKey(doctorID string, date dateutil.CalendarDate) string {
	return fmt.Sprintf("availability:%s:%s", doctorID, date)
}

// Fetch returns the open slots for (doctorID, date), from cache when fresh.
func (r *Resolver) Fetch(ctx context.Context, doctorID string, date dateutil.CalendarDate) (*model.Availability, error) {
	return r.fetch(ctx, doctorID, date, false)
}

// Refetch bypasses the cache and refreshes it, used for retry affordances
// and after a booking conflict.
func (r *Resolver) Refetch(ctx context.Context, doctorID string, date dateutil.CalendarDate) (*model.Availability, error) {
	return r.fetch(ctx, doctorID, date, true)
}

func (r *Resolver) fetch(ctx context.Context, doctorID string, date dateutil.CalendarDate, force bool) (*model.Availability, error) {
	key := cacheKey(doctorID, date)

	if !force {
		if cached, ok := r.cache.Get(key); ok {
			metrics.IncAvailabilityFetch("hit")
			return cached.(*model.Availability), nil
		}
		if avail := r.readRedis(ctx, key); avail != nil {
			avail.DoctorID = doctorID
			r.cache.Set(key, avail, r.ttl)
			metrics.IncAvailabilityFetch("hit")
			return avail, nil
		}
	}

	avail, err := r.fetcher.GetAvailability(ctx, doctorID, date)
	if err != nil {
		metrics.IncAvailabilityFetch("error")
		return nil, err
	}

	r.cache.Set(key, avail, r.ttl)
	r.writeRedis(ctx, key, avail)
	if avail.HasSlots() {
		metrics.IncAvailabilityFetch("slots")
	} else {
		metrics.IncAvailabilityFetch("empty")
	}
	return avail, nil
}

// Invalidate drops the cached result for (doctorID, date). Called after a
// booking so the taken slot no longer appears on refetch.
func (r *Resolver) Invalidate(ctx context.Context, doctorID string, date dateutil.CalendarDate) {
	key := cacheKey(doctorID, date)
	r.cache.Delete(key)
	if r.redis != nil {
		_ = r.redis.Del(ctx, key).Err()
	}
}

func (r *Resolver) readRedis(ctx context.Context, key string) *model.Availability {
	if r.redis == nil {
		return nil
	}
	val, err := r.redis.Get(ctx, key).Result()
	if err != nil {
		return nil
	}
	var avail model.Availability
	if err := json.Unmarshal([]byte(val), &avail); err != nil {
		return nil
	}
	return &avail
}

func (r *Resolver) writeRedis(ctx context.Context, key string, avail *model.Availability) {
	if r.redis == nil {
		return
	}
	data, err := json.Marshal(avail)
	if err != nil {
		return
	}
	_ = r.redis.Set(ctx, key, data, r.ttl).Err()
}

// FindEarliestAvailable probes today, today+1, ... for up to windowDays days
// and returns the first date with at least one slot. The probe is strictly
// sequential. An exhausted window is a normal outcome: (nil, false, nil).
// A fetch failure aborts the probe and is returned as an error.
func (r *Resolver) FindEarliestAvailable(ctx context.Context, doctorID string, windowDays int) (*model.Availability, bool, error) {
	if windowDays <= 0 {
		windowDays = DefaultSearchWindowDays
	}
	start := dateutil.DateOf(r.now())

	for i := 0; i < windowDays; i++ {
		avail, err := r.Fetch(ctx, doctorID, start.AddDays(i))
		if err != nil {
			return nil, false, err
		}
		if avail.HasSlots() {
			return avail, true, nil
		}
	}
	return nil, false, nil
}

// Preview is the earliest availability of one doctor for a list card.
type Preview struct {
	DoctorID string
	Found    bool
	Date     dateutil.CalendarDate
	Slots    []dateutil.TimeOfDay
	Err      error
}

// PreviewSlotLimit caps how many slots a card preview shows.
const PreviewSlotLimit = 4

// PreviewDoctors fetches today's and tomorrow's availability for each doctor
// as a capped parallel batch and selects the earliest non-empty day per
// doctor. Doctors are independent; the two days of one doctor are requested
// concurrently and reconciled client-side.
func (r *Resolver) PreviewDoctors(ctx context.Context, doctorIDs []string) []Preview {
	previews := make([]Preview, len(doctorIDs))

	var wg sync.WaitGroup
	for i, id := range doctorIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			previews[i] = r.previewOne(ctx, id)
		}(i, id)
	}
	wg.Wait()
	return previews
}

func (r *Resolver) previewOne(ctx context.Context, doctorID string) Preview {
	today := dateutil.DateOf(r.now())
	days := []dateutil.CalendarDate{today, today.AddDays(1)}

	results := make([]*model.Availability, len(days))
	errs := make([]error, len(days))

	var wg sync.WaitGroup
	for i, day := range days {
		wg.Add(1)
		go func(i int, day dateutil.CalendarDate) {
			defer wg.Done()
			results[i], errs[i] = r.Fetch(ctx, doctorID, day)
		}(i, day)
	}
	wg.Wait()

	// Earliest non-empty day wins regardless of response order.
	for i, avail := range results {
		if errs[i] != nil {
			continue
		}
		if avail.HasSlots() {
			slots := avail.Slots
			if len(slots) > PreviewSlotLimit {
				slots = slots[:PreviewSlotLimit]
			}
			return Preview{DoctorID: doctorID, Found: true, Date: avail.Date, Slots: slots}
		}
	}
	for _, err := range errs {
		if err != nil {
			return Preview{DoctorID: doctorID, Err: err}
		}
	}
	return Preview{DoctorID: doctorID}
}
