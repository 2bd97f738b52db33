package doctor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedRepository serves doctor lookups by id and by user id from a
// bounded LRU with a TTL. Misses are cached too, so repeated "is this
// user a doctor" checks do not hit the database.
type CachedRepository struct {
	Repository
	byID   *expirable.LRU[uuid.UUID, *Doctor]
	byUser *expirable.LRU[uuid.UUID, uuid.UUID]
}

func NewCachedRepository(next Repository, size int, ttl time.Duration) *CachedRepository {
	return &CachedRepository{
		Repository: next,
		byID:       expirable.NewLRU[uuid.UUID, *Doctor](size, nil, ttl),
		byUser:     expirable.NewLRU[uuid.UUID, uuid.UUID](size, nil, ttl),
	}
}

func (c *CachedRepository) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	if d, ok := c.byID.Get(id); ok {
		return clone(d), nil
	}
	d, err := c.Repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(d)
	return clone(d), nil
}

func (c *CachedRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	if id, ok := c.byUser.Get(userID); ok {
		if id == uuid.Nil {
			return nil, ErrNotFound
		}
		return c.GetByID(ctx, id)
	}
	d, err := c.Repository.GetByUserID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		c.byUser.Add(userID, uuid.Nil)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	c.store(d)
	return clone(d), nil
}

func (c *CachedRepository) Create(ctx context.Context, d *Doctor) error {
	if err := c.Repository.Create(ctx, d); err != nil {
		return err
	}
	c.invalidate(d)
	return nil
}

func (c *CachedRepository) UpdateSchedule(ctx context.Context, d *Doctor) error {
	err := c.Repository.UpdateSchedule(ctx, d)
	c.invalidate(d)
	return err
}

// Forget drops every cached entry for d. Callers that create a doctor inside
// a transaction call it again after commit, since a concurrent reader may
// have cached a miss between Create and commit.
func (c *CachedRepository) Forget(d *Doctor) {
	c.invalidate(d)
}

func (c *CachedRepository) store(d *Doctor) {
	c.byID.Add(d.ID, clone(d))
	if d.UserID != nil {
		c.byUser.Add(*d.UserID, d.ID)
	}
}

func (c *CachedRepository) invalidate(d *Doctor) {
	c.byID.Remove(d.ID)
	if d.UserID != nil {
		c.byUser.Remove(*d.UserID)
	}
}

// Len is the number of cached doctors.
func (c *CachedRepository) Len() int {
	return c.byID.Len()
}

func clone(d *Doctor) *Doctor {
	cp := *d
	cp.WorkingHours = append(WorkingHours(nil), d.WorkingHours...)
	cp.WorkingDays = append(WorkingDays(nil), d.WorkingDays...)
	return &cp
}
