package roomsync

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"PMarket/tools/errs"
)

type offerFetcher interface {
	GetOffer(ctx context.Context, id string) (*Offer, error)
}

// OfferCache resolves offers by id with at most one fetch in flight per id.
type OfferCache struct {
	src   offerFetcher
	cache *lru.Cache
	group singleflight.Group
}

func NewOfferCache(src offerFetcher, size int) (*OfferCache, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return &OfferCache{src: src, cache: c}, nil
}

// Resolve returns the cached offer unless force is set, in which case it refetches
// and replaces the cached copy.
func (c *OfferCache) Resolve(ctx context.Context, id string, force bool) (*Offer, error) {
	if !force {
		if v, ok := c.cache.Get(id); ok {
			return v.(*Offer), nil
		}
	}
	key := id
	if force {
		key = "force:" + id
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		o, err := c.src.GetOffer(ctx, id)
		if err != nil {
			return nil, err
		}
		c.cache.Add(id, o)
		return o, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Offer), nil
}

func (c *OfferCache) Len() int { return c.cache.Len() }
