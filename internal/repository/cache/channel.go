// Package cache fronts read-mostly repositories with an in-process TTL cache.
package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/lalith-99/panelchat/internal/models"
	"github.com/lalith-99/panelchat/internal/repository"
)

// ChannelCache caches GetByID results for channel metadata, which changes
// rarely but is read on every Join and pin. Misses (nil channels) are not
// cached, so a freshly created channel is visible immediately. Deactivating
// a channel takes up to one TTL to be seen.
type ChannelCache struct {
	repository.ChannelRepository
	items *gocache.Cache
}

var _ repository.ChannelRepository = (*ChannelCache)(nil)

func NewChannelCache(next repository.ChannelRepository, ttl time.Duration) *ChannelCache {
	return &ChannelCache{
		ChannelRepository: next,
		items:             gocache.New(ttl, 2*ttl),
	}
}

func (c *ChannelCache) GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	key := channelID.String()
	if v, ok := c.items.Get(key); ok {
		ch := v.(models.Channel)
		return &ch, nil
	}

	ch, err := c.ChannelRepository.GetByID(ctx, channelID)
	if err != nil || ch == nil {
		return ch, err
	}
	c.items.Set(key, *ch, gocache.DefaultExpiration)
	return ch, nil
}

func (c *ChannelCache) Create(ctx context.Context, kind models.ChannelKind, name string) (*models.Channel, error) {
	ch, err := c.ChannelRepository.Create(ctx, kind, name)
	if err != nil {
		return nil, err
	}
	c.items.Set(ch.ID.String(), *ch, gocache.DefaultExpiration)
	return ch, nil
}
