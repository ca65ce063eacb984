package channel

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"tube-accounts/internal/observability"
)

// countsCache keys entries by channel and viewer. A nil cache is a valid,
// always-missing cache.
type countsCache struct {
	lru *expirable.LRU[string, Counts]
}

func newCountsCache(size int, ttl time.Duration) *countsCache {
	if size <= 0 || ttl <= 0 {
		return nil
	}
	return &countsCache{lru: expirable.NewLRU[string, Counts](size, nil, ttl)}
}

func cacheKey(channelID, viewerID string) string {
	return channelID + "|" + viewerID
}

func (c *countsCache) get(channelID, viewerID string) (Counts, bool) {
	if c == nil {
		return Counts{}, false
	}
	counts, ok := c.lru.Get(cacheKey(channelID, viewerID))
	if ok {
		observability.ChannelCacheLookups.WithLabelValues("hit").Inc()
	} else {
		observability.ChannelCacheLookups.WithLabelValues("miss").Inc()
	}
	return counts, ok
}

func (c *countsCache) set(channelID, viewerID string, counts Counts) {
	if c == nil {
		return
	}
	c.lru.Add(cacheKey(channelID, viewerID), counts)
}

// invalidateChannels drops every viewer's entry for the given channels.
func (c *countsCache) invalidateChannels(channelIDs ...string) {
	if c == nil {
		return
	}
	for _, key := range c.lru.Keys() {
		for _, id := range channelIDs {
			if strings.HasPrefix(key, id+"|") {
				c.lru.Remove(key)
				break
			}
		}
	}
}
