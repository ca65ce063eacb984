// Package channel serves the public channel profile of a user and the
// subscription relation behind it.
package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tube-accounts/internal/observability"
	"tube-accounts/internal/users"
)

var (
	ErrMissingUsername  = errors.New("username is missing")
	ErrChannelNotFound  = errors.New("channel does not exist")
	ErrSelfSubscription = errors.New("cannot subscribe to your own channel")
)

type UserLookup interface {
	FindByIdentifier(ctx context.Context, username, email string) (users.User, error)
	FindByID(ctx context.Context, id string) (users.User, error)
}

type SubscriptionStore interface {
	Counts(ctx context.Context, channelID, viewerID string) (Counts, error)
	Toggle(ctx context.Context, subscriberID, channelID string) (bool, error)
}

type CacheOptions struct {
	Size int
	// TTL of zero disables caching.
	TTL time.Duration
}

type Profile struct {
	ID                        string `json:"_id"`
	FullName                  string `json:"fullName"`
	Username                  string `json:"username"`
	Email                     string `json:"email"`
	Avatar                    string `json:"avatar"`
	CoverImage                string `json:"coverImage"`
	SubscribersCount          int64  `json:"subscribersCount"`
	ChannelsSubscribedToCount int64  `json:"channelsSubscribedToCount"`
	IsSubscribed              bool   `json:"isSubscribed"`
}

type Service struct {
	users  UserLookup
	subs   SubscriptionStore
	cache  *countsCache
	logger *observability.Logger
}

func NewService(lookup UserLookup, subs SubscriptionStore, cache CacheOptions, logger *observability.Logger) *Service {
	return &Service{
		users:  lookup,
		subs:   subs,
		cache:  newCountsCache(cache.Size, cache.TTL),
		logger: logger,
	}
}

func (s *Service) Profile(ctx context.Context, username, viewerID string) (Profile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Profile{}, ErrMissingUsername
	}

	owner, err := s.users.FindByIdentifier(ctx, username, "")
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return Profile{}, ErrChannelNotFound
		}
		return Profile{}, fmt.Errorf("find channel owner: %w", err)
	}

	counts, ok := s.cache.get(owner.ID, viewerID)
	if !ok {
		counts, err = s.subs.Counts(ctx, owner.ID, viewerID)
		if err != nil {
			return Profile{}, err
		}
		s.cache.set(owner.ID, viewerID, counts)
	}

	return Profile{
		ID:                        owner.ID,
		FullName:                  owner.FullName,
		Username:                  owner.Username,
		Email:                     owner.Email,
		Avatar:                    owner.AvatarURL,
		CoverImage:                owner.CoverImageURL,
		SubscribersCount:          counts.Subscribers,
		ChannelsSubscribedToCount: counts.SubscribedTo,
		IsSubscribed:              counts.IsSubscribed,
	}, nil
}

func (s *Service) ToggleSubscription(ctx context.Context, subscriberID, channelID string) (bool, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == subscriberID {
		return false, ErrSelfSubscription
	}

	if _, err := s.users.FindByID(ctx, channelID); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return false, ErrChannelNotFound
		}
		return false, fmt.Errorf("find channel: %w", err)
	}

	subscribed, err := s.subs.Toggle(ctx, subscriberID, channelID)
	if err != nil {
		return false, err
	}

	// The channel's subscriber count and the subscriber's followed count
	// both changed.
	s.cache.invalidateChannels(channelID, subscriberID)

	s.logger.Info("subscription_toggled", map[string]any{
		"subscriber_id": subscriberID,
		"channel_id":    channelID,
		"subscribed":    subscribed,
	})
	return subscribed, nil
}
