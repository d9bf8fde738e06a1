package bridge

import (
	"context"
	"fmt"
	"sort"

	"chatbridge/internal/domain"
)

// ResolveIdentity finds the bot's user entry by name and the private channel
// owned by it. Only directory reads are performed.
//
// An exact handle match wins over a display-name match; among equal matches
// the lowest user id is picked so resolution is stable across runs.
func ResolveIdentity(ctx context.Context, dir domain.Directory, botName string) (domain.BotIdentity, error) {
	users, err := dir.Users(ctx)
	if err != nil {
		return domain.BotIdentity{}, fmt.Errorf("list users: %w", err)
	}

	ids := make([]string, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var bot *domain.DirectoryUser
	for _, id := range ids {
		u := users[id]
		if u.Name == botName {
			bot = &u
			break
		}
		if bot == nil && u.DisplayName == botName {
			bot = &u
		}
	}
	if bot == nil {
		return domain.BotIdentity{}, fmt.Errorf("%w: no user named %q", domain.ErrIdentityNotFound, botName)
	}

	ims, err := dir.DirectChannels(ctx)
	if err != nil {
		return domain.BotIdentity{}, fmt.Errorf("list direct channels: %w", err)
	}
	channelIDs := make([]string, 0, len(ims))
	for id := range ims {
		channelIDs = append(channelIDs, id)
	}
	sort.Strings(channelIDs)
	for _, id := range channelIDs {
		if ims[id].OwnerUserID == bot.ID {
			return domain.BotIdentity{
				ID:               bot.ID,
				DisplayName:      botName,
				PrivateChannelID: id,
			}, nil
		}
	}
	return domain.BotIdentity{}, fmt.Errorf("%w: no direct channel for user %s", domain.ErrChannelNotFound, bot.ID)
}
