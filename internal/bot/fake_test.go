package bot

import (
	"github.com/keshon/basicbot/internal/core/coretest"
	"github.com/keshon/basicbot/internal/storage"
)

const (
	botID   = coretest.BotID
	ownerID = coretest.OwnerID
	guildID = coretest.GuildID
)

var (
	guildMessage  = coretest.GuildMessage
	directMessage = coretest.DirectMessage
)

var _ PrefixStore = (*storage.Storage)(nil)
