package gateway

import (
	"sort"
	"sync"

	"github.com/vscord/discord-gateway-go/wire"
)

// sessionState is the authoritative in-memory view of one Gateway session,
// rebuilt from the READY snapshot and mutated by incremental dispatches.
// All writes happen on the connection's run-loop goroutine; the mutex exists
// because facade accessors read from caller goroutines.
type sessionState struct {
	mu sync.RWMutex

	ready     bool
	sessionID string
	resumeURL string

	currentUser User
	hasUser     bool

	guilds        map[string]Guild
	guildChannels map[string]Channel // keyed by channel ID
	dmChannels    map[string]Channel // keyed by channel ID
	friends       map[string]User    // keyed by user ID
}

func newSessionState() *sessionState {
	return &sessionState{
		guilds:        make(map[string]Guild),
		guildChannels: make(map[string]Channel),
		dmChannels:    make(map[string]Channel),
		friends:       make(map[string]User),
	}
}

// applyReady replaces the whole session view with the snapshot. The ready
// flag flips only after every map is populated, so a reader can never
// observe ready=true against a half-filled snapshot. Returns the event to
// surface to subscribers.
func (s *sessionState) applyReady(r wire.Ready) ReadyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessionID = r.SessionID
	s.resumeURL = r.ResumeGatewayURL
	s.currentUser = userFromWire(r.User)
	s.hasUser = true

	s.guilds = make(map[string]Guild, len(r.Guilds))
	s.guildChannels = make(map[string]Channel)
	s.dmChannels = make(map[string]Channel, len(r.PrivateChannels))
	s.friends = make(map[string]User, len(r.Relationships))

	for _, g := range r.Guilds {
		s.upsertGuildLocked(g)
	}
	for _, ch := range r.PrivateChannels {
		s.dmChannels[ch.ID] = dmChannelFromWire(ch)
	}
	for _, rel := range r.Relationships {
		if rel.Type == wire.RelationshipFriend {
			s.friends[rel.User.ID] = userFromWire(rel.User)
		}
	}

	s.ready = true

	return ReadyEvent{User: s.currentUser, Guilds: s.guildsLocked()}
}

// applyGuildCreate upserts the guild and its text/voice channels. Other
// channel types inside a guild (categories, threads) are not retained.
func (s *sessionState) applyGuildCreate(g wire.Guild) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertGuildLocked(g)
}

func (s *sessionState) upsertGuildLocked(g wire.Guild) {
	s.guilds[g.ID] = Guild{
		ID:          g.ID,
		Name:        g.Name,
		Icon:        g.Icon,
		Owner:       g.Owner,
		Permissions: g.Permissions,
	}
	for _, ch := range g.Channels {
		if ch.Type != wire.ChannelTypeGuildText && ch.Type != wire.ChannelTypeGuildVoice {
			continue
		}
		c := channelFromWire(ch)
		c.GuildID = g.ID // nested channels usually omit guild_id
		s.guildChannels[c.ID] = c
	}
}

// applyGuildDelete removes the guild and every channel associated with it.
// Idempotent.
func (s *sessionState) applyGuildDelete(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guilds, guildID)
	for id, ch := range s.guildChannels {
		if ch.GuildID == guildID {
			delete(s.guildChannels, id)
		}
	}
}

// applyChannel routes CHANNEL_CREATE / CHANNEL_UPDATE by type: DM and group
// DM go through the DM reduction, everything else upserts into the
// guild-channel map.
func (s *sessionState) applyChannel(ch wire.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch.Type == wire.ChannelTypeDM || ch.Type == wire.ChannelTypeGroupDM {
		s.dmChannels[ch.ID] = dmChannelFromWire(ch)
		return
	}
	s.guildChannels[ch.ID] = channelFromWire(ch)
}

// applyChannelDelete removes the channel from whichever map holds it.
// Idempotent.
func (s *sessionState) applyChannelDelete(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guildChannels, channelID)
	delete(s.dmChannels, channelID)
}

// applyRelationshipAdd upserts the entry when it is friend-typed.
func (s *sessionState) applyRelationshipAdd(rel wire.Relationship) {
	if rel.Type != wire.RelationshipFriend {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friends[rel.User.ID] = userFromWire(rel.User)
}

// applyRelationshipRemove deletes the entry. Removing an absent ID is a
// no-op, not an error.
func (s *sessionState) applyRelationshipRemove(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.friends, userID)
}

// markClosed drops the ready flag on teardown. The last snapshot stays
// readable while disconnected; the next READY replaces it wholesale.
func (s *sessionState) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
}

func (s *sessionState) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// --- Snapshot accessors ---

// Guilds returns the known guilds sorted by ID.
func (s *sessionState) Guilds() []Guild {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.guildsLocked()
}

func (s *sessionState) guildsLocked() []Guild {
	out := make([]Guild, 0, len(s.guilds))
	for _, g := range s.guilds {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GuildChannels returns the retained channels of one guild, sorted by ID.
func (s *sessionState) GuildChannels(guildID string) []Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Channel
	for _, ch := range s.guildChannels {
		if ch.GuildID == guildID {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DMChannels returns all DM and group-DM channels, sorted by ID.
func (s *sessionState) DMChannels() []Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Channel, 0, len(s.dmChannels))
	for _, ch := range s.dmChannels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Friends returns the friend relationships, sorted by user ID.
func (s *sessionState) Friends() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.friends))
	for _, u := range s.friends {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CurrentUser returns the authenticated identity and whether one is known.
func (s *sessionState) CurrentUser() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentUser, s.hasUser
}

// --- Wire conversions ---

func userFromWire(u wire.User) User {
	return User{
		ID:            u.ID,
		Username:      u.Username,
		Discriminator: u.Discriminator,
		Avatar:        u.Avatar,
	}
}

func channelFromWire(ch wire.Channel) Channel {
	return Channel{
		ID:      ch.ID,
		Name:    ch.Name,
		Type:    ch.Type,
		GuildID: ch.GuildID,
	}
}

// dmChannelFromWire derives a display name from the first recipient's
// username, falling back to a literal "DM" placeholder, and keeps the full
// recipient list.
func dmChannelFromWire(ch wire.Channel) Channel {
	name := "DM"
	if len(ch.Recipients) > 0 {
		name = ch.Recipients[0].Username
	}
	recipients := make([]User, len(ch.Recipients))
	for i, u := range ch.Recipients {
		recipients[i] = userFromWire(u)
	}
	return Channel{
		ID:         ch.ID,
		Name:       name,
		Type:       ch.Type,
		Recipients: recipients,
	}
}

func messageFromWire(m wire.Message) Message {
	return Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Author:    userFromWire(m.Author),
		Content:   m.Content,
	}
}
