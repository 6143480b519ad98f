package gateway

// Guild is a server the authenticated user belongs to.
type Guild struct {
	ID          string
	Name        string
	Icon        string
	Owner       bool
	Permissions string
}

// Channel is a text or voice channel within a guild, or a DM / group DM.
// GuildID is empty for DM channels; Recipients is populated only for them.
type Channel struct {
	ID         string
	Name       string
	Type       int
	GuildID    string
	Recipients []User
}

// User identifies a Discord user.
type User struct {
	ID            string
	Username      string
	Discriminator string
	Avatar        string
}

// ReadyEvent is delivered to OnReady handlers once the READY snapshot has
// been fully folded into client state.
type ReadyEvent struct {
	User   User
	Guilds []Guild
}

// Message is delivered to OnMessage handlers for each MESSAGE_CREATE
// dispatch. Messages are not retained in client state.
type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	Author    User
	Content   string
}
