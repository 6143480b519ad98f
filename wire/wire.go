// Package wire defines the JSON types of the Discord Gateway protocol: the
// opcode envelope carried on every frame and the payloads the client sends
// and receives. The client and its test harness share these definitions.
package wire

import "encoding/json"

// DefaultGatewayURL is the public real-time Gateway endpoint, protocol
// version 10, JSON encoding.
const DefaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// Gateway opcodes. Must be reproduced bit-exact for compatibility.
const (
	OpDispatch       = 0  // server -> client, named event in T
	OpHeartbeat      = 1  // both directions
	OpIdentify       = 2  // client -> server
	OpInvalidSession = 9  // server -> client, session is dead
	OpHello          = 10 // server -> client, first frame on every connection
	OpHeartbeatAck   = 11 // server -> client
)

// Dispatch event names carried in the envelope's T field.
const (
	EventReady              = "READY"
	EventGuildCreate        = "GUILD_CREATE"
	EventGuildDelete        = "GUILD_DELETE"
	EventChannelCreate      = "CHANNEL_CREATE"
	EventChannelUpdate      = "CHANNEL_UPDATE"
	EventChannelDelete      = "CHANNEL_DELETE"
	EventMessageCreate      = "MESSAGE_CREATE"
	EventRelationshipAdd    = "RELATIONSHIP_ADD"
	EventRelationshipRemove = "RELATIONSHIP_REMOVE"
)

// Intent bits requested during IDENTIFY.
const (
	IntentGuilds         = 1 << 0
	IntentGuildMembers   = 1 << 1
	IntentGuildMessages  = 1 << 9
	IntentMessageContent = 1 << 15
)

// DefaultIntents is the capability set the client identifies with: enough to
// populate guild, channel, and relationship state and to observe messages.
const DefaultIntents = IntentGuilds | IntentGuildMembers | IntentGuildMessages | IntentMessageContent

// Channel type codes.
const (
	ChannelTypeGuildText  = 0
	ChannelTypeDM         = 1
	ChannelTypeGuildVoice = 2
	ChannelTypeGroupDM    = 3
)

// RelationshipFriend is the relationship type marking a friend entry.
const RelationshipFriend = 1

// Envelope is the frame carried on every Gateway message.
type Envelope struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// Hello is the D payload of OpHello.
type Hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"` // milliseconds
}

// IdentifyProperties describes the connecting client to the Gateway.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Identify is the D payload of OpIdentify.
type Identify struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties IdentifyProperties `json:"properties"`
}

// User is a Discord user record, used both for the session's own identity
// and for relationship entries.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
}

// Channel is a guild channel, DM, or group DM, distinguished by Type.
type Channel struct {
	ID         string `json:"id"`
	Type       int    `json:"type"`
	Name       string `json:"name,omitempty"`
	GuildID    string `json:"guild_id,omitempty"`
	Recipients []User `json:"recipients,omitempty"`
}

// Guild is a guild record as delivered in READY or GUILD_CREATE. Channels
// is populated inside the READY snapshot and on GUILD_CREATE.
type Guild struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Icon        string    `json:"icon,omitempty"`
	Owner       bool      `json:"owner,omitempty"`
	Permissions string    `json:"permissions,omitempty"`
	Channels    []Channel `json:"channels,omitempty"`
}

// Relationship is an entry in the READY snapshot's relationships list or
// the D payload of RELATIONSHIP_ADD / RELATIONSHIP_REMOVE.
type Relationship struct {
	ID   string `json:"id"`
	Type int    `json:"type"`
	User User   `json:"user"`
}

// Ready is the D payload of the READY dispatch: the bulk initial snapshot.
type Ready struct {
	SessionID        string         `json:"session_id"`
	ResumeGatewayURL string         `json:"resume_gateway_url"`
	User             User           `json:"user"`
	Guilds           []Guild        `json:"guilds"`
	PrivateChannels  []Channel      `json:"private_channels"`
	Relationships    []Relationship `json:"relationships"`
}

// Message is the D payload of a MESSAGE_CREATE dispatch. Messages pass
// through to subscribers and are not folded into client state.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
	Author    User   `json:"author"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}
