// ABOUTME: Resonate protocol message type definitions
// ABOUTME: Structs for every text message in the wire catalogue
package protocol

// Message is the top-level text envelope for every JSON message exchanged
// over the WebSocket connection.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Role names a declared Endpoint capability.
type Role string

const (
	RolePlayer     Role = "player"
	RoleController Role = "controller"
	RoleMetadata   Role = "metadata"
	RoleArtwork    Role = "artwork"
	RoleVisualizer Role = "visualizer"
)

// ClientHello is sent by a client to initiate the handshake.
type ClientHello struct {
	ClientID            string               `json:"client_id"`
	Name                string               `json:"name"`
	Version             int                  `json:"version"`
	SupportedRoles      []string             `json:"supported_roles"`
	DeviceInfo          *DeviceInfo          `json:"device_info,omitempty"`
	PlayerSupport       *PlayerSupport       `json:"player_support,omitempty"`
	ArtworkSupport      *ArtworkSupport      `json:"artwork_support,omitempty"`
	VisualizerSupport   *VisualizerSupport   `json:"visualizer_support,omitempty"`
}

// DeviceInfo contains device identification; every field is optional.
type DeviceInfo struct {
	ProductName     string `json:"product_name,omitempty"`
	Manufacturer    string `json:"manufacturer,omitempty"`
	SoftwareVersion string `json:"software_version,omitempty"`
}

// PlayerSupport describes a player-role Endpoint's declared capabilities.
type PlayerSupport struct {
	SupportFormats    []AudioFormat `json:"support_formats"`
	BufferCapacity    int           `json:"buffer_capacity"`
	SupportedCommands []string      `json:"supported_commands"`
}

// AudioFormat describes one supported audio format.
type AudioFormat struct {
	Codec      string `json:"codec"` // opus | flac | pcm
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
}

// ArtworkSupport describes an artwork-role Endpoint's declared channels.
// Length is 1..4.
type ArtworkSupport struct {
	Channels []ArtworkChannel `json:"channels"`
}

// ArtworkChannel describes one negotiated artwork channel.
type ArtworkChannel struct {
	Source      string `json:"source"` // album | artist | none
	Format      string `json:"format"` // jpeg | png | bmp
	MediaWidth  int    `json:"media_width"`
	MediaHeight int    `json:"media_height"`
}

// VisualizerSupport describes a visualizer-role Endpoint's capabilities.
type VisualizerSupport struct {
	BufferCapacity int `json:"buffer_capacity"`
}

// ServerHello is the server's response to client/hello. ActiveRoles echoes
// the activated subset of the client's declared supported_roles, one entry
// per role family with the client's preferred version kept as declared.
type ServerHello struct {
	ServerID    string   `json:"server_id"`
	Name        string   `json:"name"`
	Version     int      `json:"version"`
	ActiveRoles []string `json:"active_roles,omitempty"`
}

// ClientGoodbye carries client/goodbye, a graceful-disconnect hint sent
// before the client closes its transport. The receiver logs the reason and
// treats the subsequent close as expected; the message itself causes no
// state transition.
type ClientGoodbye struct {
	Reason string `json:"reason"` // another_server | shutdown | restart | user_request
}

// ServerError is a best-effort diagnostic sent before the server closes a
// connection that fails validation, so CLI tooling has something to print.
// The close itself remains authoritative.
type ServerError struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ClientState carries client/state, role-gated by which role objects are set.
type ClientState struct {
	Player *PlayerState `json:"player,omitempty"`
}

// PlayerState reports a player's current synchronization state.
type PlayerState struct {
	State  string `json:"state"` // synchronized | error
	Volume int    `json:"volume,omitempty"`
	Muted  bool   `json:"muted,omitempty"`
}

// ClientCommand carries client/command, sent by controller-role Endpoints.
type ClientCommand struct {
	Controller *ControllerCommand `json:"controller,omitempty"`
}

// ControllerCommand is one controller command.
type ControllerCommand struct {
	Command string `json:"command"`
	Volume  *int   `json:"volume,omitempty"`
	Mute    *bool  `json:"mute,omitempty"`
}

// ServerCommand carries server/command, role-gated to declared supported_commands.
type ServerCommand struct {
	Player *PlayerCommand `json:"player,omitempty"`
}

// PlayerCommand is a volume/mute instruction sent to a player.
type PlayerCommand struct {
	Command string `json:"command"` // volume | mute
	Volume  int    `json:"volume,omitempty"`
	Mute    bool   `json:"mute,omitempty"`
}

// ClientTime is sent by a client to begin a clock-sync round trip.
type ClientTime struct {
	ClientTransmitted int64 `json:"client_transmitted"`
}

// ServerTime is the server's response to client/time.
type ServerTime struct {
	ClientTransmitted int64 `json:"client_transmitted"`
	ServerReceived    int64 `json:"server_received"`
	ServerTransmitted int64 `json:"server_transmitted"`
}

// ServerState carries server/state. Fields use delta-merge semantics:
// absent means "retain", explicit null means "clear".
type ServerState struct {
	Metadata   *MetadataState   `json:"metadata,omitempty"`
	Controller *ControllerState `json:"controller,omitempty"`
}

// MetadataState reports track metadata to metadata-role Endpoints.
type MetadataState struct {
	Timestamp     int64          `json:"timestamp"`
	Title         OptString      `json:"title,omitzero"`
	Artist        OptString      `json:"artist,omitzero"`
	AlbumArtist   OptString      `json:"album_artist,omitzero"`
	Album         OptString      `json:"album,omitzero"`
	ArtworkURL    OptString      `json:"artwork_url,omitzero"`
	Year          OptInt         `json:"year,omitzero"`
	Track         OptInt         `json:"track,omitzero"`
	Progress      *ProgressState `json:"progress,omitempty"`
	Repeat        OptString      `json:"repeat,omitzero"`
	Shuffle       OptBool        `json:"shuffle,omitzero"`
}

// ProgressState reports playback progress.
type ProgressState struct {
	TrackProgress int `json:"track_progress"`
	TrackDuration int `json:"track_duration"`
	PlaybackSpeed int `json:"playback_speed"` // *1000, 1000 = normal, 0 = paused
}

// ControllerState reports aggregate group state to controller-role Endpoints.
type ControllerState struct {
	SupportedCommands []string `json:"supported_commands"`
	Volume            int      `json:"volume"`
	Muted             bool     `json:"muted"`
}

// GroupUpdate carries group/update. All fields use delta-merge semantics.
type GroupUpdate struct {
	PlaybackState OptString `json:"playback_state,omitzero"`
	GroupID       OptString `json:"group_id,omitzero"`
	GroupName     OptString `json:"group_name,omitzero"`
}

// StreamStart carries stream/start, announcing the active format for a
// newly joined or newly started StreamSession.
type StreamStart struct {
	Player    *PlayerFormat    `json:"player,omitempty"`
	Artwork   *ArtworkFormat   `json:"artwork,omitempty"`
	Visualizer *VisualizerFormat `json:"visualizer,omitempty"`
}

// PlayerFormat describes the negotiated audio format for a player session.
type PlayerFormat struct {
	Codec       string `json:"codec"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	BitDepth    int    `json:"bit_depth"`
	CodecHeader string `json:"codec_header,omitempty"`
}

// ArtworkFormat describes the negotiated format for one artwork channel.
type ArtworkFormat struct {
	Channel int    `json:"channel"`
	Format  string `json:"format"`
}

// VisualizerFormat describes the negotiated visualizer feature format.
type VisualizerFormat struct {
	BufferCapacity int `json:"buffer_capacity"`
}

// StreamUpdate carries stream/update, a delta against the prior StreamStart
// or StreamUpdate.
type StreamUpdate struct {
	Player  *PlayerFormatDelta  `json:"player,omitempty"`
	Artwork *ArtworkFormat      `json:"artwork,omitempty"`
}

// PlayerFormatDelta is the same shape as PlayerFormat but every field is
// optional so only the changed fields need be present.
type PlayerFormatDelta struct {
	Codec       OptString `json:"codec,omitzero"`
	SampleRate  OptInt    `json:"sample_rate,omitzero"`
	Channels    OptInt    `json:"channels,omitzero"`
	BitDepth    OptInt    `json:"bit_depth,omitzero"`
	CodecHeader OptString `json:"codec_header,omitzero"`
}

// StreamRequestFormat carries stream/request-format, a client→server ask to
// switch the active player format mid-stream.
type StreamRequestFormat struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	BitDepth   int    `json:"bit_depth,omitempty"`
}

// StreamEnd carries stream/end. The decoder MUST
// accept both an absent and an empty-object payload; the encoder always
// omits the payload entirely (Message.Payload left nil).
type StreamEnd struct {
	Roles []string `json:"roles,omitempty"`
}
