package observerproto

// Version is the observer protocol version.
const Version = "1.0"

// Message types.
const (
	TypeSubscribe = "SUBSCRIBE"
	TypeHello     = "HELLO"
	TypeChunk     = "CHUNK"
	TypeEvict     = "CHUNK_EVICT"
	TypeStats     = "STATS"
)

// Encoding of ChunkMsg.Data: base64 of uvarint pairs (code, run), code = state+1,
// code 0 = unresolved. Cell order: for y, for z, for x (x fastest).
const EncodingStatesRLE = "STATES_RLE_V1"

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Center is a chunk key; Radius is a Chebyshev distance in chunks.
	Center [3]int `json:"center"`
	Radius int    `json:"radius"`

	// Viewer is a world-space point. With Drive set the server recentres streaming on it.
	Viewer *[3]float64 `json:"viewer,omitempty"`
	Drive  bool        `json:"drive,omitempty"`
}

// Server -> Client. Sent once after a valid SUBSCRIBE.
type HelloMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	States          []string    `json:"states"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	RunID           string      `json:"run_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	States          []string    `json:"states"`
	TerrainDigest   string      `json:"terrain_digest"`
}

type WorldParams struct {
	TickRateHz  int   `json:"tick_rate_hz"`
	ChunkSize   int   `json:"chunk_size"`
	WorldMinY   int   `json:"world_min_y"`
	WorldHeight int   `json:"world_height"`
	Seed        int64 `json:"seed"`
}

// Server -> Client. A finished chunk.
type ChunkMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Key             [3]int `json:"key"`
	State           string `json:"state"`
	LOD             int    `json:"lod"`
	BestEffort      bool   `json:"best_effort,omitempty"`
	Encoding        string `json:"encoding"`
	Data            string `json:"data"`
}

// Server -> Client. Evict a chunk from the client cache.
type ChunkEvictMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Key             [3]int `json:"key"`
}

// Server -> Client. Engine counters, once per second of ticks.
type StatsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Loaded     int `json:"loaded"`
	Pending    int `json:"pending"`
	Complete   int `json:"complete"`
	BestEffort int `json:"best_effort"`

	Collapses uint64 `json:"collapses"`
	Conflicts uint64 `json:"conflicts"`
}
