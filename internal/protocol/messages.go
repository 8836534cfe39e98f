package protocol

// HELLO (client -> server). An empty cube list subscribes to every cube;
// MaxFPS caps the frame cadence (0 = server default).
type HelloMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Cubes           []string `json:"cubes,omitempty"`
	MaxFPS          int      `json:"max_fps,omitempty"`
}

// CubeMeta describes one cube of the installation.
type CubeMeta struct {
	ID               string     `json:"id"`
	Width            int        `json:"width"`
	Height           int        `json:"height"`
	Length           int        `json:"length"`
	Position         [3]float64 `json:"position"`
	Orientation      []string   `json:"orientation"`
	WorldOrientation []string   `json:"world_orientation"`
	VoxelCount       int        `json:"voxel_count"`
}

// META (server -> client), sent once after the handshake.
type MetaMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Cubes           []CubeMeta `json:"cubes"`
	ColorCorrected  bool       `json:"color_corrected"`
}

// FRAME (server -> client): one cube's voxel colors as packed RGB, x
// fastest, then y, then z, base64-encoded. Seq increments per update round
// and is shared by the frames of one round.
type FrameMsg struct {
	Type  string `json:"type"`
	Cube  string `json:"cube"`
	Seq   uint64 `json:"seq"`
	Pixels string `json:"pixels"`
}

// STATS (server -> client): ingest counters, sent periodically.
type StatsMsg struct {
	Type            string `json:"type"`
	Packets         uint64 `json:"packets"`
	DmxPackets      uint64 `json:"dmx_packets"`
	SyncPackets     uint64 `json:"sync_packets"`
	Malformed       uint64 `json:"malformed"`
	UnknownOps      uint64 `json:"unknown_ops"`
	Unroutable      uint64 `json:"unroutable"`
	VoxelsWritten   uint64 `json:"voxels_written"`
	DroppedTriplets uint64 `json:"dropped_triplets"`
}
