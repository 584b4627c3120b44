package common

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the server util)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig(shardId uint64) config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            shardId,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Transport configuration (shared by client and server)
// --------------------------------------------------------------------------

// SocketConf configures the buffers of a stream socket.
type SocketConf struct {
	WriteBufferSize int // bytes, 0 keeps the os default
	ReadBufferSize  int // bytes, 0 keeps the os default
}

// TCPConf holds options only applied to tcp connections.
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int // 0 disables keep alive
	TCPLingerSec    int // 0 keeps the os default
}

// ServerTransportConfig configures the listening side of a transport.
type ServerTransportConfig struct {
	// Endpoint is the address the server listens on (host:port for tcp, a path for unix sockets)
	Endpoint string
	// WorkersPerConn bounds the requests handled concurrently per connection
	WorkersPerConn int
	// BufferSize is the size of the pooled frame buffers
	BufferSize int
	SocketConf
	TCPConf
}

// ClientTransportConfig configures the dialing side of a transport.
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

type ServerShardType string

const (
	ShardTypeLocalIStore  ServerShardType = "local store"
	ShardTypeRemoteIStore ServerShardType = "remote store"
	ShardTypeDynamoIStore ServerShardType = "dynamodb store"
	ShardTypeObjectIStore ServerShardType = "object store"
)

type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// Type selects the store backing the shard
	Type ServerShardType
}

// DynamoConf configures shards of type ShardTypeDynamoIStore.
// Credentials and region are read from the default AWS configuration chain.
type DynamoConf struct {
	Table          string
	ConsistentRead bool
}

// ObjectConf configures shards of type ShardTypeObjectIStore.
type ObjectConf struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Bucket    string
	Prefix    string
}

// ServerConfig holds all configuration parameters for the RAFT cluster.
type ServerConfig struct {
	Shards []ServerShard

	// Engine is the db implementation of local and remote stores (maple, spruce)
	Engine string

	// Dragenboat parameters
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string

	// remote kvStore parameters
	TimeoutSecond int64

	// external stores
	Dynamo DynamoConf
	Object ObjectConf

	// RPC api settings
	Transport ServerTransportConfig

	// AdminEndpoint serves /health, /metrics and /shards over http. Empty disables it.
	AdminEndpoint string

	// Logging configuration
	LogLevel string
}

// HasRemoteShard checks if the configuration contains any remote shards
func (c *ServerConfig) HasRemoteShard() bool {
	for _, shard := range c.Shards {
		if shard.Type == ShardTypeRemoteIStore {
			return true
		}
	}
	return false
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Workers Per Conn", strconv.Itoa(c.Transport.WorkersPerConn))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	if c.AdminEndpoint != "" {
		addField("Admin Endpoint", c.AdminEndpoint)
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Shards
	addSection("Shards")
	addField("Engine", c.Engine)
	for _, shard := range c.Shards {
		addField(strconv.FormatUint(shard.ShardID, 10), string(shard.Type))
	}

	for _, shard := range c.Shards {
		if shard.Type == ShardTypeDynamoIStore {
			addSection("DynamoDB")
			addField("Table", c.Dynamo.Table)
			addField("Consistent Read", strconv.FormatBool(c.Dynamo.ConsistentRead))
			break
		}
	}
	for _, shard := range c.Shards {
		if shard.Type == ShardTypeObjectIStore {
			addSection("Object Store")
			addField("Endpoint", c.Object.Endpoint)
			addField("Bucket", c.Object.Bucket)
			addField("Prefix", c.Object.Prefix)
			addField("TLS", strconv.FormatBool(c.Object.Secure))
			break
		}
	}

	if c.HasRemoteShard() {
		// Node Identity
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))

		// Storage
		addSection("Storage")
		addField("Data Directory", c.DataDir)

		addSection("Cluster")
		sb.WriteString("  Initial Cluster Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Conns Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))
	addField("Write Buffer", strconv.Itoa(c.Transport.WriteBufferSize))
	addField("Read Buffer", strconv.Itoa(c.Transport.ReadBufferSize))
	addField("TCP No Delay", strconv.FormatBool(c.Transport.TCPNoDelay))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
