package serve

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/xkv/cmd/util"
	"github.com/ValentinKolb/xkv/lib/db/util"
	"github.com/ValentinKolb/xkv/rpc/common"
	"github.com/ValentinKolb/xkv/rpc/server"
	"github.com/ValentinKolb/xkv/rpc/transport"
	"github.com/ValentinKolb/xkv/rpc/transport/tcp"
	"github.com/ValentinKolb/xkv/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the xkv server",
		Long:    `Start the xkv server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is XKV_<flag> (e.g. XKV_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

// shardTypes maps the shard type names of the --shards flag to the server shard types
var shardTypes = map[string]common.ServerShardType{
	"lstore":   common.ShardTypeLocalIStore,
	"dstore":   common.ShardTypeRemoteIStore,
	"ddbstore": common.ShardTypeDynamoIStore,
	"ostore":   common.ShardTypeObjectIStore,
}

func init() {
	cobra.OnInitialize(initConfig)

	key := "shards"
	ServeCmd.PersistentFlags().String(key, "100=lstore", cmdUtil.WrapString("Comma-separated list of shards to serve. Format: ID=TYPE where TYPE is one of: lstore, dstore, ddbstore, ostore"))

	key = "engine"
	ServeCmd.PersistentFlags().String(key, "spruce", cmdUtil.WrapString("Engine of lstore and dstore shards. spruce keeps keys ordered, maple is hash sharded (maple, spruce)"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(dstore) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. \nOther raft configuration parameters (ElectionRTT=value/10, HeartbeatRTT=value/100) are derived from this value"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("(dstore) SnapshotEntries defines how often the state machine should be snapshotted automatically, in applied Raft log entries. 0 disables automatic snapshots (not recommended)"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("(dstore) CompactionOverhead defines the number of snapshots retained in the system. Recommended value is about 1/2 of SnapshotEntries"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("(dstore) DataDir is the directory used for storing the snapshots"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dstore) ReplicaID is the unique identifier for this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dstore) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "dynamo-table"
	ServeCmd.PersistentFlags().String(key, "xkv", cmdUtil.WrapString("(ddbstore) DynamoDB table with a binary partition key 'k'. Credentials and region are read from the AWS environment"))

	key = "dynamo-consistent-read"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("(ddbstore) Use strongly consistent reads"))

	key = "object-endpoint"
	ServeCmd.PersistentFlags().String(key, "localhost:9000", cmdUtil.WrapString("(ostore) Endpoint of the S3 compatible object storage"))

	key = "object-access-key"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(ostore) Access key of the object storage"))

	key = "object-secret-key"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(ostore) Secret key of the object storage"))

	key = "object-secure"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("(ostore) Use TLS for the object storage"))

	key = "object-bucket"
	ServeCmd.PersistentFlags().String(key, "xkv", cmdUtil.WrapString("(ostore) Bucket holding the objects, created if missing"))

	key = "object-prefix"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(ostore) Prefix of all object names"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds of store requests"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the server will listen (e.g. localhost:8080, /tmp/xkv.sock, ...)"))

	key = "workers"
	ServeCmd.PersistentFlags().Int(key, 64, cmdUtil.WrapString("Requests handled concurrently per connection"))

	key = "buffer"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Size of the pooled frame buffers in KB (0 = transport default)"))

	key = "write-buffer"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The size of the socket write buffer in KB (0 = os default)"))

	key = "read-buffer"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The size of the socket read buffer in KB (0 = os default)"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (tcp only)"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval in seconds (tcp only)"))

	key = "tcp-linger"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The linger time in seconds (tcp only)"))

	key = "admin-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of the http admin endpoint serving /health, /metrics and /shards (empty = disabled)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// parseShards parses the value of the --shards flag
func parseShards(shardsConfig string) ([]common.ServerShard, error) {
	var shards []common.ServerShard
	for _, shardConfig := range strings.Split(shardsConfig, ",") {
		parts := strings.Split(shardConfig, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid shard format: %s (expected ID=TYPE)", shardConfig)
		}

		shardID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard ID %s: %w", parts[0], err)
		}

		shardType, ok := shardTypes[strings.TrimSpace(parts[1])]
		if !ok {
			return nil, fmt.Errorf("invalid shard type: %s (expected one of: lstore, dstore, ddbstore, ostore)", parts[1])
		}

		for _, s := range shards {
			if s.ShardID == shardID {
				return nil, fmt.Errorf("shard %d configured twice", shardID)
			}
		}

		shards = append(shards, common.ServerShard{ShardID: shardID, Type: shardType})
	}
	return shards, nil
}

// parseClusterMembers parses the value of the --cluster-members flag.
// The replica names are hashed to the numeric replica ids used by raft.
func parseClusterMembers(clusterMembers string) (map[uint64]string, error) {
	members := make(map[uint64]string)
	for _, member := range strings.Split(clusterMembers, ",") {
		parts := strings.Split(member, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		members[util.HashString(parts[0], 0)] = parts[1]
	}
	return members, nil
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	shards, err := parseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}
	serveCmdConfig.Shards = shards

	serveCmdConfig.Engine = viper.GetString("engine")
	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.AdminEndpoint = viper.GetString("admin-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	serveCmdConfig.Dynamo = common.DynamoConf{
		Table:          viper.GetString("dynamo-table"),
		ConsistentRead: viper.GetBool("dynamo-consistent-read"),
	}
	serveCmdConfig.Object = common.ObjectConf{
		Endpoint:  viper.GetString("object-endpoint"),
		AccessKey: viper.GetString("object-access-key"),
		SecretKey: viper.GetString("object-secret-key"),
		Secure:    viper.GetBool("object-secure"),
		Bucket:    viper.GetString("object-bucket"),
		Prefix:    viper.GetString("object-prefix"),
	}

	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint:       viper.GetString("endpoint"),
		WorkersPerConn: viper.GetInt("workers"),
		BufferSize:     viper.GetInt("buffer") * 1024,
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("tcp-linger"),
		},
	}

	if !serveCmdConfig.HasRemoteShard() {
		return nil
	}

	// raft settings are only required for dstore shards
	id := viper.GetString("replica-id")
	if id == "" {
		return fmt.Errorf("ReplicaId is required for remote shards")
	}
	serveCmdConfig.ReplicaID = util.HashString(id, 0)

	clusterMembers := viper.GetString("cluster-members")
	if clusterMembers == "" {
		return fmt.Errorf("ClusterMembers is required for remote shards")
	}
	if serveCmdConfig.ClusterMembers, err = parseClusterMembers(clusterMembers); err != nil {
		return err
	}

	if _, ok := serveCmdConfig.ClusterMembers[serveCmdConfig.ReplicaID]; !ok {
		return fmt.Errorf("no address found for replica ID %s in cluster members", id)
	}

	return nil
}

// run starts the xkv server and closes it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	var t transport.IRPCServerTransport
	switch viper.GetString("transport") {
	case "tcp":
		t = tcp.NewTCPServerTransport()
	case "unix":
		t = unix.NewUnixServerTransport()
	default:
		return fmt.Errorf("invalid transport %s (expected tcp or unix)", viper.GetString("transport"))
	}

	serv := server.NewRPCServer(*serveCmdConfig, t, s)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		if _, ok := <-sig; ok {
			server.Logger.Infof("shutting down")
			if err := serv.Close(); err != nil {
				server.Logger.Errorf("failed to close server: %v", err)
			}
		}
	}()

	return serv.Serve()
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(cmdUtil.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
