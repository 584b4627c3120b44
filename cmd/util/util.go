package util

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/ValentinKolb/xkv/lib/store/astore"
	"github.com/ValentinKolb/xkv/lib/store/lstore"
	"github.com/ValentinKolb/xkv/rpc/client"
	"github.com/ValentinKolb/xkv/rpc/common"
	"github.com/ValentinKolb/xkv/rpc/serializer"
	"github.com/ValentinKolb/xkv/rpc/server"
	"github.com/ValentinKolb/xkv/rpc/transport"
	"github.com/ValentinKolb/xkv/rpc/transport/tcp"
	"github.com/ValentinKolb/xkv/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables read by the cli
	EnvPrefix = "xkv"
)

// Logger is used by all commands
var Logger = logger.GetLogger("cli")

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of the client"))

	key = "transport-endpoints"
	cmd.PersistentFlags().String(key, "localhost:8080", WrapString("The address of the xkv server (host:port for tcp, a socket path for unix). Multiple endpoints can be specified as a comma-separated list"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to retry a blocking request"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket write buffer (in KB)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket read buffer (in KB)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (tcp only)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval (in seconds, tcp only)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time (in seconds, tcp only)"))
}

// SetupStoreFlags adds the flags selecting between a remote shard and an in-process store
func SetupStoreFlags(cmd *cobra.Command) {
	SetupRPCClientFlags(cmd)

	key := "shard"
	cmd.PersistentFlags().Int(key, 100, WrapString("ID of the shard to connect to"))

	key = "local"
	cmd.PersistentFlags().Bool(key, false, WrapString("Use an in-process store instead of a server. The data lives as long as the process"))

	key = "engine"
	cmd.PersistentFlags().String(key, "spruce", WrapString("Engine of the in-process store (maple, spruce)"))

	key = "workers"
	cmd.PersistentFlags().Int(key, 0, WrapString("Workers executing async requests of the in-process store (0 = number of CPUs)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("The level at which logs will be output (debug, info, warn, error)"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		TimeoutSecond: viper.GetInt("timeout"),
		Transport: common.ClientTransportConfig{
			RetryCount:             viper.GetInt("transport-retries"),
			Endpoints:              strings.Split(viper.GetString("transport-endpoints"), ","),
			ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			},
		},
	}
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	switch viper.GetString("serializer") {
	case "json":
		return serializer.NewJSONSerializer(), nil
	case "binary":
		return serializer.NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s (expected json or binary)", viper.GetString("serializer"))
	}
}

// GetTransport creates a client transport based on configuration
func GetTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s (expected tcp or unix)", viper.GetString("transport"))
	}
}

// GetShardID retrieves the configured shard ID
func GetShardID() uint64 {
	return uint64(viper.GetInt("shard"))
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

var (
	localStoreOnce sync.Once
	localStore     store.IStore
	localStoreErr  error
)

// getLocalStore returns the in-process store shared by all commands of this process
func getLocalStore() (store.IStore, error) {
	localStoreOnce.Do(func() {
		factory, err := server.DBFactory(viper.GetString("engine"))
		if err != nil {
			localStoreErr = err
			return
		}
		localStore = lstore.NewLocalStore(factory)
	})
	return localStore, localStoreErr
}

// NewStore returns the blocking store selected by the flags
func NewStore() (store.IStore, error) {
	if viper.GetBool("local") {
		return getLocalStore()
	}

	s, err := GetSerializer()
	if err != nil {
		return nil, err
	}
	t, err := GetTransport()
	if err != nil {
		return nil, err
	}
	return client.NewRPCStore(GetShardID(), *GetClientConfig(), t, s)
}

// NewAsyncStore returns the asynchronous store selected by the flags.
// The caller closes it; closing never affects the blocking store of the process.
func NewAsyncStore() (store.IAsyncStore, error) {
	if viper.GetBool("local") {
		backend, err := getLocalStore()
		if err != nil {
			return nil, err
		}
		return astore.NewAsyncStore(backend, astore.Config{Workers: viper.GetInt("workers")}), nil
	}

	s, err := GetSerializer()
	if err != nil {
		return nil, err
	}
	t, err := GetTransport()
	if err != nil {
		return nil, err
	}
	return client.NewAsyncRPCStore(GetShardID(), *GetClientConfig(), t, s)
}

// PrepareCommand binds the flags of cmd to viper and applies the configured log level
func PrepareCommand(cmd *cobra.Command) error {
	if err := BindCommandFlags(cmd); err != nil {
		return err
	}

	level := viper.GetString("log-level")
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		common.InitLoggers(level)
	default:
		return fmt.Errorf("invalid log level %q (expected debug, info, warn or error)", level)
	}
	return nil
}
