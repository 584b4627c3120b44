package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/xkv/lib/db"
	"github.com/ValentinKolb/xkv/lib/db/engines/maple"
	"github.com/ValentinKolb/xkv/lib/db/engines/spruce"
	"github.com/ValentinKolb/xkv/lib/store"
	"github.com/ValentinKolb/xkv/lib/store/ddbstore"
	"github.com/ValentinKolb/xkv/lib/store/dstore"
	"github.com/ValentinKolb/xkv/lib/store/lstore"
	"github.com/ValentinKolb/xkv/lib/store/ostore"
	"github.com/ValentinKolb/xkv/rpc/common"
	"github.com/ValentinKolb/xkv/rpc/serializer"
	"github.com/ValentinKolb/xkv/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a struct that represents a shard in the RPC server
// It contains the store it encapsulates and the adapter that handles requests for the store
type serverShard struct {
	Type    common.ServerShardType
	Store   store.IStore
	Adapter IRPCServerAdapter
}

// RPCServer routes the requests of a transport to the stores of its shards
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]

	nodeHost  *dragonboat.NodeHost
	admin     *http.Server
	closeOnce sync.Once
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
	}
}

// DBFactory returns the factory of the db engine with the given name
func DBFactory(engine string) (store.DBFactory, error) {
	switch engine {
	case "", string(db.ImplMaple):
		return func() db.KVDB { return maple.NewMapleDB(nil) }, nil
	case string(db.ImplSpruce):
		return spruce.NewSpruceDB, nil
	default:
		return nil, fmt.Errorf("unknown db engine %q (expected maple or spruce)", engine)
	}
}

// handle decodes a request frame, lets the adapter of the shard answer it and encodes the response
func (s *RPCServer) handle(shardId uint64, req []byte) []byte {
	var msg common.Message
	var respMsg *common.Message

	start := time.Now()
	shard, ok := s.shards.Load(shardId)
	if !ok {
		respMsg = common.NewErrorResponse(store.RetCInvalidOperation, fmt.Sprintf("shard %d not found", shardId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse(store.RetCInvalidOperation, fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		respMsg = shard.Adapter.Handle(&msg, shard.Store)
	}
	observeRequest(msg.MsgType, respMsg, start)

	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize %s response: %v", respMsg.MsgType, err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(store.RetCInternalError, fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

// observeRequest records request counters and latency for the /metrics endpoint
func observeRequest(t common.MessageType, resp *common.Message, start time.Time) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`xkv_rpc_requests_total{type=%q}`, t)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`xkv_rpc_request_duration_seconds{type=%q}`, t)).UpdateDuration(start)
	if resp.AsError() != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`xkv_rpc_errors_total{type=%q,code=%q}`, t, resp.Code)).Inc()
	}
}

// newShardStore creates the store backing a shard
func (s *RPCServer) newShardStore(shardConfig common.ServerShard, dbFactory store.DBFactory) (store.IStore, error) {
	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	switch shardConfig.Type {
	case common.ShardTypeLocalIStore:
		return lstore.NewLocalStore(dbFactory), nil

	case common.ShardTypeRemoteIStore:
		if s.nodeHost == nil {
			return nil, fmt.Errorf("node host is nil, cannot create remote store")
		}
		if err := s.nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, dstore.CreateStateMachineFactory(dbFactory), s.config.ToDragonboatConfig(shardConfig.ShardID)); err != nil {
			return nil, fmt.Errorf("failed to start shard %d: %w", shardConfig.ShardID, err)
		}
		return dstore.NewDistributedStore(s.nodeHost, shardConfig.ShardID, timeout), nil

	case common.ShardTypeDynamoIStore:
		ctx, cancel := context.WithTimeout(context.Background(), max(timeout, 10*time.Second))
		defer cancel()
		return ddbstore.NewDynamoStoreFromEnv(ctx, ddbstore.Config{
			Table:          s.config.Dynamo.Table,
			Timeout:        timeout,
			ConsistentRead: s.config.Dynamo.ConsistentRead,
		})

	case common.ShardTypeObjectIStore:
		return ostore.NewObjectStoreFromConfig(ostore.Config{
			Endpoint:  s.config.Object.Endpoint,
			AccessKey: s.config.Object.AccessKey,
			SecretKey: s.config.Object.SecretKey,
			Secure:    s.config.Object.Secure,
			Bucket:    s.config.Object.Bucket,
			Prefix:    s.config.Object.Prefix,
			Timeout:   timeout,
		})

	default:
		return nil, fmt.Errorf("invalid shard type: %s", shardConfig.Type)
	}
}

func (s *RPCServer) init() error {
	common.InitLoggers(s.config.LogLevel)

	Logger.Infof("Created RPC Server")
	Logger.Infof("%s", s.config.String())

	dbFactory, err := DBFactory(s.config.Engine)
	if err != nil {
		return err
	}

	// Only create the NodeHost if we have remote shards
	if s.config.HasRemoteShard() {
		s.nodeHost, err = dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
	}

	// A single RPC Server can serve any number of shards of any type
	for _, shardConfig := range s.config.Shards {
		st, err := s.newShardStore(shardConfig, dbFactory)
		if err != nil {
			return err
		}
		s.shards.Store(shardConfig.ShardID, serverShard{
			Type:    shardConfig.Type,
			Store:   st,
			Adapter: NewIStoreServerAdapter(),
		})
		Logger.Infof("created %s for shard %d", shardConfig.Type, shardConfig.ShardID)
	}

	s.transport.RegisterHandler(s.handle)

	Logger.Infof("xkv setup completed successfully")
	return nil
}

// Serve starts the RPC server
// This function will also initialize the server plus the shards, start the admin endpoint
// and run the transport layer until Close is called
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}

	if s.config.AdminEndpoint != "" {
		s.admin = &http.Server{
			Addr:              s.config.AdminEndpoint,
			Handler:           s.adminRouter(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			Logger.Infof("Starting admin endpoint on %s", s.config.AdminEndpoint)
			if err := s.admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				Logger.Errorf("admin endpoint failed: %v", err)
			}
		}()
	}

	return s.transport.Listen(s.config)
}

// Close stops the transport, the admin endpoint and the raft node host
func (s *RPCServer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.transport.Close()
		if s.admin != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = errors.Join(err, s.admin.Shutdown(ctx))
		}
		if s.nodeHost != nil {
			s.nodeHost.Close()
		}
	})
	return err
}
