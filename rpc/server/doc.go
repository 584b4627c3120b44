// Package server implements the xkv RPC server.
// It routes the requests of a transport to the stores of its shards and serves
// an optional admin http endpoint next to it.
//
// Key Components:
//
//   - IRPCServerAdapter: contract of the request handlers, with the Handle method
//     that answers a request against a store.IStore.
//
//   - NewIStoreServerAdapter: translates set, delete, get, has, scan and info requests
//     to store.IStore calls.
//
//   - NewRPCServer: creates a server with the given transport and serializer.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 100, Type: common.ShardTypeLocalIStore},
//	    {ShardID: 200, Type: common.ShardTypeRemoteIStore},
//	  },
//	  Engine:        "spruce",
//	  TimeoutSecond: 5,
//	  Transport:     common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	  AdminEndpoint: "127.0.0.1:9090",
//	  LogLevel:      "info",
//	}
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Shard types, which can be mixed within a single server:
//
//   - ShardTypeLocalIStore: in-memory store of this process.
//
//   - ShardTypeRemoteIStore: store replicated with Raft. The raft settings (RTTMillisecond,
//     SnapshotEntries, CompactionOverhead, DataDir, ReplicaID and ClusterMembers) must be set.
//
//   - ShardTypeDynamoIStore: items of a DynamoDB table, credentials come from the AWS environment.
//
//   - ShardTypeObjectIStore: objects in an S3 compatible bucket.
//
// Admin endpoint:
//
//	GET /health   liveness probe
//	GET /metrics  request counters and latencies in prometheus text format
//	GET /shards   configured shards with their db info
package server
