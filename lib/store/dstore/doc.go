// Package dstore implements a distributed, fault-tolerant key-value store using
// the Dragonboat RAFT consensus library. It provides strongly consistent implementations
// of the store.IStore and store.IAsyncStore interfaces that operate across multiple nodes.
//
// Architecture:
//
// The dstore implementation consists of four components:
//
//   - Synchronous Store: Implements store.IStore. Writes are serialized into commands and
//     proposed with SyncPropose, reads are sent with SyncRead (or StaleRead).
//
//   - Asynchronous Store: Implements store.IAsyncStore. Submit proposes the command with
//     Propose and returns a handle right away. A goroutine waits on the dragonboat
//     RequestState and fires the completion once the command was applied (or timed out,
//     was rejected or dropped). Finalize releases the RequestState.
//
//   - State Machine: A Dragonboat IConcurrentStateMachine that applies commands and
//     answers queries on each node. It owns the actual db.KVDB instance.
//
//   - Communication Protocol: Defined in the internal package (Command and Query).
//
// Write Operations:
//
//	All write operations (Set, Delete) follow this flow:
//
//	1. The operation is serialized into a Command
//	2. The Command is proposed to the RAFT cluster
//	3. The leader replicates the command to a majority of followers
//	4. Once committed, the command is applied by the state machine on each node
//	5. The result code is returned to the proposer
//
//	The write index of every operation is the RAFT log index, which gives a globally
//	consistent ordering of operations across the cluster.
//
// Read Operations:
//
//	Get, Has and Scan use SyncRead, which guarantees the read sees every committed write.
//	GetDBInfo uses StaleRead. Scan returns the pairs sorted by key, with ordered engines
//	(spruce) this needs no extra sort.
//
// Error Handling and Retries:
//
//	The synchronous store retries ErrSystemBusy up to 5 times. Node host errors are mapped
//	to store error codes (RetCTimeout, RetCUnavailable, RetCInternalError), errors of the
//	state machine are passed through. The asynchronous store does not retry: a busy system
//	is a failed submission and the caller decides.
//
// Snapshotting and Recovery:
//
//	Snapshots are fuzzy and use the db.KVDB's Save and Load methods.
//
// Usage:
//
//	  nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	  if err != nil { ... }
//
//	  dbFactory := func() db.KVDB { return spruce.NewSpruceDB() }
//
//	  err = nh.StartConcurrentReplica(
//	      clusterMembers,
//	      false,
//	      dstore.CreateStateMachineFactory(dbFactory),
//	      shardConfig)
//	  if err != nil { ... }
//
//	  kv := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
//	  async := dstore.NewAsyncDistributedStore(nh, shardID, 5*time.Second)
//	  defer async.Close()
//
// For scenarios where distributed consensus is not required, consider the lstore package
// (single node, in memory) together with astore for the asynchronous interface.
package dstore
