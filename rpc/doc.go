// Package rpc provides the remote procedure call layer of xkv. It connects
// clients to the stores served by an xkv server.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Framed stream transports (TCP, Unix sockets) that multiplex
//     blocking and callback based requests over shared connections.
//
//   - serializer: Message serialization (Binary, JSON) for converting between
//     Message objects and byte arrays.
//
//   - client: store.IStore and store.IAsyncStore implementations forwarding to a
//     remote shard.
//
//   - server: The server routing requests to the stores of its shards, plus the
//     http admin endpoint.
package rpc
