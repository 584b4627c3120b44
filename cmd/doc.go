// Package cmd implements the command-line interface of xkv. It provides a
// hierarchical command structure for running the server and working with it
// as a client.
//
// The package is organized into several subpackages:
//
//   - serve: starts and configures the xkv server
//   - kv: raw key-value operations and a store benchmark
//   - attr: attribute operations (set, get, list, rm) and the asynchronous batch writer
//   - shell: interactive attribute shell
//   - util: shared flag, configuration and store helpers (internal use)
//
// All client commands accept --local to work on an in-process store instead of a server.
// See xkv --help for a list of all commands.
package cmd
