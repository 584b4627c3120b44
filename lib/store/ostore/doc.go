// Package ostore implements store.IStore on top of an S3 compatible object store (MinIO, AWS S3, ...)
// using the minio client.
//
// Each key is one object named Prefix + hex(key). The hex encoding keeps the byte order of the
// keys, so a prefix scan is a listing of Prefix + hex(prefix) and returns the pairs sorted by key.
// Every request is a round trip to the service, which makes the store a good fit for the
// asynchronous adapter (astore) and a poor fit for latency sensitive reads.
package ostore
