/*
Package rpc implements the Authority RPC surface: the eight endpoints a
replica calls on the remote authority (protocol, stream, replicate,
recovery, mark, compact, presence, session), expressed as a plain Go
interface over a real grpc.ClientConn.

There is no generated protobuf package behind this — Authority's wire
requests and responses are ordinary Go structs marshaled with the JSON
codec registered in codec.go, dispatched through cc.Invoke/cc.NewStream
by method name alone. Callers that need mTLS or any other transport
security build their own credentials.TransportCredentials (for example
from a *tls.Config) and pass it to Dial; this package never mints
certificates.

	┌────────────── Authority ──────────────┐
	│ Protocol()            unary             │
	│ Stream(cursor, limit) unary (polled)    │
	│ Replicate(req)        unary             │
	│ Recovery(vector)      unary             │
	│ Mark(req)             unary             │
	│ Compact(collection)   unary             │
	│ Presence(req)         unary             │
	│ Session()             server stream     │
	└──────────────────────────────────────┘
*/
package rpc
