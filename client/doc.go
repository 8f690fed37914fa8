// Package client is the dispatch layer of the robotrpc SDK. It carries a
// request from lease injection to a resolved Future: leases from the client's
// wallet are stamped on the request, the request is sent as a single message
// or as a stream of chunks, the response (possibly reassembled from chunks)
// is reconciled against the wallet, and the outcome is folded into one
// status.Class.
//
// # Quick start
//
//	conn, err := robotrpc.Dial(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	cli := client.New(conn, client.WithLogger(logger))
//	if err := cli.Wallet().Add(acquired); err != nil {
//	    log.Fatal(err)
//	}
//
//	call := client.Call{
//	    Method:    "/robotrpc.mission.MissionService/PlayMission",
//	    Resources: []string{"body"},
//	}
//	resp, err := client.Unary(ctx, cli, call, req, codeOf).Wait(ctx)
//	switch {
//	case errors.Is(err, status.LeaseStale):
//	    // another call already advanced the lease
//	case errors.Is(err, status.DomainStatusFailure):
//	    // resp is set and carries the service's own status
//	}
//
// # Call kinds
//
// Unary sends and receives single messages. RequestStream chunks the request
// and waits for one response message. ResponseStream sends one message and
// reassembles a chunked response. BidiStream chunks the request and
// reassembles a chunked response while the request is still being sent.
//
// A call that cannot be stamped with its leases resolves immediately with a
// status.LeaseUnavailable error and never touches the network. Lease feedback
// is reconciled only for responses that arrived complete; a truncated or
// malformed chunk stream leaves the wallet untouched.
//
// # Results
//
// On success the typed response is returned with a nil error. When the
// service reports failure through its own result code the response is
// returned alongside a status.DomainStatusFailure error. Every other failure
// returns a nil response.
//
// # Observability
//
// Each call opens a client span named "robotrpc.client.<kind>" and records
// robotrpc.client.calls, robotrpc.client.call.duration,
// robotrpc.client.calls.inflight and chunk counters. The correlation ID on
// the calling context (generated when absent) travels as x-correlation-id
// metadata and tags logs with "cid".
package client
