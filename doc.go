// Package robotrpc is a client SDK for robots that expose their services over
// gRPC and guard every mutating call with leases.
//
// Each call carries the leases it acts under. The robot answers with one
// lease use result per lease, and the SDK folds those results back into a
// shared wallet so the next call presents the newest lease. Large messages
// travel as ordered chunks and are reassembled before they reach the caller.
//
// # Connecting
//
//	cfg := robotrpc.Config{
//	    Endpoint:   "robot.local:50051",
//	    BundlePath: "/etc/robotrpc/client.pem",
//	    LeaseFile:  "/var/lib/robotrpc/leases.yaml",
//	}
//	sess, err := robotrpc.Connect(ctx, cfg, robotrpc.WithLogger(logger))
//	if err != nil { return err }
//	defer sess.Close()
//
//	resp, err := sess.Mission.PlayMission(ctx, &mission.PlayMissionRequest{})
//	switch {
//	case errors.Is(err, status.LeaseStale):
//	    // another client holds a newer lease
//	case errors.Is(err, status.DomainStatusFailure):
//	    // resp is set and carries the robot's own status
//	}
//
// Mutual TLS is the default; the client bundle is a PEM file holding the CA
// certificate, the client certificate and its key (see package tlsutil).
// Setting Config.Username adds basic credentials to every call.
//
// # Packages
//
//   - client: the call dispatcher (unary, request stream, response stream
//     and bidirectional stream calls returning futures).
//   - lease: the wallet plus the injector and reconciler around every call.
//   - chunk: encoding of messages into DataChunk sequences and reassembly.
//   - status: the error taxonomy every call resolves to.
//   - mission: the mission service client.
//   - leasefile: YAML import and export of wallet contents.
//
// # Telemetry
//
// SetupTelemetry installs OTLP trace export and a Prometheus /metrics
// endpoint. The client and wallet record spans and metrics against the
// global providers unless given their own.
package robotrpc
