package robotrpc

import (
	"context"
	"encoding/base64"

	"google.golang.org/grpc/credentials"
)

// basicCredentials attaches an HTTP basic authorization header to every call.
type basicCredentials struct {
	header     string
	requireTLS bool
}

var _ credentials.PerRPCCredentials = basicCredentials{}

func newBasicCredentials(username, password string, requireTLS bool) basicCredentials {
	token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return basicCredentials{header: "Basic " + token, requireTLS: requireTLS}
}

func (b basicCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": b.header}, nil
}

func (b basicCredentials) RequireTransportSecurity() bool {
	return b.requireTLS
}
