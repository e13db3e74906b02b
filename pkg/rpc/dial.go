package rpc

import (
	"errors"
	"net/url"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/coreruntime/coreworker/pkg/utils"
)

// Dial connects to a core-worker transport peer (lease pool, worker, or
// plasma store) addressed by a tcp:// or unix:// URI, applying opts for
// keepalive tuning. Grounded on pkg/worker/grpc_client_worker.go's URL
// scheme parsing and default-port fallback.
func Dial(uri string, opts *utils.GRPCOptions) (*grpc.ClientConn, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}

	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts.ToDialOptions()...)

	switch parsed.Scheme {
	case "tcp":
		host := parsed.Host
		if parsed.Port() == "" {
			host += ":9091"
		}
		return grpc.NewClient(host, dialOpts...)
	case "unix":
		return grpc.NewClient("unix://"+parsed.Path, dialOpts...)
	default:
		return nil, errors.New("rpc: unsupported protocol: " + parsed.Scheme)
	}
}
