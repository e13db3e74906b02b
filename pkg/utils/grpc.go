package utils

import (
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/coreruntime/coreworker/pkg/log"
)

// GRPCOptions carries the keepalive tuning shared by every gRPC client and
// server this process creates. Nil fields keep the gRPC defaults.
type GRPCOptions struct {
	// Interval between PING frames.
	KeepAliveTime *time.Duration `mapstructure:"keep_alive_time"`
	// Timeout for a PING frame to be acknowledged.
	KeepAliveTimeout *time.Duration `mapstructure:"keep_alive_timeout"`
	// Send keepalive pings even with no active streams (client side).
	KeepAliveWithoutCalls *bool `mapstructure:"keep_alive_without_calls"`
	// Allow clients to ping without active streams (server side).
	PermitKeepAliveWithoutCalls *bool `mapstructure:"permit_keep_alive_without_calls"`
	// Minimum time between successive client pings the server tolerates.
	PermitKeepAliveTime *time.Duration `mapstructure:"permit_keep_alive_time"`
}

func (o *GRPCOptions) ToServerOptions() []grpc.ServerOption {
	var opts []grpc.ServerOption

	if o.KeepAliveTime != nil || o.KeepAliveTimeout != nil {
		params := keepalive.ServerParameters{}
		if o.KeepAliveTime != nil {
			params.Time = *o.KeepAliveTime
		}
		if o.KeepAliveTimeout != nil {
			params.Timeout = *o.KeepAliveTimeout
		}
		opts = append(opts, grpc.KeepaliveParams(params))
	}

	if o.PermitKeepAliveWithoutCalls != nil || o.PermitKeepAliveTime != nil {
		policy := keepalive.EnforcementPolicy{}
		if o.PermitKeepAliveWithoutCalls != nil {
			policy.PermitWithoutStream = *o.PermitKeepAliveWithoutCalls
		}
		if o.PermitKeepAliveTime != nil {
			policy.MinTime = *o.PermitKeepAliveTime
		}
		opts = append(opts, grpc.KeepaliveEnforcementPolicy(policy))
	}

	return opts
}

func (o *GRPCOptions) ToDialOptions() []grpc.DialOption {
	if o.KeepAliveTime == nil && o.KeepAliveTimeout == nil && o.KeepAliveWithoutCalls == nil {
		return nil
	}

	params := keepalive.ClientParameters{}
	if o.KeepAliveTime != nil {
		params.Time = *o.KeepAliveTime
	}
	if o.KeepAliveTimeout != nil {
		params.Timeout = *o.KeepAliveTimeout
	}
	if o.KeepAliveWithoutCalls != nil {
		params.PermitWithoutStream = *o.KeepAliveWithoutCalls
	}

	return []grpc.DialOption{grpc.WithKeepaliveParams(params)}
}

func (o *GRPCOptions) Log() {
	set := map[string]interface{}{}
	if o.KeepAliveTime != nil {
		set["keep_alive_time"] = *o.KeepAliveTime
	}
	if o.KeepAliveTimeout != nil {
		set["keep_alive_timeout"] = *o.KeepAliveTimeout
	}
	if o.KeepAliveWithoutCalls != nil {
		set["keep_alive_without_calls"] = *o.KeepAliveWithoutCalls
	}
	if o.PermitKeepAliveWithoutCalls != nil {
		set["permit_keep_alive_without_calls"] = *o.PermitKeepAliveWithoutCalls
	}
	if o.PermitKeepAliveTime != nil {
		set["permit_keep_alive_time"] = *o.PermitKeepAliveTime
	}

	if len(set) == 0 {
		return
	}
	log.Info("  gRPC options:")
	for name, value := range set {
		log.Infof("    %s = %v", name, value)
	}
}
