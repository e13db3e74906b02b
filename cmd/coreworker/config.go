package main

import (
	"github.com/coreruntime/coreworker/pkg/log"
	"github.com/coreruntime/coreworker/pkg/utils"
)

// Config is the core worker process's bootstrap configuration, decoded
// from flags/env/file by utils.UnmarshalConfig.
type Config struct {
	utils.GRPCOptions `mapstructure:"grpc"`

	// Address this process listens on for incoming PushNormalTask RPCs,
	// i.e. the address it advertises to the lease service when it is
	// itself leased out as a worker.
	ListenWorker string `mapstructure:"listen_worker"`
	// Address to listen on for the /metrics HTTP endpoint.
	ListenHttp string `mapstructure:"listen_http"`
	// Lease service (raylet) address this submitter requests workers from.
	LeasePoolAddr string `mapstructure:"lease_pool_addr"`
	// External large-object store address objects are promoted to.
	PlasmaAddr string `mapstructure:"plasma_addr"`
}

func (c *Config) Log() {
	log.Info("Core worker configuration:")
	log.Infof("  listen (worker):  %s", c.ListenWorker)
	log.Infof("  listen (http):    %s", c.ListenHttp)
	log.Infof("  lease pool:       %s", c.LeasePoolAddr)
	log.Infof("  plasma store:     %s", c.PlasmaAddr)
	c.GRPCOptions.Log()
}
