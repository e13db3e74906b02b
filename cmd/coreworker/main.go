package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coreruntime/coreworker/pkg/coreworker"
	"github.com/coreruntime/coreworker/pkg/log"
	"github.com/coreruntime/coreworker/pkg/resolver"
	"github.com/coreruntime/coreworker/pkg/rpc"
	"github.com/coreruntime/coreworker/pkg/store"
	"github.com/coreruntime/coreworker/pkg/submitter"
	"github.com/coreruntime/coreworker/pkg/utils"
)

var config *Config

var rootCmd = &cobra.Command{
	Use:   "coreworker",
	Short: "Core worker task dispatcher and in-memory object store",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		viper.SetEnvPrefix("coreworker")
		viper.AutomaticEnv()

		viper.SetConfigName("coreworker.yaml")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("/etc/coreworker/")
		viper.AddConfigPath("$HOME/.config/coreworker")
		viper.AddConfigPath(".")

		viper.ReadInConfig()

		if err := utils.UnmarshalConfig(*viper.GetViper(), &config); err != nil {
			log.Fatal(err)
		}
		config.Log()

		verbosity, err := cmd.Flags().GetCount("verbose")
		if err != nil {
			panic(err)
		}
		switch {
		case verbosity >= 2:
			log.SetLevel(log.TraceLevel)
		case verbosity >= 1:
			log.SetLevel(log.DebugLevel)
		}
	},
	RunE: run,
}

func init() {
	rootCmd.Flags().String("listen-worker", "tcp://:9092", "Address to listen on for incoming PushNormalTask RPCs")
	rootCmd.Flags().String("listen-http", ":8081", "Address to listen on for the /metrics HTTP endpoint")
	rootCmd.Flags().String("lease-pool", "tcp://127.0.0.1:9090", "Address of the lease service (raylet) to request workers from")
	rootCmd.Flags().String("plasma", "tcp://127.0.0.1:9091", "Address of the external large-object store")
	rootCmd.Flags().CountP("verbose", "v", "Verbosity (repeatable)")

	viper.BindPFlag("listen_worker", rootCmd.Flags().Lookup("listen-worker"))
	viper.BindPFlag("listen_http", rootCmd.Flags().Lookup("listen-http"))
	viper.BindPFlag("lease_pool_addr", rootCmd.Flags().Lookup("lease-pool"))
	viper.BindPFlag("plasma_addr", rootCmd.Flags().Lookup("plasma"))
}

// run wires the in-memory store, dependency resolver and direct task
// submitter to real gRPC-backed collaborators, then starts the worker and
// HTTP listeners.
func run(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	plasmaConn, err := rpc.Dial(config.PlasmaAddr, &config.GRPCOptions)
	if err != nil {
		return fmt.Errorf("dial plasma store: %w", err)
	}
	plasmaClient := rpc.NewPlasmaClient(plasmaConn)

	ims := store.New(plasmaClient.StoreInPlasma)
	dr := resolver.New(ims)

	leasePoolConn, err := rpc.Dial(config.LeasePoolAddr, &config.GRPCOptions)
	if err != nil {
		return fmt.Errorf("dial lease pool: %w", err)
	}

	// Grants are buffered here so the lease stream's receive loop never
	// touches the submitter directly: the drain goroutine below only starts
	// once the submitter exists.
	grants := make(chan coreworker.WorkerAddress, 16)
	leaseClient, err := rpc.NewLeaseClient(ctx, leasePoolConn, func(addr coreworker.WorkerAddress) {
		grants <- addr
	})
	if err != nil {
		return fmt.Errorf("open lease stream: %w", err)
	}

	clientFactory := func(addr coreworker.WorkerAddress) coreworker.WorkerStub {
		conn, err := rpc.Dial(fmt.Sprintf("tcp://%s:%d", addr.Host, addr.Port), &config.GRPCOptions)
		if err != nil {
			log.Error("coreworker: failed to dial leased worker", addr, ":", err)
			return nil
		}
		return rpc.NewWorkerClient(conn)
	}

	dts := submitter.New(dr, ims, leaseClient, clientFactory)
	go func() {
		for addr := range grants {
			dts.HandleWorkerLeaseGranted(ctx, addr)
		}
	}()

	go serveWorker(config.ListenWorker)
	go serveHttp(config.ListenHttp, ims, dts, dr.NumPendingResolutions)

	log.Info("Core worker ready")
	select {}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
