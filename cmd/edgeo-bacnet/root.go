// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edgeo-scada/bacnet/bacnet"
	"github.com/edgeo-scada/bacnet/client"
)

var version = "1.0.0"

var (
	cfgFile      string
	host         string
	port         int
	deviceID     uint32
	timeout      time.Duration
	outputFmt    string
	verbose      bool
	localAddress string
	broadcast    string
	bbmdAddress  string
	bbmdPort     int
	bbmdTTL      time.Duration

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "edgeo-bacnet",
	Short: "A BACnet/IP client and codec CLI",
	Long: `edgeo-bacnet is a command-line tool for communicating with BACnet/IP devices.

It supports device discovery, property read/write operations, object dumps,
change-of-value subscriptions, an interactive shell, listening for unconfirmed
traffic and encoding or decoding raw BACnet/IP frames.

Examples:
  # Discover devices on the network
  edgeo-bacnet scan

  # Read a property from a device
  edgeo-bacnet read -d 1234 -O analog-input:1 -P present-value

  # Write a value to a device
  edgeo-bacnet write -d 1234 -O analog-output:1 -P present-value -V 75.5

  # Dump every object of a device as JSON
  edgeo-bacnet dump -d 1234 -o json

  # Print change-of-value notifications
  edgeo-bacnet watch -d 1234 -O analog-input:1 --cov

  # Decode a captured frame
  edgeo-bacnet decode 810b000d0100100809001a03e7`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Config file and environment values override flag defaults
		timeout = viper.GetDuration("timeout")
		outputFmt = viper.GetString("output")
		verbose = viper.GetBool("verbose")

		logLevel := slog.LevelInfo
		if verbose {
			logLevel = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))

		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.edgeo-bacnet.yaml)")
	rootCmd.PersistentFlags().StringVarP(&host, "host", "H", "", "Target device IP address (skips discovery)")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", bacnet.DefaultPort, "BACnet/IP port")
	rootCmd.PersistentFlags().Uint32VarP(&deviceID, "device", "d", 0, "Target device instance ID")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 3*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format (table, json, csv, raw)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&localAddress, "local", "", "Local address to bind to (e.g., 0.0.0.0:47808)")
	rootCmd.PersistentFlags().StringVar(&broadcast, "broadcast", "", "Broadcast address (default 255.255.255.255:47808)")
	rootCmd.PersistentFlags().StringVar(&bbmdAddress, "bbmd", "", "BBMD address for foreign device registration")
	rootCmd.PersistentFlags().IntVar(&bbmdPort, "bbmd-port", bacnet.DefaultPort, "BBMD port")
	rootCmd.PersistentFlags().DurationVar(&bbmdTTL, "bbmd-ttl", 60*time.Second, "BBMD registration TTL")

	// Bind flags to viper
	for _, name := range []string{
		"host", "port", "device", "timeout", "output", "verbose",
		"local", "broadcast", "bbmd", "bbmd-port", "bbmd-ttl",
	} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}

	// Add subcommands
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(interactiveCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".edgeo-bacnet")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BACNET")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// createClient creates a BACnet client with current configuration
func createClient(extra ...client.Option) (*client.Client, error) {
	opts := []client.Option{
		client.WithTimeout(viper.GetDuration("timeout")),
		client.WithLogger(logger),
	}

	if addr := viper.GetString("local"); addr != "" {
		opts = append(opts, client.WithLocalAddress(addr))
	}

	if addr := viper.GetString("broadcast"); addr != "" {
		ap, err := netip.ParseAddrPort(addr)
		if err != nil {
			return nil, fmt.Errorf("broadcast address: %w", err)
		}
		opts = append(opts, client.WithBroadcastAddress(ap))
	}

	if addr := viper.GetString("bbmd"); addr != "" {
		opts = append(opts, client.WithBBMD(addr, viper.GetInt("bbmd-port"), viper.GetDuration("bbmd-ttl")))
	}

	return client.NewClient(append(opts, extra...)...)
}

// connectClient creates and connects a client. When --host is set the target
// device is registered directly so requests skip discovery.
func connectClient(ctx context.Context, extra ...client.Option) (*client.Client, error) {
	c, err := createClient(extra...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if h := viper.GetString("host"); h != "" {
		addr, err := netip.ParseAddr(h)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("invalid host %q: %w", h, err)
		}
		id := viper.GetUint32("device")
		c.AddDevice(client.DeviceInfo{
			ObjectID:      bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, id),
			Address:       netip.AddrPortFrom(addr, uint16(viper.GetInt("port"))),
			MaxAPDULength: bacnet.MaxAPDULength,
			Segmentation:  bacnet.SegmentationNone,
		})
	}

	return c, nil
}

// targetDevice returns the --device flag, which must be set
func targetDevice() (uint32, error) {
	id := viper.GetUint32("device")
	if !viper.IsSet("device") {
		return 0, fmt.Errorf("device ID is required (-d or --device)")
	}
	if id > bacnet.MaxInstance {
		return 0, fmt.Errorf("device ID %d out of range", id)
	}
	return id, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("edgeo-bacnet version %s\n", version)
	},
}
