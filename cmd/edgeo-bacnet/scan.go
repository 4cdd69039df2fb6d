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
	"net/netip"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo-scada/bacnet/bacnet"
	"github.com/edgeo-scada/bacnet/client"
)

var (
	scanTimeout   time.Duration
	scanLowLimit  uint32
	scanHighLimit uint32
	scanNetwork   uint16
	scanTarget    string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BACnet devices on the network",
	Long: `Scan discovers BACnet devices by sending Who-Is requests and collecting
the I-Am answers.

Examples:
  # Discover all devices
  edgeo-bacnet scan

  # Discover devices with instance IDs 1-100
  edgeo-bacnet scan --low 1 --high 100

  # Ask a single host instead of broadcasting
  edgeo-bacnet scan --target 192.168.1.20:47808

  # Discover with extended timeout
  edgeo-bacnet scan --scan-timeout 10s`,

	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "scan-timeout", 5*time.Second, "Discovery timeout")
	scanCmd.Flags().Uint32Var(&scanLowLimit, "low", 0, "Low limit for device instance range")
	scanCmd.Flags().Uint32Var(&scanHighLimit, "high", bacnet.MaxInstance, "High limit for device instance range")
	scanCmd.Flags().Uint16Var(&scanNetwork, "network", 0, "Target network number (0 = local)")
	scanCmd.Flags().StringVar(&scanTarget, "target", "", "Send Who-Is to this address instead of broadcasting")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanLowLimit > scanHighLimit {
		return fmt.Errorf("low limit %d above high limit %d", scanLowLimit, scanHighLimit)
	}

	discoverOpts := []client.DiscoverOption{
		client.WithDiscoveryTimeout(scanTimeout),
		client.WithDeviceRange(scanLowLimit, scanHighLimit),
	}

	if scanNetwork > 0 {
		discoverOpts = append(discoverOpts, client.WithTargetNetwork(scanNetwork))
	}

	if scanTarget != "" {
		addr, err := netip.ParseAddrPort(scanTarget)
		if err != nil {
			return fmt.Errorf("invalid target: %w", err)
		}
		discoverOpts = append(discoverOpts, client.WithDiscoveryTarget(addr))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout+scanTimeout)
	defer cancel()

	c, err := connectClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Fprintln(os.Stderr, "Scanning for BACnet devices...")

	devices, err := c.WhoIs(ctx, discoverOpts...)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}

	if len(devices) == 0 {
		fmt.Fprintln(os.Stderr, "No devices found")
		return nil
	}

	return outputDevices(NewFormatter(outputFmt), devices)
}

type deviceRow struct {
	DeviceID     uint32 `json:"device_id"`
	Address      string `json:"address"`
	Network      uint16 `json:"network,omitempty"`
	VendorID     uint16 `json:"vendor_id"`
	Segmentation string `json:"segmentation"`
	MaxAPDU      uint32 `json:"max_apdu"`
}

func outputDevices(f *Formatter, devices []*client.DeviceInfo) error {
	rows := make([]deviceRow, 0, len(devices))
	for _, dev := range devices {
		row := deviceRow{
			DeviceID:     dev.ObjectID.Instance,
			Address:      dev.Address.String(),
			VendorID:     dev.VendorID,
			Segmentation: dev.Segmentation.String(),
			MaxAPDU:      dev.MaxAPDULength,
		}
		if dev.Network != nil {
			row.Network = dev.Network.Net
		}
		rows = append(rows, row)
	}

	if f.Format() == FormatJSON {
		return f.PrintJSON(rows)
	}

	headers := []string{"DEVICE ID", "ADDRESS", "NETWORK", "VENDOR", "SEGMENTATION", "MAX APDU"}
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, []string{
			strconv.FormatUint(uint64(r.DeviceID), 10),
			r.Address,
			strconv.FormatUint(uint64(r.Network), 10),
			strconv.FormatUint(uint64(r.VendorID), 10),
			r.Segmentation,
			strconv.FormatUint(uint64(r.MaxAPDU), 10),
		})
	}
	f.PrintRows(headers, cells)

	if f.Format() == FormatTable {
		f.Printf("\nFound %d device(s)\n", len(rows))
	}
	return nil
}
