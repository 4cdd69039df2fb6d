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
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo-scada/bacnet/bacnet"
	"github.com/edgeo-scada/bacnet/client"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Display device information",
	Long: `Info reads the descriptive properties of a device object and displays them.
Properties the device does not support are skipped.

Examples:
  # Get device info
  edgeo-bacnet info -d 1234

  # Get info in JSON format
  edgeo-bacnet info -d 1234 -o json`,

	RunE: runInfo,
}

// deviceProperties are read by info, in display order
var deviceProperties = []struct {
	name string
	prop bacnet.PropertyIdentifier
}{
	{"Object Name", bacnet.PropertyObjectName},
	{"Description", bacnet.PropertyDescription},
	{"Location", bacnet.PropertyLocation},
	{"Vendor Name", bacnet.PropertyVendorName},
	{"Vendor ID", bacnet.PropertyVendorIdentifier},
	{"Model Name", bacnet.PropertyModelName},
	{"Firmware Revision", bacnet.PropertyFirmwareRevision},
	{"Application Software", bacnet.PropertyApplicationSoftwareVersion},
	{"Protocol Version", bacnet.PropertyProtocolVersion},
	{"Protocol Revision", bacnet.PropertyProtocolRevision},
	{"System Status", bacnet.PropertySystemStatus},
	{"Max APDU Length", bacnet.PropertyMaxApduLengthAccepted},
	{"Segmentation", bacnet.PropertySegmentationSupported},
	{"Database Revision", bacnet.PropertyDatabaseRevision},
}

func runInfo(cmd *cobra.Command, args []string) error {
	id, err := targetDevice()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout*time.Duration(len(deviceProperties)+3))
	defer cancel()

	c, err := connectClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	deviceOID := bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, id)
	info := make(map[string]bacnet.ValueSequence)
	order := make([]string, 0, len(deviceProperties)+1)

	for _, p := range deviceProperties {
		if ack, err := readDeviceProperty(ctx, c, id, deviceOID, p.prop); err == nil {
			info[p.name] = ack.Value
			order = append(order, p.name)
		} else {
			logger.Debug("property unavailable", "property", p.prop.String(), "error", err)
		}
	}

	// Index 0 of the object list is its length
	if ack, err := readDeviceProperty(ctx, c, id, deviceOID, bacnet.PropertyObjectList, client.WithArrayIndex(0)); err == nil {
		info["Object Count"] = ack.Value
		order = append(order, "Object Count")
	}

	if len(order) == 0 {
		return fmt.Errorf("device %d returned no properties", id)
	}

	f := NewFormatter(outputFmt)
	if f.Format() == FormatJSON {
		out := map[string]any{
			"device_id": id,
			"timestamp": time.Now().Format(time.RFC3339),
		}
		for name, v := range info {
			out[name] = jsonSequence(v)
		}
		return f.PrintJSON(out)
	}

	pairs := make(map[string]any, len(info))
	for name, v := range info {
		pairs[name] = formatSequence(v)
	}
	f.Printf("\n=== Device %d ===\n\n", id)
	f.PrintKeyValue(pairs, order)
	f.Println()
	return nil
}

func readDeviceProperty(ctx context.Context, c *client.Client, id uint32, oid bacnet.ObjectIdentifier, prop bacnet.PropertyIdentifier, opts ...client.ReadOption) (*bacnet.ReadPropertyAck, error) {
	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.ReadProperty(readCtx, id, oid, prop, opts...)
}
