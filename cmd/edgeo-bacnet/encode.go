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
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edgeo-scada/bacnet/bacnet"
)

var (
	encFrame    string
	encNetwork  uint16
	encSpaced   bool
	encLow      uint32
	encHigh     uint32
	encInstance uint32
	encVendor   uint16
	encMaxAPDU  uint32
	encObject   string
	encName     string
	encProperty string
	encInvokeID uint8
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode a BACnet/IP frame and print it as hex",
	Long: `Encode builds a complete BACnet/IP frame for a service request and prints
its octets as hex. The output can be fed back to decode or sent with any UDP tool.

Examples:
  # Who-Is for devices 0-999 as a local broadcast
  edgeo-bacnet encode whois --low 0 --high 999 --frame broadcast

  # I-Am for device 1234
  edgeo-bacnet encode iam --instance 1234 --vendor 260

  # ReadProperty of analog-input 1 present-value
  edgeo-bacnet encode read -O ai:1 -P pv --invoke-id 7`,
}

var encodeWhoIsCmd = &cobra.Command{
	Use:   "whois",
	Short: "Encode a Who-Is request",
	RunE: func(cmd *cobra.Command, args []string) error {
		if encLow > encHigh || encHigh > bacnet.MaxInstance {
			return fmt.Errorf("invalid device range %d-%d", encLow, encHigh)
		}
		msg := bacnet.WhoIs{DeviceInstanceLow: encLow, DeviceInstanceHigh: encHigh}
		return printUnconfirmed(bacnet.ServiceWhoIs, &msg)
	},
}

var encodeIAmCmd = &cobra.Command{
	Use:   "iam",
	Short: "Encode an I-Am announcement",
	RunE: func(cmd *cobra.Command, args []string) error {
		if encInstance > bacnet.MaxInstance {
			return fmt.Errorf("device instance %d out of range", encInstance)
		}
		msg := bacnet.IAm{
			Device:        bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, encInstance),
			MaxAPDULength: encMaxAPDU,
			Segmentation:  bacnet.SegmentationNone,
			VendorID:      encVendor,
		}
		return printUnconfirmed(bacnet.ServiceIAm, &msg)
	},
}

var encodeWhoHasCmd = &cobra.Command{
	Use:   "whohas",
	Short: "Encode a Who-Has request",
	RunE: func(cmd *cobra.Command, args []string) error {
		msg := bacnet.WhoHas{ObjectName: encName}
		if cmd.Flags().Changed("low") || cmd.Flags().Changed("high") {
			if encLow > encHigh {
				return fmt.Errorf("invalid device range %d-%d", encLow, encHigh)
			}
			msg.HasLimits = true
			msg.DeviceInstanceLow = encLow
			msg.DeviceInstanceHigh = encHigh
		}
		if encObject != "" {
			oid, err := parseObjectIdentifier(encObject)
			if err != nil {
				return fmt.Errorf("invalid object: %w", err)
			}
			msg.Object = &oid
		}
		if msg.Object == nil && msg.ObjectName == "" {
			return fmt.Errorf("one of --object or --name is required")
		}
		return printUnconfirmed(bacnet.ServiceWhoHas, &msg)
	},
}

var encodeReadCmd = &cobra.Command{
	Use:   "read",
	Short: "Encode a ReadProperty request",
	RunE: func(cmd *cobra.Command, args []string) error {
		oid, err := parseObjectIdentifier(encObject)
		if err != nil {
			return fmt.Errorf("invalid object: %w", err)
		}
		prop, err := parsePropertyIdentifier(encProperty)
		if err != nil {
			return fmt.Errorf("invalid property: %w", err)
		}
		h := bacnet.ConfirmedRequest{
			MaxAPDU:  bacnet.MaxAPDUCode(bacnet.MaxAPDULength),
			InvokeID: encInvokeID,
			Service:  uint8(bacnet.ServiceReadProperty),
		}
		msg := bacnet.ReadProperty{Object: oid, Property: prop}
		return printFrame(bacnet.EncodeAPDU(h, bacnet.EncodeServiceData(&msg)))
	},
}

func init() {
	encodeCmd.PersistentFlags().StringVar(&encFrame, "frame", "unicast", "BVLC function (unicast, broadcast, distribute)")
	encodeCmd.PersistentFlags().Uint16Var(&encNetwork, "network", 0, "Destination network number (0 = local)")
	encodeCmd.PersistentFlags().BoolVar(&encSpaced, "spaced", false, "Separate octets with spaces")

	for _, c := range []*cobra.Command{encodeWhoIsCmd, encodeWhoHasCmd} {
		c.Flags().Uint32Var(&encLow, "low", 0, "Low limit for device instance range")
		c.Flags().Uint32Var(&encHigh, "high", bacnet.MaxInstance, "High limit for device instance range")
	}

	encodeIAmCmd.Flags().Uint32Var(&encInstance, "instance", 0, "Device instance")
	encodeIAmCmd.Flags().Uint16Var(&encVendor, "vendor", 0, "Vendor identifier")
	encodeIAmCmd.Flags().Uint32Var(&encMaxAPDU, "max-apdu", bacnet.MaxAPDULength, "Maximum APDU length accepted")
	encodeIAmCmd.MarkFlagRequired("instance")

	encodeWhoHasCmd.Flags().StringVarP(&encObject, "object", "O", "", "Object type and instance")
	encodeWhoHasCmd.Flags().StringVar(&encName, "name", "", "Object name")

	encodeReadCmd.Flags().StringVarP(&encObject, "object", "O", "", "Object type and instance")
	encodeReadCmd.Flags().StringVarP(&encProperty, "property", "P", "present-value", "Property identifier")
	encodeReadCmd.Flags().Uint8Var(&encInvokeID, "invoke-id", 0, "Invoke ID")
	encodeReadCmd.MarkFlagRequired("object")

	encodeCmd.AddCommand(encodeWhoIsCmd, encodeIAmCmd, encodeWhoHasCmd, encodeReadCmd)
}

func printUnconfirmed(choice bacnet.UnconfirmedServiceChoice, msg bacnet.ServiceMessage) error {
	h := bacnet.UnconfirmedRequest{Service: uint8(choice)}
	return printFrame(bacnet.EncodeAPDU(h, bacnet.EncodeServiceData(msg)))
}

func printFrame(apdu []byte) error {
	frame, err := buildFrame(encFrame, encNetwork, apdu)
	if err != nil {
		return err
	}
	fmt.Println(formatHex(frame, encSpaced))
	return nil
}

// buildFrame wraps an APDU in an NPDU and the named BVLC function. A non-zero
// network routes the NPDU to a broadcast on that network.
func buildFrame(kind string, network uint16, apdu []byte) ([]byte, error) {
	npdu := bacnet.NewRequest(apdu)
	if network != 0 {
		npdu.Destination = &bacnet.NetworkAddress{Net: network}
		npdu.HopCount = bacnet.DefaultHopCount
	}
	payload, err := npdu.Encode()
	if err != nil {
		return nil, err
	}

	var frame bacnet.Frame
	switch strings.ToLower(kind) {
	case "unicast":
		frame = bacnet.OriginalUnicast{NPDU: payload}
	case "broadcast":
		frame = bacnet.OriginalBroadcast{NPDU: payload}
	case "distribute":
		frame = bacnet.DistributeBroadcast{NPDU: payload}
	default:
		return nil, fmt.Errorf("unknown frame type %q", kind)
	}
	return bacnet.EncodeFrame(frame)
}

func formatHex(data []byte, spaced bool) string {
	if !spaced {
		return hex.EncodeToString(data)
	}
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, " ")
}
