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
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edgeo-scada/bacnet/bacnet"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [hex]",
	Short: "Decode a BACnet/IP frame layer by layer",
	Long: `Decode parses a hex encoded BACnet/IP frame and prints the virtual-link,
network and application layers. Whitespace and colons between octets are
ignored. Without an argument one frame per line is read from stdin.

Examples:
  edgeo-bacnet decode 810b000d0100100809001a03e7
  edgeo-bacnet decode "81 0a 00 0d 01 00 10 08 09 01 1a c3 50" -o json`,

	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func runDecode(cmd *cobra.Command, args []string) error {
	f := NewFormatter(outputFmt)

	if len(args) == 1 {
		return decodeAndPrint(f, args[0])
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := decodeAndPrint(f, line); err != nil {
			logger.Error("decode failed", "input", line, "error", err)
		}
	}
	return scanner.Err()
}

func decodeAndPrint(f *Formatter, input string) error {
	data, err := parseHex(input)
	if err != nil {
		return err
	}

	fields, decodeErr := describeFrame(data)

	if f.Format() == FormatJSON {
		out := make(map[string]string, len(fields)+1)
		for _, fl := range fields {
			out[fl.Layer+"."+fl.Name] = fl.Value
		}
		if decodeErr != nil {
			out["error"] = decodeErr.Error()
		}
		if err := f.PrintJSON(out); err != nil {
			return err
		}
		return decodeErr
	}

	rows := make([][]string, 0, len(fields))
	for _, fl := range fields {
		rows = append(rows, []string{fl.Layer, fl.Name, fl.Value})
	}
	f.PrintRows([]string{"LAYER", "FIELD", "VALUE"}, rows)
	return decodeErr
}

func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "\t", "", "0x", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return data, nil
}

type frameField struct {
	Layer string
	Name  string
	Value string
}

// describeFrame decodes every layer of a frame it can. On error the fields
// decoded so far are returned together with the error.
func describeFrame(data []byte) ([]frameField, error) {
	var fields []frameField
	add := func(layer, name string, value any) {
		fields = append(fields, frameField{Layer: layer, Name: name, Value: fmt.Sprint(value)})
	}

	frame, err := bacnet.DecodeFrame(data)
	if err != nil {
		return fields, fmt.Errorf("bvlc: %w", err)
	}
	add("bvlc", "function", frame.Function())
	add("bvlc", "length", len(data))

	switch t := frame.(type) {
	case bacnet.Forwarded:
		add("bvlc", "origin", t.Origin)
	case bacnet.RegisterForeignDevice:
		add("bvlc", "ttl", t.TTL)
	case bacnet.Result:
		add("bvlc", "result", t.Code)
	}

	payload, ok := bacnet.FrameNPDU(frame)
	if !ok {
		return fields, nil
	}

	npdu, err := bacnet.DecodeNPDU(payload)
	if err != nil {
		return fields, fmt.Errorf("npdu: %w", err)
	}
	add("npdu", "control", fmt.Sprintf("0x%02x", uint8(npdu.Control())))
	add("npdu", "expecting_reply", npdu.ExpectingReply)
	add("npdu", "priority", npdu.Priority)
	if npdu.Destination != nil {
		add("npdu", "destination", formatNetworkAddress(npdu.Destination))
		add("npdu", "hop_count", npdu.HopCount)
	}
	if npdu.Source != nil {
		add("npdu", "source", formatNetworkAddress(npdu.Source))
	}
	if npdu.NetworkMessage {
		add("npdu", "message_type", fmt.Sprintf("0x%02x", uint8(npdu.MessageType)))
		if npdu.MessageType >= bacnet.NetworkMessageVendorProprietary {
			add("npdu", "vendor_id", npdu.VendorID)
		}
		add("npdu", "data", hex.EncodeToString(npdu.Data))
		return fields, nil
	}

	apdu, err := bacnet.DecodeAPDU(npdu.Data)
	if err != nil {
		return fields, fmt.Errorf("apdu: %w", err)
	}
	add("apdu", "type", apdu.Header.PDUType())
	describeHeader(apdu.Header, add)

	if len(apdu.Data) == 0 {
		if h, ok := apdu.Header.(bacnet.UnconfirmedRequest); ok && bacnet.UnconfirmedServiceChoice(h.Service) == bacnet.ServiceWhoIs {
			all := bacnet.WhoIsAll()
			add("service", "limits", "none")
			describeService(&all, add)
		}
		return fields, nil
	}
	add("apdu", "data", hex.EncodeToString(apdu.Data))

	if _, ok := apdu.Header.(bacnet.ErrorPDU); ok {
		var se bacnet.ServiceError
		if err := bacnet.DecodeServiceData(apdu.Data, &se); err != nil {
			return fields, fmt.Errorf("error: %w", err)
		}
		add("service", "error_class", se.Class)
		add("service", "error_code", se.Code)
		return fields, nil
	}

	msg, err := bacnet.DecodeService(apdu)
	if errors.Is(err, bacnet.ErrUnknownService) {
		return fields, nil
	}
	if err != nil {
		return fields, fmt.Errorf("service: %w", err)
	}
	describeService(msg, add)
	return fields, nil
}

func describeHeader(h bacnet.ApduHeader, add func(layer, name string, value any)) {
	switch t := h.(type) {
	case bacnet.ConfirmedRequest:
		add("apdu", "service", bacnet.ConfirmedServiceChoice(t.Service))
		add("apdu", "invoke_id", t.InvokeID)
		add("apdu", "max_apdu", bacnet.MaxAPDULengthOf(t.MaxAPDU))
		add("apdu", "segmented", t.Segmented())
		if t.Segmented() {
			add("apdu", "sequence_number", t.SequenceNumber)
			add("apdu", "window_size", t.ProposedWindowSize)
		}
	case bacnet.UnconfirmedRequest:
		add("apdu", "service", bacnet.UnconfirmedServiceChoice(t.Service))
	case bacnet.SimpleAck:
		add("apdu", "service", bacnet.ConfirmedServiceChoice(t.Service))
		add("apdu", "invoke_id", t.InvokeID)
	case bacnet.ComplexAck:
		add("apdu", "service", bacnet.ConfirmedServiceChoice(t.Service))
		add("apdu", "invoke_id", t.InvokeID)
		add("apdu", "segmented", t.Segmented())
		if t.Segmented() {
			add("apdu", "sequence_number", t.SequenceNumber)
			add("apdu", "window_size", t.ProposedWindowSize)
		}
	case bacnet.SegmentAck:
		add("apdu", "invoke_id", t.InvokeID)
		add("apdu", "negative", t.NegativeAck)
		add("apdu", "server", t.Server)
		add("apdu", "sequence_number", t.SequenceNumber)
		add("apdu", "window_size", t.ActualWindowSize)
	case bacnet.ErrorPDU:
		add("apdu", "service", bacnet.ConfirmedServiceChoice(t.Service))
		add("apdu", "invoke_id", t.InvokeID)
	case bacnet.RejectPDU:
		add("apdu", "invoke_id", t.InvokeID)
		add("apdu", "reason", t.Reason)
	case bacnet.AbortPDU:
		add("apdu", "invoke_id", t.InvokeID)
		add("apdu", "server", t.Server)
		add("apdu", "reason", t.Reason)
	}
}

func describeService(msg bacnet.ServiceMessage, add func(layer, name string, value any)) {
	switch m := msg.(type) {
	case *bacnet.WhoIs:
		add("service", "low_limit", m.DeviceInstanceLow)
		add("service", "high_limit", m.DeviceInstanceHigh)
	case *bacnet.IAm:
		add("service", "device", m.Device)
		add("service", "max_apdu", m.MaxAPDULength)
		add("service", "segmentation", m.Segmentation)
		add("service", "vendor_id", m.VendorID)
	case *bacnet.WhoHas:
		if m.HasLimits {
			add("service", "low_limit", m.DeviceInstanceLow)
			add("service", "high_limit", m.DeviceInstanceHigh)
		}
		if m.Object != nil {
			add("service", "object", *m.Object)
		} else {
			add("service", "object_name", m.ObjectName)
		}
	case *bacnet.ReadProperty:
		add("service", "object", m.Object)
		add("service", "property", m.Property)
		if m.ArrayIndex != nil {
			add("service", "array_index", *m.ArrayIndex)
		}
	case *bacnet.ReadPropertyAck:
		add("service", "object", m.Object)
		add("service", "property", m.Property)
		if m.ArrayIndex != nil {
			add("service", "array_index", *m.ArrayIndex)
		}
		add("service", "value", formatSequence(m.Value))
	case *bacnet.WriteProperty:
		add("service", "object", m.Object)
		add("service", "property", m.Property)
		if m.ArrayIndex != nil {
			add("service", "array_index", *m.ArrayIndex)
		}
		add("service", "value", formatSequence(m.Value))
		if m.Priority != nil {
			add("service", "priority", *m.Priority)
		}
	case *bacnet.ReadPropertyMultiple:
		for _, access := range m.Specs {
			props := make([]string, len(access.Properties))
			for i, ref := range access.Properties {
				props[i] = ref.Property.String()
				if ref.ArrayIndex != nil {
					props[i] += fmt.Sprintf("[%d]", *ref.ArrayIndex)
				}
			}
			add("service", access.Object.String(), strings.Join(props, ", "))
		}
	case *bacnet.ReadPropertyMultipleAck:
		for _, r := range m.Results {
			for _, pr := range r.Results {
				name := r.Object.String() + "." + pr.Property.String()
				if pr.ArrayIndex != nil {
					name += fmt.Sprintf("[%d]", *pr.ArrayIndex)
				}
				if pr.Error != nil {
					add("service", name, pr.Error.Err())
				} else {
					add("service", name, formatSequence(pr.Value))
				}
			}
		}
	case *bacnet.SubscribeCOV:
		add("service", "process_id", m.SubscriberProcessID)
		add("service", "object", m.Object)
		switch {
		case m.Cancel:
			add("service", "cancel", true)
		case m.Lifetime != nil:
			add("service", "confirmed", m.IssueConfirmed)
			add("service", "lifetime", *m.Lifetime)
		default:
			add("service", "confirmed", m.IssueConfirmed)
		}
	case *bacnet.COVNotification:
		add("service", "process_id", m.SubscriberProcessID)
		add("service", "device", m.InitiatingDevice)
		add("service", "object", m.Object)
		add("service", "time_remaining", m.TimeRemaining)
		for _, pv := range m.Values {
			add("service", pv.Property.String(), formatSequence(pv.Value))
		}
	default:
		add("service", "message", fmt.Sprintf("%+v", m))
	}
}

func formatNetworkAddress(a *bacnet.NetworkAddress) string {
	if len(a.MAC) == 0 {
		return fmt.Sprintf("%d:broadcast", a.Net)
	}
	return fmt.Sprintf("%d:%x", a.Net, a.MAC)
}
