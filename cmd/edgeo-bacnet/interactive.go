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
	"context"
	"fmt"
	"io"
	"net/netip"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo-scada/bacnet/bacnet"
	"github.com/edgeo-scada/bacnet/client"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Start an interactive BACnet session",
	Long: `Interactive mode provides a REPL for exploring BACnet devices.

Commands:
  scan                                  - Discover devices
  use <device-id>                       - Select a device
  list                                  - List objects on current device
  read <object> [property]              - Read a property
  write <object> <property> <value>     - Write a property
  subscribe <object> [property]         - Print COV notifications
  unsubscribe <process-id>              - Cancel a COV subscription
  info                                  - Show device info
  metrics                               - Show client metrics
  help                                  - Show help
  exit                                  - Exit interactive mode

Examples:
  bacnet> scan
  bacnet> use 1234
  bacnet[1234]> list
  bacnet[1234]> read ai:1 pv
  bacnet[1234]> write ao:1 pv 75.5
  bacnet[1234]> subscribe ai:1`,

	RunE: runInteractive,
}

func runInteractive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	c, err := connectClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Println("BACnet Interactive Shell")
	fmt.Println("Type 'help' for available commands, 'exit' to quit")
	fmt.Println()

	sh := newShell(c, os.Stdout)
	if id, err := targetDevice(); err == nil {
		sh.device, sh.selected = id, true
	}
	sh.run(ctx, os.Stdin)
	return nil
}

// shell is one interactive session. Output from COV handlers is serialised
// with the prompt output through mu.
type shell struct {
	c      *client.Client
	mu     sync.Mutex
	out    io.Writer
	device uint32

	// selected is false until a device is chosen
	selected bool
}

func newShell(c *client.Client, out io.Writer) *shell {
	return &shell{c: c, out: out}
}

func (s *shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *shell) prompt() {
	if s.selected {
		s.printf("bacnet[%d]> ", s.device)
	} else {
		s.printf("bacnet> ")
	}
}

// run reads commands until exit or the end of in
func (s *shell) run(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)

	for {
		s.prompt()
		if !scanner.Scan() {
			s.printf("\n")
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !s.execute(ctx, strings.Fields(line)) {
			return
		}
	}
}

// execute runs one command and reports whether the session continues
func (s *shell) execute(ctx context.Context, parts []string) bool {
	command := strings.ToLower(parts[0])

	switch command {
	case "exit", "quit", "q":
		s.printf("Goodbye!\n")
		return false

	case "help", "?":
		s.printf("%s", interactiveHelp)

	case "scan":
		s.scan(ctx)

	case "use":
		if len(parts) < 2 {
			s.printf("Usage: use <device-id>\n")
			return true
		}
		id, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil || id > bacnet.MaxInstance {
			s.printf("Invalid device ID\n")
			return true
		}
		s.device, s.selected = uint32(id), true
		s.printf("Selected device %d\n", s.device)

	case "list", "read", "write", "info", "subscribe":
		if !s.selected {
			s.printf("No device selected. Use 'use <device-id>' first.\n")
			return true
		}
		s.deviceCommand(ctx, command, parts[1:])

	case "unsubscribe":
		if len(parts) < 2 {
			s.printf("Usage: unsubscribe <process-id>\n")
			return true
		}
		s.unsubscribe(ctx, parts[1])

	case "metrics":
		s.metrics()

	default:
		s.printf("Unknown command: %s (type 'help' for available commands)\n", command)
	}
	return true
}

func (s *shell) deviceCommand(ctx context.Context, command string, args []string) {
	switch command {
	case "list":
		s.list(ctx)

	case "read":
		if len(args) < 1 {
			s.printf("Usage: read <object> [property]\n")
			return
		}
		prop := "present-value"
		if len(args) >= 2 {
			prop = args[1]
		}
		s.read(ctx, args[0], prop)

	case "write":
		if len(args) < 3 {
			s.printf("Usage: write <object> <property> <value>\n")
			return
		}
		s.write(ctx, args[0], args[1], strings.Join(args[2:], " "))

	case "subscribe":
		if len(args) < 1 {
			s.printf("Usage: subscribe <object> [property]\n")
			return
		}
		prop := "present-value"
		if len(args) >= 2 {
			prop = args[1]
		}
		s.subscribe(ctx, args[0], prop)

	case "info":
		s.info(ctx)
	}
}

const interactiveHelp = `
Available commands:
  scan                              Discover BACnet devices on the network
  use <device-id>                   Select a device to work with
  list                              List all objects on current device
  read <object> [property]          Read a property (default: present-value)
  write <object> <property> <value> Write a property value
  subscribe <object> [property]     Print COV notifications for an object
  unsubscribe <process-id>          Cancel a COV subscription
  info                              Show current device information
  metrics                           Show client metrics
  help                              Show this help message
  exit                              Exit interactive mode

Object format: <type>:<instance>
  Examples: analog-input:1, ai:1, binary-output:5, device:1234

Property shortcuts:
  pv = present-value
  name = object-name
  desc = description
  sf = status-flags
  oos = out-of-service

`

func (s *shell) scan(ctx context.Context) {
	s.printf("Scanning for devices...\n")

	scanCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	devices, err := s.c.WhoIs(scanCtx, client.WithDiscoveryTimeout(3*time.Second))
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}

	if len(devices) == 0 {
		s.printf("No devices found\n")
		return
	}

	s.printf("\nFound %d device(s):\n", len(devices))
	for _, dev := range devices {
		s.printf("  Device %d - %s (Vendor: %d)\n", dev.ObjectID.Instance, dev.Address, dev.VendorID)
	}
	s.printf("\n")
}

func (s *shell) list(ctx context.Context) {
	listCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	objects, err := s.c.GetObjectList(listCtx, s.device)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}

	s.printf("\nDevice %d has %d objects:\n", s.device, len(objects))
	s.printf("%s\n", groupObjects(objects))
}

// groupObjects lists instances under their object type, in type order
func groupObjects(objects []bacnet.ObjectIdentifier) string {
	byType := make(map[bacnet.ObjectType][]uint32)
	for _, obj := range objects {
		byType[obj.Type] = append(byType[obj.Type], obj.Instance)
	}

	types := make([]bacnet.ObjectType, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var b strings.Builder
	for _, t := range types {
		fmt.Fprintf(&b, "\n  %s (%d):\n", t, len(byType[t]))
		for _, instance := range byType[t] {
			fmt.Fprintf(&b, "    %d\n", instance)
		}
	}
	return b.String()
}

func (s *shell) read(ctx context.Context, objStr, propStr string) {
	objectID, err := parseObjectIdentifier(objStr)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}

	propID, err := parsePropertyIdentifier(propStr)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}

	ack, err := readDeviceProperty(ctx, s.c, s.device, objectID, propID)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}

	s.printf("%s.%s = %s\n", objectID, propID, formatSequence(ack.Value))
}

func (s *shell) write(ctx context.Context, objStr, propStr, valStr string) {
	objectID, err := parseObjectIdentifier(objStr)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}

	propID, err := parsePropertyIdentifier(propStr)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}

	value, err := parseValue(valStr)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.c.WriteProperty(writeCtx, s.device, objectID, propID, value); err != nil {
		s.printf("Error: %v\n", err)
		return
	}

	s.printf("OK: %s.%s = %s\n", objectID, propID, formatValue(value))
}

func (s *shell) subscribe(ctx context.Context, objStr, propStr string) {
	objectID, err := parseObjectIdentifier(objStr)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}

	propID, err := parsePropertyIdentifier(propStr)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}

	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	handler := func(src netip.AddrPort, n *bacnet.COVNotification) {
		if value, ok := n.Value(propID); ok {
			s.printf("\n[COV %d] %s.%s = %s\n", n.SubscriberProcessID, n.Object, propID, formatSequence(value))
		}
	}

	processID, err := s.c.SubscribeCOV(subCtx, s.device, objectID, handler)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}

	s.printf("Subscribed to %s (process ID %d)\n", objectID, processID)
}

func (s *shell) unsubscribe(ctx context.Context, arg string) {
	processID, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		s.printf("Invalid process ID\n")
		return
	}

	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.c.UnsubscribeCOV(subCtx, uint32(processID)); err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	s.printf("Unsubscribed %d\n", processID)
}

func (s *shell) info(ctx context.Context) {
	deviceOID := bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, s.device)

	props := []struct {
		name string
		prop bacnet.PropertyIdentifier
	}{
		{"Name", bacnet.PropertyObjectName},
		{"Vendor", bacnet.PropertyVendorName},
		{"Model", bacnet.PropertyModelName},
		{"Firmware", bacnet.PropertyFirmwareRevision},
	}

	s.printf("\nDevice %d:\n", s.device)
	for _, p := range props {
		if ack, err := readDeviceProperty(ctx, s.c, s.device, deviceOID, p.prop); err == nil {
			s.printf("  %-10s: %s\n", p.name, formatSequence(ack.Value))
		}
	}
	s.printf("\n")
}

func (s *shell) metrics() {
	m := s.c.Metrics().Snapshot()

	s.printf("\nClient Metrics:\n")
	s.printf("  Uptime:              %s\n", m.Uptime.Round(time.Second))
	s.printf("  Requests Sent:       %d\n", m.RequestsSent)
	s.printf("  Requests Succeeded:  %d\n", m.RequestsSucceeded)
	s.printf("  Requests Failed:     %d\n", m.RequestsFailed)
	s.printf("  Requests Timed Out:  %d\n", m.RequestsTimedOut)
	s.printf("  Devices Discovered:  %d\n", m.DevicesDiscovered)
	s.printf("  COV Subscriptions:   %d\n", m.ActiveSubscriptions)
	s.printf("  COV Notifications:   %d\n", m.COVNotifications)
	s.printf("  Bytes Sent:          %d\n", m.BytesSent)
	s.printf("  Bytes Received:      %d\n", m.BytesReceived)

	if m.LatencyStats.Count > 0 {
		s.printf("  Avg Latency:         %s\n", m.LatencyStats.Avg.Round(time.Microsecond))
		s.printf("  Min Latency:         %s\n", m.LatencyStats.Min.Round(time.Microsecond))
		s.printf("  Max Latency:         %s\n", m.LatencyStats.Max.Round(time.Microsecond))
	}
	s.printf("\n")
}
