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
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo-scada/bacnet/bacnet"
	"github.com/edgeo-scada/bacnet/client"
)

var (
	dumpFile       string
	dumpProperties []string
	dumpObjects    []string
	dumpAll        bool
	dumpBatch      int
	dumpNoRPM      bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump all objects and properties from a device",
	Long: `Dump reads the object list of a BACnet device and then the chosen
properties of every object.

Properties are read with ReadPropertyMultiple, several objects per request.
Devices that do not support it are read one property at a time. Properties a
device cannot read are reported as errors and do not stop the dump.

Examples:
  # Dump all objects to stdout
  edgeo-bacnet dump -d 1234

  # Dump to a JSON file
  edgeo-bacnet dump -d 1234 -f device_backup.json -o json

  # Dump specific object types
  edgeo-bacnet dump -d 1234 --objects analog-input,analog-output

  # Dump specific properties
  edgeo-bacnet dump -d 1234 --props present-value,object-name,description`,

	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpFile, "file", "f", "", "Output file (default: stdout)")
	dumpCmd.Flags().StringSliceVar(&dumpProperties, "props", []string{"present-value", "object-name", "description", "units", "status-flags"}, "Properties to read")
	dumpCmd.Flags().StringSliceVar(&dumpObjects, "objects", nil, "Object types to include (default: all)")
	dumpCmd.Flags().BoolVar(&dumpAll, "all", false, "Dump all common properties (may be slow)")
	dumpCmd.Flags().IntVar(&dumpBatch, "batch", 8, "Objects per ReadPropertyMultiple request")
	dumpCmd.Flags().BoolVar(&dumpNoRPM, "no-rpm", false, "Read one property per request")
}

// allDumpProperties are read by --all
var allDumpProperties = []bacnet.PropertyIdentifier{
	bacnet.PropertyObjectIdentifier,
	bacnet.PropertyObjectName,
	bacnet.PropertyObjectType,
	bacnet.PropertyPresentValue,
	bacnet.PropertyDescription,
	bacnet.PropertyStatusFlags,
	bacnet.PropertyEventState,
	bacnet.PropertyReliability,
	bacnet.PropertyOutOfService,
	bacnet.PropertyUnits,
	bacnet.PropertyPriorityArray,
	bacnet.PropertyRelinquishDefault,
	bacnet.PropertyCOVIncrement,
}

// DumpObject holds the properties read from one object. Properties keeps the
// JSON form of each value; Errors the reason a property could not be read.
type DumpObject struct {
	ObjectID   string            `json:"object_id"`
	ObjectType string            `json:"object_type"`
	Instance   uint32            `json:"instance"`
	Properties map[string]any    `json:"properties"`
	Errors     map[string]string `json:"errors,omitempty"`

	text map[string]string
}

// DumpResult is the output of dump
type DumpResult struct {
	DeviceID   uint32       `json:"device_id"`
	Timestamp  time.Time    `json:"timestamp"`
	Properties []string     `json:"properties"`
	Objects    []DumpObject `json:"objects"`
}

func newDumpObject(oid bacnet.ObjectIdentifier) DumpObject {
	return DumpObject{
		ObjectID:   oid.String(),
		ObjectType: oid.Type.String(),
		Instance:   oid.Instance,
		Properties: make(map[string]any),
		text:       make(map[string]string),
	}
}

func (o *DumpObject) set(prop bacnet.PropertyIdentifier, value bacnet.ValueSequence) {
	o.Properties[prop.String()] = jsonSequence(value)
	o.text[prop.String()] = formatSequence(value)
}

func (o *DumpObject) fail(prop bacnet.PropertyIdentifier, err error) {
	if o.Errors == nil {
		o.Errors = make(map[string]string)
	}
	o.Errors[prop.String()] = err.Error()
}

func runDump(cmd *cobra.Command, args []string) error {
	id, err := targetDevice()
	if err != nil {
		return err
	}

	props, err := dumpPropertyList(dumpAll, dumpProperties)
	if err != nil {
		return err
	}

	types, err := parseObjectTypes(dumpObjects)
	if err != nil {
		return err
	}

	if dumpBatch < 1 {
		return fmt.Errorf("batch must be positive")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	c, err := connectClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Fprintln(os.Stderr, "Retrieving object list...")

	objects, err := c.GetObjectList(ctx, id)
	if err != nil {
		return fmt.Errorf("get object list: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Found %d objects\n", len(objects))

	if len(types) > 0 {
		objects = filterObjects(objects, types)
		fmt.Fprintf(os.Stderr, "Filtered to %d objects\n", len(objects))
	}

	result := DumpResult{
		DeviceID:   id,
		Timestamp:  time.Now(),
		Properties: propertyNames(props),
		Objects:    make([]DumpObject, 0, len(objects)),
	}

	useRPM := !dumpNoRPM
	for _, batch := range objectBatches(objects, dumpBatch) {
		fmt.Fprintf(os.Stderr, "\rReading object %d/%d: %s", len(result.Objects)+len(batch), len(objects), batch[len(batch)-1])

		if useRPM {
			dumped, err := readBatchMultiple(ctx, c, id, batch, props)
			if err == nil {
				result.Objects = append(result.Objects, dumped...)
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var rejectErr *bacnet.RejectError
			if errors.As(err, &rejectErr) {
				useRPM = false
			}
			logger.Debug("read-property-multiple failed, reading properties one by one", "error", err)
		}

		for _, oid := range batch {
			result.Objects = append(result.Objects, readObject(ctx, c, id, oid, props))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	fmt.Fprintln(os.Stderr, "\nDump complete")

	var out io.Writer = os.Stdout
	if dumpFile != "" {
		file, err := os.Create(dumpFile)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer file.Close()
		out = file
	}

	f := NewFormatter(outputFmt)
	f.SetWriter(out)
	return outputDump(f, result)
}

// dumpPropertyList resolves the properties to read
func dumpPropertyList(all bool, names []string) ([]bacnet.PropertyIdentifier, error) {
	if all {
		return allDumpProperties, nil
	}
	props := make([]bacnet.PropertyIdentifier, 0, len(names))
	for _, name := range names {
		prop, err := parsePropertyIdentifier(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		props = append(props, prop)
	}
	if len(props) == 0 {
		return nil, fmt.Errorf("no properties to read")
	}
	return props, nil
}

func parseObjectTypes(names []string) ([]bacnet.ObjectType, error) {
	types := make([]bacnet.ObjectType, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if n, err := strconv.ParseUint(name, 10, 10); err == nil {
			types = append(types, bacnet.ObjectType(n))
			continue
		}
		typ, ok := bacnet.ParseObjectType(name)
		if !ok {
			return nil, fmt.Errorf("unknown object type: %s", name)
		}
		types = append(types, typ)
	}
	return types, nil
}

func filterObjects(objects []bacnet.ObjectIdentifier, types []bacnet.ObjectType) []bacnet.ObjectIdentifier {
	filtered := make([]bacnet.ObjectIdentifier, 0, len(objects))
	for _, oid := range objects {
		for _, typ := range types {
			if oid.Type == typ {
				filtered = append(filtered, oid)
				break
			}
		}
	}
	return filtered
}

func objectBatches(objects []bacnet.ObjectIdentifier, size int) [][]bacnet.ObjectIdentifier {
	var batches [][]bacnet.ObjectIdentifier
	for len(objects) > 0 {
		n := min(size, len(objects))
		batches = append(batches, objects[:n])
		objects = objects[n:]
	}
	return batches
}

func propertyNames(props []bacnet.PropertyIdentifier) []string {
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.String()
	}
	return names
}

func readAccessSpecs(objects []bacnet.ObjectIdentifier, props []bacnet.PropertyIdentifier) []bacnet.ReadAccessSpec {
	refs := make([]bacnet.PropertyReference, len(props))
	for i, p := range props {
		refs[i] = bacnet.PropertyReference{Property: p}
	}
	accesses := make([]bacnet.ReadAccessSpec, len(objects))
	for i, oid := range objects {
		accesses[i] = bacnet.ReadAccessSpec{Object: oid, Properties: refs}
	}
	return accesses
}

// dumpObjectsFromAck builds one DumpObject per requested object, in request
// order, from a ReadPropertyMultiple answer.
func dumpObjectsFromAck(objects []bacnet.ObjectIdentifier, ack *bacnet.ReadPropertyMultipleAck) []DumpObject {
	dumped := make([]DumpObject, 0, len(objects))
	for _, oid := range objects {
		obj := newDumpObject(oid)
		for _, r := range ack.Results {
			if r.Object != oid {
				continue
			}
			for _, pr := range r.Results {
				if pr.Error != nil {
					obj.fail(pr.Property, pr.Error.Err())
					continue
				}
				obj.set(pr.Property, pr.Value)
			}
		}
		dumped = append(dumped, obj)
	}
	return dumped
}

func readBatchMultiple(ctx context.Context, c *client.Client, id uint32, objects []bacnet.ObjectIdentifier, props []bacnet.PropertyIdentifier) ([]DumpObject, error) {
	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ack, err := c.ReadPropertyMultiple(readCtx, id, readAccessSpecs(objects, props))
	if err != nil {
		return nil, err
	}
	return dumpObjectsFromAck(objects, ack), nil
}

func readObject(ctx context.Context, c *client.Client, id uint32, oid bacnet.ObjectIdentifier, props []bacnet.PropertyIdentifier) DumpObject {
	obj := newDumpObject(oid)
	for _, prop := range props {
		ack, err := readDeviceProperty(ctx, c, id, oid, prop)
		if err != nil {
			obj.fail(prop, err)
			continue
		}
		obj.set(prop, ack.Value)
	}
	return obj
}

func outputDump(f *Formatter, result DumpResult) error {
	switch f.Format() {
	case FormatJSON:
		return f.PrintJSON(result)

	case FormatCSV:
		headers := append([]string{"object_id", "object_type", "instance"}, result.Properties...)
		rows := make([][]string, 0, len(result.Objects))
		for _, obj := range result.Objects {
			row := []string{obj.ObjectID, obj.ObjectType, strconv.FormatUint(uint64(obj.Instance), 10)}
			for _, prop := range result.Properties {
				row = append(row, obj.text[prop])
			}
			rows = append(rows, row)
		}
		f.PrintCSV(headers, rows)

	default:
		f.Printf("Device %d - %d objects\n", result.DeviceID, len(result.Objects))
		f.Printf("Timestamp: %s\n\n", result.Timestamp.Format(time.RFC3339))

		for _, obj := range result.Objects {
			f.Printf("=== %s ===\n", obj.ObjectID)
			pairs := make(map[string]any, len(result.Properties))
			for _, prop := range result.Properties {
				if v, ok := obj.text[prop]; ok {
					pairs[prop] = v
				} else if e, ok := obj.Errors[prop]; ok {
					pairs[prop] = "(" + e + ")"
				}
			}
			f.PrintKeyValue(pairs, result.Properties)
			f.Println()
		}
	}
	return nil
}
