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
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edgeo-scada/bacnet/bacnet"
	"github.com/edgeo-scada/bacnet/client"
)

var (
	readObjectArg  string
	readProperty   string
	readArrayIndex int
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read a property from a BACnet object",
	Long: `Read retrieves property values from BACnet objects.

Object types can be specified by name or number:
  analog-input, ai, 0
  analog-output, ao, 1
  analog-value, av, 2
  binary-input, bi, 3
  binary-output, bo, 4
  binary-value, bv, 5
  device, dev, 8
  multi-state-input, msi, 13
  multi-state-output, mso, 14
  multi-state-value, msv, 19

Properties can be specified by name or number:
  present-value, pv, 85
  object-name, name, 77
  description, desc, 28
  status-flags, sf, 111
  units, 117
  out-of-service, oos, 81

Examples:
  # Read present value from analog input 1
  edgeo-bacnet read -d 1234 -O analog-input:1 -P present-value

  # Read using short names, skipping discovery
  edgeo-bacnet read -H 192.168.1.20 -d 1234 -O ai:1 -P pv

  # Read array element
  edgeo-bacnet read -d 1234 -O device:1234 -P object-list --index 1`,

	RunE: runRead,
}

func init() {
	readCmd.Flags().StringVarP(&readObjectArg, "object", "O", "", "Object type and instance (e.g., analog-input:1 or ai:1)")
	readCmd.Flags().StringVarP(&readProperty, "property", "P", "present-value", "Property identifier")
	readCmd.Flags().IntVar(&readArrayIndex, "index", -1, "Array index (-1 for no index)")

	readCmd.MarkFlagRequired("object")
}

func runRead(cmd *cobra.Command, args []string) error {
	id, err := targetDevice()
	if err != nil {
		return err
	}

	objectID, err := parseObjectIdentifier(readObjectArg)
	if err != nil {
		return fmt.Errorf("invalid object: %w", err)
	}

	propID, err := parsePropertyIdentifier(readProperty)
	if err != nil {
		return fmt.Errorf("invalid property: %w", err)
	}

	var readOpts []client.ReadOption
	if readArrayIndex >= 0 {
		readOpts = append(readOpts, client.WithArrayIndex(uint32(readArrayIndex)))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout*3)
	defer cancel()

	c, err := connectClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	ack, err := c.ReadProperty(ctx, id, objectID, propID, readOpts...)
	if err != nil {
		return fmt.Errorf("read property: %w", err)
	}

	return outputValue(NewFormatter(outputFmt), ack.Object, ack.Property, ack.Value)
}

func parseObjectIdentifier(s string) (bacnet.ObjectIdentifier, error) {
	// Format: type:instance (e.g., analog-input:1 or ai:1 or 0:1)
	typ, inst, ok := strings.Cut(s, ":")
	if !ok {
		return bacnet.ObjectIdentifier{}, fmt.Errorf("expected format type:instance (e.g., analog-input:1)")
	}

	instance, err := strconv.ParseUint(inst, 10, 32)
	if err != nil || instance > bacnet.MaxInstance {
		return bacnet.ObjectIdentifier{}, fmt.Errorf("invalid instance number: %s", inst)
	}

	if typeNum, err := strconv.ParseUint(typ, 10, 10); err == nil {
		return bacnet.NewObjectIdentifier(bacnet.ObjectType(typeNum), uint32(instance)), nil
	}

	objType, ok := bacnet.ParseObjectType(strings.ToLower(typ))
	if !ok {
		return bacnet.ObjectIdentifier{}, fmt.Errorf("unknown object type: %s", typ)
	}

	return bacnet.NewObjectIdentifier(objType, uint32(instance)), nil
}

func parsePropertyIdentifier(s string) (bacnet.PropertyIdentifier, error) {
	if propNum, err := strconv.ParseUint(s, 10, 32); err == nil {
		return bacnet.PropertyIdentifier(propNum), nil
	}

	prop, ok := bacnet.ParsePropertyIdentifier(strings.ToLower(s))
	if !ok {
		return 0, fmt.Errorf("unknown property: %s", s)
	}

	return prop, nil
}

func formatValue(value bacnet.PrimitiveValue) string {
	switch v := value.(type) {
	case nil, bacnet.Null:
		return "null"
	case bacnet.Boolean:
		return strconv.FormatBool(bool(v))
	case bacnet.Unsigned:
		return strconv.FormatUint(uint64(v), 10)
	case bacnet.Signed:
		return strconv.FormatInt(int64(v), 10)
	case bacnet.Real:
		return strconv.FormatFloat(float64(v), 'f', 4, 32)
	case bacnet.Double:
		return strconv.FormatFloat(float64(v), 'f', 6, 64)
	case bacnet.CharacterString:
		return string(v)
	case bacnet.Enumerated:
		return strconv.FormatUint(uint64(v), 10)
	case bacnet.ObjectIdentifier:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatSequence renders a property value. Application values print bare,
// context-tagged ones keep their tag.
func formatSequence(seq bacnet.ValueSequence) string {
	parts := make([]string, 0, len(seq))
	for _, v := range seq {
		if av, ok := v.(bacnet.ApplicationValue); ok {
			parts = append(parts, formatValue(av.Value))
			continue
		}
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, ", ")
}

// jsonValue maps a primitive to its natural JSON type
func jsonValue(value bacnet.PrimitiveValue) any {
	switch v := value.(type) {
	case nil, bacnet.Null:
		return nil
	case bacnet.Boolean:
		return bool(v)
	case bacnet.Unsigned:
		return uint32(v)
	case bacnet.Signed:
		return int32(v)
	case bacnet.Real:
		return float32(v)
	case bacnet.Double:
		return float64(v)
	case bacnet.Enumerated:
		return uint32(v)
	default:
		return formatValue(v)
	}
}

func jsonSequence(seq bacnet.ValueSequence) any {
	out := make([]any, 0, len(seq))
	for _, v := range seq {
		switch t := v.(type) {
		case bacnet.ApplicationValue:
			out = append(out, jsonValue(t.Value))
		case bacnet.ContextValue:
			out = append(out, map[string]any{"context": t.Context, "value": jsonValue(t.Value)})
		case bacnet.ContextValueSequence:
			out = append(out, map[string]any{"context": t.Context, "values": jsonSequence(t.Values)})
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func outputValue(f *Formatter, objectID bacnet.ObjectIdentifier, propID bacnet.PropertyIdentifier, value bacnet.ValueSequence) error {
	switch f.Format() {
	case FormatJSON:
		return f.PrintJSON(map[string]any{
			"object":   objectID.String(),
			"property": propID.String(),
			"value":    jsonSequence(value),
		})
	case FormatCSV:
		f.Printf("%s,%s,%s\n", objectID, propID, formatSequence(value))
	case FormatRaw:
		f.Println(formatSequence(value))
	default:
		f.PrintKeyValue(map[string]any{
			"Object":   objectID.String(),
			"Property": propID.String(),
			"Value":    formatSequence(value),
		}, []string{"Object", "Property", "Value"})
	}
	return nil
}
