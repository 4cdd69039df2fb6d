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
	writeObject     string
	writeProperty   string
	writeValue      string
	writeType       string
	writePriority   int
	writeArrayIndex int
)

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Write a property to a BACnet object",
	Long: `Write sets property values on BACnet objects.

Value types are detected unless --type is given:
  - Numbers: 123, 45.67, -10
  - Booleans: true, false, active, inactive
  - Strings: "text value"
  - Null: null (to release priority)

Types accepted by --type: null, boolean, unsigned, signed, real, double,
string, enumerated, object.

Examples:
  # Write present value to analog output
  edgeo-bacnet write -d 1234 -O analog-output:1 -P present-value -V 75.5

  # Write with priority
  edgeo-bacnet write -d 1234 -O binary-output:1 -P present-value -V 1 --type enumerated --priority 8

  # Release a priority (write null)
  edgeo-bacnet write -d 1234 -O analog-output:1 -P present-value -V null --priority 8

  # Write object name
  edgeo-bacnet write -d 1234 -O analog-value:1 -P object-name -V "Temperature Setpoint"`,

	RunE: runWrite,
}

func init() {
	writeCmd.Flags().StringVarP(&writeObject, "object", "O", "", "Object type and instance (e.g., analog-output:1)")
	writeCmd.Flags().StringVarP(&writeProperty, "property", "P", "present-value", "Property identifier")
	writeCmd.Flags().StringVarP(&writeValue, "value", "V", "", "Value to write")
	writeCmd.Flags().StringVar(&writeType, "type", "", "Application type of the value (detected when empty)")
	writeCmd.Flags().IntVar(&writePriority, "priority", 0, "Write priority (1-16, 0 for no priority)")
	writeCmd.Flags().IntVar(&writeArrayIndex, "index", -1, "Array index (-1 for no index)")

	writeCmd.MarkFlagRequired("object")
	writeCmd.MarkFlagRequired("value")
}

func runWrite(cmd *cobra.Command, args []string) error {
	id, err := targetDevice()
	if err != nil {
		return err
	}

	objectID, err := parseObjectIdentifier(writeObject)
	if err != nil {
		return fmt.Errorf("invalid object: %w", err)
	}

	propID, err := parsePropertyIdentifier(writeProperty)
	if err != nil {
		return fmt.Errorf("invalid property: %w", err)
	}

	var value bacnet.PrimitiveValue
	if writeType != "" {
		value, err = parseTypedValue(writeType, writeValue)
	} else {
		value, err = parseValue(writeValue)
	}
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}

	if writePriority < 0 || writePriority > 16 {
		return fmt.Errorf("priority %d out of range 1-16", writePriority)
	}

	var writeOpts []client.WriteOption
	if writePriority > 0 {
		writeOpts = append(writeOpts, client.WithPriority(uint8(writePriority)))
	}
	if writeArrayIndex >= 0 {
		writeOpts = append(writeOpts, client.WithWriteArrayIndex(uint32(writeArrayIndex)))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout*3)
	defer cancel()

	c, err := connectClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.WriteProperty(ctx, id, objectID, propID, value, writeOpts...); err != nil {
		return fmt.Errorf("write property: %w", err)
	}

	logger.Info("write successful",
		"object", objectID.String(),
		"property", propID.String(),
		"value", formatValue(value),
	)
	return nil
}

// parseValue guesses the application type of s
func parseValue(s string) (bacnet.PrimitiveValue, error) {
	s = strings.TrimSpace(s)

	switch strings.ToLower(s) {
	case "null":
		return bacnet.Null{}, nil
	case "true", "active", "on":
		return bacnet.Boolean(true), nil
	case "false", "inactive", "off":
		return bacnet.Boolean(false), nil
	}

	// Quoted string
	if len(s) >= 2 && ((s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'')) {
		return bacnet.CharacterString(s[1 : len(s)-1]), nil
	}

	if strings.ContainsAny(s, ".eE") {
		if f, err := strconv.ParseFloat(s, 32); err == nil {
			return bacnet.Real(f), nil
		}
	}

	if i, err := strconv.ParseInt(s, 10, 32); err == nil {
		if i < 0 {
			return bacnet.Signed(i), nil
		}
		return bacnet.Unsigned(i), nil
	}

	if u, err := strconv.ParseUint(s, 10, 32); err == nil {
		return bacnet.Unsigned(u), nil
	}

	return bacnet.CharacterString(s), nil
}

// parseTypedValue parses s as the named application type
func parseTypedValue(typ, s string) (bacnet.PrimitiveValue, error) {
	s = strings.TrimSpace(s)

	switch strings.ToLower(typ) {
	case "null":
		return bacnet.Null{}, nil
	case "boolean", "bool":
		b, err := strconv.ParseBool(s)
		return bacnet.Boolean(b), err
	case "unsigned", "uint":
		u, err := strconv.ParseUint(s, 10, 32)
		return bacnet.Unsigned(u), err
	case "signed", "int":
		i, err := strconv.ParseInt(s, 10, 32)
		return bacnet.Signed(i), err
	case "real", "float":
		f, err := strconv.ParseFloat(s, 32)
		return bacnet.Real(f), err
	case "double":
		f, err := strconv.ParseFloat(s, 64)
		return bacnet.Double(f), err
	case "string", "character-string":
		return bacnet.CharacterString(s), nil
	case "enumerated", "enum":
		u, err := strconv.ParseUint(s, 10, 32)
		return bacnet.Enumerated(u), err
	case "object", "object-identifier":
		return parseObjectIdentifier(s)
	case "octets", "octet-string":
		b, err := parseHex(s)
		return bacnet.OctetString(b), err
	case "bits", "bit-string":
		bits := make(bacnet.BitString, len(s))
		for i, r := range s {
			switch r {
			case '0':
			case '1':
				bits[i] = true
			default:
				return nil, fmt.Errorf("invalid bit %q", r)
			}
		}
		return bits, nil
	default:
		return nil, fmt.Errorf("unknown type %q", typ)
	}
}
