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
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgeo-scada/bacnet/bacnet"
)

func TestShellSession(t *testing.T) {
	var buf bytes.Buffer
	sh := newShell(nil, &buf)

	input := strings.Join([]string{
		"read ai:1",
		"use",
		"use abc",
		"use 4194304",
		"use 0",
		"read",
		"write ai:1 pv",
		"subscribe",
		"unsubscribe",
		"frobnicate",
		"exit",
		"use 5",
	}, "\n")
	sh.run(context.Background(), strings.NewReader(input))

	out := buf.String()
	assert.Contains(t, out, "bacnet> No device selected. Use 'use <device-id>' first.\n")
	assert.Contains(t, out, "Usage: use <device-id>\n")
	assert.Equal(t, 2, strings.Count(out, "Invalid device ID\n"))
	assert.Contains(t, out, "Selected device 0\nbacnet[0]> ")
	assert.Contains(t, out, "Usage: read <object> [property]\n")
	assert.Contains(t, out, "Usage: write <object> <property> <value>\n")
	assert.Contains(t, out, "Usage: subscribe <object> [property]\n")
	assert.Contains(t, out, "Usage: unsubscribe <process-id>\n")
	assert.Contains(t, out, "Unknown command: frobnicate")
	assert.True(t, strings.HasSuffix(out, "Goodbye!\n"))
	assert.NotContains(t, out, "Selected device 5")
}

func TestShellEndOfInput(t *testing.T) {
	var buf bytes.Buffer
	sh := newShell(nil, &buf)

	sh.run(context.Background(), strings.NewReader("help\n\n"))

	out := buf.String()
	assert.Contains(t, out, "Available commands:")
	assert.Equal(t, 3, strings.Count(out, "bacnet> "))
	assert.True(t, strings.HasSuffix(out, "bacnet> \n"))
}

func TestGroupObjects(t *testing.T) {
	objects := []bacnet.ObjectIdentifier{
		bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, 1234),
		bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 2),
		bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1),
	}
	assert.Equal(t,
		"\n  analog-input (2):\n    2\n    1\n\n  device (1):\n    1234\n",
		groupObjects(objects))
}
