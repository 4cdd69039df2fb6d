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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatterRows(t *testing.T) {
	headers := []string{"Device", "Name"}
	rows := [][]string{{"1234", "AHU 1, north"}, {"7", "VAV"}}

	tests := []struct {
		format string
		want   string
	}{
		{"csv", "Device,Name\n1234,\"AHU 1, north\"\n7,VAV\n"},
		{"raw", "1234 AHU 1, north\n7 VAV\n"},
		{"TABLE", "Device Name         \n------ ------------ \n1234   AHU 1, north \n7      VAV          \n"},
		{"", "Device Name         \n------ ------------ \n1234   AHU 1, north \n7      VAV          \n"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			f := NewFormatter(tt.format)
			f.SetWriter(&buf)
			f.PrintRows(headers, rows)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestFormatterKeyValue(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter("table")
	f.SetWriter(&buf)
	f.PrintKeyValue(map[string]any{"Vendor": 260, "Instance": 1234, "skipped": true}, []string{"Instance", "Vendor", "Missing"})
	assert.Equal(t, "Instance: 1234\nVendor  : 260\n", buf.String())
}

func TestFormatterJSON(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter("json")
	f.SetWriter(&buf)
	assert.NoError(t, f.PrintJSON(map[string]int{"instance": 1234}))
	assert.Equal(t, "{\n  \"instance\": 1234\n}\n", buf.String())
	assert.Equal(t, FormatJSON, f.Format())
}
