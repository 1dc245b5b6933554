// Copyright 2025 Tom Barlow
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

package endpoints

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/tombee/semroute/pkg/catalog"
)

func captureCommand() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{Use: "test"}
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	return cmd, buf
}

func TestEndpointsCommandFlags(t *testing.T) {
	cmd := NewEndpointsCommand()

	if cmd.Use != "endpoints" {
		t.Errorf("expected use 'endpoints', got %q", cmd.Use)
	}
	if cmd.Flags().Lookup("email") == nil {
		t.Error("email flag not registered")
	}
	if cmd.Flags().Lookup("api") == nil {
		t.Error("api flag not registered")
	}
}

func TestDescribeParameter(t *testing.T) {
	tests := []struct {
		name  string
		param catalog.Parameter
		want  string
	}{
		{
			name:  "name only",
			param: catalog.Parameter{Name: "to"},
			want:  "to",
		},
		{
			name:  "with description",
			param: catalog.Parameter{Name: "to", Description: "recipient address"},
			want:  "to - recipient address",
		},
		{
			name: "with alternatives",
			param: catalog.Parameter{
				Name:         "to",
				Description:  "recipient address",
				Alternatives: []string{"recipient", "dest"},
			},
			want: "to - recipient address (aka recipient, dest)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeParameter(tt.param); got != tt.want {
				t.Errorf("describeParameter() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintEndpointsGrouping(t *testing.T) {
	cmd, buf := captureCommand()

	eps := []catalog.Endpoint{
		{
			ID:           "list_invoices",
			Verb:         "GET",
			Path:         "/invoices",
			Description:  "List invoices",
			APIGroupName: "billing",
			Parameters: []catalog.Parameter{
				{Name: "year", Description: "filter year"},
			},
		},
		{
			ID:           "send_email",
			Verb:         "POST",
			Path:         "/email/send",
			Description:  "Send an email",
			APIGroupName: "messaging",
			Parameters: []catalog.Parameter{
				{Name: "subject", Description: "subject line"},
				{Name: "to", Description: "recipient address", Required: true},
			},
		},
	}

	printEndpoints(cmd, "user@example.com", "localhost:50053", eps)
	out := buf.String()

	for _, want := range []string{
		"Endpoints for user@example.com (2)",
		"billing",
		"messaging",
		"GET /invoices",
		"POST /email/send",
		"send_email",
		"Send an email",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// Groups print in sorted order.
	if strings.Index(out, "billing") > strings.Index(out, "messaging") {
		t.Error("expected billing group before messaging group")
	}

	// Required parameters print before optional ones.
	toIdx := strings.Index(out, "required to - recipient address")
	subjectIdx := strings.Index(out, "optional subject - subject line")
	if toIdx == -1 || subjectIdx == -1 {
		t.Fatalf("parameter lines missing:\n%s", out)
	}
	if toIdx > subjectIdx {
		t.Error("expected required parameter before optional parameter")
	}
}

func TestPrintNoEndpointsGuidance(t *testing.T) {
	cmd, buf := captureCommand()

	if err := printNoEndpoints(cmd, "user@example.com"); err != nil {
		t.Fatalf("printNoEndpoints: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "No endpoints configured for user@example.com") {
		t.Errorf("output missing headline:\n%s", out)
	}
	if !strings.Contains(out, "administrator") {
		t.Errorf("output missing administrator guidance:\n%s", out)
	}
}
