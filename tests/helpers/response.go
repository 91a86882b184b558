// response.go
//
// Auto-gift rules, protection and event log service for the gift marketplace
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of autogift.
// autogift is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// autogift is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with autogift.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package helpers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/localnerve/autogift/internal/middleware"
)

// ErrorEnvelope is the JSON body of every autogift error response
type ErrorEnvelope struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	OK        bool   `json:"ok"`
	Type      string `json:"type"`
	URL       string `json:"url"`
	Field     string `json:"field,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewAPIRequest builds a request for the /api routes. An empty version sends the
// current API version; an empty session sends no session cookie.
func NewAPIRequest(t *testing.T, method, url, version, session string, body io.Reader) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	if version == "" {
		version = middleware.CurrentAPIVersion
	}
	req.Header.Set("X-Api-Version", version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != "" {
		req.AddCookie(&http.Cookie{Name: "cookie_session", Value: session})
	}
	return req
}

// AssertStatus verifies the HTTP status code
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status %d, got %d", expected, resp.StatusCode)
	}
}

// ParseJSON decodes the response body into the target
func ParseJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		t.Fatalf("Failed to decode JSON: %v. Body: %s", err, string(body))
	}
}

// AssertErrorEnvelope checks the status and the error envelope, and returns the envelope.
// errorType is matched as a prefix so "autogift.authorization" covers both roles.
func AssertErrorEnvelope(t *testing.T, resp *http.Response, status int, errorType string) ErrorEnvelope {
	t.Helper()
	AssertStatus(t, resp, status)

	var envelope ErrorEnvelope
	ParseJSON(t, resp, &envelope)

	if envelope.OK {
		t.Errorf("Expected ok=false in error envelope")
	}
	if envelope.Status != status {
		t.Errorf("Expected envelope status %d, got %d", status, envelope.Status)
	}
	if !strings.HasPrefix(envelope.Type, errorType) {
		t.Errorf("Expected error type %q, got %q", errorType, envelope.Type)
	}
	if envelope.Message == "" {
		t.Errorf("Expected an error message")
	}
	return envelope
}
