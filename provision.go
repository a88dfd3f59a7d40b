package mergeload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// RecordType describes the record type created before a schema is
// registered.
type RecordType struct {
	Label       string
	PluralLabel string
	Description string
	Temporal    bool
	Active      bool
}

// IncidentRecordType is the record type historical incident loads use.
var IncidentRecordType = RecordType{
	Label:       "Incident",
	PluralLabel: "Incidents",
	Description: "Historical incident data",
	Temporal:    true,
	Active:      true,
}

// Provisioner registers a record type and schema with the sink. Calls are
// made once, without retry.
type Provisioner struct {
	APIRoot    string
	Headers    map[string]string
	RecordType RecordType
	Client     *http.Client
}

// CreateSchema creates the record type, registers the JSON schema read from
// schemaPath against it, and returns the new schema id.
func (p *Provisioner) CreateSchema(ctx context.Context, schemaPath string) (string, error) {
	raw, err := os.ReadFile(schemaPath)
	if err != nil {
		return "", fmt.Errorf("read schema: %w", err)
	}
	var schema json.RawMessage
	if err := json.Unmarshal(raw, &schema); err != nil {
		return "", fmt.Errorf("parse schema %s: %w", schemaPath, err)
	}

	rt := p.RecordType
	form := url.Values{
		"label":        {rt.Label},
		"plural_label": {rt.PluralLabel},
		"description":  {rt.Description},
		"temporal":     {pyBool(rt.Temporal)},
		"active":       {pyBool(rt.Active)},
	}
	typeID, err := p.post(ctx, "/recordtypes/", "application/x-www-form-urlencoded", []byte(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create record type: %w", err)
	}

	body, err := json.Marshal(map[string]any{"record_type": typeID, "schema": schema})
	if err != nil {
		return "", fmt.Errorf("encode record schema: %w", err)
	}
	schemaID, err := p.post(ctx, "/recordschemas/", "application/json", body)
	if err != nil {
		return "", fmt.Errorf("create record schema: %w", err)
	}
	return schemaID, nil
}

// post sends body and returns the "uuid" field of the JSON response.
func (p *Provisioner) post(ctx context.Context, path, contentType string, body []byte) (string, error) {
	endpoint := strings.TrimRight(p.APIRoot, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", contentType)

	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%s: unexpected status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	if out.UUID == "" {
		return "", fmt.Errorf("%s: response has no uuid", endpoint)
	}
	return out.UUID, nil
}

// pyBool spells booleans the way the sink's form parser expects.
func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
