package cli_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bjaus/mergeload/internal/cli"
)

// =============================================================================
// Test Helpers
// =============================================================================

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// incidentInputs writes a small directory in the built-in incident layout.
func incidentInputs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "acidentes.csv", "CdAcidente,Numero,Natureza,Data,Hora,Longitude,Latitude\n"+
		"100,12,COLISAO,2018-07-15,14:05,-46.6,-23.5\n"+
		"200,13,CHOQUE,2018-07-16,N,-46.7,-23.6\n")
	writeFile(t, dir, "veiculos.csv", "CdAcidente,CdVeiculo,TipoVeiculo\n100,1,AUTO\n100,2,MOTO\n")
	writeFile(t, dir, "vitimas.csv", "CdAcidente,CdPessoa,Idade,Sexo\n200,7,34,F\n")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := cli.NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), err
}

// =============================================================================
// Load Command Tests
// =============================================================================

func TestLoad_DryRun(t *testing.T) {
	out, err := run(t, "load", incidentInputs(t), "--dry-run", "--log-level", "off")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Empty(t, first["schema"], "dry runs do not provision a schema")
	require.Equal(t, "2018-07-15T14:05:00-03:00", first["occurred_from"])
	require.Equal(t, "POINT (-46.6 -23.5)", first["geom"])

	data := first["data"].(map[string]any)
	details := data["driverIncidentDetails"].(map[string]any)
	require.Equal(t, float64(12), details["Numero"])
	require.Equal(t, "COLISAO", details["Natureza"])
	require.Len(t, data["driverVehicle"], 2)
	require.Empty(t, data["driverPerson"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.Equal(t, "2018-07-16T00:00:00-03:00", second["occurred_from"])
	people := second["data"].(map[string]any)["driverPerson"].([]any)
	require.Equal(t, float64(34), people[0].(map[string]any)["Idade"])
}

func TestLoad_DryRunWithJobFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.csv", "k,when,x,y\n1,2020-01-02,3,4\n")
	job := writeFile(t, dir, "job.yaml", `
join_column: k
timezone: UTC
anchor: {source: a, file: a.csv, field: A, columns: [{column: k, cast: int}]}
derived: {date: when, longitude: x, latitude: y}
`)

	out, err := run(t, "load", dir, "--job", job, "--schema-id", "s-1", "--dry-run", "--log-level", "off")
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	require.Equal(t, "s-1", rec["schema"])
	require.Equal(t, "2020-01-02T00:00:00+00:00", rec["occurred_to"])
	require.Equal(t, "POINT (3.0 4.0)", rec["geom"])
}

func TestLoad_ProvisionsAndDelivers(t *testing.T) {
	var (
		mu      sync.Mutex
		records []map[string]any
		authz   []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		authz = append(authz, r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/recordtypes/":
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"uuid":"type-1"}`)
		case "/api/recordschemas/":
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"uuid":"schema-1"}`)
		case "/api/records/":
			var rec map[string]any
			_ = json.NewDecoder(r.Body).Decode(&rec)
			records = append(records, rec)
			w.WriteHeader(http.StatusCreated)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	schema := writeFile(t, t.TempDir(), "schema.json", `{"type":"object"}`)
	_, err := run(t, "load", incidentInputs(t),
		"--api-url", srv.URL+"/api",
		"--authz", "Token abc",
		"--schema-path", schema,
		"--log-level", "off",
	)
	require.NoError(t, err)

	require.Len(t, records, 2)
	require.Equal(t, "schema-1", records[0]["schema"])
	require.Equal(t, "schema-1", records[1]["schema"])
	for _, a := range authz {
		require.Equal(t, "Token abc", a)
	}
}

func TestLoad_DeadLetterFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"data":["bad"]}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	dead := filepath.Join(t.TempDir(), "refused.jsonl")
	_, err := run(t, "load", incidentInputs(t),
		"--api-url", srv.URL,
		"--schema-id", "s-1",
		"--dead-letter", dead,
		"--log-level", "off",
	)
	require.NoError(t, err)

	data, err := os.ReadFile(dead)
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 2)
}

// =============================================================================
// Exit Code Tests
// =============================================================================

func TestExitCodes(t *testing.T) {
	inputs := incidentInputs(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "missing input dir", args: []string{"load"}, want: cli.ExitUsage},
		{name: "too many args", args: []string{"load", "a", "b"}, want: cli.ExitUsage},
		{name: "unknown flag", args: []string{"load", inputs, "--nope"}, want: cli.ExitUsage},
		{name: "bad flag value", args: []string{"load", inputs, "--max-attempts", "many"}, want: cli.ExitUsage},
		{name: "missing job file", args: []string{"load", inputs, "--dry-run", "--job", filepath.Join(inputs, "nope.yaml")}, want: cli.ExitConfig},
		{name: "provisioning fails", args: []string{"load", inputs, "--api-url", "http://127.0.0.1:1", "--schema-path", filepath.Join(inputs, "nope.json")}, want: cli.ExitConfig},
		{name: "missing input files", args: []string{"load", t.TempDir(), "--dry-run"}, want: cli.ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append(tt.args, "--log-level", "off")...)
			require.Error(t, err)
			require.Equal(t, tt.want, cli.ExitCodeForError(err))
		})
	}
}

func TestExitCodeForError(t *testing.T) {
	require.Equal(t, cli.ExitOK, cli.ExitCodeForError(nil))
	require.Equal(t, cli.ExitFailure, cli.ExitCodeForError(errors.New("boom")))
}
