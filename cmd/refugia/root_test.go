package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixtures(t *testing.T, dir string, individuals ...string) (string, string) {
	t.Helper()
	t0 := time.Date(2022, 8, 1, 6, 0, 0, 0, time.UTC)

	var climate strings.Builder
	climate.WriteString("timestamp,lat,lon,temp_c,precip_mm\n")
	for h := 0; h < 8; h++ {
		fmt.Fprintf(&climate, "%s,-20,25,39,0\n", t0.Add(time.Duration(h)*time.Hour).Format(time.RFC3339))
	}

	var traj strings.Builder
	traj.WriteString("timestamp,lat,lon,individual_id,species\n")
	for k, id := range individuals {
		for h := 0; h < 6; h++ {
			fmt.Fprintf(&traj, "%s,%.4f,%.4f,%s,Loxodonta africana\n",
				t0.Add(time.Duration(h)*time.Hour).Format(time.RFC3339),
				-20+0.001*float64(h), 25+0.001*float64(k), id)
		}
	}

	trajPath := filepath.Join(dir, "trajectory.csv")
	climatePath := filepath.Join(dir, "climate.csv")
	require.NoError(t, os.WriteFile(trajPath, []byte(traj.String()), 0o644))
	require.NoError(t, os.WriteFile(climatePath, []byte(climate.String()), 0o644))
	return trajPath, climatePath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	traj, climate := writeFixtures(t, dir, "e-1", "e-2")
	db := filepath.Join(dir, "data", "refugia.db")

	out, err := execute(t, "run", "--db", db, "--trajectory", traj, "--climate", climate)
	require.NoError(t, err, out)

	var printed struct {
		RunID   string `json:"run_id"`
		Status  string `json:"status"`
		Summary struct {
			HeatEvents      int `json:"heat_events"`
			RefugiaClusters int `json:"refugia_clusters"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &printed), out)
	assert.NotEmpty(t, printed.RunID)
	assert.Equal(t, "completed", printed.Status)
	assert.Equal(t, 2, printed.Summary.HeatEvents)
	assert.Equal(t, 1, printed.Summary.RefugiaClusters)
}

func TestRunCommandReportsFailedRun(t *testing.T) {
	dir := t.TempDir()
	traj, climate := writeFixtures(t, dir, "e-1")

	out, err := execute(t, "run", "--db", filepath.Join(dir, "refugia.db"), "--trajectory", traj, "--climate", climate)
	require.Error(t, err)
	assert.Contains(t, out, `"status": "failed"`)
}

func TestRunCommandRequiresFlags(t *testing.T) {
	_, err := execute(t, "run", "--db", filepath.Join(t.TempDir(), "refugia.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestMigrateCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "refugia.db")
	_, err := execute(t, "migrate", "--db", db)
	require.NoError(t, err)

	_, err = os.Stat(db)
	assert.NoError(t, err)
}
