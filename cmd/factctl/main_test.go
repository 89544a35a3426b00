package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/factflow/internal/model"
)

// cliEnv isolates the command from the caller's environment.
func cliEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"STORE_DRIVER", "DATABASE_URL", "DB_URL", "REDIS_URL", "MAPPING_GAZETTEER_FILE"} {
		t.Setenv(key, "")
	}
	t.Setenv("UPLOAD_DIR", t.TempDir())
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "indicators.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const wideCSV = "Indicator,2020,2021\nGDP,100,110\nPopulation,5,6\n"

func TestAnalyze_JSON(t *testing.T) {
	cliEnv(t)
	out, err := run(t, "analyze", "--json", writeCSV(t, wideCSV))
	if err != nil {
		t.Fatalf("analyze error = %v", err)
	}

	var a model.Analysis
	if err := json.Unmarshal([]byte(out), &a); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if a.ColumnCount != 3 || !a.HasHeader || a.Delimiter != "," {
		t.Errorf("analysis = %+v", a)
	}
}

func TestAnalyze_Table(t *testing.T) {
	cliEnv(t)
	out, err := run(t, "analyze", writeCSV(t, wideCSV))
	if err != nil {
		t.Fatalf("analyze error = %v", err)
	}
	for _, want := range []string{"Columns: 3", "HEADER", "Indicator", "2021"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSuggest(t *testing.T) {
	cliEnv(t)
	out, err := run(t, "suggest", writeCSV(t, wideCSV))
	if err != nil {
		t.Fatalf("suggest error = %v", err)
	}
	if !strings.Contains(out, "DIMENSION") || !strings.Contains(out, "Valid:") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestProcess(t *testing.T) {
	cliEnv(t)
	out, err := run(t, "process", "--facts", writeCSV(t, wideCSV))
	if err != nil {
		t.Fatalf("process error = %v", err)
	}
	for _, want := range []string{string(model.JobCompleted), "fact records"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestProcess_JSON(t *testing.T) {
	cliEnv(t)
	out, err := run(t, "process", "--json", "--map", "0=indicator_name", writeCSV(t, wideCSV))
	if err != nil {
		t.Fatalf("process error = %v", err)
	}

	var got struct {
		Job model.ProcessingJob `json:"job"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.Job.Status != model.JobCompleted {
		t.Errorf("status = %s, want %s", got.Job.Status, model.JobCompleted)
	}
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing argument", []string{"analyze"}, "accepts 1 arg"},
		{"missing file", []string{"analyze", "/nonexistent/file.csv"}, "not found"},
		{"bad override", []string{"process", "--map", "zero=TIME", "x.csv"}, "column must be"},
		{"unknown dimension", []string{"process", "--map", "0=COLOR", "x.csv"}, "invalid dimension type"},
		{"unknown store", []string{"analyze", "--store", "sqlite", "x.csv"}, "STORE_DRIVER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cliEnv(t)
			_, err := run(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestParseOverrides(t *testing.T) {
	got, err := parseOverrides([]string{"0=time", " 2 = UNIT "})
	if err != nil {
		t.Fatalf("parseOverrides() error = %v", err)
	}
	want := []override{{0, model.DimTimeType}, {2, model.DimUnit}}
	if len(got) != len(want) {
		t.Fatalf("got %d overrides, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("override[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	for _, bad := range []string{"0", "-1=TIME", "1="} {
		if _, err := parseOverrides([]string{bad}); err == nil {
			t.Errorf("parseOverrides(%q) succeeded, want error", bad)
		}
	}
}
