package testutil

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Result is one decoded line of app output.
type Result struct {
	Environment string         `json:"environment"`
	URL         string         `json:"url"`
	Exports     map[string]any `json:"exports"`
}

// Results decodes every output line of a harness run.
func Results(t *testing.T, result *HarnessResult) []Result {
	t.Helper()
	var out []Result
	for _, line := range strings.Split(strings.TrimSpace(result.Output), "\n") {
		if line == "" {
			continue
		}
		var r Result
		require.NoError(t, json.Unmarshal([]byte(line), &r), "line: %s", line)
		out = append(out, r)
	}
	return out
}

// AssertModuleExecuted checks the log output for the execution of the module
// whose file name ends with suffix.
func AssertModuleExecuted(t *testing.T, result *HarnessResult, suffix string) {
	t.Helper()
	require.Equal(t, 1, CountExecutions(result, suffix),
		"expected exactly one execution of %s, but it was not found.\nLogs:\n%s", suffix, result.LogOutput)
}

// CountExecutions counts how often modules ending with suffix were executed.
func CountExecutions(result *HarnessResult, suffix string) int {
	n := 0
	for _, line := range strings.Split(result.LogOutput, "\n") {
		if !strings.Contains(line, "Executing module.") {
			continue
		}
		if strings.Contains(line, suffix+" ") || strings.HasSuffix(line, suffix) {
			n++
		}
	}
	return n
}
