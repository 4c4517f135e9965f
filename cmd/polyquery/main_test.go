package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunCommand(t *testing.T) {
	cmd := newRunCommand()
	assert.NotNil(t, cmd)
	assert.Equal(t, "run <scenario>", cmd.Use)
	assert.Contains(t, cmd.Short, "built-in execution unit")
}

func TestRunCommandUnknownScenario(t *testing.T) {
	cmd := newRunCommand()
	cmd.SetArgs([]string{"does-not-exist"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scenario")
}

func TestRunCommandScenarios(t *testing.T) {
	tests := []struct {
		name      string
		scenario  string
		checkFunc func(t *testing.T, output string)
	}{
		{
			name:     "aggregate basics over [1,2,3,4,5]",
			scenario: "agg-basics",
			checkFunc: func(t *testing.T, output string) {
				assert.Contains(t, output, "1 row(s)")
				assert.Contains(t, output, "5\t15\t1\t5\t3")
			},
		},
		{
			name:     "group by count ordered ascending",
			scenario: "group-by-count",
			checkFunc: func(t *testing.T, output string) {
				assert.Contains(t, output, "3 row(s)")
				assert.Contains(t, output, "1\t2\n2\t3\n3\t1\n")
			},
		},
		{
			name:     "null-aware average",
			scenario: "null-aware-avg",
			checkFunc: func(t *testing.T, output string) {
				assert.Contains(t, output, "20\t3\t5\n")
			},
		},
		{
			name:     "inner join projects matched outer rows",
			scenario: "inner-join",
			checkFunc: func(t *testing.T, output string) {
				assert.Contains(t, output, "3 row(s)")
			},
		},
		{
			name:     "top-n with offset",
			scenario: "top-n",
			checkFunc: func(t *testing.T, output string) {
				assert.Contains(t, output, "98\n97\n96\n")
			},
		},
		{
			name:     "group by dictionary-encoded string",
			scenario: "group-by-string",
			checkFunc: func(t *testing.T, output string) {
				assert.Contains(t, output, "hi\t2")
				assert.Contains(t, output, "bye\t1")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRunCommand()
			cmd.SetArgs([]string{tt.scenario})
			var out bytes.Buffer
			cmd.SetOut(&out)
			require.NoError(t, cmd.Execute())
			tt.checkFunc(t, out.String())
		})
	}
}

func TestNewListCommand(t *testing.T) {
	cmd := newListCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())
	for _, s := range scenarios() {
		assert.Contains(t, out.String(), s.name)
	}
}
