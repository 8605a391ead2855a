package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/config"
	"github.com/bamsammich/ferry/internal/ledger"
	"github.com/bamsammich/ferry/internal/plan"
)

func TestNormalizeFlagName(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var noResume bool
	var delay time.Duration
	fs.BoolVar(&noResume, "noresume", false, "")
	fs.DurationVar(&delay, "retry-delay", 0, "")
	fs.SetNormalizeFunc(normalizeFlagName)

	require.NoError(t, fs.Parse([]string{"--no-resume", "--retry_delay=3s"}))
	assert.True(t, noResume)
	assert.Equal(t, 3*time.Second, delay)
}

func TestSizeFlag(t *testing.T) {
	var n int64
	f := sizeFlag{&n}
	require.NoError(t, f.Set("700M"))
	assert.Equal(t, int64(700<<20), n)
	assert.Equal(t, "size", f.Type())
	assert.Error(t, f.Set("lots"))
}

func testCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "ferry"}
	f := cmd.Flags()
	f.Var(sizeFlag{&opts.budget}, "budget", "")
	f.IntVar(&opts.retries, "retries", 2, "")
	f.DurationVar(&opts.retryDelay, "retry-delay", 5*time.Second, "")
	f.StringVar(&opts.sourceLabel, "source-label", "", "")
	return cmd
}

func TestApplyConfigDefaults(t *testing.T) {
	budget := "2G"
	retries := 5
	label := "camera card"
	cfg := config.Config{
		Defaults: config.DefaultsConfig{
			Budget:     &budget,
			Retries:    &retries,
			RetryDelay: &config.Duration{Duration: time.Minute},
		},
		Volumes: config.VolumesConfig{SourceLabel: &label},
	}

	opts := options{budget: defaultBudget, retries: 2, retryDelay: 5 * time.Second}
	cmd := testCommand(&opts)
	require.NoError(t, cmd.Flags().Parse([]string{"--retries", "0"}))

	require.NoError(t, applyConfigDefaults(cmd, cfg, &opts))
	assert.Equal(t, int64(2<<30), opts.budget)
	assert.Equal(t, 0, opts.retries, "flag set on the command line wins")
	assert.Equal(t, time.Minute, opts.retryDelay)
	assert.Equal(t, "camera card", opts.sourceLabel)
}

func TestApplyConfigDefaultsBadBudget(t *testing.T) {
	budget := "huge"
	opts := options{}
	err := applyConfigDefaults(testCommand(&opts), config.Config{
		Defaults: config.DefaultsConfig{Budget: &budget},
	}, &opts)
	assert.Error(t, err)
}

func TestPrintStatus(t *testing.T) {
	dir := t.TempDir()
	led, err := ledger.OpenDir(dir)
	require.NoError(t, err)
	require.NoError(t, led.SavePlan([]ledger.Chunk{
		{Index: 0, Files: []plan.FileEntry{{Path: "a", Size: 10}}, Size: 10},
		{Index: 1, Files: []plan.FileEntry{{Path: "b", Size: 20}, {Path: "c", Size: 30}}, Size: 50},
	}))
	require.NoError(t, led.MarkDone(0))
	require.NoError(t, led.Close())

	var out bytes.Buffer
	require.NoError(t, printStatus(&out, ledger.KindDir, dir))

	s := out.String()
	assert.Contains(t, s, "chunks   1/2 done")
	assert.Contains(t, s, "files    3")
	assert.Contains(t, s, "size     10 B of 60 B")
	assert.Contains(t, s, "pending")
}

func TestPrintStatusNoPlan(t *testing.T) {
	var out bytes.Buffer
	dir := t.TempDir() + "/missing"
	require.NoError(t, printStatus(&out, ledger.KindDir, dir))
	assert.Contains(t, out.String(), "no plan in")
}

func TestExitError(t *testing.T) {
	assert.Equal(t, "exit code 2", (&exitError{code: 2}).Error())
}
