package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/flowmake/internal/dag"
	"github.com/vk/flowmake/internal/job"
	"github.com/vk/flowmake/internal/rule"
	"github.com/vk/flowmake/internal/runcfg"
	"github.com/vk/flowmake/internal/wildcard"
)

// fakeRunner records executed jobs and writes their outputs, standing in for
// the shell.
type fakeRunner struct {
	mu   sync.Mutex
	ran  []string
	fail map[string]bool // rule names whose jobs should fail
}

func (r *fakeRunner) Run(ctx context.Context, j *job.Job) error {
	r.mu.Lock()
	r.ran = append(r.ran, j.ID())
	r.mu.Unlock()

	if r.fail[j.Rule.Name] {
		return errors.New("command exited with status 1")
	}
	for _, out := range j.Outputs {
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(out, []byte("x"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeRunner) order(t *testing.T) map[string]int {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	pos := make(map[string]int, len(r.ran))
	for i, id := range r.ran {
		pos[id] = i
	}
	return pos
}

func newRule(t *testing.T, name string, inputs []string, outputs ...string) *rule.Rule {
	t.Helper()
	r := &rule.Rule{Name: name, Shell: "make " + name, Threads: 1}
	for _, in := range inputs {
		r.Inputs = append(r.Inputs, wildcard.MustCompile(in))
	}
	for _, out := range outputs {
		r.Outputs = append(r.Outputs, wildcard.MustCompile(out))
	}
	return r
}

func plan(t *testing.T, rules []*rule.Rule, targets ...string) *dag.Graph {
	t.Helper()
	reg := rule.NewRegistry()
	for _, r := range rules {
		require.NoError(t, reg.Register(r))
	}
	g, err := dag.NewBuilder(reg, job.NewExpander(runcfg.Empty())).Plan(context.Background(), targets)
	require.NoError(t, err)
	return g
}

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestExecuteChainRespectsOrder(t *testing.T) {
	chdir(t, t.TempDir())
	touch(t, "raw/s.fq", time.Now())

	g := plan(t, []*rule.Rule{
		newRule(t, "trim", []string{"raw/{s}.fq"}, "trimmed/{s}.fq"),
		newRule(t, "align", []string{"trimmed/{s}.fq"}, "aligned/{s}.bam"),
		newRule(t, "sort", []string{"aligned/{s}.bam"}, "sorted/{s}.bam"),
	}, "sorted/s.bam")

	runner := &fakeRunner{}
	report, err := New(g, runner, Options{Jobs: 4, Targets: []string{"sorted/s.bam"}}).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Ran)
	pos := runner.order(t)
	assert.Less(t, pos["trim[s=s]"], pos["align[s=s]"])
	assert.Less(t, pos["align[s=s]"], pos["sort[s=s]"])
}

func TestExecuteFailureSkipsDependentsOnly(t *testing.T) {
	chdir(t, t.TempDir())

	g := plan(t, []*rule.Rule{
		newRule(t, "broken", nil, "broken.txt"),
		newRule(t, "dependent", []string{"broken.txt"}, "dependent.txt"),
		newRule(t, "independent", nil, "independent.txt"),
	}, "dependent.txt", "independent.txt")

	runner := &fakeRunner{fail: map[string]bool{"broken": true}}
	report, err := New(g, runner, Options{
		Jobs:    2,
		Targets: []string{"dependent.txt", "independent.txt"},
	}).Execute(context.Background())

	require.Error(t, err)
	assert.ErrorContains(t, err, "broken")
	assert.Equal(t, []string{"broken"}, report.Failed)
	assert.Equal(t, []string{"dependent"}, report.Skipped)
	assert.Equal(t, 1, report.Ran) // independent still ran
	assert.FileExists(t, "independent.txt")
	assert.NoFileExists(t, "dependent.txt")
}

func TestExecuteDryRun(t *testing.T) {
	chdir(t, t.TempDir())
	touch(t, "raw/s.fq", time.Now())

	g := plan(t, []*rule.Rule{
		newRule(t, "trim", []string{"raw/{s}.fq"}, "trimmed/{s}.fq"),
		newRule(t, "align", []string{"trimmed/{s}.fq"}, "aligned/{s}.bam"),
	}, "aligned/s.bam")

	runner := &fakeRunner{}
	var out bytes.Buffer
	report, err := New(g, runner, Options{
		Jobs:    2,
		Targets: []string{"aligned/s.bam"},
		DryRun:  true,
		Out:     &out,
	}).Execute(context.Background())
	require.NoError(t, err)

	t.Run("nothing executes and no files appear", func(t *testing.T) {
		assert.Empty(t, runner.ran)
		assert.NoFileExists(t, "trimmed/s.fq")
		assert.NoFileExists(t, "aligned/s.bam")
	})

	t.Run("commands reported in dependency order", func(t *testing.T) {
		require.Equal(t, []string{"trim[s=s]", "align[s=s]"}, report.Planned)
		require.Equal(t, []string{"make trim", "make align"}, report.Commands)
		assert.Contains(t, out.String(), "make trim")
		assert.Contains(t, out.String(), "2 job(s) would run")
	})
}

func TestExecuteUpToDateIsSkipped(t *testing.T) {
	chdir(t, t.TempDir())
	base := time.Now().Add(-time.Hour)
	touch(t, "raw/s.fq", base)
	touch(t, "trimmed/s.fq", base.Add(time.Minute))
	touch(t, "aligned/s.bam", base.Add(2*time.Minute))

	rules := []*rule.Rule{
		newRule(t, "trim", []string{"raw/{s}.fq"}, "trimmed/{s}.fq"),
		newRule(t, "align", []string{"trimmed/{s}.fq"}, "aligned/{s}.bam"),
	}

	t.Run("fresh outputs mean zero executed jobs", func(t *testing.T) {
		runner := &fakeRunner{}
		report, err := New(plan(t, rules, "aligned/s.bam"), runner, Options{
			Jobs:    2,
			Targets: []string{"aligned/s.bam"},
		}).Execute(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, report.Ran)
		assert.Equal(t, 2, report.UpToDate)
		assert.Empty(t, runner.ran)
	})

	t.Run("stale input reruns the whole downstream chain", func(t *testing.T) {
		touch(t, "raw/s.fq", time.Now())
		runner := &fakeRunner{}
		report, err := New(plan(t, rules, "aligned/s.bam"), runner, Options{
			Jobs:    2,
			Targets: []string{"aligned/s.bam"},
		}).Execute(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, report.Ran)
	})

	t.Run("force target reruns it regardless of timestamps", func(t *testing.T) {
		touch(t, "raw/s.fq", base)
		touch(t, "trimmed/s.fq", base.Add(time.Minute))
		touch(t, "aligned/s.bam", base.Add(2*time.Minute))

		runner := &fakeRunner{}
		report, err := New(plan(t, rules, "aligned/s.bam"), runner, Options{
			Jobs:         2,
			Targets:      []string{"aligned/s.bam"},
			ForceTargets: []string{"aligned/s.bam"},
		}).Execute(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Ran)
		assert.Equal(t, 1, report.UpToDate)
		assert.Equal(t, []string{"align[s=s]"}, runner.ran)
	})

	t.Run("force all reruns everything", func(t *testing.T) {
		runner := &fakeRunner{}
		report, err := New(plan(t, rules, "aligned/s.bam"), runner, Options{
			Jobs:     2,
			Targets:  []string{"aligned/s.bam"},
			ForceAll: true,
		}).Execute(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, report.Ran)
	})
}

func TestExecuteTempOutputsAreRemoved(t *testing.T) {
	chdir(t, t.TempDir())
	touch(t, "raw/s.fq", time.Now())

	trim := newRule(t, "trim", []string{"raw/{s}.fq"}, "trimmed/{s}.fq")
	trim.Temp = true
	g := plan(t, []*rule.Rule{
		trim,
		newRule(t, "align", []string{"trimmed/{s}.fq"}, "aligned/{s}.bam"),
	}, "aligned/s.bam")

	_, err := New(g, &fakeRunner{}, Options{Jobs: 2, Targets: []string{"aligned/s.bam"}}).Execute(context.Background())
	require.NoError(t, err)

	assert.FileExists(t, "aligned/s.bam")
	assert.NoFileExists(t, "trimmed/s.fq")
}

func TestExecuteRemovedTempIntermediateStaysUpToDate(t *testing.T) {
	chdir(t, t.TempDir())
	touch(t, "raw/s.fq", time.Now().Add(-time.Hour))

	trim := newRule(t, "trim", []string{"raw/{s}.fq"}, "trimmed/{s}.fq")
	trim.Temp = true
	rules := []*rule.Rule{
		trim,
		newRule(t, "align", []string{"trimmed/{s}.fq"}, "aligned/{s}.bam"),
	}
	opts := Options{Jobs: 2, Targets: []string{"aligned/s.bam"}}

	first := &fakeRunner{}
	_, err := New(plan(t, rules, "aligned/s.bam"), first, opts).Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, first.ran, 2)
	require.FileExists(t, "aligned/s.bam")
	require.NoFileExists(t, "trimmed/s.fq")

	// The deleted intermediate must not pull its producer, and through it the
	// whole chain, back into the run set while the target is fresh.
	second := &fakeRunner{}
	report, err := New(plan(t, rules, "aligned/s.bam"), second, opts).Execute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second.ran)
	assert.Equal(t, 0, report.Ran)
	assert.Equal(t, 2, report.UpToDate)
}

func TestExecuteThreadWeightIsClamped(t *testing.T) {
	chdir(t, t.TempDir())

	wide := newRule(t, "wide", nil, "wide.txt")
	wide.Threads = 16
	g := plan(t, []*rule.Rule{wide}, "wide.txt")

	report, err := New(g, &fakeRunner{}, Options{Jobs: 2, Targets: []string{"wide.txt"}}).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ran)
}

func TestExecutePrintCommands(t *testing.T) {
	chdir(t, t.TempDir())

	g := plan(t, []*rule.Rule{newRule(t, "solo", nil, "solo.txt")}, "solo.txt")

	var out bytes.Buffer
	_, err := New(g, &fakeRunner{}, Options{
		Jobs:          1,
		Targets:       []string{"solo.txt"},
		PrintCommands: true,
		Out:           &out,
	}).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "make solo\n", out.String())
}

func TestExecuteFanOutConcurrency(t *testing.T) {
	chdir(t, t.TempDir())
	touch(t, "seed.txt", time.Now())

	var rules []*rule.Rule
	targets := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("fan%d", i)
		rules = append(rules, newRule(t, name, []string{"seed.txt"}, name+".txt"))
		targets = append(targets, name+".txt")
	}

	runner := &fakeRunner{}
	report, err := New(plan(t, rules, targets...), runner, Options{Jobs: 4, Targets: targets}).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, report.Ran)
	assert.Len(t, runner.ran, 8)
}

// runnerFunc adapts a bare function to the Runner interface.
type runnerFunc func(ctx context.Context, j *job.Job) error

func (f runnerFunc) Run(ctx context.Context, j *job.Job) error { return f(ctx, j) }

func TestExecuteFailureClassificationIgnoresErrorText(t *testing.T) {
	chdir(t, t.TempDir())

	g := plan(t, []*rule.Rule{
		newRule(t, "broken", nil, "broken.txt"),
		newRule(t, "dependent", []string{"broken.txt"}, "dependent.txt"),
	}, "dependent.txt")

	// The command's own message starts with "skipped"; only the synthetic
	// upstream error type may mark a job as skipped.
	runner := runnerFunc(func(ctx context.Context, j *job.Job) error {
		return errors.New("skipped frames while encoding")
	})
	report, err := New(g, runner, Options{Jobs: 1, Targets: []string{"dependent.txt"}}).Execute(context.Background())

	require.Error(t, err)
	assert.ErrorContains(t, err, "skipped frames while encoding")
	assert.Equal(t, []string{"broken"}, report.Failed)
	assert.Equal(t, []string{"dependent"}, report.Skipped)
}
