package main

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
)

type fakeRunner struct {
	upErr    error
	steps    []int
	forced   int
	version  uint
	noVerErr bool
}

func (f *fakeRunner) Up() error { return f.upErr }

func (f *fakeRunner) Steps(n int) error {
	f.steps = append(f.steps, n)
	return nil
}

func (f *fakeRunner) Force(version int) error {
	f.forced = version
	return nil
}

func (f *fakeRunner) Version() (uint, bool, error) {
	if f.noVerErr {
		return 0, false, migrate.ErrNilVersion
	}
	return f.version, false, nil
}

func TestRunUpIgnoresNoChange(t *testing.T) {
	if err := run(&fakeRunner{upErr: migrate.ErrNoChange}, nil); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	boom := errors.New("boom")
	if err := run(&fakeRunner{upErr: boom}, []string{"up"}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestRunDownSteps(t *testing.T) {
	f := &fakeRunner{}
	if err := run(f, []string{"down"}); err != nil {
		t.Fatalf("down: %v", err)
	}
	if err := run(f, []string{"down", "3"}); err != nil {
		t.Fatalf("down 3: %v", err)
	}
	if len(f.steps) != 2 || f.steps[0] != -1 || f.steps[1] != -3 {
		t.Fatalf("unexpected steps %v", f.steps)
	}
	if err := run(f, []string{"down", "zero"}); err == nil {
		t.Fatalf("expected error for invalid step count")
	}
}

func TestRunForceAndVersion(t *testing.T) {
	f := &fakeRunner{version: 1}
	if err := run(f, []string{"force", "1"}); err != nil {
		t.Fatalf("force: %v", err)
	}
	if f.forced != 1 {
		t.Fatalf("expected forced version 1, got %d", f.forced)
	}
	if err := run(f, []string{"force"}); err == nil {
		t.Fatalf("expected usage error")
	}
	if err := run(f, []string{"version"}); err != nil {
		t.Fatalf("version: %v", err)
	}
	if err := run(&fakeRunner{noVerErr: true}, []string{"version"}); err != nil {
		t.Fatalf("version without migrations: %v", err)
	}
	if err := run(f, []string{"sideways"}); err == nil {
		t.Fatalf("expected usage error for unknown command")
	}
}
