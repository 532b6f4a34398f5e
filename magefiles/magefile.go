//go:build mage

// Package main contains Mage build targets for mimic developer tooling.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir  = "bin"
	binName = "mimic"
	cmdPkg  = "./cmd/mimic"
)

// Default target to run when none is specified.
var Default = Build

// Build compiles the CLI binary into bin/ using the pure Go SQLite driver.
func Build() error {
	return build()
}

// BuildCgo compiles the CLI binary against the cgo SQLite driver.
func BuildCgo() error {
	return build("-tags", "cgo_sqlite")
}

func build(flags ...string) error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	args := append([]string{"build", "-o", out}, flags...)
	if err := sh.RunV("go", append(args, cmdPkg)...); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Vet runs go vet over every package.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Test runs the test suite after vetting.
func Test() error {
	mg.Deps(Vet)
	return sh.RunV("go", "test", "-race", "./...")
}

// Bench runs the markov package benchmarks.
func Bench() error {
	return sh.RunV("go", "test", "-run", "^$", "-bench", ".", "-benchmem", "./pkg/markov/")
}

// Clean removes build output.
func Clean() error {
	return sh.Rm(binDir)
}
