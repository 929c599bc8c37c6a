//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/pkg/errors"
)

// Check dependent tools are present and the correct version.
func CheckDeps() error {
	checks := []struct {
		name  string
		check func() error
	}{
		{"docker", dockerCheck},
		{"go", goCheck},
		{"golangci-lint", golangciLintCheck},
	}
	failures := false
	for _, check := range checks {
		fmt.Printf("Checking %s... ", check.name)
		if err := check.check(); err != nil {
			fmt.Printf("FAILED\nReason: %v\n", err)
			failures = true
		} else {
			fmt.Println("PASSED")
		}
	}
	if failures {
		return errors.New("one or more dependency checks failed")
	}
	return nil
}

// BuildScale builds the scale binary into bin/.
func BuildScale() error {
	mg.Deps(goCheck, makeLocalBin)
	out := filepath.Join(LocalBin, binaryWithExt("scale"))
	env := map[string]string{"CGO_ENABLED": "0"}
	if goos := os.Getenv("GOOS"); goos != "" {
		env["GOOS"] = goos
	}
	return sh.RunWith(env, "go", "build", "-o", out, "./cmd/scale")
}
