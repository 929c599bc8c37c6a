//go:build mage

package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var Gotestsum string

// Gotestsum downloads gotestsum locally if necessary
func gotestsum() error {
	mg.Deps(makeLocalBin)
	Gotestsum = filepath.Join(LocalBin, "/gotestsum")

	if _, err := os.Stat(Gotestsum); os.IsNotExist(err) {
		fmt.Println(Gotestsum)
		cmd := exec.Command("go", "install", "gotest.tools/gotestsum@v1.8.2")
		cmd.Env = append(os.Environ(), "GOBIN="+LocalBin)
		return cmd.Run()
	}
	return nil
}

// Tests runs the unit tests against a throwaway postgres and writes coverage reports to test_reports/.
func Tests() (err error) {
	mg.Deps(gotestsum)

	if err := startContainers(testPostgresContainer); err != nil {
		return err
	}
	defer func() {
		dockerErr := removeContainers(testPostgresContainer)
		if dockerErr != nil {
			if err == nil {
				err = dockerErr
			} else {
				err = fmt.Errorf("%w; %s", err, dockerErr.Error())
			}
		}
	}()
	if err := sh.Run("sleep", "3"); err != nil {
		return err
	}
	os.Setenv("SCALE_TEST_POSTGRES", "host=localhost port=5433 user=postgres password=psw sslmode=disable")
	defer os.Unsetenv("SCALE_TEST_POSTGRES")

	if err := os.MkdirAll("test_reports", os.ModePerm); err != nil {
		return err
	}
	if err := runtest("internal_coverage.xml", "internal.txt", "./internal/..."); err != nil {
		return err
	}
	return runtest("cmd_coverage.xml", "cmd.txt", "./cmd/...")
}

func runtest(coverageFileName, outputFileName string, directories ...string) error {
	args := []string{"--", "-v", "-count=1"}
	if coverageFileName != "" {
		args = append(args, "-coverprofile", filepath.Join("test_reports", coverageFileName))
	}
	args = append(args, directories...)

	cmd := exec.Command(Gotestsum, args...)
	file, err := os.Create(filepath.Join("test_reports", outputFileName))
	if err != nil {
		return err
	}
	defer file.Close()

	cmd.Stdout = io.MultiWriter(os.Stdout, file)
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
