//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

var LocalBin = filepath.Join(os.Getenv("PWD"), "/bin")

func makeLocalBin() error {
	if _, err := os.Stat(LocalBin); os.IsNotExist(err) {
		return os.MkdirAll(LocalBin, os.ModePerm)
	}
	return nil
}

func binaryWithExt(name string) string {
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("%s.exe", name)
	}
	return name
}

// Check if the user is on an arm system
func onArm() bool {
	return runtime.GOARCH == "arm64"
}
