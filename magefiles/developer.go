//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/pkg/errors"
)

// StartDependencies starts postgres, redis and pulsar for a local scale.
func StartDependencies() error {
	mg.Deps(dockerCheck)
	return startContainers(localDependencies...)
}

// StopDependencies removes the containers started by StartDependencies.
func StopDependencies() error {
	return removeContainers(localDependencies...)
}

// LocalDev starts the dependencies, waits for pulsar and migrates the database.
func LocalDev() error {
	mg.Deps(BuildScale)
	mg.Deps(StartDependencies)
	fmt.Println("Waiting for dependencies to start...")
	if err := checkForPulsarRunning(); err != nil {
		return err
	}
	scale := filepath.Join(LocalBin, binaryWithExt("scale"))
	if err := sh.Run(scale, "migrateDatabase"); err != nil {
		return err
	}
	fmt.Printf("Dependencies are running! Run `%s run-scheduler` and `%s run-messaging` to start scale\n", scale, scale)
	return nil
}

func checkForPulsarRunning() error {
	timeout := time.After(2 * time.Minute)
	tick := time.Tick(2 * time.Second)
	for {
		select {
		case <-timeout:
			return errors.New("timed out waiting for pulsar to start")
		case <-tick:
			out, _ := pulsarContainer.exec("bin/pulsar-admin", "brokers", "healthcheck")
			if out == "ok" {
				fmt.Println("Pulsar is ready")
				return nil
			}
			fmt.Fprint(os.Stderr, ".")
		}
	}
}
