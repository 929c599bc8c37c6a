//go:build mage

package main

import (
	"strings"

	semver "github.com/Masterminds/semver/v3"
	"github.com/magefile/mage/sh"
	"github.com/pkg/errors"
)

// Oldest docker server able to run the dependency containers.
const minDockerServer = ">= 19.0.0"

// container is a dependency of scale run under docker for local development or tests.
type container struct {
	name  string
	ports []string
	env   []string
	image func() string
	cmd   []string
}

func fixedImage(image string) func() string {
	return func() string { return image }
}

func pulsarImage() string {
	if onArm() {
		return "kezhenxu94/pulsar"
	}
	return "apachepulsar/pulsar:2.10.0"
}

var (
	postgresContainer = container{
		name:  "scale-postgres",
		ports: []string{"5432:5432"},
		env:   []string{"POSTGRES_PASSWORD=psw", "POSTGRES_DB=scale"},
		image: fixedImage("postgres:14.2"),
	}
	redisContainer = container{
		name:  "scale-redis",
		ports: []string{"6379:6379"},
		image: fixedImage("redis:6.2.6"),
	}
	pulsarContainer = container{
		name:  "scale-pulsar",
		ports: []string{"6650:6650", "8080:8080"},
		image: pulsarImage,
		cmd:   []string{"bin/pulsar", "standalone"},
	}
	// testPostgresContainer listens on its own port so tests can run next to a local scale.
	testPostgresContainer = container{
		name:  "scale-test-postgres",
		ports: []string{"5433:5432"},
		env:   []string{"POSTGRES_PASSWORD=psw"},
		image: fixedImage("postgres:14.2"),
	}
)

// localDependencies are the containers a locally running scale talks to.
var localDependencies = []container{postgresContainer, redisContainer, pulsarContainer}

func (c container) runArgs() []string {
	args := []string{"run", "-d", "--name=" + c.name}
	for _, port := range c.ports {
		args = append(args, "-p", port)
	}
	for _, env := range c.env {
		args = append(args, "-e", env)
	}
	args = append(args, c.image())
	return append(args, c.cmd...)
}

// exec runs a command inside the container and returns its output.
func (c container) exec(args ...string) (string, error) {
	return sh.Output(dockerBinary(), append([]string{"exec", c.name}, args...)...)
}

func dockerBinary() string {
	return binaryWithExt("docker")
}

func startContainers(containers ...container) error {
	for _, c := range containers {
		if err := sh.Run(dockerBinary(), c.runArgs()...); err != nil {
			return errors.WithMessagef(err, "starting %s", c.name)
		}
	}
	return nil
}

// removeContainers force-removes the containers whether or not they are running.
func removeContainers(containers ...container) error {
	args := []string{"rm", "-f"}
	for _, c := range containers {
		args = append(args, c.name)
	}
	return sh.Run(dockerBinary(), args...)
}

func dockerServerVersion() (*semver.Version, error) {
	out, err := sh.Output(dockerBinary(), "version", "--format", "{{.Server.Version}}")
	if err != nil {
		return nil, errors.WithMessage(err, "asking docker for its server version")
	}
	version, err := semver.NewVersion(strings.TrimSpace(out))
	if err != nil {
		return nil, errors.Wrapf(err, "docker server version %q", out)
	}
	return version, nil
}

func dockerCheck() error {
	version, err := dockerServerVersion()
	if err != nil {
		return err
	}
	constraint, err := semver.NewConstraint(minDockerServer)
	if err != nil {
		return errors.WithStack(err)
	}
	if !constraint.Check(version) {
		return errors.Errorf("docker server %v does not satisfy %s", version, minDockerServer)
	}
	return nil
}
