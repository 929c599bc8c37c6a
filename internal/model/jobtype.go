package model

import (
	"fmt"
	"time"

	"github.com/ngageoint/scale/internal/data"
	"github.com/ngageoint/scale/internal/recipe/definition"
)

type JobTypeKey struct {
	Name    string
	Version string
}

func (k JobTypeKey) String() string {
	return fmt.Sprintf("%s:%s", k.Name, k.Version)
}

// JobType holds the current settings of a job type. Interfaces are per revision, see JobTypeRevision.
type JobType struct {
	Name          string
	Version       string
	RevisionNum   int
	IsActive      bool
	IsPaused      bool
	IsSystem      bool
	IsLongRunning bool
	// MaxScheduled caps the number of executions of this type running at once. Zero means no limit.
	MaxScheduled int
	MaxTries     int
	Priority     int
	Timeout      time.Duration
	DockerImage  string
	Resources    Resources
}

func (jt *JobType) Key() JobTypeKey {
	return JobTypeKey{Name: jt.Name, Version: jt.Version}
}

// JobTypeRevision is an immutable published revision of a job type's interface.
type JobTypeRevision struct {
	Name            string
	Version         string
	RevisionNum     int
	InputInterface  *data.Interface
	OutputInterface *data.Interface
}

type RecipeType struct {
	Name        string
	RevisionNum int
	IsActive    bool
	IsSystem    bool
}

// RecipeTypeRevision is an immutable published revision of a recipe type's definition.
type RecipeTypeRevision struct {
	Name        string
	RevisionNum int
	Definition  *definition.RecipeDefinition
}
