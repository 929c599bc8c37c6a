// Package messages holds the command messages that drive jobs and recipes through their lifecycle.
//
// Every message re-reads and locks the rows it changes inside a single store transaction and applies each change as a
// compare-and-set on the state it read, so a message executed twice, or after a newer one, changes nothing the second
// time. Messages never assume the state they were created from is still current.
package messages

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"k8s.io/utils/clock"

	"github.com/ngageoint/scale/internal/catalog"
	"github.com/ngageoint/scale/internal/data"
	"github.com/ngageoint/scale/internal/messaging"
	"github.com/ngageoint/scale/internal/store"
)

// MaxNum is the maximum number of items carried by one message. It keeps every message well under the broker's
// practical size limit.
const MaxNum = 100

// Message types
const (
	BlockedJobsType          = "blocked_jobs"
	PendingJobsType          = "pending_jobs"
	QueuedJobsType           = "queued_jobs"
	RequeueJobsType          = "requeue_jobs"
	RunningJobsType          = "running_jobs"
	CompletedJobsType        = "completed_jobs"
	FailedJobsType           = "failed_jobs"
	CancelJobsType           = "cancel_jobs"
	UncancelJobsType         = "uncancel_jobs"
	CreateJobsType           = "create_jobs"
	ProcessJobInputType      = "process_job_input"
	UpdateRecipeType         = "update_recipe"
	UpdateRecipeMetricsType  = "update_recipe_metrics"
	UpdateBatchMetricsType   = "update_batch_metrics"
	CreateConditionsType     = "create_conditions"
	ProcessConditionType     = "process_condition"
	CreateRecipesType        = "create_recipes"
	ProcessRecipeInputType   = "process_recipe_input"
	SupersedeRecipeNodesType = "supersede_recipe_nodes"
	CreateBatchRecipesType   = "create_batch_recipes"
)

// Entities named in message outcomes
const (
	entityJob       = "job"
	entityRecipe    = "recipe"
	entityCondition = "condition"
	entityBatch     = "batch"
)

// Env is what messages need to execute.
type Env struct {
	Store   store.Store
	Catalog catalog.Catalog
	Clock   clock.Clock
	// Files resolves file metadata for condition filters and input sizes. It may be nil, in which case no file
	// metadata is known.
	Files data.FileLookup
}

var validate = validator.New()

// bindable is implemented by every message in this package. Messages are created without an Env and only get one when
// they are extracted from an envelope by a worker.
type bindable interface {
	messaging.CommandMessage
	bind(env *Env)
}

type base struct {
	env *Env
}

func (b *base) bind(env *Env) {
	b.env = env
}

// Register registers every message type of this package. The messages it extracts execute against env.
func Register(registry *messaging.Registry, env *Env) {
	register(registry, env, BlockedJobsType, func() bindable { return &BlockedJobs{} })
	register(registry, env, PendingJobsType, func() bindable { return &PendingJobs{} })
	register(registry, env, QueuedJobsType, func() bindable { return &QueuedJobs{} })
	register(registry, env, RequeueJobsType, func() bindable { return &RequeueJobs{} })
	register(registry, env, RunningJobsType, func() bindable { return &RunningJobs{} })
	register(registry, env, CompletedJobsType, func() bindable { return &CompletedJobs{} })
	register(registry, env, FailedJobsType, func() bindable { return &FailedJobs{} })
	register(registry, env, CancelJobsType, func() bindable { return &CancelJobs{} })
	register(registry, env, UncancelJobsType, func() bindable { return &UncancelJobs{} })
	register(registry, env, CreateJobsType, func() bindable { return &CreateJobs{} })
	register(registry, env, ProcessJobInputType, func() bindable { return &ProcessJobInput{} })
	register(registry, env, UpdateRecipeType, func() bindable { return &UpdateRecipe{} })
	register(registry, env, UpdateRecipeMetricsType, func() bindable { return &UpdateRecipeMetrics{} })
	register(registry, env, UpdateBatchMetricsType, func() bindable { return &UpdateBatchMetrics{} })
	register(registry, env, CreateConditionsType, func() bindable { return &CreateConditions{} })
	register(registry, env, ProcessConditionType, func() bindable { return &ProcessCondition{} })
	register(registry, env, CreateRecipesType, func() bindable { return &CreateRecipes{} })
	register(registry, env, ProcessRecipeInputType, func() bindable { return &ProcessRecipeInput{} })
	register(registry, env, SupersedeRecipeNodesType, func() bindable { return &SupersedeRecipeNodes{} })
	register(registry, env, CreateBatchRecipesType, func() bindable { return &CreateBatchRecipes{} })
}

func register(registry *messaging.Registry, env *Env, messageType string, newMessage func() bindable) {
	registry.Register(messageType, func(body []byte) (messaging.CommandMessage, error) {
		msg := newMessage()
		if err := json.Unmarshal(body, msg); err != nil {
			return nil, errors.WithStack(err)
		}
		if err := validate.Struct(msg); err != nil {
			return nil, errors.WithStack(err)
		}
		msg.bind(env)
		return msg, nil
	})
}

func toJSON(msg interface{}) ([]byte, error) {
	b, err := json.Marshal(msg)
	return b, errors.WithStack(err)
}

// chunk splits items into groups of at most MaxNum and builds one message per group.
func chunk[T any](items []T, newMessage func(items []T) messaging.CommandMessage) []messaging.CommandMessage {
	var msgs []messaging.CommandMessage
	for len(items) > 0 {
		n := MaxNum
		if len(items) < n {
			n = len(items)
		}
		msgs = append(msgs, newMessage(slices.Clone(items[:n])))
		items = items[n:]
	}
	return msgs
}

// recordUpdates records every attempted id as applied when the store changed it and as skipped otherwise.
func recordUpdates(outcome *messaging.Outcome, entity string, attempted []int64, changed []int64) {
	for _, id := range attempted {
		if slices.Contains(changed, id) {
			outcome.Apply(entity, id)
		} else {
			outcome.Skip(entity, id, "changed concurrently")
		}
	}
}

// uniqueSorted returns the distinct non-zero ids in ascending order.
func uniqueSorted(ids []int64) []int64 {
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != 0 && !slices.Contains(result, id) {
			result = append(result, id)
		}
	}
	slices.Sort(result)
	return result
}

func sortedKeys[K constraints.Ordered, V any](m map[K]V) []K {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}

// fileSize returns the total size in MiB of the files referenced by d.
func (e *Env) fileSize(d *data.Data) float64 {
	if d == nil || e.Files == nil {
		return 0
	}
	ids := d.FileIDs()
	if len(ids) == 0 {
		return 0
	}
	var total int64
	for _, info := range e.Files(ids) {
		total += info.Size
	}
	return float64(total) / (1024 * 1024)
}

// dataEqual compares two data documents by their JSON form.
func dataEqual(a, b *data.Data) bool {
	if a == nil || b == nil {
		return a == b
	}
	aJSON, aErr := json.Marshal(a)
	bJSON, bErr := json.Marshal(b)
	return aErr == nil && bErr == nil && string(aJSON) == string(bJSON)
}
