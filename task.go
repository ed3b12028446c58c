package ticketflow

import (
	"github.com/randalmurphal/llmkit/model"
)

// Task identifies what an LLM call is doing, which determines
// the model tier it runs on.
type Task string

const (
	// Relevance scoring and planning - need reasoning
	TaskAnalyze Task = "analyze"
	TaskPlan    Task = "plan"

	// Code generation - default tier
	TaskGenerate Task = "generate"
	TaskRevise   Task = "revise"

	// Cheap text work - fast tier
	TaskSummarize Task = "summarize"
	TaskClassify  Task = "classify"
)

// DefaultModelMap maps tasks to default models.
var DefaultModelMap = map[Task]model.ModelName{
	TaskAnalyze:   model.ModelOpus,
	TaskPlan:      model.ModelOpus,
	TaskGenerate:  model.ModelSonnet,
	TaskRevise:    model.ModelSonnet,
	TaskSummarize: model.ModelHaiku,
	TaskClassify:  model.ModelHaiku,
}

// TierForTask returns the model tier for a task.
func TierForTask(t Task) model.Tier {
	switch t {
	case TaskAnalyze, TaskPlan:
		return model.TierThinking
	case TaskSummarize, TaskClassify:
		return model.TierFast
	default:
		return model.TierDefault
	}
}

// NewModelSelector creates a selector wired to the ticket pipeline's
// task-to-tier mapping.
func NewModelSelector(opts ...model.SelectorOption) *model.Selector {
	allOpts := append([]model.SelectorOption{
		model.WithTierFunc(func(task any) model.Tier {
			if t, ok := task.(Task); ok {
				return TierForTask(t)
			}
			return model.TierDefault
		}),
	}, opts...)

	return model.NewSelector(allOpts...)
}

// SelectModel returns the model to run a task on.
func SelectModel(t Task) model.ModelName {
	if m, ok := DefaultModelMap[t]; ok {
		return m
	}
	switch TierForTask(t) {
	case model.TierThinking:
		return model.ModelOpus
	case model.TierFast:
		return model.ModelHaiku
	default:
		return model.ModelSonnet
	}
}
