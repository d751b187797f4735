// Package classifier implements the pure, deterministic Task Classifier
// (§4.1): prompt text in, TaskComplexity out. It never fails; a malformed
// prompt yields the neutral default complexity.
package classifier

// TaskType categorizes the kind of work a prompt is asking for.
type TaskType string

const (
	TaskCodeGeneration   TaskType = "code_generation"
	TaskExplanation      TaskType = "explanation"
	TaskAnalysis         TaskType = "analysis"
	TaskCreative         TaskType = "creative"
	TaskSummarization    TaskType = "summarization"
	TaskPlanning         TaskType = "planning"
	TaskQuestionAnswering TaskType = "question_answering"
	TaskTranslation      TaskType = "translation"
	TaskMath             TaskType = "math"
	TaskTechnical        TaskType = "technical"
	TaskResearch         TaskType = "research"
	TaskConversation     TaskType = "conversation"
)

// reasoningRequiredTypes are the task types for which reasoning is always
// considered required, regardless of whether a reasoning indicator word
// appears in the prompt.
var reasoningRequiredTypes = map[TaskType]bool{
	TaskAnalysis:       true,
	TaskResearch:       true,
	TaskCodeGeneration: true,
	TaskPlanning:       true,
	TaskExplanation:    true,
}

// TaskComplexity is the classifier's sole output: a derived, immutable
// scoring of one prompt.
type TaskComplexity struct {
	Score                   float64  `json:"score"`
	ReasoningRequired       bool     `json:"reasoning_required"`
	TaskType                TaskType `json:"task_type"`
	Topics                  []string `json:"topics"`
	EstimatedResponseTokens int      `json:"estimated_response_tokens"`
}

// defaultComplexity is returned for a malformed/empty prompt. The classifier
// has no failure mode: it always returns a TaskComplexity.
func defaultComplexity() TaskComplexity {
	return TaskComplexity{
		Score:                   0.5,
		ReasoningRequired:       false,
		TaskType:                TaskConversation,
		Topics:                  []string{"general"},
		EstimatedResponseTokens: 150,
	}
}
