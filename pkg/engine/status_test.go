package engine

import "testing"

func TestSummarize(t *testing.T) {
	tests := []struct {
		name  string
		steps []BatchStep
		want  BatchStatus
	}{
		{
			"all succeeded",
			[]BatchStep{{Status: StepSucceeded}, {Status: StepSucceeded}},
			BatchAllSucceeded,
		},
		{
			"mixed",
			[]BatchStep{{Status: StepSucceeded}, {Status: StepFailed}},
			BatchPartialSuccess,
		},
		{
			"all failed",
			[]BatchStep{{Status: StepFailed}, {Status: StepFailed}},
			BatchAllFailed,
		},
		{
			"skipped steps do not count as failures",
			[]BatchStep{{Status: StepSucceeded}, {Status: StepSkipped}},
			BatchAllSucceeded,
		},
		{
			"failure then skipped",
			[]BatchStep{{Status: StepFailed}, {Status: StepSkipped}},
			BatchAllFailed,
		},
		{
			"aborted step forces aborted status",
			[]BatchStep{{Status: StepSucceeded}, {Status: StepAborted}},
			BatchAborted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := summarize(tt.steps); got != tt.want {
				t.Errorf("summarize = %s, want %s", got, tt.want)
			}
		})
	}
}
