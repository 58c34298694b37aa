package orchestrator

import (
	"errors"
	"strings"

	"github.com/lysyi3m/crosspost/app/content"
	"github.com/lysyi3m/crosspost/app/platform"
	"github.com/lysyi3m/crosspost/app/queue"
	"github.com/lysyi3m/crosspost/app/validator"
)

func (r *PlatformResult) fail(pe content.PublishError) {
	r.Status = ResultFailed
	r.Errors = append(r.Errors, pe)
}

func (r *PlatformResult) applyVerdict(v validator.Result) {
	r.Compatible = v.IsCompatible
	r.Score = v.Score
	r.Warnings = v.Warnings
	r.Issues = v.Issues
	r.Suggestions = v.Suggestions

	if v.IsCompatible {
		return
	}
	for _, e := range v.Errors {
		pe := content.PublishError{Code: "validation_failed", Message: issueText(e)}
		if e.Suggestion != "" {
			pe.Suggestions = []string{e.Suggestion}
		}
		r.fail(pe)
	}
	if len(r.Errors) == 0 {
		r.fail(content.PublishError{Code: "validation_failed", Message: "content is not compatible with " + r.Platform})
	}
}

// rejected reports a job the queue refused. The existing item of the pair,
// when known, is attached.
func (r *PlatformResult) rejected(existing *queue.Item, err error) {
	if existing != nil {
		r.QueueItemID = existing.ID
	}
	r.fail(content.ToPublishError(err))
}

func issueText(i platform.Issue) string {
	if i.Field == "" {
		return i.Message
	}
	return i.Field + ": " + i.Message
}

func transformError(name string, tr platform.TransformResult) error {
	var msgs []string
	var suggestions []string
	for _, e := range tr.Errors {
		msgs = append(msgs, issueText(e))
		if e.Suggestion != "" {
			suggestions = append(suggestions, e.Suggestion)
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "adapter produced no content")
	}
	return &content.Error{
		Kind:        content.KindTransformation,
		Code:        "transformation_failed",
		Platform:    name,
		Message:     strings.Join(msgs, "; "),
		Suggestions: suggestions,
	}
}

// outcomeOf turns an adapter result into a queue outcome, keeping the
// recoverability of the result.
func outcomeOf(name string, res content.Result) queue.Outcome {
	if res.Success {
		return queue.Outcome{ExternalID: res.ExternalID, URL: res.URL}
	}

	pe := res.FirstError()
	if pe == nil {
		return queue.Outcome{Err: content.Fatal(name, "publish_failed", errors.New("platform reported failure without details"))}
	}

	kind := content.KindPublishFatal
	if res.Recoverable() {
		kind = content.KindPublishRecoverable
	}
	return queue.Outcome{Err: &content.Error{
		Kind:        kind,
		Code:        pe.Code,
		Platform:    name,
		Message:     pe.Message,
		Suggestions: pe.Suggestions,
	}}
}

// withScheduleLimitation makes sure a platform without native scheduling
// carries the limitation warning of a locally scheduled job.
func withScheduleLimitation(caps platform.Capabilities, warnings []platform.Issue) []platform.Issue {
	if caps.SupportsScheduling {
		return warnings
	}
	for _, w := range warnings {
		if w.Kind == content.KindPlatformLimitation && w.Suggestion == platform.LocalScheduleAlternative {
			return warnings
		}
	}
	return append(warnings, platform.Issue{
		Field:      "publish_at",
		Kind:       content.KindPlatformLimitation,
		Message:    caps.Name + " does not support scheduled publishing",
		Suggestion: platform.LocalScheduleAlternative,
	})
}
