package oracle

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/trialscope/internal/trial"
)

// MaxPromptTrials bounds how many trial digests go into one prompt.
const MaxPromptTrials = 10

const analyzeTemplate = `You extract structured search hints from a clinical trial search query.
Return only a JSON object with these optional string fields:
"condition", "phase", "status", "location", "sponsor", "intervention",
"ageGroup", "enrollmentSize", and "keywords" (an array of strings).
Use phase values like PHASE1, PHASE2, PHASE3, PHASE4, EARLY_PHASE1.
Use status values like RECRUITING, COMPLETED, ACTIVE_NOT_RECRUITING, TERMINATED.
Omit a field when the query does not mention it.

Query: %s`

const answerTemplate = `You answer questions about clinical trials using only the trials listed below.
Cite trials by their NCT identifier. Do not mention trials that are not listed.
Return only a JSON object: {"answer": "<2-4 sentence answer>", "citations": ["NCT..."]}.

Question: %s

Trials (%d retrieved, showing %d):
%s`

const judgeTemplate = `You are fact-checking an answer about clinical trials against source data.
Compare every factual claim in the answer with the trial records and statistics below.
Return only a JSON array. Each element is an object:
{"severity": "critical|warning|info", "claim": "<exact text from the answer>",
 "sourceData": "<what the records say>", "explanation": "<why it is wrong>",
 "field": "<record field, optional>"}
Return [] when every claim is supported.

Answer:
%s

Cited trials:
%s

Statistics:
%s`

const explainTemplate = `In one short paragraph, explain why this clinical trial matches the search query.
Mention only facts present in the record.

Query: %s

Trial: %s

Matched on: %s`

// AnalyzePrompt builds the query analysis prompt.
func AnalyzePrompt(query string) string {
	return fmt.Sprintf(analyzeTemplate, query)
}

// AnswerPrompt builds the narrative answer prompt from the top trials.
func AnswerPrompt(query string, trials []trial.Trial) string {
	shown := trials
	if len(shown) > MaxPromptTrials {
		shown = shown[:MaxPromptTrials]
	}
	return fmt.Sprintf(answerTemplate, query, len(trials), len(shown), digests(shown))
}

// JudgePrompt builds the fact-checking prompt.
func JudgePrompt(answer string, cited []trial.Trial, stats string) string {
	if len(cited) > MaxPromptTrials {
		cited = cited[:MaxPromptTrials]
	}
	return fmt.Sprintf(judgeTemplate, answer, digests(cited), stats)
}

// ExplainPrompt builds the match explanation prompt.
func ExplainPrompt(query string, t *trial.Trial, reasons []string) string {
	matched := "general relevance"
	if len(reasons) > 0 {
		matched = strings.Join(reasons, "; ")
	}
	return fmt.Sprintf(explainTemplate, query, t.Digest(), matched)
}

func digests(trials []trial.Trial) string {
	if len(trials) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for i := range trials {
		sb.WriteString("- ")
		sb.WriteString(trials[i].Digest())
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
