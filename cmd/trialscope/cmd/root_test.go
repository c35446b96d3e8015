package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/trialscope/configs"
	"github.com/Aman-CERP/trialscope/internal/search"
	"github.com/Aman-CERP/trialscope/internal/service"
	"github.com/Aman-CERP/trialscope/internal/verify"
	"github.com/Aman-CERP/trialscope/pkg/version"
)

// isolate points home and user config at temp dirs so commands neither
// read the developer's config nor write logs into their home.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{
		"TRIALSCOPE_SEARCH_MODE", "TRIALSCOPE_STORE_BACKEND", "TRIALSCOPE_LOCAL_PATH",
		"TRIALSCOPE_ORACLE_PROVIDER", "TRIALSCOPE_TRANSPORT", "TRIALSCOPE_JUDGE_ENABLED",
		"TRIALSCOPE_LOG_LEVEL", "GEMINI_API_KEY",
	} {
		t.Setenv(k, "")
	}
	return t.TempDir()
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	stdout := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	// Given: the root command
	cmd := NewRootCmd()

	// When: listing subcommands
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}

	// Then: every operation has a command
	for _, want := range []string{"search", "ask", "verify", "highlight", "index", "serve", "config", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Version+"\n", out)

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestConfigExampleCmd(t *testing.T) {
	out, err := execute(t, "config", "example")

	require.NoError(t, err)
	assert.Equal(t, configs.Template, out)
}

func TestConfigShowCmd_RedactsSecrets(t *testing.T) {
	// Given: a project config holding a password
	dir := isolate(t)
	writeProjectConfig(t, dir, "store:\n  username: elastic\n  password: hunter2\n")

	// When: showing the effective config
	out, err := execute(t, "--dir", dir, "config", "show")

	// Then: the password is masked
	require.NoError(t, err)
	assert.Contains(t, out, "username: elastic")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "********")
}

func TestConfigShowCmd_InvalidConfig(t *testing.T) {
	dir := isolate(t)
	writeProjectConfig(t, dir, "search:\n  page_size: 1000\n")

	_, err := execute(t, "--dir", dir, "config", "show")

	assert.Error(t, err)
}

func TestConfigInitCmd_Template(t *testing.T) {
	isolate(t)

	out, err := execute(t, "config", "init", "--template")
	require.NoError(t, err)
	assert.Contains(t, out, "Created")

	_, err = execute(t, "config", "init", "--template")
	assert.Error(t, err, "existing config needs --force")
}

func TestQueryOptions_Request(t *testing.T) {
	// Given: filter flags
	opts := queryOptions{
		mode: "Keyword", limit: 5, page: 2, format: "text",
		phases: []string{"phase 3"}, statuses: []string{"recruiting"},
		minEnrollment: 100, maxEnrollment: -1, startAfter: "2020-01-01",
	}

	// When: building the request
	req, err := opts.request("melanoma")

	// Then: pages are 0-based and open bounds stay nil
	require.NoError(t, err)
	assert.Equal(t, search.ModeKeyword, req.Mode)
	assert.Equal(t, 1, req.Page)
	assert.Equal(t, 5, req.PageSize)
	require.NotNil(t, req.Filters)
	require.NotNil(t, req.Filters.Enrollment)
	assert.Equal(t, 100, *req.Filters.Enrollment.Min)
	assert.Nil(t, req.Filters.Enrollment.Max)
	require.NotNil(t, req.Filters.StartDate)
	assert.Equal(t, 2020, req.Filters.StartDate.From.Year())
	assert.Nil(t, req.Filters.StartDate.To)
}

func TestQueryOptions_Request_NoFilters(t *testing.T) {
	opts := queryOptions{limit: 10, page: 1, format: "json", minEnrollment: -1, maxEnrollment: -1}

	req, err := opts.request("asthma")

	require.NoError(t, err)
	assert.Nil(t, req.Filters)
	assert.Equal(t, 0, req.Page)
}

func TestQueryOptions_Request_Invalid(t *testing.T) {
	_, err := (&queryOptions{format: "xml"}).request("q")
	assert.Error(t, err)

	_, err = (&queryOptions{format: "text", minEnrollment: -1, maxEnrollment: -1, startBefore: "01/02/2020"}).request("q")
	assert.Error(t, err)
}

func TestReadAnswer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answer.txt")
	require.NoError(t, os.WriteFile(path, []byte("  NCT00000001 enrolled 500.\n"), 0o600))

	got, err := readAnswer(nil, "", path)
	require.NoError(t, err)
	assert.Equal(t, "NCT00000001 enrolled 500.", got)

	got, err = readAnswer(strings.NewReader("from stdin\n"), "", "-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	_, err = readAnswer(nil, "a", path)
	assert.Error(t, err)
	_, err = readAnswer(nil, "", "")
	assert.Error(t, err)
}

func TestCountRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.jsonl")
	long := `{"nct_id":"NCT3","detailed_description":"` + strings.Repeat("x", 100*1024) + `"}`
	require.NoError(t, os.WriteFile(path, []byte("{\"nct_id\":\"NCT1\"}\n\n{\"nct_id\":\"NCT2\"}\n"+long), 0o600))

	n, err := countRecords(path)

	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

const trialsJSONL = `{"nct_id":"NCT00000001","brief_title":"Pembrolizumab in Advanced Melanoma","phase":"PHASE3","overall_status":"RECRUITING","enrollment":500,"source":"Merck","conditions":[{"condition_name":"Melanoma"}],"interventions":[{"intervention_name":"Pembrolizumab","intervention_type":"DRUG"}]}
{"nct_id":"NCT00000002","brief_title":"Nivolumab After Melanoma Resection","phase":"PHASE2","overall_status":"COMPLETED","enrollment":120,"source":"Bristol-Myers Squibb","conditions":[{"condition_name":"Melanoma"}]}
{"nct_id":"NCT00000003","brief_title":"Dupilumab for Moderate Asthma","phase":"PHASE3","overall_status":"RECRUITING","enrollment":300,"source":"Regeneron","conditions":[{"condition_name":"Asthma"}]}
`

func writeProjectConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".trialscope.yaml"), []byte(content), 0o600))
}

// localProject writes a project that uses the local store and the static
// embedder, so no network service is needed.
func localProject(t *testing.T) string {
	t.Helper()
	dir := isolate(t)
	writeProjectConfig(t, dir, fmt.Sprintf(`store:
  backend: local
  local_path: %s
oracle:
  provider: static
verify:
  judge_enabled: false
server:
  metrics: false
`, filepath.Join(dir, "index")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trials.jsonl"), []byte(trialsJSONL), 0o600))
	return dir
}

func TestSearchCmd_ExportsSpans(t *testing.T) {
	// Given: an indexed local project, then the stdout span exporter enabled
	dir := localProject(t)
	_, err := execute(t, "--dir", dir, "index", filepath.Join(dir, "trials.jsonl"), "--no-embed")
	require.NoError(t, err)
	traces := filepath.Join(dir, "spans", "traces.jsonl")
	f, err := os.OpenFile(filepath.Join(dir, ".trialscope.yaml"), os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = fmt.Fprintf(f, "tracing:\n  exporter: stdout\n  file: %s\n", traces)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// When: searching
	_, err = execute(t, "--dir", dir, "search", "melanoma", "--mode", "keyword")
	require.NoError(t, err)

	// Then: the search span was flushed to the trace file on close
	data, err := os.ReadFile(traces)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Name":"search.Search"`)
}

func TestIndexSearchAsk_LocalStore(t *testing.T) {
	// Given: a local project with three trials indexed
	dir := localProject(t)
	out, err := execute(t, "--dir", dir, "index", filepath.Join(dir, "trials.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 3 trials")

	// When: searching by keyword
	out, err = execute(t, "--dir", dir, "search", "melanoma", "--mode", "keyword", "--format", "json")

	// Then: both melanoma trials come back, and only them
	require.NoError(t, err)
	var res search.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.Total)
	var ids []string
	for _, tr := range res.Trials {
		ids = append(ids, tr.NCTID)
	}
	assert.ElementsMatch(t, []string{"NCT00000001", "NCT00000002"}, ids)

	// When: asking a question with no completion provider
	out, err = execute(t, "--dir", dir, "ask", "Which trials study melanoma?", "--mode", "keyword", "--format", "json")

	// Then: the fallback answer cites retrieved trials and is verified
	require.NoError(t, err)
	var ask service.AskResult
	require.NoError(t, json.Unmarshal([]byte(out), &ask))
	require.NotNil(t, ask.Answer)
	assert.Contains(t, ask.Answer.Text, "NCT0000000")
	assert.NotEmpty(t, ask.AnswerDegraded)
	require.NotNil(t, ask.Verification)
	assert.Empty(t, ask.Verification.InvalidCitations)
}

func TestVerifyCmd_FlagsUnknownCitation(t *testing.T) {
	// Given: trials on disk and an answer citing a trial not among them
	dir := localProject(t)
	_, err := execute(t, "--dir", dir, "index", "--no-embed", filepath.Join(dir, "trials.jsonl"))
	require.NoError(t, err)

	// When: verifying against the file
	out, err := execute(t, "--dir", dir, "verify",
		"--answer", "NCT00000001 and NCT09999999 both test pembrolizumab.",
		"--trials", filepath.Join(dir, "trials.jsonl"),
		"--format", "json")

	// Then: the unknown citation is reported
	require.NoError(t, err)
	var res verify.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Contains(t, res.InvalidCitations, "NCT09999999")
	assert.Contains(t, res.ValidCitations, "NCT00000001")
	assert.NotEmpty(t, res.Issues)
}

func TestVerifyCmd_RequiresOneTrialSource(t *testing.T) {
	dir := localProject(t)

	_, err := execute(t, "--dir", dir, "verify", "--answer", "x")

	assert.Error(t, err)
}

func TestHighlightCmd(t *testing.T) {
	// Given: issues as written by verify --format json
	dir := t.TempDir()
	issues := filepath.Join(dir, "v.json")
	require.NoError(t, os.WriteFile(issues, []byte(`{"issues":[{"id":"i1","severity":"critical","claim":"NCT09999999","sourceData":"","explanation":"not retrieved","span":{"start":0,"end":11},"source":"citation","isOverridden":false}]}`), 0o600))

	// When: rendering without color
	out, err := execute(t, "--no-color", "highlight", "--answer", "NCT09999999 is a trial.", "--issues", issues)

	// Then: the span is marked and the issue listed
	require.NoError(t, err)
	assert.Contains(t, out, "[[NCT09999999]]")
	assert.Contains(t, out, "not retrieved")
}
