package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/scout/pkg/browser"
	"github.com/kadirpekel/scout/pkg/config"
	"github.com/kadirpekel/scout/pkg/discovery"
	"github.com/kadirpekel/scout/pkg/model"
	"github.com/kadirpekel/scout/pkg/report"
	"github.com/kadirpekel/scout/pkg/session"
	"github.com/kadirpekel/scout/pkg/tool"
)

type fakePage struct {
	url    string
	closed atomic.Bool
}

func (p *fakePage) Navigate(_ context.Context, url string) error { p.url = url; return nil }
func (p *fakePage) URL(context.Context) (string, error)          { return p.url, nil }
func (p *fakePage) Title(context.Context) (string, error)        { return "Example Domain", nil }
func (p *fakePage) Screenshot(context.Context) ([]byte, error)   { return []byte("\x89PNG"), nil }
func (p *fakePage) Close() error                                 { p.closed.Store(true); return nil }

func (p *fakePage) Evaluate(_ context.Context, _ string, out any) error {
	data := `[{"tag":"a","type":"","text":"More information...","disabled":false}]`
	return json.Unmarshal([]byte(data), out)
}

// observerLLM calls all three tools, then echoes what they returned as the
// observation.
type observerLLM struct {
	mu    sync.Mutex
	calls int
	final string
}

func (m *observerLLM) Name() string             { return "observer" }
func (m *observerLLM) Provider() model.Provider { return model.ProviderUnknown }
func (m *observerLLM) Close() error             { return nil }

func (m *observerLLM) GenerateContent(_ context.Context, req *model.Request, _ bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		m.mu.Lock()
		m.calls++
		first := m.calls == 1
		m.mu.Unlock()

		if first {
			calls := []tool.ToolCall{
				{ID: "1", Name: discovery.ToolTakeScreenshot},
				{ID: "2", Name: discovery.ToolGetPageMetadata},
				{ID: "3", Name: discovery.ToolGetInteractableElements},
			}
			parts := make([]a2a.Part, 0, len(calls))
			for _, c := range calls {
				parts = append(parts, model.ToolCallPart(c))
			}
			yield(&model.Response{
				Content:   &model.Content{Role: a2a.MessageRoleAgent, Parts: parts},
				ToolCalls: calls,
			}, nil)
			return
		}

		text := m.final
		if text == "" {
			text = observationFrom(req)
		}
		yield(&model.Response{
			Content:      &model.Content{Role: a2a.MessageRoleAgent, Parts: []a2a.Part{a2a.TextPart{Text: text}}},
			TurnComplete: true,
		}, nil)
	}
}

func observationFrom(req *model.Request) string {
	obs := map[string]any{}
	last := req.Messages[len(req.Messages)-1]
	for _, r := range model.ToolResultsOf(last.Parts) {
		switch r.Name {
		case discovery.ToolTakeScreenshot:
			obs["screenshot"] = r.Content["path"]
		case discovery.ToolGetPageMetadata:
			obs["metadata"] = r.Content
		case discovery.ToolGetInteractableElements:
			obs["elements"] = r.Content["elements"]
		}
	}
	b, _ := json.Marshal(obs)
	return "```json\n" + string(b) + "\n```"
}

func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{}
	cfg.Target.WebsiteURL = "https://example.com/"
	cfg.Target.AssetsDir = t.TempDir()
	cfg.LLM.GoogleAPIKey = "test"
	cfg.SetDefaults()
	return cfg
}

func newTestService(t *testing.T, llm model.LLM, page *fakePage) (*Service, *config.Config) {
	cfg := testConfig(t)
	svc, err := New(cfg, Options{
		NewModel: func(config.LLMConfig) (model.LLM, error) { return llm, nil },
		NewPage:  func(browser.Options) browser.Page { return page },
	})
	require.NoError(t, err)
	return svc, cfg
}

func TestDiscover(t *testing.T) {
	page := &fakePage{}
	svc, cfg := newTestService(t, &observerLLM{}, page)

	res, err := svc.Discover(context.Background(), Request{})
	require.NoError(t, err)
	assert.True(t, page.closed.Load(), "browser is closed after the run")

	rep := res.Report
	require.NotNil(t, rep.Observation)
	assert.Empty(t, rep.ParseError)
	assert.Equal(t, "example.com", rep.Host)
	assert.Equal(t, "Example Domain", rep.Observation.Metadata["title"])
	require.Len(t, rep.Observation.Elements, 1)
	assert.Equal(t, discovery.ScoreAction, rep.Observation.Elements[0].Score)
	assert.Equal(t, res.Output, rep.Raw)

	shot := filepath.Join(cfg.Target.AssetsDir, "example.com", discovery.ScreenshotFile)
	assert.FileExists(t, shot)
	assert.Equal(t, filepath.Join(cfg.Target.AssetsDir, "example.com", report.FileName), res.ReportPath)
	assert.FileExists(t, res.ReportPath)

	stored, err := svc.Reports().Get(context.Background(), rep.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.ID, stored.ID)
}

func TestDiscover_UnparsableOutput(t *testing.T) {
	page := &fakePage{}
	svc, cfg := newTestService(t, &observerLLM{final: "I looked at the page."}, page)

	res, err := svc.Discover(context.Background(), Request{URL: "https://example.org/a"})
	require.NoError(t, err)
	assert.Nil(t, res.Report.Observation)
	assert.Contains(t, res.Report.ParseError, discovery.ErrNoJSON.Error())
	assert.Equal(t, "I looked at the page.", res.Output)

	data, err := os.ReadFile(filepath.Join(cfg.Target.AssetsDir, "example.org", report.FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "I looked at the page.")
}

func TestDiscover_HostComesFromPageNotModel(t *testing.T) {
	page := &fakePage{}
	llm := &observerLLM{final: `{"metadata":{"url":"http://../"},"elements":[]}`}
	svc, cfg := newTestService(t, llm, page)

	res, err := svc.Discover(context.Background(), Request{})
	require.NoError(t, err)
	require.NotNil(t, res.Report.Observation)
	assert.Equal(t, "example.com", res.Report.Host)
	assert.Equal(t, filepath.Join(cfg.Target.AssetsDir, "example.com", report.FileName), res.ReportPath)

	_, err = os.Stat(filepath.Join(filepath.Dir(cfg.Target.AssetsDir), report.FileName))
	assert.True(t, os.IsNotExist(err))
}

func TestDiscover_MissingURL(t *testing.T) {
	svc, cfg := newTestService(t, &observerLLM{}, &fakePage{})
	cfg.Target.WebsiteURL = ""

	_, err := svc.Discover(context.Background(), Request{})
	assert.ErrorIs(t, err, config.ErrMissingURL)

	_, err = svc.Discover(context.Background(), Request{URL: "ftp://example.com"})
	assert.ErrorContains(t, err, "scheme must be http or https")
}

type failingLLM struct{ observerLLM }

func (m *failingLLM) GenerateContent(context.Context, *model.Request, bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		yield(nil, errors.New("quota exceeded"))
	}
}

func TestDiscover_ModelError(t *testing.T) {
	page := &fakePage{}
	svc, _ := newTestService(t, &failingLLM{}, page)

	_, err := svc.Discover(context.Background(), Request{})
	assert.ErrorContains(t, err, "quota exceeded")
	assert.True(t, page.closed.Load())

	list, err := svc.Reports().List(context.Background(), report.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDiscover_SessionsPersist(t *testing.T) {
	sessions := session.InMemoryService()
	cfg := testConfig(t)
	svc, err := New(cfg, Options{
		Sessions: sessions,
		NewModel: func(config.LLMConfig) (model.LLM, error) { return &observerLLM{}, nil },
		NewPage:  func(browser.Options) browser.Page { return &fakePage{} },
	})
	require.NoError(t, err)

	_, err = svc.Discover(context.Background(), Request{SessionID: "fixed"})
	require.NoError(t, err)

	got, err := sessions.Get(context.Background(), &session.GetRequest{
		AppName: cfg.Agent.AppName, UserID: cfg.Agent.UserID, SessionID: "fixed",
	})
	require.NoError(t, err)
	// user prompt, tool calls, tool results, answer
	assert.Equal(t, 4, got.Session.Events().Len())
}

func TestUpdateConfig(t *testing.T) {
	svc, cfg := newTestService(t, &observerLLM{}, &fakePage{})
	next := *cfg
	next.LLM.Model = "gemini-2.5-pro"
	svc.UpdateConfig(&next)
	assert.Equal(t, "gemini-2.5-pro", svc.Config().LLM.Model)
}

func TestNewModel(t *testing.T) {
	_, err := NewModel(config.LLMConfig{})
	assert.ErrorContains(t, err, "no LLM provider")

	_, err = NewModel(config.LLMConfig{Provider: "anthropic"})
	assert.ErrorContains(t, err, "unknown LLM provider")

	llm, err := NewModel(config.LLMConfig{Provider: config.ProviderOpenAI, OpenAIKey: "k", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, model.ProviderOpenAI, llm.Provider())
	assert.Equal(t, "gpt-4o-mini", llm.Name())
}
