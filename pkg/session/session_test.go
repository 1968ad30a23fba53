package session

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kadirpekel/scout/pkg/agent"
	"github.com/kadirpekel/scout/pkg/config"
	"github.com/kadirpekel/scout/pkg/model"
	"github.com/kadirpekel/scout/pkg/tool"
)

func newSQLiteService(t *testing.T) *SQLService {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	svc, err := NewSQLService(db, "sqlite3")
	require.NoError(t, err)
	return svc
}

func services(t *testing.T) map[string]Service {
	return map[string]Service{
		"memory": InMemoryService(),
		"sqlite": newSQLiteService(t),
	}
}

func toolCallEvent() *agent.Event {
	call := tool.ToolCall{ID: "c1", Name: "get_interactable_elements", Args: map[string]any{}}
	ev := agent.NewEvent("inv-1")
	ev.Author = "discover_agent"
	ev.Message = a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: "looking"}, model.ToolCallPart(call))
	ev.ToolCalls = []agent.ToolCallState{{ID: "c1", Name: call.Name, Args: map[string]any{}, Status: agent.ToolStatusWorking}}
	ev.Usage = &model.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}
	return ev
}

func TestService_Lifecycle(t *testing.T) {
	for name, svc := range services(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := svc.Get(ctx, &GetRequest{AppName: "app", UserID: "u", SessionID: "s"})
			require.ErrorIs(t, err, ErrSessionNotFound)

			created, err := svc.Create(ctx, &CreateRequest{AppName: "app", UserID: "u", SessionID: "s"})
			require.NoError(t, err)
			sess := created.Session
			assert.Equal(t, "s", sess.ID())

			_, err = svc.Create(ctx, &CreateRequest{AppName: "app", UserID: "u", SessionID: "s"})
			require.ErrorIs(t, err, ErrSessionExists)

			user := agent.NewEvent("inv-1")
			user.Author = agent.AuthorUser
			user.Message = a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "Start exploration."})
			require.NoError(t, svc.AppendEvent(ctx, sess, user))

			partial := agent.NewEvent("inv-1")
			partial.Partial = true
			require.NoError(t, svc.AppendEvent(ctx, sess, partial))

			call := toolCallEvent()
			require.NoError(t, svc.AppendEvent(ctx, sess, call))
			assert.Equal(t, 2, sess.Events().Len(), "appends show up in the caller's session")

			got, err := svc.Get(ctx, &GetRequest{AppName: "app", UserID: "u", SessionID: "s"})
			require.NoError(t, err)
			events := got.Session.Events().All()
			require.Len(t, events, 2)
			assert.Equal(t, "Start exploration.", events[0].TextContent())
			assert.Equal(t, a2a.MessageRoleUser, events[0].Message.Role)

			for i, want := range []*agent.Event{user, call} {
				assert.Equal(t, want.ID, events[i].ID)
				assert.Equal(t, want.Author, events[i].Author)
				assert.Equal(t, want.InvocationID, events[i].InvocationID)
			}
			if diff := cmp.Diff(call.ToolCalls, events[1].ToolCalls); diff != "" {
				t.Errorf("tool calls mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(call.Usage, events[1].Usage); diff != "" {
				t.Errorf("usage mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, "looking", events[1].TextContent())
			calls := model.ToolCallsOf(events[1].Message.Parts)
			require.Len(t, calls, 1)
			assert.Equal(t, "get_interactable_elements", calls[0].Name)

			recent, err := svc.Get(ctx, &GetRequest{AppName: "app", UserID: "u", SessionID: "s", NumRecentEvents: 1})
			require.NoError(t, err)
			require.Equal(t, 1, recent.Session.Events().Len())
			assert.Equal(t, call.ID, recent.Session.Events().At(0).ID)

			require.NoError(t, svc.Delete(ctx, &DeleteRequest{AppName: "app", UserID: "u", SessionID: "s"}))
			_, err = svc.Get(ctx, &GetRequest{AppName: "app", UserID: "u", SessionID: "s"})
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestService_AppendToMissingSession(t *testing.T) {
	for name, svc := range services(t) {
		t.Run(name, func(t *testing.T) {
			ghost := newMemorySession("app", "u", "ghost", nil, time.Now())
			err := svc.AppendEvent(context.Background(), ghost, agent.NewEvent("inv"))
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestService_List(t *testing.T) {
	for name, svc := range services(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, req := range []*CreateRequest{
				{AppName: "app", UserID: "a", SessionID: "1"},
				{AppName: "app", UserID: "b", SessionID: "2"},
				{AppName: "other", UserID: "a", SessionID: "3"},
			} {
				_, err := svc.Create(ctx, req)
				require.NoError(t, err)
			}

			all, err := svc.List(ctx, &ListRequest{AppName: "app"})
			require.NoError(t, err)
			assert.Len(t, all.Sessions, 2)

			mine, err := svc.List(ctx, &ListRequest{AppName: "app", UserID: "a"})
			require.NoError(t, err)
			require.Len(t, mine.Sessions, 1)
			assert.Equal(t, "1", mine.Sessions[0].ID())
		})
	}
}

func TestCreate_GeneratesID(t *testing.T) {
	resp, err := InMemoryService().Create(context.Background(), &CreateRequest{AppName: "app", UserID: "u"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Session.ID())
}

func TestNewSQLService_Dialect(t *testing.T) {
	_, err := NewSQLService(nil, "sqlite")
	assert.Error(t, err)

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	_, err = NewSQLService(db, "oracle")
	assert.ErrorContains(t, err, "unsupported dialect")
}

func TestConvertToPostgresPlaceholders(t *testing.T) {
	got := convertToPostgresPlaceholders("SELECT a FROM t WHERE x = ? AND y = ?")
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", got)
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()

	svc, err := NewFromConfig(ctx, config.StorageConfig{Backend: config.BackendInMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &inMemoryService{}, svc)

	sqlCfg := config.StorageConfig{Backend: config.BackendSQLite, Database: filepath.Join(t.TempDir(), "scout.db")}
	_, err = NewFromConfig(ctx, sqlCfg, nil)
	assert.ErrorContains(t, err, "DBPool is required")

	pool := config.NewDBPool()
	t.Cleanup(func() { _ = pool.Close() })
	svc, err = NewFromConfig(ctx, sqlCfg, pool)
	require.NoError(t, err)
	assert.IsType(t, &SQLService{}, svc)
}
