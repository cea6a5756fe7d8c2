// Package app provides the main Matchday application
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"maunium.net/go/mautrix/event"

	"github.com/matchdaybot/matchday/common/redact"
	"github.com/matchdaybot/matchday/common/trace"
	"github.com/matchdaybot/matchday/internal/matchday/chat"
	"github.com/matchdaybot/matchday/internal/matchday/commands"
	"github.com/matchdaybot/matchday/internal/matchday/entity"
	"github.com/matchdaybot/matchday/internal/matchday/formatter"
	"github.com/matchdaybot/matchday/internal/matchday/gateway"
	"github.com/matchdaybot/matchday/internal/matchday/matrix"
	"github.com/matchdaybot/matchday/internal/matchday/memory"
	"github.com/matchdaybot/matchday/internal/matchday/pipeline"
	"github.com/matchdaybot/matchday/internal/matchday/reasoning"
	"github.com/matchdaybot/matchday/internal/matchday/registry"
	"github.com/matchdaybot/matchday/internal/matchday/store"
	"github.com/matchdaybot/matchday/internal/matchday/tools"
)

// Config holds application configuration
type Config struct {
	DatabasePath string
	Matrix       matrix.Config

	// MainRoom is the Matrix room ID of the whole-team chat. Required; team
	// announcements are posted here.
	MainRoom string
	// LeadershipRooms are the Matrix room IDs restricted to team
	// administrators.
	LeadershipRooms []string
	// PrivateChats are additional room IDs treated as one-on-one chats with
	// the bot. Direct chats must be registered here (or already present in
	// the database); messages from unregistered rooms are rejected.
	PrivateChats []string

	// Reasoning configures the LLM backend. When APIKey is empty the app
	// refuses to start; Matchday has no keyword-only fallback mode.
	Reasoning reasoning.Config

	// RateLimit is the maximum number of pipeline runs per sender per
	// minute. Defaults to reasoning.DefaultRateLimit (20) when zero.
	RateLimit int
	// TokenBudget is the maximum number of LLM tokens per sender per UTC
	// day. Defaults to reasoning.DefaultTokenBudget (50 000) when zero.
	TokenBudget int

	// ExecuteBudget is the wall-clock budget for one handler execution,
	// including every backend round and tool call. Defaults to
	// gateway.DefaultBudget when zero.
	ExecuteBudget time.Duration

	// MemoryCooldown is the inactivity window after which a conversation is
	// sealed and dropped from the short-term buffer. Defaults to 15 minutes
	// when zero.
	MemoryCooldown time.Duration

	// HTTPAddr is the TCP address for the optional health/status HTTP server
	// (e.g. ":8080"). When empty the server is disabled.
	HTTPAddr string
}

// App is the main Matchday application
type App struct {
	config       *Config
	store        *store.Store
	matrix       *matrix.Client
	catalog      *registry.Registry
	pipeline     *pipeline.Pipeline
	tracker      *memory.Tracker
	limiter      *reasoning.RateLimiter
	budget       *reasoning.TokenBudget
	healthServer *HealthServer

	// sessions serialises pipeline runs per (chat, sender) pair so a
	// sender's messages in one room are processed in arrival order.
	sessionsMu sync.Mutex
	sessions   map[string]*sync.Mutex
}

// commandCatalog adapts the handler registry to the tool layer's command
// listing, keeping the tools package free of a registry import.
type commandCatalog struct {
	catalog *registry.Registry
}

func (c *commandCatalog) UsableCommands(chatType chat.Type) []tools.CommandInfo {
	bindings := c.catalog.CommandsFor(chatType)
	out := make([]tools.CommandInfo, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, tools.CommandInfo{
			Name:        b.Name,
			Description: b.Description,
			Usage:       b.Usage,
		})
	}
	return out
}

// teamAnnouncer posts announcements to the main team room.
type teamAnnouncer struct {
	matrix *matrix.Client
	roomID string
}

func (t *teamAnnouncer) Announce(_ context.Context, text string) error {
	return t.matrix.SendMessage(t.roomID, text)
}

// storeRoles answers role lookups from the roster tables.
type storeRoles struct {
	store *store.Store
}

func (r *storeRoles) Roles(ctx context.Context, senderID string) (entity.Roles, error) {
	isPlayer, err := r.store.IsActivePlayer(ctx, senderID)
	if err != nil {
		return entity.Roles{}, err
	}
	isAdmin, err := r.store.IsAdministrator(ctx, senderID)
	if err != nil {
		return entity.Roles{}, err
	}
	return entity.Roles{IsPlayer: isPlayer, IsAdministrator: isAdmin}, nil
}

// New creates a new Matchday application
func New(config *Config) (*App, error) {
	if config.MainRoom == "" {
		return nil, fmt.Errorf("main room is required")
	}
	if config.Reasoning.APIKey == "" {
		return nil, fmt.Errorf("reasoning backend API key is required")
	}

	// Load and validate the handler registry first; a misconfigured
	// registry must fail startup, not the first message.
	catalog, err := registry.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to load handler registry: %w", err)
	}

	slog.Info("opening database", "path", config.DatabasePath)
	st, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Seed the chat directory from configuration. Upserts are idempotent so
	// restarts with the same room list are harmless.
	if err := seedChats(context.Background(), st, config); err != nil {
		st.Close()
		return nil, err
	}

	// Initialize Matrix client.
	// Inject the DB so the client can persist the sync token across restarts.
	matrixCfg := config.Matrix
	matrixCfg.DB = st.DB()
	matrixCfg.Rooms = append(append([]string{config.MainRoom}, config.LeadershipRooms...), config.PrivateChats...)
	slog.Info("connecting to Matrix", "homeserver", matrixCfg.Homeserver)
	matrixClient, err := matrix.New(&matrixCfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize Matrix client: %w", err)
	}

	provider := reasoning.New(config.Reasoning)
	slog.Info("reasoning backend ready", "model", config.Reasoning.Model)

	invoker := tools.New(st, &commandCatalog{catalog: catalog},
		&teamAnnouncer{matrix: matrixClient, roomID: config.MainRoom}, nil)

	logger := slog.Default()
	gw := gateway.New(provider, catalog, invoker, logger,
		gateway.WithBudget(config.ExecuteBudget))

	tracker := memory.NewTracker(memory.TrackerConfig{Cooldown: config.MemoryCooldown})
	history := memory.NewHistory(tracker)

	timeouts := pipeline.DefaultTimeouts
	if config.ExecuteBudget > 0 {
		timeouts.Execute = config.ExecuteBudget + 5*time.Second
	}
	pipe := pipeline.New(catalog, st, &storeRoles{store: st}, gw,
		formatter.New(), history, timeouts, logger)

	app := &App{
		config:   config,
		store:    st,
		matrix:   matrixClient,
		catalog:  catalog,
		pipeline: pipe,
		tracker:  tracker,
		limiter:  reasoning.NewRateLimiter(config.RateLimit, 0),
		budget:   reasoning.NewTokenBudget(config.TokenBudget),
		sessions: make(map[string]*sync.Mutex),
	}

	if config.HTTPAddr != "" {
		app.healthServer = NewHealthServer(config.HTTPAddr, st)
	}

	return app, nil
}

// seedChats registers the configured rooms in the chat directory.
func seedChats(ctx context.Context, st *store.Store, config *Config) error {
	if err := st.UpsertChat(ctx, config.MainRoom, chat.TypeMain); err != nil {
		return fmt.Errorf("failed to register main room: %w", err)
	}
	for _, roomID := range config.LeadershipRooms {
		if err := st.UpsertChat(ctx, roomID, chat.TypeLeadership); err != nil {
			return fmt.Errorf("failed to register leadership room %s: %w", roomID, err)
		}
	}
	for _, roomID := range config.PrivateChats {
		if err := st.UpsertChat(ctx, roomID, chat.TypePrivate); err != nil {
			return fmt.Errorf("failed to register private chat %s: %w", roomID, err)
		}
	}
	return nil
}

// Run starts the application and blocks until an interrupt signal.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start health/status HTTP server if configured.
	if a.healthServer != nil {
		if err := a.healthServer.Start(ctx); err != nil {
			slog.Warn("health server failed to start; continuing without it", "err", err)
		}
	}

	// Start Matrix client
	slog.Info("starting Matrix sync")
	if err := a.matrix.Start(ctx, a.handleMessage); err != nil {
		return fmt.Errorf("failed to start Matrix client: %w", err)
	}

	// Periodically drop conversations past their cooldown so a sender's
	// stale context never bleeds into a new exchange.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				sealed := a.tracker.SealExpired(now)
				if len(sealed) > 0 {
					slog.Debug("sealed expired conversations", "count", len(sealed))
				}
			}
		}
	}()

	a.matrix.SendNotice(a.config.MainRoom, "⚽ Matchday is online. Type /help to see what I can do.")

	slog.Info("Matchday is running; press Ctrl+C to stop")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop stops the Matchday application
func (a *App) Stop() {
	slog.Info("stopping Matrix client")
	a.matrix.Stop()

	if a.healthServer != nil {
		slog.Info("stopping health server")
		a.healthServer.Stop()
	}

	slog.Info("closing database")
	a.store.Close()
}

// handleMessage processes incoming Matrix messages
func (a *App) handleMessage(ctx context.Context, evt *event.Event) {
	msgContent := evt.Content.AsMessage()
	if msgContent == nil {
		return
	}

	roomID := evt.RoomID.String()
	sender := evt.Sender.String()
	text := msgContent.Body

	// Secret-in-chat guardrail: refuse to process any message that appears
	// to contain a sensitive credential, before it reaches the backend or
	// the audit trail. For command messages only named vendor patterns are
	// checked so quoted command arguments are not falsely rejected.
	isCmd := strings.HasPrefix(text, "/")
	if commands.LooksLikeSecret(text, isCmd) {
		a.reply(roomID, commands.SecretGuardrailMessage)
		return
	}

	// Serialise per (chat, sender) so one sender's messages in a room are
	// answered in the order they arrived. Different pairs run concurrently.
	lock := a.sessionLock(roomID, sender)
	lock.Lock()
	defer lock.Unlock()

	if !a.limiter.Allow(sender) {
		slog.Warn("rate limit exceeded", "sender", sender, "chat", roomID)
		a.reply(roomID, reasoning.RateLimitMessage)
		return
	}
	if !a.budget.Allow(sender) {
		slog.Warn("token budget exhausted", "sender", sender, "chat", roomID)
		a.reply(roomID, reasoning.TokenBudgetExceededMessage)
		return
	}

	// Assign the trace ID here so the pipeline run and the audit entry
	// share it.
	ctx = trace.WithTraceID(ctx, trace.GenerateID())

	ts := time.UnixMilli(evt.Timestamp)
	res := a.pipeline.Run(ctx, chat.InboundMessage{
		SenderID:  sender,
		ChatID:    roomID,
		Text:      text,
		Timestamp: ts,
	})

	if res.TokensUsed > 0 {
		a.budget.RecordUsage(sender, res.TokensUsed)
	}

	a.audit(ctx, sender, roomID, res)

	if res.Reply != "" {
		a.reply(roomID, res.Reply)
	}
}

// audit records the run outcome; failures are logged, never surfaced.
func (a *App) audit(ctx context.Context, sender, roomID string, res pipeline.Result) {
	entry := &store.AuditEntry{
		TraceID:   trace.FromContext(ctx),
		ActorMXID: sender,
		ChatID:    roomID,
		Action:    res.Action,
		Status:    string(res.Status),
		ToolCalls: res.ToolCallsMade,
	}
	if res.Detail != "" {
		// Backend errors can echo request details; strip credentials before
		// the text reaches the audit table.
		detail := redact.String(res.Detail,
			a.config.Reasoning.APIKey, a.config.Matrix.AccessToken)
		entry.ErrorMessage = sql.NullString{String: detail, Valid: true}
	}
	if err := a.store.WriteAudit(ctx, entry); err != nil {
		slog.Error("failed to write audit entry", "err", err)
	}
}

// reply sends a message with Markdown rendered for HTML-capable clients.
func (a *App) reply(roomID, text string) {
	htmlBody := markdownToHTML(text)
	if err := a.matrix.SendFormattedMessage(roomID, htmlBody, text); err != nil {
		slog.Error("failed to send response", "room", roomID, "err", err)
	}
}

// sessionLock returns the mutex for a (chat, sender) pair, creating it on
// first use. Locks are never removed; the pair space is small.
func (a *App) sessionLock(roomID, sender string) *sync.Mutex {
	a.sessionsMu.Lock()
	defer a.sessionsMu.Unlock()
	key := roomID + "\x00" + sender
	lock, ok := a.sessions[key]
	if !ok {
		lock = &sync.Mutex{}
		a.sessions[key] = lock
	}
	return lock
}

// markdownToHTML converts the small subset of Markdown produced by handler
// replies into HTML suitable for a Matrix m.text event with
// format=org.matrix.custom.html.
//
// Supported constructs (in order of processing):
//   - Fenced code blocks  ```…```  → <pre><code>…</code></pre>
//   - Inline code  `…`             → <code>…</code>
//   - Bold  **…**                  → <strong>…</strong>
//   - Newlines                     → <br/>
func markdownToHTML(md string) string {
	// Process fenced code blocks first so their content is not touched by
	// subsequent inline passes.
	var out strings.Builder
	lines := strings.Split(md, "\n")
	inCode := false
	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			if !inCode {
				out.WriteString("<pre><code>")
				inCode = true
			} else {
				out.WriteString("</code></pre>")
				inCode = false
			}
			continue
		}
		if inCode {
			// Escape HTML entities inside code blocks.
			escaped := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(line)
			out.WriteString(escaped)
			out.WriteString("\n")
		} else {
			out.WriteString(line)
			out.WriteString("\n")
		}
	}
	result := out.String()

	// Inline code: `…`
	result = replaceDelimited(result, "`", "<code>", "</code>")

	// Bold: **…**
	result = replaceDelimited(result, "**", "<strong>", "</strong>")

	// Convert bare newlines to <br/>.
	result = strings.ReplaceAll(result, "\n", "<br/>")

	return result
}

// replaceDelimited replaces occurrences of delim…delim with open+content+close.
// Only complete pairs are replaced; an unmatched opener is left as-is.
func replaceDelimited(s, delim, open, close string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, delim)
		if start == -1 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start+len(delim):], delim)
		if end == -1 {
			b.WriteString(s)
			break
		}
		end += start + len(delim) // absolute index of closing delim
		b.WriteString(s[:start])
		b.WriteString(open)
		b.WriteString(s[start+len(delim) : end])
		b.WriteString(close)
		s = s[end+len(delim):]
	}
	return b.String()
}
