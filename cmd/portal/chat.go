package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	portal "github.com/campus-portal/portal/sdk/golang"
)

// ============================================================================
// Flag variables
// ============================================================================

var (
	// chat conversations
	chatConversationsSearch string
	chatConversationsJSON   bool

	// chat messages
	chatMessagesLimit int
	chatMessagesJSON  bool

	// chat send
	chatSendJSON bool

	// chat create
	chatCreateParticipants string
	chatCreateTitle        string
	chatCreateJSON         bool

	// chat users
	chatUsersJSON bool

	// chat watch
	chatWatchConversation string
	chatWatchMetricsAddr  string
	chatWatchConvPoll     time.Duration
	chatWatchMsgPoll      time.Duration
)

// ============================================================================
// Root chat command
// ============================================================================

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Portal chat commands",
	Long:  "Interact with the portal chat: list conversations, read and send messages, create or delete conversations, and watch for new messages.",
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func printMessage(m portal.Message) {
	ts := m.Timestamp
	if t, err := time.Parse(time.RFC3339Nano, m.Timestamp); err == nil {
		ts = t.Local().Format("2006-01-02 15:04")
	}
	fmt.Printf("  [%s] %s: %s\n", ts, authorLabel(m), m.Content)
}

// ============================================================================
// chat conversations
// ============================================================================

var chatConversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := getSession()
		defer s.log.Sync()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		all, err := s.client.Chat().Conversations.List(ctx)
		if err != nil {
			return apiError("list conversations", err)
		}
		conversations := portal.FilterConversations(all, chatConversationsSearch)

		if chatConversationsJSON {
			return printJSON(conversations)
		}
		if len(conversations) == 0 {
			fmt.Println("No conversations found.")
			return nil
		}
		for _, c := range conversations {
			preview := ""
			if c.LastMessage != nil {
				preview = " - " + truncate(c.LastMessage.Content, 40)
			}
			fmt.Printf("  %s: %s%s\n", c.ID, titleOf(c), preview)
		}
		return nil
	},
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// ============================================================================
// chat messages
// ============================================================================

var chatMessagesCmd = &cobra.Command{
	Use:   "messages <conversation-id>",
	Short: "Show the message history of a conversation and mark it read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conversationID := portal.ServerID(args[0])
		s := getSession()
		defer s.log.Sync()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		chat := s.client.Chat()
		messages, err := chat.Messages.List(ctx, conversationID)
		if err != nil {
			return apiError("list messages", err)
		}
		if err := chat.Messages.MarkAllRead(ctx, conversationID); err != nil {
			s.log.Debug("mark read failed", zap.Error(err))
		}

		if chatMessagesLimit > 0 && len(messages) > chatMessagesLimit {
			messages = messages[len(messages)-chatMessagesLimit:]
		}
		if chatMessagesJSON {
			return printJSON(messages)
		}
		if len(messages) == 0 {
			fmt.Println("No messages yet.")
			return nil
		}
		for _, m := range messages {
			printMessage(m)
		}
		return nil
	},
}

// ============================================================================
// chat send
// ============================================================================

var chatSendCmd = &cobra.Command{
	Use:   "send <conversation-id> <message>",
	Short: "Send a message to a conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		conversationID := portal.ServerID(args[0])
		text := args[1]
		if strings.TrimSpace(text) == "" {
			return errors.New("message is empty")
		}
		s := getSession()
		defer s.log.Sync()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		engine := s.engine(portal.SyncOptions{})
		engine.Select(conversationID)
		if err := engine.SendMessage(ctx, text); err != nil {
			return apiError("send message", err)
		}

		messages := engine.ActiveMessages()
		if len(messages) == 0 {
			return errors.New("send message: no confirmed message")
		}
		sent := messages[len(messages)-1]
		if chatSendJSON {
			return printJSON(sent)
		}
		fmt.Printf("Message sent to conversation %s\n", conversationID)
		fmt.Printf("  Message ID: %s\n", sent.ID)
		fmt.Printf("  Content:    %s\n", sent.Content)
		return nil
	},
}

// ============================================================================
// chat create
// ============================================================================

var chatCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a conversation",
	Long:  "Create a direct conversation or, with more than one participant, a group.\nThe title is only used for groups.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := parseIDs(chatCreateParticipants)
		if len(ids) == 0 {
			return errors.New("--participants is required")
		}
		s := getSession()
		defer s.log.Sync()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		picker := s.engine(portal.SyncOptions{}).NewUserPicker()
		for _, id := range ids {
			if !containsID(picker.Selected(), id) {
				picker.Toggle(id)
			}
		}
		picker.SetGroupTitle(chatCreateTitle)

		conv, err := picker.Create(ctx)
		if err != nil {
			return apiError("create conversation", err)
		}
		if chatCreateJSON {
			return printJSON(conv)
		}
		fmt.Printf("Conversation created: %s (%s)\n", conv.ID, titleOf(*conv))
		return nil
	},
}

func containsID(ids []portal.ServerID, id portal.ServerID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// ============================================================================
// chat delete
// ============================================================================

var chatDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conversationID := portal.ServerID(args[0])
		s := getSession()
		defer s.log.Sync()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		engine := s.engine(portal.SyncOptions{})
		engine.Select(conversationID)
		if err := engine.DeleteConversation(ctx); err != nil {
			return apiError("delete conversation", err)
		}
		fmt.Printf("Conversation %s deleted.\n", conversationID)
		return nil
	},
}

// ============================================================================
// chat users
// ============================================================================

var chatUsersCmd = &cobra.Command{
	Use:   "users [query]",
	Short: "Search users to start a conversation with",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		s := getSession()
		defer s.log.Sync()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		users, err := s.client.Chat().Users.Search(ctx, query)
		if err != nil {
			return apiError("search users", err)
		}
		filtered := users[:0]
		for _, u := range users {
			if u.ID.String() != s.cfg.Auth.UserID {
				filtered = append(filtered, u)
			}
		}

		if chatUsersJSON {
			return printJSON(filtered)
		}
		if len(filtered) == 0 {
			fmt.Println("No users found.")
			return nil
		}
		for _, u := range filtered {
			email := ""
			if u.Email != "" {
				email = " <" + u.Email + ">"
			}
			fmt.Printf("  %s: %s%s\n", u.ID, u.Name, email)
		}
		return nil
	},
}

// ============================================================================
// chat watch
// ============================================================================

var chatWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a conversation and send messages from stdin",
	Long: `Start the sync engine, follow the active conversation and print new messages as they arrive.
Each line read from stdin is sent as a message. Commands:
  /switch <id>   follow another conversation
  /refresh       re-fetch the active conversation
  /list          list conversations
  /quit          exit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := getSession()
		defer s.log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		if chatWatchMetricsAddr != "" {
			srv := serveMetrics(chatWatchMetricsAddr, s.log)
			defer func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		engine := s.engine(portal.SyncOptions{
			ConversationPollInterval: chatWatchConvPoll,
			MessagePollInterval:      chatWatchMsgPoll,
			OnAuthError: func() {
				fmt.Fprintln(os.Stderr, "Session expired. Run 'portal init <access-token>' to log in again.")
				cancel()
			},
		})
		defer engine.Stop()
		w := newWatcher(engine)
		w.subscribe()

		if err := engine.Start(ctx); err != nil {
			if engine.AuthFailed() {
				return errors.New("session rejected")
			}
			fmt.Fprintf(os.Stderr, "Initial load failed, retrying in the background: %v\n", err)
		}
		if chatWatchConversation != "" {
			engine.Select(portal.ServerID(chatWatchConversation))
		}

		lines := make(chan string)
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
			close(lines)
		}()

		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if quit := w.handleLine(ctx, line); quit {
					return nil
				}
			}
		}
	},
}

func metricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func serveMetrics(addr string, log *zap.Logger) *http.Server {
	srv := &http.Server{Addr: addr, Handler: metricsRouter(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return srv
}

// watcher prints engine changes for the active conversation, once per
// message id.
type watcher struct {
	engine *portal.SyncEngine

	mu      sync.Mutex
	printed map[string]struct{}
}

func newWatcher(engine *portal.SyncEngine) *watcher {
	return &watcher{engine: engine, printed: make(map[string]struct{})}
}

func (w *watcher) subscribe() {
	w.engine.On(portal.EventSelectionChanged, func(_ portal.Event, payload any) {
		id, _ := payload.(portal.ServerID)
		if id == "" {
			fmt.Println("-- no conversation selected")
			return
		}
		title := id.String()
		if c, ok := w.engine.ActiveConversation(); ok {
			title = titleOf(c)
		}
		fmt.Printf("-- following %s (%s)\n", title, id)
	})
	w.engine.On(portal.EventMessagesChanged, func(_ portal.Event, payload any) {
		id, _ := payload.(portal.ServerID)
		if id != w.engine.ActiveID() {
			return
		}
		w.printNew(w.engine.Messages(id))
	})
	w.engine.On(portal.EventSendFailed, func(_ portal.Event, payload any) {
		if f, ok := payload.(portal.SendFailure); ok {
			fmt.Fprintf(os.Stderr, "!! message not sent: %v\n", f.Err)
		}
	})
	w.engine.On(portal.EventErrorChanged, func(portal.Event, any) {
		if msg := w.engine.Err(); msg != "" {
			fmt.Fprintf(os.Stderr, "!! %s\n", msg)
		}
	})
}

// printNew skips pending messages; they are printed once confirmed.
func (w *watcher) printNew(messages []portal.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range messages {
		if m.ID.IsTemporary() {
			continue
		}
		key := m.ID.String()
		if _, ok := w.printed[key]; ok {
			continue
		}
		w.printed[key] = struct{}{}
		printMessage(m)
	}
}

func (w *watcher) handleLine(ctx context.Context, line string) (quit bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
	case line == "/quit":
		return true
	case line == "/refresh":
		w.engine.Refresh(ctx)
	case line == "/list":
		for _, c := range w.engine.VisibleConversations() {
			marker := " "
			if c.ID == w.engine.ActiveID() {
				marker = "*"
			}
			fmt.Printf(" %s %s: %s\n", marker, c.ID, titleOf(c))
		}
	case strings.HasPrefix(line, "/switch "):
		w.engine.Select(portal.ServerID(strings.TrimSpace(strings.TrimPrefix(line, "/switch "))))
	default:
		// Failures are reported through EventSendFailed.
		_ = w.engine.SendMessage(ctx, line)
	}
	return false
}

// ============================================================================
// Registration
// ============================================================================

func init() {
	chatConversationsCmd.Flags().StringVarP(&chatConversationsSearch, "search", "s", "", "Only show conversations whose title contains this text")
	chatConversationsCmd.Flags().BoolVar(&chatConversationsJSON, "json", false, "Output raw JSON")

	chatMessagesCmd.Flags().IntVarP(&chatMessagesLimit, "limit", "n", 0, "Only show the last N messages")
	chatMessagesCmd.Flags().BoolVar(&chatMessagesJSON, "json", false, "Output raw JSON")

	chatSendCmd.Flags().BoolVar(&chatSendJSON, "json", false, "Output raw JSON")

	chatCreateCmd.Flags().StringVarP(&chatCreateParticipants, "participants", "p", "", "Comma-separated participant user IDs")
	chatCreateCmd.Flags().StringVarP(&chatCreateTitle, "title", "t", "", "Group title")
	chatCreateCmd.Flags().BoolVar(&chatCreateJSON, "json", false, "Output raw JSON")

	chatUsersCmd.Flags().BoolVar(&chatUsersJSON, "json", false, "Output raw JSON")

	chatWatchCmd.Flags().StringVarP(&chatWatchConversation, "conversation", "c", "", "Conversation to follow (defaults to the first one)")
	chatWatchCmd.Flags().StringVar(&chatWatchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	chatWatchCmd.Flags().DurationVar(&chatWatchConvPoll, "conversation-poll", portal.DefaultConversationPollInterval, "Conversation list refresh interval")
	chatWatchCmd.Flags().DurationVar(&chatWatchMsgPoll, "message-poll", portal.DefaultMessagePollInterval, "Active conversation refresh interval")

	chatCmd.AddCommand(chatConversationsCmd)
	chatCmd.AddCommand(chatMessagesCmd)
	chatCmd.AddCommand(chatSendCmd)
	chatCmd.AddCommand(chatCreateCmd)
	chatCmd.AddCommand(chatDeleteCmd)
	chatCmd.AddCommand(chatUsersCmd)
	chatCmd.AddCommand(chatWatchCmd)

	rootCmd.AddCommand(chatCmd)
}
