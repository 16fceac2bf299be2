// Package interactive provides the readline-based shell for ntfysub.
package interactive

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/binwiederhier/ntfy-android-sub001/pkg/model"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/service"
)

// Config provides configuration to the shell without depending on the
// main package's config structure.
type Config interface {
	// DefaultBaseURL returns the server used when a subscribe command
	// names no server.
	DefaultBaseURL() string
}

// Shell is the interactive command loop.
type Shell struct {
	svc    *service.Service
	config Config
	rl     *readline.Instance
}

// New creates a shell bound to a running service.
func New(svc *service.Service, cfg Config) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ntfysub> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{svc: svc, config: cfg, rl: rl}, nil
}

// Stdout returns a writer that coordinates with the prompt. Use this
// for asynchronous output such as displayed notifications.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run starts the command loop and blocks until the user exits.
func (s *Shell) Run() {
	defer s.rl.Close()

	s.printHelp()

	for {
		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()
		case "subscribe", "sub":
			s.cmdSubscribe(args)
		case "unsubscribe", "unsub":
			s.cmdUnsubscribe(args)
		case "list", "ls":
			s.cmdList()
		case "notifications", "n":
			s.cmdNotifications(args)
		case "mute":
			s.cmdMute(args)
		case "unmute":
			s.cmdUnmute(args)
		case "register":
			s.cmdRegister(args)
		case "unregister":
			s.cmdUnregister(args)
		case "quit", "exit", "q":
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			return
		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (try 'help')\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.rl.Stdout(), `Commands:
  subscribe <topic> [server]     Subscribe to a topic (streams immediately)
  unsubscribe <topic|id>         Remove a subscription and its notifications
  list                           List subscriptions with status and counters
  notifications <topic|id>       Show stored notifications, newest first
  mute <topic|id> <minutes>      Mute local display for a while
  unmute <topic|id>              Unmute local display
  register <appId> <token>       Issue a push endpoint for an external app
  unregister <token>             Remove a push registration
  help                           Show this help
  exit                           Quit
`)
}

func (s *Shell) cmdSubscribe(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: subscribe <topic> [server]")
		return
	}
	baseURL := s.config.DefaultBaseURL()
	if len(args) > 1 {
		baseURL = args[1]
	}
	sub, err := s.svc.Subscribe(baseURL, args[0], true)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Subscribed to %s (%s)\n", model.TopicURL(sub.BaseURL, sub.Topic), sub.ID)
}

func (s *Shell) cmdUnsubscribe(args []string) {
	sub := s.resolve(args)
	if sub == nil {
		return
	}
	if err := s.svc.Unsubscribe(sub.ID); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Unsubscribed from %s\n", sub.DisplayTopic())
}

func (s *Shell) cmdList() {
	subs, err := s.svc.Subscriptions()
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	if len(subs) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No subscriptions")
		return
	}
	now := time.Now()
	for _, sub := range subs {
		status := s.svc.StreamStatus(sub.ID).String()
		extras := make([]string, 0, 2)
		if sub.Muted(now) {
			extras = append(extras, "muted")
		}
		if sub.Registered() {
			extras = append(extras, "app: "+sub.UpAppID)
		}
		suffix := ""
		if len(extras) > 0 {
			suffix = " [" + strings.Join(extras, ", ") + "]"
		}
		fmt.Fprintf(s.rl.Stdout(), "%-12s %-30s %d total, %d new%s\n",
			status, model.TopicURL(sub.BaseURL, sub.Topic), sub.TotalCount, sub.NewCount, suffix)
	}
}

func (s *Shell) cmdNotifications(args []string) {
	sub := s.resolve(args)
	if sub == nil {
		return
	}
	notifications, err := s.svc.Notifications(sub.ID)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	if len(notifications) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No notifications")
		return
	}
	for _, n := range notifications {
		ts := time.Unix(n.Timestamp, 0).Format("2006-01-02 15:04:05")
		title := n.Title
		if title != "" {
			title = " " + title + ":"
		}
		fmt.Fprintf(s.rl.Stdout(), "%s [p%d]%s %s\n", ts, n.Priority, title, n.Message)
	}
	if err := s.svc.ClearNewCount(sub.ID); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
	}
}

func (s *Shell) cmdMute(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: mute <topic|id> <minutes>")
		return
	}
	sub := s.resolve(args[:1])
	if sub == nil {
		return
	}
	minutes, err := strconv.Atoi(args[1])
	if err != nil || minutes <= 0 {
		fmt.Fprintln(s.rl.Stdout(), "Minutes must be a positive number")
		return
	}
	until := time.Now().Add(time.Duration(minutes) * time.Minute)
	if err := s.svc.SetMutedUntil(sub.ID, until.Unix()); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Muted %s until %s\n", sub.DisplayTopic(), until.Format("15:04:05"))
}

func (s *Shell) cmdUnmute(args []string) {
	sub := s.resolve(args)
	if sub == nil {
		return
	}
	if err := s.svc.SetMutedUntil(sub.ID, 0); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Unmuted %s\n", sub.DisplayTopic())
}

func (s *Shell) cmdRegister(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: register <appId> <token>")
		return
	}
	endpoint, err := s.svc.Register(args[0], args[1])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Endpoint: %s\n", endpoint)
}

func (s *Shell) cmdUnregister(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: unregister <token>")
		return
	}
	if err := s.svc.Unregister(args[0]); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintln(s.rl.Stdout(), "Unregistered")
}

// resolve finds a subscription by topic or by ID prefix.
func (s *Shell) resolve(args []string) *model.Subscription {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Missing subscription (topic or id)")
		return nil
	}
	subs, err := s.svc.Subscriptions()
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return nil
	}
	for _, sub := range subs {
		if sub.Topic == args[0] || strings.HasPrefix(sub.ID, args[0]) {
			return sub
		}
	}
	fmt.Fprintf(s.rl.Stdout(), "No subscription matching %q\n", args[0])
	return nil
}
