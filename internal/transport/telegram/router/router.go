// Package router turns incoming chat messages into command invocations:
// route matching, owner checks, and a bounded worker pool so one slow
// command cannot stall the dispatcher.
package router

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "backupbot/internal/runtime/supervisor"
	kit "backupbot/internal/transport"
	"backupbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	// Route is a space-separated command path, e.g. "backup status".
	Route       string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

type cmdNode struct {
	children map[string]*cmdNode
	cmd      *Command
}

func newNode() *cmdNode { return &cmdNode{children: map[string]*cmdNode{}} }

func (n *cmdNode) add(path []string, c Command) {
	cur := n
	for _, tok := range path {
		next, ok := cur.children[tok]
		if !ok {
			next = newNode()
			cur.children[tok] = next
		}
		cur = next
	}
	cc := c
	cur.cmd = &cc
}

func splitRoute(route string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(route)))
}

type CommandManager struct {
	mu     sync.RWMutex
	root   *cmdNode
	cmds   []Command
	owners []int64

	log     logx.Logger
	adapter kit.Adapter

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, owners []int64) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandManager{
		root:    newNode(),
		owners:  append([]int64(nil), owners...),
		log:     log,
		adapter: adapter,
		jobs:    make(chan func(), 64),
	}
}

// SetOwners swaps the owner list. Safe during hot-reload.
func (m *CommandManager) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

func (m *CommandManager) ownersSnapshot() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int64(nil), m.owners...)
}

// SetRegistry installs the command set. A /help command is always
// available on top of whatever the caller registers.
func (m *CommandManager) SetRegistry(cmds []Command) {
	help := Command{
		Route:       "help",
		Description: "list available commands",
		Usage:       "/help",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			_, err := req.Adapter.SendText(ctx, req.Chat, m.helpText())
			return err
		},
	}
	cmds = append(cmds, help)

	root := newNode()
	kept := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		path := splitRoute(c.Route)
		if len(path) == 0 || c.Handle == nil {
			continue
		}
		root.add(path, c)
		kept = append(kept, c)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Route < kept[j].Route })

	m.mu.Lock()
	m.root = root
	m.cmds = kept
	m.mu.Unlock()
}

func (m *CommandManager) helpText() string {
	m.mu.RLock()
	cmds := m.cmds
	m.mu.RUnlock()

	var b strings.Builder
	b.WriteString("commands:\n")
	for _, c := range cmds {
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Route
		}
		fmt.Fprintf(&b, "%s - %s\n", usage, c.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// DispatchLoop consumes updates until ctx ends or the channel closes.
// Handlers run on a bounded worker pool; when the queue is full the
// sender gets a busy reply instead of unbounded goroutines.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	m.setRunning(sup, true)

	m.log.Info("command dispatcher started", logx.Int("workers", workers))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			m.setRunning(sup, false)
			close(m.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		sup.Go0("command.worker."+strconv.Itoa(idx), func(c context.Context) {
			for {
				select {
				case <-c.Done():
					return
				case job, ok := <-m.jobs:
					if !ok {
						return
					}
					if job == nil {
						continue
					}
					// Middleware already recovers; this keeps the worker
					// alive if a job slips past it anyway.
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job",
									logx.Any("panic", r),
									logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		})
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.setRunning(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.routeMessage(ctx, up)
		}
	}
}

func (m *CommandManager) setRunning(sup *rtsup.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// tryEnqueue survives the jobs channel being closed mid-shutdown.
func (m *CommandManager) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

func (m *CommandManager) routeMessage(root context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	args := parts[1:]

	m.mu.RLock()
	rootNode := m.root
	m.mu.RUnlock()

	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	cur, ok := rootNode.children[word]
	if !ok {
		// Silently ignore unknown slash commands; in a group chat they
		// are usually meant for another bot.
		return
	}

	path := []string{word}
	for len(args) > 0 {
		child, ok := cur.children[strings.ToLower(args[0])]
		if !ok {
			break
		}
		cur = child
		path = append(path, strings.ToLower(args[0]))
		args = args[1:]
	}

	if cur.cmd == nil {
		_, _ = m.adapter.SendText(root, chat, m.helpText())
		return
	}
	m.enqueueCommand(root, up, *cur.cmd, args)
}

func (m *CommandManager) enqueueCommand(root context.Context, up kit.Update, cmd Command, args []string) {
	msg := up.Message
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	owners := m.ownersSnapshot()
	if cmd.Access == AccessOwnerOnly && !isOwner(msg.FromID, owners) {
		_, _ = m.adapter.SendText(root, chat, "unauthorized")
		return
	}

	rid := newReqID()
	req := &Request{
		Update:  up,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Route,
		Args:    args,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Route),
		),
	}

	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)

	if !m.tryEnqueue(func() { _ = final(root, req) }) {
		_, _ = m.adapter.SendText(root, chat, "busy, try again")
	}
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}

func newReqID() string {
	return strconv.FormatUint(rand.Uint64()&0xffffffff, 16)
}
