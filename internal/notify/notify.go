// Package notify delivers operator-facing backup messages to the
// configured chat. Progress updates are rate limited and folded into a
// single edited message so a large tree does not flood the chat.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	kit "backupbot/internal/transport"
	"backupbot/pkg/logx"
)

// progressEvery caps how often the progress message is rewritten.
// Telegram throttles edits well below this anyway.
const progressEvery = 2 * time.Second

type Notifier struct {
	ad     kit.Adapter
	target kit.ChatTarget
	log    logx.Logger

	lim *rate.Limiter

	mu      sync.Mutex
	ref     kit.MessageRef
	haveRef bool
}

func New(ad kit.Adapter, target kit.ChatTarget, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{
		ad:     ad,
		target: target,
		log:    log,
		lim:    rate.NewLimiter(rate.Every(progressEvery), 1),
	}
}

// Broadcast sends a one-off message. Delivery failures are logged and
// swallowed; a backup must never fail because the chat is unreachable.
func (n *Notifier) Broadcast(ctx context.Context, text string) {
	if n == nil || n.ad == nil {
		return
	}
	if _, err := n.ad.SendText(ctx, n.target, text); err != nil {
		n.log.Warn("broadcast failed", logx.Err(err))
	}
}

// Progress reports archiving progress. The first call creates a
// progress message, later calls edit it in place. Intermediate updates
// past the rate limit are dropped; the final update always goes out and
// closes the progress message.
func (n *Notifier) Progress(ctx context.Context, done, total int) {
	if n == nil || n.ad == nil || total <= 0 {
		return
	}
	final := done >= total
	if !final && !n.lim.Allow() {
		return
	}
	text := fmt.Sprintf("packing files: %d/%d", done, total)

	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.haveRef {
		ref, err := n.ad.SendText(ctx, n.target, text)
		if err != nil {
			n.log.Warn("progress message failed", logx.Err(err))
			return
		}
		n.ref = ref
		n.haveRef = true
	} else if err := n.ad.EditText(ctx, n.ref, text); err != nil {
		n.log.Debug("progress edit failed", logx.Err(err))
	}
	if final {
		n.haveRef = false
	}
}
