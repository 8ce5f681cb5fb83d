package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentlink/internal/model/chat"
)

// printer renders observer callbacks as terminal text. Callbacks arrive from
// several goroutines, so every write holds mu.
type printer struct {
	mu  sync.Mutex
	out io.Writer
	// shown is how much of the current reply is on screen. It survives lines
	// written in the middle of a reply; onLine does not.
	shown  int
	onLine bool
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

var _ chat.Observer = (*printer)(nil)

// OnChunk receives the accumulated reply and prints only what is new.
func (p *printer) OnChunk(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(text) <= p.shown {
		return
	}
	p.writeReply(text[p.shown:])
	p.shown = len(text)
}

func (p *printer) OnComplete(sessionID, finalText string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var unseen string
	if len(finalText) > p.shown {
		unseen = finalText[p.shown:]
	}
	if unseen != "" || p.shown == 0 {
		p.writeReply(unseen)
	}
	if p.onLine {
		fmt.Fprintln(p.out)
	}
	p.resetReply()
}

func (p *printer) OnError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lineEvent("error: " + message)
	p.resetReply()
}

func (p *printer) OnEvent(ev chat.EventPayload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lineEvent(formatEvent(ev))
}

func (p *printer) OnConnectionStateChange(channel string, state chat.ChannelState) {
	log.Debug().Str("channel", channel).Stringer("state", state).Msg("connection state")
	if channel == chat.ChannelHeartbeat || state != chat.StateFailed {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lineEvent(fmt.Sprintf("[%s] connection failed, retrying", channel))
}

func (p *printer) info(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lineEvent(fmt.Sprintf(format, args...))
}

// writeReply continues the reply line, reopening it after an interruption.
func (p *printer) writeReply(text string) {
	if !p.onLine {
		fmt.Fprint(p.out, "agent> ")
		p.onLine = true
	}
	fmt.Fprint(p.out, text)
}

func (p *printer) resetReply() {
	p.shown = 0
	p.onLine = false
}

// lineEvent prints a full line without tearing a reply being streamed.
func (p *printer) lineEvent(line string) {
	if p.onLine {
		fmt.Fprintln(p.out)
		p.onLine = false
	}
	fmt.Fprintln(p.out, line)
}

func formatEvent(ev chat.EventPayload) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(ev.Type)
	b.WriteString("]")
	if ev.AgentName != "" {
		b.WriteString(" ")
		b.WriteString(ev.AgentName)
		b.WriteString(":")
	}
	b.WriteString(" ")
	b.WriteString(ev.DisplayBody())
	return b.String()
}
