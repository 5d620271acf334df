package session

import (
	"strings"

	"github.com/openvalet/go-valet/pkg/tools"
)

// Entry is one chat log item. The union is sealed; entries are appended in
// event arrival order and only ever merged at the tail.
type Entry interface {
	isEntry()
}

// UserEntry is a user transcript fragment. Final is false while the
// recognizer may still revise the text.
type UserEntry struct {
	Text  string
	Final bool
}

// BotEntry is assistant speech. Consecutive fragments are merged into one
// entry.
type BotEntry struct {
	Text string
}

// FunctionCallEntry records a tool invocation. Status carries the tool's
// progress text and updates independently of the log.
type FunctionCallEntry struct {
	Name   string
	Status *tools.Status
}

func (UserEntry) isEntry()         {}
func (BotEntry) isEntry()          {}
func (FunctionCallEntry) isEntry() {}

// ChatLog is the merged transcript of a session. Not safe for concurrent
// use; the Manager serializes access under its own mutex.
type ChatLog struct {
	entries []Entry
}

// Entries returns a copy of the log in order.
func (l *ChatLog) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *ChatLog) Len() int { return len(l.entries) }

// AddUser appends a user transcript fragment. A trailing non-final user
// entry is replaced so only the latest partial is retained.
func (l *ChatLog) AddUser(text string, final bool) {
	if n := len(l.entries); n > 0 {
		if last, ok := l.entries[n-1].(UserEntry); ok && !last.Final {
			l.entries = l.entries[:n-1]
		}
	}
	l.entries = append(l.entries, UserEntry{Text: strings.TrimSpace(text), Final: final})
}

// AddBot appends bot speech, merging with a trailing bot entry.
func (l *ChatLog) AddBot(text string) {
	if n := len(l.entries); n > 0 {
		if last, ok := l.entries[n-1].(BotEntry); ok {
			merged := strings.TrimSpace(strings.ReplaceAll(last.Text+" "+text, "  ", " "))
			l.entries[n-1] = BotEntry{Text: merged}
			return
		}
	}
	l.entries = append(l.entries, BotEntry{Text: strings.TrimSpace(text)})
}

// AddFunctionCall appends a tool invocation entry.
func (l *ChatLog) AddFunctionCall(name string, status *tools.Status) {
	l.entries = append(l.entries, FunctionCallEntry{Name: name, Status: status})
}
