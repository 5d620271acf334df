package session

import (
	"reflect"
	"testing"

	"github.com/openvalet/go-valet/pkg/tools"
)

func TestChatLogPartialsCollapse(t *testing.T) {
	var l ChatLog
	l.AddUser("what is", false)
	l.AddUser("what is the", false)
	l.AddUser("what is the time", true)

	want := []Entry{UserEntry{Text: "what is the time", Final: true}}
	if !reflect.DeepEqual(l.Entries(), want) {
		t.Errorf("entries = %#v", l.Entries())
	}
}

func TestChatLogFinalUserEntryNotReplaced(t *testing.T) {
	var l ChatLog
	l.AddUser("first question", true)
	l.AddUser("second", false)
	l.AddUser("second question", true)

	want := []Entry{
		UserEntry{Text: "first question", Final: true},
		UserEntry{Text: "second question", Final: true},
	}
	if !reflect.DeepEqual(l.Entries(), want) {
		t.Errorf("entries = %#v", l.Entries())
	}
}

func TestChatLogBotFragmentsConcatenate(t *testing.T) {
	var l ChatLog
	l.AddBot("The time ")
	l.AddBot(" is")
	l.AddBot("three o'clock.")

	want := []Entry{BotEntry{Text: "The time is three o'clock."}}
	if !reflect.DeepEqual(l.Entries(), want) {
		t.Errorf("entries = %#v", l.Entries())
	}
}

func TestChatLogBotMergeStopsAtOtherEntries(t *testing.T) {
	var l ChatLog
	l.AddBot("Hello.")
	l.AddUser("hi", true)
	l.AddBot("How can I help?")

	want := []Entry{
		BotEntry{Text: "Hello."},
		UserEntry{Text: "hi", Final: true},
		BotEntry{Text: "How can I help?"},
	}
	if !reflect.DeepEqual(l.Entries(), want) {
		t.Errorf("entries = %#v", l.Entries())
	}
}

func TestChatLogFunctionCallEntry(t *testing.T) {
	var l ChatLog
	status := tools.NewStatus()
	l.AddBot("Let me check.")
	l.AddFunctionCall("current_date_time", status)
	l.AddBot("It is late.")

	entries := l.Entries()
	if len(entries) != 3 {
		t.Fatalf("entries = %#v", entries)
	}
	call, ok := entries[1].(FunctionCallEntry)
	if !ok || call.Name != "current_date_time" || call.Status != status {
		t.Errorf("entries[1] = %#v", entries[1])
	}
}
