package app

import (
	"context"
	"errors"
	"strings"

	"github.com/bdobrica/Anima/internal/anima/generate"
	"github.com/bdobrica/Anima/internal/anima/runtime"
	"github.com/bdobrica/Anima/internal/anima/sleep"
	"github.com/bdobrica/Anima/internal/anima/store"
)

// Messages shown to the user in place of raw errors.
const (
	MsgNotReady        = "The model is still loading. Try again in a moment."
	MsgInitFailed      = "The model could not be loaded. Check the runtime configuration and restart."
	MsgContextExceeded = "The conversation is too long for the model's memory. Start a new one or shorten the message."
	MsgBusy            = "The database is busy. Try again in a moment."
	MsgTimeout         = "Saving took too long. Your message may not have been stored."
	MsgParse           = "The sleep cycle could not read the model's answer. Nothing was changed."
	MsgSleepRunning    = "A sleep cycle is already running."
	MsgEmptyMessage    = "Write something first."
	MsgCancelled       = "The request was cancelled."
	MsgGeneric         = "Something went wrong while generating a reply."
)

// contextMarkers are fragments of runtime errors that mean the prompt or KV
// cache did not fit.
var contextMarkers = []string{
	"context",
	"n_ctx",
	"too long",
	"kv cache",
	"out of memory",
}

// UserMessage classifies err into a short message fit for the chat UI.
// A nil err yields "".
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, runtime.ErrInitFailed):
		return MsgInitFailed
	case errors.Is(err, runtime.ErrNotInitialized):
		return MsgNotReady
	case errors.Is(err, ErrEmptyMessage):
		return MsgEmptyMessage
	case errors.Is(err, sleep.ErrRunning):
		return MsgSleepRunning
	case errors.Is(err, sleep.ErrParse):
		return MsgParse
	case errors.Is(err, store.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return MsgTimeout
	case errors.Is(err, context.Canceled):
		return MsgCancelled
	case store.IsBusy(err):
		return MsgBusy
	case errors.Is(err, runtime.ErrContextOverflow), isContextExhausted(err):
		return MsgContextExceeded
	default:
		return MsgGeneric
	}
}

// isContextExhausted looks for context-window markers in inference errors
// only, so that storage errors mentioning a "context" are not misread.
func isContextExhausted(err error) bool {
	if !errors.Is(err, generate.ErrGeneration) && !errors.Is(err, generate.ErrTokenization) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range contextMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
