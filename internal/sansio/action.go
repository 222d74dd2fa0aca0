// Package sansio implements the rgssad/rgss3a readers and writers as state
// machines that never perform I/O.
//
// Every step method either finishes (ActionDone) or asks the driver to
// perform a transport operation and call the step again:
//
//   - ActionRead: read at most N bytes into Space()[:N] and report them with
//     Fill. Fill(0) reports end of stream.
//   - ActionSeek: seek to Pos and call FinishSeek.
//   - ActionWrite: write Data() to the transport and Consume what was written.
//
// Steps may be repeated any number of times; already buffered bytes are
// never lost, so a driver that hits a would-block condition simply calls the
// same step again later.
package sansio

import "github.com/ossyrian/rgssad/internal/rgss"

// ActionKind discriminates an Action.
type ActionKind uint8

const (
	ActionDone ActionKind = iota
	ActionRead
	ActionSeek
	ActionWrite
)

func (k ActionKind) String() string {
	switch k {
	case ActionDone:
		return "Done"
	case ActionRead:
		return "Read"
	case ActionSeek:
		return "Seek"
	case ActionWrite:
		return "Write"
	default:
		return "Unknown"
	}
}

// Action is the result of a step: a transport request, or the step's value.
type Action[T any] struct {
	Kind ActionKind
	// N is the maximum number of bytes to read for ActionRead.
	N int
	// Pos is the absolute stream position for ActionSeek.
	Pos uint64
	// Value is the result for ActionDone.
	Value T
}

// IsDone reports whether the step finished.
func (a Action[T]) IsDone() bool {
	return a.Kind == ActionDone
}

func done[T any](v T) Action[T] {
	return Action[T]{Kind: ActionDone, Value: v}
}

func read[T any](n int) Action[T] {
	return Action[T]{Kind: ActionRead, N: n}
}

func seek[T any](pos uint64) Action[T] {
	return Action[T]{Kind: ActionSeek, Pos: pos}
}

func write[T any]() Action[T] {
	return Action[T]{Kind: ActionWrite}
}

// pending converts an unfinished action to another value type.
func pending[T, U any](a Action[U]) Action[T] {
	return Action[T]{Kind: a.Kind, N: a.N, Pos: a.Pos}
}

// reserve asks for n more bytes, growing buf first if it cannot hold them.
func reserve[T any](buf *rgss.Buffer, n int) Action[T] {
	buf.Reserve(n)
	return read[T](n)
}

// clampRemaining returns min(remaining, n).
func clampRemaining(remaining uint32, n int) int {
	if uint64(n) > uint64(remaining) {
		return int(remaining)
	}
	return n
}
