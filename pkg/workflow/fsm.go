// Package workflow implements the draft refinement state machine:
// structure, then enhance and verify until the checker accepts the draft.
package workflow

import (
	"errors"
	"fmt"
)

// Stage is a node of the refinement graph.
type Stage string

const (
	StageStructure Stage = "structure"
	StageEnhance   Stage = "enhance"
	StageVerify    Stage = "verify"
	StageDone      Stage = "done"
)

// Event is what a stage handler reports when it finishes.
type Event string

const (
	EventNext      Event = "next"
	EventOK        Event = "ok"
	EventKO        Event = "ko"
	EventExhausted Event = "exhausted"
)

// ErrInvalidTransition is returned for a (stage, event) pair outside the table.
var ErrInvalidTransition = errors.New("invalid transition")

type edge struct {
	from  Stage
	event Event
}

var transitions = map[edge]Stage{
	{StageStructure, EventNext}:   StageEnhance,
	{StageEnhance, EventNext}:     StageVerify,
	{StageVerify, EventOK}:        StageDone,
	{StageVerify, EventKO}:        StageEnhance,
	{StageVerify, EventExhausted}: StageDone,
}

// Transition is the single source of truth for control flow.
func Transition(from Stage, event Event) (Stage, error) {
	to, ok := transitions[edge{from, event}]
	if !ok {
		return "", fmt.Errorf("%w: %s --%s-->", ErrInvalidTransition, from, event)
	}
	return to, nil
}

// ClassifyVerdict maps the checker's reply to a routing event. Only the
// exact reply "ok" counts as acceptance.
func ClassifyVerdict(reply string) Event {
	if reply == "ok" {
		return EventOK
	}
	return EventKO
}
