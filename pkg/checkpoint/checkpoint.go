package checkpoint

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Tag identifies a checkpoint object in the scene
type Tag string

const (
	LeftCheckpoint  = Tag("LeftCheckpoint")
	RightCheckpoint = Tag("RightCheckpoint")
	EndPoint        = Tag("EndPoint")
)

func ParseTag(s string) (Tag, error) {
	switch t := Tag(s); t {
	case LeftCheckpoint, RightCheckpoint, EndPoint:
		return t, nil
	}
	return "", fmt.Errorf("unknown checkpoint tag %q", s)
}

type Transition int

const (
	Ignored Transition = iota
	Passed
	Finished
)

func (t Transition) String() string {
	switch t {
	case Passed:
		return "passed"
	case Finished:
		return "finished"
	default:
		return "ignored"
	}
}

type Pass struct {
	Tag     Tag
	Elapsed time.Duration
}

// Sequence tracks which side checkpoints were passed. The end point only
// completes the run once both sides were passed, in any order, and the
// run stays finished afterwards.
type Sequence struct {
	left     bool
	right    bool
	finished bool
	passes   []Pass
}

func (s *Sequence) Enter(tag Tag, elapsed time.Duration) Transition {
	if s.finished {
		return Ignored
	}
	switch tag {
	case LeftCheckpoint:
		if s.left {
			return Ignored
		}
		s.left = true
	case RightCheckpoint:
		if s.right {
			return Ignored
		}
		s.right = true
	case EndPoint:
		if !s.left || !s.right {
			return Ignored
		}
		s.finished = true
		s.passes = append(s.passes, Pass{Tag: tag, Elapsed: elapsed})
		return Finished
	default:
		return Ignored
	}
	s.passes = append(s.passes, Pass{Tag: tag, Elapsed: elapsed})
	return Passed
}

func (s *Sequence) LeftPassed() bool  { return s.left }
func (s *Sequence) RightPassed() bool { return s.right }
func (s *Sequence) Finished() bool    { return s.finished }

func (s *Sequence) Passes() []Pass {
	passes := make([]Pass, len(s.passes))
	copy(passes, s.passes)
	return passes
}

func RenderSummary(passes []Pass) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Checkpoint", "Time"})
	for i, p := range passes {
		t.AppendRow(table.Row{i + 1, string(p.Tag), fmt.Sprintf("%.2fs", p.Elapsed.Seconds())})
	}
	return t.Render()
}
