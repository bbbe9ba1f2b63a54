// Package segment turns a turn's incremental event stream into discrete,
// speakable sentences, filtering internal control markers before they can
// reach speech output.
package segment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"github.com/cloudwego/eino/schema"

	"github.com/slingshot-ai/slingdial/internal/dialog"
)

// DefaultFillers is the hold-phrase pool used when a sentence leaks internal
// tool naming. Drawn without replacement within a turn; the pool refills
// once exhausted so a fourth leak in one turn reuses it.
var DefaultFillers = []string{
	"Let me check that for you",
	"I'll need a moment to review this",
	"Please bear with me while I look into that",
}

// leakTriggers are substrings indicating the model leaked internal
// tool/function naming into user-visible text.
var leakTriggers = []string{"functions.", "escalate_to_human"}

// Segmenter converts turn event streams into sentence sequences. One
// Segmenter can serve many turns; each Speak call processes exactly one
// turn's stream with a fresh filler pool.
type Segmenter struct {
	fillers []string
	rnd     *rand.Rand
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithFillers replaces the hold-phrase pool.
func WithFillers(fillers []string) Option {
	return func(s *Segmenter) {
		s.fillers = fillers
	}
}

// WithRand sets the randomness source for filler selection. Replaying a
// finished stream through a fresh Segmenter with an identically seeded
// source yields an identical sentence sequence.
func WithRand(rnd *rand.Rand) Option {
	return func(s *Segmenter) {
		s.rnd = rnd
	}
}

// New creates a Segmenter.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{
		fillers: DefaultFillers,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Speak consumes one turn's event stream. The first sentence is awaited
// eagerly so the caller can begin synthesis immediately; the remainder is a
// lazy, forward-only sequence in generation order. The stream ends when the
// turn ends and is not restartable.
func (s *Segmenter) Speak(ctx context.Context, stream *dialog.EventStream) (string, *schema.StreamReader[string], error) {
	reader, writer := schema.Pipe[string](16)

	go s.run(ctx, stream, writer)

	first, err := reader.Recv()
	if err != nil {
		reader.Close()
		if errors.Is(err, io.EOF) {
			return "", nil, fmt.Errorf("turn produced no speakable output")
		}
		return "", nil, err
	}
	return first, reader, nil
}

// turnFilter holds the per-turn filler pool state.
type turnFilter struct {
	seg       *Segmenter
	remaining []string
}

// clean strips control markers and replaces a leaking sentence with a filler
// phrase drawn without replacement, refilling the pool on exhaustion.
func (f *turnFilter) clean(sentence string) string {
	sentence = dialog.StripMarkers(sentence)
	for _, trigger := range leakTriggers {
		if strings.Contains(sentence, trigger) {
			return f.draw()
		}
	}
	return sentence
}

func (f *turnFilter) draw() string {
	if len(f.remaining) == 0 {
		f.remaining = append([]string(nil), f.seg.fillers...)
	}
	idx := f.seg.rnd.Intn(len(f.remaining))
	phrase := f.remaining[idx]
	f.remaining = append(f.remaining[:idx], f.remaining[idx+1:]...)
	return phrase
}

func (s *Segmenter) run(ctx context.Context, stream *dialog.EventStream, writer *schema.StreamWriter[string]) {
	defer writer.Close()
	defer stream.Close()

	filter := &turnFilter{seg: s, remaining: append([]string(nil), s.fillers...)}
	var buffer string

	yield := func(sentence string) bool {
		sentence = filter.clean(strings.TrimSpace(sentence))
		if sentence == "" {
			return true
		}
		return !writer.Send(sentence, nil)
	}

	for {
		select {
		case <-ctx.Done():
			// Caller abandoned the turn; buffered partials are discarded.
			return
		default:
		}

		event, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			// Flush whatever remains, even without terminal punctuation.
			if strings.TrimSpace(buffer) != "" {
				yield(buffer)
			}
			return
		}
		if err != nil {
			// A user is waiting on synthesis: terminate gracefully and
			// discard the partial sentence rather than hang the call.
			return
		}

		switch event.Kind {
		case dialog.EventStreamChunk:
			buffer += event.Text
			for {
				sentence, rest, ok := splitSentence(buffer)
				if !ok {
					break
				}
				buffer = dialog.StripMarkers(rest)
				if !yield(sentence) {
					return
				}
			}

		case dialog.EventToolEnd:
			result := dialog.ParseToolResult(strings.TrimSpace(event.Text))
			if result.Kind == dialog.ResultDeterministic {
				// The tool already produced the final user-facing text.
				yield(result.Text)
				return
			}

		case dialog.EventNodeEnd:
			// Administrative nodes carry their deterministic output on the
			// node-end event; everything else leaves Text empty.
			if event.Text != "" {
				yield(event.Text)
				return
			}

		case dialog.EventTurnError:
			return
		}
	}
}

// splitSentence scans for the first sentence boundary: `.` `!` `?` followed
// by a whitespace run then an uppercase letter or the end of the buffer.
// Two withholding rules keep currency amounts intact:
//   - a `.` at the end of the buffer preceded by a digit is withheld, since
//     a decimal may still be streaming in;
//   - while the buffer ends in an unresolved `$` amount, all splits are
//     withheld. A conservative heuristic, not a currency parser.
func splitSentence(buffer string) (sentence, rest string, ok bool) {
	if unresolvedAmount(buffer) {
		return "", "", false
	}

	runes := []rune(buffer)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}

		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}

		if j == len(runes) {
			// Boundary at buffer end. A digit-preceded period may be an
			// incomplete decimal; wait for more input.
			if c == '.' && i > 0 && unicode.IsDigit(runes[i-1]) {
				continue
			}
			return string(runes[:j]), "", true
		}

		if unicode.IsUpper(runes[j]) {
			return string(runes[:j]), string(runes[j:]), true
		}
	}
	return "", "", false
}

// unresolvedAmount reports whether the buffer tail is an in-flight currency
// amount: the last `$` is followed only by amount characters through the end
// of the buffer.
func unresolvedAmount(buffer string) bool {
	idx := strings.LastIndexByte(buffer, '$')
	if idx < 0 {
		return false
	}
	for _, c := range buffer[idx+1:] {
		if !unicode.IsDigit(c) && c != '.' && c != ',' {
			return false
		}
	}
	return true
}
