package segment

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/slingshot-ai/slingdial/internal/dialog"
)

func chunkEvents(chunks ...string) []dialog.Event {
	evs := make([]dialog.Event, 0, len(chunks))
	for _, c := range chunks {
		evs = append(evs, dialog.Event{Kind: dialog.EventStreamChunk, Text: c})
	}
	return evs
}

func streamOf(evs ...dialog.Event) *dialog.EventStream {
	sr, sw := schema.Pipe[dialog.Event](len(evs) + 1)
	go func() {
		for _, ev := range evs {
			sw.Send(ev, nil)
		}
		sw.Close()
	}()
	return sr
}

func speakAll(t *testing.T, s *Segmenter, evs []dialog.Event) []string {
	t.Helper()
	first, rest, err := s.Speak(context.Background(), streamOf(evs...))
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	out := []string{first}
	for {
		sentence, err := rest.Recv()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("rest: %v", err)
		}
		out = append(out, sentence)
	}
}

func seeded() *Segmenter {
	return New(WithRand(rand.New(rand.NewSource(42))))
}

func TestDecimalAmountNotSplit(t *testing.T) {
	got := speakAll(t, seeded(), chunkEvents(
		"Your total is $3", "00.0", "0. Anything else?",
	))
	want := []string{"Your total is $300.00.", "Anything else?"}
	if len(got) != len(want) {
		t.Fatalf("sentences = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCurrencyWithoutDecimalStillSplits(t *testing.T) {
	got := speakAll(t, seeded(), chunkEvents("It costs $5 today. Than", "ks."))
	want := []string{"It costs $5 today.", "Thanks."}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("sentences = %q, want %q", got, want)
	}
}

func TestSentencesConcatenateToFullOutput(t *testing.T) {
	full := "Good morning. This is Slingshot Financial! Am I speaking with the account holder?"
	var chunks []string
	for i := 0; i < len(full); i += 7 {
		end := i + 7
		if end > len(full) {
			end = len(full)
		}
		chunks = append(chunks, full[i:end])
	}

	got := speakAll(t, seeded(), chunkEvents(chunks...))
	joined := strings.Join(got, " ")
	if joined != full {
		t.Fatalf("concatenated = %q, want %q", joined, full)
	}
}

func TestFlushTailWithoutPunctuation(t *testing.T) {
	got := speakAll(t, seeded(), chunkEvents("Okay, goodbye"))
	if len(got) != 1 || got[0] != "Okay, goodbye" {
		t.Fatalf("sentences = %q", got)
	}
}

func TestDeterministicToolBypassesBuffering(t *testing.T) {
	evs := append(
		chunkEvents("Give me a second"),
		dialog.Event{Kind: dialog.EventToolEnd, Text: "DETERMINISTIC A live agent will call you back. Thank you, and goodbye."},
		dialog.Event{Kind: dialog.EventStreamChunk, Text: "This text arrives after the turn ended."},
	)

	got := speakAll(t, seeded(), evs)
	last := got[len(got)-1]
	if last != "A live agent will call you back. Thank you, and goodbye." {
		t.Fatalf("final sentence = %q", last)
	}
	for _, s := range got {
		if strings.Contains(s, "after the turn ended") {
			t.Fatal("segmenter kept consuming after a deterministic tool result")
		}
	}
}

func TestAdminNodeOutputYieldsImmediately(t *testing.T) {
	evs := []dialog.Event{
		{Kind: dialog.EventNodeEnd, Node: "account_note", Text: "No problem.  I have noted on your account about your request."},
	}
	got := speakAll(t, seeded(), evs)
	if len(got) != 1 || !strings.Contains(got[0], "noted on your account") {
		t.Fatalf("sentences = %q", got)
	}
}

func TestMarkersNeverReachOutput(t *testing.T) {
	evs := append(
		chunkEvents("DETERMINISTIC Sure thing. ", "All done now. "),
		dialog.Event{Kind: dialog.EventToolEnd, Text: "DETERMINISTIC Goodbye."},
	)
	got := speakAll(t, seeded(), evs)
	for _, s := range got {
		if strings.Contains(s, "DETERMINISTIC") || strings.Contains(s, "ROUTE ") {
			t.Fatalf("marker leaked into output: %q", s)
		}
	}
}

func TestLeakedFunctionReferencesReplacedWithDistinctFillers(t *testing.T) {
	evs := chunkEvents(
		"I will call functions.transfer now. ",
		"Invoking functions.validate next. ",
		"Trying escalate_to_human again. ",
	)
	got := speakAll(t, seeded(), evs)
	if len(got) != 3 {
		t.Fatalf("sentences = %q, want 3 fillers", got)
	}

	pool := map[string]bool{}
	for _, f := range DefaultFillers {
		pool[f] = true
	}
	seen := map[string]bool{}
	for _, s := range got {
		if !pool[s] {
			t.Errorf("sentence %q is not a filler phrase", s)
		}
		if seen[s] {
			t.Errorf("filler %q reused within a turn", s)
		}
		seen[s] = true
	}
}

func TestFillerPoolRefillsWhenExhausted(t *testing.T) {
	evs := chunkEvents(
		"Leak one functions.a. ",
		"Leak two functions.b. ",
		"Leak three functions.c. ",
		"Leak four functions.d. ",
	)
	got := speakAll(t, seeded(), evs)
	if len(got) != 4 {
		t.Fatalf("sentences = %q, want 4", got)
	}
	pool := map[string]bool{}
	for _, f := range DefaultFillers {
		pool[f] = true
	}
	if !pool[got[3]] {
		t.Fatalf("fourth leak produced %q, want a refilled pool phrase", got[3])
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	evs := chunkEvents(
		"Using functions.check here. ",
		"And functions.verify there. ",
		"Your total is $300.00. Anything else?",
	)

	a := speakAll(t, New(WithRand(rand.New(rand.NewSource(7)))), evs)
	b := speakAll(t, New(WithRand(rand.New(rand.NewSource(7)))), evs)

	if len(a) != len(b) {
		t.Fatalf("replay lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("replay diverged at %d: %q vs %q", i, a[i], b[i])
		}
	}
}

func TestStreamErrorTerminatesGracefully(t *testing.T) {
	sr, sw := schema.Pipe[dialog.Event](2)
	go func() {
		sw.Send(dialog.Event{Kind: dialog.EventStreamChunk, Text: "Partial sente"}, nil)
		sw.Send(dialog.Event{}, errors.New("transport failed"))
		sw.Close()
	}()

	s := seeded()
	_, _, err := s.Speak(context.Background(), sr)
	if err == nil {
		t.Fatal("Speak should fail when the stream dies before a sentence")
	}
}

func TestTurnErrorEventStopsStream(t *testing.T) {
	evs := append(
		chunkEvents("First one is fine. "),
		dialog.Event{Kind: dialog.EventTurnError, Err: errors.New("node failed")},
		dialog.Event{Kind: dialog.EventStreamChunk, Text: "Never spoken. "},
	)
	got := speakAll(t, seeded(), evs)
	for _, s := range got {
		if strings.Contains(s, "Never spoken") {
			t.Fatalf("segmenter continued past turn error: %q", got)
		}
	}
}

func TestEmptyTurnReturnsError(t *testing.T) {
	s := seeded()
	_, _, err := s.Speak(context.Background(), streamOf())
	if err == nil {
		t.Fatal("expected error for a turn with no speakable output")
	}
}
