package phonebook

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestBook(t *testing.T) *Book {
	t.Helper()
	book, err := Open(filepath.Join(t.TempDir(), "phonebook.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { book.Close() })
	return book
}

func TestNextReturnsLowestIDUncalled(t *testing.T) {
	book := newTestBook(t)

	first, err := book.Add("+15550001111", "en")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := book.Add("+15550002222", "kr"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	c, err := book.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if c.ID != first {
		t.Errorf("expected contact %d, got %d", first, c.ID)
	}
	if c.PhoneNumber != "+15550001111" || c.Language != "en" {
		t.Errorf("unexpected contact %+v", c)
	}
}

func TestMarkCalledAdvancesNext(t *testing.T) {
	book := newTestBook(t)

	first, _ := book.Add("+15550001111", "en")
	if _, err := book.Add("+15550002222", "kr"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := book.MarkCalled(first); err != nil {
		t.Fatalf("MarkCalled: %v", err)
	}

	c, err := book.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if c.PhoneNumber != "+15550002222" {
		t.Errorf("expected second contact, got %+v", c)
	}
	if c.Language != "kr" {
		t.Errorf("expected language kr, got %q", c.Language)
	}
}

func TestNextExhausted(t *testing.T) {
	book := newTestBook(t)

	id, _ := book.Add("+15550001111", "en")
	if err := book.MarkCalled(id); err != nil {
		t.Fatalf("MarkCalled: %v", err)
	}

	if _, err := book.Next(); !errors.Is(err, ErrNoContacts) {
		t.Fatalf("expected ErrNoContacts, got %v", err)
	}
}

func TestMarkCalledUnknownID(t *testing.T) {
	book := newTestBook(t)
	if err := book.MarkCalled(99); err == nil {
		t.Fatal("expected error for unknown contact id")
	}
}

func TestMarkCalledStampsUTC(t *testing.T) {
	book := newTestBook(t)

	id, _ := book.Add("+15550001111", "en")
	if err := book.MarkCalled(id); err != nil {
		t.Fatalf("MarkCalled: %v", err)
	}

	contacts, err := book.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(contacts) != 1 {
		t.Fatalf("expected 1 contact, got %d", len(contacts))
	}
	c := contacts[0]
	if !c.Called {
		t.Error("expected contact marked called")
	}
	stamp, err := time.Parse(time.RFC3339, c.LastCalled)
	if err != nil {
		t.Fatalf("last_called not RFC3339: %v", err)
	}
	if time.Since(stamp) > time.Minute {
		t.Errorf("stale last_called stamp %v", stamp)
	}
}

func TestRemaining(t *testing.T) {
	book := newTestBook(t)

	id, _ := book.Add("+15550001111", "en")
	book.Add("+15550002222", "en")
	book.Add("+15550003333", "kr")

	n, err := book.Remaining()
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 remaining, got %d", n)
	}

	if err := book.MarkCalled(id); err != nil {
		t.Fatalf("MarkCalled: %v", err)
	}
	n, err = book.Remaining()
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 remaining, got %d", n)
	}
}

func TestAddDefaultsLanguage(t *testing.T) {
	book := newTestBook(t)
	if _, err := book.Add("+15550001111", ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	c, err := book.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if c.Language != "en" {
		t.Errorf("expected default language en, got %q", c.Language)
	}
}
