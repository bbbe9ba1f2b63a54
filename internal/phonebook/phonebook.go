// Package phonebook stores the contacts an outbound dial campaign works
// through. Contacts are dialed in insertion order and marked off once a
// call completes, so a restarted campaign resumes where it left off.
package phonebook

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNoContacts is returned by Next when every contact has been called.
var ErrNoContacts = errors.New("phonebook: no uncalled contacts")

// Contact is one entry in the phonebook.
type Contact struct {
	ID          int64
	PhoneNumber string
	Language    string
	Called      bool
	LastCalled  string
}

// Book is a sqlite-backed phonebook.
type Book struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS phonebook (
	id INTEGER PRIMARY KEY,
	phone_number TEXT NOT NULL,
	language TEXT NOT NULL DEFAULT 'en',
	has_been_called INTEGER NOT NULL DEFAULT 0,
	last_called TEXT
);`

// Open opens (creating if needed) the phonebook database at path.
func Open(path string) (*Book, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open phonebook: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init phonebook schema: %w", err)
	}
	return &Book{db: db}, nil
}

// Close closes the underlying database.
func (b *Book) Close() error {
	return b.db.Close()
}

// Add inserts a contact with the given number and language.
func (b *Book) Add(phoneNumber, language string) (int64, error) {
	if language == "" {
		language = "en"
	}
	res, err := b.db.Exec(
		`INSERT INTO phonebook (phone_number, language) VALUES (?, ?)`,
		phoneNumber, language,
	)
	if err != nil {
		return 0, fmt.Errorf("add contact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add contact: %w", err)
	}
	return id, nil
}

// Next returns the lowest-id contact that has not been called yet.
func (b *Book) Next() (*Contact, error) {
	row := b.db.QueryRow(
		`SELECT id, phone_number, language FROM phonebook
		 WHERE has_been_called = 0 ORDER BY id LIMIT 1`,
	)
	var c Contact
	if err := row.Scan(&c.ID, &c.PhoneNumber, &c.Language); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoContacts
		}
		return nil, fmt.Errorf("next contact: %w", err)
	}
	return &c, nil
}

// MarkCalled flags a contact as called and stamps the call time in UTC.
func (b *Book) MarkCalled(id int64) error {
	stamp := time.Now().UTC().Format(time.RFC3339)
	res, err := b.db.Exec(
		`UPDATE phonebook SET has_been_called = 1, last_called = ? WHERE id = ?`,
		stamp, id,
	)
	if err != nil {
		return fmt.Errorf("mark called: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark called: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mark called: no contact with id %d", id)
	}
	return nil
}

// Remaining counts the contacts not yet called.
func (b *Book) Remaining() (int, error) {
	row := b.db.QueryRow(`SELECT COUNT(*) FROM phonebook WHERE has_been_called = 0`)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count remaining: %w", err)
	}
	return n, nil
}

// List returns all contacts in id order.
func (b *Book) List() ([]Contact, error) {
	rows, err := b.db.Query(
		`SELECT id, phone_number, language, has_been_called, COALESCE(last_called, '')
		 FROM phonebook ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		var called int
		if err := rows.Scan(&c.ID, &c.PhoneNumber, &c.Language, &called, &c.LastCalled); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		c.Called = called != 0
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}
