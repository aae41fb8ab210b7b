package store

import (
	"errors"
	"time"
)

const (
	StatusDraft    = "draft"
	StatusSigned   = "signed"
	StatusArchived = "archived"
)

const (
	VisibilityPrivate = "private"
	VisibilityOrg     = "org"
	VisibilityPublic  = "public"
)

const (
	ActionUploaded = "uploaded"
	ActionEdited   = "edited"
	ActionSigned   = "signed"
	ActionLocked   = "locked"
)

var (
	// ErrDuplicateEmail is returned when a user with the same email exists.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrVersionConflict is returned when another append won the race for the
	// next version number.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDocumentArchived is returned when appending to an archived document.
	ErrDocumentArchived = errors.New("document archived")
	// ErrAlreadyAnchored is returned when a version already carries a tx hash.
	ErrAlreadyAnchored = errors.New("version already anchored")
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	OAuthID      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword reports whether the account can sign in with a password.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

type Document struct {
	ID             string
	Title          string
	CreatedBy      string
	CreatorName    string
	CurrentVersion int
	Status         string
	Visibility     string
	Editors        []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsArchived reports whether the document reached its terminal state.
func (d Document) IsArchived() bool {
	return d.Status == StatusArchived
}

// HasEditor reports whether userID is listed as an editor.
func (d Document) HasEditor(userID string) bool {
	for _, id := range d.Editors {
		if id == userID {
			return true
		}
	}
	return false
}

// Version is an immutable snapshot of a document's content. Payload holds the
// editor's SFDT JSON untouched.
type Version struct {
	DocumentID    string
	Version       int
	Action        string
	Payload       string
	ContentHash   string
	TxHash        string
	CommitHash    string
	SignatureName string
	AuthorID      string
	AuthorName    string
	CreatedAt     time.Time
}

// AppendVersionInput carries everything AppendVersion needs to write one
// version row and advance the document atomically.
type AppendVersionInput struct {
	DocumentID      string
	ExpectedVersion int
	Action          string
	Payload         string
	ContentHash     string
	CommitHash      string
	SignatureName   string
	AuthorID        string
	// NewStatus, when set, replaces the document status in the same transaction.
	NewStatus  string
	SearchText string
}

type Editor struct {
	UserID   string
	Email    string
	FullName string
	AddedAt  time.Time
}
