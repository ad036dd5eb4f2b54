package domain

import "fmt"

// Keyword is a controlled vocabulary term linked to documents many-to-many.
type Keyword struct {
	ID          string
	Term        string
	Description string
}

// DocumentKeyword links a document to a keyword.
type DocumentKeyword struct {
	ID         string
	DocumentID string
	KeywordID  string
}

// ValidateKeyword validates a Keyword instance
func ValidateKeyword(k *Keyword) error {
	if k == nil {
		return fmt.Errorf("keyword cannot be nil")
	}

	if k.Term == "" {
		return fmt.Errorf("keyword Term is required")
	}

	return nil
}
