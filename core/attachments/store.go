package attachments

import (
	"fmt"
	"io"
	"sync"
)

// Store maps content ids to attachments for the lifetime of their dialog. It
// satisfies the attachment provider contract of the directive layer.
type Store struct {
	mu          sync.Mutex
	attachments map[string]*Attachment
}

func NewStore() *Store {
	return &Store{attachments: map[string]*Attachment{}}
}

// Create registers an empty attachment under contentID and returns it for
// writing. Creating an id twice replaces the previous attachment.
func (s *Store) Create(contentID string) *Attachment {
	attachment := newAttachment()

	s.mu.Lock()
	s.attachments[contentID] = attachment
	s.mu.Unlock()

	return attachment
}

// Reader hands out the single reader of the attachment registered under
// contentID.
func (s *Store) Reader(contentID string) (io.ReadCloser, error) {
	s.mu.Lock()
	attachment, ok := s.attachments[contentID]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no attachment with content id %q", contentID)
	}
	return attachment, nil
}

// Release drops the attachment registered under contentID and closes its
// reader side so nothing stays blocked on it.
func (s *Store) Release(contentID string) {
	s.mu.Lock()
	attachment, ok := s.attachments[contentID]
	delete(s.attachments, contentID)
	s.mu.Unlock()

	if ok {
		attachment.Close()
	}
}
