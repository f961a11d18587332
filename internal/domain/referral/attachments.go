package referral

import (
	"errors"
	"sync"
)

// ErrAttachmentIndex is returned by RemoveAt for an out of range index.
var ErrAttachmentIndex = errors.New("attachment index out of range")

// AttachmentList is the ordered, user-editable list of files attached to a
// form. Every mutation reports the full new list to onChange.
type AttachmentList struct {
	mu       sync.Mutex
	files    []AttachedFile
	onChange func([]AttachedFile)
}

// NewAttachmentList creates an empty list. onChange may be nil.
func NewAttachmentList(onChange func([]AttachedFile)) *AttachmentList {
	return &AttachmentList{onChange: onChange}
}

// Add appends files in order. Duplicates are kept.
func (l *AttachmentList) Add(files ...AttachedFile) {
	if len(files) == 0 {
		return
	}
	l.mu.Lock()
	for _, f := range files {
		if f.Size == 0 {
			f.Size = len(f.Data)
		}
		l.files = append(l.files, f)
	}
	snapshot := l.snapshot()
	l.mu.Unlock()

	l.notify(snapshot)
}

// RemoveAt removes the file at index i. Later files shift down by one.
func (l *AttachmentList) RemoveAt(i int) error {
	l.mu.Lock()
	if i < 0 || i >= len(l.files) {
		l.mu.Unlock()
		return ErrAttachmentIndex
	}
	l.files = append(l.files[:i:i], l.files[i+1:]...)
	snapshot := l.snapshot()
	l.mu.Unlock()

	l.notify(snapshot)
	return nil
}

// Files returns a copy of the current list.
func (l *AttachmentList) Files() []AttachedFile {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

// Len returns the number of attached files.
func (l *AttachmentList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.files)
}

func (l *AttachmentList) snapshot() []AttachedFile {
	out := make([]AttachedFile, len(l.files))
	copy(out, l.files)
	return out
}

func (l *AttachmentList) notify(files []AttachedFile) {
	if l.onChange != nil {
		l.onChange(files)
	}
}
