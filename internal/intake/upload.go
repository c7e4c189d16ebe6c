package intake

import (
	"fmt"
	"strings"
)

// Uploader validates image uploads for one session and owns its preview reference.
type Uploader struct {
	previews   PreviewStore
	previewRef string
	dragActive bool
}

func NewUploader(previews PreviewStore) *Uploader {
	return &Uploader{previews: previews}
}

func (u *Uploader) DragEnter() { u.dragActive = true }
func (u *Uploader) DragOver()  { u.dragActive = true }
func (u *Uploader) DragLeave() { u.dragActive = false }

// DragActive reports the ephemeral drop-zone highlight.
func (u *Uploader) DragActive() bool { return u.dragActive }

func (u *Uploader) PreviewRef() string { return u.previewRef }

// AcceptDrop ends the drag gesture and then behaves like AcceptPick.
func (u *Uploader) AcceptDrop(r *Record, file *UploadedFile) error {
	u.dragActive = false
	return u.accept(r, file)
}

func (u *Uploader) AcceptPick(r *Record, file *UploadedFile) error {
	return u.accept(r, file)
}

func (u *Uploader) accept(r *Record, file *UploadedFile) error {
	if file == nil {
		return ErrNoFile
	}
	if !IsImage(file.ContentType) {
		return ErrNotImage
	}
	ref, err := u.previews.Create(*file)
	if err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	u.Release()
	u.previewRef = ref
	r.File = file
	return nil
}

// Release revokes the current preview reference, if any.
func (u *Uploader) Release() {
	if u.previewRef != "" {
		u.previews.Revoke(u.previewRef)
		u.previewRef = ""
	}
}

// IsImage reports whether a declared media type is an image type.
func IsImage(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}
