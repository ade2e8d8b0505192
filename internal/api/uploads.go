package api

import (
	"errors"
	"net/http"

	"github.com/npezzotti/go-messenger/internal/apperror"
	"github.com/npezzotti/go-messenger/internal/upload"
)

const (
	// room for multipart framing around a maximum-size file
	maxUploadRequest = upload.MaxSize + 1<<20
	maxUploadMemory  = 1 << 20
)

// saveUpload stores the file sent in field and returns its reference.
func (s *MessengerApp) saveUpload(w http.ResponseWriter, r *http.Request, field string) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadRequest)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return "", err
		}
		return "", apperror.ValidationFailed(field, "invalid multipart form")
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return "", apperror.ValidationFailed(field, "no file uploaded")
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if err := upload.Validate(header.Filename, contentType, header.Size); err != nil {
		return "", err
	}

	return s.blobs.Save(header.Filename, contentType, file)
}

// uploadProfileImage stores an avatar or banner and, when a username is
// given, points that user's profile at it.
func (s *MessengerApp) uploadProfileImage(field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, err := s.saveUpload(w, r, field)
		if err != nil {
			s.writeError(w, err)
			return
		}

		if username := r.FormValue("username"); username != "" {
			var avatarRef, bannerRef *string
			if field == "avatar" {
				avatarRef = &ref
			} else {
				bannerRef = &ref
			}

			if _, err := s.cs.UpdateProfile(r.Context(), username, avatarRef, bannerRef); err != nil {
				if !errors.Is(err, apperror.ErrNotFound) {
					s.writeError(w, err)
					return
				}
				s.log.Printf("%s uploaded for unknown user %q", field, username)
			}
		}

		s.writeOK(w, "url", ref)
	}
}

func (s *MessengerApp) uploadChatImage(w http.ResponseWriter, r *http.Request) {
	ref, err := s.saveUpload(w, r, "image")
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeOK(w, "url", ref)
}
