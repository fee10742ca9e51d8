package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/isdelr/chirper-be/internal/apperror"
	"github.com/isdelr/chirper-be/internal/auth"
	"github.com/isdelr/chirper-be/internal/media"
	"github.com/isdelr/chirper-be/internal/models"
)

// multipartMemory is how much of a multipart body is kept in memory before
// parts spill to temporary files.
const multipartMemory = 8 << 20

// multipartOverhead allows for form fields and boundaries on top of the file.
const multipartOverhead = 1 << 20

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperror.NewValidation("Invalid request body", err)
	}
	return nil
}

// actingUser returns the user bound by auth.JWTMiddleware.
func actingUser(r *http.Request) (models.User, error) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return models.User{}, apperror.NewUnauthenticated("Unauthorized: no token provided")
	}
	return user, nil
}

// pageFromQuery reads limit and offset. Malformed values fall back to defaults.
func pageFromQuery(r *http.Request) models.Page {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return models.Page{Limit: limit, Offset: offset}.Normalize()
}

// setNextLink advertises the following page when this one came back full.
func setNextLink(w http.ResponseWriter, r *http.Request, page models.Page, n int) {
	if n < page.Limit {
		return
	}
	next := page.Next()
	u := url.URL{Path: r.URL.Path}
	q := r.URL.Query()
	q.Set("limit", strconv.Itoa(next.Limit))
	q.Set("offset", strconv.Itoa(next.Offset))
	u.RawQuery = q.Encode()
	w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, u.String()))
}

// parseMultipart caps the body at maxUpload plus form overhead and parses it.
func parseMultipart(w http.ResponseWriter, r *http.Request, maxUpload int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.NewPayloadTooLarge("File too large")
		}
		return apperror.NewValidation("Invalid multipart form", err)
	}
	return nil
}

// formImage returns the uploaded file under field, or nil when none was sent.
// The caller closes Body through the returned closer.
func formImage(r *http.Request, field string) (*media.Image, io.Closer, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, nil
		}
		return nil, nil, apperror.NewValidation("Invalid file upload", err)
	}
	return &media.Image{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}, file, nil
}
