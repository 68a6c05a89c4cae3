package httpapi

import (
	"errors"
	"io"
	"net/http"

	"igstore/collections"
	"igstore/gaterr"
	"igstore/media"
	"igstore/profile"

	"github.com/gorilla/mux"
)

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.profiles.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, p)
}

func (s *Server) handleProfileByEmail(w http.ResponseWriter, r *http.Request) {
	p, err := s.profiles.GetByEmail(r.Context(), mux.Vars(r)["email"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, p)
}

// handleEditProfile reads a multipart form with name, email and an optional photo file.
func (s *Server) handleEditProfile(w http.ResponseWriter, r *http.Request) {
	const op = "httpapi.EditProfile"
	if err := s.parseMultipart(w, r, op); err != nil {
		respondError(w, r, err)
		return
	}
	photo, err := formFile(r, op, "photo")
	if err != nil {
		respondError(w, r, err)
		return
	}
	form := profile.EditForm{
		Name:  r.FormValue("name"),
		Email: r.FormValue("email"),
		Photo: photo,
	}
	p, err := s.profiles.Edit(r.Context(), form, nil)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, p)
}

// handleStoreGallery reads a multipart form with title, description and the img file. Upload
// progress reaches clients through the event stream.
func (s *Server) handleStoreGallery(w http.ResponseWriter, r *http.Request) {
	const op = "httpapi.StoreGallery"
	if err := s.parseMultipart(w, r, op); err != nil {
		respondError(w, r, err)
		return
	}
	img, err := formFile(r, op, "img")
	if err != nil {
		respondError(w, r, err)
		return
	}
	form := media.GalleryForm{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
	}
	if img != nil {
		form.Img = img.Data
		form.ContentType = img.ContentType
	}
	item, err := s.media.StoreGalleryItem(r.Context(), form)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, item.View())
}

func (s *Server) handleListGallery(w http.ResponseWriter, r *http.Request) {
	items, err := s.media.ListGalleryItems(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, views(items))
}

func (s *Server) handleGetGallery(w http.ResponseWriter, r *http.Request) {
	item, err := s.media.GetGalleryItem(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, item.View())
}

func (s *Server) handleUpdateGallery(w http.ResponseWriter, r *http.Request) {
	var edit media.GalleryEdit
	if err := decodeJSON(r, "httpapi.UpdateGallery", &edit); err != nil {
		respondError(w, r, err)
		return
	}
	item, err := s.media.UpdateGalleryItem(r.Context(), mux.Vars(r)["id"], edit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, item.View())
}

func (s *Server) handleDeleteGallery(w http.ResponseWriter, r *http.Request) {
	if err := s.media.DeleteGalleryItem(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, nil)
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request, op string) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		return gaterr.E(gaterr.Validation, op, err)
	}
	return nil
}

// formFile reads the uploaded file named field. A missing file gives a nil asset.
func formFile(r *http.Request, op, field string) (*media.Asset, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, gaterr.E(gaterr.Validation, op, err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, gaterr.E(gaterr.Validation, op, err)
	}
	return &media.Asset{Data: data, ContentType: header.Header.Get("Content-Type")}, nil
}

func views(items []*collections.GalleryItem) []collections.GalleryItemView {
	out := make([]collections.GalleryItemView, 0, len(items))
	for _, item := range items {
		out = append(out, item.View())
	}
	return out
}
