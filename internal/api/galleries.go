package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wolfeidau/studioos/internal/auth"
	"github.com/wolfeidau/studioos/internal/galleries"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/store"
)

func (s *Server) registerGalleries(mux *http.ServeMux) {
	s.staff(mux, "GET /api/v1/galleries", auth.PermRead, s.listGalleries)
	s.staff(mux, "POST /api/v1/galleries", auth.PermGalleriesWrite, s.createGallery)
	s.staff(mux, "GET /api/v1/galleries/{galleryID}", auth.PermRead, s.getGallery)
	s.staff(mux, "PATCH /api/v1/galleries/{galleryID}", auth.PermGalleriesWrite, s.updateGallery)
	s.staff(mux, "PUT /api/v1/galleries/{galleryID}/password", auth.PermGalleriesWrite, s.setGalleryPassword)
	s.staff(mux, "POST /api/v1/galleries/{galleryID}/publish", auth.PermGalleriesWrite, s.galleryTransition((*galleries.Service).Publish))
	s.staff(mux, "POST /api/v1/galleries/{galleryID}/deliver", auth.PermGalleriesWrite, s.galleryTransition((*galleries.Service).Deliver))
	s.staff(mux, "POST /api/v1/galleries/{galleryID}/archive", auth.PermGalleriesWrite, s.galleryTransition((*galleries.Service).Archive))

	s.staff(mux, "GET /api/v1/galleries/{galleryID}/photos", auth.PermRead, s.listPhotos)
	s.staff(mux, "POST /api/v1/galleries/{galleryID}/photos", auth.PermGalleriesWrite, s.uploadPhoto)
	s.staff(mux, "DELETE /api/v1/galleries/{galleryID}/photos/{photoID}", auth.PermGalleriesWrite, s.removePhoto)
	s.staff(mux, "PUT /api/v1/galleries/{galleryID}/photos/{photoID}/web", auth.PermGalleriesWrite, s.uploadWebRendition)
	s.staff(mux, "POST /api/v1/galleries/{galleryID}/dropbox-import", auth.PermGalleriesWrite, s.importDropbox)
}

// galleryView adds the share URL to a gallery. The password hash is never serialized.
type galleryView struct {
	*models.Gallery
	PublicURL   string `json:"public_url"`
	HasPassword bool   `json:"has_password"`
}

func (s *Server) galleryView(g *models.Gallery) galleryView {
	return galleryView{Gallery: g, PublicURL: s.svc.Galleries.PublicURL(g), HasPassword: g.HasPassword()}
}

type galleryRequest struct {
	ClientID           string           `json:"client_id"`
	Title              *string          `json:"title"`
	PricePerPhoto      *decimal.Decimal `json:"price_per_photo"`
	PackagePrice       *decimal.Decimal `json:"package_price"`
	AllowDownloads     *bool            `json:"allow_downloads"`
	DownloadResolution *string          `json:"download_resolution"`
	WatermarkEnabled   *bool            `json:"watermark_enabled"`
	ExpiresAt          *time.Time       `json:"expires_at"`
	ClearExpiry        bool             `json:"clear_expiry"`
	DropboxFolder      *string          `json:"dropbox_folder"`
}

func (g galleryRequest) settings() galleries.Settings {
	return galleries.Settings{
		Title:              g.Title,
		PricePerPhoto:      g.PricePerPhoto,
		PackagePrice:       g.PackagePrice,
		AllowDownloads:     g.AllowDownloads,
		DownloadResolution: g.DownloadResolution,
		WatermarkEnabled:   g.WatermarkEnabled,
		ExpiresAt:          g.ExpiresAt,
		ClearExpiry:        g.ClearExpiry,
		DropboxFolder:      g.DropboxFolder,
	}
}

func (s *Server) listGalleries(w http.ResponseWriter, r *http.Request) {
	clientID, err := queryID(r, "client_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.svc.Galleries.List(r.Context(), principal(r).OrgID, store.ListGalleriesOptions{
		ClientID: clientID,
		Status:   r.URL.Query().Get("status"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	views := make([]galleryView, 0, len(list))
	for _, g := range list {
		views = append(views, s.galleryView(g))
	}
	writeJSON(w, r, http.StatusOK, views)
}

func (s *Server) createGallery(w http.ResponseWriter, r *http.Request) {
	var req galleryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	clientID, err := parseID(req.ClientID, "client_id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	g, err := s.svc.Galleries.Create(r.Context(), principal(r).OrgID, clientID, req.settings())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, s.galleryView(g))
}

func (s *Server) getGallery(w http.ResponseWriter, r *http.Request) {
	galleryID, err := pathID(r, "galleryID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.svc.Galleries.Get(r.Context(), principal(r).OrgID, galleryID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s.galleryView(g))
}

func (s *Server) updateGallery(w http.ResponseWriter, r *http.Request) {
	galleryID, err := pathID(r, "galleryID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req galleryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.svc.Galleries.Update(r.Context(), principal(r).OrgID, galleryID, req.settings())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s.galleryView(g))
}

func (s *Server) setGalleryPassword(w http.ResponseWriter, r *http.Request) {
	galleryID, err := pathID(r, "galleryID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Galleries.SetPassword(r.Context(), principal(r).OrgID, galleryID, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type galleryTransitionFunc func(*galleries.Service, context.Context, uuid.UUID, uuid.UUID) (*models.Gallery, error)

func (s *Server) galleryTransition(transition galleryTransitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		galleryID, err := pathID(r, "galleryID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		g, err := transition(s.svc.Galleries, r.Context(), principal(r).OrgID, galleryID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, s.galleryView(g))
	}
}

func (s *Server) listPhotos(w http.ResponseWriter, r *http.Request) {
	galleryID, err := pathID(r, "galleryID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	photos, err := s.svc.Galleries.ListPhotos(r.Context(), principal(r).OrgID, galleryID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, photos)
}

// uploadPhoto accepts a multipart form with the image in the "file" field.
func (s *Server) uploadPhoto(w http.ResponseWriter, r *http.Request) {
	galleryID, err := pathID(r, "galleryID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, badRequest("file is required: %v", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, badRequest("photo exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, r, err)
		return
	}

	photo, err := s.svc.Galleries.Upload(r.Context(), principal(r).OrgID, galleryID, header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, photo)
}

func (s *Server) removePhoto(w http.ResponseWriter, r *http.Request) {
	galleryID, err := pathID(r, "galleryID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	photoID, err := pathID(r, "photoID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Galleries.RemovePhoto(r.Context(), principal(r).OrgID, galleryID, photoID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// uploadWebRendition takes the raw JPEG body as the photo's web resolution copy.
func (s *Server) uploadWebRendition(w http.ResponseWriter, r *http.Request) {
	galleryID, err := pathID(r, "galleryID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	photoID, err := pathID(r, "photoID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, badRequest("rendition exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, r, err)
		return
	}

	photo, err := s.svc.Galleries.UploadWebRendition(r.Context(), principal(r).OrgID, galleryID, photoID, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, photo)
}

func (s *Server) importDropbox(w http.ResponseWriter, r *http.Request) {
	if s.svc.Dropbox == nil {
		writeError(w, r, errIntegrationDisabled)
		return
	}
	galleryID, err := pathID(r, "galleryID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Folder string `json:"folder"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.svc.Dropbox.ImportFolder(r.Context(), principal(r).OrgID, galleryID, req.Folder)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}
