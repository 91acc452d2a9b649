package dropbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wolfeidau/studioos/internal/galleries"
	"github.com/wolfeidau/studioos/internal/models"
)

var ErrFolderRequired = errors.New("dropbox folder is required")

const listLimit = 2000

// PhotoImporter is the part of the gallery service the importer writes to.
type PhotoImporter interface {
	Get(ctx context.Context, orgID, galleryID uuid.UUID) (*models.Gallery, error)
	Update(ctx context.Context, orgID, galleryID uuid.UUID, settings galleries.Settings) (*models.Gallery, error)
	ListPhotos(ctx context.Context, orgID, galleryID uuid.UUID) ([]*models.Photo, error)
	AddPhotos(ctx context.Context, orgID, galleryID uuid.UUID, inputs []galleries.PhotoInput) ([]*models.Photo, error)
}

type entry struct {
	Tag         string `json:".tag"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	PathLower   string `json:"path_lower"`
	PathDisplay string `json:"path_display"`
	Size        int64  `json:"size"`
	ContentHash string `json:"content_hash"`
}

type listResult struct {
	Entries []entry `json:"entries"`
	Cursor  string  `json:"cursor"`
	HasMore bool    `json:"has_more"`
}

// ImportResult reports what an import added.
type ImportResult struct {
	Added   []*models.Photo `json:"added"`
	Skipped int             `json:"skipped"`
}

// ImportFolder adds every image in folder that the gallery does not already
// hold, matching on filename. An empty folder reuses the gallery's last import folder.
func (s *Service) ImportFolder(ctx context.Context, orgID, galleryID uuid.UUID, folder string) (*ImportResult, error) {
	g, err := s.galleries.Get(ctx, orgID, galleryID)
	if err != nil {
		return nil, err
	}

	folder = normalizeFolder(folder)
	if folder == "" {
		folder = normalizeFolder(g.DropboxFolder)
	}
	if folder == "" {
		return nil, ErrFolderRequired
	}

	hc, err := s.authorizedClient(ctx, orgID)
	if err != nil {
		return nil, err
	}

	files, err := s.listFolder(ctx, hc, folder)
	if err != nil {
		return nil, fmt.Errorf("failed to list dropbox folder %q: %w", folder, err)
	}

	existing, err := s.galleries.ListPhotos(ctx, orgID, galleryID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[strings.ToLower(p.Filename)] = true
	}

	result := &ImportResult{}
	var inputs []galleries.PhotoInput
	for _, f := range files {
		name := strings.ToLower(f.Name)
		if seen[name] {
			result.Skipped++
			continue
		}
		seen[name] = true
		inputs = append(inputs, galleries.PhotoInput{
			Filename:  f.Name,
			ObjectKey: galleries.RemotePrefix + f.ID,
			SizeBytes: f.Size,
		})
	}

	result.Added, err = s.galleries.AddPhotos(ctx, orgID, galleryID, inputs)
	if err != nil {
		return nil, err
	}

	if g.DropboxFolder != folder {
		if _, err := s.galleries.Update(ctx, orgID, galleryID, galleries.Settings{DropboxFolder: &folder}); err != nil {
			return nil, err
		}
	}

	zerolog.Ctx(ctx).Info().
		Str("gallery_id", galleryID.String()).
		Str("folder", folder).
		Int("added", len(result.Added)).
		Int("skipped", result.Skipped).
		Msg("Dropbox folder imported")

	return result, nil
}

// listFolder pages through list_folder and returns the image files.
func (s *Service) listFolder(ctx context.Context, hc *http.Client, folder string) ([]entry, error) {
	var page listResult
	err := s.rpc(ctx, hc, "/2/files/list_folder", map[string]any{
		"path":      folder,
		"recursive": false,
		"limit":     listLimit,
	}, &page)
	if err != nil {
		return nil, err
	}

	var files []entry
	for {
		for _, e := range page.Entries {
			if e.Tag == "file" && galleries.IsImageFile(e.Name) {
				files = append(files, e)
			}
		}
		if !page.HasMore {
			return files, nil
		}

		cursor := page.Cursor
		page = listResult{}
		if err := s.rpc(ctx, hc, "/2/files/list_folder/continue", map[string]string{"cursor": cursor}, &page); err != nil {
			return nil, err
		}
	}
}

// Fetch downloads a file by Dropbox path or id.
func (s *Service) Fetch(ctx context.Context, orgID uuid.UUID, remotePath string) ([]byte, error) {
	hc, err := s.authorizedClient(ctx, orgID)
	if err != nil {
		return nil, err
	}

	arg, err := apiArg(map[string]string{"path": remotePath})
	if err != nil {
		return nil, err
	}

	resp, err := s.api.Do(ctx, hc, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.contentURL+"/2/files/download", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Dropbox-API-Arg", arg)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %q: %w", remotePath, err)
	}
	return resp.Body, nil
}

func normalizeFolder(folder string) string {
	folder = strings.TrimSpace(folder)
	if folder == "" || folder == "/" {
		return ""
	}
	if !strings.HasPrefix(folder, "/") && !strings.HasPrefix(folder, "id:") {
		folder = "/" + folder
	}
	if strings.HasPrefix(folder, "/") {
		folder = path.Clean(folder)
	}
	return folder
}

// apiArg encodes a Dropbox-API-Arg header value. HTTP headers must be ASCII,
// so non-ASCII runes are escaped.
func apiArg(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode dropbox api arg: %w", err)
	}

	var b strings.Builder
	for _, r := range string(data) {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
			continue
		}
		for _, u := range utf16.Encode([]rune{r}) {
			fmt.Fprintf(&b, `\u%04x`, u)
		}
	}
	return b.String(), nil
}
