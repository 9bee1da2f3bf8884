package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/journalsync/internal/client/models"
	"github.com/dmitrijs2005/journalsync/internal/common"
)

// HTTPClient implements Client over the remote store's JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Options configures NewHTTPClient. Timeout is the per-request ceiling and
// defaults to 30s. HTTPClient, when set, wins over Timeout (tests inject
// httptest clients this way).
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func NewHTTPClient(opts Options) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		token:      opts.Token,
		httpClient: httpClient,
	}
}

// wire types

type wireNote struct {
	ID              string    `json:"id"`
	Date            string    `json:"date"`
	KeyID           string    `json:"keyId"`
	Ciphertext      []byte    `json:"ciphertext"`
	Nonce           []byte    `json:"nonce"`
	Version         int       `json:"version"`
	UpdatedAt       time.Time `json:"updatedAt"`
	Revision        int64     `json:"revision"`
	ServerUpdatedAt time.Time `json:"serverUpdatedAt"`
	Deleted         bool      `json:"deleted"`
}

type changesResponse struct {
	Notes  []wireNote `json:"notes"`
	Cursor string     `json:"cursor"`
}

type datesResponse struct {
	Dates []string `json:"dates"`
}

type presignResponse struct {
	URL string `json:"url"`
}

type deleteRequest struct {
	ID   string `json:"id,omitempty"`
	Date string `json:"date,omitempty"`
}

func fromWire(w wireNote) *models.RemoteNote {
	return &models.RemoteNote{
		NoteRecord: models.NoteRecord{
			Version:    w.Version,
			Date:       w.Date,
			KeyID:      w.KeyID,
			Ciphertext: w.Ciphertext,
			Nonce:      w.Nonce,
			UpdatedAt:  w.UpdatedAt,
		},
		ID:              w.ID,
		Revision:        w.Revision,
		ServerUpdatedAt: w.ServerUpdatedAt,
		Deleted:         w.Deleted,
	}
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/ping", nil, nil)
}

func (c *HTTPClient) FetchNoteByDate(ctx context.Context, date string) (*models.RemoteNote, error) {
	var w wireNote
	err := c.do(ctx, http.MethodGet, "/api/notes/"+url.PathEscape(date), nil, &w)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return fromWire(w), nil
}

func (c *HTTPClient) FetchNoteDates(ctx context.Context, year int) ([]string, error) {
	path := "/api/notes/dates"
	if year != 0 {
		path += fmt.Sprintf("?year=%d", year)
	}
	var resp datesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Dates, nil
}

func (c *HTTPClient) FetchNotesSince(ctx context.Context, cursor string) ([]*models.RemoteNote, string, error) {
	path := "/api/notes/changes"
	if cursor != "" {
		path += "?since=" + url.QueryEscape(cursor)
	}
	var resp changesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, "", err
	}
	notes := make([]*models.RemoteNote, 0, len(resp.Notes))
	for _, w := range resp.Notes {
		notes = append(notes, fromWire(w))
	}
	return notes, resp.Cursor, nil
}

func (c *HTTPClient) PushNote(ctx context.Context, payload *models.RemoteNotePayload) (*models.RemoteNote, error) {
	var w wireNote
	if err := c.do(ctx, http.MethodPost, "/api/notes", payload, &w); err != nil {
		return nil, err
	}
	return fromWire(w), nil
}

func (c *HTTPClient) DeleteNote(ctx context.Context, id, date string) error {
	err := c.do(ctx, http.MethodDelete, "/api/notes", deleteRequest{ID: id, Date: date}, nil)
	if err != nil && isNotFound(err) {
		// already gone remotely; the tombstone's goal is met
		return nil
	}
	return err
}

func (c *HTTPClient) PresignImagePut(ctx context.Context, imageID string) (string, error) {
	var resp presignResponse
	body := map[string]string{"imageId": imageID}
	if err := c.do(ctx, http.MethodPost, "/api/images/presign-put", body, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// UploadImage PUTs straight to the presigned URL; no auth header, the
// signature in the URL is the credential.
func (c *HTTPClient) UploadImage(ctx context.Context, uploadURL string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrOffline, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: upload status %d", common.ErrRemoteRejected, resp.StatusCode)
	}
	return nil
}

// notFoundError distinguishes a missing resource from a rejection without
// widening the SyncError taxonomy; only this package inspects it.
type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }

func isNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set(common.AuthHeaderName, "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// transport failure: unreachable, DNS, timeout, cancellation
		return fmt.Errorf("%w: %v", common.ErrOffline, err)
	}
	defer resp.Body.Close()

	if err := mapStatus(resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return nil
}

func mapStatus(code int) error {
	switch {
	case code >= 200 && code <= 299:
		return nil
	case code == http.StatusNotFound:
		return notFoundError{}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return common.ErrUnauthorized
	case code == http.StatusConflict:
		return common.ErrConflict
	case code >= 400 && code <= 499:
		return fmt.Errorf("%w: status %d", common.ErrRemoteRejected, code)
	default:
		return fmt.Errorf("remote error: status %d", code)
	}
}
