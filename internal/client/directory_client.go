package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"authlog-service/internal/config"
	"authlog-service/internal/models"
	"authlog-service/internal/util"
)

// DirectoryClient talks to the host application's subject directory. It
// resolves the login identifier a client presented to a subject reference,
// and a subject reference to its notification address.
//
// Expected endpoints:
//
//	GET {base}/subjects/{type}/lookup?identifier=...  -> {"subject_type","subject_id"}
//	GET {base}/subjects/{type}/{id}/contact           -> {"email"}
//
// A 404 from either endpoint means "no such account" and is not an error;
// callers must never surface that distinction to the client.
type DirectoryClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

func NewDirectoryClient(cfg *config.Config, logger *zap.Logger) (*DirectoryClient, error) {
	dirConfig := cfg.Directory
	if dirConfig.BaseURL == "" {
		return nil, fmt.Errorf("directory base URL is not configured")
	}

	client := &DirectoryClient{
		baseURL: strings.TrimRight(dirConfig.BaseURL, "/"),
		apiKey:  dirConfig.APIKey,
		http:    &http.Client{Timeout: dirConfig.Timeout},
		logger:  logger,
	}

	util.Info("Directory client initialized",
		util.String("base_url", client.baseURL))

	return client, nil
}

// LookupSubject resolves a login identifier to a subject reference. A zero
// subject with a nil error means the directory knows no such account.
func (c *DirectoryClient) LookupSubject(ctx context.Context, subjectType, identifier string) (models.Subject, error) {
	endpoint := fmt.Sprintf("%s/subjects/%s/lookup?identifier=%s",
		c.baseURL, url.PathEscape(subjectType), url.QueryEscape(identifier))

	var payload struct {
		SubjectType string `json:"subject_type"`
		SubjectID   string `json:"subject_id"`
	}
	found, err := c.get(ctx, endpoint, &payload)
	if err != nil {
		return models.Subject{}, fmt.Errorf("failed to look up subject: %w", err)
	}
	if !found {
		return models.Subject{}, nil
	}

	return models.Subject{Type: payload.SubjectType, ID: payload.SubjectID}, nil
}

// Recipient resolves a subject to its notification address. An empty string
// with a nil error means the subject has no address on file.
func (c *DirectoryClient) Recipient(ctx context.Context, subject models.Subject) (string, error) {
	if subject.IsZero() {
		return "", nil
	}
	endpoint := fmt.Sprintf("%s/subjects/%s/%s/contact",
		c.baseURL, url.PathEscape(subject.Type), url.PathEscape(subject.ID))

	var payload struct {
		Email string `json:"email"`
	}
	found, err := c.get(ctx, endpoint, &payload)
	if err != nil {
		return "", fmt.Errorf("failed to resolve recipient: %w", err)
	}
	if !found {
		return "", nil
	}

	return payload.Email, nil
}

// get performs an authenticated GET and decodes the body into out. The
// second return is false for 404 responses.
func (c *DirectoryClient) get(ctx context.Context, endpoint string, out interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("directory returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode directory response: %w", err)
	}
	return true, nil
}
