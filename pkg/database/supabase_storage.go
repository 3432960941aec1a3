package database

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"impact-story-backend/pkg/models"
)

// supabaseStorage uploads objects to one Supabase Storage bucket.
type supabaseStorage struct {
	db *SupabaseDatabase
}

// Photos returns the photo store bound to the configured bucket.
func (db *SupabaseDatabase) Photos() PhotoStore {
	return &supabaseStorage{db: db}
}

// Upload stores body under objectPath with the caller's token, so storage policies
// see the caller, and returns the object's public URL.
func (s *supabaseStorage) Upload(ctx context.Context, caller models.Caller, objectPath, contentType string, body io.Reader) (string, error) {
	objectPath = strings.TrimLeft(objectPath, "/")
	if objectPath == "" {
		return "", fmt.Errorf("object path is required")
	}

	endpoint := s.db.baseURL + "/storage/v1/object/" + url.PathEscape(s.db.bucket) + "/" + escapeObjectPath(objectPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")
	req.Header.Set("Cache-Control", "max-age=3600")

	if _, _, err := s.db.send(req, caller.AccessToken); err != nil {
		return "", fmt.Errorf("upload %s: %w", objectPath, err)
	}
	return s.publicURL(objectPath), nil
}

// Delete removes objectPath from the bucket with the caller's token.
func (s *supabaseStorage) Delete(ctx context.Context, caller models.Caller, objectPath string) error {
	objectPath = strings.TrimLeft(objectPath, "/")
	if objectPath == "" {
		return fmt.Errorf("object path is required")
	}

	endpoint := s.db.baseURL + "/storage/v1/object/" + url.PathEscape(s.db.bucket) + "/" + escapeObjectPath(objectPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if _, _, err := s.db.send(req, caller.AccessToken); err != nil {
		return fmt.Errorf("delete %s: %w", objectPath, err)
	}
	return nil
}

func (s *supabaseStorage) publicURL(objectPath string) string {
	return s.db.baseURL + "/storage/v1/object/public/" + url.PathEscape(s.db.bucket) + "/" + escapeObjectPath(objectPath)
}

// escapeObjectPath escapes each segment and keeps the separators.
func escapeObjectPath(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
