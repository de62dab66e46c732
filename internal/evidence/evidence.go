// Package evidence uploads completion photos to an unsigned upload endpoint
// and returns the hosted URL stored on the task.
package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

type Uploader struct {
	URL    string
	Preset string
	Folder string
	HTTP   *http.Client
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
}

// Upload posts the image as a multipart form with the unsigned preset and an
// optional per-project folder. It returns the secure URL.
func (u Uploader) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	if u.URL == "" {
		return "", errors.New("upload url not configured")
	}
	if u.Preset == "" {
		return "", errors.New("upload preset not configured")
	}
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeForm(mw, u, filename, r)
		mw.Close()
		pw.CloseWithError(err)
	}()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.URL, pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	client := u.HTTP
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("upload status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var ur uploadResponse
	if err := json.NewDecoder(res.Body).Decode(&ur); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if ur.SecureURL != "" {
		return ur.SecureURL, nil
	}
	if ur.URL != "" {
		return ur.URL, nil
	}
	return "", errors.New("upload response missing url")
}

func writeForm(mw *multipart.Writer, u Uploader, filename string, r io.Reader) error {
	if err := mw.WriteField("upload_preset", u.Preset); err != nil {
		return err
	}
	if u.Folder != "" {
		if err := mw.WriteField("folder", u.Folder); err != nil {
			return err
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, r)
	return err
}
