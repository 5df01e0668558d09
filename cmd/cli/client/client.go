// Package client is the CLI's small HTTP client for the inventory API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/crucial707/hci-inventory/cmd/cli/config"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error: status %d", e.Status)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// Do sends payload as JSON (when non-nil) to path and decodes a successful response into out
// (when non-nil). token, when set, is sent as a bearer credential.
func Do(method, path, token string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, config.APIURL()+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return send(req, out)
}

// DoMultipart sends fields, plus the file at imagePath as the "image" part when set,
// as a multipart form.
func DoMultipart(method, path, token string, fields map[string]string, imagePath string, out interface{}) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if imagePath != "" {
		f, err := os.Open(imagePath)
		if err != nil {
			return fmt.Errorf("open image: %w", err)
		}
		defer f.Close()
		part, err := mw.CreateFormFile("image", filepath.Base(imagePath))
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, f); err != nil {
			return fmt.Errorf("read image: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(method, config.APIURL()+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return send(req, out)
}

func send(req *http.Request, out interface{}) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var failure struct {
			Message string            `json:"message"`
			Fields  map[string]string `json:"fields"`
		}
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, &failure) == nil {
			apiErr.Message = failure.Message
			for k, v := range failure.Fields {
				apiErr.Message += fmt.Sprintf("; %s %s", k, v)
			}
		} else {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
