package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// ImageMetadata is the subset of the Imgur upload envelope this app keeps.
type ImageMetadata struct {
	ID         string
	DeleteHash string
	Link       string
}

// RemoteStore is implemented by the Imgur client and by fakes in tests.
type RemoteStore interface {
	Upload(ctx context.Context, image []byte) (ImageMetadata, error)
	View(ctx context.Context, imageID string) ([]byte, error)
	Delete(ctx context.Context, deleteHash string) (string, error)
}

// RemoteError reports a non-success status from the Imgur API.
type RemoteError struct {
	Op     string
	Status string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("imgur: %s failed: %s", e.Op, e.Status)
}

// MalformedResponseError reports a success envelope missing a required field.
type MalformedResponseError struct {
	Op    string
	Field string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("imgur: %s response is missing %q", e.Op, e.Field)
}

type ImgurClient struct {
	baseURL  string
	clientID string
	client   *http.Client
}

func NewImgurClient(baseURL, clientID string) *ImgurClient {
	return &ImgurClient{
		baseURL:  baseURL,
		clientID: clientID,
		client:   http.DefaultClient,
	}
}

type uploadEnvelope struct {
	Data struct {
		ID         string `json:"id"`
		DeleteHash string `json:"deletehash"`
		Link       string `json:"link"`
	} `json:"data"`
}

func (c *ImgurClient) Upload(ctx context.Context, image []byte) (ImageMetadata, error) {
	var body bytes.Buffer

	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "image")
	if err != nil {
		return ImageMetadata{}, err
	}

	if _, err := fw.Write(image); err != nil {
		return ImageMetadata{}, err
	}

	if err := mw.Close(); err != nil {
		return ImageMetadata{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/image", &body)
	if err != nil {
		return ImageMetadata{}, err
	}

	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Client-ID "+c.clientID)

	resp, err := c.client.Do(req)
	if err != nil {
		return ImageMetadata{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return ImageMetadata{}, &RemoteError{Op: "upload", Status: resp.Status}
	}

	var envelope uploadEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return ImageMetadata{}, err
	}

	for field, value := range map[string]string{
		"id":         envelope.Data.ID,
		"deletehash": envelope.Data.DeleteHash,
		"link":       envelope.Data.Link,
	} {
		if value == "" {
			return ImageMetadata{}, &MalformedResponseError{Op: "upload", Field: field}
		}
	}

	return ImageMetadata{
		ID:         envelope.Data.ID,
		DeleteHash: envelope.Data.DeleteHash,
		Link:       envelope.Data.Link,
	}, nil
}

func (c *ImgurClient) View(ctx context.Context, imageID string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "view", c.baseURL+"/image/"+imageID)
}

func (c *ImgurClient) Delete(ctx context.Context, deleteHash string) (string, error) {
	b, err := c.do(ctx, http.MethodDelete, "delete", c.baseURL+"/image/"+deleteHash)

	return string(b), err
}

func (c *ImgurClient) do(ctx context.Context, method, op, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Client-ID "+c.clientID)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &RemoteError{Op: op, Status: resp.Status}
	}

	return io.ReadAll(resp.Body)
}
