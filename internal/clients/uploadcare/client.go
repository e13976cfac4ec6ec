package uploadcare

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"stablebatch/config"
	"stablebatch/internal/clients/transport"
)

type Client struct {
	publicKey  string
	baseUrl    string
	cdnUrl     string
	httpClient *http.Client
}

type uploadResponse struct {
	File string `json:"file"`
}

func NewClient(config config.UploadConfig) *Client {
	return &Client{
		publicKey:  config.PublicKey,
		baseUrl:    strings.TrimRight(config.BaseUrl, "/"),
		cdnUrl:     strings.TrimRight(config.CdnUrl, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Upload stores the file and returns its CDN URL, which the generation API
// accepts as init_image / mask_image.
func (c *Client) Upload(ctx context.Context, path string) (string, error) {
	if c.publicKey == "" {
		return "", errors.New("uploadcare: public key is missing")
	}

	fields := map[string]string{
		"UPLOADCARE_PUB_KEY": c.publicKey,
		"UPLOADCARE_STORE":   "1",
	}
	resp, err := transport.Upload[uploadResponse](c.httpClient, ctx, c.baseUrl+"/base/", fields, "file", path)
	if err != nil {
		return "", err
	}

	file := strings.TrimSpace(resp.File)
	if file == "" {
		return "", errors.New("uploadcare: empty file id in response")
	}
	return c.cdnUrl + "/" + file + "/", nil
}
