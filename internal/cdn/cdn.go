// Package cdn forwards product images to an external image CDN.
package cdn

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// MaxImageSize is the largest image accepted for upload.
const MaxImageSize = 5 << 20

// ErrUnsupportedType is returned for files that are not images.
var ErrUnsupportedType = errors.New("unsupported image type")

// Config configures the upload endpoint. The request shape matches
// Cloudinary's unsigned upload API.
type Config struct {
	// URL is the upload endpoint, e.g.
	// https://api.cloudinary.com/v1_1/<cloud>/image/upload.
	URL    string
	Preset string
	Folder string
	// Transport is wrapped with OpenTelemetry instrumentation.
	Transport http.RoundTripper
}

// Uploader uploads images and returns their public URL.
type Uploader struct {
	cfg    Config
	client *http.Client
}

// New creates an Uploader.
func New(cfg Config) (*Uploader, error) {
	if cfg.URL == "" {
		return nil, errors.New("cdn upload url required")
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	return &Uploader{
		cfg: cfg,
		client: &http.Client{
			Transport: otelhttp.NewTransport(cfg.Transport),
			Timeout:   30 * time.Second,
		},
	}, nil
}

// Upload sends the image read from r and returns its public URL.
// contentType must be an image/* type.
func (u *Uploader) Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return "", errors.Wrapf(ErrUnsupportedType, "%q", contentType)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if u.cfg.Preset != "" {
		if err := mw.WriteField("upload_preset", u.cfg.Preset); err != nil {
			return "", errors.Wrap(err, "write preset")
		}
	}
	if u.cfg.Folder != "" {
		if err := mw.WriteField("folder", u.cfg.Folder); err != nil {
			return "", errors.Wrap(err, "write folder")
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+escapeQuotes(path.Base(filename))+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", errors.Wrap(err, "create part")
	}
	n, err := io.Copy(part, io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return "", errors.Wrap(err, "copy image")
	}
	if n > MaxImageSize {
		return "", errors.Errorf("image exceeds %d bytes", MaxImageSize)
	}
	if err := mw.Close(); err != nil {
		return "", errors.Wrap(err, "close multipart")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.URL, &body)
	if err != nil {
		return "", errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "upload")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "read response")
	}
	if resp.StatusCode/100 != 2 {
		return "", errors.Errorf("cdn status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return imageURL(raw)
}

// imageURL extracts secure_url, falling back to url.
func imageURL(raw []byte) (string, error) {
	var secure, plain string
	if err := jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "secure_url":
			v, err := d.Str()
			secure = v
			return err
		case "url":
			v, err := d.Str()
			plain = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return "", errors.Wrap(err, "decode response")
	}
	if secure != "" {
		return secure, nil
	}
	if plain != "" {
		return plain, nil
	}
	return "", errors.New("cdn response has no url")
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
