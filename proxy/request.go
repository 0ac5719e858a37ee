package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

const (
	// MaxFiles is the most files a single analysis may include
	MaxFiles = 3
	// MaxBodyBytes caps the size of an inbound analysis request
	MaxBodyBytes = 10 << 20

	multipartMemory = 8 << 20
)

// AllowedFileTypes are the declared content types accepted for upload
var AllowedFileTypes = []string{
	"text/html",
	"text/css",
	"text/javascript",
	"application/javascript",
	"text/typescript",
	"application/typescript",
}

// File is an uploaded source file
type File struct {
	Name        string
	ContentType string
	Content     []byte
}

// Request is a validated analysis request. Body and ContentType hold what
// is forwarded to an HTTP backend; Files and URL are the parsed view used
// by local backends.
type Request struct {
	Files       []File
	URL         string
	Body        []byte
	ContentType string
}

// ValidationError is a client input error
type ValidationError struct {
	Status  int
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// ParseRequest validates an inbound body. Multipart forms are forwarded
// byte for byte; JSON is re-serialized.
func ParseRequest(contentType string, body []byte) (*Request, error) {
	if strings.TrimSpace(contentType) == "" {
		if len(bytes.TrimSpace(body)) == 0 {
			return nil, invalid("No files or URL provided")
		}
		return nil, &ValidationError{Status: http.StatusUnsupportedMediaType, Message: "Content-Type header is required"}
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, invalid("Invalid Content-Type: %s", contentType)
	}

	var req *Request
	switch {
	case mediaType == "multipart/form-data":
		req, err = parseMultipart(params["boundary"], body)
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		req, err = parseJSON(body)
	case mediaType == "application/x-www-form-urlencoded":
		req, err = parseURLEncoded(body)
	default:
		return nil, &ValidationError{
			Status:  http.StatusUnsupportedMediaType,
			Message: "Unsupported content type: " + mediaType,
		}
	}
	if err != nil {
		return nil, err
	}
	if req.ContentType == "" {
		req.ContentType = contentType
	}
	if req.Body == nil {
		req.Body = body
	}
	return req, nil
}

func parseMultipart(boundary string, body []byte) (*Request, error) {
	if boundary == "" {
		return nil, invalid("Invalid multipart form: missing boundary")
	}

	form, err := multipart.NewReader(bytes.NewReader(body), boundary).ReadForm(multipartMemory)
	if err != nil {
		return nil, invalid("Invalid multipart form: %v", err)
	}
	defer form.RemoveAll()

	req := &Request{}
	if values := form.Value["url"]; len(values) > 0 {
		req.URL = strings.TrimSpace(values[0])
	}

	headers := form.File["files"]
	if err := validateShape(len(headers), req.URL); err != nil {
		return nil, err
	}

	for _, fh := range headers {
		declared := fh.Header.Get("Content-Type")
		if err := validateFileType(declared); err != nil {
			return nil, err
		}
		content, err := readFormFile(fh)
		if err != nil {
			return nil, invalid("Invalid file format: %s", fh.Filename)
		}
		req.Files = append(req.Files, File{Name: fh.Filename, ContentType: declared, Content: content})
	}
	return req, nil
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func parseJSON(body []byte) (*Request, error) {
	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil || payload == nil {
		return nil, invalid("Invalid JSON body")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, invalid("Invalid JSON body")
	}

	req := &Request{}
	if s, ok := payload["url"].(string); ok {
		req.URL = strings.TrimSpace(s)
	}

	var entries []any
	switch files := payload["files"].(type) {
	case nil:
	case []any:
		entries = files
	default:
		return nil, invalid("Invalid JSON body: files must be a list")
	}
	if err := validateShape(len(entries), req.URL); err != nil {
		return nil, err
	}

	for i, entry := range entries {
		f, ok := entry.(map[string]any)
		if !ok {
			req.Files = append(req.Files, File{Name: fmt.Sprintf("file%d", i+1)})
			continue
		}
		name, _ := f["filename"].(string)
		if name == "" {
			name, _ = f["name"].(string)
		}
		declared, _ := f["type"].(string)
		if declared != "" {
			if err := validateFileType(declared); err != nil {
				return nil, err
			}
		}
		content, _ := f["content"].(string)
		req.Files = append(req.Files, File{Name: name, ContentType: declared, Content: []byte(content)})
	}

	// Forwarded as sent, minus insignificant whitespace
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return nil, invalid("Invalid JSON body")
	}
	req.Body = compact.Bytes()
	req.ContentType = "application/json"
	return req, nil
}

func parseURLEncoded(body []byte) (*Request, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, invalid("Invalid form body")
	}
	req := &Request{URL: strings.TrimSpace(values.Get("url"))}
	if err := validateShape(0, req.URL); err != nil {
		return nil, err
	}
	return req, nil
}

func validateShape(fileCount int, rawURL string) error {
	if fileCount == 0 && rawURL == "" {
		return invalid("No files or URL provided")
	}
	if fileCount > MaxFiles {
		return invalid("Maximum %d files allowed", MaxFiles)
	}
	if rawURL != "" {
		u, err := url.Parse(rawURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("Invalid URL provided")
		}
	}
	return nil
}

func validateFileType(declared string) error {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(declared))
	}
	for _, allowed := range AllowedFileTypes {
		if mediaType == allowed {
			return nil
		}
	}
	shown := declared
	if shown == "" {
		shown = "unknown"
	}
	return invalid("Invalid file type: %s. Only HTML, CSS, JavaScript, and TypeScript files are allowed.", shown)
}
