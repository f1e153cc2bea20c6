package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// TestContext holds the HTTP client and the last exchange of one scenario.
type TestContext struct {
	BaseURL   string
	Client    *http.Client
	ClientIP  string
	SessionID string

	lastStatus int
	lastHeader http.Header
	lastBody   []byte
	scenarios  int
}

func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset clears per-scenario state. Each scenario gets its own client IP so
// session-start throttling in one scenario does not leak into the next.
func (tc *TestContext) Reset() {
	tc.scenarios++
	tc.SessionID = ""
	tc.ClientIP = fmt.Sprintf("198.51.%d.%d", 100+tc.scenarios/250, 1+tc.scenarios%250)
	tc.lastStatus = 0
	tc.lastHeader = nil
	tc.lastBody = nil
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil, "")
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.sendJSON(http.MethodPost, path, body)
}

func (tc *TestContext) PATCH(path string, body any) error {
	return tc.sendJSON(http.MethodPatch, path, body)
}

// PutImage uploads data as the multipart "file" field.
func (tc *TestContext) PutImage(path, contentType string, data []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="document"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	return tc.do(http.MethodPut, path, &buf, mw.FormDataContentType())
}

func (tc *TestContext) sendJSON(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	return tc.do(method, path, reader, "application/json")
}

func (tc *TestContext) do(method, path string, body io.Reader, contentType string) error {
	req, err := http.NewRequest(method, tc.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" && body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if tc.ClientIP != "" {
		req.Header.Set("X-Forwarded-For", tc.ClientIP)
	}
	resp, err := tc.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastHeader = resp.Header
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) GetLastResponseStatus() int { return tc.lastStatus }

func (tc *TestContext) GetLastResponseBody() []byte { return tc.lastBody }

func (tc *TestContext) GetLastResponseHeader(name string) string {
	if tc.lastHeader == nil {
		return ""
	}
	return tc.lastHeader.Get(name)
}

// GetResponseField returns a top-level or dotted ("record.phone_number")
// member of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var doc any
	if err := json.Unmarshal(tc.lastBody, &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	for _, key := range strings.Split(field, ".") {
		obj, ok := doc.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", field, key)
		}
		doc, ok = obj[key]
		if !ok {
			return nil, fmt.Errorf("field %q not found in %s", field, tc.lastBody)
		}
	}
	return doc, nil
}

func (tc *TestContext) GetSessionID() string { return tc.SessionID }

func (tc *TestContext) SetSessionID(sessionID string) { tc.SessionID = sessionID }

func (tc *TestContext) SetClientIP(ip string) { tc.ClientIP = ip }
