// Package photosdktest runs an in-process photo server for tests. Every
// request is verified with hmacauth.Middleware, as the real server does.
package photosdktest

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/openmined/photosync/internal/hmacauth"
	"github.com/openmined/photosync/internal/photosdk"
)

const (
	DefaultSecret   = "photosdktest-secret"
	DefaultBoundary = "B"
)

// File is the payload of GET /photos/{id}/download.
type File struct {
	Name      string // X-Original-Filename, omitted when empty
	MediaType string // X-Media-Type, omitted when empty
	Data      []byte
	Status    int // non-zero replaces the 200 response with an error status
}

// Part is one component of a live photo bundle.
type Part struct {
	Filename      string
	ContentType   string
	Data          []byte
	NoDisposition bool
}

type rawBody struct {
	contentType string
	body        []byte
}

type Server struct {
	*httptest.Server
	Secret string

	mu           sync.Mutex
	photos       []photosdk.PhotoMetadata
	files        map[string]File
	live         map[string][]Part
	raw          map[string]rawBody
	listStatus   int
	healthStatus int
	requests     []*http.Request
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		Secret: DefaultSecret,
		files:  make(map[string]File),
		live:   make(map[string][]Part),
		raw:    make(map[string]rawBody),
	}

	r := gin.New()
	r.UseRawPath = true
	r.Use(s.record)
	r.Use(hmacauth.Middleware(hmacauth.VerifierConfig{Secret: s.Secret}))
	r.GET("/health", s.health)
	r.GET("/photos", s.list)
	r.GET("/photos/:id/download", s.download)
	r.GET("/photos/:id/livephoto", s.livePhoto)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Server.Close)
	return s
}

// Client returns a transport client for this server.
func (s *Server) Client(t testing.TB) *photosdk.Client {
	t.Helper()
	c, err := photosdk.New(&photosdk.ClientConfig{BaseURL: s.URL, Secret: s.Secret, Timeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func (s *Server) AddPhoto(meta photosdk.PhotoMetadata, f File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos = append(s.photos, meta)
	s.files[meta.ID] = f
}

// AddLivePhoto lists meta with the live photo subtype and serves parts as a
// multipart bundle with DefaultBoundary.
func (s *Server) AddLivePhoto(meta photosdk.PhotoMetadata, parts ...Part) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !meta.IsLivePhoto() {
		meta.MediaSubtypes = append(meta.MediaSubtypes, photosdk.SubtypeLivePhoto)
	}
	s.photos = append(s.photos, meta)
	s.live[meta.ID] = parts
}

// SetLiveRaw serves body verbatim for the live photo id.
func (s *Server) SetLiveRaw(id, contentType string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw[id] = rawBody{contentType: contentType, body: body}
}

// SetListStatus makes GET /photos fail with status; 0 restores normal listing.
func (s *Server) SetListStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listStatus = status
}

func (s *Server) SetHealthStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthStatus = status
}

// Requests returns the recorded requests whose escaped path is path, or all
// requests when path is empty.
func (s *Server) Requests(path string) []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*http.Request
	for _, r := range s.requests {
		if path == "" || r.URL.EscapedPath() == path {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) record(c *gin.Context) {
	s.mu.Lock()
	s.requests = append(s.requests, c.Request.Clone(c.Request.Context()))
	s.mu.Unlock()
	c.Next()
}

func (s *Server) health(c *gin.Context) {
	s.mu.Lock()
	status := s.healthStatus
	s.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"status": http.StatusText(status)})
}

func (s *Server) list(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listStatus != 0 {
		c.JSON(s.listStatus, gin.H{"error": "listing unavailable"})
		return
	}

	photos := make([]photosdk.PhotoMetadata, 0, len(s.photos))
	sinceParam, hasSince := c.GetQuery("since")
	since, err := strconv.ParseFloat(sinceParam, 64)
	if hasSince && err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
		return
	}
	for _, p := range s.photos {
		if hasSince {
			created, ok := p.CreatedAt()
			if ok && float64(created.UnixMicro())/1e6 < since {
				continue
			}
		}
		photos = append(photos, p)
	}
	c.JSON(http.StatusOK, photosdk.ListPhotosResponse{Count: len(photos), Photos: photos})
}

func (s *Server) download(c *gin.Context) {
	s.mu.Lock()
	f, ok := s.files[c.Param("id")]
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}
	if f.Status != 0 {
		c.JSON(f.Status, gin.H{"error": http.StatusText(f.Status)})
		return
	}
	if f.Name != "" {
		c.Header(photosdk.HeaderOriginalFilename, f.Name)
	}
	if f.MediaType != "" {
		c.Header(photosdk.HeaderMediaType, f.MediaType)
	}
	c.Data(http.StatusOK, "application/octet-stream", f.Data)
}

func (s *Server) livePhoto(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	raw, hasRaw := s.raw[id]
	parts, ok := s.live[id]
	s.mu.Unlock()

	if hasRaw {
		c.Data(http.StatusOK, raw.contentType, raw.body)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "live photo not found"})
		return
	}

	body, contentType, err := EncodeParts(DefaultBoundary, parts...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, contentType, body)
}

// EncodeParts renders parts as a multipart/form-data body.
func EncodeParts(boundary string, parts ...Part) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(boundary); err != nil {
		return nil, "", err
	}

	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		if !p.NoDisposition {
			h.Set("Content-Disposition", `form-data; name="file"; filename="`+p.Filename+`"`)
		}
		if p.ContentType != "" {
			h.Set("Content-Type", p.ContentType)
		}
		pw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := pw.Write(p.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
