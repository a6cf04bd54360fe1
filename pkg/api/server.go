// Package api exposes the upload service over HTTP.
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pdxmph/imgdedup/pkg/auth"
	"github.com/pdxmph/imgdedup/pkg/batch"
	"github.com/pdxmph/imgdedup/pkg/types"
	"github.com/pdxmph/imgdedup/pkg/upload"
)

// FormField is the multipart field carrying uploaded files
const FormField = "files"

const identityKey = "identity"

// Banner is returned by GET /
const Banner = "imgdedup: POST files to /upload/ to store them without duplicates"

// Server handles HTTP requests for the upload service
type Server struct {
	uploader  upload.Uploader
	provider  auth.Provider
	maxUpload int64
	log       zerolog.Logger
}

// NewServer creates a server. maxUpload bounds the request body in bytes; 0 disables the limit.
func NewServer(uploader upload.Uploader, provider auth.Provider, maxUpload int64, log zerolog.Logger) *Server {
	if provider == nil {
		provider = auth.Anonymous{}
	}
	return &Server{
		uploader:  uploader,
		provider:  provider,
		maxUpload: maxUpload,
		log:       log,
	}
}

// SetupRouter builds the gin engine with all routes registered
func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/", s.Root)
	r.GET("/favicon.ico", s.Favicon)
	r.GET("/healthz", s.Health)
	r.POST("/upload/", s.authenticate(), s.Upload)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Str("client", c.ClientIP()).
			Msg("request")
	}
}

// authenticate resolves the bearer token to an identity and aborts with 401 otherwise
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := auth.BearerToken(c.GetHeader("Authorization"))
		who, err := s.provider.Identify(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				s.log.Error().Err(err).Msg("identity provider failed")
			}
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{Error: "Invalid authentication credentials"})
			return
		}
		c.Set(identityKey, who)
		c.Next()
	}
}

// Root returns the service banner
func (s *Server) Root(c *gin.Context) {
	c.JSON(http.StatusOK, types.Message{Message: Banner})
}

// Favicon has nothing to serve
func (s *Server) Favicon(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Health reports liveness
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Upload runs one batch built from the multipart files field
func (s *Server) Upload(c *gin.Context) {
	if s.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	}

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, types.ErrorResponse{Error: fmt.Sprintf("upload exceeds %d bytes", s.maxUpload)})
			return
		}
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "Invalid multipart form"})
		return
	}
	defer form.RemoveAll()

	headers := form.File[FormField]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: fmt.Sprintf("no files in field %q", FormField)})
		return
	}

	items := make([]batch.Item, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.log.Error().Err(err).Str("file", fh.Filename).Msg("failed to open upload part")
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "Failed to read uploaded file"})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.log.Error().Err(err).Str("file", fh.Filename).Msg("failed to read upload part")
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "Failed to read uploaded file"})
			return
		}
		items = append(items, batch.Item{Name: fh.Filename, Data: data})
	}

	who, _ := c.Get(identityKey)
	identity, _ := who.(auth.Identity)

	resp, err := s.uploader.Run(c.Request.Context(), identity, items)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to process batch")
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "Failed to process upload"})
		return
	}

	c.JSON(http.StatusOK, resp)
}
