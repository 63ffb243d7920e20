package server

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mdjhnsn/scrn/IO"
	"github.com/mdjhnsn/scrn/api"
	"github.com/mdjhnsn/scrn/params"
	"github.com/mdjhnsn/scrn/scrn"
	"github.com/mdjhnsn/scrn/version"
)

// Server serves one trained network over HTTP. The weights are read-only
// once loaded, so handlers run concurrently without locking; every decode
// keeps its own state.
type Server struct {
	model *scrn.Network
	vocab params.Vocabulary
}

func NewServer(model *scrn.Network, vocab params.Vocabulary) *Server {
	return &Server{model: model, vocab: vocab}
}

// GenerateHandler runs one full decode and answers with the finished text.
func (s *Server) GenerateHandler(c *gin.Context) {
	checkpointStart := time.Now()
	var req api.GenerateRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policy := scrn.Policy(cmp.Or(req.Policy, string(scrn.PolicyGreedy)))
	if policy != scrn.PolicyGreedy && policy != scrn.PolicySample {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown policy %q", req.Policy)})
		return
	}

	var rng *rand.Rand
	if policy == scrn.PolicySample {
		sd := req.Seed
		if sd <= 0 {
			sd = time.Now().UnixNano()
		}
		rng = rand.New(rand.NewPCG(uint64(sd), uint64(sd)))
	}

	seed := IO.EncodePrompt(s.vocab, req.Prompt)
	dec, err := s.model.NewDecoder(seed, policy, req.MaxTokens, rng)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for dec.State() == scrn.Running {
		if _, err := dec.Step(); err != nil {
			slog.Error("decode failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, api.GenerateResponse{
		CreatedAt:     time.Now().UTC(),
		Response:      IO.DecodeIDs(s.vocab, dec.Generated()),
		Done:          true,
		DoneReason:    dec.DoneReason(),
		Steps:         dec.Steps(),
		TotalDuration: time.Since(checkpointStart),
	})
}

// GenerateRoutes builds the HTTP router.
func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(cors.New(corsConfig))

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "scrn is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "scrn is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	// Inference
	r.POST("/api/generate", s.GenerateHandler)

	return r
}

// Serve runs the server on ln until the listener closes.
func Serve(ln net.Listener, model *scrn.Network, vocab params.Vocabulary) error {
	s := NewServer(model, vocab)
	h := s.GenerateRoutes()

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	srvr := &http.Server{Handler: h}
	return srvr.Serve(ln)
}
