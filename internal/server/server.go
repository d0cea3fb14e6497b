// Package server exposes a workspace over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/penwyp/go-trace-project/internal/application/workspace"
	"github.com/penwyp/go-trace-project/internal/core/model"
	"github.com/penwyp/go-trace-project/internal/presentation/formatter"
	"github.com/penwyp/go-trace-project/internal/util"
)

// RequestIDHeader carries the id assigned to each request.
const RequestIDHeader = "X-Request-ID"

type Server struct {
	ws *workspace.Workspace
}

func NewServer(ws *workspace.Workspace) *Server {
	return &Server{ws: ws}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	api := r.Group("/api")
	api.GET("/tree", s.Tree)
	api.GET("/elements", s.Element)
	api.POST("/refresh", s.Refresh)
	api.POST("/traces/open", s.OpenTrace)
	api.POST("/traces/close", s.CloseTrace)
	api.POST("/analyses/schedule", s.ScheduleAnalysis)
	api.GET("/analyses/properties", s.AnalysisProperties)
	api.POST("/outputs/open", s.OpenOutput)
	api.POST("/reports", s.AddReport)

	r.GET("/metrics", gin.WrapH(s.ws.Metrics().Handler()))
	return r
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		util.LogInfof("Serving project %s on %s", s.ws.Project().Name(), addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// requestLogger assigns the request id and binds it to the request
// context so handlers log under it.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		ctx := util.ContextWithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()
		util.LogContext(ctx).Debug("Request served",
			util.Field{Key: "method", Value: c.Request.Method},
			util.Field{Key: "route", Value: c.FullPath()},
			util.Field{Key: "status", Value: c.Writer.Status()},
			util.Field{Key: "duration", Value: util.FormatDuration(time.Since(start))})
	}
}

// logger returns the request logger, bound to the element path once the
// handler resolved one.
func logger(c *gin.Context) util.LoggerInterface {
	return util.LogContext(c.Request.Context())
}

// bindElement records path on the request context.
func bindElement(c *gin.Context, path string) {
	c.Request = c.Request.WithContext(util.ContextWithElementPath(c.Request.Context(), path))
}

// element resolves the path query parameter, answering 400 or 404 itself.
func (s *Server) element(c *gin.Context) (model.Element, bool) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return nil, false
	}
	bindElement(c, path)
	e := s.ws.Project().Find(path)
	if e == nil {
		logger(c).Debug("No element at path")
		c.JSON(http.StatusNotFound, gin.H{"error": "no element at " + path})
		return nil, false
	}
	return e, true
}

func (s *Server) Tree(c *gin.Context) {
	c.JSON(http.StatusOK, formatter.Snapshot(s.ws.Project()))
}

func (s *Server) Element(c *gin.Context) {
	e, ok := s.element(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, formatter.Snapshot(e))
}

func (s *Server) Refresh(c *gin.Context) {
	elapsed := s.ws.Refresh()
	c.JSON(http.StatusOK, gin.H{"status": "success", "durationMs": elapsed.Milliseconds()})
}

func (s *Server) OpenTrace(c *gin.Context) {
	path := c.Query("path")
	bindElement(c, path)
	live, err := s.ws.OpenTrace(path)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, workspace.ErrNotEntity) {
			status = http.StatusNotFound
		} else {
			logger(c).Error("Failed to open trace", util.ErrField(err))
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resource": live.Resource(), "traceType": live.TypeID()})
}

func (s *Server) CloseTrace(c *gin.Context) {
	path := c.Query("path")
	bindElement(c, path)
	if !s.ws.CloseTrace(path) {
		c.JSON(http.StatusNotFound, gin.H{"error": path + " is not opened"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) analysis(c *gin.Context) (model.AnalysisElement, bool) {
	e, ok := s.element(c)
	if !ok {
		return nil, false
	}
	a, ok := e.(model.AnalysisElement)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": e.Path() + " is not an analysis"})
		return nil, false
	}
	return a, true
}

func (s *Server) ScheduleAnalysis(c *gin.Context) {
	a, ok := s.analysis(c)
	if !ok {
		return
	}
	status := a.ScheduleAnalysis()
	logger(c).Info("Analysis scheduled", util.Field{Key: "severity", Value: status.Severity.String()})
	c.JSON(http.StatusOK, status)
}

func (s *Server) AnalysisProperties(c *gin.Context) {
	a, ok := s.analysis(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"properties":       a.AnalysisProperties(),
		"helperProperties": a.AnalysisHelperProperties(),
	})
}

func (s *Server) OpenOutput(c *gin.Context) {
	e, ok := s.element(c)
	if !ok {
		return
	}
	out, ok := e.(*model.Output)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": e.Path() + " is not an output"})
		return
	}
	out.Open()
	c.JSON(http.StatusOK, gin.H{"status": "success", "output": out.OutputID()})
}

type AddReportRequest struct {
	Path        string `json:"path" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func (s *Server) AddReport(c *gin.Context) {
	var req AddReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	bindElement(c, req.Path)
	e, err := s.ws.Entity(req.Path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	reports := e.Reports()
	if reports == nil {
		c.JSON(http.StatusConflict, gin.H{"error": req.Path + " has no resolvable trace type"})
		return
	}
	report := reports.AddReport(req.Name, req.Description)
	logger(c).Info("Report added", util.Field{Key: "report", Value: req.Name})
	c.JSON(http.StatusCreated, formatter.Snapshot(report))
}
