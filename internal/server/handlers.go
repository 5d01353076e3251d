package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/internal/result"
	"taskboard/internal/store"
	"taskboard/internal/task"
)

const maxBodySize = 64 << 10

func (s *Server) register(e *echo.Echo) {
	api := e.Group("/api")
	api.GET("/healthz", s.healthz)
	api.GET("/tasks", s.listTasks)
	api.POST("/tasks", s.createTask)
	api.GET("/tasks/:id", s.getTask)
	api.PATCH("/tasks/:id", s.setDone)
	api.DELETE("/tasks/:id", s.deleteTask)
	api.GET("/export", s.exportTasks)

	e.Match([]string{http.MethodGet, http.MethodHead}, "/*", s.static)
}

type healthResponse struct {
	OK     bool   `json:"ok"`
	Go     string `json:"go"`
	Store  string `json:"store"`
	Engine string `json:"engine,omitempty"`
}

func (s *Server) healthz(c echo.Context) error {
	ctx := c.Request().Context()
	resp := healthResponse{OK: true, Go: runtime.Version(), Store: "up"}
	if err := s.svc.Ping(ctx); err != nil {
		s.logger.WithError(err).Warn("health check: store unavailable")
		resp.OK = false
		resp.Store = "down"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	// the engine version is informational only
	if ver, err := s.svc.StoreVersion(ctx); err == nil {
		resp.Engine = ver
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) listTasks(c echo.Context) error {
	tasks, err := s.svc.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tasks)
}

func (s *Server) getTask(c echo.Context) error {
	t, err := s.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

type createRequest struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Done      bool   `json:"done"`
	CreatedAt string `json:"createdAt"`
}

func (s *Server) createTask(c echo.Context) error {
	var req createRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	t, err := s.svc.Create(c.Request().Context(), task.NewTask{
		ID:        req.ID,
		Title:     req.Title,
		Done:      req.Done,
		CreatedAt: req.CreatedAt,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, t)
}

type setDoneRequest struct {
	Done *bool `json:"done"`
}

func (s *Server) setDone(c echo.Context) error {
	var req setDoneRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	if req.Done == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "done is required")
	}
	t, err := s.svc.SetDone(c.Request().Context(), c.Param("id"), *req.Done)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTask(c echo.Context) error {
	if err := s.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) exportTasks(c echo.Context) error {
	format := strings.ToLower(c.QueryParam("format"))
	if format == "" {
		format = "json"
	}
	b, err := s.exporter.Export(c.Request().Context(), format)
	if err != nil {
		return err
	}
	ct := result.Formats[format]
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=tasks.%s", format))
	return c.Blob(http.StatusOK, ct, b)
}

func decodeBody(c echo.Context, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body").SetInternal(err)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleError renders every failure as {"error": "..."}. Only unexpected
// failures are logged; they never reach the client verbatim.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(log.Fields{
			"method": c.Request().Method,
			"path":   c.Request().URL.Path,
		}).Error("request failed")
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorResponse{Error: msg})
}

func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	var unknown result.UnknownFormatError
	switch {
	case errors.As(err, &he):
		if he.Code >= http.StatusInternalServerError {
			return he.Code, http.StatusText(he.Code)
		}
		return he.Code, fmt.Sprint(he.Message)
	case errors.Is(err, task.ErrNotFound):
		return http.StatusNotFound, task.ErrNotFound.Error()
	case errors.Is(err, store.ErrDuplicateKey):
		return http.StatusConflict, store.ErrDuplicateKey.Error()
	case errors.Is(err, store.ErrConstraintViolation), errors.Is(err, task.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &unknown):
		return http.StatusBadRequest, unknown.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
