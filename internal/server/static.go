package server

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
)

type asset struct {
	body        []byte
	contentType string
}

var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".json": "application/json; charset=utf-8",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".svg":  "image/svg+xml",
}

func contentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// static serves files under the public directory. Anything that is not a
// regular file inside it is a plain 404.
func (s *Server) static(c echo.Context) error {
	p := c.Request().URL.Path
	if p == "" || p == "/" {
		p = "/index.html"
	}
	if a, ok := s.assets.Get(p); ok {
		return c.Blob(http.StatusOK, a.contentType, a.body)
	}

	abs, ok := s.resolve(p)
	if !ok {
		return notFound(c)
	}
	fi, err := os.Stat(abs)
	if err != nil || !fi.Mode().IsRegular() {
		return notFound(c)
	}
	body, err := os.ReadFile(abs)
	if err != nil {
		s.logger.WithError(err).WithField("path", p).Warn("read static file")
		return notFound(c)
	}
	a := asset{body: body, contentType: contentType(abs)}
	s.assets.Set(p, a)
	return c.Blob(http.StatusOK, a.contentType, a.body)
}

// resolve maps a URL path to an existing file under the public root. Paths
// with ".." segments are refused outright, and symlinks are followed before
// the containment check so a link cannot point outside the root.
func (s *Server) resolve(urlPath string) (string, bool) {
	for _, seg := range strings.Split(urlPath, "/") {
		if seg == ".." {
			return "", false
		}
	}
	root, err := filepath.Abs(s.opts.PublicDir)
	if err != nil {
		return "", false
	}
	if root, err = filepath.EvalSymlinks(root); err != nil {
		return "", false
	}
	abs, err := filepath.EvalSymlinks(filepath.Join(root, filepath.FromSlash(path.Clean("/"+urlPath))))
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return abs, true
}

func notFound(c echo.Context) error {
	return c.String(http.StatusNotFound, "Not Found")
}
