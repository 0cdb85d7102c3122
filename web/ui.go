// Package web carries the built-in dashboard page.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

//go:embed page
var pageFS embed.FS

// DefaultPage is the name the built-in page is served under.
const DefaultPage = "analysis.html"

// Page returns the built-in dashboard page.
func Page() ([]byte, error) {
	return fs.ReadFile(pageFS, "page/"+DefaultPage)
}

// Handler serves static files from dir. The root redirects to the dashboard
// page, and the page itself falls back to the built-in one when dir has no
// file of that name.
func Handler(dir, page string) http.Handler {
	page = strings.TrimPrefix(path.Clean("/"+page), "/")
	if page == "" {
		page = DefaultPage
	}
	files := http.FileServer(http.Dir(dir))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/") {
		case "":
			http.Redirect(w, r, "/"+page, http.StatusFound)
		case page:
			if fileExists(filepath.Join(dir, filepath.FromSlash(page))) {
				files.ServeHTTP(w, r)
				return
			}
			serveBuiltin(w)
		default:
			files.ServeHTTP(w, r)
		}
	})
}

func serveBuiltin(w http.ResponseWriter) {
	data, err := Page()
	if err != nil {
		http.Error(w, "dashboard page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func fileExists(name string) bool {
	info, err := os.Stat(name)
	return err == nil && !info.IsDir()
}
