package webmonitor

import (
	"net/http"
	"os"
	"path/filepath"
)

// assetHandler serves operator-supplied static files such as stage icons.
type assetHandler struct {
	assetsDir string
}

func newAssetHandler(assetsDir string) *assetHandler {
	return &assetHandler{assetsDir: assetsDir}
}

func (h *assetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(r.URL.Path)
	assetPath := filepath.Join(h.assetsDir, filename)
	if !fileExists(assetPath) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, assetPath)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
