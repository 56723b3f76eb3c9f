package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type WorkbookHandler struct {
	Path func() string
}

// Download serves the current workbook file so the spreadsheet can be
// pulled without waiting for the next report mail.
func (h WorkbookHandler) Download(w http.ResponseWriter, r *http.Request) {
	path := h.Path()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "no workbook yet; run a cycle first", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), 500)
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, filepath.Base(path), st.ModTime(), f)
}
