package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", app.HomeHandler)
	r.Get("/ping", PingHandler)

	r.Post("/upload", app.UploadHandler)
	r.Post("/analyze", app.AnalyzeHandler)
	r.Post("/narration/reveal", app.RevealNarrationHandler)
	r.Post("/narration/audio", app.GenerateAudioHandler)

	r.Get("/audio", app.AudioHandler)
	r.Get("/download/analysis", app.DownloadAnalysisHandler)
	r.Get("/download/audio", app.DownloadAudioHandler)

	r.Get("/api/session", app.SessionHandler)
	r.Get("/api/session/events", app.SessionEventsHandler)
	r.Get("/api/voices", app.VoicesHandler)

	fileServer := http.FileServer(http.Dir("./web/static"))
	r.Handle("/static/*", http.StripPrefix("/static", fileServer))

	return r
}
