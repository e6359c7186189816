package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

// NewRouter собирает HTTP маршруты сервиса
func NewRouter(files *FileHandler, people *PeopleHandler, metrics http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeSuccess(w, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/file", func(r chi.Router) {
			r.Post("/info", files.SubmitInfo)
			r.Get("/list", files.List)
			r.Get("/template", files.Template)
			r.Get("/one", files.DownloadOne)
			r.Delete("/one", files.DeleteOne)
			r.Delete("/withdraw", files.Withdraw)
			r.Post("/batch/down", files.BatchDownload)
			r.Delete("/batch/del", files.BatchDelete)
			r.Post("/compress/status", files.CompressStatus)
			r.Post("/compress/down", files.CompressDownload)
			r.Post("/submit/people", files.HasSubmitted)
			r.Post("/submit/student/{sid}", files.HasStudentSubmitted)
			r.Get("/oneStudent/{sid}", files.LatestByStudent)
		})

		r.Route("/people", func(r chi.Router) {
			r.Get("/check/{key}", people.Check)
			r.Get("/{key}", people.List)
			r.Post("/{key}", people.Import)
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
