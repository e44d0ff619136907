package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"outbreak/internal/history"
	"outbreak/internal/hub"
	"outbreak/internal/logging"
	"outbreak/internal/session"
	"outbreak/internal/sim"
)

func main() {
	addr := flag.String("addr", ":8080", "server listen address")
	width := flag.Float64("width", 400, "arena width")
	height := flag.Float64("height", 400, "arena height")
	modeName := flag.String("mode", "freeForAll", "movement mode: freeForAll or distancing")
	compliance := flag.Float64("compliance", 0, "percentage of agents that keep their distance in distancing mode")
	fps := flag.Int("fps", 60, "frames per second")
	seed := flag.Int64("seed", 0, "random seed, 0 for a time based seed")
	web := flag.String("web", "web", "directory with the browser client")
	historyCap := flag.Int("history", history.DefaultCapacity, "ticks of history kept for the chart")
	level := flag.String("log-level", "info", "debug, info, warn or error")
	noColor := flag.Bool("no-color", false, "disable colored log output")
	flag.Parse()

	lvl, err := logging.ParseLevel(*level)
	if err != nil {
		logging.New(os.Stderr, slog.LevelError, *noColor).Error("bad flag", "err", err)
		os.Exit(2)
	}
	logger := logging.New(os.Stderr, lvl, *noColor)

	mode, err := sim.ParseMode(*modeName)
	if err != nil {
		logger.Error("bad flag", "err", err)
		os.Exit(2)
	}
	if *fps < 1 {
		logger.Error("bad flag", "fps", *fps)
		os.Exit(2)
	}

	sess, err := session.New(session.Config{
		Width:           *width,
		Height:          *height,
		Mode:            mode,
		Compliance:      *compliance,
		Seed:            *seed,
		HistoryCapacity: *historyCap,
	}, logger)
	if err != nil {
		logger.Error("unable to start simulation", "err", err)
		os.Exit(1)
	}
	clients := hub.New(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sess.Run(ctx, time.Second/time.Duration(*fps), clients.Broadcast)

	mux := http.NewServeMux()
	mux.Handle("/ws", clients.Handler(sess))
	mux.HandleFunc("/api/frame", frameHandler(sess))
	mux.HandleFunc("/api/sim", newSimHandler(sess, logger))
	mux.HandleFunc("/api/speed", speedHandler(sess))
	mux.HandleFunc("/chart.png", chartHandler(sess, logger))
	mux.Handle("/proto/", http.StripPrefix("/proto/", http.FileServer(http.Dir("proto"))))
	mux.Handle("/", http.FileServer(http.Dir(*web)))

	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", "err", err)
		}
	}()

	logger.Info("serving UI", "url", "http://localhost"+*addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func frameHandler(sess *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sess.Frame())
	}
}

// newSimHandler mirrors the "new sim" button for clients without websockets.
func newSimHandler(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		mode, err := sim.ParseMode(r.FormValue("mode"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		compliance := 0.0
		if v := r.FormValue("compliance"); v != "" {
			compliance, err = strconv.ParseFloat(v, 64)
			if err != nil {
				http.Error(w, "compliance must be a number", http.StatusBadRequest)
				return
			}
		}
		if err := sess.Reset(mode, compliance); err != nil {
			logger.Warn("rejected new simulation", "err", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, sess.Frame())
	}
}

func speedHandler(sess *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		speed, err := strconv.ParseFloat(r.FormValue("speed"), 64)
		if err != nil {
			http.Error(w, "speed must be a number", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]float64{"speed": sess.SetSpeed(speed)})
	}
}

func chartHandler(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		err := history.RenderPNG(&buf, sess.History().Points(), sess.Population(), history.DefaultChartSize)
		if errors.Is(err, history.ErrNotEnoughData) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			logger.Error("chart render failed", "err", err)
			http.Error(w, "chart unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(buf.Bytes())
	}
}
