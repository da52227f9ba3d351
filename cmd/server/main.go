package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"

	"github.com/sameersharmadev/canverse/internal/api"
	"github.com/sameersharmadev/canverse/internal/board"
	"github.com/sameersharmadev/canverse/internal/config"
	"github.com/sameersharmadev/canverse/internal/snapshot"
	boardsync "github.com/sameersharmadev/canverse/internal/sync"
	"github.com/sameersharmadev/canverse/internal/ws"
)

func main() {
	cfg := config.Load()

	var cache board.Cache
	var closeCache func() error

	if cfg.Redis.Addr != "" {
		store, err := snapshot.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		cache = store
		closeCache = store.Close
	} else {
		store, err := snapshot.NewSQLiteStore(cfg.SQLite.Path)
		if err != nil {
			log.Fatalf("Failed to initialize snapshot database: %v", err)
		}
		sweeper := snapshot.NewSweeper(store, cfg.SQLite.SweepInterval)
		sweeper.Start()
		cache = store
		closeCache = func() error {
			sweeper.Stop()
			return store.Close()
		}
	}

	rooms := board.NewStore(cache, cfg.Room.SnapshotTTL, cfg.Room.GraceWindow)

	hub := ws.NewHub()
	go hub.Run()

	router := boardsync.NewRouter(hub, rooms)
	apiHandler := api.New(hub, rooms)

	r := mux.NewRouter()
	apiHandler.RegisterRoutes(r)
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWs(hub, router, w, req)
	})

	handler := corsMiddleware(cfg.Server.AllowedOrigin, r)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		rooms.Close()
		if err := closeCache(); err != nil {
			log.Printf("Error closing snapshot store: %v", err)
		}
		os.Exit(0)
	}()

	log.Printf("🎨 Canverse server starting on :%s", cfg.Server.Port)
	log.Println("Endpoints:")
	log.Println("  - WebSocket: /ws")
	log.Println("  - Health:    GET /health")
	log.Println("  - Room info: GET /rooms/{roomId}/info")
	log.Println("  - Stats:     GET /stats")

	if err := http.ListenAndServe(":"+cfg.Server.Port, handler); err != nil {
		log.Fatal("ListenAndServe: ", err)
	}
}

func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
