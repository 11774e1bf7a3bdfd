package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"notify-collab/auth"
	"notify-collab/collab"
	"notify-collab/handlers/api/rooms"
	authMiddleware "notify-collab/middleware"
	"notify-collab/stores"
)

func setupRouter(verifier auth.Verifier, tracker *collab.Rooms) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "Origin", "Host", "Connection", "Accept-Encoding", "Accept-Language", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Get("/api/health", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]string{
			"status":    "OK",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.AuthJWT(verifier))
		r.Get("/api/rooms", rooms.HandleList(tracker))
	})

	return r
}

func setupBridge() *collab.Bridge {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logrus.WithField("addr", redisAddr).Fatalf("could not connect to Redis: %v", err)
	}
	logrus.WithField("addr", redisAddr).Info("room fanout bridged through Redis")
	return collab.NewBridge(client)
}

func waitForShutdown(srv *socketio.Server) {
	exit := make(chan struct{})
	signalC := make(chan os.Signal, 1)

	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range signalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	srv.Close(nil)
	logrus.Info("shutting down")
	os.Exit(0)
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":5000", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	jwtSecret := []byte(os.Getenv("JWT_SECRET"))
	if len(jwtSecret) == 0 {
		logrus.Warn("JWT_SECRET is not set. Authentication will not work.")
	}

	store := stores.GetStore()
	verifier := auth.NewVerifier(jwtSecret, store)

	gatewayOpts := []collab.Option{}
	if bridge := setupBridge(); bridge != nil {
		gatewayOpts = append(gatewayOpts, collab.WithBridge(bridge))
	}
	gateway := collab.NewGateway(store, verifier, gatewayOpts...)
	srv := gateway.SetupServer()

	r := setupRouter(verifier, gateway.Rooms())
	r.Mount("/socket.io/", srv.ServeHandler(nil))

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := http.ListenAndServe(*listenAddress, r); err != nil {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown(srv)
}
