package cmd

import (
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"liveroom/config"
	"liveroom/core"
	"liveroom/handlers/api/rooms"
	"liveroom/handlers/websocket"
	"liveroom/stores"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the live-room relay server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", ":3002", "Set the server listen address")
	serveCmd.Flags().String("storage", "memory", "Room registry storage: memory, sqlite or filesystem")
	_ = viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("storage.type", serveCmd.Flags().Lookup("storage"))
}

func localOrigin(origin string) bool {
	if origin == "" {
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	switch parsed.Scheme {
	case "http", "https":
		switch parsed.Hostname() {
		case "localhost", "127.0.0.1", "::1":
			return true
		}
	}
	return false
}

func setupRouter(cfg config.ServerConfig, registry core.RoomRegistry, relay *websocket.Relay) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsOptions := cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if len(cfg.AllowedOrigins) == 0 {
		corsOptions.AllowOriginFunc = func(r *http.Request, origin string) bool {
			return localOrigin(origin)
		}
	}
	r.Use(cors.Handler(corsOptions))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	r.Route("/api/rooms", func(r chi.Router) {
		r.Get("/", rooms.HandleListRooms(registry, relay.ActiveRooms))
		r.Route("/{roomId}", func(r chi.Router) {
			r.Get("/", rooms.HandleGetRoom(registry, relay.ActiveRooms))
			r.Delete("/", rooms.HandleDeleteRoom(registry))
		})
	})

	r.Handle(cfg.Path+"/", relay.Handler())
	return r
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry := stores.GetStore(stores.Config{
		Type:           cfg.Storage.Type,
		DataSourceName: cfg.Storage.DSN,
		BasePath:       cfg.Storage.Path,
	})

	relay := websocket.SetupSocketIO(registry, websocket.Options{
		Path:             cfg.Server.Path,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		MaxMessageLength: cfg.Server.MaxMessageLength,
	})
	r := setupRouter(cfg.Server, registry, relay)

	logrus.WithField("addr", cfg.Server.Listen).Info("starting server")
	go func() {
		if err := http.ListenAndServe(cfg.Server.Listen, r); err != nil {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(relay)
	return nil
}

func waitForShutdown(relay *websocket.Relay) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	s := <-signalC

	logrus.WithField("signal", s).Info("Shutting down")
	relay.Close()
}
