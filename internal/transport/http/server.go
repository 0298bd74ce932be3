package http

import (
	"context"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/campuslms/chatcore/internal/auth"
	"github.com/campuslms/chatcore/internal/config"
	"github.com/campuslms/chatcore/internal/core"
	"github.com/campuslms/chatcore/internal/store"
)

// Server is the HTTP server plus the socket handler whose hijacked
// connections http.Server.Shutdown does not track.
type Server struct {
	*stdhttp.Server
	ws *WSHandler
}

// NewServer builds an HTTP server with the chat socket and REST routes.
// The socket is mounted on a plain ServeMux: gin's writer refuses to hijack
// once the upgrade has written its header.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	roomHandlers := NewRoomHandlers(hub, st, logger)

	api := router.Group("/api")
	api.Use(AuthMiddleware(authService, logger))
	{
		api.GET("/rooms/:id/online", roomHandlers.Online)
	}

	ws := NewWSHandler(hub, authService, cfg.Chat, logger)

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", ws)
	mux.Handle("/", router)

	return &Server{
		Server: &stdhttp.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
		ws: ws,
	}
}

// Shutdown stops accepting requests, then closes every chat socket and waits
// for their handlers to return or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Server.Shutdown(ctx)
	if wsErr := s.ws.Close(ctx); err == nil {
		err = wsErr
	}
	return err
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
