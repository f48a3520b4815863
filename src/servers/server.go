package servers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/shongo-go/connector/src/configs"
	"github.com/shongo-go/connector/src/instance"
	applog "github.com/shongo-go/connector/src/log"
	"github.com/shongo-go/connector/src/pkg/sentry"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	server *http.Server
}

func initMux(ctx context.Context) *mux.Router {
	inst := instance.GetInstance(ctx)
	m := mux.NewRouter()
	m.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 保留请求自身的 context，mux 路由变量存放在其中
			handler.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), instance.Key, inst)))
		})
	}, log)

	apiRoute := m.PathPrefix("/api").Subrouter()
	apiRoute.HandleFunc("/info", getInfo).Methods("GET")
	apiRoute.HandleFunc("/status", getStatus).Methods("GET")
	apiRoute.HandleFunc("/config", getConfig).Methods("GET")
	apiRoute.HandleFunc("/agents", getAgents).Methods("GET")
	apiRoute.HandleFunc("/connectors", getAllConnectors).Methods("GET")
	apiRoute.HandleFunc("/connectors/{name}", getConnector).Methods("GET")
	apiRoute.HandleFunc("/connectors/{name}/logs", getConnectorLogs).Methods("GET")
	apiRoute.HandleFunc("/connectors/{name}/rooms", getConnectorRooms).Methods("GET")
	apiRoute.HandleFunc("/connectors/{name}/load", getConnectorLoad).Methods("GET")
	apiRoute.HandleFunc("/connectors/{name}/reconnect", reconnectConnector).Methods("POST")
	apiRoute.HandleFunc("/connectors/{name}/rooms/{room}/recording-folder", putRecordingFolder).Methods("PUT")

	m.Handle("/metrics", metricsHandler(ctx))
	return m
}

func NewServer(ctx context.Context) *Server {
	inst := instance.GetInstance(ctx)
	config := configs.GetCurrentConfig()
	httpServer := &http.Server{
		Addr:              config.RPC.Bind,
		Handler:           initMux(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := &Server{server: httpServer}
	inst.Server = server
	return server
}

func (s *Server) Start(ctx context.Context) error {
	inst := instance.GetInstance(ctx)
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	inst.WaitGroup.Add(1)
	sentry.Go(func() {
		applog.GetLogger().Infof("Server start at %s", listener.Addr())
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.GetLogger().WithError(err).Error("server stopped")
		}
	})
	return nil
}

func (s *Server) Close(ctx context.Context) {
	inst := instance.GetInstance(ctx)
	defer inst.WaitGroup.Done()
	ctx2, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx2); err != nil {
		applog.GetLogger().WithError(err).Warn("failed to shutdown server")
	}
	applog.GetLogger().Info("Server close")
}
