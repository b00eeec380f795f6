package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"phone-auth-service/internal/config"
	"phone-auth-service/internal/factory"
	"phone-auth-service/internal/util"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f, err := factory.NewFactory(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	cfg := f.Config()
	router := f.Router()

	servers := []*http.Server{}
	if cfg.Server.EnableTLS {
		tlsManager := f.TLSManager()
		httpsServer := newServer(cfg, fmt.Sprintf(":%d", cfg.Server.TLSPort), router)
		httpsServer.TLSConfig = tlsManager.GetTLSConfig()

		// plain listener only answers ACME challenges and redirects to HTTPS
		httpServer := newServer(cfg, cfg.GetServerAddress(), tlsManager.HTTPHandler(redirectToHTTPS(cfg.Server.TLSPort)))

		servers = append(servers, httpsServer, httpServer)
		go serve("HTTPS", func() error { return httpsServer.ListenAndServeTLS("", "") })
		go serve("HTTP redirect", httpServer.ListenAndServe)

		util.Info("Starting HTTPS server",
			util.String("environment", cfg.Environment),
			util.Int("port", cfg.Server.TLSPort),
			util.Bool("auto_cert", cfg.Server.AutoCert),
		)
	} else {
		server := newServer(cfg, cfg.GetServerAddress(), router)
		servers = append(servers, server)
		go serve("HTTP", server.ListenAndServe)

		util.Warn("Starting HTTP server - TLS is disabled",
			util.String("environment", cfg.Environment),
			util.Int("port", cfg.Server.Port),
		)
	}

	<-ctx.Done()
	util.Info("Received shutdown signal")
	waitForShutdown(servers...)
}

func newServer(cfg *config.Config, addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func serve(name string, listen func() error) {
	if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		util.Fatal("Server failed", util.String("server", name), util.ErrorField(err))
	}
}

func redirectToHTTPS(tlsPort int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.Host)
		if err != nil {
			host = r.Host
		}
		target := fmt.Sprintf("https://%s:%d%s", host, tlsPort, r.URL.RequestURI())
		if tlsPort == 443 {
			target = "https://" + host + r.URL.RequestURI()
		}
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
}

func waitForShutdown(servers ...*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
		} else {
			util.Info("Server shutdown completed", util.String("address", srv.Addr))
		}
	}
}
