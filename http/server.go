// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"go.uber.org/zap"

	"ll97dash/config"
)

// Server HTTP服务器
type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   1 << 20,
	}
}

// ServerConfigFrom maps the http section of the service configuration.
func ServerConfigFrom(c config.HTTPConfig) ServerConfig {
	sc := DefaultServerConfig()
	if c.Port > 0 {
		sc.Port = c.Port
	}
	if c.Timeout > 0 {
		sc.Timeout = c.Timeout
	}
	if len(c.AllowedOrigins) > 0 {
		sc.AllowedOrigins = c.AllowedOrigins
	}
	if c.MaxBodyBytes > 0 {
		sc.MaxBodyBytes = c.MaxBodyBytes
	}
	return sc
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg ServerConfig, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	// 注册所有处理器
	RegisterHandlers(mux)
	RegisterDashboardRoutes(mux)

	// 创建中间件链
	chain := Chain(
		RecoveryMiddleware(logger),         // 1. 恢复中间件（最先执行，捕获panic）
		RequestIDMiddleware,                // 2. 请求ID
		LoggerMiddleware(logger),           // 3. 日志中间件
		MetricsMiddleware(mux),
		SecurityHeadersMiddleware,          // 4. 安全头中间件
		CORSMiddleware(cfg.AllowedOrigins), // 5. CORS中间件
		RequestSizeMiddleware(cfg.MaxBodyBytes),
		TimeoutMiddleware(cfg.Timeout),
		handlers.CompressHandler,
	)
	return chain(mux)
}

// NewServer 创建HTTP服务器
func NewServer(cfg ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewHandler(cfg, logger),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Timeout,
			IdleTimeout:       120 * time.Second,
			ErrorLog:          zap.NewStdLog(logger),
		},
		config: cfg,
		logger: logger,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return s.Serve(ln)
}

// Serve 在给定监听器上提供服务
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting HTTP server",
		zap.String("addr", ln.Addr().String()),
		zap.String("websocket", "/api/ws/predictions"))

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
