package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kataras/iris/v12"

	"github.com/simularium/simularium-viewer-sub001/internal/config"
	"github.com/simularium/simularium-viewer-sub001/internal/handlers"
	"github.com/simularium/simularium-viewer-sub001/internal/logging"
	"github.com/simularium/simularium-viewer-sub001/internal/server"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.Host, "host", cfg.Host, "Listen host")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "Server port")
	flag.StringVar(&cfg.StoragePath, "path", cfg.StoragePath, "Trajectory storage directory")
	flag.BoolVar(&cfg.CacheEnabled, "cache", cfg.CacheEnabled, "Enable frame cache")
	flag.IntVar(&cfg.MaxCacheSize, "max-cache", cfg.MaxCacheSize, "Max cache size in bytes (-1 unbounded)")
	flag.IntVar(&cfg.ParseWorkers, "workers", cfg.ParseWorkers, "Background parse workers per session")
	flag.Float64Var(&cfg.PlaybackFPS, "fps", cfg.PlaybackFPS, "Playback frames per second")
	file := flag.String("file", "", "Trajectory file to open at startup (relative to -path)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		logging.SetDebugMode(true)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
		os.Exit(1)
	}

	actualPort := findAvailablePort(cfg.Host, cfg.Port)

	fmt.Println("============================================================")
	fmt.Println("Simularium 轨迹服务")
	fmt.Println("============================================================")
	fmt.Printf("存储目录: %s\n", cfg.StoragePath)
	fmt.Printf("监听地址: http://%s:%d\n", cfg.Host, actualPort)
	fmt.Println("============================================================")

	srv := server.NewTrajectoryServer(cfg)
	defer srv.Close()

	if *file != "" {
		if err := srv.Open(*file); err != nil {
			logging.LogError("打开轨迹失败", "file", *file, "error", err)
		}
	}

	app := iris.New()
	app.Logger().SetLevel("warn")

	// CORS
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", "*")
		ctx.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		ctx.Header("Access-Control-Allow-Headers", "Content-Type")
		if ctx.Method() == "OPTIONS" {
			ctx.StatusCode(204)
			return
		}
		ctx.Next()
	})

	server.RegisterRoutes(app, server.NewHandlers(srv))
	handlers.Register(app, srv)

	// 优雅关闭
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		fmt.Println("\n正在关闭...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		app.Shutdown(ctx)
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Host, actualPort)
	if err := app.Listen(addr, iris.WithoutServerError(iris.ErrServerClosed)); err != nil {
		logging.LogError("服务器错误", "error", err)
	}
}

// findAvailablePort 查找可用端口，如果指定端口被占用则递增
func findAvailablePort(host string, startPort int) int {
	for port := startPort; port < startPort+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
		if err == nil {
			ln.Close()
			return port
		}
	}
	return startPort
}
