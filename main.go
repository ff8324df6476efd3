package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"podium-lobby/internal/api/http"
	"podium-lobby/internal/asset"
	"podium-lobby/internal/config"
	"podium-lobby/internal/lobby/avatar"
	"podium-lobby/internal/lobby/session"
	"podium-lobby/internal/logger"
	"podium-lobby/internal/scene"
	"podium-lobby/internal/service"
	"podium-lobby/internal/state"
	"podium-lobby/internal/transport"
	"podium-lobby/internal/ui"
)

var (
	BuildVersion = "master"
	BuildCommit  = "00000000"

	cfgFile string
	offline bool

	rootCmd = &cobra.Command{
		Use:   "podium-lobby",
		Short: "Multiplayer lobby with a 3D podium preview",
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the lobby server",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}

	lobbyCmd = &cobra.Command{
		Use:   "lobby",
		Short: "Open the lobby client",
		Args:  cobra.NoArgs,
		RunE:  lobby,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run:   version,
	}
)

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file path (default ./app_config.json)")
	lobbyCmd.Flags().BoolVar(&offline, "offline", false, "Preview locally without connecting to a server")

	rootCmd.AddCommand(serveCmd, lobbyCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func version(_ *cobra.Command, _ []string) {
	fmt.Printf("podium-lobby %s (%s) %s\n", BuildVersion, BuildCommit, runtime.Version())
}

func serve(cmd *cobra.Command, _ []string) error {
	// 加载配置
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	// 初始化日志器
	logger.InitLogger(cfg.LogLevel, cfg.LogFile)
	defer zap.L().Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	roomSvc := service.NewRoomService(cfg.MaxPlayers)
	if err := roomSvc.EnsureRoom(cfg.RoomID); err != nil {
		return err
	}

	// 组装应用状态
	appState := state.NewAppState(cfg, roomSvc)
	app := http.NewApp(appState)

	g, gctx := errgroup.WithContext(ctx)

	// 启动服务器
	g.Go(func() error {
		return http.RunServer(app, appState)
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		roomSvc.Close()
		return app.Shutdown(shutdownCtx)
	})

	zap.L().Info(
		"大厅服务启动",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("room_id", cfg.RoomID),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func lobby(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	// 终端被界面占用，日志写到文件
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "podium-lobby.log"
	}
	logger.InitLogger(cfg.LogLevel, logFile)
	defer zap.L().Sync()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	eng := scene.NewHeadless()
	presenter := avatar.NewPresenter(
		eng,
		asset.NewProber(cfg.AssetURL, cfg.AssetTimeout),
		asset.NewImporter(cfg.AssetTimeout),
		avatar.Options{
			AssetURL: cfg.AssetURL,
			Radius:   cfg.StageRadius,
		},
	)

	opts := []session.Option{session.WithTicker(eng, cfg.TickRate)}

	var client *transport.Client
	if !offline {
		client = transport.NewClient(cfg.ServerURL+"?room_id="+cfg.RoomID, cfg.ReconnectInterval)
		opts = append(opts, session.WithChannel(client))
	}

	sess := session.New(presenter, opts...)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sess.Run(gctx)
	})

	if client != nil {
		g.Go(func() error {
			return client.Run(gctx)
		})
	}

	g.Go(func() error {
		// 界面退出即结束整个客户端
		defer cancel()
		return ui.New(gctx, sess).Run()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
