package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeduel/internal/api"
	"codeduel/internal/api/handler"
	"codeduel/internal/api/ws"
	"codeduel/internal/app/service"
	"codeduel/internal/app/worker"
	"codeduel/internal/common/security"
	"codeduel/internal/domain/repository"
	"codeduel/internal/platform/cache"
	"codeduel/internal/platform/codeforces"
	"codeduel/internal/platform/config"
	"codeduel/internal/platform/database"
)

func main() {
	// 1. Load Configuration
	config.Load()
	fmt.Println("Configuration loaded.")

	// 2. Initialize JWT
	security.InitJWT()
	fmt.Println("JWT initialized.")

	// 3. Initialize Database
	database.Connect()
	defer database.Close()
	fmt.Println("Database connected.")

	// 4. Initialize Redis
	cache.ConnectRedis()
	defer cache.CloseRedis()
	fmt.Println("Redis connected.")

	// 5. Initialize Repositories
	userRepo := repository.NewPgUserRepository(database.DB)
	roomRepo := repository.NewPgRoomRepository(database.DB)
	submissionRepo := repository.NewPgWinningSubmissionRepository(database.DB)

	// 6. Initialize the Codeforces client (shared rate gate for the whole process)
	cfClient := codeforces.NewClient(
		config.AppConfig.CodeforcesAPIBaseURL,
		config.AppConfig.CFRateLimitInterval,
		config.AppConfig.CFSubmissionWindow,
	)

	// 7. Initialize Services
	authService := service.NewAuthService(userRepo, cfClient)
	leaderboardService := service.NewLeaderboardService(cache.RDB, userRepo)
	matchRecorder := service.NewTxMatchRecorder(database.DB, roomRepo, submissionRepo, userRepo)
	roomService := service.NewRoomService(
		roomRepo, userRepo, submissionRepo,
		matchRecorder, cfClient, leaderboardService,
		config.AppConfig.RoomCodeLength,
	)

	// 8. Initialize the realtime hub and the match poller
	hub := ws.NewHub()
	poller := worker.NewMatchPoller(roomService, cfClient, hub, userRepo, config.AppConfig.PollInterval)
	defer poller.StopAll()
	gameHandler := ws.NewGameHandler(hub, roomService, poller)
	fmt.Println("Match poller ready.")

	// 9. Initialize Router & HTTP Server
	statusHandler := handler.NewStatusHandler(roomService, poller, cfClient)
	router := api.NewRouter(authService, roomService, leaderboardService, statusHandler, gameHandler)

	server := &http.Server{
		Addr:         ":" + config.AppConfig.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 10. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", config.AppConfig.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", config.AppConfig.APIPort, err)
		}
	}()
	log.Println("Server started successfully.")

	<-stop // Wait for interrupt signal

	log.Println("Shutting down server...")
	poller.StopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server and poller stopped gracefully.")
}
