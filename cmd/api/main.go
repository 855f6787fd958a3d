package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"rocket/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	srv := server.New()
	srv.RegisterFiberRoutes()

	port, _ := strconv.Atoi(os.Getenv("PORT"))
	if port == 0 {
		port = 8080
	}

	go func() {
		if err := srv.Listen(fmt.Sprintf(":%d", port)); err != nil {
			log.Fatalf("[SERVER] Listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := srv.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Printf("[SERVER] Fiber shutdown: %v", err)
	}
	if err := srv.Shutdown(); err != nil {
		log.Printf("[SERVER] Shutdown: %v", err)
	}

	log.Println("[SERVER] Goodbye")
}
