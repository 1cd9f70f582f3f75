package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"MuseFM/config"
	"MuseFM/db"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Test the Redis connection",
	Long:  `Connect to Redis with the configured credentials and run a basic read/write round trip.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("Redis config: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		if err := db.ConnectRedis(cfg); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		fmt.Println("Redis connection OK")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		key := "musefm:diag"
		if err := db.RedisClient.Set(ctx, key, "ok", time.Minute).Err(); err != nil {
			log.Fatalf("Redis write failed: %v", err)
		}
		val, err := db.RedisClient.Get(ctx, key).Result()
		if err != nil || val != "ok" {
			log.Fatalf("Redis read failed: val=%q err=%v", val, err)
		}
		db.RedisClient.Del(ctx, key)
		fmt.Println("Redis read/write round trip OK")

		if err := db.CloseRedis(); err != nil {
			log.Printf("Error closing Redis connection: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
