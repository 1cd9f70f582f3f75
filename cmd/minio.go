package cmd

import (
	"context"
	"fmt"
	"log"

	"MuseFM/config"
	"MuseFM/storage"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioStats  bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Inspect the MinIO audio bucket",
	Long:  `List the objects in the configured MinIO bucket, optionally filtered by prefix, with size totals.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("MinIO config: %s, bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("Failed to connect to MinIO: %v", err)
		}
		client := storage.GetMinioClient()

		ctx := context.Background()
		opts := minio.ListObjectsOptions{Prefix: minioPrefix, Recursive: true}

		var count int
		var totalBytes int64
		for object := range client.ListObjects(ctx, cfg.MinioBucket, opts) {
			if object.Err != nil {
				log.Fatalf("Failed to list objects: %v", object.Err)
			}
			count++
			totalBytes += object.Size
			if !minioStats {
				fmt.Printf("%10d  %s\n", object.Size, object.Key)
			}
		}

		fmt.Printf("\n%d objects, %.2f MiB total\n", count, float64(totalBytes)/(1024*1024))
	},
}

func init() {
	minioCmd.Flags().StringVar(&minioPrefix, "prefix", "", "only list objects under this prefix")
	minioCmd.Flags().BoolVar(&minioStats, "stats", false, "print totals only")
	rootCmd.AddCommand(minioCmd)
}
