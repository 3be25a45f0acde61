package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/voxlane/scribe/internal/infra/broker"
)

// Pushes a job id onto the transcription queue. Operator tool for queue
// mode: delivers (or re-delivers) a pending job to the workers.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	brokerURL := flag.String("broker", os.Getenv("BROKER_URL"), "redis URL of the broker")
	jobID := flag.String("job", "", "job id to enqueue")
	flag.Parse()

	if *jobID == "" {
		log.Fatalf("-job is required")
	}
	if *brokerURL == "" {
		log.Fatalf("-broker or BROKER_URL is required")
	}

	client, err := broker.NewClient(broker.Config{URL: *brokerURL})
	if err != nil {
		log.Fatalf("Failed to create broker client: %v", err)
	}
	defer client.Close()

	if err := client.EnqueueJob(context.Background(), *jobID); err != nil {
		log.Fatalf("Failed to enqueue job: %v", err)
	}

	fmt.Printf("Enqueued job %s\n", *jobID)
}
