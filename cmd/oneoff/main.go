// Command oneoff backfills jobs whose input was uploaded but whose output
// never materialized: it lists the bucket, pairs <job>/input objects with
// <job>/output prefixes, and runs the pipeline inline for every input
// still missing its output.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"stem420/internal/audio"
	"stem420/internal/blob"
	"stem420/internal/job"
	"stem420/internal/lifecycle"
	"stem420/internal/pipeline"
)

func main() {
	_ = godotenv.Load()

	bucketName := getenv("ONEOFF_BUCKET", "stem420-bucket")
	basePrefix := getenv("ONEOFF_PREFIX", "_stem420/")

	ctx := context.Background()
	client, err := blob.NewClient(ctx)
	if err != nil {
		log.Fatalf("failed to create storage client: %v", err)
	}
	defer client.Close()

	names, err := client.List(ctx, bucketName, basePrefix)
	if err != nil {
		log.Fatalf("failed to list %s/%s: %v", bucketName, basePrefix, err)
	}
	missing := missingOutputs(names, basePrefix)

	tracker := lifecycle.NewTracker()
	tools := audio.NewTools(os.Getenv("FFMPEG_BIN"), os.Getenv("DEMUCS_BIN"))
	orch := &pipeline.Orchestrator{
		Tools:     tools,
		Tracker:   tracker,
		NewBucket: func(context.Context) (blob.Bucket, error) { return client, nil },
	}

	for jobID, inputObject := range missing {
		req := job.Request{
			SourceLocator:      fmt.Sprintf("%s://%s/%s", blob.Scheme, bucketName, inputObject),
			DestinationLocator: fmt.Sprintf("%s://%s/%s%s/output/", blob.Scheme, bucketName, basePrefix, jobID),
		}
		if err := orch.Process(ctx, req); err != nil {
			log.Printf("oneoff: job %s failed: %v", jobID, err)
		}
	}

	fmt.Println("oneoff complete")
}

// missingOutputs maps job IDs to their input object for every job that has
// an input under basePrefix but no output object yet. Object layout is
// <basePrefix><jobID>/<category>/<file>, category "input" or "output".
func missingOutputs(names []string, basePrefix string) map[string]string {
	inputs := make(map[string]string)
	outputs := make(map[string]bool)

	for _, name := range names {
		rel, ok := strings.CutPrefix(name, basePrefix)
		if !ok {
			continue
		}
		segments := strings.Split(rel, "/")
		if len(segments) < 3 {
			continue
		}
		jobID, category := segments[0], segments[1]
		switch category {
		case "input":
			inputs[jobID] = name
		case "output":
			outputs[jobID] = true
		}
	}

	for jobID := range outputs {
		delete(inputs, jobID)
	}
	return inputs
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
