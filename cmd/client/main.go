package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"vision-backend/cmd"
	"vision-backend/pkg/api"
	"vision-backend/pkg/client"

	"github.com/caarlos0/env/v11"
	"github.com/schollz/progressbar/v3"
)

type ClientConfig struct {
	BaseURL string        `env:"VISION_BACKEND_URL" envDefault:"http://localhost:8000"`
	Timeout time.Duration `env:"CLIENT_TIMEOUT" envDefault:"2m"`
}

func printJson(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("error formatting response: %v", err)
	}
	fmt.Println(string(out))
}

func runInference(ctx context.Context, c *client.Client, modelName string, batchSize int, files []string) {
	if len(files) == 0 {
		log.Fatalf("no image files provided")
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("classifying"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWriter(os.Stderr),
	)

	totalCost := 0.0
	for start := 0; start < len(files); start += batchSize {
		batch := files[start:min(start+batchSize, len(files))]

		images := make([]string, 0, len(batch))
		for _, file := range batch {
			encoded, err := client.EncodeImageFile(file)
			if err != nil {
				log.Fatalf("%v", err)
			}
			images = append(images, encoded)
		}

		res, err := c.InferMultiple(ctx, modelName, images)
		if err != nil {
			log.Fatalf("error classifying batch starting at %s: %v", batch[0], err)
		}

		_ = bar.Add(len(batch))
		totalCost += res.Cost

		for i, file := range batch {
			fmt.Printf("%s\t%v\t%.4f\n", file, res.Top5Classes[i], res.Logits[i][0])
		}
	}
	_ = bar.Finish()

	slog.Info("classification complete", "images", len(files), "total_cost", totalCost)
}

func main() {
	var modelName string
	var batchSize int
	var usageLimit int

	flag.StringVar(&modelName, "model", "", "model to run inference with")
	flag.IntVar(&batchSize, "batch", 8, "images per request")
	flag.IntVar(&usageLimit, "limit", 20, "number of usage records to list")

	cmd.LoadEnvFile()

	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: client [flags] health|models|usage|infer <image files...>\n")
		os.Exit(2)
	}

	c := client.New(cfg.BaseURL, cfg.Timeout)
	ctx := context.Background()

	switch command := flag.Arg(0); command {
	case "health":
		health, err := c.Health(ctx)
		if err != nil {
			log.Fatalf("health check failed: %v", err)
		}
		printJson(health)
	case "models":
		models, err := c.ListModels(ctx)
		if err != nil {
			log.Fatalf("error listing models: %v", err)
		}
		printJson(models)
	case "usage":
		records, err := c.Usage(ctx, api.UsageQuery{ModelName: modelName, Limit: usageLimit})
		if err != nil {
			log.Fatalf("error listing usage: %v", err)
		}
		printJson(records)
	case "infer":
		if modelName == "" {
			log.Fatalf("-model is required for infer")
		}
		runInference(ctx, c, modelName, max(batchSize, 1), flag.Args()[1:])
	default:
		log.Fatalf("unknown command '%s'", command)
	}
}
