// Command ratefeed enqueues rate feed records from a JSON file onto the
// ingest queue. It is the manual escape hatch for replaying a feed drop:
//
//	ratefeed -file feed.json
//
// The file holds an array of feed records in the ingest payload format.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-levy/internal/config"
	"github.com/noah-isme/backend-levy/internal/ingest"
)

func main() {
	file := flag.String("file", "", "path to a JSON array of rate feed records")
	flag.Parse()
	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: ratefeed -file feed.json")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("load config: %v", err)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		fatal("read feed file: %v", err)
	}
	var records []ingest.ApplyRatePayload
	if err := json.Unmarshal(data, &records); err != nil {
		fatal("parse feed file: %v", err)
	}

	redisOpts, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		fatal("parse redis url: %v", err)
	}
	client := asynq.NewClient(redisOpts)
	defer func() { _ = client.Close() }()

	for i, record := range records {
		task, err := ingest.NewApplyRateTask(record)
		if err != nil {
			fatal("record %d: %v", i, err)
		}
		info, err := client.Enqueue(task, asynq.MaxRetry(5))
		if err != nil {
			fatal("enqueue record %d: %v", i, err)
		}
		fmt.Printf("enqueued %s for %s\n", info.ID, record.JurisdictionCode)
	}
	fmt.Printf("enqueued %d records\n", len(records))
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "ratefeed: "+format+"\n", args...)
	os.Exit(1)
}
