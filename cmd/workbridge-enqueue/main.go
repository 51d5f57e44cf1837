package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/workbridge-io/workbridge/core/infra/buildinfo"
	"github.com/workbridge-io/workbridge/core/infra/config"
	"github.com/workbridge-io/workbridge/core/infra/redisutil"
	"github.com/workbridge-io/workbridge/core/queue"
)

func main() {
	fs := flag.NewFlagSet("workbridge-enqueue", flag.ExitOnError)
	workflowID := fs.String("workflow", "", "workflow id to run")
	orgID := fs.String("org", "", "org/tenant id")
	payload := fs.String("payload", "", "trigger payload JSON (inline or @path)")
	source := fs.String("source", "manual", "trigger source")
	priority := fs.Int("priority", 0, "job priority (higher runs first)")
	at := fs.String("at", "", "RFC3339 time to schedule the run for")
	showVersion := fs.Bool("version", false, "print build info and exit")
	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Println(buildinfo.Get("workbridge-enqueue").String())
		return
	}
	if strings.TrimSpace(*workflowID) == "" {
		fail("workflow id required (use -workflow)")
	}
	if strings.TrimSpace(*orgID) == "" {
		fail("org id required (use -org)")
	}

	var triggerPayload map[string]any
	if strings.TrimSpace(*payload) != "" {
		decoded, err := parseJSONArg(*payload)
		if err != nil {
			fail(fmt.Sprintf("invalid payload: %v", err))
		}
		triggerPayload = decoded
	}

	opts := queue.EnqueueOptions{Priority: *priority}
	if strings.TrimSpace(*at) != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			fail(fmt.Sprintf("invalid -at time: %v", err))
		}
		opts.ScheduledFor = &t
	}

	cfg := config.Load()
	client, err := redisutil.Connect(cfg.RedisURL)
	if err != nil {
		fail(fmt.Sprintf("connect redis: %v", err))
	}
	defer client.Close()

	q := queue.New(client, cfg.QueueName)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	jobID, err := q.Enqueue(ctx, *workflowID, *orgID, triggerPayload, *source, opts)
	if err != nil {
		fail(fmt.Sprintf("enqueue: %v", err))
	}
	fmt.Println(jobID)
}

// parseJSONArg accepts inline JSON or @path to a JSON file.
func parseJSONArg(arg string) (map[string]any, error) {
	data := []byte(arg)
	if strings.HasPrefix(arg, "@") {
		b, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
		if err != nil {
			return nil, err
		}
		data = b
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, "error: "+msg)
	os.Exit(1)
}
