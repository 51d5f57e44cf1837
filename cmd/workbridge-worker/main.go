package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/workbridge-io/workbridge/core/infra/buildinfo"
	"github.com/workbridge-io/workbridge/core/infra/config"
	"github.com/workbridge-io/workbridge/core/registry"
	"github.com/workbridge-io/workbridge/core/workerd"
)

func main() {
	log.Println("workbridge worker starting...")
	buildinfo.Log("workbridge-worker")
	cfg := config.Load()

	reg := registry.New()
	registerBuiltins(reg)

	if err := workerd.Run(cfg, reg); err != nil {
		log.Fatalf("worker error: %v", err)
	}
}

// registerBuiltins wires the utility actions every deployment gets.
// Integration packages register their own handlers on top of these.
func registerBuiltins(reg *registry.Registry) {
	reg.Register("workbridge", "echo", registry.HandlerFunc(
		func(ctx context.Context, input map[string]any, creds *registry.Credentials, call registry.CallContext) (map[string]any, error) {
			return input, nil
		}))
	reg.Register("workbridge", "log", registry.HandlerFunc(
		func(ctx context.Context, input map[string]any, creds *registry.Credentials, call registry.CallContext) (map[string]any, error) {
			parts := make([]string, 0, len(input))
			for k, v := range input {
				parts = append(parts, k+"="+toString(v))
			}
			log.Printf("[ACTION] %s step=%s %s", call.ExecutionID, call.StepID, strings.Join(parts, " "))
			return input, nil
		}))
	reg.RegisterTrigger("workbridge", "manual")
	reg.RegisterTrigger("workbridge", "webhook")
	reg.RegisterTrigger("workbridge", "schedule")
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
