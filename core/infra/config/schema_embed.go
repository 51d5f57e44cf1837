package config

import "embed"

const workerSchemaFile = "schema/worker.schema.json"

//go:embed schema/*.json
var configSchemaFS embed.FS
