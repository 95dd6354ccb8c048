package env

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Env holds the values read from the .env file
var Env map[string]string

// SetupEnvFile loads the first .env file found. Containers inject their
// environment directly, so a missing file only logs a warning.
func SetupEnvFile() {
	envFiles := []string{
		".env",          // Current directory
		"../../.env",    // From cmd/membership to project root
		"../../../.env", // Fallback for deeper nesting
	}

	var err error
	for _, envFile := range envFiles {
		Env, err = godotenv.Read(envFile)
		if err == nil {
			return
		}
	}

	Env = map[string]string{}
	log.Printf("Warning: no .env file found, using process environment only")
}

// Merged returns the process environment overlaid with the loaded .env values.
func Merged() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	for k, v := range Env {
		out[k] = v
	}
	return out
}
