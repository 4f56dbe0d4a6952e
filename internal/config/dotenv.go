package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// LoadEnvFile copies KEY=VALUE lines from a dotenv file into the process
// environment. Variables that are already set win. A missing file is not an
// error.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open env file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		key, val, ok := parseEnvLine(scanner.Text())
		if !ok {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return fmt.Errorf("%s:%d: set %s: %w", path, lineNo, key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan env file %q: %w", path, err)
	}
	return nil
}

func parseEnvLine(line string) (key, val string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")
	key, val, found := strings.Cut(line, "=")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", false
	}
	val = strings.TrimSpace(val)
	if len(val) >= 2 {
		first, last := val[0], val[len(val)-1]
		if (first == '"' || first == '\'') && first == last {
			val = val[1 : len(val)-1]
		}
	}
	return key, val, true
}

// ExportCredentials points GOOGLE_APPLICATION_CREDENTIALS at the configured
// service account file when it exists and nothing else has set it.
func (c Config) ExportCredentials() (bool, error) {
	if c.GoogleCredentialsFile == "" || os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" {
		return false, nil
	}
	if _, err := os.Stat(c.GoogleCredentialsFile); err != nil {
		return false, nil
	}
	if err := os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", c.GoogleCredentialsFile); err != nil {
		return false, fmt.Errorf("export GOOGLE_APPLICATION_CREDENTIALS: %w", err)
	}
	return true, nil
}
