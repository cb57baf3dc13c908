package server

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"conference-balancer/pkg/models"
	"conference-balancer/pkg/store"
)

// AddServersFromFile upserts one server per line of filename. A line holds
// the API base URL, the shared secret and optionally the strength:
//
//	https://bbb1.example.org/bigbluebutton/ 8cd8ef52e8e101574e400365b55e11a6 2
//
// Blank lines and lines starting with # are ignored. Malformed lines are
// logged and skipped. When poolName is set every server is also added to
// that pool, which must exist. It returns the number of servers stored.
func AddServersFromFile(ctx context.Context, st store.Store, log *zap.SugaredLogger, filename string, poolName string) (int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var pool models.ServerPool
	if poolName != "" {
		pool, err = st.GetPoolByName(ctx, poolName)
		if err != nil {
			return 0, fmt.Errorf("failed to get pool %q: %w", poolName, err)
		}
	}

	added := 0
	lineNo := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		server, err := parseServerLine(line)
		if err != nil {
			log.Errorw("Error parsing server line", "line", lineNo, "error", err)
			continue
		}

		err = st.InTx(ctx, func(tx store.Store) error {
			if err := tx.UpsertServer(ctx, &server); err != nil {
				return err
			}
			if poolName != "" {
				return tx.AddServerToPool(ctx, pool.ID, server.ID)
			}
			return nil
		})
		if err != nil {
			return added, fmt.Errorf("failed to store server %s: %w", server.BaseURL, err)
		}

		log.Debugw("Server upserted successfully", "server", server.ID, "baseURL", server.BaseURL, "pool", poolName)
		added++
	}

	if err := scanner.Err(); err != nil {
		return added, fmt.Errorf("error reading file: %w", err)
	}

	return added, nil
}

func parseServerLine(line string) (models.Server, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || len(fields) > 3 {
		return models.Server{}, fmt.Errorf("expected <base_url> <secret> [strength], got %d fields", len(fields))
	}

	parsedURL, err := url.Parse(fields[0])
	if err != nil {
		return models.Server{}, fmt.Errorf("failed to parse base url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return models.Server{}, fmt.Errorf("unsupported scheme %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return models.Server{}, fmt.Errorf("base url %q has no host", fields[0])
	}

	server := models.Server{
		Name:     parsedURL.Host,
		BaseURL:  strings.TrimSuffix(parsedURL.String(), "/"),
		Secret:   fields[1],
		Strength: 1,
		Status:   models.StatusOffline,
	}

	if len(fields) == 3 {
		strength, err := strconv.Atoi(fields[2])
		if err != nil || strength < 1 {
			return models.Server{}, fmt.Errorf("strength must be a positive integer, got %q", fields[2])
		}
		server.Strength = strength
	}

	return server, nil
}
