// Package seed populates an empty crawl frontier from a hostname list.
package seed

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/idna"

	"github.com/JakeFAU/realtime-search-crawler/internal/search"
)

// DefaultBatchSize bounds rows per insert statement.
const DefaultBatchSize = 5000

// Parse reads one hostname per line. Blank lines and repeats are dropped;
// ranks follow the order of first appearance starting at 1. Internationalized
// hostnames are converted to their ASCII form.
func Parse(r io.Reader) ([]search.Origin, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	seen := make(map[string]struct{})
	var origins []search.Origin
	for scanner.Scan() {
		host := asciiHost(strings.TrimSpace(scanner.Text()))
		if host == "" {
			continue
		}
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		origins = append(origins, search.Origin{URL: host, Rank: len(origins) + 1})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read seed list: %w", err)
	}
	return origins, nil
}

// asciiHost punycodes non-ASCII hostnames. Hosts idna rejects are kept as
// written and fail later at crawl time.
func asciiHost(host string) string {
	for i := 0; i < len(host); i++ {
		if host[i] >= 0x80 {
			if converted, err := idna.Lookup.ToASCII(host); err == nil {
				return converted
			}
			return host
		}
	}
	return host
}

// Seeder loads the seed list into an empty frontier.
type Seeder struct {
	store     search.OriginSeeder
	batchSize int
	logger    *zap.Logger
}

// NewSeeder builds a Seeder. A non-positive batchSize uses DefaultBatchSize.
func NewSeeder(store search.OriginSeeder, batchSize int, logger *zap.Logger) (*Seeder, error) {
	if store == nil {
		return nil, fmt.Errorf("origin store is required")
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{store: store, batchSize: batchSize, logger: logger}, nil
}

// EnsureFile seeds from path when the frontier is empty and returns the
// number of inserted origins.
func (s *Seeder) EnsureFile(ctx context.Context, path string) (int64, error) {
	count, err := s.store.CountOrigins(ctx)
	if err != nil {
		return 0, fmt.Errorf("count origins: %w", err)
	}
	if count > 0 {
		s.logger.Debug("frontier already seeded", zap.Int64("origins", count))
		return 0, nil
	}
	f, err := os.Open(path) // #nosec G304 -- seed path comes from operator config
	if err != nil {
		return 0, fmt.Errorf("open seed file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	origins, err := Parse(f)
	if err != nil {
		return 0, err
	}
	return s.insert(ctx, origins)
}

// Ensure seeds from r when the frontier is empty.
func (s *Seeder) Ensure(ctx context.Context, r io.Reader) (int64, error) {
	count, err := s.store.CountOrigins(ctx)
	if err != nil {
		return 0, fmt.Errorf("count origins: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	origins, err := Parse(r)
	if err != nil {
		return 0, err
	}
	return s.insert(ctx, origins)
}

func (s *Seeder) insert(ctx context.Context, origins []search.Origin) (int64, error) {
	var total int64
	for start := 0; start < len(origins); start += s.batchSize {
		end := min(start+s.batchSize, len(origins))
		n, err := s.store.InsertOrigins(ctx, origins[start:end])
		if err != nil {
			return total, fmt.Errorf("insert origins: %w", err)
		}
		total += n
	}
	s.logger.Info("seeded frontier", zap.Int("listed", len(origins)), zap.Int64("inserted", total))
	return total, nil
}
