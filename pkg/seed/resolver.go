package seed

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"webharvest/pkg/utils"
)

// SeedSet is the resolved, read-only seed specification for one run.
// The first usable entry fixes the scope host; later entries may be
// auxiliary seeds such as sitemap references.
type SeedSet struct {
	Origin *url.URL   // First usable URI; fixes the scope host
	Aux    []*url.URL // Later entries, in file order (may include off-host ones)
	Host   string     // Scope host, derived from Origin
}

// All returns the origin followed by the auxiliary seeds.
func (s *SeedSet) All() []*url.URL {
	out := make([]*url.URL, 0, 1+len(s.Aux))
	out = append(out, s.Origin)
	out = append(out, s.Aux...)
	return out
}

// Resolve validates a seed specification and derives the scope host.
// spec is either a literal absolute URI or a path to a seed-list file
// (one URI per line, blank lines and '#' comments ignored, first meaningful
// line is the origin). Off-host entries are kept in the set but warned about;
// the controller excludes them from the frontier. Returns ErrInvalidSeed when
// no usable URI is found.
func Resolve(spec string, log *logrus.Entry) (*SeedSet, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, fmt.Errorf("%w: empty seed specification", utils.ErrInvalidSeed)
	}

	// A spec that parses as an absolute http(s) URI is a single seed.
	if u, err := url.ParseRequestURI(spec); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Hostname() != "" {
		return &SeedSet{Origin: u, Host: u.Hostname()}, nil
	}

	// Otherwise treat it as a seed-list file path.
	file, err := os.Open(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: '%s' is neither an absolute URI nor a readable seed list: %v", utils.ErrInvalidSeed, spec, err)
	}
	defer file.Close()

	return resolveList(file.Name(), bufio.NewScanner(file), log)
}

func resolveList(name string, scanner *bufio.Scanner, log *logrus.Entry) (*SeedSet, error) {
	var set *SeedSet
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		u, err := url.ParseRequestURI(line)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
			if set == nil {
				// The origin must be well-formed; later junk lines are skippable.
				return nil, fmt.Errorf("%w: first entry '%s' (line %d of %s) is not an absolute http(s) URI", utils.ErrInvalidSeed, line, lineNo, name)
			}
			log.WithFields(logrus.Fields{"line": lineNo, "entry": line}).Warn("Skipping malformed seed entry")
			continue
		}

		if set == nil {
			set = &SeedSet{Origin: u, Host: u.Hostname()}
			continue
		}

		if u.Hostname() != set.Host {
			// Kept in the set so the exclusion is visible downstream;
			// scope is never silently expanded.
			log.WithFields(logrus.Fields{"line": lineNo, "entry": line, "scope_host": set.Host}).
				Warn("Seed entry resolves to a different host; it will be excluded from the frontier")
		}
		set.Aux = append(set.Aux, u)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading seed list '%s': %w", name, err)
	}

	if set == nil {
		return nil, fmt.Errorf("%w: seed list '%s' contains no usable URI", utils.ErrInvalidSeed, name)
	}
	return set, nil
}
