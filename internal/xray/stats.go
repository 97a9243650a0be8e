package xray

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultAPIHost is the loopback stats endpoint xray exposes by default
	DefaultAPIHost = "127.0.0.1"
	// DefaultAPIPort is xray's conventional stats API port
	DefaultAPIPort = 10085
	// DefaultBinary is the xray control CLI on PATH
	DefaultBinary = "xray"
	// DefaultTimeout bounds a single stats query
	DefaultTimeout = 10 * time.Second
)

// statName segments: user>>><email>>>>traffic>>><uplink|downlink>
const (
	statKindUser = "user"
	statMetric   = "traffic"
	dirUplink    = "uplink"
	dirDownlink  = "downlink"
	statNameSegs = 4
	statNameSep  = ">>>"
)

// execCommand is swapped out in tests
var execCommand = exec.CommandContext

// nowFunc is swapped out in tests
var nowFunc = time.Now

// Usage is one user's cumulative traffic counters at query time.
// It is produced fresh on every query and never cached.
type Usage struct {
	Email     string    `json:"email"`
	Uplink    int64     `json:"uplink"`
	Downlink  int64     `json:"downlink"`
	Total     int64     `json:"total"`
	QueriedAt time.Time `json:"queriedAt"`
}

// StatsClient queries xray's traffic accounting through its control CLI.
// The stats endpoint may legitimately be disabled or the daemon stopped,
// so every read degrades to an empty result instead of failing.
type StatsClient struct {
	host    string
	port    int
	binary  string
	timeout time.Duration
}

// NewStatsClient creates a client for the stats endpoint at host:port.
// Zero values fall back to the defaults.
func NewStatsClient(host string, port int) *StatsClient {
	if host == "" {
		host = DefaultAPIHost
	}
	if port <= 0 {
		port = DefaultAPIPort
	}
	return &StatsClient{
		host:    host,
		port:    port,
		binary:  DefaultBinary,
		timeout: DefaultTimeout,
	}
}

// WithBinary overrides the xray binary used for queries
func (c *StatsClient) WithBinary(binary string) *StatsClient {
	if binary != "" {
		c.binary = binary
	}
	return c
}

// WithTimeout overrides the per-query timeout
func (c *StatsClient) WithTimeout(timeout time.Duration) *StatsClient {
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

// ServerAddress returns the stats endpoint as host:port
func (c *StatsClient) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

type statEntry struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

type bulkResponse struct {
	Stat []statEntry `json:"stat"`
}

type scopedResponse struct {
	Stat struct {
		Value int64 `json:"value"`
	} `json:"stat"`
}

// query invokes the xray control CLI with an argument vector, no shell
func (c *StatsClient) query(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := execCommand(ctx, c.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("xray api call failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (c *StatsClient) queryBulk(ctx context.Context) (*bulkResponse, error) {
	out, err := c.query(ctx, "api", "statsquery", "--server="+c.ServerAddress())
	if err != nil {
		return nil, err
	}

	var resp bulkResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("malformed statsquery response: %w", err)
	}
	return &resp, nil
}

// IsStatsAvailable reports whether the stats endpoint answers a bulk
// query with well-formed output. Never errors.
func (c *StatsClient) IsStatsAvailable(ctx context.Context) bool {
	_, err := c.queryBulk(ctx)
	return err == nil
}

// queryCounter reads one directional counter for a user. Missing or
// empty counters read as zero.
func (c *StatsClient) queryCounter(ctx context.Context, email, direction string) int64 {
	name := strings.Join([]string{statKindUser, email, statMetric, direction}, statNameSep)
	out, err := c.query(ctx, "api", "stats", "--server="+c.ServerAddress(), "-name", name)
	if err != nil {
		return 0
	}

	var resp scopedResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return 0
	}
	return resp.Stat.Value
}

// GetUsage returns one user's current counters, or (nil, nil) when the
// stats endpoint is unavailable. Unavailability is a first-class outcome
// the caller must handle, not an error.
func (c *StatsClient) GetUsage(ctx context.Context, email string) (*Usage, error) {
	if !c.IsStatsAvailable(ctx) {
		return nil, nil
	}

	uplink := c.queryCounter(ctx, email, dirUplink)
	downlink := c.queryCounter(ctx, email, dirDownlink)

	return &Usage{
		Email:     email,
		Uplink:    uplink,
		Downlink:  downlink,
		Total:     uplink + downlink,
		QueriedAt: nowFunc(),
	}, nil
}

// GetAllUsage returns one usage record per user seen in the bulk stats
// response, with uplink and downlink summed separately. An unavailable
// endpoint yields an empty slice. Malformed entries are skipped, never
// trusted.
func (c *StatsClient) GetAllUsage(ctx context.Context) ([]Usage, error) {
	resp, err := c.queryBulk(ctx)
	if err != nil {
		return []Usage{}, nil
	}

	queriedAt := nowFunc()
	byEmail := make(map[string]*Usage)

	for _, entry := range resp.Stat {
		parts := strings.Split(entry.Name, statNameSep)
		if len(parts) != statNameSegs || parts[0] != statKindUser || parts[2] != statMetric {
			continue
		}
		email, direction := parts[1], parts[3]
		if email == "" || (direction != dirUplink && direction != dirDownlink) {
			continue
		}

		usage, ok := byEmail[email]
		if !ok {
			usage = &Usage{Email: email, QueriedAt: queriedAt}
			byEmail[email] = usage
		}

		if direction == dirUplink {
			usage.Uplink += entry.Value
		} else {
			usage.Downlink += entry.Value
		}
		usage.Total = usage.Uplink + usage.Downlink
	}

	usages := make([]Usage, 0, len(byEmail))
	for _, u := range byEmail {
		usages = append(usages, *u)
	}
	sort.Slice(usages, func(i, j int) bool { return usages[i].Email < usages[j].Email })

	return usages, nil
}
