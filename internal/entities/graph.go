package entities

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/neur0map/yinx/internal/types"
)

// Entity kinds the correlator understands. Other registered kinds are
// stored but not correlated.
const (
	TypeIPAddress      = "ip_address"
	TypeHostname       = "hostname"
	TypeOpenPort       = "open_port"
	TypeServiceVersion = "service_version"
	TypeCVE            = "cve"

	credentialPrefix = "credential_"
	filePathPrefix   = "file_path"
)

// ServiceInfo describes one service discovered on a host port.
type ServiceInfo struct {
	Port            int      `json:"port"`
	Protocol        string   `json:"protocol"`
	Service         string   `json:"service,omitempty"`
	Version         string   `json:"version,omitempty"`
	Vulnerabilities []string `json:"vulnerabilities,omitempty"`
}

// HostInfo aggregates everything discovered about one host.
type HostInfo struct {
	IP              string               `json:"ip"`
	Hostnames       []string             `json:"hostnames,omitempty"`
	Ports           map[int]*ServiceInfo `json:"ports,omitempty"`
	Vulnerabilities []string             `json:"vulnerabilities,omitempty"`
	Credentials     []string             `json:"credentials,omitempty"`
	Paths           []string             `json:"paths,omitempty"`
	FirstSeen       time.Time            `json:"first_seen"`
	LastSeen        time.Time            `json:"last_seen"`
}

// GraphStats summarizes the correlation graph.
type GraphStats struct {
	Hosts           int `json:"hosts"`
	Ports           int `json:"ports"`
	Services        int `json:"services"`
	Vulnerabilities int `json:"vulnerabilities"`
	Credentials     int `json:"credentials"`
}

// Graph is the in-memory correlation view linking hosts to their
// discovered ports, services and vulnerabilities. It is derived purely
// from extracted entities and is rebuilt from the entities table on
// startup; it never outlives the process.
//
// Mutations go through a single owning task. Readers call Snapshot and
// work on their own copy.
type Graph struct {
	mu    sync.RWMutex
	hosts map[string]*HostInfo
	vulns map[string]map[string]struct{}
}

// NewGraph creates an empty correlation graph.
func NewGraph() *Graph {
	return &Graph{
		hosts: make(map[string]*HostInfo),
		vulns: make(map[string]map[string]struct{}),
	}
}

// Observe correlates one co-located batch of entities. Co-location
// scope is the text the batch was extracted from, so ports, services
// and CVEs attach to every host seen in the same batch.
func (g *Graph) Observe(batch []*types.Entity, seenAt time.Time) {
	if len(batch) == 0 {
		return
	}

	var (
		ips      []string
		names    []string
		ports    []*types.Entity
		services []*types.Entity
		cves     []string
		creds    []string
		paths    []string
	)

	for _, entity := range batch {
		switch {
		case entity.TypeName == TypeIPAddress:
			ips = append(ips, entity.Value)
		case entity.TypeName == TypeHostname:
			names = append(names, entity.Value)
		case entity.TypeName == TypeOpenPort:
			ports = append(ports, entity)
		case entity.TypeName == TypeServiceVersion:
			services = append(services, entity)
		case entity.TypeName == TypeCVE:
			cves = append(cves, entity.Value)
		case strings.HasPrefix(entity.TypeName, credentialPrefix):
			creds = append(creds, entity.Value)
		case strings.HasPrefix(entity.TypeName, filePathPrefix):
			paths = append(paths, entity.Value)
		}
	}

	if len(ips) == 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, ip := range ips {
		host := g.hosts[ip]
		if host == nil {
			host = &HostInfo{
				IP:        ip,
				Ports:     make(map[int]*ServiceInfo),
				FirstSeen: seenAt,
				LastSeen:  seenAt,
			}
			g.hosts[ip] = host
		}
		if seenAt.After(host.LastSeen) {
			host.LastSeen = seenAt
		}
		if seenAt.Before(host.FirstSeen) {
			host.FirstSeen = seenAt
		}

		for _, name := range names {
			host.Hostnames = appendUnique(host.Hostnames, name)
		}

		for _, portEntity := range ports {
			port, protocol, ok := parsePort(portEntity.Value)
			if !ok {
				continue
			}
			svc := host.Ports[port]
			if svc == nil {
				svc = &ServiceInfo{Port: port, Protocol: protocol}
				host.Ports[port] = svc
			}
			if svc.Protocol == "" {
				svc.Protocol = protocol
			}
		}

		for _, svcEntity := range services {
			name, version, ok := parseService(svcEntity.Value)
			if !ok {
				continue
			}
			// A service string enriches the co-located ports that have
			// no service assigned yet.
			for _, svc := range host.Ports {
				if svc.Service == "" {
					svc.Service = name
					svc.Version = version
					break
				}
			}
		}

		for _, cve := range cves {
			host.Vulnerabilities = appendUnique(host.Vulnerabilities, cve)
			for _, svc := range host.Ports {
				svc.Vulnerabilities = appendUnique(svc.Vulnerabilities, cve)
			}

			affected := g.vulns[cve]
			if affected == nil {
				affected = make(map[string]struct{})
				g.vulns[cve] = affected
			}
			affected[ip] = struct{}{}
		}

		host.Credentials = append(host.Credentials, creds...)
		for _, path := range paths {
			host.Paths = appendUnique(host.Paths, path)
		}
	}
}

// Host returns a copy of the info for one IP.
func (g *Graph) Host(ip string) (*HostInfo, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	host, ok := g.hosts[ip]
	if !ok {
		return nil, false
	}
	return cloneHost(host), true
}

// Hosts returns copies of every host, ordered by IP.
func (g *Graph) Hosts() []*HostInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*HostInfo, 0, len(g.hosts))
	for _, host := range g.hosts {
		out = append(out, cloneHost(host))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out
}

// VulnerableHosts returns copies of the hosts affected by a CVE.
func (g *Graph) VulnerableHosts(cve string) []*HostInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()

	affected, ok := g.vulns[cve]
	if !ok {
		return nil
	}

	out := make([]*HostInfo, 0, len(affected))
	for ip := range affected {
		if host, exists := g.hosts[ip]; exists {
			out = append(out, cloneHost(host))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out
}

// Vulnerabilities returns the sorted set of known CVE identifiers.
func (g *Graph) Vulnerabilities() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, 0, len(g.vulns))
	for cve := range g.vulns {
		out = append(out, cve)
	}
	sort.Strings(out)
	return out
}

// Stats summarizes the graph.
func (g *Graph) Stats() GraphStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := GraphStats{
		Hosts:           len(g.hosts),
		Vulnerabilities: len(g.vulns),
	}
	for _, host := range g.hosts {
		stats.Ports += len(host.Ports)
		stats.Credentials += len(host.Credentials)
		for _, svc := range host.Ports {
			if svc.Service != "" {
				stats.Services++
			}
		}
	}
	return stats
}

// Snapshot returns a deep copy of every host keyed by IP.
func (g *Graph) Snapshot() map[string]*HostInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]*HostInfo, len(g.hosts))
	for ip, host := range g.hosts {
		out[ip] = cloneHost(host)
	}
	return out
}

// Rebuild repopulates the graph from stored entities. Entities are
// grouped by capture, preserving the co-location scope they were
// extracted under.
func (g *Graph) Rebuild(stored []*types.Entity, capturedAt func(captureID int64) time.Time) {
	g.mu.Lock()
	g.hosts = make(map[string]*HostInfo)
	g.vulns = make(map[string]map[string]struct{})
	g.mu.Unlock()

	byCapture := make(map[int64][]*types.Entity)
	var order []int64
	for _, entity := range stored {
		if _, seen := byCapture[entity.CaptureID]; !seen {
			order = append(order, entity.CaptureID)
		}
		byCapture[entity.CaptureID] = append(byCapture[entity.CaptureID], entity)
	}

	for _, captureID := range order {
		g.Observe(byCapture[captureID], capturedAt(captureID))
	}
}

func cloneHost(host *HostInfo) *HostInfo {
	clone := &HostInfo{
		IP:              host.IP,
		Hostnames:       append([]string(nil), host.Hostnames...),
		Ports:           make(map[int]*ServiceInfo, len(host.Ports)),
		Vulnerabilities: append([]string(nil), host.Vulnerabilities...),
		Credentials:     append([]string(nil), host.Credentials...),
		Paths:           append([]string(nil), host.Paths...),
		FirstSeen:       host.FirstSeen,
		LastSeen:        host.LastSeen,
	}
	for port, svc := range host.Ports {
		copied := *svc
		copied.Vulnerabilities = append([]string(nil), svc.Vulnerabilities...)
		clone.Ports[port] = &copied
	}
	return clone
}

func appendUnique(values []string, value string) []string {
	for _, existing := range values {
		if existing == value {
			return values
		}
	}
	return append(values, value)
}

// parsePort splits "22/tcp" into (22, "tcp").
func parsePort(value string) (int, string, bool) {
	number, protocol, found := strings.Cut(value, "/")
	if !found {
		return 0, "", false
	}
	port, err := strconv.Atoi(number)
	if err != nil || port < 1 || port > 65535 {
		return 0, "", false
	}
	return port, protocol, true
}

// parseService splits "Apache/2.4.41" into ("Apache", "2.4.41").
func parseService(value string) (string, string, bool) {
	name, version, found := strings.Cut(value, "/")
	if !found || name == "" {
		return "", "", false
	}
	return name, version, true
}
